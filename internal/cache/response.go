package cache

import (
	"encoding/json"
	"time"

	"github.com/ppiankov/rulelabel/internal/llm"
	"github.com/ppiankov/rulelabel/internal/parser"
)

// Responses caches classifier replies on top of a byte cache
type Responses struct {
	store     Cache
	namespace string
	ttl       time.Duration
}

type responseEntry struct {
	Text       string `json:"text"`
	StatusCode int    `json:"status_code"`
	Model      string `json:"model,omitempty"`
}

// NewResponses wraps store; namespace separates providers and models
func NewResponses(store Cache, namespace string, ttl time.Duration) *Responses {
	return &Responses{store: store, namespace: namespace, ttl: ttl}
}

func (r *Responses) key(ruleSpec, content string) string {
	return CacheKey(r.namespace, ruleSpec, content)
}

// Get returns the cached reply for the content under the rule specification
func (r *Responses) Get(ruleSpec, content string) (*llm.TextResponse, bool) {
	if r == nil || r.store == nil {
		return nil, false
	}
	data, ok := r.store.Get(r.key(ruleSpec, content))
	if !ok {
		return nil, false
	}
	var entry responseEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}
	return &llm.TextResponse{Text: entry.Text, StatusCode: entry.StatusCode, Model: entry.Model}, true
}

// Put stores a reply. Replies with an error status, or without a single
// verdict, are not cached so a resumed run asks again.
func (r *Responses) Put(ruleSpec, content string, resp *llm.TextResponse) error {
	if r == nil || r.store == nil || resp == nil || resp.StatusCode >= 400 {
		return nil
	}
	if parser.Parse(resp.Text).Empty() {
		return nil
	}
	data, err := json.Marshal(responseEntry{Text: resp.Text, StatusCode: resp.StatusCode, Model: resp.Model})
	if err != nil {
		return err
	}
	return r.store.Set(r.key(ruleSpec, content), data, r.ttl)
}
