package model

import "time"

// Outcome is the per-record result of one classification attempt sequence.
// Only the final attempt is recorded; retries are not exposed.
type Outcome struct {
	ID          int           `json:"id"`                    // Record identifier
	RawResponse string        `json:"raw_response,omitempty"` // Classifier reply text (parsing is deferred to the merger)
	StatusCode  int           `json:"status_code,omitempty"`  // Status reported by the transport, 0 if none
	Labels      RuleLabel     `json:"labels,omitempty"`       // Pre-parsed labels, if any
	Err         error         `json:"-"`                      // Terminal failure; Labels stay empty
	Attempts    int           `json:"attempts"`               // External calls made for this record
	CacheHit    bool          `json:"cache_hit,omitempty"`    // Served from the response cache
	Duration    time.Duration `json:"duration"`               // Wall time spent on the record
}

// Failed reports whether the outcome carries a terminal error
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// HasResponse reports whether a reply is available for parsing
func (o Outcome) HasResponse() bool {
	return o.Err == nil && o.RawResponse != ""
}
