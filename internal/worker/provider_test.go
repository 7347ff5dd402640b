package worker

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/ppiankov/rulelabel/internal/llm"
)

type stubProvider struct {
	generate func()
}

func (p *stubProvider) Name() string                     { return "stub" }
func (p *stubProvider) IsAvailable(context.Context) bool { return true }

func (p *stubProvider) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.TextResponse, error) {
	if p.generate != nil {
		p.generate()
	}
	return &llm.TextResponse{Text: `{"rules":["yes"]}`, StatusCode: http.StatusOK}, nil
}

func TestLimitProvider_NilLimiter(t *testing.T) {
	provider := &stubProvider{}
	if got := LimitProvider(provider, nil); got != llm.Provider(provider) {
		t.Errorf("expected the provider itself when no limiter is given")
	}
}

func TestLimitProvider_KeepsName(t *testing.T) {
	limited := LimitProvider(&stubProvider{}, NewLimiter(time.Second))
	if limited.Name() != "stub" {
		t.Errorf("expected name stub, got %s", limited.Name())
	}
}

func TestLimitProvider_WaitsForGate(t *testing.T) {
	limiter := NewLimiter(time.Hour)
	limited := LimitProvider(&stubProvider{}, limiter)

	if _, err := limited.Generate(context.Background(), llm.GenerateRequest{}); err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := limited.Generate(ctx, llm.GenerateRequest{}); err == nil {
		t.Error("expected second call to be held by the gate")
	}
}
