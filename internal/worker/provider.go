package worker

import (
	"context"

	"github.com/ppiankov/rulelabel/internal/llm"
)

// limitedProvider passes every Generate call through a shared Limiter gate
type limitedProvider struct {
	llm.Provider
	limiter *Limiter
	key     string
}

// LimitProvider wraps p so that all calls, retries included, share the limiter
// gate keyed by the provider name
func LimitProvider(p llm.Provider, limiter *Limiter) llm.Provider {
	if limiter == nil {
		return p
	}
	return &limitedProvider{Provider: p, limiter: limiter, key: p.Name()}
}

func (p *limitedProvider) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.TextResponse, error) {
	if err := p.limiter.Wait(ctx, p.key); err != nil {
		return nil, err
	}
	return p.Provider.Generate(ctx, req)
}
