// Package classify wraps a single classifier call with a bounded retry policy.
package classify

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/ppiankov/rulelabel/internal/llm"
	"github.com/ppiankov/rulelabel/internal/logging"
)

var errEmptyResponse = errors.New("provider returned no response")

// Options configures a Client
type Options struct {
	Policy RetryPolicy
	// CallTimeout bounds one attempt. A bounded attempt that is already in
	// flight runs to completion when ctx is cancelled; 0 = unbounded, and
	// cancellation then aborts the call.
	CallTimeout time.Duration
	Model       string // Overrides the provider's configured model
	Logger      *zap.Logger
}

// Result is a successful (or passed-through) reply with the attempts it took
type Result struct {
	Response *llm.TextResponse
	Attempts int
}

// Client issues classification calls against a provider
type Client struct {
	provider    llm.Provider
	policy      RetryPolicy
	callTimeout time.Duration
	model       string
	logger      *zap.Logger
}

// NewClient creates a client around the provider
func NewClient(provider llm.Provider, opts Options) *Client {
	c := &Client{
		provider:    provider,
		policy:      opts.Policy,
		callTimeout: opts.CallTimeout,
		model:       opts.Model,
		logger:      logging.OrNop(opts.Logger),
	}
	if c.policy.MaxAttempts == 0 && c.policy.Backoff == nil {
		c.policy = DefaultRetryPolicy()
	}
	return c
}

// Provider returns the wrapped provider
func (c *Client) Provider() llm.Provider {
	return c.provider
}

// Classify sends the content with the rule specification and returns the reply.
// Server errors and transport failures are retried; anything else is returned as-is.
func (c *Client) Classify(ctx context.Context, content, ruleSpec string) (*llm.TextResponse, error) {
	res, err := c.Attempt(ctx, content, ruleSpec)
	if err != nil {
		return nil, err
	}
	return res.Response, nil
}

// Attempt is Classify that also reports how many calls were made.
// On failure the returned Result still carries the attempt count.
func (c *Client) Attempt(ctx context.Context, content, ruleSpec string) (Result, error) {
	var (
		res  Result
		last *TransientCallError
	)

	err := retry.Do(ctx, c.policy.backoff(), func(ctx context.Context) error {
		res.Attempts++
		resp, err := c.call(ctx, content, ruleSpec)
		if err == nil && resp == nil {
			err = errEmptyResponse
		}
		if err == nil && !resp.ServerError() {
			res.Response = resp
			return nil
		}

		last = &TransientCallError{Attempt: res.Attempts, Err: err}
		if resp != nil {
			last.StatusCode = resp.StatusCode
		}
		c.logger.Debug("classification attempt failed",
			zap.String("provider", c.provider.Name()),
			zap.Int("attempt", res.Attempts),
			zap.Int("status", last.StatusCode),
			zap.Error(last),
		)
		return retry.RetryableError(last)
	})
	if err == nil {
		return res, nil
	}

	// The parent context ending is a stop, not a transient failure
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}

	c.logger.Warn("classification failed",
		zap.String("provider", c.provider.Name()),
		zap.Int("attempts", res.Attempts),
		zap.Error(last),
	)
	return res, &ClassificationError{Attempts: res.Attempts, Last: last}
}

func (c *Client) call(ctx context.Context, content, ruleSpec string) (*llm.TextResponse, error) {
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), c.callTimeout)
		defer cancel()
	}
	return c.provider.Generate(ctx, llm.GenerateRequest{
		Content:      content,
		Instructions: ruleSpec,
		Model:        c.model,
	})
}
