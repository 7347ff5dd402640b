package classify

import (
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ppiankov/rulelabel/internal/model"
)

// BackoffFactory builds the delay sequence for one classification. go-retry
// backoffs are stateful, so every call needs a fresh one.
type BackoffFactory func() retry.Backoff

// RetryPolicy bounds how often a transient failure is retried
type RetryPolicy struct {
	MaxAttempts int // Total attempts, including the first
	Backoff     BackoffFactory
}

// DefaultRetryPolicy makes 3 attempts with a constant 5s pause between them
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     ConstantBackoff(5 * time.Second),
	}
}

// PolicyFromConfig builds a policy from the retry configuration
func PolicyFromConfig(cfg model.RetryConfig) RetryPolicy {
	policy := DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.Delay > 0 {
		policy.Backoff = ConstantBackoff(cfg.Delay)
		if cfg.Exponential {
			policy.Backoff = ExponentialBackoff(cfg.Delay, cfg.MaxDelay)
		}
	}
	return policy
}

// ConstantBackoff waits d between every attempt
func ConstantBackoff(d time.Duration) BackoffFactory {
	if d <= 0 {
		return noBackoff
	}
	return func() retry.Backoff {
		return retry.NewConstant(d)
	}
}

// ExponentialBackoff doubles the delay after every attempt, starting at
// initial and capped at maxDelay when maxDelay > 0
func ExponentialBackoff(initial, maxDelay time.Duration) BackoffFactory {
	if initial <= 0 {
		return noBackoff
	}
	return func() retry.Backoff {
		b := retry.NewExponential(initial)
		if maxDelay > 0 {
			b = retry.WithCappedDuration(maxDelay, b)
		}
		return b
	}
}

func noBackoff() retry.Backoff {
	return retry.BackoffFunc(func() (time.Duration, bool) {
		return 0, false
	})
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// backoff is the policy's delay sequence limited to the retry budget
func (p RetryPolicy) backoff() retry.Backoff {
	next := p.Backoff
	if next == nil {
		next = noBackoff
	}
	return retry.WithMaxRetries(uint64(p.attempts()-1), next())
}
