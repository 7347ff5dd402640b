package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/rulelabel/internal/cache"
	"github.com/ppiankov/rulelabel/internal/classify"
	"github.com/ppiankov/rulelabel/internal/logging"
	"github.com/ppiankov/rulelabel/internal/model"
)

// Classifier is the per-record call the runner drives
type Classifier interface {
	Attempt(ctx context.Context, content, ruleSpec string) (classify.Result, error)
}

// RunnerConfig controls pacing, concurrency and the optional collaborators
type RunnerConfig struct {
	// Workers > 1 classifies records concurrently. The classifier's provider
	// must then be wrapped with LimitProvider so calls share one gate.
	Workers int

	// InterCallDelay is the pause after every successful external call
	InterCallDelay time.Duration

	Sleep         classify.SleepFunc    // Defaults to classify.Sleep
	Responses     *cache.Responses      // Optional reply cache
	ContentFilter func(string) string   // Applied to abstracts before sending
	Metrics       *Metrics              // Optional
	Logger        *zap.Logger
	Progress      func(done, total int, outcome model.Outcome)
}

// Runner classifies a batch of records
type Runner struct {
	classifier Classifier
	cfg        RunnerConfig
	logger     *zap.Logger
}

// NewRunner creates a runner
func NewRunner(classifier Classifier, cfg RunnerConfig) *Runner {
	if cfg.Sleep == nil {
		cfg.Sleep = classify.Sleep
	}
	return &Runner{classifier: classifier, cfg: cfg, logger: logging.OrNop(cfg.Logger)}
}

// Run classifies every record with content, in input order. Records without
// content produce no outcome. If ctx is cancelled the outcomes collected so far
// are returned together with the context error.
func (r *Runner) Run(ctx context.Context, records []model.Record, ruleSpec string) ([]model.Outcome, error) {
	eligible := make([]model.Record, 0, len(records))
	for _, rec := range records {
		if !rec.HasContent() {
			r.cfg.Metrics.skip()
			r.logger.Debug("skipping record without content", zap.Int("id", rec.ID))
			continue
		}
		eligible = append(eligible, rec)
	}

	r.logger.Info("classifying records",
		zap.Int("records", len(records)),
		zap.Int("eligible", len(eligible)),
		zap.Int("workers", r.workers()),
		zap.Duration("inter_call_delay", r.cfg.InterCallDelay),
	)

	if len(eligible) == 0 {
		return []model.Outcome{}, ctx.Err()
	}

	if r.workers() <= 1 {
		return r.runSerial(ctx, eligible, ruleSpec)
	}
	return r.runPooled(ctx, eligible, ruleSpec)
}

func (r *Runner) workers() int {
	if r.cfg.Workers < 1 {
		return 1
	}
	return r.cfg.Workers
}

func (r *Runner) runSerial(ctx context.Context, records []model.Record, ruleSpec string) ([]model.Outcome, error) {
	outcomes := make([]model.Outcome, 0, len(records))

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		outcome, called, err := r.classifyRecord(ctx, rec, ruleSpec)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, outcome)
		r.report(len(outcomes), len(records), outcome)

		if called && !outcome.Failed() && i < len(records)-1 {
			if err := r.pause(ctx); err != nil {
				return outcomes, err
			}
		}
	}

	return outcomes, nil
}

func (r *Runner) runPooled(ctx context.Context, records []model.Record, ruleSpec string) ([]model.Outcome, error) {
	pool := NewPool(ctx, r.workers())
	pool.Start()
	defer pool.Shutdown()

	go func() {
		defer pool.Close()
		for i, rec := range records {
			if !pool.Submit(&recordJob{runner: r, index: i, record: rec, ruleSpec: ruleSpec}) {
				return
			}
		}
	}()

	slots := make([]*model.Outcome, len(records))
	done := 0
	var stopErr error
	for res := range pool.Results() {
		jr := res.(*recordResult)
		if jr.err != nil {
			if stopErr == nil {
				stopErr = jr.err
			}
			continue
		}
		slots[jr.index] = &jr.outcome
		done++
		r.report(done, len(records), jr.outcome)
	}

	outcomes := make([]model.Outcome, 0, done)
	for _, slot := range slots {
		if slot != nil {
			outcomes = append(outcomes, *slot)
		}
	}

	if stopErr == nil {
		stopErr = ctx.Err()
	}
	return outcomes, stopErr
}

// classifyRecord returns the outcome and whether an external call succeeded.
// A non-nil error means the batch was stopped and the record has no outcome.
func (r *Runner) classifyRecord(ctx context.Context, rec model.Record, ruleSpec string) (model.Outcome, bool, error) {
	start := time.Now()
	content := rec.Abstract
	if r.cfg.ContentFilter != nil {
		content = r.cfg.ContentFilter(content)
	}

	if resp, ok := r.cfg.Responses.Get(ruleSpec, content); ok {
		outcome := model.Outcome{
			ID:          rec.ID,
			RawResponse: resp.Text,
			StatusCode:  resp.StatusCode,
			CacheHit:    true,
			Duration:    time.Since(start),
		}
		r.cfg.Metrics.observe(statusCached, 0, outcome.Duration)
		return outcome, false, nil
	}

	r.cfg.Metrics.begin()
	res, err := r.classifier.Attempt(ctx, content, ruleSpec)
	r.cfg.Metrics.end()

	outcome := model.Outcome{
		ID:       rec.ID,
		Attempts: res.Attempts,
		Duration: time.Since(start),
	}

	if err != nil {
		var classErr *classify.ClassificationError
		if !errors.As(err, &classErr) {
			return model.Outcome{}, false, err
		}
		outcome.Err = err
		r.cfg.Metrics.observe(statusFailed, res.Attempts, outcome.Duration)
		r.logger.Warn("record failed", zap.Int("id", rec.ID), zap.Int("attempts", res.Attempts), zap.Error(err))
		return outcome, false, nil
	}

	outcome.RawResponse = res.Response.Text
	outcome.StatusCode = res.Response.StatusCode
	r.cfg.Metrics.observe(statusSuccess, res.Attempts, outcome.Duration)

	if err := r.cfg.Responses.Put(ruleSpec, content, res.Response); err != nil {
		r.logger.Warn("cache write failed", zap.Int("id", rec.ID), zap.Error(err))
	}

	r.logger.Debug("record classified",
		zap.Int("id", rec.ID),
		zap.Int("status", outcome.StatusCode),
		zap.Int("attempts", outcome.Attempts),
		zap.Duration("duration", outcome.Duration),
	)
	return outcome, true, nil
}

func (r *Runner) pause(ctx context.Context) error {
	if r.cfg.InterCallDelay <= 0 {
		return ctx.Err()
	}
	return r.cfg.Sleep(ctx, r.cfg.InterCallDelay)
}

func (r *Runner) report(done, total int, outcome model.Outcome) {
	if r.cfg.Progress != nil {
		r.cfg.Progress(done, total, outcome)
	}
}

// recordJob classifies one record inside the pool
type recordJob struct {
	runner   *Runner
	index    int
	record   model.Record
	ruleSpec string
}

func (j *recordJob) Execute(ctx context.Context) Result {
	outcome, called, err := j.runner.classifyRecord(ctx, j.record, j.ruleSpec)
	if err != nil {
		return &recordResult{index: j.index, err: err}
	}
	if called {
		// The outcome is complete; an interrupted pause only ends this worker early
		_ = j.runner.pause(ctx)
	}
	return &recordResult{index: j.index, outcome: outcome}
}

// recordResult carries either an outcome or the error that stopped the record
type recordResult struct {
	index   int
	outcome model.Outcome
	err     error
}

func (r *recordResult) GetError() error {
	return r.err
}
