// Package pipeline wires the classification run together: unlabeled records go
// through the batch runner, outcomes are merged back by ID and the table is
// normalized against the implication graph.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ppiankov/rulelabel/internal/cache"
	"github.com/ppiankov/rulelabel/internal/classify"
	"github.com/ppiankov/rulelabel/internal/llm"
	"github.com/ppiankov/rulelabel/internal/logging"
	"github.com/ppiankov/rulelabel/internal/merge"
	"github.com/ppiankov/rulelabel/internal/model"
	"github.com/ppiankov/rulelabel/internal/normalize"
	"github.com/ppiankov/rulelabel/internal/store"
	"github.com/ppiankov/rulelabel/internal/worker"
)

// ErrEmptyRuleSpec is returned when no rule specification was given
var ErrEmptyRuleSpec = errors.New("rule specification is empty")

// Options carries collaborators that are not part of the configuration
type Options struct {
	Provider   llm.Provider          // Built from the LLM config when nil
	Registerer prometheus.Registerer // Metrics are disabled when nil
	Sleep      classify.SleepFunc    // Inter-call pause; defaults to classify.Sleep
	Graph      *normalize.Graph      // Overrides normalize.graph_file
	Logger     *zap.Logger
	Progress   func(done, total int, outcome model.Outcome)
}

// Pipeline orchestrates one classification run
type Pipeline struct {
	runner     *worker.Runner
	normalizer *normalize.Normalizer // nil when normalization is disabled
	provider   llm.Provider
	config     *model.Config
	logger     *zap.Logger
}

// Result summarizes a run
type Result struct {
	RunID      string
	Table      *model.ResultTable
	Outcomes   []model.Outcome
	Pending    int // Rows without labels before the run
	Skipped    int // Pending rows without content
	Classified int
	Failed     int
	CacheHits  int
	Normalized int // Rows changed by normalization
	Duration   time.Duration
}

// New creates a pipeline from the configuration
func New(cfg *model.Config, opts Options) (*Pipeline, error) {
	logger := logging.OrNop(opts.Logger)

	provider := opts.Provider
	if provider == nil {
		llmConfig, err := llm.LoadCredentialsFromEnv(llm.ConfigFromModel(cfg.LLM))
		if err != nil {
			return nil, err
		}
		provider, err = llm.NewProvider(llmConfig)
		if err != nil {
			return nil, fmt.Errorf("create provider: %w", err)
		}
	}
	namespace := provider.Name() + "/" + cfg.LLM.Model

	if cfg.Batch.Workers > 1 {
		provider = worker.LimitProvider(provider, worker.NewLimiter(cfg.Batch.InterCallDelay))
	}

	client := classify.NewClient(provider, classify.Options{
		Policy:      classify.PolicyFromConfig(cfg.Retry),
		CallTimeout: cfg.Batch.CallTimeout,
		Logger:      logger,
	})

	runnerConfig := worker.RunnerConfig{
		Workers:        cfg.Batch.Workers,
		InterCallDelay: cfg.Batch.InterCallDelay,
		Sleep:          opts.Sleep,
		Logger:         logger,
		Progress:       opts.Progress,
	}
	if c := cache.New(cfg.Cache); c != nil {
		runnerConfig.Responses = cache.NewResponses(c, namespace, cfg.Cache.DiskTTL)
	}
	if opts.Registerer != nil {
		runnerConfig.Metrics = worker.NewMetrics(opts.Registerer)
	}
	if cfg.Batch.StripMarkup {
		runnerConfig.ContentFilter = store.PlainText
	}

	var normalizer *normalize.Normalizer
	if cfg.Normalize.Enabled {
		var err error
		normalizer, err = NewNormalizer(cfg.Normalize, opts.Graph)
		if err != nil {
			return nil, err
		}
	}

	return &Pipeline{
		runner:     worker.NewRunner(client, runnerConfig),
		normalizer: normalizer,
		provider:   provider,
		config:     cfg,
		logger:     logger,
	}, nil
}

// NewNormalizer builds the normalizer described by cfg. A non-nil graph takes
// precedence over cfg.GraphFile; without either the default graph is used.
func NewNormalizer(cfg model.NormalizeConfig, graph *normalize.Graph) (*normalize.Normalizer, error) {
	mode, err := normalize.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	if graph == nil && cfg.GraphFile != "" {
		f, err := os.Open(cfg.GraphFile)
		if err != nil {
			return nil, fmt.Errorf("open graph file: %w", err)
		}
		defer func() { _ = f.Close() }()

		graph, err = normalize.LoadGraph(f)
		if err != nil {
			return nil, fmt.Errorf("load graph %s: %w", cfg.GraphFile, err)
		}
	}

	return normalize.New(graph, mode), nil
}

// Provider returns the provider calls go through
func (p *Pipeline) Provider() llm.Provider {
	return p.provider
}

// Run classifies the rows of table that have no labels yet, merges the outcomes
// and normalizes the result. When ctx is cancelled the partial result is still
// returned, together with the context error.
func (p *Pipeline) Run(ctx context.Context, table *model.ResultTable, ruleSpec string) (*Result, error) {
	if ruleSpec == "" {
		return nil, ErrEmptyRuleSpec
	}

	start := time.Now()
	result := &Result{RunID: uuid.NewString()}
	logger := p.logger.With(zap.String("run_id", result.RunID))

	pending := table.Unlabeled()
	result.Pending = len(pending)
	for _, rec := range pending {
		if !rec.HasContent() {
			result.Skipped++
		}
	}
	logger.Info("run started",
		zap.String("provider", p.provider.Name()),
		zap.Int("rows", len(table.Rows)),
		zap.Int("pending", result.Pending),
	)

	outcomes, runErr := p.runner.Run(ctx, pending, ruleSpec)
	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return nil, fmt.Errorf("run batch: %w", runErr)
	}
	result.Outcomes = outcomes
	for _, o := range outcomes {
		switch {
		case o.Failed():
			result.Failed++
		case o.CacheHit:
			result.CacheHits++
			result.Classified++
		default:
			result.Classified++
		}
	}

	merged, err := merge.Into(table, outcomes)
	if err != nil {
		return nil, fmt.Errorf("merge outcomes: %w", err)
	}

	if p.normalizer != nil {
		normalized, err := p.normalizer.NormalizeTable(merged)
		if err != nil {
			return nil, fmt.Errorf("normalize: %w", err)
		}
		result.Normalized = normalize.ChangedRows(merged, normalized)
		merged = normalized
	}

	result.Table = merged
	result.Duration = time.Since(start)

	fields := []zap.Field{
		zap.Int("classified", result.Classified),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
		zap.Int("cache_hits", result.CacheHits),
		zap.Int("normalized", result.Normalized),
		zap.Duration("duration", result.Duration),
	}
	if runErr != nil {
		logger.Warn("run interrupted", append(fields, zap.Error(runErr))...)
		return result, runErr
	}
	logger.Info("run finished", fields...)
	return result, nil
}
