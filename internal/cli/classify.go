package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ppiankov/rulelabel/internal/llm"
	"github.com/ppiankov/rulelabel/internal/model"
	"github.com/ppiankov/rulelabel/internal/pipeline"
	"github.com/ppiankov/rulelabel/internal/store"
)

const providerCheckTimeout = 30 * time.Second

var (
	rulesFile   string
	outFile     string
	noNormalize bool
	noCache     bool
	resume      bool
)

// classifyCmd represents the classify command
var classifyCmd = &cobra.Command{
	Use:   "classify <input.csv>",
	Short: "Classify the abstracts of a table against the rule specification",
	Long: `Classify sends every unlabeled abstract of the input table to the configured
classifier and writes the labeled table:
- Rows without an abstract are carried through unlabeled
- Transient classifier failures are retried; exhausted rows stay blank
- Verdicts are merged back by ID and the rule dependencies are enforced
- On interrupt (Ctrl-C) the rows labeled so far are still written

Example:
  rulelabel classify papers.csv --rules rules.txt --out labeled.csv
  rulelabel classify papers.csv --rules rules.txt --resume
  rulelabel classify papers.csv --rules rules.txt --workers 4 --metrics-addr :9090`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().StringVar(&rulesFile, "rules", "", "file containing the rule specification (required)")
	classifyCmd.Flags().StringVarP(&outFile, "out", "o", "", "output table (default: <input>_labeled.csv)")
	classifyCmd.Flags().BoolVar(&noNormalize, "no-normalize", false, "skip rule dependency normalization")
	classifyCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the response cache")
	classifyCmd.Flags().BoolVar(&resume, "resume", false, "continue from an existing output table, classifying only unlabeled rows")
	classifyCmd.Flags().Int("workers", 1, "concurrent classifier calls (1 = strictly serial)")
	classifyCmd.Flags().Duration("delay", 4*time.Second, "pause after every successful classifier call")
	classifyCmd.Flags().String("provider", "", "classifier provider (gemini, openai, anthropic, ollama)")
	classifyCmd.Flags().String("model", "", "classifier model name")
	classifyCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address while running")
	_ = classifyCmd.MarkFlagRequired("rules")

	_ = viper.BindPFlag("batch.workers", classifyCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("batch.inter_call_delay", classifyCmd.Flags().Lookup("delay"))
	_ = viper.BindPFlag("llm.provider", classifyCmd.Flags().Lookup("provider"))
	_ = viper.BindPFlag("llm.model", classifyCmd.Flags().Lookup("model"))
	_ = viper.BindPFlag("metrics.addr", classifyCmd.Flags().Lookup("metrics-addr"))
}

func runClassify(cmd *cobra.Command, args []string) error {
	input := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if noNormalize {
		cfg.Normalize.Enabled = false
	}
	if noCache {
		cfg.Cache.Enabled = false
	}

	ruleSpec, err := readRuleSpec(rulesFile)
	if err != nil {
		return err
	}

	out := outFile
	if out == "" {
		out = defaultOutputPath(input)
	}

	source := input
	if resume {
		if _, err := os.Stat(out); err == nil {
			source = out
		}
	}
	table, err := store.ReadFile(source, store.LoadOptions{IDBase: cfg.Input.IDBase, Name: source})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if cfg.Metrics.Addr != "" {
		shutdown := serveMetrics(cfg.Metrics.Addr, reg)
		defer shutdown()
	}

	p, err := pipeline.New(cfg, pipeline.Options{
		Registerer: reg,
		Logger:     logger,
		Progress:   printProgress,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  rulelabel classify\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input:        %s\n", source)
	fmt.Fprintf(os.Stderr, "  Output:       %s\n", out)
	fmt.Fprintf(os.Stderr, "  Rows:         %d\n", len(table.Rows))
	fmt.Fprintf(os.Stderr, "  Classifier:   %s/%s\n", p.Provider().Name(), cfg.LLM.Model)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Batch.Workers)
	fmt.Fprintf(os.Stderr, "  Delay:        %v\n", cfg.Batch.InterCallDelay)
	if cfg.Normalize.Enabled {
		fmt.Fprintf(os.Stderr, "  Normalize:    %s\n", cfg.Normalize.Mode)
	} else {
		fmt.Fprintf(os.Stderr, "  Normalize:    off\n")
	}
	if cfg.Metrics.Addr != "" {
		fmt.Fprintf(os.Stderr, "  Metrics:      http://%s/metrics\n", cfg.Metrics.Addr)
	}
	fmt.Fprintf(os.Stderr, "\n")

	if err := checkProvider(ctx, p.Provider(), table); err != nil {
		return err
	}

	result, runErr := p.Run(ctx, table, ruleSpec)
	if result == nil {
		return runErr
	}

	writeOpts := store.WriteOptions{BOM: cfg.Output.BOM, RuleCount: cfg.Output.RuleCount}
	if err := store.WriteFile(out, result.Table, writeOpts); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	title := "Classification Complete"
	if runErr != nil {
		title = "Classification Interrupted"
	}
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  %s\n", title)
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Run:          %s\n", result.RunID)
	fmt.Fprintf(os.Stderr, "  Pending:      %d\n", result.Pending)
	fmt.Fprintf(os.Stderr, "  Classified:   %d (%d cached)\n", result.Classified, result.CacheHits)
	fmt.Fprintf(os.Stderr, "  Failed:       %d\n", result.Failed)
	fmt.Fprintf(os.Stderr, "  No abstract:  %d\n", result.Skipped)
	fmt.Fprintf(os.Stderr, "  Normalized:   %d rows\n", result.Normalized)
	fmt.Fprintf(os.Stderr, "  Duration:     %v\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "  Output:       %s\n", out)
	fmt.Fprintf(os.Stderr, "\n")

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Rerun with --resume to continue from %s\n\n", out)
		return fmt.Errorf("classification interrupted: %w", runErr)
	}
	if result.Failed > 0 {
		fmt.Fprintf(os.Stderr, "%d rows failed; rerun with --resume to retry them\n\n", result.Failed)
	}
	return nil
}

// checkProvider fails fast when rows are waiting for a verdict and the
// classifier cannot be reached
func checkProvider(ctx context.Context, provider llm.Provider, table *model.ResultTable) error {
	pending := false
	for _, record := range table.Unlabeled() {
		if record.HasContent() {
			pending = true
			break
		}
	}
	if !pending {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, providerCheckTimeout)
	defer cancel()
	if !provider.IsAvailable(ctx) {
		return fmt.Errorf("classifier %s is not available; check its credentials and endpoint", provider.Name())
	}
	return nil
}

func readRuleSpec(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read rule specification: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("rule specification %s: %w", path, pipeline.ErrEmptyRuleSpec)
	}
	return string(data), nil
}

// defaultOutputPath maps papers.csv to papers_labeled.csv
func defaultOutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "_labeled" + ext
}

func printProgress(done, total int, outcome model.Outcome) {
	status := "ok"
	switch {
	case outcome.Failed():
		status = "failed: " + outcome.Err.Error()
	case outcome.CacheHit:
		status = "cached"
	case outcome.StatusCode >= 400:
		status = fmt.Sprintf("status %d", outcome.StatusCode)
	}
	fmt.Fprintf(os.Stderr, "  [%d/%d] ID %d %s\n", done, total, outcome.ID, status)
}

// serveMetrics exposes reg on addr until the returned function is called
func serveMetrics(addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
