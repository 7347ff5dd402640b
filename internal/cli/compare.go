package cli

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/rulelabel/internal/model"
	"github.com/ppiankov/rulelabel/internal/stats"
	"github.com/ppiankov/rulelabel/internal/store"
)

var (
	highFile    string
	lowFile     string
	compareOut  string
	significant float64
)

// compareCmd represents the compare command
var compareCmd = &cobra.Command{
	Use:   "compare [labeled.csv]",
	Short: "Compare rule prevalence between the high and low citation cohorts",
	Long: `Compare runs a two-proportion z-test per rule on labeled tables: the share of
yes verdicts among highly cited abstracts against the share among less cited
ones. Only rows with an abstract are counted.

Give either one table whose Citation column holds both cohorts, or one table
per cohort with --high and --low.

Example:
  rulelabel compare labeled.csv
  rulelabel compare --high physics_high.csv --low physics_low.csv --out ztest.csv`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)

	compareCmd.Flags().StringVar(&highFile, "high", "", "labeled table of the high citation cohort")
	compareCmd.Flags().StringVar(&lowFile, "low", "", "labeled table of the low citation cohort")
	compareCmd.Flags().StringVarP(&compareOut, "out", "o", "", "write results as CSV to this file (default: stdout)")
	compareCmd.Flags().Float64Var(&significant, "alpha", 0.05, "significance level used for the summary")
}

func runCompare(cmd *cobra.Command, args []string) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	load := store.LoadOptions{IDBase: cfg.Input.IDBase}

	var high, low []model.RuleLabel
	maxRule := model.RuleCount
	switch {
	case len(args) == 1 && highFile == "" && lowFile == "":
		table, err := readTable(args[0], load)
		if err != nil {
			return err
		}
		high, low = stats.Split(table)
		maxRule = max(maxRule, table.MaxRule())
	case len(args) == 0 && highFile != "" && lowFile != "":
		highTable, err := readTable(highFile, load)
		if err != nil {
			return err
		}
		lowTable, err := readTable(lowFile, load)
		if err != nil {
			return err
		}
		high, low = stats.Eligible(highTable), stats.Eligible(lowTable)
		maxRule = max(maxRule, highTable.MaxRule(), lowTable.MaxRule())
	default:
		return errors.New("give either one labeled table or both --high and --low")
	}

	results := stats.Compare(high, low, model.RuleNames(maxRule))

	var w io.Writer = os.Stdout
	if compareOut != "" {
		f, err := os.Create(compareOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", compareOut, err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close %s: %w", compareOut, closeErr)
			}
		}()
		w = f
	}
	if err := stats.WriteCSV(w, results); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n  High cohort:  %d abstracts\n", len(high))
	fmt.Fprintf(os.Stderr, "  Low cohort:   %d abstracts\n", len(low))
	fmt.Fprintf(os.Stderr, "  Significant at %.2f: %d of %d rules\n\n", significant, countSignificant(results, significant), len(results))
	return nil
}

func readTable(path string, opts store.LoadOptions) (*model.ResultTable, error) {
	opts.Name = path
	return store.ReadFile(path, opts)
}

func countSignificant(results []stats.RuleComparison, alpha float64) int {
	n := 0
	for _, r := range results {
		if !math.IsNaN(r.PValue) && r.PValue < alpha {
			n++
		}
	}
	return n
}
