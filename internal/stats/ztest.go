// Package stats compares rule prevalence between the high and low citation cohorts.
package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ppiankov/rulelabel/internal/model"
)

// RuleComparison is the two-proportion z-test of one rule's yes rate
type RuleComparison struct {
	Rule      string
	HighYes   int
	HighTotal int
	LowYes    int
	LowTotal  int
	Z         float64 // NaN when undefined
	PValue    float64 // Two-sided; NaN when undefined
}

// Compare runs a pooled two-proportion z-test per rule. Every label counts
// toward its cohort's total; only explicit yes verdicts count as successes.
func Compare(high, low []model.RuleLabel, rules []string) []RuleComparison {
	out := make([]RuleComparison, 0, len(rules))
	for _, rule := range rules {
		c := RuleComparison{
			Rule:      rule,
			HighYes:   countYes(high, rule),
			HighTotal: len(high),
			LowYes:    countYes(low, rule),
			LowTotal:  len(low),
		}
		c.Z, c.PValue = proportionsZTest(c.HighYes, c.HighTotal, c.LowYes, c.LowTotal)
		out = append(out, c)
	}
	return out
}

// Split returns the labels of rows with content, grouped by cohort
func Split(table *model.ResultTable) (high, low []model.RuleLabel) {
	return table.Labels(model.CohortHigh), table.Labels(model.CohortLow)
}

// Eligible returns the labels of every row with content
func Eligible(table *model.ResultTable) []model.RuleLabel {
	return table.Labels("")
}

func countYes(labels []model.RuleLabel, rule string) int {
	n := 0
	for _, l := range labels {
		if l.Get(rule) == model.VerdictYes {
			n++
		}
	}
	return n
}

func proportionsZTest(yes1, n1, yes2, n2 int) (z, p float64) {
	if n1 == 0 || n2 == 0 {
		return math.NaN(), math.NaN()
	}
	p1 := float64(yes1) / float64(n1)
	p2 := float64(yes2) / float64(n2)
	pooled := float64(yes1+yes2) / float64(n1+n2)
	variance := pooled * (1 - pooled) * (1/float64(n1) + 1/float64(n2))
	if variance <= 0 {
		return math.NaN(), math.NaN()
	}
	z = (p1 - p2) / math.Sqrt(variance)
	p = math.Erfc(math.Abs(z) / math.Sqrt2)
	return z, p
}

// WriteCSV writes the comparisons as UTF-8 CSV with a byte-order mark
func WriteCSV(w io.Writer, results []RuleComparison) error {
	encoder := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
	writer := csv.NewWriter(encoder)

	header := []string{"Rule", "Z-statistic", "P-value", "HighYes", "HighTotal", "LowYes", "LowTotal"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range results {
		record := []string{
			r.Rule,
			formatFloat(r.Z),
			formatFloat(r.PValue),
			strconv.Itoa(r.HighYes),
			strconv.Itoa(r.HighTotal),
			strconv.Itoa(r.LowYes),
			strconv.Itoa(r.LowTotal),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write %s: %w", r.Rule, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return encoder.Close()
}

func formatFloat(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
