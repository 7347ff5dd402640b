package model

import (
	"strconv"
	"strings"
)

// RuleCount is the number of rules in the classification rule set
const RuleCount = 28

const rulePrefix = "rule"

// Verdict is the value assigned to a rule for one record
type Verdict string

const (
	VerdictYes   Verdict = "yes"
	VerdictNo    Verdict = "no"
	VerdictUnset Verdict = "" // Classifier did not produce a verdict
)

// ParseVerdict normalizes a textual verdict. Anything other than yes/no is unset.
func ParseVerdict(s string) Verdict {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes":
		return VerdictYes
	case "no":
		return VerdictNo
	default:
		return VerdictUnset
	}
}

// IsSet reports whether the verdict is an explicit yes or no
func (v Verdict) IsSet() bool {
	return v == VerdictYes || v == VerdictNo
}

// RuleName returns the rule key for a 1-based rule index
func RuleName(n int) string {
	return rulePrefix + strconv.Itoa(n)
}

// RuleIndex parses a rule key ("rule12") into its 1-based index
func RuleIndex(name string) (int, bool) {
	if !strings.HasPrefix(name, rulePrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(name[len(rulePrefix):])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// RuleNames returns rule1..ruleN
func RuleNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = RuleName(i + 1)
	}
	return names
}

// RuleLabel maps rule names to verdicts. Absent keys are unset.
type RuleLabel map[string]Verdict

// Get returns the verdict for a rule (unset if absent)
func (l RuleLabel) Get(rule string) Verdict {
	if l == nil {
		return VerdictUnset
	}
	return l[rule]
}

// Clone returns an independent copy without unset entries
func (l RuleLabel) Clone() RuleLabel {
	out := make(RuleLabel, len(l))
	for k, v := range l {
		if v.IsSet() {
			out[k] = v
		}
	}
	return out
}

// Empty reports whether no rule carries an explicit verdict
func (l RuleLabel) Empty() bool {
	for _, v := range l {
		if v.IsSet() {
			return false
		}
	}
	return true
}

// Equal compares explicit verdicts of two labels
func (l RuleLabel) Equal(other RuleLabel) bool {
	a, b := l.Clone(), other.Clone()
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// MaxRule returns the highest rule index carrying an explicit verdict
func (l RuleLabel) MaxRule() int {
	highest := 0
	for k, v := range l {
		if !v.IsSet() {
			continue
		}
		if n, ok := RuleIndex(k); ok && n > highest {
			highest = n
		}
	}
	return highest
}
