package model

import (
	"fmt"
	"strings"
)

// Record is one source row: an article abstract with its cohort metadata
type Record struct {
	ID       int               `json:"id"`              // Stable identifier, unique within a batch
	Field    string            `json:"field"`           // Research field (e.g., "Physics")
	Cohort   Cohort            `json:"cohort"`          // Citation cohort (high/low)
	Title    string            `json:"title"`           // Article title
	Abstract string            `json:"abstract"`        // Text body sent to the classifier (may be empty)
	Extra    map[string]string `json:"extra,omitempty"` // Additional source columns carried through
}

// HasContent reports whether the record has a non-blank abstract
func (r Record) HasContent() bool {
	return strings.TrimSpace(r.Abstract) != ""
}

// Cohort is the citation-count group a record belongs to
type Cohort string

const (
	CohortHigh Cohort = "high"
	CohortLow  Cohort = "low"
)

// ParseCohort parses a cohort value case-insensitively
func ParseCohort(s string) (Cohort, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(CohortHigh):
		return CohortHigh, nil
	case string(CohortLow):
		return CohortLow, nil
	default:
		return "", fmt.Errorf("unknown cohort %q (expected high or low)", s)
	}
}
