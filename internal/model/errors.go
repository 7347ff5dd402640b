package model

import "fmt"

// IdentityConflictError reports an identifier that appears more than once
type IdentityConflictError struct {
	ID     int
	Source string // Where the duplicate was found: a file, "records" or "outcomes"
	Rows   []int  // 1-based data rows holding the identifier, when known
}

func (e *IdentityConflictError) Error() string {
	if len(e.Rows) > 0 {
		return fmt.Sprintf("duplicate identifier %d in %s (rows %v)", e.ID, e.Source, e.Rows)
	}
	return fmt.Sprintf("duplicate identifier %d in %s", e.ID, e.Source)
}
