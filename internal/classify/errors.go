package classify

import "fmt"

// TransientCallError is one failed attempt: the provider returned an error or
// a server-side status. It is retried and never surfaces on its own.
type TransientCallError struct {
	Attempt    int
	StatusCode int
	Err        error
}

func (e *TransientCallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("attempt %d: %v", e.Attempt, e.Err)
	}
	return fmt.Sprintf("attempt %d: server returned status %d", e.Attempt, e.StatusCode)
}

func (e *TransientCallError) Unwrap() error {
	return e.Err
}

// ClassificationError is the terminal failure after the retry budget is spent
type ClassificationError struct {
	Attempts int
	Last     *TransientCallError
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ClassificationError) Unwrap() error {
	if e.Last == nil {
		return nil
	}
	return e.Last
}
