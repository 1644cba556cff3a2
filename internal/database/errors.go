package database

import "fmt"

// IntegrityError reports a re-ingested post whose immutable fields diverge
// from the stored row. It indicates a violated core invariant and halts
// the pipeline rather than being retried.
type IntegrityError struct {
	PostID string
	Field  string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("store integrity violation: post %s has divergent %s", e.PostID, e.Field)
}
