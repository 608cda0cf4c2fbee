package discovery

import "fmt"

// SoftQueryError reports a failed read. Callers keep working with the prior
// snapshot, which is returned alongside it.
type SoftQueryError struct {
	Op  string
	Err error
}

func (e *SoftQueryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SoftQueryError) Unwrap() error {
	return e.Err
}
