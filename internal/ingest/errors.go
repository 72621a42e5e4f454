package ingest

import "fmt"

// FormatError reports a dataset whose content could not be interpreted,
// as opposed to an I/O failure reading it. Source carries the dataset
// path so multi-source failures stay attributable.
type FormatError struct {
	Source string
	Detail string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Source, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Detail)
}

func (e *FormatError) Unwrap() error { return e.Err }
