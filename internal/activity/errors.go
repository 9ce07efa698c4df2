package activity

import "fmt"

// NormalizationError reports a single feed row that could not be turned
// into an Activity. It never aborts a batch.
type NormalizationError struct {
	ID     string // may be empty when the row has no id
	Reason string
}

func (e *NormalizationError) Error() string {
	if e.ID == "" {
		return "normalize activity: " + e.Reason
	}
	return fmt.Sprintf("normalize activity %s: %s", e.ID, e.Reason)
}
