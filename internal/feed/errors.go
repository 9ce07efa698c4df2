package feed

import "fmt"

// FetchError means the upstream feed was unreachable or returned something
// unusable. A cycle that sees one is skipped without touching the ledger.
type FetchError struct {
	Stage  string // "request" | "status" | "decode" | "graphql"
	Status int    // HTTP status when Stage == "status"
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch activities: %s: http %d: %v", e.Stage, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch activities: %s: %v", e.Stage, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
