package dossier

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyQuery    = errors.New("query is empty")
	ErrEmptyPlan     = errors.New("planner produced no searches")
	ErrNoSummaries   = errors.New("every search failed")
	ErrEmptyReport   = errors.New("writer produced an empty report")
	ErrEmptySummary  = errors.New("search agent produced an empty summary")
	ErrNotConfigured = errors.New("not configured")
)

// SearchError records a search that failed after all attempts.
type SearchError struct {
	Item     WebSearchItem
	Attempts int
	Err      error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search %q failed after %d attempt(s): %v", e.Item.Query, e.Attempts, e.Err)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}
