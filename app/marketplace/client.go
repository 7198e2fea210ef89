package marketplace

import (
	"context"
	"fmt"
)

// ListingClient is the paginated search feed.
type ListingClient interface {
	Search(ctx context.Context, params map[string]string, offset, limit int) (ListingPage, error)
	// SearchLimit is the page-size ceiling dictated by the remote API.
	SearchLimit() int
}

// FilterClient exposes the per-category dynamic filter vocabulary.
type FilterClient interface {
	GetFilters(ctx context.Context, categoryID string) ([]FilterOption, error)
}

// DetailClient is the item-level detail API. Calls may fail as a whole
// with a TransportError; batch size is bounded by DetailLimit.
type DetailClient interface {
	GetDetails(ctx context.Context, ids []string) ([]OfferDetail, error)
	DetailLimit() int
}

// TransportError marks a remote call that failed at the transport level.
// Whole-chunk detail failures wrapped in it are recovered by the per-item
// fallback; everywhere else it aborts the run.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AuthError is fatal: the token is invalid or fetching one is disabled.
// It is surfaced to the top level before any store write happens.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}
