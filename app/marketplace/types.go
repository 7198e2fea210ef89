package marketplace

import (
	"time"
)

// Typed payloads at the ingestion boundary. The remote SDK objects are
// translated into these structs once, by the client adapter; everything
// downstream works with plain Go values.

type ListingSummary struct {
	ID        string
	Title     string
	URL       string
	Price     string // raw amount as reported by the listing feed
	StartTime time.Time
}

type ListingPage struct {
	Promoted   []ListingSummary
	Regular    []ListingSummary
	TotalCount int // total available results as reported by this response
}

// Items returns the page contents in feed order, promoted entries first.
// Promoted entries are not deduplicated against regular ones here; the
// existing-id check downstream absorbs any overlap.
func (p ListingPage) Items() []ListingSummary {
	items := make([]ListingSummary, 0, len(p.Promoted)+len(p.Regular))
	items = append(items, p.Promoted...)
	items = append(items, p.Regular...)
	return items
}

type OfferDetail struct {
	ID         string
	Title      string
	Price      string
	URL        string
	ImageURL   string
	Location   string
	RegionID   int
	Attributes map[string]string
}

type FilterValue struct {
	ID     string
	Label  string
	Window time.Duration // non-zero for duration-valued entries ("posted within")
}

type FilterOption struct {
	ID     string // provider parameter name, e.g. "parameter.11323"
	Name   string // human-readable declared name
	Values []FilterValue
}
