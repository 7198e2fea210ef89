package listing

import (
	"context"
	"log/slog"

	"github.com/wmelnik/carscan/app/marketplace"
)

// Pager walks the paginated listing search for one criterion. Pages are
// strictly sequential; a Pager is a one-shot scan and cannot be restarted.
type Pager struct {
	client marketplace.ListingClient
	params map[string]string
	offset int
	done   bool
}

func NewPager(client marketplace.ListingClient, params map[string]string) *Pager {
	return &Pager{
		client: client,
		params: params,
	}
}

// HasMore reports whether another page may be available. It is true before
// the first call and goes false once the feed's reported total is reached.
func (p *Pager) HasMore() bool {
	return !p.done
}

// Next fetches one page and returns its entries in feed order, promoted
// before regular. The feed's total count is re-read from every response so
// postings arriving mid-scan extend the scan instead of truncating it.
func (p *Pager) Next(ctx context.Context) ([]marketplace.ListingSummary, error) {
	page, err := p.client.Search(ctx, p.params, p.offset, p.client.SearchLimit())
	if err != nil {
		p.done = true
		return nil, err
	}

	items := page.Items()

	slog.Info("Listing page fetched",
		"total", page.TotalCount,
		"count", len(items),
		"offset", p.offset)

	p.offset += len(items)
	if len(items) == 0 || p.offset >= page.TotalCount {
		p.done = true
	}

	return items, nil
}

// Collect drains the pager into a flat list of summaries.
func (p *Pager) Collect(ctx context.Context) ([]marketplace.ListingSummary, error) {
	var items []marketplace.ListingSummary
	for p.HasMore() {
		page, err := p.Next(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page...)
	}
	return items, nil
}
