package listing

import (
	"context"
	"errors"
	"testing"

	"github.com/wmelnik/carscan/app/marketplace"
)

type fakeListingClient struct {
	pages   []marketplace.ListingPage
	limit   int
	calls   int
	offsets []int
}

func (f *fakeListingClient) Search(ctx context.Context, params map[string]string, offset, limit int) (marketplace.ListingPage, error) {
	f.offsets = append(f.offsets, offset)
	if f.calls >= len(f.pages) {
		return marketplace.ListingPage{}, errors.New("no more pages configured")
	}
	page := f.pages[f.calls]
	f.calls++
	return page, nil
}

func (f *fakeListingClient) SearchLimit() int {
	if f.limit == 0 {
		return 100
	}
	return f.limit
}

func summaries(ids ...string) []marketplace.ListingSummary {
	out := make([]marketplace.ListingSummary, len(ids))
	for i, id := range ids {
		out[i] = marketplace.ListingSummary{ID: id}
	}
	return out
}

func TestPagerMergesPromotedAndRegular(t *testing.T) {
	client := &fakeListingClient{pages: []marketplace.ListingPage{
		{Promoted: summaries("p1"), Regular: summaries("r1", "r2"), TotalCount: 3},
	}}
	pager := NewPager(client, nil)

	items, err := pager.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"p1", "r1", "r2"}
	if len(items) != len(want) {
		t.Fatalf("Expected %d items, got %d", len(want), len(items))
	}
	for i, id := range want {
		if items[i].ID != id {
			t.Errorf("Item %d: expected %s, got %s", i, id, items[i].ID)
		}
	}
	if pager.HasMore() {
		t.Error("Pager should be exhausted")
	}
}

func TestPagerAdvancesOffsetByPageSize(t *testing.T) {
	client := &fakeListingClient{pages: []marketplace.ListingPage{
		{Regular: summaries("1", "2"), TotalCount: 5},
		{Regular: summaries("3", "4"), TotalCount: 5},
		{Regular: summaries("5"), TotalCount: 5},
	}}
	pager := NewPager(client, nil)

	items, err := pager.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(items) != 5 {
		t.Errorf("Expected 5 items, got %d", len(items))
	}
	wantOffsets := []int{0, 2, 4}
	if len(client.offsets) != len(wantOffsets) {
		t.Fatalf("Expected %d calls, got %d (%v)", len(wantOffsets), len(client.offsets), client.offsets)
	}
	for i, offset := range wantOffsets {
		if client.offsets[i] != offset {
			t.Errorf("Call %d: expected offset %d, got %d", i, offset, client.offsets[i])
		}
	}
}

func TestPagerUsesLatestReportedTotal(t *testing.T) {
	// Total grows mid-scan: new postings arrived. The pager must keep going
	// until the latest total is reached.
	client := &fakeListingClient{pages: []marketplace.ListingPage{
		{Regular: summaries("1", "2"), TotalCount: 2},
	}}
	client.pages[0].TotalCount = 4
	client.pages = append(client.pages,
		marketplace.ListingPage{Regular: summaries("3", "4"), TotalCount: 4})

	pager := NewPager(client, nil)
	items, err := pager.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(items) != 4 {
		t.Errorf("Expected 4 items after total grew, got %d", len(items))
	}
}

func TestPagerStopsOnEmptyPage(t *testing.T) {
	// A shrinking total can leave the offset below the last reported count
	// forever; an empty page terminates the scan.
	client := &fakeListingClient{pages: []marketplace.ListingPage{
		{Regular: summaries("1"), TotalCount: 10},
		{TotalCount: 10},
	}}
	pager := NewPager(client, nil)

	items, err := pager.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Errorf("Expected 1 item, got %d", len(items))
	}
}

func TestPagerPropagatesSearchError(t *testing.T) {
	client := &fakeListingClient{}
	pager := NewPager(client, nil)

	if _, err := pager.Collect(context.Background()); err == nil {
		t.Error("Expected search error to propagate")
	}
	if pager.HasMore() {
		t.Error("Pager should be done after an error")
	}
}
