package detail

import (
	"context"
	"errors"
	"log/slog"

	"github.com/wmelnik/carscan/app/marketplace"
)

// Fetcher pulls full item details for a set of offer ids in fixed-size
// chunks. Chunks are processed strictly in sequence; the provider API is
// not safe for concurrent use.
type Fetcher struct {
	client marketplace.DetailClient
}

func NewFetcher(client marketplace.DetailClient) *Fetcher {
	return &Fetcher{client: client}
}

// Batches starts a scan over ids. The returned iterator is one-shot.
func (f *Fetcher) Batches(ids []string) *Batches {
	limit := f.client.DetailLimit()
	var chunks [][]string
	for start := 0; start < len(ids); start += limit {
		end := min(start+limit, len(ids))
		chunks = append(chunks, ids[start:end])
	}

	return &Batches{
		client: f.client,
		chunks: chunks,
	}
}

// Batches yields one detail-batch result per chunk of ids.
type Batches struct {
	client marketplace.DetailClient
	chunks [][]string
	next   int
}

func (b *Batches) HasMore() bool {
	return b.next < len(b.chunks)
}

// Next fetches details for the next chunk. A transport failure of the whole
// batched call degrades to one-item-at-a-time calls so a single bad id
// cannot block the rest of the chunk; an id that also fails individually is
// logged and skipped. Any other error aborts the scan.
func (b *Batches) Next(ctx context.Context) ([]marketplace.OfferDetail, error) {
	chunk := b.chunks[b.next]
	b.next++

	slog.Info("Fetching item details", "chunk", b.next, "chunks", len(b.chunks), "ids", len(chunk))

	details, err := b.client.GetDetails(ctx, chunk)
	if err == nil {
		return details, nil
	}

	var transportErr *marketplace.TransportError
	if !errors.As(err, &transportErr) {
		return nil, err
	}

	slog.Warn("Batched detail call failed, falling back to per-item fetch",
		"chunk", b.next, "error", err)

	details = details[:0]
	for _, id := range chunk {
		single, err := b.client.GetDetails(ctx, []string{id})
		if err != nil {
			if errors.As(err, &transportErr) {
				slog.Warn("Could not fetch item info, skipping", "id", id, "error", err)
				continue
			}
			return nil, err
		}
		details = append(details, single...)
	}

	return details, nil
}
