package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"time"

	"github.com/wmelnik/carscan/app/database"
	"github.com/wmelnik/carscan/app/detail"
	"github.com/wmelnik/carscan/app/filter"
	"github.com/wmelnik/carscan/app/listing"
	"github.com/wmelnik/carscan/app/marketplace"
	"github.com/wmelnik/carscan/app/migration"
	"github.com/wmelnik/carscan/app/offer"
	"github.com/wmelnik/carscan/app/refdata"
)

// filterTemplate is the desired-filter selection applied to every
// criterion, in human-readable terms. The translator maps it onto each
// category's current parameter vocabulary.
var filterTemplate = map[string]string{
	"Offer type": "sale",
	"Condition":  "used",
}

var baseSearchParams = map[string]string{
	"fallback": "false",
	"include":  "-all,items,searchMeta",
	"sort":     "-startTime",
}

// Service runs one ingestion pass: listing scan per criterion, dedup
// against the store, detail fetch for new ids only, merge, insert,
// shard write.
// Execution is strictly sequential.
type Service struct {
	criteria   *refdata.CriteriaStore
	regions    *refdata.RegionStore
	translator *filter.Translator
	listings   marketplace.ListingClient
	details    *detail.Fetcher
	store      *database.ShardStore
	metaRepo   *database.MetadataRepository
	host       string
	timestamp  time.Time
}

func NewService(criteria *refdata.CriteriaStore, regions *refdata.RegionStore,
	translator *filter.Translator, listings marketplace.ListingClient, details *detail.Fetcher,
	store *database.ShardStore, metaRepo *database.MetadataRepository, host string, ts time.Time) *Service {
	return &Service{
		criteria:   criteria,
		regions:    regions,
		translator: translator,
		listings:   listings,
		details:    details,
		store:      store,
		metaRepo:   metaRepo,
		host:       host,
		timestamp:  ts.UTC().Truncate(time.Millisecond),
	}
}

func (s *Service) Run(ctx context.Context) error {
	delta, err := s.reportLastRun()
	if err != nil {
		return err
	}

	var items []marketplace.ListingSummary
	for _, crit := range s.criteria.All() {
		params, err := s.searchParams(ctx, crit, delta)
		if err != nil {
			return err
		}

		critItems, err := listing.NewPager(s.listings, params).Collect(ctx)
		if err != nil {
			return err
		}
		items = append(items, critItems...)
	}

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}

	existing := s.store.SearchExistingIDs(ids)
	if err := s.store.UpdateLastSpotted(existing, s.timestamp); err != nil {
		return err
	}

	var newItems []marketplace.ListingSummary
	for _, item := range items {
		if _, ok := existing[item.ID]; !ok {
			newItems = append(newItems, item)
		}
	}

	builders := offer.ToRecords(s.store.Provider(), newItems, s.timestamp)
	if err := s.fetchDetails(ctx, newItems, builders); err != nil {
		return err
	}

	records := make([]database.OfferRecord, 0, len(builders))
	invalid := 0
	for id, b := range builders {
		if !b.Valid() {
			invalid++
			slog.Warn("Skipping invalid offer", "id", id, "reason", b.Reason())
			continue
		}
		records = append(records, b.Record())
	}

	if err := s.store.InsertMultiple(records); err != nil {
		return err
	}

	// Shards must hit disk before the run marker advances; otherwise a
	// failed write would narrow the next run's window past unpersisted
	// listings.
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("failed to persist offer store: %w", err)
	}

	err = s.metaRepo.Upsert(database.RunMetadata{
		SchemaVersion: migration.LatestVersion,
		Timestamp:     s.timestamp,
		Host:          s.host,
	})
	if err != nil {
		return err
	}

	slog.Info("Run completed",
		"total", len(items),
		"existing", len(existing),
		"new", len(records),
		"invalid", invalid)

	return nil
}

// reportLastRun logs the previous run and returns the elapsed time since
// it. On a first run the delta is effectively unbounded, which makes the
// window selection fall back to the widest available filter.
func (s *Service) reportLastRun() (time.Duration, error) {
	meta, err := s.metaRepo.Get()
	if err != nil {
		return 0, err
	}
	if meta == nil {
		slog.Info("First run")
		return time.Duration(math.MaxInt64), nil
	}

	slog.Info("Last run", "at", meta.Timestamp, "host", meta.Host)
	return s.timestamp.Sub(meta.Timestamp), nil
}

func (s *Service) searchParams(ctx context.Context, crit refdata.Criterion, delta time.Duration) (map[string]string, error) {
	params := maps.Clone(baseSearchParams)

	translated, err := s.translator.TransformFilters(ctx, crit.CategoryID, filterTemplate)
	if err != nil {
		return nil, err
	}
	maps.Copy(params, translated)

	window, err := s.translator.MinWindowOver(ctx, crit.CategoryID, delta)
	if err != nil {
		return nil, err
	}

	params["category.id"] = crit.CategoryID
	params["startingTime"] = filter.FormatISODuration(window)

	return params, nil
}

func (s *Service) fetchDetails(ctx context.Context, newItems []marketplace.ListingSummary, builders map[string]*offer.Builder) error {
	ids := make([]string, 0, len(builders))
	seen := make(map[string]struct{}, len(builders))
	for _, item := range newItems {
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}
		ids = append(ids, item.ID)
	}

	batches := s.details.Batches(ids)
	for batches.HasMore() {
		details, err := batches.Next(ctx)
		if err != nil {
			return err
		}
		for _, d := range details {
			if b, ok := builders[d.ID]; ok {
				b.UpdateFromDetail(d, s.regions)
			}
		}
	}

	return nil
}
