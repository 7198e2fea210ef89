package database

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// shardFile is the on-disk form of one per-period shard.
type shardFile struct {
	Offers []OfferRecord `json:"offers"`
}

// ShardStore gives the logical offer table a time-sharded physical layout:
// one file per calendar day of first_spotted, grouped by year, for write
// locality and bounded file size. Load unions every shard into the table;
// Close redistributes the table back out, overwriting each touched shard's
// contents entirely.
type ShardStore struct {
	*OfferStore
	root string
}

func NewShardStore(store *OfferStore, root string) *ShardStore {
	return &ShardStore{
		OfferStore: store,
		root:       root,
	}
}

// ShardPath returns the shard file holding records first spotted at ts.
func (s *ShardStore) ShardPath(ts time.Time) string {
	day := ts.UTC()
	return filepath.Join(s.root, day.Format("2006"), day.Format("01-02")+".json")
}

// Load reads every shard under the root into the in-memory table. A missing
// root is a fresh store, not an error.
func (s *ShardStore) Load() error {
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return nil
	}

	paths, err := filepath.Glob(filepath.Join(s.root, "*", "*.json"))
	if err != nil {
		return fmt.Errorf("failed to list shards: %w", err)
	}

	for _, path := range paths {
		records, err := readShard(path)
		if err != nil {
			return err
		}
		if err := s.InsertMultiple(records); err != nil {
			return fmt.Errorf("shard %s: %w", path, err)
		}
	}

	slog.Debug("Offer shards loaded", "shards", len(paths), "records", s.Len())

	return nil
}

// Close writes the table's current contents back out to the per-period
// shard files. Every shard that currently owns records is rewritten whole.
func (s *ShardStore) Close() error {
	byShard := make(map[string][]OfferRecord)
	for _, record := range s.All() {
		path := s.ShardPath(record.FirstSpotted)
		byShard[path] = append(byShard[path], record)
	}

	for path, records := range byShard {
		// Deterministic shard contents keep the data dir diff-friendly.
		sort.Slice(records, func(i, j int) bool {
			if records[i].Provider != records[j].Provider {
				return records[i].Provider < records[j].Provider
			}
			return records[i].ID < records[j].ID
		})
		if err := writeShard(path, records); err != nil {
			return err
		}
	}

	slog.Debug("Offer shards saved", "shards", len(byShard), "records", s.Len())

	return nil
}

func readShard(path string) ([]OfferRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shard %s: %w", path, err)
	}

	var shard shardFile
	if err := json.Unmarshal(data, &shard); err != nil {
		return nil, fmt.Errorf("failed to parse shard %s: %w", path, err)
	}

	return shard.Offers, nil
}

func writeShard(path string, records []OfferRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create shard dir: %w", err)
	}

	data, err := json.MarshalIndent(shardFile{Offers: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode shard %s: %w", path, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write shard %s: %w", path, err)
	}

	return nil
}
