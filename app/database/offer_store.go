package database

import (
	"fmt"
	"time"
)

// OfferStore is the logical in-memory offer table. At batch-job scale the
// whole record set is loaded up front, mutated in place and saved back on
// close; it is not safe for concurrent writers.
type OfferStore struct {
	provider string
	records  map[OfferKey]OfferRecord
}

func NewOfferStore(provider string) *OfferStore {
	return &OfferStore{
		provider: provider,
		records:  make(map[OfferKey]OfferRecord),
	}
}

func (s *OfferStore) Provider() string {
	return s.provider
}

// SearchExistingIDs returns the subset of ids already present for the
// store's provider.
func (s *OfferStore) SearchExistingIDs(ids []string) map[string]struct{} {
	existing := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := s.records[OfferKey{Provider: s.provider, ID: id}]; ok {
			existing[id] = struct{}{}
		}
	}
	return existing
}

// UpdateLastSpotted touches last_spotted for exactly the given ids. The
// touch is idempotent and never moves last_spotted backwards.
func (s *OfferStore) UpdateLastSpotted(ids map[string]struct{}, ts time.Time) error {
	for id := range ids {
		key := OfferKey{Provider: s.provider, ID: id}
		record, ok := s.records[key]
		if !ok {
			return fmt.Errorf("cannot touch unknown offer %s", id)
		}
		if ts.After(record.LastSpotted) {
			record.LastSpotted = ts
			s.records[key] = record
		}
	}
	return nil
}

// InsertMultiple appends new records. Callers must have excluded existing
// ids already; a duplicate key is an error, as is a record violating the
// spotted-timestamp invariant.
func (s *OfferStore) InsertMultiple(records []OfferRecord) error {
	for _, record := range records {
		if err := record.Validate(); err != nil {
			return err
		}
		key := record.Key()
		if _, ok := s.records[key]; ok {
			return fmt.Errorf("duplicate offer key %s/%s", key.Provider, key.ID)
		}
		s.records[key] = record
	}
	return nil
}

func (s *OfferStore) Get(id string) (OfferRecord, bool) {
	record, ok := s.records[OfferKey{Provider: s.provider, ID: id}]
	return record, ok
}

func (s *OfferStore) All() []OfferRecord {
	out := make([]OfferRecord, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, record)
	}
	return out
}

func (s *OfferStore) Len() int {
	return len(s.records)
}
