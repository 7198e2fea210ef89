package migration

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/wmelnik/carscan/app/database"
	"github.com/wmelnik/carscan/app/offer"
)

// LatestVersion is the current on-disk schema version.
//
// v1: flat cars.json (vehicle table + meta), tokens in tokens.yaml
// v2: legacy shards under vehicle/, meta still in cars.json
// v3: normalized shards under offers/, metadata and tokens in state.db
const LatestVersion = 3

// step is one link of the strict linear migration chain: v(to) is only
// reachable from v(from).
type step struct {
	from  int
	to    int
	apply func(*Migrator) error
}

// Migrator detects the on-disk schema version and replays older layouts
// into the current one. Old layouts are left in place as a backup; nothing
// is cleaned up automatically.
type Migrator struct {
	dataDir  string
	provider string
	host     string
	now      func() time.Time
}

func NewMigrator(dataDir, provider, host string) *Migrator {
	return &Migrator{
		dataDir:  dataDir,
		provider: provider,
		host:     host,
		now:      time.Now,
	}
}

func (m *Migrator) flatPath() string        { return filepath.Join(m.dataDir, "cars.json") }
func (m *Migrator) legacyShardRoot() string { return filepath.Join(m.dataDir, "vehicle") }
func (m *Migrator) shardRoot() string       { return filepath.Join(m.dataDir, "offers") }
func (m *Migrator) statePath() string       { return filepath.Join(m.dataDir, "state.db") }
func (m *Migrator) tokenPath() string       { return filepath.Join(m.dataDir, "tokens.yaml") }

var steps = []step{
	{from: 1, to: 2, apply: (*Migrator).migrateFlatToShards},
	{from: 2, to: 3, apply: (*Migrator).migrateShardsToCurrent},
}

// Detect probes for version-specific markers. Absence of any marker means
// a fresh install (version 0). Markers that contradict each other are a
// fatal ambiguity; the migrator never guesses.
func (m *Migrator) Detect() (int, error) {
	if _, err := os.Stat(m.statePath()); err == nil {
		version, err := m.probeStateVersion()
		if err != nil {
			return 0, err
		}
		if version != LatestVersion {
			return 0, fmt.Errorf("state store reports schema version %d, expected %d", version, LatestVersion)
		}
		return version, nil
	}

	if info, err := os.Stat(m.legacyShardRoot()); err == nil && info.IsDir() {
		return 2, nil
	}

	if _, err := os.Stat(m.flatPath()); err == nil {
		flat, err := readFlatFile(m.flatPath())
		if err != nil {
			return 0, err
		}
		if flat.Meta != nil && flat.Meta.Version > 1 {
			return 0, fmt.Errorf("flat store claims version %d but the matching layout is missing", flat.Meta.Version)
		}
		return 1, nil
	}

	return 0, nil
}

// probeStateVersion reads the recorded schema version without running any
// schema setup; the probe must not write.
func (m *Migrator) probeStateVersion() (int, error) {
	db, err := sql.Open("sqlite", m.statePath())
	if err != nil {
		return 0, fmt.Errorf("failed to open state store for probing: %w", err)
	}
	defer db.Close()

	var version int
	err = db.QueryRow(`SELECT schema_version FROM run_metadata WHERE id = 1`).Scan(&version)
	if err == sql.ErrNoRows {
		// The state store itself is the current-layout marker; a missing
		// metadata row just means no run has completed yet.
		return LatestVersion, nil
	}
	if err != nil {
		return 0, fmt.Errorf("state store exists but its version cannot be read: %w", err)
	}

	return version, nil
}

// CheckMigrate runs the migration chain from the detected version up to the
// latest, strictly in order, then rewrites the run metadata. At the latest
// version (or on a fresh install) it is a no-op beyond the version probe,
// so repeated runs are idempotent and cheap.
func (m *Migrator) CheckMigrate() error {
	version, err := m.Detect()
	if err != nil {
		return err
	}

	switch version {
	case 0:
		slog.Info("Fresh install, no migration needed")
		return nil
	case LatestVersion:
		slog.Debug("Store already at latest schema version", "version", version)
		return nil
	}

	slog.Info("Migrating store", "from", version, "to", LatestVersion)

	expected := version
	for _, s := range steps {
		if s.to <= version {
			continue
		}
		if s.from != expected {
			return fmt.Errorf("migration gap: no step from version %d", expected)
		}
		slog.Info("Applying migration step", "from", s.from, "to", s.to)
		if err := s.apply(m); err != nil {
			return fmt.Errorf("migration %d -> %d failed: %w", s.from, s.to, err)
		}
		expected = s.to
	}
	if expected != LatestVersion {
		return fmt.Errorf("migration chain ends at version %d, expected %d", expected, LatestVersion)
	}

	return m.finalize()
}

// migrateFlatToShards replays the v1 flat vehicle table into per-day legacy
// shards. The flat file stays in place as a backup.
func (m *Migrator) migrateFlatToShards() error {
	flat, err := readFlatFile(m.flatPath())
	if err != nil {
		return err
	}

	byShard := make(map[string][]legacyRecord)
	for _, record := range flat.Vehicles {
		path := legacyShardPath(m.legacyShardRoot(), record.FirstSpotted)
		byShard[path] = append(byShard[path], record)
	}

	// An empty vehicle table still needs the layout marker.
	if err := os.MkdirAll(m.legacyShardRoot(), 0o755); err != nil {
		return fmt.Errorf("failed to create legacy shard root: %w", err)
	}

	for path, records := range byShard {
		if err := writeLegacyShard(path, records); err != nil {
			return err
		}
	}

	slog.Info("Flat store sharded", "records", len(flat.Vehicles), "shards", len(byShard))

	return nil
}

// migrateShardsToCurrent converts the v2 legacy shards into the normalized
// current layout and relocates the token blob into the state store.
func (m *Migrator) migrateShardsToCurrent() error {
	legacy, err := readLegacyShards(m.legacyShardRoot())
	if err != nil {
		return err
	}

	store := database.NewShardStore(database.NewOfferStore(m.provider), m.shardRoot())
	records := make([]database.OfferRecord, 0, len(legacy))
	for _, old := range legacy {
		record, err := m.convertRecord(old)
		if err != nil {
			return err
		}
		records = append(records, record)
	}
	if err := store.InsertMultiple(records); err != nil {
		return err
	}
	if err := store.Close(); err != nil {
		return err
	}

	state, err := database.OpenState(m.statePath())
	if err != nil {
		return err
	}
	defer state.Close()

	if err := m.relocateTokens(state); err != nil {
		return err
	}

	slog.Info("Legacy shards converted", "records", len(records))

	return nil
}

func (m *Migrator) convertRecord(old legacyRecord) (database.OfferRecord, error) {
	price, err := offer.ParsePrice(old.Price)
	if err != nil {
		return database.OfferRecord{}, fmt.Errorf("record %s: %w", old.ID, err)
	}

	return database.OfferRecord{
		Provider:     m.provider,
		ID:           old.ID,
		Make:         old.Make,
		Model:        old.Model,
		Year:         old.Year,
		Mileage:      old.Mileage,
		ImageURL:     old.Image,
		URL:          old.URL,
		Title:        old.Name,
		Price:        price,
		FirstSpotted: time.Unix(old.FirstSpotted, 0).UTC(),
		LastSpotted:  time.Unix(old.LastSpotted, 0).UTC(),
		Region:       old.Voivodeship,
		Location:     old.Location,
		Imported:     old.Imported,
	}, nil
}

// relocateTokens copies the yaml token blob into the state store verbatim,
// without reinterpreting its contents. The yaml file stays in place.
func (m *Migrator) relocateTokens(state *database.StateDB) error {
	data, err := os.ReadFile(m.tokenPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read token file: %w", err)
	}

	var blob map[string]string
	if err := yaml.Unmarshal(data, &blob); err != nil {
		return fmt.Errorf("failed to parse token file: %w", err)
	}

	return database.NewTokenRepository(state).Put(blob)
}

// finalize rewrites the run metadata singleton with the new version, the
// current timestamp at millisecond precision and the host identifier.
func (m *Migrator) finalize() error {
	state, err := database.OpenState(m.statePath())
	if err != nil {
		return err
	}
	defer state.Close()

	meta := database.RunMetadata{
		SchemaVersion: LatestVersion,
		Timestamp:     m.now().UTC().Truncate(time.Millisecond),
		Host:          m.host,
	}
	if err := database.NewMetadataRepository(state).Upsert(meta); err != nil {
		return err
	}

	slog.Info("Migration complete", "version", LatestVersion)

	return nil
}
