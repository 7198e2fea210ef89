package migration

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wmelnik/carscan/app/database"
)

var rawToken = map[string]string{
	"access_token": "the access token",
	"secret_token": "the secret token",
}

func legacyAudi() legacyRecord {
	return legacyRecord{
		ID:           "7597123698",
		Make:         "Audi",
		Model:        "Q7",
		Year:         2010,
		Mileage:      89000,
		Image:        "image-url",
		URL:          "listing-url",
		Name:         "my beloved car",
		Price:        "88500",
		FirstSpotted: 1554749924,
		LastSpotted:  1554757581,
		Voivodeship:  "kujawsko-pomorskie",
		Location:     "Grudziądz",
		Imported:     false,
	}
}

func writeV1Fixture(t *testing.T, dir string) {
	t.Helper()

	flat := &flatFile{
		Meta:     &legacyMeta{Version: 1, Timestamp: "2019-04-08T21:06:21", Host: "old-host"},
		Vehicles: []legacyRecord{legacyAudi()},
	}
	if err := writeFlatFile(filepath.Join(dir, "cars.json"), flat); err != nil {
		t.Fatal(err)
	}

	data, err := yaml.Marshal(rawToken)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "tokens.yaml"), data, 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestDetectFreshInstall(t *testing.T) {
	m := NewMigrator(t.TempDir(), "allegro", "host")

	version, err := m.Detect()
	if err != nil {
		t.Fatal(err)
	}
	if version != 0 {
		t.Errorf("Expected version 0 for fresh install, got %d", version)
	}
}

func TestCheckMigrateFreshInstallTouchesNothing(t *testing.T) {
	dir := t.TempDir()
	m := NewMigrator(dir, "allegro", "host")

	if err := m.CheckMigrate(); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Fresh install must not create any files, found %d entries", len(entries))
	}
}

func TestDetectAmbiguousMarkersFail(t *testing.T) {
	dir := t.TempDir()
	flat := &flatFile{
		Meta:     &legacyMeta{Version: 3, Timestamp: "2019-04-08T21:06:21", Host: "host"},
		Vehicles: []legacyRecord{legacyAudi()},
	}
	if err := writeFlatFile(filepath.Join(dir, "cars.json"), flat); err != nil {
		t.Fatal(err)
	}

	m := NewMigrator(dir, "allegro", "host")
	if _, err := m.Detect(); err == nil {
		t.Error("Expected error for flat store claiming a sharded version")
	}
}

func TestCheckMigrateFromV1(t *testing.T) {
	dir := t.TempDir()
	writeV1Fixture(t, dir)

	ts := time.Date(2024, 5, 10, 12, 0, 0, 123456789, time.UTC)
	m := NewMigrator(dir, "allegro", "migration-host")
	m.now = func() time.Time { return ts }

	if err := m.CheckMigrate(); err != nil {
		t.Fatal(err)
	}

	// Old layouts stay in place as a backup.
	if _, err := os.Stat(filepath.Join(dir, "cars.json")); err != nil {
		t.Error("v1 flat store should be left in place")
	}
	if _, err := os.Stat(filepath.Join(dir, "vehicle", "2019", "04-08.json")); err != nil {
		t.Error("v2 legacy shard should exist after the chain ran through it")
	}
	if _, err := os.Stat(filepath.Join(dir, "tokens.yaml")); err != nil {
		t.Error("token file should be left in place")
	}

	// Current layout holds the converted record.
	store := database.NewShardStore(database.NewOfferStore("allegro"), filepath.Join(dir, "offers"))
	if err := store.Load(); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 1 {
		t.Fatalf("Expected 1 migrated record, got %d", store.Len())
	}

	record, ok := store.Get("7597123698")
	if !ok {
		t.Fatal("Migrated record missing")
	}
	if record.Provider != "allegro" {
		t.Errorf("Expected provider key component 'allegro', got %q", record.Provider)
	}
	if got := record.Price.StringFixed(2); got != "88500.00" {
		t.Errorf("Expected price 88500.00, got %s", got)
	}
	wantFirst := time.Date(2019, 4, 8, 18, 58, 44, 0, time.UTC)
	wantLast := time.Date(2019, 4, 8, 21, 6, 21, 0, time.UTC)
	if !record.FirstSpotted.Equal(wantFirst) {
		t.Errorf("Expected first_spotted %v, got %v", wantFirst, record.FirstSpotted)
	}
	if !record.LastSpotted.Equal(wantLast) {
		t.Errorf("Expected last_spotted %v, got %v", wantLast, record.LastSpotted)
	}
	if record.Make != "Audi" || record.Model != "Q7" || record.Region != "kujawsko-pomorskie" {
		t.Errorf("Record fields not carried over: %+v", record)
	}

	// Metadata rewritten as singleton with the new version.
	state, err := database.OpenState(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer state.Close()

	meta, err := database.NewMetadataRepository(state).Get()
	if err != nil {
		t.Fatal(err)
	}
	if meta == nil {
		t.Fatal("Expected run metadata after migration")
	}
	if meta.SchemaVersion != LatestVersion {
		t.Errorf("Expected schema version %d, got %d", LatestVersion, meta.SchemaVersion)
	}
	if meta.Host != "migration-host" {
		t.Errorf("Expected host 'migration-host', got %q", meta.Host)
	}
	if !meta.Timestamp.Equal(ts.Truncate(time.Millisecond)) {
		t.Errorf("Expected ms-truncated timestamp, got %v", meta.Timestamp)
	}

	// Token blob relocated verbatim.
	blob, err := database.NewTokenRepository(state).Get()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(blob, rawToken) {
		t.Errorf("Token blob not carried verbatim: %v", blob)
	}
}

func TestCheckMigrateFromV2(t *testing.T) {
	dir := t.TempDir()

	record := legacyAudi()
	if err := writeLegacyShard(legacyShardPath(filepath.Join(dir, "vehicle"), record.FirstSpotted), []legacyRecord{record}); err != nil {
		t.Fatal(err)
	}

	m := NewMigrator(dir, "allegro", "host")
	version, err := m.Detect()
	if err != nil {
		t.Fatal(err)
	}
	if version != 2 {
		t.Fatalf("Expected detected version 2, got %d", version)
	}

	if err := m.CheckMigrate(); err != nil {
		t.Fatal(err)
	}

	store := database.NewShardStore(database.NewOfferStore("allegro"), filepath.Join(dir, "offers"))
	if err := store.Load(); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 1 {
		t.Errorf("Expected 1 migrated record, got %d", store.Len())
	}
}

func snapshotDir(t *testing.T, dir string) map[string][]byte {
	t.Helper()
	files := make(map[string][]byte)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[path] = data
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return files
}

func TestCheckMigrateTwiceSecondCallWritesNothing(t *testing.T) {
	dir := t.TempDir()
	writeV1Fixture(t, dir)

	m := NewMigrator(dir, "allegro", "host")
	if err := m.CheckMigrate(); err != nil {
		t.Fatal(err)
	}

	version, err := m.Detect()
	if err != nil {
		t.Fatal(err)
	}
	if version != LatestVersion {
		t.Fatalf("Expected detected version %d after migration, got %d", LatestVersion, version)
	}

	before := snapshotDir(t, dir)

	if err := m.CheckMigrate(); err != nil {
		t.Fatal(err)
	}

	after := snapshotDir(t, dir)
	if !reflect.DeepEqual(before, after) {
		t.Error("Second check_migrate must not modify any file")
	}
}
