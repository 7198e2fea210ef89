package migration

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// legacyRecord is the offer encoding used by the v1 flat store and the v2
// legacy shards: epoch-second timestamps and raw price strings.
type legacyRecord struct {
	ID           string `json:"id"`
	Make         string `json:"make"`
	Model        string `json:"model"`
	Year         int    `json:"year"`
	Mileage      int    `json:"mileage"`
	Image        string `json:"image"`
	URL          string `json:"url"`
	Name         string `json:"name"`
	Price        string `json:"price"`
	FirstSpotted int64  `json:"first_spotted"`
	LastSpotted  int64  `json:"last_spotted"`
	Voivodeship  string `json:"voivodeship"`
	Location     string `json:"location"`
	Imported     bool   `json:"imported"`
}

type legacyMeta struct {
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
	Host      string `json:"host"`
}

// flatFile is the v1 single-file store: one vehicle table plus the meta
// singleton.
type flatFile struct {
	Meta     *legacyMeta    `json:"meta,omitempty"`
	Vehicles []legacyRecord `json:"vehicle"`
}

// legacyShardFile is one v2 per-day shard.
type legacyShardFile struct {
	Vehicles []legacyRecord `json:"vehicle"`
}

func readFlatFile(path string) (*flatFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flat store %s: %w", path, err)
	}

	var flat flatFile
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("failed to parse flat store %s: %w", path, err)
	}

	return &flat, nil
}

func writeFlatFile(path string, flat *flatFile) error {
	data, err := json.MarshalIndent(flat, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode flat store: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write flat store %s: %w", path, err)
	}
	return nil
}

func readLegacyShards(root string) ([]legacyRecord, error) {
	paths, err := filepath.Glob(filepath.Join(root, "*", "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list legacy shards: %w", err)
	}

	var records []legacyRecord
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read legacy shard %s: %w", path, err)
		}
		var shard legacyShardFile
		if err := json.Unmarshal(data, &shard); err != nil {
			return nil, fmt.Errorf("failed to parse legacy shard %s: %w", path, err)
		}
		records = append(records, shard.Vehicles...)
	}

	return records, nil
}

func writeLegacyShard(path string, records []legacyRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create legacy shard dir: %w", err)
	}
	data, err := json.MarshalIndent(legacyShardFile{Vehicles: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode legacy shard: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write legacy shard %s: %w", path, err)
	}
	return nil
}

func legacyShardPath(root string, firstSpotted int64) string {
	day := time.Unix(firstSpotted, 0).UTC()
	return filepath.Join(root, day.Format("2006"), day.Format("01-02")+".json")
}
