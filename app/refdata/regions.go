package refdata

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RegionStore maps provider region ids to region names.
type RegionStore struct {
	names map[int]string
}

func LoadRegions(path string) (*RegionStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read regions file: %w", err)
	}

	var raw struct {
		Regions []struct {
			ID   int    `yaml:"id"`
			Name string `yaml:"name"`
		} `yaml:"regions"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse regions file: %w", err)
	}

	names := make(map[int]string, len(raw.Regions))
	for _, region := range raw.Regions {
		if region.Name == "" {
			return nil, fmt.Errorf("region %d has no name", region.ID)
		}
		names[region.ID] = region.Name
	}

	return &RegionStore{names: names}, nil
}

func (s *RegionStore) NameByID(id int) (string, error) {
	name, ok := s.names[id]
	if !ok {
		return "", fmt.Errorf("unknown region id %d", id)
	}
	return name, nil
}
