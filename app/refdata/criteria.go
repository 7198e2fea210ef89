package refdata

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Criterion identifies one marketplace category scoped for search.
type Criterion struct {
	CategoryID string `yaml:"category_id"`
	Name       string `yaml:"name"`
}

// CriteriaStore holds the ordered set of categories to search. It is loaded
// once per run and read-only during ingestion.
type CriteriaStore struct {
	criteria []Criterion
}

func LoadCriteria(path string) (*CriteriaStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read criteria file: %w", err)
	}

	var raw struct {
		Criteria []Criterion `yaml:"criteria"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse criteria file: %w", err)
	}

	for i, crit := range raw.Criteria {
		if crit.CategoryID == "" {
			return nil, fmt.Errorf("criterion at index %d has no category_id", i)
		}
	}

	return &CriteriaStore{criteria: raw.Criteria}, nil
}

// All returns the criteria in file order.
func (s *CriteriaStore) All() []Criterion {
	out := make([]Criterion, len(s.criteria))
	copy(out, s.criteria)
	return out
}

func (s *CriteriaStore) Count() int {
	return len(s.criteria)
}
