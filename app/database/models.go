package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Price is a fixed-point amount carried with exactly two fraction digits.
type Price struct {
	decimal.Decimal
}

func NewPrice(d decimal.Decimal) Price {
	return Price{d}
}

func (p Price) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.StringFixed(2))
}

func (p *Price) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("failed to parse price %q: %w", s, err)
	}
	p.Decimal = d
	return nil
}

// OfferKey is the identity of a persisted offer: marketplace provider plus
// the provider-scoped listing id.
type OfferKey struct {
	Provider string
	ID       string
}

// OfferRecord is the persisted offer entity. FirstSpotted never changes
// after creation; LastSpotted only advances.
type OfferRecord struct {
	Provider     string    `json:"provider"`
	ID           string    `json:"id"`
	Make         string    `json:"make"`
	Model        string    `json:"model"`
	Year         int       `json:"year"`
	Mileage      int       `json:"mileage"`
	ImageURL     string    `json:"image"`
	URL          string    `json:"url"`
	Title        string    `json:"name"`
	Price        Price     `json:"price"`
	FirstSpotted time.Time `json:"first_spotted"`
	LastSpotted  time.Time `json:"last_spotted"`
	Region       string    `json:"region"`
	Location     string    `json:"location"`
	Imported     bool      `json:"imported"`
}

func (r OfferRecord) Key() OfferKey {
	return OfferKey{Provider: r.Provider, ID: r.ID}
}

func (r OfferRecord) Validate() error {
	if r.Provider == "" || r.ID == "" {
		return fmt.Errorf("offer record is missing its identity key")
	}
	if r.FirstSpotted.After(r.LastSpotted) {
		return fmt.Errorf("offer %s: first_spotted %s is after last_spotted %s",
			r.ID, r.FirstSpotted.Format(time.RFC3339), r.LastSpotted.Format(time.RFC3339))
	}
	return nil
}

// RunMetadata is the store's singleton run marker: schema version, instant
// of the last successful run and the host it ran on.
type RunMetadata struct {
	SchemaVersion int
	Timestamp     time.Time
	Host          string
}
