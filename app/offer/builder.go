package offer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wmelnik/carscan/app/database"
	"github.com/wmelnik/carscan/app/marketplace"
)

// Normalized attribute keys the client adapter maps provider labels onto.
const (
	AttrMake    = "make"
	AttrModel   = "model"
	AttrYear    = "year"
	AttrMileage = "mileage"
)

// RegionResolver maps provider region ids to region names.
type RegionResolver interface {
	NameByID(id int) (string, error)
}

// Builder is an in-progress offer record. It is seeded from a listing
// summary, confirmed and enriched by a detail payload, and persisted only
// if it ends up valid. Malformed input marks the builder invalid instead of
// failing the run.
type Builder struct {
	record    database.OfferRecord
	confirmed bool
	invalid   bool
	reason    string
}

// ToRecords creates one builder per new listing summary, seeding both
// spotted timestamps with the run timestamp. Duplicate ids within the
// input (promoted entries repeated as regular ones) collapse into a single
// builder.
func ToRecords(provider string, summaries []marketplace.ListingSummary, ts time.Time) map[string]*Builder {
	ts = ts.UTC().Truncate(time.Millisecond)

	builders := make(map[string]*Builder, len(summaries))
	for _, summary := range summaries {
		if _, ok := builders[summary.ID]; ok {
			continue
		}

		b := &Builder{
			record: database.OfferRecord{
				Provider:     provider,
				ID:           summary.ID,
				URL:          summary.URL,
				Title:        summary.Title,
				FirstSpotted: ts,
				LastSpotted:  ts,
			},
		}

		if price, err := ParsePrice(summary.Price); err != nil {
			b.invalidate("bad listing price: %v", err)
		} else {
			b.record.Price = price
		}

		builders[summary.ID] = b
	}

	return builders
}

// UpdateFromDetail fills the detail-only fields. Unresolvable or malformed
// detail fields invalidate the builder.
func (b *Builder) UpdateFromDetail(d marketplace.OfferDetail, regions RegionResolver) {
	b.confirmed = true

	b.record.Make = d.Attributes[AttrMake]
	if b.record.Make == "" {
		b.invalidate("missing make attribute")
	}
	b.record.Model = d.Attributes[AttrModel]
	if b.record.Model == "" {
		b.invalidate("missing model attribute")
	}

	if year, err := parseIntAttr(d.Attributes, AttrYear); err != nil {
		b.invalidate("bad year attribute: %v", err)
	} else {
		b.record.Year = year
	}
	if raw, ok := d.Attributes[AttrMileage]; ok && raw != "" {
		if mileage, err := parseIntAttr(d.Attributes, AttrMileage); err != nil {
			b.invalidate("bad mileage attribute: %v", err)
		} else {
			b.record.Mileage = mileage
		}
	}

	if region, err := regions.NameByID(d.RegionID); err != nil {
		b.invalidate("unresolvable region: %v", err)
	} else {
		b.record.Region = region
	}

	b.record.Location = d.Location
	b.record.ImageURL = d.ImageURL
	if d.URL != "" {
		b.record.URL = d.URL
	}
	if d.Title != "" {
		b.record.Title = d.Title
	}

	// The detail payload carries the authoritative price.
	if d.Price != "" {
		if price, err := ParsePrice(d.Price); err != nil {
			b.invalidate("bad detail price: %v", err)
		} else {
			b.record.Price = price
		}
	}
}

// Valid reports whether the record is fully populated and detail-confirmed.
// Only valid builders are eligible for persistence.
func (b *Builder) Valid() bool {
	return b.confirmed && !b.invalid &&
		b.record.Make != "" && b.record.Model != "" &&
		b.record.Year != 0 && b.record.Region != ""
}

// Reason explains why the builder is invalid; empty when valid.
func (b *Builder) Reason() string {
	if b.confirmed || b.invalid {
		return b.reason
	}
	return "no detail payload received"
}

func (b *Builder) Record() database.OfferRecord {
	return b.record
}

func (b *Builder) invalidate(format string, args ...any) {
	b.invalid = true
	if b.reason == "" {
		b.reason = fmt.Sprintf(format, args...)
	}
}

// ParsePrice normalizes a raw price string to a fixed-point decimal with
// two fraction digits.
func ParsePrice(raw string) (database.Price, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return database.Price{}, fmt.Errorf("empty price")
	}

	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return database.Price{}, fmt.Errorf("malformed price %q: %w", raw, err)
	}
	if d.IsNegative() {
		return database.Price{}, fmt.Errorf("negative price %q", raw)
	}

	return database.NewPrice(d.Round(2)), nil
}

func parseIntAttr(attrs map[string]string, key string) (int, error) {
	raw, ok := attrs[key]
	if !ok || raw == "" {
		return 0, fmt.Errorf("missing %s", key)
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("malformed %s %q", key, raw)
	}
	return value, nil
}
