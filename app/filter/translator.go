package filter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wmelnik/carscan/app/marketplace"
)

// UnresolvableFilterError is fatal: silently dropping a constraint would
// widen the search unexpectedly.
type UnresolvableFilterError struct {
	CategoryID string
	Name       string
	Value      string
}

func (e *UnresolvableFilterError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("unresolvable filter %q for category %s", e.Name, e.CategoryID)
	}
	return fmt.Sprintf("unresolvable filter %q=%q for category %s", e.Name, e.Value, e.CategoryID)
}

// Translator maps a human-readable desired-filter selection onto the
// provider's per-category filter vocabulary. Discovered options are cached
// per category for the lifetime of the translator, i.e. one run.
type Translator struct {
	client marketplace.FilterClient
	cache  map[string][]marketplace.FilterOption
}

func NewTranslator(client marketplace.FilterClient) *Translator {
	return &Translator{
		client: client,
		cache:  make(map[string][]marketplace.FilterOption),
	}
}

func (t *Translator) options(ctx context.Context, categoryID string) ([]marketplace.FilterOption, error) {
	if options, ok := t.cache[categoryID]; ok {
		return options, nil
	}

	options, err := t.client.GetFilters(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch filters for category %s: %w", categoryID, err)
	}

	t.cache[categoryID] = options
	return options, nil
}

// TransformFilters translates each desired (name, value) pair into the
// provider's current parameter encoding for the category. Every pair must
// resolve exactly; a miss returns an UnresolvableFilterError.
func (t *Translator) TransformFilters(ctx context.Context, categoryID string, desired map[string]string) (map[string]string, error) {
	options, err := t.options(ctx, categoryID)
	if err != nil {
		return nil, err
	}

	params := make(map[string]string, len(desired))
	for name, value := range desired {
		option, ok := findOption(options, name)
		if !ok {
			return nil, &UnresolvableFilterError{CategoryID: categoryID, Name: name}
		}

		resolved := false
		for _, entry := range option.Values {
			if entry.Label == value {
				params[option.ID] = entry.ID
				resolved = true
				break
			}
		}
		if !resolved {
			return nil, &UnresolvableFilterError{CategoryID: categoryID, Name: name, Value: value}
		}
	}

	return params, nil
}

// MinWindowOver picks the narrowest "posted within" window that still covers
// delta. If no window is wide enough the widest available one is returned,
// accepting a re-scanning gap. A category without any duration-valued filter
// signals misconfiguration.
func (t *Translator) MinWindowOver(ctx context.Context, categoryID string, delta time.Duration) (time.Duration, error) {
	options, err := t.options(ctx, categoryID)
	if err != nil {
		return 0, err
	}

	var minOver, maxAll time.Duration
	for _, option := range options {
		for _, entry := range option.Values {
			if entry.Window <= 0 {
				continue
			}
			if entry.Window > maxAll {
				maxAll = entry.Window
			}
			if entry.Window >= delta && (minOver == 0 || entry.Window < minOver) {
				minOver = entry.Window
			}
		}
	}

	if maxAll == 0 {
		return 0, fmt.Errorf("category %s has no duration-valued filter", categoryID)
	}
	if minOver == 0 {
		return maxAll, nil
	}
	return minOver, nil
}

func findOption(options []marketplace.FilterOption, name string) (marketplace.FilterOption, bool) {
	for _, option := range options {
		if option.Name == name {
			return option, true
		}
	}
	return marketplace.FilterOption{}, false
}

// FormatISODuration renders a duration in the ISO 8601 form the search API
// expects for the startingTime parameter, e.g. "P2D" or "PT12H".
func FormatISODuration(d time.Duration) string {
	if d <= 0 {
		return "PT0S"
	}

	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	var b strings.Builder
	b.WriteString("P")
	if days > 0 {
		fmt.Fprintf(&b, "%dD", days)
	}
	if hours > 0 || minutes > 0 || seconds > 0 {
		b.WriteString("T")
		if hours > 0 {
			fmt.Fprintf(&b, "%dH", hours)
		}
		if minutes > 0 {
			fmt.Fprintf(&b, "%dM", minutes)
		}
		if seconds > 0 {
			fmt.Fprintf(&b, "%dS", seconds)
		}
	}
	return b.String()
}
