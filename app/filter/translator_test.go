package filter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wmelnik/carscan/app/marketplace"
)

type fakeFilterClient struct {
	options map[string][]marketplace.FilterOption
	calls   int
}

func (f *fakeFilterClient) GetFilters(ctx context.Context, categoryID string) ([]marketplace.FilterOption, error) {
	f.calls++
	options, ok := f.options[categoryID]
	if !ok {
		return nil, errors.New("unknown category")
	}
	return options, nil
}

func conditionOptions() []marketplace.FilterOption {
	return []marketplace.FilterOption{
		{
			ID:   "parameter.11323",
			Name: "Condition",
			Values: []marketplace.FilterValue{
				{ID: "11323_1", Label: "new"},
				{ID: "11323_2", Label: "used"},
			},
		},
		{
			ID:   "startingTime",
			Name: "posted within",
			Values: []marketplace.FilterValue{
				{ID: "PT12H", Label: "12 hours", Window: 12 * time.Hour},
				{ID: "P1D", Label: "1 day", Window: 24 * time.Hour},
				{ID: "P2D", Label: "2 days", Window: 48 * time.Hour},
			},
		},
	}
}

func TestTransformFiltersResolvesValue(t *testing.T) {
	client := &fakeFilterClient{options: map[string][]marketplace.FilterOption{
		"cat-1": conditionOptions(),
	}}
	translator := NewTranslator(client)

	params, err := translator.TransformFilters(context.Background(), "cat-1", map[string]string{"Condition": "used"})
	if err != nil {
		t.Fatal(err)
	}

	if got := params["parameter.11323"]; got != "11323_2" {
		t.Errorf("Expected provider id '11323_2' for 'used', got %q", got)
	}
	if len(params) != 1 {
		t.Errorf("Expected 1 param, got %d", len(params))
	}
}

func TestTransformFiltersUnlistedValueFails(t *testing.T) {
	client := &fakeFilterClient{options: map[string][]marketplace.FilterOption{
		"cat-1": conditionOptions(),
	}}
	translator := NewTranslator(client)

	_, err := translator.TransformFilters(context.Background(), "cat-1", map[string]string{"Condition": "refurbished"})
	if err == nil {
		t.Fatal("Expected error for unlisted filter value")
	}

	var unresolvable *UnresolvableFilterError
	if !errors.As(err, &unresolvable) {
		t.Fatalf("Expected UnresolvableFilterError, got %T: %v", err, err)
	}
	if unresolvable.Name != "Condition" || unresolvable.Value != "refurbished" {
		t.Errorf("Unexpected error detail: %+v", unresolvable)
	}
}

func TestTransformFiltersUnknownNameFails(t *testing.T) {
	client := &fakeFilterClient{options: map[string][]marketplace.FilterOption{
		"cat-1": conditionOptions(),
	}}
	translator := NewTranslator(client)

	_, err := translator.TransformFilters(context.Background(), "cat-1", map[string]string{"Damaged": "No"})
	var unresolvable *UnresolvableFilterError
	if !errors.As(err, &unresolvable) {
		t.Fatalf("Expected UnresolvableFilterError, got %v", err)
	}
}

func TestTransformFiltersCachesPerCategory(t *testing.T) {
	client := &fakeFilterClient{options: map[string][]marketplace.FilterOption{
		"cat-1": conditionOptions(),
	}}
	translator := NewTranslator(client)

	for i := 0; i < 3; i++ {
		if _, err := translator.TransformFilters(context.Background(), "cat-1", map[string]string{"Condition": "used"}); err != nil {
			t.Fatal(err)
		}
	}

	if client.calls != 1 {
		t.Errorf("Expected 1 remote filter fetch, got %d", client.calls)
	}
}

func TestMinWindowOverPicksSmallestCovering(t *testing.T) {
	client := &fakeFilterClient{options: map[string][]marketplace.FilterOption{
		"cat-1": conditionOptions(),
	}}
	translator := NewTranslator(client)

	window, err := translator.MinWindowOver(context.Background(), "cat-1", 18*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if window != 24*time.Hour {
		t.Errorf("Expected 24h window, got %v", window)
	}
}

func TestMinWindowOverFallsBackToWidest(t *testing.T) {
	client := &fakeFilterClient{options: map[string][]marketplace.FilterOption{
		"cat-1": conditionOptions(),
	}}
	translator := NewTranslator(client)

	window, err := translator.MinWindowOver(context.Background(), "cat-1", 30*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if window != 48*time.Hour {
		t.Errorf("Expected widest window 48h, got %v", window)
	}
}

func TestMinWindowOverNoDurationsFails(t *testing.T) {
	client := &fakeFilterClient{options: map[string][]marketplace.FilterOption{
		"cat-1": {
			{ID: "parameter.1", Name: "Condition", Values: []marketplace.FilterValue{{ID: "1", Label: "used"}}},
		},
	}}
	translator := NewTranslator(client)

	if _, err := translator.MinWindowOver(context.Background(), "cat-1", time.Hour); err == nil {
		t.Error("Expected error for category without duration-valued filters")
	}
}

func TestFormatISODuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{48 * time.Hour, "P2D"},
		{12 * time.Hour, "PT12H"},
		{26 * time.Hour, "P1DT2H"},
		{90 * time.Second, "PT1M30S"},
		{0, "PT0S"},
	}

	for _, tc := range cases {
		if got := FormatISODuration(tc.in); got != tc.want {
			t.Errorf("FormatISODuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
