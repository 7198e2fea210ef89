package allegro

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wmelnik/carscan/app/marketplace"
)

const (
	DefaultBaseURL = "https://api.allegro.pl"

	offerURLPrefix = "https://allegro.pl/oferta/"

	// Page-size ceilings dictated by the remote API.
	searchLimitMax   = 100
	detailItemsLimit = 25

	requestTimeout = 30 * time.Second
)

// Client talks to the Allegro REST API. It implements the marketplace
// listing, filter and detail interfaces.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userAgent  string
}

func NewClient(baseURL, token, userAgent string) *Client {
	return &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		userAgent:  userAgent,
	}
}

type listingItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	SellingMode struct {
		Price struct {
			Amount string `json:"amount"`
		} `json:"price"`
	} `json:"sellingMode"`
	Publication struct {
		StartingAt time.Time `json:"startingAt"`
	} `json:"publication"`
}

type listingResponse struct {
	Items struct {
		Promoted []listingItem `json:"promoted"`
		Regular  []listingItem `json:"regular"`
	} `json:"items"`
	SearchMeta struct {
		AvailableCount int `json:"availableCount"`
	} `json:"searchMeta"`
	Filters []filterOption `json:"filters"`
}

type filterOption struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Values []struct {
		Value string `json:"value"`
		Name  string `json:"name"`
	} `json:"values"`
}

type offerDetail struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	SellingMode struct {
		Price struct {
			Amount string `json:"amount"`
		} `json:"price"`
	} `json:"sellingMode"`
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	Location struct {
		City     string `json:"city"`
		Province int    `json:"province"`
	} `json:"location"`
	Parameters []struct {
		Name   string   `json:"name"`
		Values []string `json:"values"`
	} `json:"parameters"`
}

func (c *Client) Search(ctx context.Context, params map[string]string, offset, limit int) (marketplace.ListingPage, error) {
	query := url.Values{}
	for key, value := range params {
		query.Set(key, value)
	}
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(limit))

	var resp listingResponse
	if err := c.get(ctx, "/offers/listing", query, &resp); err != nil {
		return marketplace.ListingPage{}, err
	}

	return marketplace.ListingPage{
		Promoted:   toSummaries(resp.Items.Promoted),
		Regular:    toSummaries(resp.Items.Regular),
		TotalCount: resp.SearchMeta.AvailableCount,
	}, nil
}

func (c *Client) SearchLimit() int {
	return searchLimitMax
}

// GetFilters fetches the dynamic filter vocabulary for a category. The
// vocabulary rides along the listing response, so a minimal listing query
// is issued and only its filters section is used.
func (c *Client) GetFilters(ctx context.Context, categoryID string) ([]marketplace.FilterOption, error) {
	query := url.Values{}
	query.Set("category.id", categoryID)
	query.Set("include", "filters")
	query.Set("limit", "1")

	var resp listingResponse
	if err := c.get(ctx, "/offers/listing", query, &resp); err != nil {
		return nil, err
	}

	options := make([]marketplace.FilterOption, 0, len(resp.Filters))
	for _, raw := range resp.Filters {
		option := marketplace.FilterOption{ID: raw.ID, Name: raw.Name}
		for _, value := range raw.Values {
			option.Values = append(option.Values, marketplace.FilterValue{
				ID:     value.Value,
				Label:  value.Name,
				Window: parseISODuration(value.Value),
			})
		}
		options = append(options, option)
	}
	return options, nil
}

func (c *Client) GetDetails(ctx context.Context, ids []string) ([]marketplace.OfferDetail, error) {
	query := url.Values{}
	for _, id := range ids {
		query.Add("id", id)
	}

	var resp struct {
		Offers []offerDetail `json:"offers"`
	}
	if err := c.get(ctx, "/offers/details", query, &resp); err != nil {
		return nil, err
	}

	details := make([]marketplace.OfferDetail, 0, len(resp.Offers))
	for _, raw := range resp.Offers {
		detail := marketplace.OfferDetail{
			ID:         raw.ID,
			Title:      raw.Name,
			Price:      raw.SellingMode.Price.Amount,
			URL:        offerURLPrefix + raw.ID,
			Location:   raw.Location.City,
			RegionID:   raw.Location.Province,
			Attributes: make(map[string]string, len(raw.Parameters)),
		}
		if len(raw.Images) > 0 {
			detail.ImageURL = raw.Images[0].URL
		}
		for _, param := range raw.Parameters {
			if len(param.Values) > 0 {
				detail.Attributes[strings.ToLower(param.Name)] = param.Values[0]
			}
		}
		details = append(details, detail)
	}
	return details, nil
}

func (c *Client) DetailLimit() int {
	return detailItemsLimit
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/vnd.allegro.public.v1+json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &marketplace.TransportError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &marketplace.AuthError{Reason: fmt.Sprintf("HTTP error: %d %s", resp.StatusCode, resp.Status)}
	case resp.StatusCode >= http.StatusInternalServerError:
		return &marketplace.TransportError{Op: path, Err: fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)}
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &marketplace.TransportError{Op: path, Err: err}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func toSummaries(items []listingItem) []marketplace.ListingSummary {
	summaries := make([]marketplace.ListingSummary, 0, len(items))
	for _, item := range items {
		summaries = append(summaries, marketplace.ListingSummary{
			ID:        item.ID,
			Title:     item.Name,
			URL:       offerURLPrefix + item.ID,
			Price:     item.SellingMode.Price.Amount,
			StartTime: item.Publication.StartingAt,
		})
	}
	return summaries
}

// parseISODuration reads durations of the shape the filter vocabulary
// uses (P2D, PT12H, P1DT6H). Anything else yields zero, which marks the
// value as non-durational.
func parseISODuration(value string) time.Duration {
	rest, ok := strings.CutPrefix(value, "P")
	if !ok {
		return 0
	}

	var total time.Duration
	datePart, timePart, hasTime := strings.Cut(rest, "T")

	if datePart != "" {
		days, ok := strings.CutSuffix(datePart, "D")
		if !ok {
			return 0
		}
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0
		}
		total += time.Duration(n) * 24 * time.Hour
	}

	if hasTime {
		hours, ok := strings.CutSuffix(timePart, "H")
		if !ok {
			return 0
		}
		n, err := strconv.Atoi(hours)
		if err != nil {
			return 0
		}
		total += time.Duration(n) * time.Hour
	}

	return total
}
