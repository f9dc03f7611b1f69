// Package places is a client for the Google Places Nearby Search API. It
// turns a center and radius into at most a fixed number of hits and classifies
// the response into an Outcome the caller can branch on.
package places

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/poi-extractor/internal/resilience"
)

const (
	defaultBaseURL = "https://maps.googleapis.com/maps/api/place"

	// PageSize is the maximum number of results Nearby Search returns per page.
	PageSize = 20

	// defaultPageTokenDelay is how long a next_page_token takes to become valid.
	defaultPageTokenDelay = 2 * time.Second
)

// Response statuses returned in the "status" field.
const (
	StatusOK             = "OK"
	StatusZeroResults    = "ZERO_RESULTS"
	StatusOverQueryLimit = "OVER_QUERY_LIMIT"
	StatusRequestDenied  = "REQUEST_DENIED"
	StatusInvalidRequest = "INVALID_REQUEST"
	StatusUnknownError   = "UNKNOWN_ERROR"
)

// Client performs Nearby Search calls.
type Client interface {
	NearbySearch(ctx context.Context, req NearbyRequest) (*Outcome, error)
}

// NearbyRequest describes one circular search area.
type NearbyRequest struct {
	Location     LatLng
	RadiusMeters float64
}

// LatLng is a coordinate pair as encoded by the API.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds is a rectangle given by its north-east and south-west corners.
type Bounds struct {
	Northeast LatLng `json:"northeast"`
	Southwest LatLng `json:"southwest"`
}

// Geometry holds a place's location and optional extents.
type Geometry struct {
	Location *LatLng `json:"location,omitempty"`
	Bounds   *Bounds `json:"bounds,omitempty"`
	Viewport *Bounds `json:"viewport,omitempty"`
}

// Place is one raw search hit. Optional fields are pointers so that an absent
// field can be told apart from an empty one.
type Place struct {
	PlaceID  string    `json:"place_id"`
	Name     *string   `json:"name,omitempty"`
	Vicinity *string   `json:"vicinity,omitempty"`
	Types    []string  `json:"types"`
	Geometry *Geometry `json:"geometry,omitempty"`
}

// Location returns the hit's point location, if present.
func (p Place) Location() (LatLng, bool) {
	if p.Geometry == nil || p.Geometry.Location == nil {
		return LatLng{}, false
	}
	return *p.Geometry.Location, true
}

type nearbyResponse struct {
	Results       []Place `json:"results"`
	Status        string  `json:"status"`
	NextPageToken string  `json:"next_page_token"`
	ErrorMessage  string  `json:"error_message"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithMaxPages sets how many result pages are followed per search. The
// truncation cap is MaxPages * PageSize.
func WithMaxPages(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// WithPageTokenDelay sets the wait before a next_page_token is used.
func WithPageTokenDelay(d time.Duration) Option {
	return func(c *httpClient) {
		if d >= 0 {
			c.pageTokenDelay = d
		}
	}
}

type httpClient struct {
	apiKey         string
	baseURL        string
	http           *http.Client
	maxPages       int
	pageTokenDelay time.Duration
}

// NewClient creates a Nearby Search client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		maxPages:       1,
		pageTokenDelay: defaultPageTokenDelay,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NearbySearch runs one logical search, following result pages up to the
// configured limit. Rate limiting, server errors and network failures are
// reported as outcomes; rejected requests are returned as errors.
func (c *httpClient) NearbySearch(ctx context.Context, req NearbyRequest) (*Outcome, error) {
	var (
		places []Place
		token  string
		pages  int
	)

	for page := 0; page < c.maxPages; page++ {
		if token != "" {
			if err := sleepCtx(ctx, c.pageTokenDelay); err != nil {
				return nil, err
			}
		}

		resp, err := c.fetch(ctx, req, token)
		pages++
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			if resilience.IsTransient(err) {
				return &Outcome{Kind: KindTransientError, Pages: pages, Err: err}, nil
			}
			return nil, err
		}

		// A page token used before it becomes valid is answered with
		// INVALID_REQUEST; the search is retried from the first page.
		if page > 0 && resp.Status == StatusInvalidRequest {
			return &Outcome{
				Kind:   KindTransientError,
				Status: resp.Status,
				Pages:  pages,
				Err:    eris.Errorf("places: page token not ready on page %d: %s", page+1, resp.ErrorMessage),
			}, nil
		}

		kind, err := classify(resp)
		if err != nil {
			return nil, err
		}
		if kind != KindSuccess {
			// A later page that fails invalidates the whole search; the caller
			// retries it from the first page.
			if page > 0 && kind == KindEmpty {
				break
			}
			return &Outcome{Kind: kind, Status: resp.Status, Places: resp.Results, Pages: pages}, nil
		}

		places = append(places, resp.Results...)
		if resp.NextPageToken == "" {
			break
		}
		token = resp.NextPageToken
	}

	return &Outcome{
		Kind:      KindSuccess,
		Status:    StatusOK,
		Places:    places,
		Truncated: len(places) >= c.maxPages*PageSize,
		Pages:     pages,
	}, nil
}

func (c *httpClient) fetch(ctx context.Context, req NearbyRequest, pageToken string) (*nearbyResponse, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	if pageToken != "" {
		params.Set("pagetoken", pageToken)
	} else {
		params.Set("location", formatFloat(req.Location.Lat)+","+formatFloat(req.Location.Lng))
		params.Set("radius", formatFloat(req.RadiusMeters))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/nearbysearch/json?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "places: create request")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "places: send request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "places: read response"), resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &nearbyResponse{Status: StatusOverQueryLimit}, nil
	case resp.StatusCode != http.StatusOK && resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(
			eris.Errorf("places: unexpected status %d: %s", resp.StatusCode, string(body)), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, eris.Errorf("places: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result nearbyResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "places: unmarshal response")
	}
	return &result, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
