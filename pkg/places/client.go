package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shpitdev/leadfinder/pkg/pipeline/core"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://maps.googleapis.com/maps/api/place/"
	DefaultTimeout = 8 * time.Second

	// Text Search returns at most three pages of twenty results.
	DefaultMaxPages = 3
	// next_page_token is not valid until a short time after it is issued.
	DefaultTokenDelay = 2 * time.Second

	detailsFields = "formatted_phone_number,website"
)

// Place is one Text Search result.
type Place struct {
	PlaceID          string `json:"place_id"`
	Name             string `json:"name"`
	FormattedAddress string `json:"formatted_address"`
}

// Details holds the contact fields requested from Place Details.
type Details struct {
	Phone   string `json:"formatted_phone_number"`
	Website string `json:"website"`
}

type textSearchResponse struct {
	Status        string  `json:"status"`
	ErrorMessage  string  `json:"error_message"`
	Results       []Place `json:"results"`
	NextPageToken string  `json:"next_page_token"`
}

type detailsResponse struct {
	Status       string  `json:"status"`
	ErrorMessage string  `json:"error_message"`
	Result       Details `json:"result"`
}

// Client is a minimal client for the Places Text Search and Details endpoints.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	http       *http.Client
	limiter    *rate.Limiter
	maxPages   int
	tokenDelay time.Duration
	usage      *Usage
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRateLimit caps requests per second across all callers. <=0 disables.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

func WithMaxPages(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

func WithTokenDelay(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.tokenDelay = d
		}
	}
}

// NewClient constructs a client. baseURL may be empty for the public endpoint.
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("places api key is required")
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:    base,
		apiKey:     apiKey,
		http:       &http.Client{Timeout: DefaultTimeout, Transport: http.DefaultTransport.(*http.Transport).Clone()},
		maxPages:   DefaultMaxPages,
		tokenDelay: DefaultTokenDelay,
		usage:      &Usage{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Usage returns the client's request counters.
func (c *Client) Usage() *Usage { return c.usage }

// Query formats a Text Search query for one term and location.
func Query(term, city, state string) string {
	return fmt.Sprintf("%s in %s, %s", strings.TrimSpace(term), strings.TrimSpace(city), strings.TrimSpace(state))
}

// TextSearch runs a Text Search and follows next_page_token up to the page limit.
// ZERO_RESULTS is an empty result, not an error.
func (c *Client) TextSearch(ctx context.Context, query string) ([]Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	var out []Place
	token := ""
	for page := 0; page < c.maxPages; page++ {
		params := url.Values{}
		if token == "" {
			params.Set("query", query)
		} else {
			if err := sleepCtx(ctx, c.tokenDelay); err != nil {
				return out, err
			}
			params.Set("pagetoken", token)
		}

		resp, err := c.textSearchPage(ctx, params, token != "")
		if err != nil {
			return out, err
		}
		out = append(out, resp.Results...)
		token = strings.TrimSpace(resp.NextPageToken)
		if token == "" {
			break
		}
	}
	return out, nil
}

// textSearchPage fetches one page. A page token used too early comes back as
// INVALID_REQUEST; that case is retried twice after the token delay.
func (c *Client) textSearchPage(ctx context.Context, params url.Values, paged bool) (textSearchResponse, error) {
	const tokenRetries = 2
	for attempt := 0; ; attempt++ {
		var resp textSearchResponse
		if err := c.getJSON(ctx, "textSearch", "textsearch/json", params, &resp); err != nil {
			return resp, err
		}
		c.usage.textSearches.Add(1)

		switch resp.Status {
		case StatusOK, StatusZeroResults:
			return resp, nil
		case StatusInvalidRequest:
			if paged && attempt < tokenRetries {
				if err := sleepCtx(ctx, c.tokenDelay); err != nil {
					return resp, err
				}
				continue
			}
		}
		return resp, newAPIError("textSearch", resp.Status, resp.ErrorMessage)
	}
}

// Details fetches the phone number and website for a place.
func (c *Client) Details(ctx context.Context, placeID string) (Details, error) {
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return Details{}, fmt.Errorf("place id is required")
	}
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", detailsFields)

	var resp detailsResponse
	if err := c.getJSON(ctx, "details", "details/json", params, &resp); err != nil {
		return Details{}, err
	}
	c.usage.details.Add(1)

	switch resp.Status {
	case StatusOK:
		return Details{
			Phone:   strings.TrimSpace(resp.Result.Phone),
			Website: strings.TrimSpace(resp.Result.Website),
		}, nil
	case StatusZeroResults, StatusNotFound:
		return Details{}, nil
	}
	return Details{}, newAPIError("details", resp.Status, resp.ErrorMessage)
}

func (c *Client) getJSON(ctx context.Context, op, rel string, params url.Values, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	params.Set("key", c.apiKey)
	u := c.baseURL.ResolveReference(&url.URL{Path: rel})
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &requestError{op: op, err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		rerr := &requestError{op: op, err: err}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() && ctx.Err() == nil {
			return &core.TransientError{Err: rerr}
		}
		return rerr
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return &requestError{op: op, err: err}
	}
	if resp.StatusCode/100 != 2 {
		return newHTTPError(op, resp, b)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("parse %s response: %w", op, err)
	}
	return nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse places base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("places base URL must include a host (got %q)", raw)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/"
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
