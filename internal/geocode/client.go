// Package geocode resolves free-text place names to coordinates and
// timezones through an external geocoding service.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"natalbot/internal/domain"
)

// maxCandidates caps how many geocoding matches are surfaced to the user.
const maxCandidates = 5

// Resolver resolves a place string to an ordered list of candidates. An
// empty list means the place was not found; an error means the provider
// itself failed and the lookup should be retried later.
type Resolver interface {
	Resolve(ctx context.Context, place string) ([]domain.ResolvedLocation, error)
}

// Client is an HTTP client for the geocoding service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a geocoding client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// candidate is the provider's response shape for a single match.
type candidate struct {
	DisplayName string  `json:"display_name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Timezone    string  `json:"timezone"`
	Confidence  float64 `json:"confidence"`
}

// Resolve looks up a place name. Provider failures (timeout, non-2xx,
// malformed body) all map to domain.ErrGeocodingUnavailable so the caller's
// retry policy can distinguish them from a clean "not found".
func (c *Client) Resolve(ctx context.Context, place string) ([]domain.ResolvedLocation, error) {
	endpoint := fmt.Sprintf("%s/geocode?q=%s&limit=%d", c.baseURL, url.QueryEscape(place), maxCandidates)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrGeocodingUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGeocodingUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrGeocodingUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var raw []candidate
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrGeocodingUnavailable, err)
	}

	out := make([]domain.ResolvedLocation, 0, len(raw))
	for _, cand := range raw {
		loc := domain.ResolvedLocation{
			Name:       cand.DisplayName,
			Latitude:   cand.Latitude,
			Longitude:  cand.Longitude,
			Timezone:   cand.Timezone,
			Confidence: cand.Confidence,
		}
		// Drop candidates violating the coordinate/timezone invariants rather
		// than letting them reach the conversation flow.
		if !loc.Valid() {
			slog.Warn("Dropping invalid geocoding candidate", "timezone", cand.Timezone)
			continue
		}
		out = append(out, loc)
		if len(out) == maxCandidates {
			break
		}
	}

	return out, nil
}
