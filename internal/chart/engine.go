// Package chart assembles normalized birth data into chart-engine requests,
// drives raster conversion, and guarantees deletion of every intermediate
// artifact regardless of outcome.
package chart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"natalbot/internal/domain"
)

// Request is the normalized input shape for the external chart engine.
type Request struct {
	Name      string  `json:"name"`
	Date      string  `json:"date"` // YYYY-MM-DD
	Time      string  `json:"time"` // HH:MM
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
}

// Renderer produces a vector (SVG) chart from normalized birth data.
type Renderer interface {
	Render(ctx context.Context, req Request) ([]byte, error)
}

// EngineClient is an HTTP client for the external chart engine.
type EngineClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewEngineClient creates a chart engine client for the given base URL.
func NewEngineClient(baseURL string, hc *http.Client) *EngineClient {
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	return &EngineClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: hc,
	}
}

// Render posts the birth data to the engine and returns the SVG bytes.
func (c *EngineClient) Render(ctx context.Context, req Request) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode chart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/charts", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chart request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "image/svg+xml")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chart engine call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("chart engine status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	svg, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read chart response: %w", err)
	}
	if len(svg) == 0 {
		return nil, fmt.Errorf("chart engine returned empty document")
	}
	return svg, nil
}

// RequestFromDraft builds the engine request from a complete draft.
func RequestFromDraft(draft domain.BirthDraft) Request {
	loc := draft.Location
	return Request{
		Name:      draft.Name,
		Date:      draft.Date.String(),
		Time:      draft.EffectiveTime().String(),
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Timezone:  loc.Timezone,
	}
}
