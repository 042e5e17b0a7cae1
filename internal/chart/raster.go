package chart

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// maxRasterBytes caps the PNG size accepted from the converter. Chat
	// transports reject oversized attachments.
	maxRasterBytes = 5 << 20 // 5 MB

	// defaultDPI is the raster resolution requested from the converter.
	defaultDPI = 150
)

// Converter turns a vector chart into raster image bytes.
type Converter interface {
	Convert(ctx context.Context, svg []byte) ([]byte, error)
}

// RasterClient is an HTTP client for the SVG-to-PNG conversion service.
type RasterClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRasterClient creates a raster conversion client for the given base URL.
func NewRasterClient(baseURL string, hc *http.Client) *RasterClient {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &RasterClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: hc,
	}
}

// Convert posts SVG bytes and returns the PNG result, enforcing the size cap.
func (c *RasterClient) Convert(ctx context.Context, svg []byte) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/v1/convert?dpi=%d", c.baseURL, defaultDPI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(svg))
	if err != nil {
		return nil, fmt.Errorf("build convert request: %w", err)
	}
	req.Header.Set("Content-Type", "image/svg+xml")
	req.Header.Set("Accept", "image/png")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("raster converter call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("raster converter status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	png, err := io.ReadAll(io.LimitReader(resp.Body, maxRasterBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read converted image: %w", err)
	}
	if len(png) == 0 {
		return nil, fmt.Errorf("raster converter returned empty image")
	}
	if len(png) > maxRasterBytes {
		return nil, fmt.Errorf("converted image exceeds %d MB limit", maxRasterBytes>>20)
	}
	return png, nil
}
