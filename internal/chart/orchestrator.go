package chart

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"natalbot/internal/domain"
)

// Orchestrator coordinates chart generation: engine call, raster conversion,
// and the deletion of every intermediate artifact. The deletion hook is the
// privacy contract and runs on every return path, including panics inside
// the external calls.
type Orchestrator struct {
	renderer  Renderer
	converter Converter
}

// NewOrchestrator creates an orchestrator over the given engine and
// converter clients.
func NewOrchestrator(renderer Renderer, converter Converter) *Orchestrator {
	return &Orchestrator{renderer: renderer, converter: converter}
}

// Generate produces the raster chart for a complete draft. Any engine or
// conversion failure is wrapped in domain.ErrGenerationFailed; the caller
// must not retry automatically. The draft snapshot passed in belongs to the
// caller; this function never retains it.
func (o *Orchestrator) Generate(ctx context.Context, draft domain.BirthDraft) ([]byte, error) {
	if !draft.Complete() {
		return nil, fmt.Errorf("%w: draft is incomplete", domain.ErrGenerationFailed)
	}

	// jobID correlates log lines without referencing any personal data.
	jobID := uuid.NewString()

	var svg []byte
	defer func() {
		// Deletion hook: scrub the vector intermediate no matter how we exit.
		Scrub(svg)
		slog.Debug("Chart intermediates scrubbed", "job_id", jobID)
	}()

	req := RequestFromDraft(draft)

	svg, err := o.renderer.Render(ctx, req)
	if err != nil {
		slog.Error("Chart engine failed", "job_id", jobID, "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}
	slog.Info("Vector chart rendered", "job_id", jobID, "svg_bytes", len(svg))

	png, err := o.converter.Convert(ctx, svg)
	if err != nil {
		slog.Error("Raster conversion failed", "job_id", jobID, "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}
	slog.Info("Chart rasterized", "job_id", jobID, "png_bytes", len(png))

	return png, nil
}

// Scrub zeroes a sensitive byte buffer in place.
func Scrub(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
