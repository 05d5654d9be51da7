// Package export writes rendered run artifacts to one or more sinks.
package export

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"causal-commerce-lab/internal/observability"
)

// ErrNoSinks is returned when an Exporter has nothing to write to.
var ErrNoSinks = errors.New("no export sinks configured")

// File is one rendered artifact.
type File struct {
	Name        string
	Data        []byte
	ContentType string
}

// Sink stores artifacts of a run.
type Sink interface {
	Name() string
	Put(ctx context.Context, runID string, f File) error
}

// Exporter fans files out to every sink concurrently.
type Exporter struct {
	sinks   []Sink
	metrics *observability.Metrics
}

// NewExporter creates an Exporter. metrics may be nil to use the defaults.
func NewExporter(metrics *observability.Metrics, sinks ...Sink) *Exporter {
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}
	return &Exporter{sinks: sinks, metrics: metrics}
}

// Sinks returns the configured sink names.
func (e *Exporter) Sinks() []string {
	names := make([]string, len(e.sinks))
	for i, s := range e.sinks {
		names[i] = s.Name()
	}
	return names
}

// Export writes every file to every sink. The first failure cancels the rest.
func (e *Exporter) Export(ctx context.Context, runID string, files []File) error {
	if len(e.sinks) == 0 {
		return ErrNoSinks
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range e.sinks {
		g.Go(func() error {
			err := writeAll(gctx, s, runID, files)
			e.metrics.RecordExport(s.Name(), len(files), err)
			if err != nil {
				return fmt.Errorf("export to %s: %w", s.Name(), err)
			}
			log.Printf("[export] wrote %d files for run %s to %s", len(files), runID, s.Name())
			return nil
		})
	}
	return g.Wait()
}

func writeAll(ctx context.Context, s Sink, runID string, files []File) error {
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Put(ctx, runID, f); err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
	}
	return nil
}
