// Package ingest reads the reference datasets that feed the terminology
// index: the ICD-11 TM2 extract, the NAMASTE morbidity CSV exports, and
// their Postgres mirror.
package ingest

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/aryan-tembhurne5XX5/AIIMS/internal/domain/terminology"
)

// TermSource is one dataset contributing records to the index.
type TermSource interface {
	// Name identifies the source in logs and errors.
	Name() string
	// Load reads and parses the complete dataset.
	Load(ctx context.Context) ([]terminology.TermRecord, error)
}

// Loader reads every source concurrently and concatenates the results in
// registration order, so the index key order stays stable across reloads
// no matter which source finishes first.
type Loader struct {
	sources []TermSource
}

// NewLoader creates a loader over a fixed source sequence.
func NewLoader(sources ...TermSource) *Loader {
	return &Loader{sources: sources}
}

// Load implements terminology.DatasetLoader. Any source failure aborts
// the whole load; a partial dataset must never replace a complete one.
func (l *Loader) Load(ctx context.Context) ([]terminology.TermRecord, error) {
	results := make([][]terminology.TermRecord, len(l.sources))
	g, ctx := errgroup.WithContext(ctx)
	for i, src := range l.sources {
		i, src := i, src
		g.Go(func() error {
			records, err := src.Load(ctx)
			if err != nil {
				return fmt.Errorf("%s: %w", src.Name(), err)
			}
			results[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []terminology.TermRecord
	for _, records := range results {
		out = append(out, records...)
	}
	return out, nil
}
