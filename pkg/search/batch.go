package search

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ChrisMcGann/PepMap/pkg/index"
)

// SearchBatch runs queries concurrently, one query per worker, and calls
// visit with each query's results in input order once all have finished.
//
// Every query is validated before any search starts. An index inconsistency
// in any query aborts the batch; other per-query failures are left in the
// query's Results.Err. Returning an error from visit stops the iteration.
func (e *Engine) SearchBatch(ctx context.Context, queries []*Query, visit func(*Query, *Results) error) error {
	for i, q := range queries {
		if err := q.Validate(e.table); err != nil {
			queriesTotal.WithLabelValues("invalid").Inc()
			return fmt.Errorf("query %d: %w", i+1, err)
		}
	}

	results := make([]*Results, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, q := range queries {
		g.Go(func() error {
			matches, stats, err := e.run(gctx, q, 1)
			results[i] = &Results{matches: matches, stats: stats, err: err}
			if errors.Is(err, index.ErrIndexInconsistent) {
				return fmt.Errorf("query '%s': %w", q.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for i, q := range queries {
		if err := visit(q, results[i]); err != nil {
			return err
		}
	}
	return nil
}
