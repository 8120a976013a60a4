package match

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"
)

// RunSeries runs independent matches with at most parallelism in flight.
// Each match must own its agents and recorders. Reports come back in input
// order; a nil error means every match ran to completion.
func RunSeries(ctx context.Context, matches []*Match, parallelism int) ([]Report, error) {
	if parallelism < 1 {
		parallelism = 1
	}
	reports := make([]Report, len(matches))
	p := pool.New().WithMaxGoroutines(parallelism).WithContext(ctx)
	for i, m := range matches {
		i, m := i, m
		p.Go(func(ctx context.Context) error {
			rep, err := m.Run(ctx)
			reports[i] = rep
			if err != nil {
				return fmt.Errorf("match %s: %w", m.ID(), err)
			}
			return nil
		})
	}
	return reports, p.Wait()
}
