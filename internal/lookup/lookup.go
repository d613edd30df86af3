// Package lookup tries an ordered list of sources and returns the first
// value one of them has.
package lookup

import (
	"context"
	"log/slog"

	"go.uber.org/multierr"
)

// Source yields a value. ok is false when the source has nothing.
type Source[T any] struct {
	Name string
	Get  func(ctx context.Context) (value T, ok bool, err error)
}

// Chain is an ordered list of sources.
type Chain[T any] struct {
	sources []Source[T]
	logger  *slog.Logger
}

func NewChain[T any](logger *slog.Logger, sources ...Source[T]) *Chain[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain[T]{sources: sources, logger: logger}
}

// Get returns the first value found, the name of the source that had it and
// whether any did. Failing sources are skipped; their errors are returned
// only when no source had a value.
func (c *Chain[T]) Get(ctx context.Context) (T, string, bool, error) {
	var errs error
	for _, src := range c.sources {
		v, ok, err := src.Get(ctx)
		if err != nil {
			c.logger.Warn("lookup source failed", "source", src.Name, "error", err)
			errs = multierr.Append(errs, err)
			continue
		}
		if ok {
			return v, src.Name, true, nil
		}
	}
	var zero T
	return zero, "", false, errs
}
