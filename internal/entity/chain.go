package entity

import (
	"context"
	"errors"

	"github.com/skillminer/memoryd/internal/memory"
)

// Chain tries each extractor in order and returns the first non-empty
// result. Errors from earlier links are passed to OnError and only returned
// when every link failed.
type Chain struct {
	Extractors []memory.EntityExtractor

	// OnError, when set, is called for each failing link.
	OnError func(ctx context.Context, err error)
}

var _ memory.EntityExtractor = (*Chain)(nil)

// NewChain creates a chain of extractors.
func NewChain(extractors ...memory.EntityExtractor) *Chain {
	return &Chain{Extractors: extractors}
}

// ExtractEntities implements memory.EntityExtractor.
func (c *Chain) ExtractEntities(ctx context.Context, text string) (memory.Entities, error) {
	var errs []error
	succeeded := false
	for _, x := range c.Extractors {
		ents, err := x.ExtractEntities(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			errs = append(errs, err)
			if c.OnError != nil {
				c.OnError(ctx, err)
			}
			continue
		}
		succeeded = true
		if !ents.Empty() {
			return ents, nil
		}
	}
	if !succeeded && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return memory.Entities{}, nil
}
