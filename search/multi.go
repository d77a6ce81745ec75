package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/smhanov/dossier"
)

// Multi tries providers in order and returns the first successful answer.
type Multi struct {
	Providers []dossier.SearchProvider
}

// NewMulti builds a fallback chain. Nil providers are ignored.
func NewMulti(providers ...dossier.SearchProvider) *Multi {
	m := &Multi{}
	for _, p := range providers {
		if p != nil {
			m.Providers = append(m.Providers, p)
		}
	}
	return m
}

// Search returns the results of the first provider that succeeds. If all of
// them fail the errors are joined.
func (m *Multi) Search(ctx context.Context, query string) ([]dossier.SearchResult, error) {
	if len(m.Providers) == 0 {
		return nil, errors.New("search: no providers configured")
	}
	var errs []error
	for i, p := range m.Providers {
		results, err := p.Search(ctx, query)
		if err == nil {
			return results, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = append(errs, fmt.Errorf("provider %d: %w", i, err))
	}
	return nil, errors.Join(errs...)
}
