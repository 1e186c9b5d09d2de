package migrate

import (
	"context"

	"github.com/3leaps/engineshift/pkg/appsearch"
)

// Page is one page of an engine listing.
type Page struct {
	Engines    []EngineRef
	Current    int
	TotalPages int
}

// Lister enumerates engines page by page (1-based).
type Lister interface {
	ListEngines(ctx context.Context, page, size int) (*Page, error)
}

// ListerFunc adapts a function to Lister.
type ListerFunc func(ctx context.Context, page, size int) (*Page, error)

func (f ListerFunc) ListEngines(ctx context.Context, page, size int) (*Page, error) {
	return f(ctx, page, size)
}

// ListAll drains every page of l in listing order. It stops when the reported
// page count is reached or a page is empty. Any page error aborts the whole
// listing with a *ListingError.
func ListAll(ctx context.Context, l Lister, cluster string, size int) ([]EngineRef, error) {
	var out []EngineRef
	for page := 1; ; page++ {
		p, err := l.ListEngines(ctx, page, size)
		if err != nil {
			return nil, &ListingError{Cluster: cluster, Page: page, Err: err}
		}
		out = append(out, p.Engines...)
		if len(p.Engines) == 0 || page >= p.TotalPages {
			return out, nil
		}
	}
}

// EngineLister is the listing subset of *appsearch.Client.
type EngineLister interface {
	ListEngines(ctx context.Context, page, size int) (*appsearch.EnginePage, error)
}

// ClientLister adapts an appsearch client to Lister.
type ClientLister struct {
	Client EngineLister
}

// ListEngines implements Lister.
func (c ClientLister) ListEngines(ctx context.Context, page, size int) (*Page, error) {
	p, err := c.Client.ListEngines(ctx, page, size)
	if err != nil {
		return nil, err
	}
	refs := make([]EngineRef, 0, len(p.Engines))
	for _, e := range p.Engines {
		refs = append(refs, EngineRef{Name: e.Name, Type: e.Type, Language: e.Language})
	}
	return &Page{Engines: refs, Current: p.Current, TotalPages: p.TotalPages}, nil
}
