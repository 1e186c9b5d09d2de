package appsearch

import (
	"context"
	"net/http"
)

// Engine is the engine metadata returned by the service.
type Engine struct {
	Name          string `json:"name"`
	Type          string `json:"type,omitempty"`
	Language      string `json:"language,omitempty"`
	DocumentCount int64  `json:"document_count,omitempty"`
}

// EnginePage is one page of the engine listing.
type EnginePage struct {
	Engines      []Engine
	Current      int
	TotalPages   int
	TotalResults int
}

// HasMore reports whether pages remain after this one.
func (p *EnginePage) HasMore() bool {
	return len(p.Engines) > 0 && p.Current < p.TotalPages
}

type enginesResponse struct {
	Meta    pageMeta `json:"meta"`
	Results []Engine `json:"results"`
}

// ListEngines returns a single page (1-based) of the engine listing.
func (c *Client) ListEngines(ctx context.Context, page, size int) (*EnginePage, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = c.pageSize
	}
	var resp enginesResponse
	if err := c.do(ctx, "ListEngines", http.MethodGet, APIPrefix+"/engines", pageQuery(page, size), nil, &resp); err != nil {
		return nil, err
	}
	current := resp.Meta.Page.Current
	if current == 0 {
		current = page
	}
	return &EnginePage{
		Engines:      resp.Results,
		Current:      current,
		TotalPages:   resp.Meta.Page.TotalPages,
		TotalResults: resp.Meta.Page.TotalResults,
	}, nil
}

// GetEngine returns engine metadata. Returns ErrNotFound if it does not exist.
func (c *Client) GetEngine(ctx context.Context, name string) (*Engine, error) {
	var e Engine
	if err := c.do(ctx, "GetEngine", http.MethodGet, enginePath(name), nil, nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateEngine creates an empty engine. Returns ErrAlreadyExists while the
// name is still taken.
func (c *Client) CreateEngine(ctx context.Context, name, language string) (*Engine, error) {
	payload := map[string]any{"name": name}
	if language != "" {
		payload["language"] = language
	}
	var e Engine
	if err := c.do(ctx, "CreateEngine", http.MethodPost, APIPrefix+"/engines", nil, payload, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// DeleteEngine deletes an engine. Deletion is asynchronous on the service
// side: the name may remain taken for a while after this returns.
func (c *Client) DeleteEngine(ctx context.Context, name string) error {
	return c.do(ctx, "DeleteEngine", http.MethodDelete, enginePath(name), nil, nil, nil)
}
