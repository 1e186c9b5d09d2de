package appsearch

import (
	"context"
	"encoding/json"
	"net/http"
)

// Schema maps field names to field types ("text", "number", "date", "geolocation").
type Schema map[string]string

// SynonymSet is one group of equivalent terms.
type SynonymSet struct {
	ID       string   `json:"id,omitempty"`
	Synonyms []string `json:"synonyms"`
}

// Curation pins and hides documents for a set of queries.
type Curation struct {
	ID       string   `json:"id,omitempty"`
	Queries  []string `json:"queries"`
	Promoted []string `json:"promoted,omitempty"`
	Hidden   []string `json:"hidden,omitempty"`
}

// SearchSettings is kept as a raw map so unknown keys survive export.
type SearchSettings map[string]any

// GetSchema returns the engine schema.
func (c *Client) GetSchema(ctx context.Context, engine string) (Schema, error) {
	var s Schema
	if err := c.do(ctx, "GetSchema", http.MethodGet, enginePath(engine, "schema"), nil, nil, &s); err != nil {
		return nil, err
	}
	if s == nil {
		s = Schema{}
	}
	return s, nil
}

// UpdateSchema adds or changes fields. Existing fields not named are kept.
func (c *Client) UpdateSchema(ctx context.Context, engine string, fields Schema) error {
	return c.do(ctx, "UpdateSchema", http.MethodPost, enginePath(engine, "schema"), nil, fields, nil)
}

// ListSynonymSets returns every synonym set of the engine.
func (c *Client) ListSynonymSets(ctx context.Context, engine string) ([]SynonymSet, error) {
	var out []SynonymSet
	err := c.drain(ctx, "ListSynonymSets", enginePath(engine, "synonyms"), func(raw json.RawMessage) error {
		var s SynonymSet
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSynonymSet creates one synonym set.
func (c *Client) CreateSynonymSet(ctx context.Context, engine string, synonyms []string) error {
	payload := map[string]any{"synonyms": synonyms}
	return c.do(ctx, "CreateSynonymSet", http.MethodPost, enginePath(engine, "synonyms"), nil, payload, nil)
}

// ListCurations returns every curation of the engine.
func (c *Client) ListCurations(ctx context.Context, engine string) ([]Curation, error) {
	var out []Curation
	err := c.drain(ctx, "ListCurations", enginePath(engine, "curations"), func(raw json.RawMessage) error {
		var cur Curation
		if err := json.Unmarshal(raw, &cur); err != nil {
			return err
		}
		out = append(out, cur)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateCuration creates a curation. The ID of the input is ignored.
func (c *Client) CreateCuration(ctx context.Context, engine string, cur Curation) error {
	cur.ID = ""
	return c.do(ctx, "CreateCuration", http.MethodPost, enginePath(engine, "curations"), nil, cur, nil)
}

// GetSearchSettings returns the engine search settings.
func (c *Client) GetSearchSettings(ctx context.Context, engine string) (SearchSettings, error) {
	var s SearchSettings
	if err := c.do(ctx, "GetSearchSettings", http.MethodGet, enginePath(engine, "search_settings"), nil, nil, &s); err != nil {
		return nil, err
	}
	return s, nil
}

// UpdateSearchSettings replaces the engine search settings.
func (c *Client) UpdateSearchSettings(ctx context.Context, engine string, settings SearchSettings) error {
	return c.do(ctx, "UpdateSearchSettings", http.MethodPut, enginePath(engine, "search_settings"), nil, settings, nil)
}
