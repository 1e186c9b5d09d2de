// Package exporter reads an engine's configuration from a cluster into a
// bundle file.
package exporter

import (
	"context"
	"fmt"

	"github.com/3leaps/engineshift/pkg/appsearch"
	"github.com/3leaps/engineshift/pkg/bundle"
)

// Source is the read side of the cluster API used by Export.
// *appsearch.Client implements it.
type Source interface {
	GetEngine(ctx context.Context, name string) (*appsearch.Engine, error)
	GetSchema(ctx context.Context, engine string) (appsearch.Schema, error)
	ListSynonymSets(ctx context.Context, engine string) ([]appsearch.SynonymSet, error)
	ListCurations(ctx context.Context, engine string) ([]appsearch.Curation, error)
	GetSearchSettings(ctx context.Context, engine string) (appsearch.SearchSettings, error)
	GetCrawler(ctx context.Context, engine string) (*appsearch.Crawler, error)
}

// Export stages, reported in ExportError.
const (
	StageEngine         = "engine"
	StageSchema         = "schema"
	StageSynonyms       = "synonyms"
	StageCurations      = "curations"
	StageSearchSettings = "search_settings"
	StageCrawler        = "crawler"
	StageWrite          = "write"
)

// ExportError identifies the engine and stage at which an export failed.
type ExportError struct {
	Engine string
	Stage  string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s: %s: %v", e.Engine, e.Stage, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// Build fetches the engine configuration into a bundle without writing it.
func Build(ctx context.Context, src Source, name string) (*bundle.Bundle, error) {
	fail := func(stage string, err error) (*bundle.Bundle, error) {
		return nil, &ExportError{Engine: name, Stage: stage, Err: err}
	}

	meta, err := src.GetEngine(ctx, name)
	if err != nil {
		return fail(StageEngine, err)
	}

	b := bundle.New(name)
	b.Engine.Type = meta.Type
	b.Engine.Language = meta.Language

	schema, err := src.GetSchema(ctx, name)
	if err != nil {
		return fail(StageSchema, err)
	}
	for field, typ := range schema {
		b.Schema[field] = typ
	}

	syns, err := src.ListSynonymSets(ctx, name)
	if err != nil {
		return fail(StageSynonyms, err)
	}
	for _, s := range syns {
		b.Synonyms = append(b.Synonyms, s.Synonyms)
	}

	curs, err := src.ListCurations(ctx, name)
	if err != nil {
		return fail(StageCurations, err)
	}
	for _, c := range curs {
		b.Curations = append(b.Curations, bundle.Curation{Queries: c.Queries, Promoted: c.Promoted, Hidden: c.Hidden})
	}

	settings, err := src.GetSearchSettings(ctx, name)
	if err != nil {
		return fail(StageSearchSettings, err)
	}
	if len(settings) > 0 {
		b.SearchSettings = map[string]any(settings)
	}

	crawler, err := src.GetCrawler(ctx, name)
	if err != nil {
		return fail(StageCrawler, err)
	}
	b.Crawler = convertCrawler(crawler)

	return b, nil
}

// Export fetches the engine configuration and writes it to path. The bundle
// format follows the path extension.
func Export(ctx context.Context, src Source, name, path string) (*bundle.Bundle, error) {
	b, err := Build(ctx, src, name)
	if err != nil {
		return nil, err
	}
	if err := bundle.Write(path, b); err != nil {
		return nil, &ExportError{Engine: name, Stage: StageWrite, Err: err}
	}
	return b, nil
}

func convertCrawler(c *appsearch.Crawler) *bundle.Crawler {
	if c == nil || len(c.Domains) == 0 {
		return nil
	}
	out := &bundle.Crawler{Domains: make([]bundle.Domain, 0, len(c.Domains))}
	for _, d := range c.Domains {
		bd := bundle.Domain{Name: d.Name}
		for _, ep := range d.EntryPoints {
			bd.EntryPoints = append(bd.EntryPoints, ep.Value)
		}
		for _, r := range d.CrawlRules {
			bd.CrawlRules = append(bd.CrawlRules, bundle.CrawlRule{Policy: r.Policy, Rule: r.Rule, Pattern: r.Pattern, Order: r.Order})
		}
		for _, s := range d.Sitemaps {
			bd.Sitemaps = append(bd.Sitemaps, s.URL)
		}
		out.Domains = append(out.Domains, bd)
	}
	return out
}
