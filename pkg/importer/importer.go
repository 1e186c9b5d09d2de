// Package importer recreates an engine on a cluster from a bundle.
//
// The service deletes engines asynchronously, so replacing an engine waits
// until the old one is gone and retries the create while the name is still
// reported as taken. Both loops are bounded by Options.
package importer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"

	"github.com/3leaps/engineshift/pkg/appsearch"
	"github.com/3leaps/engineshift/pkg/bundle"
)

// Target is the write side of the cluster API used by Import.
// *appsearch.Client implements it.
type Target interface {
	GetEngine(ctx context.Context, name string) (*appsearch.Engine, error)
	CreateEngine(ctx context.Context, name, language string) (*appsearch.Engine, error)
	DeleteEngine(ctx context.Context, name string) error
	UpdateSchema(ctx context.Context, engine string, fields appsearch.Schema) error
	CreateSynonymSet(ctx context.Context, engine string, synonyms []string) error
	CreateCuration(ctx context.Context, engine string, cur appsearch.Curation) error
	UpdateSearchSettings(ctx context.Context, engine string, settings appsearch.SearchSettings) error
	CreateCrawlerDomain(ctx context.Context, engine, name string) (*appsearch.CrawlerDomain, error)
	CreateEntryPoint(ctx context.Context, engine, domainID, value string) error
	CreateCrawlRule(ctx context.Context, engine, domainID string, rule appsearch.CrawlRule) error
	CreateSitemap(ctx context.Context, engine, domainID, sitemapURL string) error
}

// Import stages, reported in ImportError.
const (
	StageLookup         = "lookup"
	StageDelete         = "delete"
	StageCreate         = "create"
	StageSchema         = "schema"
	StageSynonyms       = "synonyms"
	StageCurations      = "curations"
	StageSearchSettings = "search_settings"
)

// Default tuning for Options.
const (
	DefaultSchemaBatchSize    = 64
	DefaultCreateAttempts     = 10
	DefaultCreateDelay        = 5 * time.Second
	DefaultDeleteWaitAttempts = 30
	DefaultDeleteWaitDelay    = 2 * time.Second
)

// Options controls a single import.
type Options struct {
	// Name is the destination engine name. Empty uses the bundle's name.
	Name string

	// Force replaces an existing destination engine.
	Force bool

	// SchemaBatchSize is the number of fields sent per schema update.
	SchemaBatchSize int

	// CreateAttempts and CreateDelay bound the create retry while the
	// service still reports the name as taken.
	CreateAttempts int
	CreateDelay    time.Duration

	// DeleteWaitAttempts and DeleteWaitDelay bound polling for a replaced
	// engine to disappear.
	DeleteWaitAttempts int
	DeleteWaitDelay    time.Duration

	// Clock drives retry delays. Nil uses the wall clock.
	Clock clock.Clock

	// Warnf receives non-fatal problems, such as crawler sub-resources that
	// could not be created. May be nil.
	Warnf func(format string, args ...any)
}

// DefaultOptions returns Options with the default retry budgets.
func DefaultOptions() Options {
	return Options{
		SchemaBatchSize:    DefaultSchemaBatchSize,
		CreateAttempts:     DefaultCreateAttempts,
		CreateDelay:        DefaultCreateDelay,
		DeleteWaitAttempts: DefaultDeleteWaitAttempts,
		DeleteWaitDelay:    DefaultDeleteWaitDelay,
	}
}

func (o *Options) applyDefaults() {
	d := DefaultOptions()
	if o.SchemaBatchSize <= 0 {
		o.SchemaBatchSize = d.SchemaBatchSize
	}
	if o.CreateAttempts <= 0 {
		o.CreateAttempts = d.CreateAttempts
	}
	if o.CreateDelay <= 0 {
		o.CreateDelay = d.CreateDelay
	}
	if o.DeleteWaitAttempts <= 0 {
		o.DeleteWaitAttempts = d.DeleteWaitAttempts
	}
	if o.DeleteWaitDelay <= 0 {
		o.DeleteWaitDelay = d.DeleteWaitDelay
	}
	if o.Clock == nil {
		o.Clock = clock.WallClock
	}
}

// Result summarizes a successful import.
type Result struct {
	Engine         string
	Replaced       bool
	CreateAttempts int
	SchemaFields   int
	SchemaBatches  int
	Synonyms       int
	Curations      int
	SearchSettings bool
	CrawlerDomains int
	Warnings       []string
}

type importer struct {
	dst  Target
	opts Options
	name string
	res  *Result
}

// ImportFile reads a bundle from path and imports it.
func ImportFile(ctx context.Context, dst Target, path string, opts Options) (*Result, error) {
	b, err := bundle.Read(path)
	if err != nil {
		name := opts.Name
		if name == "" {
			name = path
		}
		return nil, &ImportError{Kind: KindFatal, Engine: name, Stage: "read", Err: err}
	}
	return Import(ctx, dst, b, opts)
}

// Import creates the engine described by b on dst.
//
// Returns *ImportError on failure. Crawler sub-resource failures do not fail
// the import; they are reported in Result.Warnings and through Options.Warnf.
func Import(ctx context.Context, dst Target, b *bundle.Bundle, opts Options) (*Result, error) {
	if b == nil {
		return nil, &ImportError{Kind: KindFatal, Engine: opts.Name, Stage: "read", Err: errors.New("bundle is nil")}
	}
	opts.applyDefaults()

	name := opts.Name
	if name == "" {
		name = b.Engine.Name
	}
	im := &importer{dst: dst, opts: opts, name: name, res: &Result{Engine: name}}

	steps := []func(context.Context, *bundle.Bundle) error{
		im.prepare,
		im.create,
		im.applySchema,
		im.applySynonyms,
		im.applyCurations,
		im.applySearchSettings,
		im.applyCrawler,
	}
	for _, step := range steps {
		if err := step(ctx, b); err != nil {
			return nil, err
		}
	}
	return im.res, nil
}

func (im *importer) fail(stage string, err error) error {
	return &ImportError{Kind: classify(err), Engine: im.name, Stage: stage, Err: err}
}

func (im *importer) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	im.res.Warnings = append(im.res.Warnings, msg)
	if im.opts.Warnf != nil {
		im.opts.Warnf("%s", msg)
	}
}

// prepare checks the destination and, with Force, removes an existing engine.
func (im *importer) prepare(ctx context.Context, _ *bundle.Bundle) error {
	_, err := im.dst.GetEngine(ctx, im.name)
	switch {
	case appsearch.IsNotFound(err):
		return nil
	case err != nil:
		return im.fail(StageLookup, err)
	}

	if !im.opts.Force {
		return &ImportError{
			Kind:   KindAlreadyExists,
			Engine: im.name,
			Stage:  StageLookup,
			Err:    fmt.Errorf("engine %q already exists on target (use force to replace)", im.name),
		}
	}

	if err := im.dst.DeleteEngine(ctx, im.name); err != nil && !appsearch.IsNotFound(err) {
		return im.fail(StageDelete, err)
	}
	im.res.Replaced = true
	return im.waitDeleted(ctx)
}

var errStillPresent = errors.New("engine still present")

func (im *importer) waitDeleted(ctx context.Context) error {
	var lastErr error
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			_, err := im.dst.GetEngine(ctx, im.name)
			switch {
			case appsearch.IsNotFound(err):
				lastErr = nil
				return nil
			case err == nil:
				lastErr = errStillPresent
			default:
				lastErr = err
			}
			return lastErr
		},
		IsFatalError: func(err error) bool {
			return !errors.Is(err, errStillPresent) && !appsearch.IsRetriable(err)
		},
		Attempts: im.opts.DeleteWaitAttempts,
		Delay:    im.opts.DeleteWaitDelay,
		Clock:    im.opts.Clock,
		Stop:     ctx.Done(),
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return &ImportError{Kind: KindFatal, Engine: im.name, Stage: StageDelete, Err: ctx.Err()}
	}
	if retry.IsAttemptsExceeded(err) {
		return &ImportError{
			Kind:   KindRetriable,
			Engine: im.name,
			Stage:  StageDelete,
			Err:    fmt.Errorf("engine still present after %d checks: %w", im.opts.DeleteWaitAttempts, lastErr),
		}
	}
	return im.fail(StageDelete, lastErr)
}

// create retries while the name is still held by a deleted engine.
func (im *importer) create(ctx context.Context, b *bundle.Bundle) error {
	var lastErr error
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			im.res.CreateAttempts++
			_, lastErr = im.dst.CreateEngine(ctx, im.name, b.Engine.Language)
			return lastErr
		},
		IsFatalError: func(err error) bool {
			return !appsearch.IsAlreadyExists(err) && !appsearch.IsRetriable(err)
		},
		Attempts: im.opts.CreateAttempts,
		Delay:    im.opts.CreateDelay,
		Clock:    im.opts.Clock,
		Stop:     ctx.Done(),
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return &ImportError{Kind: KindFatal, Engine: im.name, Stage: StageCreate, Err: ctx.Err()}
	}
	if retry.IsAttemptsExceeded(err) {
		return &ImportError{
			Kind:   KindRetriable,
			Engine: im.name,
			Stage:  StageCreate,
			Err:    fmt.Errorf("create failed after %d attempts: %w", im.opts.CreateAttempts, lastErr),
		}
	}
	return im.fail(StageCreate, lastErr)
}

func (im *importer) applySchema(ctx context.Context, b *bundle.Bundle) error {
	fields := make([]string, 0, len(b.Schema))
	for f := range b.Schema {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for start := 0; start < len(fields); start += im.opts.SchemaBatchSize {
		end := min(start+im.opts.SchemaBatchSize, len(fields))
		batch := make(appsearch.Schema, end-start)
		for _, f := range fields[start:end] {
			batch[f] = b.Schema[f]
		}
		if err := im.dst.UpdateSchema(ctx, im.name, batch); err != nil {
			return im.fail(StageSchema, err)
		}
		im.res.SchemaBatches++
	}
	im.res.SchemaFields = len(fields)
	return nil
}

func (im *importer) applySynonyms(ctx context.Context, b *bundle.Bundle) error {
	for _, set := range b.Synonyms {
		if err := im.dst.CreateSynonymSet(ctx, im.name, set); err != nil {
			return im.fail(StageSynonyms, err)
		}
		im.res.Synonyms++
	}
	return nil
}

func (im *importer) applyCurations(ctx context.Context, b *bundle.Bundle) error {
	for _, c := range b.Curations {
		cur := appsearch.Curation{Queries: c.Queries, Promoted: c.Promoted, Hidden: c.Hidden}
		if err := im.dst.CreateCuration(ctx, im.name, cur); err != nil {
			return im.fail(StageCurations, err)
		}
		im.res.Curations++
	}
	return nil
}

func (im *importer) applySearchSettings(ctx context.Context, b *bundle.Bundle) error {
	settings := FilterSearchSettings(b.SearchSettings, b.Schema)
	if len(settings) == 0 {
		return nil
	}
	if err := im.dst.UpdateSearchSettings(ctx, im.name, settings); err != nil {
		return im.fail(StageSearchSettings, err)
	}
	im.res.SearchSettings = true
	return nil
}

// applyCrawler never fails the import. Each failure becomes a warning, and a
// domain that cannot be created skips its children.
func (im *importer) applyCrawler(ctx context.Context, b *bundle.Bundle) error {
	if b.Crawler == nil {
		return nil
	}
	for _, d := range b.Crawler.Domains {
		created, err := im.dst.CreateCrawlerDomain(ctx, im.name, d.Name)
		if err != nil {
			im.warn("crawler domain %s: %v", d.Name, err)
			continue
		}
		im.res.CrawlerDomains++

		for _, ep := range d.EntryPoints {
			if err := im.dst.CreateEntryPoint(ctx, im.name, created.ID, ep); err != nil {
				im.warn("crawler domain %s: entry point %s: %v", d.Name, ep, err)
			}
		}
		for _, r := range d.CrawlRules {
			rule := appsearch.CrawlRule{Policy: r.Policy, Rule: r.Rule, Pattern: r.Pattern, Order: r.Order}
			if err := im.dst.CreateCrawlRule(ctx, im.name, created.ID, rule); err != nil {
				im.warn("crawler domain %s: crawl rule %s %s: %v", d.Name, r.Policy, r.Pattern, err)
			}
		}
		for _, sm := range d.Sitemaps {
			if err := im.dst.CreateSitemap(ctx, im.name, created.ID, sm); err != nil {
				im.warn("crawler domain %s: sitemap %s: %v", d.Name, sm, err)
			}
		}
	}
	return nil
}
