package migrate

import (
	"context"
	"fmt"
	"os"

	"github.com/juju/clock"

	"github.com/3leaps/engineshift/pkg/bundle"
	"github.com/3leaps/engineshift/pkg/exporter"
	"github.com/3leaps/engineshift/pkg/importer"
)

// Processor runs one unit of work. Failures are reported in the Outcome,
// never as a panic or a separate error.
type Processor interface {
	Process(ctx context.Context, item WorkItem) Outcome
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, item WorkItem) Outcome

func (f ProcessorFunc) Process(ctx context.Context, item WorkItem) Outcome {
	return f(ctx, item)
}

// UnitExporter writes the named source engine to path.
type UnitExporter interface {
	ExportEngine(ctx context.Context, name, path string) error
}

// UnitImporter creates dest on the target from the bundle at path.
type UnitImporter interface {
	ImportEngine(ctx context.Context, path, dest string, force bool) (warnings []string, err error)
}

// Archiver keeps a copy of an exported bundle.
type Archiver interface {
	Store(ctx context.Context, engine, path string) error
}

// ClusterExporter exports through an appsearch source.
type ClusterExporter struct {
	Source exporter.Source
}

// ExportEngine implements UnitExporter.
func (c ClusterExporter) ExportEngine(ctx context.Context, name, path string) error {
	_, err := exporter.Export(ctx, c.Source, name, path)
	return err
}

// ClusterImporter imports into an appsearch target.
type ClusterImporter struct {
	Target  importer.Target
	Options importer.Options
}

// ImportEngine implements UnitImporter.
func (c ClusterImporter) ImportEngine(ctx context.Context, path, dest string, force bool) ([]string, error) {
	opts := c.Options
	opts.Name = dest
	opts.Force = force
	res, err := importer.ImportFile(ctx, c.Target, path, opts)
	if err != nil {
		return nil, err
	}
	return res.Warnings, nil
}

// UnitProcessor exports an engine to OutputDir, optionally archives the
// bundle, then imports it under the destination name. Either phase failing
// fails the unit.
type UnitProcessor struct {
	Exporter UnitExporter
	Importer UnitImporter
	// Archive is optional.
	Archive   Archiver
	OutputDir string
	Format    bundle.Format
	Force     bool
	// Cleanup removes the bundle after a successful import. Removal errors
	// are ignored.
	Cleanup bool
	Clock   clock.Clock
}

// Process implements Processor.
func (p *UnitProcessor) Process(ctx context.Context, item WorkItem) Outcome {
	clk := p.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	start := clk.Now()
	out := Outcome{Engine: item.Engine.Name, Dest: item.Dest}
	finish := func(err error) Outcome {
		out.Err = err
		out.Duration = clk.Now().Sub(start)
		return out
	}

	if err := os.MkdirAll(p.OutputDir, 0755); err != nil {
		return finish(fmt.Errorf("create output dir: %w", err))
	}
	format := p.Format
	if format == "" {
		format = bundle.FormatJSON
	}
	path := bundle.Path(p.OutputDir, item.Engine.Name, format)

	if err := p.Exporter.ExportEngine(ctx, item.Engine.Name, path); err != nil {
		return finish(err)
	}
	if p.Archive != nil {
		if err := p.Archive.Store(ctx, item.Engine.Name, path); err != nil {
			return finish(fmt.Errorf("archive %s: %w", item.Engine.Name, err))
		}
	}

	warnings, err := p.Importer.ImportEngine(ctx, path, item.Dest, p.Force)
	out.Warnings = warnings
	if err != nil {
		return finish(err)
	}

	if p.Cleanup {
		_ = os.Remove(path)
	}
	return finish(nil)
}
