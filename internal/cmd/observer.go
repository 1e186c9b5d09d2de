package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/3leaps/engineshift/pkg/migrate"
	"github.com/3leaps/engineshift/pkg/output"
)

// logObserver reports run events on the CLI logger.
type logObserver struct {
	logger *zap.Logger
}

func (l logObserver) PlanReady(p *migrate.Plan) {
	fields := []zap.Field{
		zap.Int("listed", p.Listed),
		zap.Int("candidates", len(p.Candidates)),
		zap.Int("will_migrate", len(p.WorkSet)),
	}
	for _, c := range migrate.Classifications {
		if n := p.Count(c); n > 0 {
			fields = append(fields, zap.Int(string(c), n))
		}
	}
	l.logger.Info("Plan ready", fields...)
}

func (l logObserver) UnitDone(o migrate.Outcome) {
	if !o.OK() {
		l.logger.Warn("Engine failed",
			zap.String("engine", o.Engine),
			zap.String("dest", o.Dest),
			zap.Duration("duration", o.Duration),
			zap.Error(o.Err))
		return
	}
	l.logger.Info("Engine migrated",
		zap.String("engine", o.Engine),
		zap.String("dest", o.Dest),
		zap.Duration("duration", o.Duration))
	for _, w := range o.Warnings {
		l.logger.Warn("Import warning", zap.String("engine", o.Engine), zap.String("warning", w))
	}
}

func (l logObserver) BatchDone(p migrate.Progress) {
	eta := "unknown"
	if p.HasETA {
		eta = p.ETA.Round(time.Second).String()
	}
	l.logger.Info(fmt.Sprintf("Batch %d/%d: %s/%s engines (%.0f%%)",
		p.Batch, p.Batches,
		humanize.Comma(int64(p.Processed)), humanize.Comma(int64(p.Total)),
		percent(p.Processed, p.Total)),
		zap.Int("succeeded", p.Succeeded),
		zap.Int("failed", p.Failed),
		zap.String("elapsed", p.Elapsed.Round(time.Second).String()),
		zap.String("rate", fmt.Sprintf("%.2f/s", p.Throughput)),
		zap.String("eta", eta))
}

func (l logObserver) RunDone(*migrate.Report) {}

func percent(n, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(n) * 100 / float64(total)
}

// eventObserver mirrors run events onto a JSONL writer. Write failures are
// logged at debug level and never stop the run.
type eventObserver struct {
	ctx    context.Context
	w      output.Writer
	opts   migrate.Options
	logger *zap.Logger
}

func (e eventObserver) check(kind string, err error) {
	if err != nil {
		e.logger.Debug("Event write failed", zap.String("record", kind), zap.Error(err))
	}
}

func (e eventObserver) PlanReady(p *migrate.Plan) {
	e.check("plan", e.w.WritePlan(e.ctx, planRecord(p, e.opts)))
}

func (e eventObserver) UnitDone(o migrate.Outcome) {
	e.check("unit", e.w.WriteUnit(e.ctx, unitRecord(o)))
}

func (e eventObserver) BatchDone(p migrate.Progress) {
	e.check("progress", e.w.WriteProgress(e.ctx, progressRecord(p)))
}

func (e eventObserver) RunDone(r *migrate.Report) {
	e.check("summary", e.w.WriteSummary(e.ctx, summaryRecord(r)))
}

func planRecord(p *migrate.Plan, opts migrate.Options) *output.PlanRecord {
	counts := make(map[string]int, len(migrate.Classifications))
	for _, c := range migrate.Classifications {
		counts[string(c)] = p.Count(c)
	}
	return &output.PlanRecord{
		Listed:      p.Listed,
		Candidates:  len(p.Candidates),
		WillMigrate: len(p.WorkSet),
		Counts:      counts,
		Concurrency: opts.Concurrency,
		Prefix:      opts.TargetPrefix,
		Resume:      opts.Resume,
		DryRun:      opts.DryRun,
	}
}

func unitRecord(o migrate.Outcome) *output.UnitRecord {
	rec := &output.UnitRecord{
		Engine:        o.Engine,
		Dest:          o.Dest,
		Status:        output.StatusSucceeded,
		Warnings:      o.Warnings,
		Duration:      o.Duration,
		DurationHuman: o.Duration.Round(time.Millisecond).String(),
	}
	if !o.OK() {
		rec.Status = output.StatusFailed
		rec.Error = o.Message()
	}
	return rec
}

func progressRecord(p migrate.Progress) *output.ProgressRecord {
	rec := &output.ProgressRecord{
		Batch:      p.Batch,
		Batches:    p.Batches,
		Processed:  p.Processed,
		Total:      p.Total,
		Succeeded:  p.Succeeded,
		Failed:     p.Failed,
		Elapsed:    p.Elapsed,
		Throughput: p.Throughput,
	}
	if p.HasETA {
		eta := p.ETA
		rec.ETA = &eta
	}
	return rec
}

func summaryRecord(r *migrate.Report) *output.SummaryRecord {
	failed := make([]output.FailedEngine, 0, len(r.FailedEngines))
	for _, f := range r.FailedEngines {
		failed = append(failed, output.FailedEngine{Engine: f.Engine, Error: f.Error})
	}
	return &output.SummaryRecord{
		Total:         r.Total,
		Succeeded:     r.Succeeded,
		Failed:        r.Failed,
		SuccessRate:   r.SuccessRate,
		Completed:     r.Completed,
		FailedEngines: failed,
		Interrupted:   r.Interrupted,
		StateLocation: r.StateLocation,
		Duration:      r.Elapsed,
		DurationHuman: r.Elapsed.Round(time.Millisecond).String(),
	}
}
