// Package migrate runs resumable bulk migrations of engine configuration
// between clusters.
//
// A run lists the source engines, computes a work set from the filter, the
// stored state and the mode flags, then processes the work set in
// sequential batches of Options.Concurrency units. Units within a batch run
// concurrently; a failing unit never cancels its siblings. After each batch
// the outcomes are folded into the state and the state is saved before the
// next batch starts, so an interrupted run loses at most the batch in
// flight.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/juju/clock"
)

// Orchestrator drives a migration run.
type Orchestrator struct {
	// Source lists the engines to migrate.
	Source Lister
	// Target lists destination engines; needed for SkipExisting and Force.
	Target Lister
	// Store persists state between batches.
	Store Store
	// Processor runs each unit.
	Processor Processor
	// Observer receives progress events. Nil means no events.
	Observer Observer
	// Clock defaults to the wall clock.
	Clock clock.Clock
	// RunID tags reports and events.
	RunID string
}

func (o *Orchestrator) clock() clock.Clock {
	if o.Clock == nil {
		return clock.WallClock
	}
	return o.Clock
}

func (o *Orchestrator) observer() Observer {
	if o.Observer == nil {
		return NopObserver{}
	}
	return o.Observer
}

// Plan lists the clusters, loads or initializes state, and computes the work
// set. It never processes a unit or saves state.
func (o *Orchestrator) Plan(ctx context.Context, opts Options) (*Plan, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if o.Source == nil {
		return nil, &ConfigError{Field: "source", Message: "source lister is required"}
	}
	if opts.Resume && o.Store == nil {
		return nil, &ConfigError{Field: "state_file", Message: "resume requires a state store"}
	}
	if opts.needsTargetNames() && o.Target == nil {
		return nil, &ConfigError{Field: "target", Message: "target lister is required for skip-existing and force"}
	}

	listed, err := ListAll(ctx, o.Source, "source", opts.PageSize)
	if err != nil {
		return nil, err
	}

	var state *State
	if opts.Resume {
		state, err = o.Store.Load(ctx)
		if err != nil {
			return nil, err
		}
	} else {
		state = NewState(o.clock().Now())
	}

	var existing map[string]bool
	if opts.needsTargetNames() {
		targets, err := ListAll(ctx, o.Target, "target", opts.PageSize)
		if err != nil {
			return nil, err
		}
		existing = targetNames(targets, opts.TargetPrefix)
	}

	return ComputePlan(listed, state, existing, opts), nil
}

// Run executes a migration. With DryRun set it returns a report carrying the
// preview and leaves state untouched.
//
// Unit failures are recorded in state and reported, not returned. The
// returned error is non-nil only for configuration, listing and persistence
// failures, or when ctx is cancelled; in the last two cases the partial
// report is returned as well.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Report, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if !opts.DryRun {
		if o.Store == nil {
			return nil, &ConfigError{Field: "state_file", Message: "a state store is required"}
		}
		if o.Processor == nil {
			return nil, &ConfigError{Field: "processor", Message: "a unit processor is required"}
		}
	}

	runStart := o.clock().Now()
	plan, err := o.Plan(ctx, opts)
	if err != nil {
		return nil, err
	}
	obs := o.observer()
	obs.PlanReady(plan)

	if opts.DryRun {
		report := &Report{
			RunID:  o.RunID,
			Total:  len(plan.WorkSet),
			DryRun: DryRun(plan, opts.Concurrency, opts.SecondsPerEngine),
		}
		obs.RunDone(report)
		return report, nil
	}

	state := plan.State
	var pending map[string]string
	if opts.RetryFailedOnly {
		pending = clearRetried(state, plan.WorkSet)
	}
	total := len(plan.WorkSet)
	batches := chunk(plan.WorkSet, opts.Concurrency)
	report := &Report{RunID: o.RunID, Total: total, StateLocation: o.Store.Location()}
	processed := 0

	finish := func(runErr error) (*Report, error) {
		report.fill(state, o.clock().Now().Sub(runStart), o.clock().Now().Sub(state.Started()))
		obs.RunDone(report)
		return report, runErr
	}

	if len(batches) == 0 {
		if err := o.save(ctx, state); err != nil {
			return finish(err)
		}
		return finish(nil)
	}

	for i, batch := range batches {
		outcomes := o.runBatch(ctx, batch)

		interrupted := ctx.Err() != nil
		if interrupted {
			outcomes = settledBeforeCancel(outcomes)
		}

		state.Fold(outcomes)
		for _, out := range outcomes {
			delete(pending, out.Engine)
			processed++
			if out.OK() {
				report.Succeeded++
			} else {
				report.Failed++
			}
			obs.UnitDone(out)
		}

		if interrupted {
			restoreFailures(state, plan.WorkSet, pending)
		}
		if err := o.save(ctx, state); err != nil {
			return finish(err)
		}

		obs.BatchDone(o.progress(state, i+1, len(batches), processed, total, report.Succeeded, report.Failed))

		if interrupted {
			report.Interrupted = true
			return finish(ctx.Err())
		}
	}
	return finish(nil)
}

// clearRetried empties state.Failed at the start of a retry-failed-only run
// and returns the prior message of every engine about to be retried. A
// retried engine that fails again is re-added when its batch is folded.
func clearRetried(state *State, work []WorkItem) map[string]string {
	pending := make(map[string]string, len(work))
	for _, item := range work {
		if msg, ok := state.FailureFor(item.Engine.Name); ok {
			pending[item.Engine.Name] = msg
		}
	}
	state.Failed = []FailedEngine{}
	return pending
}

// restoreFailures puts back the prior failure of retried engines that never
// settled because the run was interrupted.
func restoreFailures(state *State, work []WorkItem, pending map[string]string) {
	for _, item := range work {
		if msg, ok := pending[item.Engine.Name]; ok {
			state.RecordFailure(item.Engine.Name, msg)
		}
	}
}

// save persists state even when ctx is already cancelled, so an interrupted
// batch is not lost.
func (o *Orchestrator) save(ctx context.Context, state *State) error {
	err := o.Store.Save(context.WithoutCancel(ctx), state)
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Path: o.Store.Location(), Err: err}
}

// runBatch processes every item concurrently and waits for all of them.
// Outcomes are returned in batch order.
func (o *Orchestrator) runBatch(ctx context.Context, batch []WorkItem) []Outcome {
	outcomes := make([]Outcome, len(batch))
	var wg sync.WaitGroup
	for i, item := range batch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					outcomes[i] = Outcome{Engine: item.Engine.Name, Dest: item.Dest, Err: fmt.Errorf("panic: %v", r)}
				}
			}()
			out := o.Processor.Process(ctx, item)
			out.Engine = item.Engine.Name
			if out.Dest == "" {
				out.Dest = item.Dest
			}
			outcomes[i] = out
		}()
	}
	wg.Wait()
	return outcomes
}

// settledBeforeCancel drops outcomes that failed only because the run was
// cancelled; those engines stay eligible for the next run.
func settledBeforeCancel(outcomes []Outcome) []Outcome {
	kept := outcomes[:0:0]
	for _, out := range outcomes {
		if errors.Is(out.Err, context.Canceled) || errors.Is(out.Err, context.DeadlineExceeded) {
			continue
		}
		kept = append(kept, out)
	}
	return kept
}

func (o *Orchestrator) progress(state *State, batch, batches, processed, total, succeeded, failed int) Progress {
	p := Progress{
		Batch:     batch,
		Batches:   batches,
		Processed: processed,
		Total:     total,
		Succeeded: succeeded,
		Failed:    failed,
		Recorded:  len(state.Completed) + len(state.Failed),
		Elapsed:   o.clock().Now().Sub(state.Started()),
	}
	if p.Elapsed > 0 {
		p.Throughput = float64(p.Processed) / p.Elapsed.Seconds()
	}
	if p.Throughput > 0 {
		p.ETA = time.Duration(float64(p.Remaining()) / p.Throughput * float64(time.Second))
		p.HasETA = true
	}
	return p
}

// chunk splits items into consecutive batches of at most size.
func chunk(items []WorkItem, size int) [][]WorkItem {
	var out [][]WorkItem
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
