package migrate

import (
	"strings"

	"github.com/3leaps/engineshift/pkg/match"
)

// Options controls work-set computation and execution.
type Options struct {
	// Filter selects source engines. Nil selects all.
	Filter *match.Matcher

	// Resume loads the stored state instead of starting fresh.
	Resume bool

	// RetryFailedOnly restricts the run to engines recorded as failed.
	// Requires Resume.
	RetryFailedOnly bool

	// SkipExisting drops engines whose destination already exists on the
	// target. Force overrides it.
	SkipExisting bool

	// Force replaces existing destination engines.
	Force bool

	// DryRun computes and reports the plan without processing.
	DryRun bool

	// Concurrency is the batch size: units in flight at once.
	Concurrency int

	// TargetPrefix is prepended to each source name to form the destination.
	TargetPrefix string

	// PageSize is used when listing engines. Zero lets the lister decide.
	PageSize int

	// SecondsPerEngine is the dry-run duration estimate per unit.
	SecondsPerEngine float64
}

// Validate checks option combinations. It makes no network calls.
func (o Options) Validate() error {
	if o.RetryFailedOnly && !o.Resume {
		return &ConfigError{Field: "retry_failed_only", Message: "requires resume"}
	}
	if o.Concurrency < 1 {
		return &ConfigError{Field: "concurrency", Message: "must be at least 1"}
	}
	if o.PageSize < 0 {
		return &ConfigError{Field: "page_size", Message: "must not be negative"}
	}
	if o.SecondsPerEngine < 0 {
		return &ConfigError{Field: "seconds_per_engine", Message: "must not be negative"}
	}
	return nil
}

// needsTargetNames reports whether target names are needed for classification.
func (o Options) needsTargetNames() bool {
	return o.SkipExisting || o.Force
}

// Dest returns the destination name for a source engine.
func (o Options) Dest(name string) string {
	return o.TargetPrefix + name
}

// Classification is the decision made for one candidate engine.
type Classification string

const (
	ClassCompleted           Classification = "already-completed"
	ClassNotPreviouslyFailed Classification = "skip-not-previously-failed"
	ClassExistsOnTarget      Classification = "skip-exists-on-target"
	ClassRetry               Classification = "retry"
	ClassOverwrite           Classification = "overwrite"
	ClassFresh               Classification = "fresh"
)

// Classifications lists every classification in display order.
var Classifications = []Classification{
	ClassCompleted,
	ClassNotPreviouslyFailed,
	ClassExistsOnTarget,
	ClassRetry,
	ClassOverwrite,
	ClassFresh,
}

// WillMigrate reports whether engines with this classification are processed.
func (c Classification) WillMigrate() bool {
	switch c {
	case ClassRetry, ClassOverwrite, ClassFresh:
		return true
	default:
		return false
	}
}

// PlanRow is the decision for one candidate.
type PlanRow struct {
	Engine string         `json:"engine"`
	Dest   string         `json:"dest"`
	Class  Classification `json:"class"`
	// PriorError is the recorded failure for retried engines.
	PriorError string `json:"prior_error,omitempty"`
}

// Plan is the result of work-set computation. The same Plan drives the live
// run and the dry-run preview.
type Plan struct {
	// Candidates are the listed engines that passed the filter, in listing order.
	Candidates []EngineRef
	// Rows hold one decision per candidate, in candidate order.
	Rows []PlanRow
	// WorkSet holds the rows that will be processed, in candidate order.
	WorkSet []WorkItem
	// State is the loaded (or fresh) state the run starts from.
	State *State
	// Listed is the number of engines on the source before filtering.
	Listed int
	// TargetListed reports whether target engine names were fetched.
	TargetListed bool
}

// ComputePlan classifies candidates against state, target names and options.
//
// existing holds destination names present on the target; it is consulted
// only when SkipExisting or Force is set. Precedence: completed, then (in
// retry mode) not previously failed, then exists on target (skip mode
// without force), then retry, overwrite, fresh.
func ComputePlan(listed []EngineRef, state *State, existing map[string]bool, opts Options) *Plan {
	p := &Plan{State: state, Listed: len(listed), TargetListed: existing != nil}

	for _, e := range listed {
		if opts.Filter.Match(e.Name) {
			p.Candidates = append(p.Candidates, e)
		}
	}

	for _, e := range p.Candidates {
		dest := opts.Dest(e.Name)
		priorErr, failed := state.FailureFor(e.Name)
		onTarget := existing[dest]

		row := PlanRow{Engine: e.Name, Dest: dest}
		switch {
		case state.IsCompleted(e.Name):
			row.Class = ClassCompleted
		case opts.RetryFailedOnly && !failed:
			row.Class = ClassNotPreviouslyFailed
		case opts.SkipExisting && !opts.Force && onTarget:
			row.Class = ClassExistsOnTarget
		case failed:
			row.Class = ClassRetry
			row.PriorError = priorErr
		case opts.Force && onTarget:
			row.Class = ClassOverwrite
		default:
			row.Class = ClassFresh
		}
		p.Rows = append(p.Rows, row)

		if row.Class.WillMigrate() {
			p.WorkSet = append(p.WorkSet, WorkItem{Engine: e, Dest: dest, Class: row.Class})
		}
	}
	return p
}

// Count returns how many rows have the given classification.
func (p *Plan) Count(c Classification) int {
	n := 0
	for _, r := range p.Rows {
		if r.Class == c {
			n++
		}
	}
	return n
}

// targetNames builds the existence set from a target listing, keeping only
// names carrying prefix when one is set.
func targetNames(engines []EngineRef, prefix string) map[string]bool {
	names := make(map[string]bool, len(engines))
	for _, e := range engines {
		if prefix != "" && !strings.HasPrefix(e.Name, prefix) {
			continue
		}
		names[e.Name] = true
	}
	return names
}
