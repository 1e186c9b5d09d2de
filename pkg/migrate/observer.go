package migrate

import "time"

// Progress is emitted after every batch has been folded and saved.
type Progress struct {
	Batch     int
	Batches   int
	Processed int
	Total     int
	Succeeded int
	Failed    int
	// Recorded is len(completed)+len(failed) in the saved state.
	Recorded int
	// Elapsed is measured from State.StartTime, so it spans resumed runs.
	Elapsed time.Duration
	// Throughput is engines processed in this run per second of Elapsed.
	// After a resume Elapsed still counts from the first run, so the figure
	// is a conservative rate.
	Throughput float64
	// ETA for the rest of this run; valid only when HasETA.
	ETA    time.Duration
	HasETA bool
}

// Remaining returns the units of this run not yet processed.
func (p Progress) Remaining() int {
	return p.Total - p.Processed
}

// Observer receives run events. Implementations must not block for long;
// they are called from the orchestrator's single control goroutine.
type Observer interface {
	PlanReady(p *Plan)
	UnitDone(o Outcome)
	BatchDone(p Progress)
	RunDone(r *Report)
}

// NopObserver ignores all events.
type NopObserver struct{}

func (NopObserver) PlanReady(*Plan)    {}
func (NopObserver) UnitDone(Outcome)   {}
func (NopObserver) BatchDone(Progress) {}
func (NopObserver) RunDone(*Report)    {}

// ObserverFuncs is an Observer built from optional callbacks.
type ObserverFuncs struct {
	OnPlan     func(*Plan)
	OnUnit     func(Outcome)
	OnProgress func(Progress)
	OnReport   func(*Report)
}

func (f ObserverFuncs) PlanReady(p *Plan) {
	if f.OnPlan != nil {
		f.OnPlan(p)
	}
}

func (f ObserverFuncs) UnitDone(o Outcome) {
	if f.OnUnit != nil {
		f.OnUnit(o)
	}
}

func (f ObserverFuncs) BatchDone(p Progress) {
	if f.OnProgress != nil {
		f.OnProgress(p)
	}
}

func (f ObserverFuncs) RunDone(r *Report) {
	if f.OnReport != nil {
		f.OnReport(r)
	}
}

// MultiObserver fans events out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) PlanReady(p *Plan) {
	for _, o := range m {
		o.PlanReady(p)
	}
}

func (m MultiObserver) UnitDone(out Outcome) {
	for _, o := range m {
		o.UnitDone(out)
	}
}

func (m MultiObserver) BatchDone(p Progress) {
	for _, o := range m {
		o.BatchDone(p)
	}
}

func (m MultiObserver) RunDone(r *Report) {
	for _, o := range m {
		o.RunDone(r)
	}
}
