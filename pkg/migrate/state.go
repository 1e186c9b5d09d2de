package migrate

import (
	"encoding/json"
	"slices"
	"time"
)

// FailedEngine is one failure record.
type FailedEngine struct {
	Engine string `json:"engine"`
	Error  string `json:"error"`
}

// State is the persisted migration record.
//
// Invariants kept by the methods below: Completed has no duplicates, Failed
// has at most one entry per engine, and no engine is in both.
type State struct {
	Completed []string       `json:"completed"`
	Failed    []FailedEngine `json:"failed"`
	Skipped   []string       `json:"skipped"`
	// StartTime is epoch milliseconds of the first run; kept across resumes.
	StartTime int64 `json:"startTime"`
}

// NewState returns an empty state started at now.
func NewState(now time.Time) *State {
	return &State{
		Completed: []string{},
		Failed:    []FailedEngine{},
		Skipped:   []string{},
		StartTime: now.UnixMilli(),
	}
}

// Started returns StartTime as a time.
func (s *State) Started() time.Time {
	return time.UnixMilli(s.StartTime)
}

// IsCompleted reports whether engine finished successfully in any run.
func (s *State) IsCompleted(engine string) bool {
	return slices.Contains(s.Completed, engine)
}

// FailureFor returns the recorded error for engine.
func (s *State) FailureFor(engine string) (string, bool) {
	for _, f := range s.Failed {
		if f.Engine == engine {
			return f.Error, true
		}
	}
	return "", false
}

// RecordSuccess marks engine completed and drops any failure entry.
func (s *State) RecordSuccess(engine string) {
	s.removeFailure(engine)
	if !s.IsCompleted(engine) {
		s.Completed = append(s.Completed, engine)
	}
}

// RecordFailure replaces any failure entry for engine and removes it from
// Completed.
func (s *State) RecordFailure(engine, message string) {
	s.Completed = slices.DeleteFunc(s.Completed, func(n string) bool { return n == engine })
	for i := range s.Failed {
		if s.Failed[i].Engine == engine {
			s.Failed[i].Error = message
			return
		}
	}
	s.Failed = append(s.Failed, FailedEngine{Engine: engine, Error: message})
}

func (s *State) removeFailure(engine string) {
	s.Failed = slices.DeleteFunc(s.Failed, func(f FailedEngine) bool { return f.Engine == engine })
}

// Fold applies settled outcomes in order.
func (s *State) Fold(outcomes []Outcome) {
	for _, o := range outcomes {
		if o.OK() {
			s.RecordSuccess(o.Engine)
		} else {
			s.RecordFailure(o.Engine, o.Message())
		}
	}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	return &State{
		Completed: slices.Clone(s.Completed),
		Failed:    slices.Clone(s.Failed),
		Skipped:   slices.Clone(s.Skipped),
		StartTime: s.StartTime,
	}
}

// normalize repairs a loaded state so the invariants hold: nil lists become
// empty, duplicates are dropped, and completed wins over a stale failure.
func (s *State) normalize() {
	seen := make(map[string]bool, len(s.Completed))
	completed := make([]string, 0, len(s.Completed))
	for _, n := range s.Completed {
		if !seen[n] {
			seen[n] = true
			completed = append(completed, n)
		}
	}
	s.Completed = completed

	failedSeen := make(map[string]int, len(s.Failed))
	failed := make([]FailedEngine, 0, len(s.Failed))
	for _, f := range s.Failed {
		if seen[f.Engine] {
			continue
		}
		if i, ok := failedSeen[f.Engine]; ok {
			failed[i] = f
			continue
		}
		failedSeen[f.Engine] = len(failed)
		failed = append(failed, f)
	}
	s.Failed = failed

	if s.Skipped == nil {
		s.Skipped = []string{}
	}
}

// MarshalJSON always emits all four fields, with empty lists rather than null.
func (s *State) MarshalJSON() ([]byte, error) {
	type plain State
	cp := *s
	if cp.Completed == nil {
		cp.Completed = []string{}
	}
	if cp.Failed == nil {
		cp.Failed = []FailedEngine{}
	}
	if cp.Skipped == nil {
		cp.Skipped = []string{}
	}
	return json.Marshal((*plain)(&cp))
}
