package migrate

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// DefaultFailureDisplayCap bounds the failures listed by RenderReport.
const DefaultFailureDisplayCap = 20

// RetryHint tells the operator how to re-run only the failed engines.
const RetryHint = "To retry only the failed engines, run again with --resume --retry-failed-only"

const maxErrorExcerpt = 120

// Report is the terminal summary of a run.
type Report struct {
	RunID string `json:"run_id,omitempty"`

	// Total, Succeeded and Failed count units of this run.
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`

	// SuccessRate is Succeeded/Total in percent; zero when Total is zero.
	SuccessRate float64 `json:"success_rate"`

	// Completed is the number of engines completed across all runs.
	Completed int `json:"completed"`

	// FailedEngines is the failure list of the final state.
	FailedEngines []FailedEngine `json:"failed_engines"`

	// Elapsed is this run's duration; SinceStart spans resumed runs.
	Elapsed    time.Duration `json:"elapsed"`
	SinceStart time.Duration `json:"since_start"`

	Interrupted   bool   `json:"interrupted,omitempty"`
	StateLocation string `json:"state_location,omitempty"`

	// DryRun is set for preview runs, which process nothing.
	DryRun *DryRunReport `json:"dry_run,omitempty"`
}

// ExitFailure reports whether the run should end with a failing status: the
// final state still records failed engines.
func (r *Report) ExitFailure() bool {
	return len(r.FailedEngines) > 0
}

func (r *Report) fill(state *State, elapsed, sinceStart time.Duration) {
	r.Completed = len(state.Completed)
	r.FailedEngines = slices.Clone(state.Failed)
	if r.FailedEngines == nil {
		r.FailedEngines = []FailedEngine{}
	}
	r.Elapsed = elapsed
	r.SinceStart = sinceStart
	if r.Total > 0 {
		r.SuccessRate = float64(r.Succeeded) / float64(r.Total) * 100
	}
}

// RenderReport writes the human-readable summary. At most failureCap failed
// engines are listed; failureCap <= 0 uses DefaultFailureDisplayCap.
func RenderReport(w io.Writer, r *Report, failureCap int) error {
	if failureCap <= 0 {
		failureCap = DefaultFailureDisplayCap
	}
	var b strings.Builder

	title := "Migration complete"
	if r.Interrupted {
		title = "Migration interrupted"
	}
	fmt.Fprintf(&b, "%s\n", title)
	fmt.Fprintf(&b, "  Engines processed: %s\n", humanize.Comma(int64(r.Succeeded+r.Failed)))
	fmt.Fprintf(&b, "  Succeeded:         %s\n", humanize.Comma(int64(r.Succeeded)))
	fmt.Fprintf(&b, "  Failed:            %s\n", humanize.Comma(int64(r.Failed)))
	if r.Total > 0 {
		fmt.Fprintf(&b, "  Success rate:      %.1f%%\n", r.SuccessRate)
	} else {
		fmt.Fprintf(&b, "  Success rate:      n/a (nothing to migrate)\n")
	}
	fmt.Fprintf(&b, "  Elapsed:           %s\n", r.Elapsed.Round(time.Second))
	if r.StateLocation != "" {
		fmt.Fprintf(&b, "  State:             %s\n", r.StateLocation)
	}

	if len(r.FailedEngines) > 0 {
		fmt.Fprintf(&b, "\nFailed engines (%s):\n", humanize.Comma(int64(len(r.FailedEngines))))
		shown := min(failureCap, len(r.FailedEngines))
		for _, f := range r.FailedEngines[:shown] {
			fmt.Fprintf(&b, "  - %s: %s\n", f.Engine, excerpt(f.Error, maxErrorExcerpt))
		}
		if rest := len(r.FailedEngines) - shown; rest > 0 {
			fmt.Fprintf(&b, "  ... and %s more\n", humanize.Comma(int64(rest)))
		}
		fmt.Fprintf(&b, "\n%s\n", RetryHint)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// excerpt flattens msg to one line and truncates it.
func excerpt(msg string, limit int) string {
	msg = strings.Join(strings.Fields(msg), " ")
	if len(msg) <= limit {
		return msg
	}
	return msg[:limit] + "..."
}
