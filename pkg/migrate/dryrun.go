package migrate

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"
)

// DryRunReport is the preview of a run.
type DryRunReport struct {
	Rows              []PlanRow              `json:"rows"`
	Counts            map[Classification]int `json:"counts"`
	Listed            int                    `json:"listed"`
	Candidates        int                    `json:"candidates"`
	WillMigrate       int                    `json:"will_migrate"`
	Concurrency       int                    `json:"concurrency"`
	SecondsPerEngine  float64                `json:"seconds_per_engine"`
	EstimatedDuration time.Duration          `json:"estimated_duration"`
}

// DryRun projects a plan into display rows and a duration estimate of
// willMigrate * secondsPerEngine / concurrency.
func DryRun(plan *Plan, concurrency int, secondsPerEngine float64) *DryRunReport {
	if concurrency < 1 {
		concurrency = 1
	}
	r := &DryRunReport{
		Rows:             append([]PlanRow(nil), plan.Rows...),
		Counts:           make(map[Classification]int, len(Classifications)),
		Listed:           plan.Listed,
		Candidates:       len(plan.Candidates),
		Concurrency:      concurrency,
		SecondsPerEngine: secondsPerEngine,
	}
	for _, c := range Classifications {
		r.Counts[c] = 0
	}
	for _, row := range plan.Rows {
		r.Counts[row.Class]++
		if row.Class.WillMigrate() {
			r.WillMigrate++
		}
	}
	seconds := float64(r.WillMigrate) * secondsPerEngine / float64(concurrency)
	r.EstimatedDuration = time.Duration(seconds * float64(time.Second))
	return r
}

// Engines returns the engines with the given classifications, in row order.
func (r *DryRunReport) Engines(classes ...Classification) []string {
	var out []string
	for _, row := range r.Rows {
		for _, c := range classes {
			if row.Class == c {
				out = append(out, row.Engine)
				break
			}
		}
	}
	return out
}

// RenderDryRun writes the preview table and summary.
func RenderDryRun(w io.Writer, r *DryRunReport) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Dry run: %s of %s candidate engines would be migrated (%s listed on source)\n\n",
		humanize.Comma(int64(r.WillMigrate)), humanize.Comma(int64(r.Candidates)), humanize.Comma(int64(r.Listed)))

	if len(r.Rows) > 0 {
		table := uitable.New()
		table.MaxColWidth = 60
		table.AddRow("ENGINE", "DESTINATION", "ACTION", "NOTE")
		for _, row := range r.Rows {
			table.AddRow(row.Engine, row.Dest, string(row.Class), excerpt(row.PriorError, 50))
		}
		b.WriteString(table.String())
		b.WriteString("\n\n")
	}

	b.WriteString("Summary:\n")
	for _, c := range Classifications {
		fmt.Fprintf(&b, "  %-27s %s\n", string(c)+":", humanize.Comma(int64(r.Counts[c])))
	}
	fmt.Fprintf(&b, "\nEstimated duration: %s (%s engines x %gs / %d concurrent)\n",
		r.EstimatedDuration.Round(time.Second), humanize.Comma(int64(r.WillMigrate)), r.SecondsPerEngine, r.Concurrency)

	_, err := io.WriteString(w, b.String())
	return err
}
