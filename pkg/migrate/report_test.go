package migrate

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport_Fill(t *testing.T) {
	s := NewState(testStart)
	s.RecordSuccess("a")
	s.RecordSuccess("b")
	s.RecordFailure("c", "timeout")

	r := &Report{Total: 3, Succeeded: 2, Failed: 1}
	r.fill(s, time.Minute, time.Hour)

	assert.Equal(t, 2, r.Completed)
	assert.InDelta(t, 66.666, r.SuccessRate, 0.01)
	assert.Equal(t, []FailedEngine{{Engine: "c", Error: "timeout"}}, r.FailedEngines)
	assert.True(t, r.ExitFailure())

	s.RecordSuccess("c")
	assert.Len(t, r.FailedEngines, 1, "report keeps its own copy")
}

func TestRenderReport(t *testing.T) {
	r := &Report{
		Total:         5,
		Succeeded:     4,
		Failed:        1,
		SuccessRate:   80,
		FailedEngines: []FailedEngine{{Engine: "c", Error: "timeout\nwhile creating"}},
		Elapsed:       90 * time.Second,
		StateLocation: "migration-state.json",
	}
	var buf bytes.Buffer
	require.NoError(t, RenderReport(&buf, r, 0))
	out := buf.String()

	assert.Contains(t, out, "Migration complete")
	assert.Contains(t, out, "Engines processed: 5")
	assert.Contains(t, out, "Success rate:      80.0%")
	assert.Contains(t, out, "Elapsed:           1m30s")
	assert.Contains(t, out, "State:             migration-state.json")
	assert.Contains(t, out, "Failed engines (1):")
	assert.Contains(t, out, "  - c: timeout while creating")
	assert.Contains(t, out, RetryHint)
}

func TestRenderReport_NothingToMigrate(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderReport(&buf, &Report{FailedEngines: []FailedEngine{}}, 0))
	assert.Contains(t, buf.String(), "n/a (nothing to migrate)")
	assert.NotContains(t, buf.String(), RetryHint)
}

func TestRenderReport_CapsFailures(t *testing.T) {
	r := &Report{Interrupted: true}
	for i := 0; i < 1205; i++ {
		r.FailedEngines = append(r.FailedEngines, FailedEngine{Engine: fmt.Sprintf("e%d", i), Error: "boom"})
	}
	var buf bytes.Buffer
	require.NoError(t, RenderReport(&buf, r, 3))
	out := buf.String()

	assert.Contains(t, out, "Migration interrupted")
	assert.Contains(t, out, "Failed engines (1,205):")
	assert.Equal(t, 3, strings.Count(out, ": boom"))
	assert.Contains(t, out, "... and 1,202 more")
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "a b c", excerpt("a\n  b\tc", 10))
	assert.Equal(t, "abc...", excerpt("abcdef", 3))
	assert.Equal(t, "", excerpt("", 5))
}
