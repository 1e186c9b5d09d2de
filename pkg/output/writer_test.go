package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeOne(t *testing.T, line []byte, payload any) Record {
	t.Helper()
	var record Record
	require.NoError(t, json.Unmarshal(line, &record))
	if payload != nil {
		require.NoError(t, json.Unmarshal(record.Data, payload))
	}
	return record
}

func TestNewJSONLWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "https://source.example")

	assert.NotNil(t, w)
	assert.Equal(t, "run-123", w.runID)
	assert.Equal(t, "https://source.example", w.source)
}

func TestJSONLWriter_WriteUnit(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "https://source.example")
	fixed := time.Date(2026, 1, 15, 12, 0, 0, 0, time.FixedZone("X", 3600))
	w.now = func() time.Time { return fixed }

	err := w.WriteUnit(context.Background(), &UnitRecord{
		Engine:        "parks",
		Dest:          "import-parks",
		Status:        StatusFailed,
		Error:         "timeout",
		Duration:      2 * time.Second,
		DurationHuman: "2s",
	})
	require.NoError(t, err)

	var unit UnitRecord
	record := decodeOne(t, buf.Bytes(), &unit)
	assert.Equal(t, TypeUnit, record.Type)
	assert.Equal(t, "run-123", record.RunID)
	assert.Equal(t, "https://source.example", record.Source)
	assert.True(t, fixed.Equal(record.TS))
	assert.Equal(t, time.UTC, record.TS.Location())

	assert.Equal(t, "parks", unit.Engine)
	assert.Equal(t, "import-parks", unit.Dest)
	assert.Equal(t, StatusFailed, unit.Status)
	assert.Equal(t, "timeout", unit.Error)
	assert.Equal(t, 2*time.Second, unit.Duration)
}

func TestJSONLWriter_WriteProgress(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "src")

	eta := 90 * time.Second
	require.NoError(t, w.WriteProgress(context.Background(), &ProgressRecord{Batch: 1, Batches: 3, Processed: 2, Total: 5, Succeeded: 2, Throughput: 0.5, ETA: &eta}))
	require.NoError(t, w.WriteProgress(context.Background(), &ProgressRecord{Batch: 1, Batches: 3}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var prog ProgressRecord
	record := decodeOne(t, []byte(lines[0]), &prog)
	assert.Equal(t, TypeProgress, record.Type)
	require.NotNil(t, prog.ETA)
	assert.Equal(t, eta, *prog.ETA)
	assert.Equal(t, 2, prog.Processed)

	assert.NotContains(t, lines[1], "eta_ns")
}

func TestJSONLWriter_WritePlanAndSummary(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "src")
	ctx := context.Background()

	require.NoError(t, w.WritePlan(ctx, &PlanRecord{Listed: 10, Candidates: 4, WillMigrate: 3, Counts: map[string]int{"fresh": 3}, Concurrency: 2}))
	require.NoError(t, w.WriteSummary(ctx, &SummaryRecord{
		Total:         3,
		Succeeded:     2,
		Failed:        1,
		FailedEngines: []FailedEngine{{Engine: "c", Error: "timeout"}},
		Duration:      30 * time.Second,
		DurationHuman: "30s",
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var plan PlanRecord
	assert.Equal(t, TypePlan, decodeOne(t, []byte(lines[0]), &plan).Type)
	assert.Equal(t, 3, plan.Counts["fresh"])

	var sum SummaryRecord
	assert.Equal(t, TypeSummary, decodeOne(t, []byte(lines[1]), &sum).Type)
	assert.Equal(t, []FailedEngine{{Engine: "c", Error: "timeout"}}, sum.FailedEngines)
	assert.Equal(t, 30*time.Second, sum.Duration)
	assert.Equal(t, "30s", sum.DurationHuman)
}

func TestJSONLWriter_WriteError(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "src")

	require.NoError(t, w.WriteError(context.Background(), &ErrorRecord{Code: ErrCodeListing, Message: "list source engines (page 2): 503"}))

	var errData ErrorRecord
	record := decodeOne(t, buf.Bytes(), &errData)
	assert.Equal(t, TypeError, record.Type)
	assert.Equal(t, ErrCodeListing, errData.Code)
	assert.NotContains(t, string(record.Data), "engine")
	assert.NotContains(t, string(record.Data), "details")
}

func TestJSONLWriter_Close(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "src")

	require.NoError(t, w.Close())

	err := w.WriteUnit(context.Background(), &UnitRecord{Engine: "parks"})
	assert.ErrorIs(t, err, ErrWriterClosed)
}

func TestJSONLWriter_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "src")

	const numWriters = 10
	const writesPerWriter = 100

	var wg sync.WaitGroup
	wg.Add(numWriters)
	for i := 0; i < numWriters; i++ {
		go func(writerID int) {
			defer wg.Done()
			for j := 0; j < writesPerWriter; j++ {
				_ = w.WriteUnit(context.Background(), &UnitRecord{Engine: "parks", Duration: time.Duration(writerID*writesPerWriter + j)})
			}
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, numWriters*writesPerWriter)
	for i, line := range lines {
		var record Record
		assert.NoError(t, json.Unmarshal([]byte(line), &record), "line %d should be valid JSON: %s", i, line)
	}
}

func TestJSONLWriter_ContextCancellation(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "src")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.WriteUnit(ctx, &UnitRecord{Engine: "parks"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, buf.String())
}

type failingWriter struct {
	err error
}

func (f *failingWriter) Write(p []byte) (n int, err error) {
	return 0, f.err
}

func TestJSONLWriter_WriteFailure(t *testing.T) {
	w := NewJSONLWriter(&failingWriter{err: errors.New("disk full")}, "run-123", "src")

	err := w.WriteUnit(context.Background(), &UnitRecord{Engine: "parks"})
	require.Error(t, err)

	var writeErr *WriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, "write", writeErr.Op)
}

// shortWriteWriter writes at most bytesPerWrite bytes per call.
type shortWriteWriter struct {
	buf           bytes.Buffer
	bytesPerWrite int
}

func (sw *shortWriteWriter) Write(p []byte) (n int, err error) {
	return sw.buf.Write(p[:min(len(p), sw.bytesPerWrite)])
}

type zeroWriteWriter struct{}

func (zw *zeroWriteWriter) Write(p []byte) (n int, err error) {
	return 0, nil
}

func TestJSONLWriter_ShortWrite(t *testing.T) {
	sw := &shortWriteWriter{bytesPerWrite: 10}
	w := NewJSONLWriter(sw, "run-123", "src")

	require.NoError(t, w.WriteUnit(context.Background(), &UnitRecord{Engine: "parks", Dest: "import-parks", Status: StatusSucceeded}))

	lines := strings.Split(strings.TrimSpace(sw.buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Equal(t, TypeUnit, decodeOne(t, []byte(lines[0]), nil).Type)
}

func TestJSONLWriter_ZeroWrite(t *testing.T) {
	w := NewJSONLWriter(&zeroWriteWriter{}, "run-123", "src")

	err := w.WriteUnit(context.Background(), &UnitRecord{Engine: "parks"})
	assert.ErrorIs(t, err, io.ErrShortWrite)
}

func TestWriteError(t *testing.T) {
	underlying := errors.New("underlying error")
	err := &WriteError{Op: "marshal", Err: underlying}

	assert.Equal(t, "output: marshal: underlying error", err.Error())
	assert.ErrorIs(t, err, underlying)
}

func BenchmarkJSONLWriter_WriteUnit(b *testing.B) {
	w := NewJSONLWriter(io.Discard, "run-123", "src")
	unit := &UnitRecord{Engine: "parks", Dest: "import-parks", Status: StatusSucceeded, Duration: time.Second, DurationHuman: "1s"}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = w.WriteUnit(ctx, unit)
	}
}
