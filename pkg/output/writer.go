package output

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Writer emits one JSON line per run event. Implementations are safe for
// concurrent use.
type Writer interface {
	WritePlan(ctx context.Context, plan *PlanRecord) error
	WriteUnit(ctx context.Context, unit *UnitRecord) error
	WriteProgress(ctx context.Context, prog *ProgressRecord) error
	WriteSummary(ctx context.Context, sum *SummaryRecord) error
	WriteError(ctx context.Context, err *ErrorRecord) error

	// Close stops further writes. It does not close the destination.
	Close() error
}

// JSONLWriter wraps each payload in a Record envelope stamped with the run
// ID and source endpoint. Lines never interleave.
type JSONLWriter struct {
	mu     sync.Mutex
	w      io.Writer
	runID  string
	source string
	now    func() time.Time
	closed bool
}

// NewJSONLWriter returns a writer for one run against the given source
// endpoint.
func NewJSONLWriter(w io.Writer, runID, source string) *JSONLWriter {
	return &JSONLWriter{w: w, runID: runID, source: source, now: time.Now}
}

func (jw *JSONLWriter) WritePlan(ctx context.Context, plan *PlanRecord) error {
	return jw.emit(ctx, TypePlan, plan)
}

func (jw *JSONLWriter) WriteUnit(ctx context.Context, unit *UnitRecord) error {
	return jw.emit(ctx, TypeUnit, unit)
}

func (jw *JSONLWriter) WriteProgress(ctx context.Context, prog *ProgressRecord) error {
	return jw.emit(ctx, TypeProgress, prog)
}

func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return jw.emit(ctx, TypeSummary, sum)
}

func (jw *JSONLWriter) WriteError(ctx context.Context, rec *ErrorRecord) error {
	return jw.emit(ctx, TypeError, rec)
}

func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	jw.closed = true
	jw.mu.Unlock()
	return nil
}

func (jw *JSONLWriter) emit(ctx context.Context, recordType string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()
	switch {
	case jw.closed:
		return ErrWriterClosed
	case ctx.Err() != nil:
		return ctx.Err()
	}

	line, err := json.Marshal(Record{
		Type:   recordType,
		TS:     jw.now().UTC(),
		RunID:  jw.runID,
		Source: jw.source,
		Data:   data,
	})
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}
	if err := writeFull(jw.w, append(line, '\n')); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

// writeFull retries short writes so a line is never left half written.
func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		switch {
		case err != nil:
			return err
		case n == 0:
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

var _ Writer = (*JSONLWriter)(nil)
