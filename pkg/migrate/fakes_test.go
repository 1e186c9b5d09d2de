package migrate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

func refs(names ...string) []EngineRef {
	out := make([]EngineRef, 0, len(names))
	for _, n := range names {
		out = append(out, EngineRef{Name: n})
	}
	return out
}

// staticLister serves a fixed engine list in pages.
type staticLister struct {
	engines []EngineRef
	calls   atomic.Int32
	failOn  int
}

func newStaticLister(names ...string) *staticLister {
	return &staticLister{engines: refs(names...)}
}

func (l *staticLister) ListEngines(_ context.Context, page, size int) (*Page, error) {
	l.calls.Add(1)
	if l.failOn != 0 && page == l.failOn {
		return nil, errors.New("listing exploded")
	}
	if size <= 0 {
		size = 2
	}
	total := (len(l.engines) + size - 1) / size
	start := min((page-1)*size, len(l.engines))
	end := min(start+size, len(l.engines))
	return &Page{Engines: l.engines[start:end], Current: page, TotalPages: total}, nil
}

// memStore is an in-memory Store that records every save.
type memStore struct {
	mu      sync.Mutex
	state   *State
	saves   []*State
	saveErr error
	loads   int
}

func (m *memStore) Load(context.Context) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.state == nil {
		return NewState(testStart), nil
	}
	return m.state.Clone(), nil
}

func (m *memStore) Save(_ context.Context, s *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.state = s.Clone()
	m.saves = append(m.saves, s.Clone())
	return nil
}

func (m *memStore) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = nil
	return nil
}

func (m *memStore) Location() string { return "memory" }
func (m *memStore) Close() error     { return nil }

func (m *memStore) saved() *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil
	}
	return m.state.Clone()
}

// scriptedProcessor fails the named engines and tracks concurrency.
type scriptedProcessor struct {
	fail     map[string]string
	inFlight atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
	seen     []string
	hook     func(item WorkItem)
}

func failing(pairs ...string) *scriptedProcessor {
	p := &scriptedProcessor{fail: map[string]string{}}
	for i := 0; i+1 < len(pairs); i += 2 {
		p.fail[pairs[i]] = pairs[i+1]
	}
	return p
}

func (p *scriptedProcessor) Process(_ context.Context, item WorkItem) Outcome {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	p.mu.Lock()
	p.seen = append(p.seen, item.Engine.Name)
	p.mu.Unlock()
	if p.hook != nil {
		p.hook(item)
	}
	if msg, ok := p.fail[item.Engine.Name]; ok {
		return Outcome{Engine: item.Engine.Name, Dest: item.Dest, Err: errors.New(msg)}
	}
	return Outcome{Engine: item.Engine.Name, Dest: item.Dest}
}

func (p *scriptedProcessor) processed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.seen...)
}

func names(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("engine-%02d", i)
	}
	return out
}
