package orch

import (
	"sync"
	"testing"

	"github.com/dkeye/CallRelay/internal/app"
	"github.com/dkeye/CallRelay/internal/core"
	"github.com/dkeye/CallRelay/internal/domain"
)

// fakeSignal records frames instead of writing to a socket. A positive limit
// makes TrySend report backpressure once that many frames are queued.
type fakeSignal struct {
	mu     sync.Mutex
	frames []core.Frame
	limit  int
	closed bool
}

func (f *fakeSignal) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return core.ErrConnClosed
	}
	if f.limit > 0 && len(f.frames) >= f.limit {
		return core.ErrBackpressure
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSignal) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeSignal) messages(t *testing.T) []core.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.Message, 0, len(f.frames))
	for _, fr := range f.frames {
		m, err := core.ParseMessage(fr)
		if err != nil {
			t.Fatalf("frame %s is not a message: %v", fr, err)
		}
		out = append(out, m)
	}
	return out
}

// drain returns the messages received since the last drain.
func (f *fakeSignal) drain(t *testing.T) []core.Message {
	t.Helper()
	msgs := f.messages(t)
	f.mu.Lock()
	f.frames = nil
	f.mu.Unlock()
	return msgs
}

type peer struct {
	sess   *core.Session
	signal *fakeSignal
}

func newOrchestrator(opts Options) *Orchestrator {
	return New(app.NewRegistry(), app.DropPolicy{}, opts)
}

func connect(t *testing.T, o *Orchestrator, id string) peer {
	t.Helper()
	sig := &fakeSignal{}
	sess := core.NewSession(domain.NewConnection(id, "127.0.0.1:0"), sig)
	if err := o.Connect(sess, sig.Close); err != nil {
		t.Fatalf("connect %s: %v", id, err)
	}
	return peer{sess: sess, signal: sig}
}

func msg(kind core.EventKind, data string) core.Message {
	m := core.Message{Type: kind}
	if data != "" {
		m.Data = []byte(data)
	}
	return m
}
