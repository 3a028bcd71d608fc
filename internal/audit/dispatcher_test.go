package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &countingSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherDeliversAllOnClose(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 64}, sink)
	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), Event{EventType: "login_success"})
	}
	d.Close()

	if got := sink.count.Load(); got != 50 {
		t.Fatalf("expected 50 delivered events, got %d", got)
	}
}

func TestDispatcherDropIfFullCountsDrops(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Emit(context.Background(), Event{EventType: "signup_success"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked with DropIfFull enabled")
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped events")
	}

	close(sink.gate)
	d.Close()
}

func TestDispatcherEmitAfterCloseIsNoop(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	d.Close()
	d.Emit(context.Background(), Event{EventType: "late"})
	if sink.count.Load() != 0 {
		t.Fatal("expected no delivery after Close")
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{EventType: "login_success", UserID: "u1", AccessLevel: 2, Success: true})
	sink.Emit(context.Background(), Event{EventType: "login_failure", Error: "invalid_credentials"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var first Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.UserID != "u1" || first.AccessLevel != 2 || !first.Success {
		t.Fatalf("unexpected event %+v", first)
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	MultiSink{a, nil, b}.Emit(context.Background(), Event{})
	if a.count.Load() != 1 || b.count.Load() != 1 {
		t.Fatal("expected both sinks to receive the event")
	}
}

func TestSlogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	sink := SlogSink{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	sink.Emit(context.Background(), Event{EventType: "login_success", UserID: "u1", AccessLevel: 3, Success: true})
	sink.Emit(context.Background(), Event{EventType: "login_failure", IP: "10.0.0.1", Error: "invalid_credentials"})
	SlogSink{}.Emit(context.Background(), Event{EventType: "ignored"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 records, got %d", len(lines))
	}
	var ok, failed map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &ok); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &failed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ok["level"] != "INFO" || ok["event"] != "login_success" || ok["access_level"] != float64(3) {
		t.Fatalf("unexpected success record %v", ok)
	}
	if failed["level"] != "WARN" || failed["error"] != "invalid_credentials" || failed["ip"] != "10.0.0.1" {
		t.Fatalf("unexpected failure record %v", failed)
	}
	if _, has := failed["user_id"]; has {
		t.Fatal("anonymous event should not carry user_id")
	}
}

type panicSink struct{}

func (panicSink) Emit(context.Context, Event) { panic("sink exploded") }

func TestDispatcherSurvivesSinkPanic(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}, panicSink{})
	d.Emit(context.Background(), Event{EventType: "login_failure"})
	d.Emit(context.Background(), Event{EventType: "login_failure"})
	d.Close()

	st := d.Stats()
	if st.Failed != 2 || st.Delivered != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

type deadlineSink struct {
	saw atomic.Bool
	ts  atomic.Bool
}

func (s *deadlineSink) Emit(ctx context.Context, ev Event) {
	_, ok := ctx.Deadline()
	s.saw.Store(ok)
	s.ts.Store(!ev.Timestamp.IsZero())
}

func TestDispatcherBoundsSinkCalls(t *testing.T) {
	sink := &deadlineSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, EmitTimeout: time.Second}, sink)
	d.Emit(context.Background(), Event{EventType: "logout"})
	d.Close()

	if !sink.saw.Load() {
		t.Fatal("sink context carries no deadline")
	}
	if !sink.ts.Load() {
		t.Fatal("Emit should stamp a missing timestamp")
	}
	if got := d.Stats().Delivered; got != 1 {
		t.Fatalf("delivered = %d, want 1", got)
	}
}

func TestDispatcherBlockingEmitHonorsContext(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)

	// One event is held by the sink, the next fills the buffer.
	d.Emit(context.Background(), Event{EventType: "a"})
	d.Emit(context.Background(), Event{EventType: "b"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Event{EventType: "c"})

	close(sink.gate)
	d.Close()
	if d.Dropped() == 0 {
		t.Fatal("expected the timed-out emit to be counted as dropped")
	}
}
