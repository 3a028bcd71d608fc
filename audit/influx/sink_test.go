package influx

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	levelAuth "github.com/MrEthical07/levelAuth"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

type recordingWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (w *recordingWriter) WritePoint(p *write.Point) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, p)
}

func (w *recordingWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushes++
}

func (w *recordingWriter) lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.points))
	for _, p := range w.points {
		out = append(out, write.PointToLineProtocol(p, time.Second))
	}
	return out
}

func TestEmitWritesTaggedPoint(t *testing.T) {
	w := &recordingWriter{}
	s := newSink(w)

	s.Emit(context.Background(), levelAuth.AuditEvent{
		Timestamp:   time.Unix(1767225600, 0).UTC(),
		EventType:   "login_success",
		UserID:      "u-alice",
		AccessLevel: 2,
		RequestID:   "req-1",
		Success:     true,
	})

	lines := w.lines()
	if len(lines) != 1 {
		t.Fatalf("wrote %d points, want 1", len(lines))
	}
	line := lines[0]
	for _, want := range []string{
		"levelauth_events,",
		"access_level=2",
		"event_type=login_success",
		"success=true",
		"count=1i",
		`user_id="u-alice"`,
		`request_id="req-1"`,
		" 1767225600",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestEmitFailureCarriesErrorTag(t *testing.T) {
	w := &recordingWriter{}
	s := newSink(w)

	s.Emit(context.Background(), levelAuth.AuditEvent{
		EventType: "login_failure",
		Error:     "invalid_credentials",
	})

	line := w.lines()[0]
	if !strings.Contains(line, "error=invalid_credentials") || !strings.Contains(line, "success=false") {
		t.Errorf("unexpected line %q", line)
	}
	if strings.Contains(line, "access_level") || strings.Contains(line, "user_id") {
		t.Errorf("empty fields should be omitted: %q", line)
	}
}

func TestCloseFlushesAndDropsLaterEvents(t *testing.T) {
	w := &recordingWriter{}
	s := newSink(w)

	s.Emit(context.Background(), levelAuth.AuditEvent{EventType: "logout"})
	s.Close()
	s.Close()
	s.Emit(context.Background(), levelAuth.AuditEvent{EventType: "logout"})

	if w.flushes != 1 {
		t.Errorf("flushes = %d, want 1", w.flushes)
	}
	if len(w.lines()) != 1 {
		t.Errorf("expected events after Close to be dropped")
	}
}

func TestDrainErrorsInvokesCallback(t *testing.T) {
	s := newSink(&recordingWriter{})
	got := make(chan error, 1)
	s.SetOnError(func(err error) { got <- err })

	errs := make(chan error, 1)
	errs <- errors.New("write failed")
	close(errs)
	s.drainErrors(errs)

	select {
	case err := <-got:
		if err.Error() != "write failed" {
			t.Errorf("callback got %v", err)
		}
	default:
		t.Fatal("expected callback to be invoked")
	}
}

func TestConnectDisabled(t *testing.T) {
	if _, err := Connect(context.Background(), Config{}); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}
