// Package influx records levelAuth audit events as InfluxDB points so login,
// signup and reset activity can be charted per access level.
package influx

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	levelAuth "github.com/MrEthical07/levelAuth"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	// Measurement is the InfluxDB measurement audit points are written to.
	Measurement = "levelauth_events"

	defaultConnectTimeout = 10 * time.Second
	defaultBatchSize      = 100
	defaultFlushInterval  = 10 * time.Second
)

var (
	// ErrDisabled is returned by Connect when the sink is turned off in config.
	ErrDisabled = errors.New("influx audit sink: disabled")
	// ErrConnectionFailed is returned when the server cannot be reached or is unhealthy.
	ErrConnectionFailed = errors.New("influx audit sink: connection failed")
)

// Config selects the InfluxDB v2 server and bucket.
type Config struct {
	Enabled       bool
	URL           string
	Token         string
	Org           string
	Bucket        string
	BatchSize     uint
	FlushInterval time.Duration
}

// pointWriter is the part of api.WriteAPI the sink uses.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Sink implements levelAuth.AuditSink. Writes are batched and never block Emit.
type Sink struct {
	client influxdb2.Client
	writer pointWriter

	mu      sync.RWMutex
	onError func(error)
	closed  bool
}

var _ levelAuth.AuditSink = (*Sink)(nil)

// Connect pings the server and returns a sink writing to cfg.Bucket.
func Connect(ctx context.Context, cfg Config) (*Sink, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(cfg.BatchSize).
			SetFlushInterval(uint(cfg.FlushInterval.Milliseconds())),
	)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()
	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	s := &Sink{client: client, writer: writeAPI}
	go s.drainErrors(writeAPI.Errors())
	return s, nil
}

func newSink(w pointWriter) *Sink {
	return &Sink{writer: w}
}

func (s *Sink) drainErrors(errs <-chan error) {
	for err := range errs {
		s.mu.RLock()
		cb := s.onError
		s.mu.RUnlock()
		if cb != nil {
			cb(err)
		}
	}
}

// SetOnError registers a callback for asynchronous write failures.
func (s *Sink) SetOnError(cb func(error)) {
	s.mu.Lock()
	s.onError = cb
	s.mu.Unlock()
}

// Emit converts event to a point. User ids are fields, not tags, to keep series
// cardinality bounded.
func (s *Sink) Emit(_ context.Context, event levelAuth.AuditEvent) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return
	}
	s.writer.WritePoint(toPoint(event))
}

func toPoint(event levelAuth.AuditEvent) *write.Point {
	tags := map[string]string{
		"event_type": event.EventType,
		"success":    strconv.FormatBool(event.Success),
	}
	if event.AccessLevel > 0 {
		tags["access_level"] = strconv.Itoa(event.AccessLevel)
	}
	if event.Error != "" {
		tags["error"] = event.Error
	}

	fields := map[string]interface{}{"count": int64(1)}
	if event.UserID != "" {
		fields["user_id"] = event.UserID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return write.NewPoint(Measurement, tags, fields, ts)
}

// Close flushes pending points and releases the client. Later Emit calls are dropped.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.writer.Flush()
	if s.client != nil {
		s.client.Close()
	}
}
