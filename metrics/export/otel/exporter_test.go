package otel

import (
	"context"
	"errors"
	"sync"
	"testing"

	levelAuth "github.com/MrEthical07/levelAuth"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu    sync.RWMutex
	snap  levelAuth.MetricsSnapshot
	audit levelAuth.AuditStats
	reads int
}

func (f *fakeSource) MetricsSnapshot() levelAuth.MetricsSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	out := levelAuth.MetricsSnapshot{
		Counters:   make(map[levelAuth.MetricID]uint64, len(f.snap.Counters)),
		Histograms: make(map[levelAuth.MetricID][]uint64, len(f.snap.Histograms)),
	}
	for k, v := range f.snap.Counters {
		out.Counters[k] = v
	}
	for k, b := range f.snap.Histograms {
		out.Histograms[k] = append([]uint64(nil), b...)
	}
	return out
}

func (f *fakeSource) AuditStats() levelAuth.AuditStats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.audit
}

func newReader(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if len(data.DataPoints) > 0 {
					out[m.Name] = data.DataPoints[0].Value
				}
			case metricdata.Gauge[int64]:
				if len(data.DataPoints) > 0 {
					out[m.Name] = data.DataPoints[0].Value
				}
			}
		}
	}
	return out
}

func TestExporterCollects(t *testing.T) {
	reader, provider := newReader(t)
	src := &fakeSource{
		snap: levelAuth.MetricsSnapshot{
			Counters:   map[levelAuth.MetricID]uint64{levelAuth.MetricLoginSuccess: 3},
			Histograms: map[levelAuth.MetricID][]uint64{levelAuth.MetricValidateLatency: {1, 1, 1, 1, 1, 1, 1, 1}},
		},
		audit: levelAuth.AuditStats{Delivered: 9, Dropped: 1},
	}

	exp, err := NewFromSource(provider.Meter("levelauth-test"), src)
	if err != nil {
		t.Fatalf("NewFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	got := collect(t, reader)
	want := map[string]int64{
		"levelauth_login_success_total":                      3,
		"levelauth_signup_success_total":                     0,
		"levelauth_validate_latency_seconds_bucket_le_0_005": 1,
		"levelauth_validate_latency_seconds_bucket_le_0_1":   5,
		"levelauth_validate_latency_seconds_bucket_le_inf":   8,
		"levelauth_validate_latency_seconds_count":           8,
		"levelauth_login_latency_seconds_count":              0,
		"levelauth_audit_delivered_total":                    9,
		"levelauth_audit_dropped_total":                      1,
		"levelauth_audit_failed_total":                       0,
	}
	for name, v := range want {
		if g, ok := got[name]; !ok || g != v {
			t.Errorf("%s = %d (found=%v), want %d", name, g, ok, v)
		}
	}

	src.mu.RLock()
	reads := src.reads
	src.mu.RUnlock()
	if reads != 1 {
		t.Errorf("source read %d times in one collection, want 1", reads)
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newReader(t)

	if _, err := NewFromSource(provider.Meter("levelauth-test"), nil); !errors.Is(err, ErrNilSource) {
		t.Fatalf("nil source error = %v", err)
	}
	if _, err := NewFromSource(nil, &fakeSource{}); !errors.Is(err, ErrNilMeter) {
		t.Fatalf("nil meter error = %v", err)
	}
}

func TestCloseStopsObservation(t *testing.T) {
	reader, provider := newReader(t)
	src := &fakeSource{snap: levelAuth.MetricsSnapshot{Counters: map[levelAuth.MetricID]uint64{levelAuth.MetricLogout: 2}}}

	exp, err := NewFromSource(provider.Meter("levelauth-test"), src)
	if err != nil {
		t.Fatalf("NewFromSource failed: %v", err)
	}
	if err := exp.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	_ = collect(t, reader)

	src.mu.RLock()
	defer src.mu.RUnlock()
	if src.reads != 0 {
		t.Fatalf("source read after Close: %d", src.reads)
	}

	var nilExp *Exporter
	if err := nilExp.Close(); err != nil {
		t.Fatalf("nil Close error = %v", err)
	}
}

func TestExporterConcurrentCollect(t *testing.T) {
	reader, provider := newReader(t)
	src := &fakeSource{snap: levelAuth.MetricsSnapshot{
		Counters:   map[levelAuth.MetricID]uint64{levelAuth.MetricLoginSuccess: 1},
		Histograms: map[levelAuth.MetricID][]uint64{levelAuth.MetricValidateLatency: {1}},
	}}

	exp, err := NewFromSource(provider.Meter("levelauth-test"), src)
	if err != nil {
		t.Fatalf("NewFromSource failed: %v", err)
	}
	defer exp.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snap.Counters[levelAuth.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
