package otel

import (
	"context"
	"errors"
	"fmt"

	levelAuth "github.com/MrEthical07/levelAuth"
	"github.com/MrEthical07/levelAuth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrNilMeter is returned when no meter is supplied.
	ErrNilMeter = errors.New("nil meter")
	// ErrNilSource is returned when no metrics source is supplied.
	ErrNilSource = errors.New("nil metrics source")
)

// Source is anything that can report engine metrics. *levelAuth.Engine satisfies it.
type Source interface {
	MetricsSnapshot() levelAuth.MetricsSnapshot
	AuditStats() levelAuth.AuditStats
}

// reading is one collection's worth of source data.
type reading struct {
	snap  levelAuth.MetricsSnapshot
	audit levelAuth.AuditStats
}

// observeFunc reports one instrument family from a reading.
type observeFunc func(metric.Observer, reading)

// Exporter publishes engine metrics as OTel observable instruments. The source
// is read once per collection and every instrument observes that reading.
type Exporter struct {
	registration metric.Registration
}

// New registers instruments for engine on meter.
func New(meter metric.Meter, engine *levelAuth.Engine) (*Exporter, error) {
	return NewFromSource(meter, engine)
}

// NewFromSource registers instruments for any [Source].
func NewFromSource(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	var (
		observers   []observeFunc
		instruments []metric.Observable
	)

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		id := def.ID
		observers = append(observers, func(o metric.Observer, r reading) {
			o.ObserveInt64(ins, int64(r.snap.Counters[id]))
		})
		instruments = append(instruments, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		obs, ins, err := histogram(meter, def)
		if err != nil {
			return nil, err
		}
		observers = append(observers, obs)
		instruments = append(instruments, ins...)
	}

	for _, def := range internaldefs.AuditDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		value := def.Value
		observers = append(observers, func(o metric.Observer, r reading) {
			o.ObserveInt64(ins, int64(value(r.audit)))
		})
		instruments = append(instruments, ins)
	}

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		r := reading{snap: source.MetricsSnapshot(), audit: source.AuditStats()}
		for _, observe := range observers {
			observe(o, r)
		}
		return nil
	}, instruments...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return &Exporter{registration: reg}, nil
}

// histogram maps one engine histogram onto a gauge per cumulative bucket plus
// a count gauge. Histograms absent from the snapshot observe zeros.
func histogram(meter metric.Meter, def internaldefs.HistogramDef) (observeFunc, []metric.Observable, error) {
	buckets := make([]metric.Int64ObservableGauge, len(internaldefs.HistogramBoundSuffix))
	instruments := make([]metric.Observable, 0, len(buckets)+1)
	for i, suffix := range internaldefs.HistogramBoundSuffix {
		name := def.Name + "_bucket_le_" + suffix
		g, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
		if err != nil {
			return nil, nil, fmt.Errorf("create gauge %s: %w", name, err)
		}
		buckets[i] = g
		instruments = append(instruments, g)
	}

	count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription(def.Help))
	if err != nil {
		return nil, nil, fmt.Errorf("create gauge %s_count: %w", def.Name, err)
	}
	instruments = append(instruments, count)

	id := def.ID
	observe := func(o metric.Observer, r reading) {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(r.snap.Histograms[id]))
		for i, g := range buckets {
			o.ObserveInt64(g, int64(cumulative[i]))
		}
		o.ObserveInt64(count, int64(cumulative[len(cumulative)-1]))
	}
	return observe, instruments, nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
