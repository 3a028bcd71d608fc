package prometheus

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	levelAuth "github.com/MrEthical07/levelAuth"
	"github.com/MrEthical07/levelAuth/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

// Source is anything that can report engine metrics. *levelAuth.Engine satisfies it.
type Source interface {
	MetricsSnapshot() levelAuth.MetricsSnapshot
	AuditStats() levelAuth.AuditStats
}

// Exporter renders engine metrics in Prometheus text exposition format.
type Exporter struct {
	source Source
}

// New creates an exporter that reads from engine.
func New(engine *levelAuth.Engine) *Exporter {
	return &Exporter{source: engine}
}

// NewFromSource creates an exporter from any [Source].
func NewFromSource(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler serves the rendered metrics. Scrapes are never cached.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current metrics. Output is empty when metrics and audit
// are both disabled.
func (p *Exporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snap := p.source.MetricsSnapshot()
	audit := p.source.AuditStats()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 && audit == (levelAuth.AuditStats{}) {
		return ""
	}

	w := &textWriter{}
	for _, def := range internaldefs.CounterDefs {
		w.counter(def.Name, def.Help, snap.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		raw, ok := snap.Histograms[def.ID]
		if !ok {
			continue
		}
		w.histogram(def.Name, def.Help, internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw)))
	}
	for _, def := range internaldefs.AuditDefs {
		w.counter(def.Name, def.Help, def.Value(audit))
	}
	return w.buf.String()
}

type textWriter struct {
	buf bytes.Buffer
}

func (w *textWriter) header(name, help, kind string) {
	fmt.Fprintf(&w.buf, "# HELP %s %s\n# TYPE %s %s\n", name, escapeHelp(help), name, kind)
}

func (w *textWriter) counter(name, help string, v uint64) {
	w.header(name, help, "counter")
	fmt.Fprintf(&w.buf, "%s %d\n", name, v)
}

// histogram writes cumulative buckets. The engine keeps counts only, so the
// sum is reported as 0.
func (w *textWriter) histogram(name, help string, cumulative [8]uint64) {
	w.header(name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		fmt.Fprintf(&w.buf, "%s_bucket{le=%q} %d\n", name, le, cumulative[i])
	}
	fmt.Fprintf(&w.buf, "%s_sum 0\n%s_count %d\n", name, name, cumulative[len(cumulative)-1])
}

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)

func escapeHelp(help string) string { return helpEscaper.Replace(help) }
