package metrics

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/target/mmk-auth/internal/observability/statsd"
)

var _ statsd.Sink = (*PrometheusSink)(nil)

// PrometheusSink adapts the statsd.Sink surface onto Prometheus collectors.
// Collectors are created on first use; the label set of a metric is fixed by
// the tags of its first emission and later emissions with other keys are dropped.
type PrometheusSink struct {
	namespace string
	registry  *prometheus.Registry
	logger    *slog.Logger

	mu         sync.Mutex
	counters   map[string]*counterEntry
	histograms map[string]*histogramEntry
}

type counterEntry struct {
	vec    *prometheus.CounterVec
	labels []string
}

type histogramEntry struct {
	vec    *prometheus.HistogramVec
	labels []string
}

// PrometheusOptions configures NewPrometheusSink.
type PrometheusOptions struct {
	// Namespace prefixes every metric name (default "mmk").
	Namespace string
	// Registry defaults to a fresh registry.
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// NewPrometheusSink creates a sink backed by its own registry.
func NewPrometheusSink(opts PrometheusOptions) *PrometheusSink {
	ns := opts.Namespace
	if ns == "" {
		ns = "mmk"
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PrometheusSink{
		namespace:  ns,
		registry:   reg,
		logger:     logger,
		counters:   make(map[string]*counterEntry),
		histograms: make(map[string]*histogramEntry),
	}
}

// Registry exposes the underlying registry for gathering.
func (p *PrometheusSink) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Count increments the counter <namespace>_<name>_total.
func (p *PrometheusSink) Count(name string, value int64, tags map[string]string) {
	if p == nil || value < 0 {
		return
	}
	entry, ok := p.counter(name, tags)
	if !ok {
		return
	}
	entry.vec.WithLabelValues(labelValues(entry.labels, tags)...).Add(float64(value))
}

// Timing observes d on the histogram <namespace>_<name>_seconds.
func (p *PrometheusSink) Timing(name string, d time.Duration, tags map[string]string) {
	if p == nil {
		return
	}
	entry, ok := p.histogram(name, tags)
	if !ok {
		return
	}
	entry.vec.WithLabelValues(labelValues(entry.labels, tags)...).Observe(d.Seconds())
}

func (p *PrometheusSink) counter(name string, tags map[string]string) (*counterEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	labels := labelKeys(tags)
	if e, ok := p.counters[name]; ok {
		return e, p.sameLabels(name, e.labels, labels)
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: p.namespace,
		Name:      metricName(name) + "_total",
		Help:      "Total count of " + name,
	}, labels)
	if err := p.registry.Register(vec); err != nil {
		p.logger.Warn("prometheus register failed", "metric", name, "error", err)
		return nil, false
	}
	e := &counterEntry{vec: vec, labels: labels}
	p.counters[name] = e
	return e, true
}

func (p *PrometheusSink) histogram(name string, tags map[string]string) (*histogramEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	labels := labelKeys(tags)
	if e, ok := p.histograms[name]; ok {
		return e, p.sameLabels(name, e.labels, labels)
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: p.namespace,
		Name:      metricName(name) + "_seconds",
		Help:      "Latency of " + name + " in seconds",
		Buckets:   prometheus.DefBuckets,
	}, labels)
	if err := p.registry.Register(vec); err != nil {
		p.logger.Warn("prometheus register failed", "metric", name, "error", err)
		return nil, false
	}
	e := &histogramEntry{vec: vec, labels: labels}
	p.histograms[name] = e
	return e, true
}

func (p *PrometheusSink) sameLabels(name string, want, got []string) bool {
	if slices.Equal(want, got) {
		return true
	}
	p.logger.Debug("prometheus label mismatch; dropping sample", "metric", name, "labels", got)
	return false
}

func labelKeys(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, metricName(k))
	}
	slices.Sort(keys)
	return keys
}

func labelValues(labels []string, tags map[string]string) []string {
	byLabel := make(map[string]string, len(tags))
	for k, v := range tags {
		byLabel[metricName(k)] = v
	}
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = byLabel[l]
	}
	return out
}

// metricName maps statsd-style dotted names onto Prometheus' charset.
func metricName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// Fanout sends every sample to each non-nil sink.
type Fanout []statsd.Sink

var _ statsd.Sink = Fanout(nil)

// NewFanout drops nil sinks and returns nil when none remain.
func NewFanout(sinks ...statsd.Sink) statsd.Sink {
	out := make(Fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

func (f Fanout) Count(name string, value int64, tags map[string]string) {
	for _, s := range f {
		s.Count(name, value, CloneTags(tags))
	}
}

func (f Fanout) Timing(name string, d time.Duration, tags map[string]string) {
	for _, s := range f {
		s.Timing(name, d, CloneTags(tags))
	}
}
