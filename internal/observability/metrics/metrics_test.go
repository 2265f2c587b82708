package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/target/mmk-auth/internal/errors"
)

type countCall struct {
	name  string
	value int64
	tags  map[string]string
}

type timingCall struct {
	name string
	dur  time.Duration
	tags map[string]string
}

type fakeSink struct {
	mu      sync.Mutex
	counts  []countCall
	timings []timingCall
}

func (f *fakeSink) Count(name string, value int64, tags map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = append(f.counts, countCall{name: name, value: value, tags: tags})
}

func (f *fakeSink) Timing(name string, d time.Duration, tags map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timings = append(f.timings, timingCall{name: name, dur: d, tags: tags})
}

func TestEmitAuthOperation_Success(t *testing.T) {
	sink := &fakeSink{}
	EmitAuthOperation(sink, OperationMetric{Operation: "sign_in", Result: ResultSuccess, Duration: 20 * time.Millisecond})

	require.Len(t, sink.counts, 1)
	assert.Equal(t, MetricOperation, sink.counts[0].name)
	assert.Equal(t, map[string]string{
		"operation":   "sign_in",
		"result":      "success",
		"error_class": "none",
		"error_code":  "none",
	}, sink.counts[0].tags)

	require.Len(t, sink.timings, 1)
	assert.Equal(t, MetricOperationDuration, sink.timings[0].name)
	assert.Equal(t, 20*time.Millisecond, sink.timings[0].dur)
}

func TestEmitAuthOperation_ErrorTags(t *testing.T) {
	sink := &fakeSink{}
	err := fmt.Errorf("wrap: %w", apperrors.Provider("wrong-password", "Incorrect password. Please try again.", nil))
	EmitAuthOperation(sink, OperationMetric{Operation: "sign_in", Result: ResultError, Err: err})

	require.Len(t, sink.counts, 1)
	assert.Equal(t, "provider", sink.counts[0].tags["error_class"])
	assert.Equal(t, "wrong-password", sink.counts[0].tags["error_code"])
	assert.Empty(t, sink.timings, "zero duration is not timed")
}

func TestEmitAuthOperation_PlainErrorHasNoCode(t *testing.T) {
	sink := &fakeSink{}
	EmitAuthOperation(sink, OperationMetric{Operation: "sign_out", Result: ResultError, Err: errors.New("boom")})

	require.Len(t, sink.counts, 1)
	assert.Equal(t, "errors_errorstring", sink.counts[0].tags["error_class"])
	assert.Equal(t, "none", sink.counts[0].tags["error_code"])
}

func TestEmitAuthOperation_NilSink(t *testing.T) {
	assert.NotPanics(t, func() {
		EmitAuthOperation(nil, OperationMetric{Operation: "sign_in", Result: ResultSuccess})
		EmitStateChange(nil, true)
	})
}

func TestEmitStateChange(t *testing.T) {
	sink := &fakeSink{}
	EmitStateChange(sink, true)
	EmitStateChange(sink, false)

	require.Len(t, sink.counts, 2)
	assert.Equal(t, "authenticated", sink.counts[0].tags["state"])
	assert.Equal(t, "anonymous", sink.counts[1].tags["state"])
}

func TestCloneTags(t *testing.T) {
	assert.Nil(t, CloneTags(nil))
	src := map[string]string{"a": "1"}
	dst := CloneTags(src)
	dst["a"] = "2"
	assert.Equal(t, "1", src["a"])
}

func TestPrometheusSink_CountAndTiming(t *testing.T) {
	p := NewPrometheusSink(PrometheusOptions{Namespace: "test"})

	EmitAuthOperation(p, OperationMetric{Operation: "sign_in", Result: ResultSuccess, Duration: time.Millisecond})
	EmitAuthOperation(p, OperationMetric{Operation: "sign_in", Result: ResultSuccess, Duration: time.Millisecond})

	p.mu.Lock()
	counter := p.counters[MetricOperation]
	hist := p.histograms[MetricOperationDuration]
	p.mu.Unlock()
	require.NotNil(t, counter)
	require.NotNil(t, hist)

	assert.Equal(t, []string{"error_class", "error_code", "operation", "result"}, counter.labels)
	assert.InDelta(t, 2.0, testutil.ToFloat64(counter.vec.WithLabelValues("none", "none", "sign_in", "success")), 0.0001)
	assert.Equal(t, 1, testutil.CollectAndCount(hist.vec))

	count, err := testutil.GatherAndCount(p.Registry(), "test_auth_operation_total", "test_auth_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPrometheusSink_LabelMismatchDropped(t *testing.T) {
	p := NewPrometheusSink(PrometheusOptions{})
	p.Count("x.y", 1, map[string]string{"a": "1"})
	p.Count("x.y", 1, map[string]string{"b": "1"})
	p.Count("x.y", -1, map[string]string{"a": "1"})

	assert.InDelta(t, 1.0, testutil.ToFloat64(p.counters["x.y"].vec.WithLabelValues("1")), 0.0001)
}

func TestPrometheusSink_Handler(t *testing.T) {
	p := NewPrometheusSink(PrometheusOptions{})
	EmitStateChange(p, true)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `mmk_auth_state_change_total{state="authenticated"} 1`))
}

func TestNewFanout(t *testing.T) {
	assert.Nil(t, NewFanout())
	assert.Nil(t, NewFanout(nil, nil))

	one := &fakeSink{}
	assert.Same(t, one, NewFanout(nil, one))

	a, b := &fakeSink{}, &fakeSink{}
	sink := NewFanout(a, b)
	sink.Count("c", 1, map[string]string{"k": "v"})
	sink.Timing("t", time.Second, nil)

	assert.Len(t, a.counts, 1)
	assert.Len(t, b.counts, 1)
	assert.Len(t, a.timings, 1)
	assert.Len(t, b.timings, 1)
}
