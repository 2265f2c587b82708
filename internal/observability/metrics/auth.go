package metrics

import (
	"time"

	apperrors "github.com/target/mmk-auth/internal/errors"
	obserrors "github.com/target/mmk-auth/internal/observability/errors"
	"github.com/target/mmk-auth/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metric names.
const (
	MetricOperation         = "auth.operation"
	MetricOperationDuration = "auth.operation.duration"
	MetricStateChange       = "auth.state_change"
)

// OperationMetric captures the outcome of one session operation.
type OperationMetric struct {
	Operation string
	Result    string
	Duration  time.Duration
	Err       error
}

// EmitAuthOperation emits standardised session operation metrics.
// Every emission carries the same tag keys so label-based sinks stay consistent.
func EmitAuthOperation(sink statsd.Sink, in OperationMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"operation":   in.Operation,
		"result":      in.Result,
		"error_class": "none",
		"error_code":  "none",
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
		if code := apperrors.CodeOf(in.Err); code != "" {
			tags["error_code"] = code
		}
	}

	sink.Count(MetricOperation, 1, tags)

	if in.Duration > 0 {
		sink.Timing(MetricOperationDuration, in.Duration, CloneTags(tags))
	}
}

// EmitStateChange counts out-of-band session pushes.
func EmitStateChange(sink statsd.Sink, authenticated bool) {
	if sink == nil {
		return
	}
	state := "anonymous"
	if authenticated {
		state = "authenticated"
	}
	sink.Count(MetricStateChange, 1, map[string]string{"state": state})
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
