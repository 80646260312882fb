package otel

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	traceNoop "go.opentelemetry.io/otel/trace/noop"
)

const scopeName = "github.com/hugolhafner/go-lanes"

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	AttrIdentifier    = attribute.Key("lanes.identifier")
	AttrLane          = attribute.Key("lanes.lane")
	AttrDropReason    = attribute.Key("lanes.drop_reason")
	AttrProcessStatus = attribute.Key("lanes.process.status")
)

// Telemetry holds all OpenTelemetry instruments for the go-lanes library
// When no providers are configured, all instruments are noops with zero overhead
type Telemetry struct {
	Tracer trace.Tracer

	// Ingress metrics
	ItemsSubmitted metric.Int64Counter
	ItemsDropped   metric.Int64Counter

	// Worker metrics
	QueueDepth      metric.Int64Gauge
	ProcessDuration metric.Float64Histogram

	// Checkpoint metrics
	OffsetsCommitted metric.Int64Counter
}

// NewTelemetry creates a Telemetry instance from the given providers.
// both providers are optional and defaulted to noops if nil
func NewTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) (*Telemetry, error) {
	if tp == nil {
		tp = traceNoop.NewTracerProvider()
	}
	if mp == nil {
		mp = noop.NewMeterProvider()
	}

	tracer := tp.Tracer(scopeName)
	meter := mp.Meter(scopeName)

	itemsSubmitted, err := meter.Int64Counter(
		"lanes.items.submitted",
		metric.WithDescription("Work items accepted onto a lane"),
	)
	if err != nil {
		return nil, err
	}

	itemsDropped, err := meter.Int64Counter(
		"lanes.items.dropped",
		metric.WithDescription("Work items dropped before processing"),
	)
	if err != nil {
		return nil, err
	}

	queueDepth, err := meter.Int64Gauge(
		"lanes.queue.depth",
		metric.WithDescription("Total queued items across all lanes"),
	)
	if err != nil {
		return nil, err
	}

	processDuration, err := meter.Float64Histogram(
		"lanes.process.duration",
		metric.WithDescription("Time spent in the processing callback"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	offsetsCommitted, err := meter.Int64Counter(
		"lanes.offsets.committed",
		metric.WithDescription("Partitions included in checkpoint commits"),
	)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Tracer:           tracer,
		ItemsSubmitted:   itemsSubmitted,
		ItemsDropped:     itemsDropped,
		QueueDepth:       queueDepth,
		ProcessDuration:  processDuration,
		OffsetsCommitted: offsetsCommitted,
	}, nil
}

// NewNoopTelemetry returns a Telemetry whose instruments record nothing.
func NewNoopTelemetry() *Telemetry {
	t, _ := NewTelemetry(nil, nil)
	return t
}
