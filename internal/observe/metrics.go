// Package observe holds the OpenTelemetry metric instruments for the
// streaming pipeline. Metrics are recorded through the OTel Metrics API and
// exported via the Prometheus bridge wired up in the runtime package.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/visagelabs/visage-core/internal/media"
)

// meterName is the instrumentation scope for all visage metrics.
const meterName = "github.com/visagelabs/visage-core"

// stepBuckets covers the 20ms-cadence step latencies the pipeline operates
// at, in seconds.
var stepBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.02, 0.04, 0.08, 0.16, 0.32, 1,
}

// Metrics holds every instrument the pipeline records. All fields are safe
// for concurrent use; the underlying OTel types synchronise themselves.
type Metrics struct {
	// ChunksProduced counts chunks leaving the frame source, by frame type.
	ChunksProduced metric.Int64Counter

	// FallbackChunks counts chunks synthesized because the input queue timed
	// out, by fallback kind (silence or custom).
	FallbackChunks metric.Int64Counter

	// WindowsEmitted counts feature windows handed to the extraction stage.
	WindowsEmitted metric.Int64Counter

	// StepDuration tracks how long one windowing step takes, including the
	// blocking feature-channel send.
	StepDuration metric.Float64Histogram

	// InputQueueDepth tracks the number of chunks waiting in the inbound
	// queue.
	InputQueueDepth metric.Int64UpDownCounter

	// StateTransitions counts playback state changes by from/to/reason.
	StateTransitions metric.Int64Counter

	// SyncChunksDropped counts output-sync chunks discarded in drop-on-full
	// mode.
	SyncChunksDropped metric.Int64Counter

	// AssetLoadDuration tracks per-source custom asset load time.
	AssetLoadDuration metric.Float64Histogram

	// AssetLoadFailures counts custom sources that failed to load.
	AssetLoadFailures metric.Int64Counter
}

// NewMetrics creates all instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ChunksProduced, err = m.Int64Counter("visage.chunks.produced",
		metric.WithDescription("Audio chunks produced by the frame source, by frame type."),
	); err != nil {
		return nil, err
	}
	if met.FallbackChunks, err = m.Int64Counter("visage.chunks.fallback",
		metric.WithDescription("Chunks synthesized on input timeout, by fallback kind."),
	); err != nil {
		return nil, err
	}
	if met.WindowsEmitted, err = m.Int64Counter("visage.windows.emitted",
		metric.WithDescription("Feature windows emitted to the extraction stage."),
	); err != nil {
		return nil, err
	}
	if met.StepDuration, err = m.Float64Histogram("visage.step.duration",
		metric.WithDescription("Duration of one windowing step."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stepBuckets...),
	); err != nil {
		return nil, err
	}
	if met.InputQueueDepth, err = m.Int64UpDownCounter("visage.input_queue.depth",
		metric.WithDescription("Chunks waiting in the inbound audio queue."),
	); err != nil {
		return nil, err
	}
	if met.StateTransitions, err = m.Int64Counter("visage.playback.transitions",
		metric.WithDescription("Playback state transitions by from, to, and reason."),
	); err != nil {
		return nil, err
	}
	if met.SyncChunksDropped, err = m.Int64Counter("visage.sync.dropped",
		metric.WithDescription("Output-sync chunks dropped in drop-on-full mode."),
	); err != nil {
		return nil, err
	}
	if met.AssetLoadDuration, err = m.Float64Histogram("visage.assets.load_duration",
		metric.WithDescription("Per-source custom asset load time."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.AssetLoadFailures, err = m.Int64Counter("visage.assets.load_failures",
		metric.WithDescription("Custom sources that failed to load."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordChunk records one produced chunk with its frame type, and the
// fallback counter when the chunk did not come from the input queue.
func (m *Metrics) RecordChunk(ctx context.Context, t media.FrameType) {
	m.ChunksProduced.Add(ctx, 1,
		metric.WithAttributes(attribute.String("frame_type", t.Kind.String())),
	)
	if t.Kind != media.KindInference {
		m.FallbackChunks.Add(ctx, 1,
			metric.WithAttributes(attribute.String("kind", t.Kind.String())),
		)
	}
}

// RecordTransition records one playback state change.
func (m *Metrics) RecordTransition(ctx context.Context, from, to media.FrameType, reason string) {
	m.StateTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from.String()),
			attribute.String("to", to.String()),
			attribute.String("reason", reason),
		),
	)
}
