package ingest

import (
	"context"
	"time"

	"github.com/visagelabs/visage-core/internal/media"
	"github.com/visagelabs/visage-core/internal/observe"
)

// featureCapacity bounds the handoff to the feature-extraction stage. Like
// the sync channel, capacity two trades throughput for a hard latency bound.
const featureCapacity = 2

// FeatureBatch is one overlapping context window handed to the feature
// extractor: leftStride chunks of past context, batchSize new chunks, and
// rightStride chunks of lookahead. Core marks the new sub-range.
type FeatureBatch struct {
	Chunks    []media.Chunk
	CoreStart int
	CoreEnd   int
}

// Windower accumulates chunks from a [Source] into fixed-size overlapping
// windows for streaming feature extraction. The working list holds at most
// leftStride + batchSize + rightStride chunks; the oldest batchSize chunks
// are evicted after every emission.
//
// Windower is driven by a single goroutine (the [Runner]); it is not safe
// for concurrent use.
type Windower struct {
	src    *Source
	out    *SyncChannel
	left   int
	right  int
	batch  int
	frames []media.Chunk

	features chan FeatureBatch
	metrics  *observe.Metrics
}

// NewWindower creates a windower with the given stride and batch geometry.
// Every chunk pulled through it is also published to out for renderer
// synchronization, in production order.
func NewWindower(src *Source, out *SyncChannel, left, right, batch int, metrics *observe.Metrics) *Windower {
	return &Windower{
		src:      src,
		out:      out,
		left:     left,
		right:    right,
		batch:    batch,
		frames:   make([]media.Chunk, 0, left+right+batch),
		features: make(chan FeatureBatch, featureCapacity),
		metrics:  metrics,
	}
}

// Features returns the bounded channel of emitted windows. The extraction
// stage is decoupled from the pipeline's timing except through this
// channel's backpressure.
func (w *Windower) Features() <-chan FeatureBatch {
	return w.features
}

// WarmUp primes the window with leftStride + rightStride chunks before
// normal stepping starts. Each primed chunk is published to the sync channel
// in production order. The renderer consumer must already be draining and must
// skip the first leftStride chunks it receives: those exist only to fill left
// context, never to be rendered.
func (w *Windower) WarmUp(ctx context.Context) error {
	total := w.left + w.right
	for i := 0; i < total; i++ {
		chunk, typ := w.src.Next()
		w.frames = append(w.frames, chunk)
		if err := w.out.Publish(ctx, SyncedChunk{Chunk: chunk, Type: typ}); err != nil {
			return err
		}
	}
	return nil
}

// Step pulls batchSize new chunks, publishes each to the sync channel,
// emits the full window to the feature channel, and evicts the oldest
// batchSize chunks. Blocks on the feature channel when the extractor lags.
//
// Every emitted window carries exactly leftStride chunks of left context,
// batchSize new chunks, and rightStride of right context; the warm-up
// prefix guarantees the geometry from the first step onward.
func (w *Windower) Step(ctx context.Context) error {
	start := time.Now()

	for i := 0; i < w.batch; i++ {
		chunk, typ := w.src.Next()
		w.frames = append(w.frames, chunk)
		if err := w.out.Publish(ctx, SyncedChunk{Chunk: chunk, Type: typ}); err != nil {
			return err
		}
	}

	if len(w.frames) <= w.left+w.right {
		// Still inside the warm-up prefix; nothing to emit yet.
		return nil
	}

	window := make([]media.Chunk, len(w.frames))
	copy(window, w.frames)
	batch := FeatureBatch{
		Chunks:    window,
		CoreStart: w.left,
		CoreEnd:   len(window) - w.right,
	}

	select {
	case w.features <- batch:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.frames = w.frames[len(w.frames)-(w.left+w.right):]
	w.metrics.WindowsEmitted.Add(ctx, 1)
	w.metrics.StepDuration.Record(ctx, time.Since(start).Seconds())
	return nil
}
