package ingest

import (
	"context"

	"github.com/visagelabs/visage-core/internal/media"
	"github.com/visagelabs/visage-core/internal/observe"
)

// syncCapacity is the output-sync channel depth. Two chunks (40ms) is a
// deliberate latency bound: the renderer must keep up or apply backpressure,
// never accumulate stale audio.
const syncCapacity = 2

// SyncedChunk pairs one produced chunk with its frame-type tag for renderer
// synchronization.
type SyncedChunk struct {
	Chunk media.Chunk
	Type  media.FrameType
}

// SyncChannel republishes every chunk the frame source produced, in strict
// production order, for consumption by the renderer. The producer blocks when
// the channel is full unless drop-on-full mode is configured.
type SyncChannel struct {
	ch         chan SyncedChunk
	dropOnFull bool
	metrics    *observe.Metrics
}

// NewSyncChannel creates a sync channel of capacity two.
func NewSyncChannel(dropOnFull bool, metrics *observe.Metrics) *SyncChannel {
	return &SyncChannel{
		ch:         make(chan SyncedChunk, syncCapacity),
		dropOnFull: dropOnFull,
		metrics:    metrics,
	}
}

// Publish enqueues sc for the renderer. In the default blocking mode it waits
// until the consumer makes room or ctx is cancelled; in drop-on-full mode a
// full channel drops sc instead of reordering or blocking.
func (c *SyncChannel) Publish(ctx context.Context, sc SyncedChunk) error {
	if c.dropOnFull {
		select {
		case c.ch <- sc:
		default:
			c.metrics.SyncChunksDropped.Add(ctx, 1)
		}
		return nil
	}

	select {
	case c.ch <- sc:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// C returns the receive side for the renderer consumer. Each chunk is
// delivered exactly once, in production order. The first leftStride chunks a
// consumer receives are warm-up left context and must be discarded unseen.
func (c *SyncChannel) C() <-chan SyncedChunk {
	return c.ch
}
