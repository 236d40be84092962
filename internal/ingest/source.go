// Package ingest implements the real-time audio path: the frame source that
// arbitrates between queued input and fallback audio, the context-window
// buffer feeding the feature extractor, the bounded output-sync channel, and
// the fixed-cadence runner that drives them.
package ingest

import (
	"context"
	"time"

	"github.com/visagelabs/visage-core/internal/media"
	"github.com/visagelabs/visage-core/internal/observe"
	"github.com/visagelabs/visage-core/internal/playback"
)

// popTimeout bounds how long Next waits for queued input before falling back
// to the custom clip or silence. Half a chunk duration keeps the processing
// cadence intact.
const popTimeout = 10 * time.Millisecond

// Source supplies the next chunk of the stream: a queued input chunk when one
// arrives in time, otherwise a chunk synthesized from the playback state
// (custom clip audio or silence). Absence of input is a first-class handled
// case, never an error.
type Source struct {
	queue    *chunkQueue
	state    *playback.StateMachine
	chunkLen int
	metrics  *observe.Metrics
}

// NewSource creates a frame source for chunks of chunkLen samples. The state
// machine is consulted on every input timeout.
func NewSource(chunkLen int, state *playback.StateMachine, metrics *observe.Metrics) *Source {
	return &Source{
		queue:    newChunkQueue(),
		state:    state,
		chunkLen: chunkLen,
		metrics:  metrics,
	}
}

// Push enqueues an externally produced chunk for inference playback.
// Safe for concurrent use by multiple producers.
func (s *Source) Push(c media.Chunk) {
	s.queue.push(c)
	s.metrics.InputQueueDepth.Add(context.Background(), 1)
}

// Next returns the next chunk and its frame type. It blocks up to the pop
// timeout on the input queue; on timeout it delegates to the active custom
// source, or synthesizes silence when none is active. Draining a custom clip
// may flip the playback state to silence as a side effect.
func (s *Source) Next() (media.Chunk, media.FrameType) {
	if c, ok := s.queue.pop(popTimeout); ok {
		s.metrics.InputQueueDepth.Add(context.Background(), -1)
		t := media.Inference()
		s.metrics.RecordChunk(context.Background(), t)
		return c, t
	}

	if c, t, ok := s.state.NextCustomChunk(); ok {
		s.metrics.RecordChunk(context.Background(), t)
		return c, t
	}

	t := media.SilenceFrame()
	s.metrics.RecordChunk(context.Background(), t)
	return media.Silence(s.chunkLen), t
}

// DiscardPending clears every chunk queued for inference playback,
// interrupting current speech. Custom and silence state are unaffected.
// Safe to call concurrently with an in-flight Next.
func (s *Source) DiscardPending() {
	n := s.queue.clear()
	if n > 0 {
		s.metrics.InputQueueDepth.Add(context.Background(), int64(-n))
	}
}

// QueueLen returns the number of chunks currently queued.
func (s *Source) QueueLen() int {
	return s.queue.len()
}
