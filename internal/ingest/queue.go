package ingest

import (
	"sync"
	"time"

	"github.com/visagelabs/visage-core/internal/media"
)

// chunkQueue is an unbounded multi-producer FIFO of audio chunks with a
// timed blocking pop. Producers (TTS, network input) must never be slowed by
// the processing cadence, so the queue grows as needed; absence of input is
// resolved by the pop timeout, not by backpressure.
type chunkQueue struct {
	mu     sync.Mutex
	items  []media.Chunk
	notify chan struct{}
}

func newChunkQueue() *chunkQueue {
	return &chunkQueue{notify: make(chan struct{}, 1)}
}

func (q *chunkQueue) push(c media.Chunk) {
	q.mu.Lock()
	q.items = append(q.items, c)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop dequeues the oldest chunk, waiting up to timeout for one to arrive.
// Returns ok=false on timeout.
func (q *chunkQueue) pop(timeout time.Duration) (media.Chunk, bool) {
	deadline := time.Now().Add(timeout)
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			c := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return c, true
		}
		q.mu.Unlock()

		remain := time.Until(deadline)
		if remain <= 0 {
			return nil, false
		}
		timer := time.NewTimer(remain)
		select {
		case <-q.notify:
			timer.Stop()
		case <-timer.C:
			return nil, false
		}
	}
}

// clear drops every queued chunk and returns how many were removed. Safe to
// call concurrently with an in-flight pop; the pop either already holds its
// chunk or times out.
func (q *chunkQueue) clear() int {
	q.mu.Lock()
	n := len(q.items)
	q.items = nil
	q.mu.Unlock()
	return n
}

func (q *chunkQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
