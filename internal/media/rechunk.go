package media

// Rechunker slices arbitrary-length sample payloads into fixed-size chunks,
// carrying any remainder into the next push. Inbound producers are free to
// send frames of any length; the pipeline only ever sees whole chunks.
//
// Not safe for concurrent use; create one per inbound session.
type Rechunker struct {
	size    int
	pending []float32
}

// NewRechunker returns a rechunker producing chunks of size samples.
func NewRechunker(size int) *Rechunker {
	return &Rechunker{size: size}
}

// Push appends samples and returns every complete chunk now available, in
// order. Returns nil when fewer than size samples are buffered.
func (r *Rechunker) Push(samples []float32) []Chunk {
	r.pending = append(r.pending, samples...)

	var chunks []Chunk
	for len(r.pending) >= r.size {
		c := make(Chunk, r.size)
		copy(c, r.pending[:r.size])
		r.pending = r.pending[r.size:]
		chunks = append(chunks, c)
	}
	return chunks
}

// Flush returns the buffered remainder zero-padded to a full chunk, or
// (nil, false) if nothing is pending. Used when a producer marks its stream
// final.
func (r *Rechunker) Flush() (Chunk, bool) {
	if len(r.pending) == 0 {
		return nil, false
	}
	c := make(Chunk, r.size)
	copy(c, r.pending)
	r.pending = r.pending[:0]
	return c, true
}

// Pending returns the number of samples currently buffered.
func (r *Rechunker) Pending() int {
	return len(r.pending)
}
