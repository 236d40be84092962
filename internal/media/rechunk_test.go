package media

import "testing"

func TestRechunkerCarriesRemainder(t *testing.T) {
	r := NewRechunker(4)

	chunks := r.Push([]float32{1, 2, 3})
	if chunks != nil {
		t.Fatalf("expected no chunks from partial push, got %d", len(chunks))
	}
	if r.Pending() != 3 {
		t.Fatalf("pending = %d, want 3", r.Pending())
	}

	chunks = r.Push([]float32{4, 5, 6, 7, 8, 9})
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0][0] != 1 || chunks[0][3] != 4 {
		t.Fatalf("first chunk wrong: %v", chunks[0])
	}
	if chunks[1][0] != 5 || chunks[1][3] != 8 {
		t.Fatalf("second chunk wrong: %v", chunks[1])
	}
	if r.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", r.Pending())
	}
}

func TestRechunkerFlushPads(t *testing.T) {
	r := NewRechunker(4)
	r.Push([]float32{1, 2})

	c, ok := r.Flush()
	if !ok {
		t.Fatal("expected flushed chunk")
	}
	if c[0] != 1 || c[1] != 2 || c[2] != 0 || c[3] != 0 {
		t.Fatalf("flush not zero padded: %v", c)
	}
	if _, ok := r.Flush(); ok {
		t.Fatal("expected empty flush after drain")
	}
}
