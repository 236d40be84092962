package playback

import (
	"image"
	"io"
	"log/slog"
	"testing"

	"github.com/visagelabs/visage-core/internal/media"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newSource(id, audioSamples, images int, opts Options) *CustomSource {
	audio := make([]float32, audioSamples)
	for i := range audio {
		audio[i] = float32(i + 1)
	}
	imgs := make([]image.Image, images)
	for i := range imgs {
		imgs[i] = image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	return &CustomSource{ID: id, Images: imgs, Audio: audio, Opts: opts}
}

func TestMirrorIndex(t *testing.T) {
	// Size 4 should ping-pong: 0 1 2 3 3 2 1 0 0 1 ...
	want := []int{0, 1, 2, 3, 3, 2, 1, 0, 0, 1}
	for i, w := range want {
		if got := MirrorIndex(4, i); got != w {
			t.Fatalf("MirrorIndex(4, %d) = %d, want %d", i, got, w)
		}
	}
	if got := MirrorIndex(1, 5); got != 0 {
		t.Fatalf("MirrorIndex(1, 5) = %d, want 0", got)
	}
}

func TestRegisterValidation(t *testing.T) {
	m := NewStateMachine(4, 2, newLogger())

	if err := m.Register(newSource(1, 4, 1, Options{})); err == nil {
		t.Fatal("expected error for reserved id 1")
	}
	if err := m.Register(newSource(10, 4, 1, Options{})); err == nil {
		t.Fatal("expected error for id beyond arena capacity")
	}
	if err := m.Register(newSource(2, 4, 1, Options{})); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(newSource(2, 4, 1, Options{})); err == nil {
		t.Fatal("expected error for duplicate id")
	}
	if !m.Registered(2) || m.Registered(3) {
		t.Fatalf("unexpected registration set: %v", m.SourceIDs())
	}
}

func TestSetStateUnknownCustom(t *testing.T) {
	m := NewStateMachine(4, 2, newLogger())
	if err := m.SetState(3, false); err == nil {
		t.Fatal("expected error selecting unregistered custom source")
	}
	if m.Current() != media.Inference() {
		t.Fatalf("state changed on rejected command: %v", m.Current())
	}
}

func TestCustomExhaustionFlipsToSilence(t *testing.T) {
	m := NewStateMachine(4, 2, newLogger())
	// 10 samples at 4-sample chunks: two full chunks and a padded third.
	if err := m.Register(newSource(2, 10, 3, Options{})); err != nil {
		t.Fatalf("register: %v", err)
	}

	var transitions []string
	m.OnTransition(func(from, to media.FrameType, reason string) {
		transitions = append(transitions, from.String()+">"+to.String()+":"+reason)
	})

	if err := m.SetState(2, false); err != nil {
		t.Fatalf("set state: %v", err)
	}

	var chunks []media.Chunk
	for {
		c, typ, ok := m.NextCustomChunk()
		if !ok {
			break
		}
		if typ != media.Custom(2) {
			t.Fatalf("chunk tagged %v, want custom(2)", typ)
		}
		chunks = append(chunks, c)
	}

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks from 10 samples, got %d", len(chunks))
	}
	last := chunks[2]
	if last[0] != 9 || last[1] != 10 || last[2] != 0 || last[3] != 0 {
		t.Fatalf("final chunk not zero padded: %v", last)
	}
	if m.Current() != media.SilenceFrame() {
		t.Fatalf("expected silence after exhaustion, got %v", m.Current())
	}
	if len(transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %v", transitions)
	}
	if transitions[1] != "custom(2)>silence:exhausted" {
		t.Fatalf("unexpected exhaustion transition: %v", transitions[1])
	}
}

func TestSetStateReinit(t *testing.T) {
	m := NewStateMachine(4, 2, newLogger())
	if err := m.Register(newSource(2, 20, 3, Options{})); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.SetState(2, false); err != nil {
		t.Fatalf("set state: %v", err)
	}
	m.NextCustomChunk()
	m.NextCustomChunk()
	if _, err := m.NextImageIndex(2); err != nil {
		t.Fatalf("image index: %v", err)
	}

	audio, images := m.Cursors()
	if audio[2] != 8 || images[2] != 1 {
		t.Fatalf("cursors before reinit: audio=%d images=%d", audio[2], images[2])
	}

	if err := m.SetState(2, true); err != nil {
		t.Fatalf("set state reinit: %v", err)
	}
	audio, images = m.Cursors()
	if audio[2] != 0 || images[2] != 0 {
		t.Fatalf("cursors after reinit: audio=%d images=%d", audio[2], images[2])
	}
}

func TestResetZeroesCursorsAndIsIdempotent(t *testing.T) {
	m := NewStateMachine(4, 2, newLogger())
	if err := m.Register(newSource(2, 20, 3, Options{})); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.SetState(2, false); err != nil {
		t.Fatalf("set state: %v", err)
	}
	m.NextCustomChunk()

	calls := 0
	m.OnTransition(func(from, to media.FrameType, reason string) {
		if reason != "reset" {
			t.Fatalf("unexpected reason %q", reason)
		}
		calls++
	})

	m.Reset()
	m.Reset()

	if m.Current() != media.Inference() {
		t.Fatalf("expected inference after reset, got %v", m.Current())
	}
	audio, _ := m.Cursors()
	if audio[2] != 0 {
		t.Fatalf("audio cursor not zeroed: %d", audio[2])
	}
	if calls != 1 {
		t.Fatalf("expected exactly one reset transition, got %d", calls)
	}
}

func TestNextImageIndexFreezeOnExhaust(t *testing.T) {
	m := NewStateMachine(4, 2, newLogger())
	if err := m.Register(newSource(2, 4, 3, Options{FreezeImagesOnExhaust: true})); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.SetState(2, false); err != nil {
		t.Fatalf("set state: %v", err)
	}

	first, err := m.NextImageIndex(2)
	if err != nil {
		t.Fatalf("image index: %v", err)
	}
	if first != 0 {
		t.Fatalf("first index = %d, want 0", first)
	}

	// Single chunk drains the 4-sample clip.
	m.NextCustomChunk()

	for i := 0; i < 3; i++ {
		idx, err := m.NextImageIndex(2)
		if err != nil {
			t.Fatalf("image index: %v", err)
		}
		if idx != 1 {
			t.Fatalf("frozen cursor moved: got %d, want 1", idx)
		}
	}
}

func TestNextCustomChunkInactive(t *testing.T) {
	m := NewStateMachine(4, 2, newLogger())
	if _, _, ok := m.NextCustomChunk(); ok {
		t.Fatal("expected no custom chunk while in inference state")
	}
}
