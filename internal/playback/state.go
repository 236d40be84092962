// Package playback owns the audio-source arbitration state for a stream:
// which of inference, silence, or a registered custom clip is currently
// feeding the renderer, plus the audio and image cursors of every custom
// source. All state mutates inside a single mutex so concurrent readers
// always observe a consistent (type, cursors) snapshot.
package playback

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/visagelabs/visage-core/internal/media"
)

// Options configures per-source playback behavior.
type Options struct {
	// FreezeImagesOnExhaust stops the image cursor from advancing once the
	// source's audio clip is exhausted. When false the images keep their
	// ping-pong cycling independently of audio exhaustion.
	FreezeImagesOnExhaust bool
}

// CustomSource is a pre-recorded image-sequence + audio-clip pair playable in
// place of live inference output. Images and Audio are read-only after load;
// cursors live in the state machine, never here.
type CustomSource struct {
	ID     int
	Images []image.Image
	Audio  []float32
	Opts   Options
}

// slot is one arena entry. Presence is tracked by the registered bit, not by
// map key existence.
type slot struct {
	registered  bool
	src         *CustomSource
	audioCursor int
	imageCursor int
	exhausted   bool
}

// TransitionFunc observes state changes. Invoked outside the machine's lock.
type TransitionFunc func(from, to media.FrameType, reason string)

// StateMachine arbitrates the active audio source for one stream.
// All exported methods are safe for concurrent use.
type StateMachine struct {
	chunkLen int
	logger   *slog.Logger

	mu           sync.Mutex
	current      media.FrameType
	slots        []slot
	onTransition TransitionFunc
}

// NewStateMachine creates a machine for chunks of chunkLen samples with a
// fixed-capacity arena admitting custom source ids in [2, 2+maxSources).
// The initial state is inference.
func NewStateMachine(chunkLen, maxSources int, logger *slog.Logger) *StateMachine {
	return &StateMachine{
		chunkLen: chunkLen,
		logger:   logger.With(slog.String("component", "playback")),
		current:  media.Inference(),
		slots:    make([]slot, maxSources+2),
	}
}

// OnTransition registers fn to be called after every state change, including
// automatic exhaustion transitions. Only one callback may be registered;
// subsequent calls replace it. The callback must not call back into the
// machine's mutating methods from the same goroutine stack.
func (m *StateMachine) OnTransition(fn TransitionFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTransition = fn
}

// Register adds a custom source to the arena. The id must be >= 2, within the
// arena capacity, and not already registered.
func (m *StateMachine) Register(src *CustomSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if src.ID < 2 {
		return fmt.Errorf("playback: source id %d is reserved; custom ids start at 2", src.ID)
	}
	if src.ID >= len(m.slots) {
		return fmt.Errorf("playback: source id %d exceeds arena capacity %d", src.ID, len(m.slots)-1)
	}
	if m.slots[src.ID].registered {
		return fmt.Errorf("playback: source id %d already registered", src.ID)
	}
	m.slots[src.ID] = slot{registered: true, src: src}
	m.logger.Info("custom source registered",
		slog.Int("id", src.ID),
		slog.Int("images", len(src.Images)),
		slog.Int("audio_samples", len(src.Audio)),
	)
	return nil
}

// Registered reports whether a custom source with the given id exists.
func (m *StateMachine) Registered(id int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return id >= 2 && id < len(m.slots) && m.slots[id].registered
}

// SourceIDs returns the registered custom source ids in ascending order.
func (m *StateMachine) SourceIDs() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int
	for id := 2; id < len(m.slots); id++ {
		if m.slots[id].registered {
			ids = append(ids, id)
		}
	}
	return ids
}

// SetState switches the active source. Codes follow the wire encoding:
// 0 selects inference, 1 silence, >= 2 a registered custom source. Selecting
// an unregistered custom id is a command error, never a silent no-op. When
// reinit is true the target source's audio and image cursors reset to zero.
func (m *StateMachine) SetState(code int, reinit bool) error {
	m.mu.Lock()
	to := media.FrameTypeFromCode(code)
	if to.Kind == media.KindCustom {
		if code >= len(m.slots) || !m.slots[code].registered {
			m.mu.Unlock()
			return fmt.Errorf("playback: unknown custom source %d", code)
		}
		if reinit {
			m.slots[code].audioCursor = 0
			m.slots[code].imageCursor = 0
			m.slots[code].exhausted = false
		}
	}
	from := m.current
	m.current = to
	fn := m.onTransition
	m.mu.Unlock()

	m.logger.Info("playback state set",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.Bool("reinit", reinit),
	)
	if fn != nil && from != to {
		fn(from, to, "command")
	}
	return nil
}

// Reset forces the state back to inference and zeroes every custom source's
// cursors. Used on session restart or interruption. Idempotent.
func (m *StateMachine) Reset() {
	m.mu.Lock()
	from := m.current
	m.current = media.Inference()
	for i := range m.slots {
		m.slots[i].audioCursor = 0
		m.slots[i].imageCursor = 0
		m.slots[i].exhausted = false
	}
	fn := m.onTransition
	m.mu.Unlock()

	if fn != nil && from != media.Inference() {
		fn(from, media.Inference(), "reset")
	}
}

// Current returns the active frame type.
func (m *StateMachine) Current() media.FrameType {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// NextCustomChunk returns the next chunk of the active custom source and
// advances its audio cursor. Returns ok=false when the current state is not a
// custom source. A final chunk shorter than the chunk length is zero-padded
// for the remainder, and reaching end-of-clip deterministically flips the
// state to silence; custom audio never loops implicitly.
func (m *StateMachine) NextCustomChunk() (media.Chunk, media.FrameType, bool) {
	m.mu.Lock()
	if m.current.Kind != media.KindCustom {
		m.mu.Unlock()
		return nil, media.FrameType{}, false
	}
	id := m.current.CustomID
	sl := &m.slots[id]
	from := m.current

	chunk := media.Silence(m.chunkLen)
	end := sl.audioCursor + m.chunkLen
	if end > len(sl.src.Audio) {
		end = len(sl.src.Audio)
	}
	copy(chunk, sl.src.Audio[sl.audioCursor:end])
	sl.audioCursor = end

	var fn TransitionFunc
	exhausted := sl.audioCursor >= len(sl.src.Audio)
	if exhausted {
		sl.exhausted = true
		m.current = media.SilenceFrame()
		fn = m.onTransition
	}
	m.mu.Unlock()

	if exhausted {
		m.logger.Info("custom audio exhausted", slog.Int("id", id))
		if fn != nil {
			fn(from, media.SilenceFrame(), "exhausted")
		}
	}
	return chunk, media.Custom(id), true
}

// NextImageIndex advances the image cursor of source id and returns the
// mirrored index into its image sequence. When the source's audio is
// exhausted and FreezeImagesOnExhaust is set, the cursor holds still and the
// last mirrored index is returned.
func (m *StateMachine) NextImageIndex(id int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id < 2 || id >= len(m.slots) || !m.slots[id].registered {
		return 0, fmt.Errorf("playback: unknown custom source %d", id)
	}
	sl := &m.slots[id]
	if len(sl.src.Images) == 0 {
		return 0, fmt.Errorf("playback: source %d has no images", id)
	}
	if sl.exhausted && sl.src.Opts.FreezeImagesOnExhaust {
		return MirrorIndex(len(sl.src.Images), sl.imageCursor), nil
	}
	idx := MirrorIndex(len(sl.src.Images), sl.imageCursor)
	sl.imageCursor++
	return idx, nil
}

// Cursors returns a consistent snapshot of every registered source's audio
// and image cursors, keyed by source id.
func (m *StateMachine) Cursors() (audio, images map[int]int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	audio = make(map[int]int)
	images = make(map[int]int)
	for id := 2; id < len(m.slots); id++ {
		if m.slots[id].registered {
			audio[id] = m.slots[id].audioCursor
			images[id] = m.slots[id].imageCursor
		}
	}
	return audio, images
}

// MirrorIndex maps a monotonically increasing play index onto a ping-pong
// traversal of a sequence of the given size: forward on even turns, backward
// on odd turns. A finite image loop rendered this way appears continuous
// with no visible seam.
func MirrorIndex(size, index int) int {
	turn := index / size
	rem := index % size
	if turn%2 == 0 {
		return rem
	}
	return size - rem - 1
}
