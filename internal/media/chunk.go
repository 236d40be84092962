// Package media defines the fixed-duration PCM chunk type and the frame-type
// tagging shared by the ingestion and playback layers. A chunk is the atomic
// unit of transport: sampleRate/fps float32 samples (320 samples for 20ms at
// 16kHz), immutable once produced.
package media

import "fmt"

// Chunk is a fixed-length slice of mono float32 PCM samples. The length is
// constant for the lifetime of a stream.
type Chunk []float32

// Silence returns a zero-filled chunk of n samples.
func Silence(n int) Chunk {
	return make(Chunk, n)
}

// ChunkLen returns the number of samples per chunk for the given stream
// timing parameters.
func ChunkLen(sampleRate, fps int) int {
	return sampleRate / fps
}

// Kind classifies the audio source a chunk was produced from.
type Kind int

const (
	// KindInference marks a chunk dequeued from the live/TTS input queue.
	KindInference Kind = iota

	// KindSilence marks a synthesized zero-filled fallback chunk.
	KindSilence

	// KindCustom marks a chunk sliced from a pre-recorded custom clip.
	KindCustom
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInference:
		return "inference"
	case KindSilence:
		return "silence"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// FrameType tags a chunk with the source it came from. Exactly one frame type
// is active per stream at any instant. CustomID is meaningful only when Kind
// is [KindCustom] and is always >= 2.
type FrameType struct {
	Kind     Kind
	CustomID int
}

// Inference returns the frame type for live/TTS input chunks.
func Inference() FrameType {
	return FrameType{Kind: KindInference}
}

// SilenceFrame returns the frame type for synthesized silence chunks.
func SilenceFrame() FrameType {
	return FrameType{Kind: KindSilence}
}

// Custom returns the frame type for the custom clip source id. Callers must
// ensure id >= 2; smaller values are reserved for inference and silence.
func Custom(id int) FrameType {
	return FrameType{Kind: KindCustom, CustomID: id}
}

// Code returns the wire encoding of the frame type: 0 for inference, 1 for
// silence, and the source id (>= 2) for custom clips.
func (t FrameType) Code() int {
	switch t.Kind {
	case KindInference:
		return 0
	case KindSilence:
		return 1
	default:
		return t.CustomID
	}
}

// FrameTypeFromCode is the inverse of [FrameType.Code].
func FrameTypeFromCode(code int) FrameType {
	switch code {
	case 0:
		return Inference()
	case 1:
		return SilenceFrame()
	default:
		return Custom(code)
	}
}

// String returns a short label for logging, e.g. "inference" or "custom(3)".
func (t FrameType) String() string {
	if t.Kind == KindCustom {
		return fmt.Sprintf("custom(%d)", t.CustomID)
	}
	return t.Kind.String()
}
