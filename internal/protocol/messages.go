// Package protocol defines the bus message types and subject names shared by
// the runtime and its clients.
package protocol

import "time"

// AudioFrame carries PCM audio for inference playback, published on
// avatar.audio.in.<session>. PCM is 16-bit little-endian; mono at the stream
// sample rate unless SampleRate/Channels say otherwise, in which case the
// runtime converts on ingest.
type AudioFrame struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// PlaybackCommand switches the playback state. SourceID follows the frame
// type encoding: 0 inference, 1 silence, >=2 a registered custom source.
// Reinit restarts the target source's clip from the beginning.
type PlaybackCommand struct {
	SourceID int  `json:"source_id"`
	Reinit   bool `json:"reinit"`
}

// StateChange is broadcast whenever the playback state transitions, whether
// by command, reset, or clip exhaustion.
type StateChange struct {
	From      int       `json:"from"`
	To        int       `json:"to"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// RenderChunk is one synchronized output chunk for the renderer: 20ms of
// PCM16 audio plus the source that produced it. For custom frames,
// ImageIndex selects the mirrored clip frame to display.
type RenderChunk struct {
	Sequence   int    `json:"sequence"`
	SourceID   int    `json:"source_id"`
	PCM        []byte `json:"pcm"`
	ImageIndex int    `json:"image_index,omitempty"`
}

// FeatureWindow is one overlapping context window emitted toward feature
// extraction. Chunks holds leftStride + batchSize + rightStride chunks of
// PCM16; CoreStart/CoreEnd mark the new (non-context) sub-range.
type FeatureWindow struct {
	Sequence  int      `json:"sequence"`
	Chunks    [][]byte `json:"chunks"`
	CoreStart int      `json:"core_start"`
	CoreEnd   int      `json:"core_end"`
}

const (
	SubjectAudioInPrefix   = "avatar.audio.in"
	SubjectPlaybackSet     = "avatar.playback.set"
	SubjectPlaybackReset   = "avatar.playback.reset"
	SubjectSpeechInterrupt = "avatar.speech.interrupt"
	SubjectRenderAudio     = "avatar.render.audio"
	SubjectFeatureWindow   = "avatar.feature.window"
	SubjectPlaybackState   = "avatar.playback.state"
)
