// Package stream is the bus-facing surface of the audio pipeline. It ingests
// PCM frames into the frame source, applies playback commands, and publishes
// synchronized render chunks and feature windows back onto the bus.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/visagelabs/visage-core/internal/bus"
	"github.com/visagelabs/visage-core/internal/config"
	"github.com/visagelabs/visage-core/internal/eventstore"
	"github.com/visagelabs/visage-core/internal/ingest"
	"github.com/visagelabs/visage-core/internal/media"
	"github.com/visagelabs/visage-core/internal/observe"
	"github.com/visagelabs/visage-core/internal/playback"
	"github.com/visagelabs/visage-core/internal/protocol"
)

type Service struct {
	cfg      config.StreamConfig
	bus      *bus.Client
	state    *playback.StateMachine
	source   *ingest.Source
	sync     *ingest.SyncChannel
	windower *ingest.Windower
	runner   *ingest.Runner
	store    *eventstore.Store
	metrics  *observe.Metrics

	streamID   string
	rechunkers map[string]*media.Rechunker
	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	subs       []*nats.Subscription
	wg         sync.WaitGroup
	ready      bool
}

func NewService(parent context.Context, cfg config.StreamConfig, busClient *bus.Client,
	state *playback.StateMachine, source *ingest.Source, syncCh *ingest.SyncChannel,
	windower *ingest.Windower, runner *ingest.Runner, store *eventstore.Store,
	metrics *observe.Metrics) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:        cfg,
		bus:        busClient,
		state:      state,
		source:     source,
		sync:       syncCh,
		windower:   windower,
		runner:     runner,
		store:      store,
		metrics:    metrics,
		streamID:   uuid.NewString(),
		rechunkers: make(map[string]*media.Rechunker),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// StreamID identifies this pipeline instance in the event store.
func (s *Service) StreamID() string {
	return s.streamID
}

func (s *Service) Start() error {
	if err := s.store.AppendStream(s.ctx, s.streamID, s.cfg.Engine); err != nil {
		return fmt.Errorf("register stream: %w", err)
	}
	s.state.OnTransition(s.recordTransition)

	for _, sub := range []struct {
		subject string
		handler nats.MsgHandler
	}{
		{protocol.SubjectAudioInPrefix + ".>", s.handleAudio},
		{protocol.SubjectPlaybackSet, s.handleSet},
		{protocol.SubjectPlaybackReset, s.handleReset},
		{protocol.SubjectSpeechInterrupt, s.handleInterrupt},
	} {
		n, err := s.bus.Conn().Subscribe(sub.subject, sub.handler)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", sub.subject, err)
		}
		s.subs = append(s.subs, n)
	}

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		if err := s.runner.Run(s.ctx); err != nil && s.ctx.Err() == nil {
			s.bus.Logger().Error("pipeline runner stopped", slogError(err))
		}
	}()
	go s.renderLoop()
	go s.featureLoop()

	s.ready = true
	return nil
}

func (s *Service) Close() {
	s.cancel()
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return s.ready && s.bus.Healthy()
}

// handleAudio converts an inbound frame to mono float32 at the stream rate
// and feeds whole chunks into the frame source. Partial chunks stay pending
// in the session's rechunker until the next frame or a final flag.
func (s *Service) handleAudio(msg *nats.Msg) {
	var frame protocol.AudioFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		s.bus.Logger().Warn("failed to decode audio frame", slogError(err))
		return
	}

	samples := media.DecodePCM16(frame.PCM)
	if frame.Channels == 2 {
		samples = media.DownmixStereo(samples)
	}
	if frame.SampleRate > 0 && frame.SampleRate != s.cfg.SampleRate {
		samples = media.Resample(samples, frame.SampleRate, s.cfg.SampleRate)
	}

	s.mu.Lock()
	rc := s.rechunkers[frame.SessionID]
	if rc == nil {
		rc = media.NewRechunker(s.cfg.ChunkLen())
		s.rechunkers[frame.SessionID] = rc
	}
	chunks := rc.Push(samples)
	if frame.Final {
		if tail, ok := rc.Flush(); ok {
			chunks = append(chunks, tail)
		}
		delete(s.rechunkers, frame.SessionID)
	}
	s.mu.Unlock()

	for _, c := range chunks {
		s.source.Push(c)
	}
}

func (s *Service) handleSet(msg *nats.Msg) {
	var cmd protocol.PlaybackCommand
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		s.bus.Logger().Warn("failed to decode playback command", slogError(err))
		return
	}
	if err := s.state.SetState(cmd.SourceID, cmd.Reinit); err != nil {
		s.bus.Logger().Warn("playback command rejected",
			slog.Int("source_id", cmd.SourceID), slogError(err))
	}
}

func (s *Service) handleReset(msg *nats.Msg) {
	s.state.Reset()
}

// handleInterrupt drops all queued inference audio so the avatar stops
// speaking at the next chunk boundary. Playback state is untouched.
func (s *Service) handleInterrupt(msg *nats.Msg) {
	s.source.DiscardPending()
	s.mu.Lock()
	s.rechunkers = make(map[string]*media.Rechunker)
	s.mu.Unlock()
}

// renderLoop drains the output-sync channel and publishes each chunk for the
// renderer. The first leftStride chunks are warm-up left context and are
// discarded unrendered; draining starts immediately so warm-up never blocks
// on the bounded channel.
func (s *Service) renderLoop() {
	defer s.wg.Done()

	skip := s.cfg.LeftStride
	seq := 0
	for {
		select {
		case <-s.ctx.Done():
			return
		case sc := <-s.sync.C():
			if skip > 0 {
				skip--
				continue
			}
			out := protocol.RenderChunk{
				Sequence: seq,
				SourceID: sc.Type.Code(),
				PCM:      media.EncodePCM16(sc.Chunk),
			}
			if sc.Type.Kind == media.KindCustom {
				idx, err := s.state.NextImageIndex(sc.Type.CustomID)
				if err != nil {
					s.bus.Logger().Warn("image index lookup failed",
						slog.Int("source_id", sc.Type.CustomID), slogError(err))
				} else {
					out.ImageIndex = idx
				}
			}
			s.publish(protocol.SubjectRenderAudio, out)
			seq++
		}
	}
}

// featureLoop forwards emitted context windows toward feature extraction.
func (s *Service) featureLoop() {
	defer s.wg.Done()

	seq := 0
	for {
		select {
		case <-s.ctx.Done():
			return
		case fb := <-s.windower.Features():
			out := protocol.FeatureWindow{
				Sequence:  seq,
				Chunks:    make([][]byte, len(fb.Chunks)),
				CoreStart: fb.CoreStart,
				CoreEnd:   fb.CoreEnd,
			}
			for i, c := range fb.Chunks {
				out.Chunks[i] = media.EncodePCM16(c)
			}
			s.publish(protocol.SubjectFeatureWindow, out)
			seq++
		}
	}
}

// recordTransition runs on every playback state change: persist it, count it,
// broadcast it.
func (s *Service) recordTransition(from, to media.FrameType, reason string) {
	s.metrics.RecordTransition(s.ctx, from, to, reason)
	if err := s.store.AppendTransition(s.ctx, eventstore.Transition{
		StreamID:  s.streamID,
		FromState: from.Code(),
		ToState:   to.Code(),
		Reason:    reason,
	}); err != nil {
		s.bus.Logger().Warn("failed to persist transition", slogError(err))
	}
	s.publish(protocol.SubjectPlaybackState, protocol.StateChange{
		From:      from.Code(),
		To:        to.Code(),
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Service) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.bus.Logger().Warn("failed to marshal bus message", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(subject, data); err != nil {
		s.bus.Logger().Warn("failed to publish bus message",
			slog.String("subject", subject), slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
