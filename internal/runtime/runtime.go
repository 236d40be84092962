// Package runtime assembles the daemon: telemetry, the embedded bus, the
// event store, custom assets, the playback state machine, the ingest
// pipeline, and the stream service, plus the HTTP health surface.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/visagelabs/visage-core/internal/assets"
	"github.com/visagelabs/visage-core/internal/bus"
	"github.com/visagelabs/visage-core/internal/config"
	"github.com/visagelabs/visage-core/internal/eventstore"
	"github.com/visagelabs/visage-core/internal/ingest"
	"github.com/visagelabs/visage-core/internal/natsserver"
	"github.com/visagelabs/visage-core/internal/observe"
	"github.com/visagelabs/visage-core/internal/playback"
	"github.com/visagelabs/visage-core/internal/stream"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	svc         *stream.Service
	ready       atomic.Bool
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, meterProvider, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	metrics, err := observe.NewMetrics(meterProvider)
	if err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	defer busClient.Close()

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	defer store.Close()

	chunkLen := r.cfg.Stream.ChunkLen()
	state := playback.NewStateMachine(chunkLen, r.cfg.Stream.MaxCustomSources, r.logger)

	loader := assets.NewLoader(r.cfg.Stream.SampleRate, r.logger, metrics)
	specs := make([]assets.Spec, 0, len(r.cfg.Custom))
	for _, c := range r.cfg.Custom {
		specs = append(specs, assets.Spec{
			ID:        c.ID,
			ImageDir:  c.ImageDir,
			AudioPath: c.AudioPath,
			Options:   playback.Options{FreezeImagesOnExhaust: c.FreezeImagesOnExhaust},
		})
	}
	for _, src := range loader.LoadAll(ctx, specs) {
		if err := state.Register(src); err != nil {
			r.logger.Warn("custom source rejected", slog.String("error", err.Error()))
		}
	}

	source := ingest.NewSource(chunkLen, state, metrics)
	syncCh := ingest.NewSyncChannel(r.cfg.Stream.Output.Mode == "drop", metrics)
	windower := ingest.NewWindower(source, syncCh,
		r.cfg.Stream.LeftStride, r.cfg.Stream.RightStride, r.cfg.Stream.BatchSize, metrics)
	runner := ingest.NewRunner(windower, r.cfg.Stream.FPS, r.cfg.Stream.BatchSize, r.logger)

	r.svc = stream.NewService(ctx, r.cfg.Stream, busClient, state, source, syncCh, windower, runner, store, metrics)
	if err := r.svc.Start(); err != nil {
		return fmt.Errorf("failed to start stream service: %w", err)
	}
	defer r.svc.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricHandler != nil {
		mux.Handle("/metrics", metricHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var g errgroup.Group
	g.Go(func() error {
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("stream_id", r.svc.StreamID()),
		slog.String("engine", r.cfg.Stream.Engine),
	)

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if err := g.Wait(); err != nil {
		r.logger.Error("http server failed", slog.String("error", err.Error()))
	}

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.svc != nil && r.svc.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
