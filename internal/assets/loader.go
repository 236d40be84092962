// Package assets loads custom image-sequence + audio-clip pairs from disk at
// startup. A failure loading one source is isolated: it is logged and that id
// is never registered, while every other source still loads.
package assets

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	// Registered decoders for the frame formats custom sequences ship in.
	_ "image/jpeg"
	_ "image/png"

	"github.com/go-audio/wav"

	"github.com/visagelabs/visage-core/internal/media"
	"github.com/visagelabs/visage-core/internal/observe"
	"github.com/visagelabs/visage-core/internal/playback"
)

// Spec describes one custom source to load.
type Spec struct {
	ID        int
	ImageDir  string
	AudioPath string
	Options   playback.Options
}

// Loader reads custom sources from storage, converting clip audio to the
// stream's sample rate.
type Loader struct {
	sampleRate int
	logger     *slog.Logger
	metrics    *observe.Metrics
}

// NewLoader creates a loader producing audio at sampleRate.
func NewLoader(sampleRate int, logger *slog.Logger, metrics *observe.Metrics) *Loader {
	return &Loader{
		sampleRate: sampleRate,
		logger:     logger.With(slog.String("component", "assets")),
		metrics:    metrics,
	}
}

// LoadAll loads every spec, returning the sources that loaded successfully.
// Per-source failures are logged and counted, never returned; a missing
// directory or corrupt clip must not abort the remaining sources.
func (l *Loader) LoadAll(ctx context.Context, specs []Spec) []*playback.CustomSource {
	var sources []*playback.CustomSource
	for _, spec := range specs {
		start := time.Now()
		src, err := l.load(spec)
		if err != nil {
			l.logger.Warn("custom source failed to load, skipping",
				slog.Int("id", spec.ID),
				slog.String("error", err.Error()),
			)
			l.metrics.AssetLoadFailures.Add(ctx, 1)
			continue
		}
		l.metrics.AssetLoadDuration.Record(ctx, time.Since(start).Seconds())
		l.logger.Info("custom source loaded",
			slog.Int("id", spec.ID),
			slog.Int("images", len(src.Images)),
			slog.Int("audio_samples", len(src.Audio)),
			slog.Duration("took", time.Since(start)),
		)
		sources = append(sources, src)
	}
	return sources
}

func (l *Loader) load(spec Spec) (*playback.CustomSource, error) {
	images, err := l.loadImages(spec.ImageDir)
	if err != nil {
		return nil, fmt.Errorf("images: %w", err)
	}
	audio, err := l.loadAudio(spec.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("audio: %w", err)
	}
	return &playback.CustomSource{
		ID:     spec.ID,
		Images: images,
		Audio:  audio,
		Opts:   spec.Options,
	}, nil
}

// loadImages reads every jpg/jpeg/png in dir, ordered by the integer value
// of the filename stem (1.png, 2.png, 10.png, not lexical order).
func (l *Loader) loadImages(dir string) ([]image.Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type numbered struct {
		n    int
		path string
	}
	var files []numbered
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		n, err := strconv.Atoi(stem)
		if err != nil {
			return nil, fmt.Errorf("non-numeric frame filename %q", e.Name())
		}
		files = append(files, numbered{n: n, path: filepath.Join(dir, e.Name())})
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no frame images in %s", dir)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].n < files[j].n })

	images := make([]image.Image, 0, len(files))
	for _, f := range files {
		img, err := decodeImage(f.path)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.path, err)
		}
		images = append(images, img)
	}
	return images, nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

// loadAudio decodes a WAV clip into a flat mono float32 buffer at the
// stream's sample rate, downmixing and resampling as needed.
func (l *Loader) loadAudio(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("wav %s has no format header", path)
	}

	scale := float32(int(1) << (dec.BitDepth - 1))
	samples := make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = float32(s) / scale
	}

	if buf.Format.NumChannels == 2 {
		samples = media.DownmixStereo(samples)
	} else if buf.Format.NumChannels != 1 {
		return nil, fmt.Errorf("unsupported channel count %d", buf.Format.NumChannels)
	}
	samples = media.Resample(samples, buf.Format.SampleRate, l.sampleRate)

	if len(samples) == 0 {
		return nil, fmt.Errorf("wav %s decoded to zero samples", path)
	}
	return samples, nil
}
