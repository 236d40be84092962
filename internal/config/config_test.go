package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Stream.ChunkLen() != 320 {
		t.Fatalf("expected 320 samples per chunk, got %d", cfg.Stream.ChunkLen())
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VISAGE_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("VISAGE_BUS_USERNAME", "alice")
	t.Setenv("VISAGE_BUS_PASSWORD", "secret")
	t.Setenv("VISAGE_BUS_TLS_INSECURE", "true")
	t.Setenv("VISAGE_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("VISAGE_STREAM_ENGINE", "wav2lip")
	t.Setenv("VISAGE_STREAM_FPS", "25")
	t.Setenv("VISAGE_STREAM_SAMPLE_RATE", "16000")
	t.Setenv("VISAGE_STREAM_BATCH_SIZE", "8")
	t.Setenv("VISAGE_STREAM_OUTPUT_MODE", "drop")
	t.Setenv("VISAGE_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("VISAGE_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("VISAGE_EVENT_STORE_RETENTION_DAYS", "7")
	t.Setenv("VISAGE_EVENT_STORE_MAX_STREAMS", "123")
	t.Setenv("VISAGE_EVENT_STORE_VACUUM_ON_START", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.Stream.Engine != "wav2lip" {
		t.Fatalf("expected engine override, got %q", cfg.Stream.Engine)
	}
	if cfg.Stream.FPS != 25 || cfg.Stream.ChunkLen() != 640 {
		t.Fatalf("expected fps override, got fps=%d chunk=%d", cfg.Stream.FPS, cfg.Stream.ChunkLen())
	}
	if cfg.Stream.BatchSize != 8 {
		t.Fatalf("expected batch size override, got %d", cfg.Stream.BatchSize)
	}
	if cfg.Stream.Output.Mode != "drop" {
		t.Fatalf("expected output mode override, got %q", cfg.Stream.Output.Mode)
	}
	if cfg.EventStore.Path != "./tmp.db" {
		t.Fatalf("expected event store path override")
	}
	if cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected event store retention mode override")
	}
	if cfg.EventStore.RetentionDays != 7 {
		t.Fatalf("expected event store retention days override")
	}
	if cfg.EventStore.MaxStreams != 123 {
		t.Fatalf("expected event store max streams override")
	}
	if !cfg.EventStore.VacuumOnStart {
		t.Fatalf("expected event store vacuum flag override")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "visage.yaml")
	body := `
stream:
  engine: ernerf
  fps: 50
  sample_rate: 16000
  left_stride: 3
  right_stride: 3
  batch_size: 4
custom:
  - id: 2
    image_dir: ./clips/wave/images
    audio_path: ./clips/wave/audio.wav
    freeze_images_on_exhaust: true
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Stream.Engine != "ernerf" || cfg.Stream.LeftStride != 3 {
		t.Fatalf("expected file values, got %+v", cfg.Stream)
	}
	if len(cfg.Custom) != 1 || cfg.Custom[0].ID != 2 || !cfg.Custom[0].FreezeImagesOnExhaust {
		t.Fatalf("expected custom source, got %+v", cfg.Custom)
	}
}

func TestValidateRejectsReservedCustomID(t *testing.T) {
	cfg := Default()
	cfg.Custom = []CustomSpec{{ID: 1, ImageDir: "x", AudioPath: "y"}}
	if err := validate(cfg); err == nil {
		t.Fatal("expected error for reserved custom id")
	}
}

func TestValidateRejectsBadGeometry(t *testing.T) {
	cfg := Default()
	cfg.Stream.SampleRate = 16001
	if err := validate(cfg); err == nil {
		t.Fatal("expected error for indivisible sample rate")
	}
}
