package config

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Stream      StreamConfig     `yaml:"stream"`
	Custom      []CustomSpec     `yaml:"custom"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxStreams    int    `yaml:"max_streams"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// StreamConfig is the audio pipeline geometry. Chunk length is derived:
// sample_rate / fps samples per chunk.
type StreamConfig struct {
	Engine           string       `yaml:"engine"`
	FPS              int          `yaml:"fps"`
	SampleRate       int          `yaml:"sample_rate"`
	LeftStride       int          `yaml:"left_stride"`
	RightStride      int          `yaml:"right_stride"`
	BatchSize        int          `yaml:"batch_size"`
	MaxCustomSources int          `yaml:"max_custom_sources"`
	Output           OutputConfig `yaml:"output"`
}

type OutputConfig struct {
	Mode string `yaml:"mode"` // block, drop
}

// CustomSpec configures one pre-rendered clip source loaded at startup.
// IDs 0 and 1 are reserved for inference and silence.
type CustomSpec struct {
	ID                    int    `yaml:"id"`
	ImageDir              string `yaml:"image_dir"`
	AudioPath             string `yaml:"audio_path"`
	FreezeImagesOnExhaust bool   `yaml:"freeze_images_on_exhaust"`
}

func Default() Config {
	return Config{
		RuntimeName: "visage-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/visage-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxStreams:    10000,
		},
		Stream: StreamConfig{
			Engine:           "musetalk",
			FPS:              50,
			SampleRate:       16000,
			LeftStride:       2,
			RightStride:      2,
			BatchSize:        16,
			MaxCustomSources: 16,
			Output: OutputConfig{
				Mode: "block",
			},
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := ioutil.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "VISAGE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VISAGE_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VISAGE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VISAGE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "VISAGE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VISAGE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VISAGE_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "VISAGE_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "VISAGE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VISAGE_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "VISAGE_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "VISAGE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VISAGE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VISAGE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VISAGE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VISAGE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VISAGE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "VISAGE_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "VISAGE_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "VISAGE_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxStreams, "VISAGE_EVENT_STORE_MAX_STREAMS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "VISAGE_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Stream.Engine, "VISAGE_STREAM_ENGINE")
	overrideInt(&cfg.Stream.FPS, "VISAGE_STREAM_FPS")
	overrideInt(&cfg.Stream.SampleRate, "VISAGE_STREAM_SAMPLE_RATE")
	overrideInt(&cfg.Stream.LeftStride, "VISAGE_STREAM_LEFT_STRIDE")
	overrideInt(&cfg.Stream.RightStride, "VISAGE_STREAM_RIGHT_STRIDE")
	overrideInt(&cfg.Stream.BatchSize, "VISAGE_STREAM_BATCH_SIZE")
	overrideInt(&cfg.Stream.MaxCustomSources, "VISAGE_STREAM_MAX_CUSTOM_SOURCES")
	overrideString(&cfg.Stream.Output.Mode, "VISAGE_STREAM_OUTPUT_MODE")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	switch cfg.Stream.Engine {
	case "ernerf", "musetalk", "wav2lip":
	default:
		return errors.New("stream.engine must be one of ernerf|musetalk|wav2lip")
	}
	if cfg.Stream.FPS <= 0 {
		return errors.New("stream.fps must be positive")
	}
	if cfg.Stream.SampleRate <= 0 {
		return errors.New("stream.sample_rate must be positive")
	}
	if cfg.Stream.SampleRate%cfg.Stream.FPS != 0 {
		return errors.New("stream.sample_rate must be divisible by stream.fps")
	}
	if cfg.Stream.LeftStride < 0 || cfg.Stream.RightStride < 0 {
		return errors.New("stream strides must be >= 0")
	}
	if cfg.Stream.BatchSize <= 0 {
		return errors.New("stream.batch_size must be positive")
	}
	if cfg.Stream.MaxCustomSources < 0 {
		return errors.New("stream.max_custom_sources must be >= 0")
	}
	switch cfg.Stream.Output.Mode {
	case "block", "drop":
	default:
		return errors.New("stream.output.mode must be one of block|drop")
	}
	seen := make(map[int]bool)
	for _, c := range cfg.Custom {
		if c.ID < 2 {
			return fmt.Errorf("custom source id %d is reserved (ids start at 2)", c.ID)
		}
		if seen[c.ID] {
			return fmt.Errorf("custom source id %d declared twice", c.ID)
		}
		seen[c.ID] = true
		if c.ImageDir == "" {
			return fmt.Errorf("custom source %d: image_dir must not be empty", c.ID)
		}
		if c.AudioPath == "" {
			return fmt.Errorf("custom source %d: audio_path must not be empty", c.ID)
		}
	}
	return nil
}

// ChunkLen returns the samples per chunk implied by the stream geometry.
func (s StreamConfig) ChunkLen() int {
	return s.SampleRate / s.FPS
}
