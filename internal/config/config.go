// Package config loads firewatch-server settings from a YAML file, a .env
// file and FIREWATCH_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvPrefix      = "FIREWATCH"
	DefaultFile    = "firewatch-server"
	BackendFFmpeg  = "ffmpeg"
	BackendGoCV    = "gocv"
	minSecretBytes = 32
)

type Config struct {
	Env       string          `mapstructure:"env"` // dev | prod
	HTTP      HTTPConfig      `mapstructure:"http"`
	Log       LogConfig       `mapstructure:"log"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Session   SessionConfig   `mapstructure:"session"`
	Source    SourceConfig    `mapstructure:"source"`
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Encoder   EncoderConfig   `mapstructure:"encoder"`
	Detect    DetectConfig    `mapstructure:"detect"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Service   ServiceConfig   `mapstructure:"service"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	AllowOrigins    []string      `mapstructure:"allow_origins"` // CORS, dev only
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug | info | warn | error
	Format string `mapstructure:"format"` // console | json
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	SessionDB int    `mapstructure:"session_db"`
}

type SessionConfig struct {
	Secret string        `mapstructure:"secret"`
	MaxAge time.Duration `mapstructure:"max_age"`
}

type SourceConfig struct {
	Backend       string        `mapstructure:"backend"` // ffmpeg | gocv
	FFmpeg        string        `mapstructure:"ffmpeg"`  // binary path
	Width         int           `mapstructure:"width"`
	Height        int           `mapstructure:"height"`
	FPS           int           `mapstructure:"fps"`
	RTSPTransport string        `mapstructure:"rtsp_transport"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	SocketTimeout time.Duration `mapstructure:"socket_timeout"`
	StopGrace     time.Duration `mapstructure:"stop_grace"`
}

type ReconnectConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay"`
}

type StreamConfig struct {
	IdleInterval      time.Duration `mapstructure:"idle_interval"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	AnnotateTimeout   time.Duration `mapstructure:"annotate_timeout"`
	MaxEncodeFailures int           `mapstructure:"max_encode_failures"`
	MaxConcurrent     int           `mapstructure:"max_concurrent"`
	SnapshotTimeout   time.Duration `mapstructure:"snapshot_timeout"`
}

type EncoderConfig struct {
	JPEGQuality int `mapstructure:"jpeg_quality"`
}

type DetectConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	APIKey        string        `mapstructure:"api_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MinConfidence float64       `mapstructure:"min_confidence"`
	Labels        []string      `mapstructure:"labels"`
	Normalized    bool          `mapstructure:"normalized"` // boxes in 0..1 instead of pixels
	UploadQuality int           `mapstructure:"upload_quality"`
}

type DirectoryConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	DisplayName string `mapstructure:"display_name"`
	Description string `mapstructure:"description"`
}

// IsDev reports whether the server runs in development mode.
func (c *Config) IsDev() bool { return c.Env == "dev" }

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "prod")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.trusted_proxies", []string{"127.0.0.1"})
	v.SetDefault("http.allow_origins", []string{"http://localhost:5173", "http://localhost:3000"})
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.max_body_bytes", 1<<20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.session_db", 1)

	v.SetDefault("session.secret", "")
	v.SetDefault("session.max_age", 8*time.Hour)

	v.SetDefault("source.backend", BackendFFmpeg)
	v.SetDefault("source.ffmpeg", "ffmpeg")
	v.SetDefault("source.width", 1280)
	v.SetDefault("source.height", 720)
	v.SetDefault("source.fps", 10)
	v.SetDefault("source.rtsp_transport", "tcp")
	v.SetDefault("source.read_timeout", 10*time.Second)
	v.SetDefault("source.socket_timeout", 5*time.Second)
	v.SetDefault("source.stop_grace", 2*time.Second)

	v.SetDefault("reconnect.max_attempts", 5)
	v.SetDefault("reconnect.delay", 5*time.Second)

	v.SetDefault("stream.idle_interval", 100*time.Millisecond)
	v.SetDefault("stream.poll_interval", 10*time.Millisecond)
	v.SetDefault("stream.annotate_timeout", 500*time.Millisecond)
	v.SetDefault("stream.max_encode_failures", 50)
	v.SetDefault("stream.max_concurrent", 0)
	v.SetDefault("stream.snapshot_timeout", 10*time.Second)

	v.SetDefault("encoder.jpeg_quality", 80)

	v.SetDefault("detect.enabled", false)
	v.SetDefault("detect.url", "")
	v.SetDefault("detect.api_key", "")
	v.SetDefault("detect.timeout", 400*time.Millisecond)
	v.SetDefault("detect.min_confidence", 0.4)
	v.SetDefault("detect.labels", []string{"fire", "smoke"})
	v.SetDefault("detect.normalized", false)
	v.SetDefault("detect.upload_quality", 75)

	v.SetDefault("directory.cache_ttl", 2*time.Second)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("service.name", "firewatch-server")
	v.SetDefault("service.display_name", "Firewatch camera server")
	v.SetDefault("service.description", "Re-streams site cameras as annotated MJPEG.")
}

// Load reads the configuration. An empty path searches ./firewatch-server.yaml
// and /etc/firewatch-server/; a missing file is then not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultFile)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/firewatch-server")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and production safety.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf("config: "+format, args...)) }

	if c.Env != "dev" && c.Env != "prod" {
		add("env must be dev or prod, got %q", c.Env)
	}
	if c.HTTP.Addr == "" {
		add("http.addr is required")
	}
	if c.Redis.Addr == "" {
		add("redis.addr is required")
	}
	if len(c.Session.Secret) < minSecretBytes {
		add("session.secret must be at least %d bytes (FIREWATCH_SESSION_SECRET)", minSecretBytes)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		add("log.format must be console or json, got %q", c.Log.Format)
	}
	switch c.Source.Backend {
	case BackendFFmpeg, BackendGoCV:
	default:
		add("source.backend must be %s or %s, got %q", BackendFFmpeg, BackendGoCV, c.Source.Backend)
	}
	if c.Source.Width <= 0 || c.Source.Height <= 0 {
		add("source.width and source.height must be positive")
	}
	if c.Source.ReadTimeout <= 0 {
		add("source.read_timeout must be positive")
	}
	if c.Reconnect.MaxAttempts < 0 {
		add("reconnect.max_attempts must not be negative")
	}
	if c.Reconnect.Delay < 0 {
		add("reconnect.delay must not be negative")
	}
	if c.Stream.IdleInterval <= 0 {
		add("stream.idle_interval must be positive")
	}
	if c.Stream.MaxEncodeFailures < 0 || c.Stream.MaxConcurrent < 0 {
		add("stream.max_encode_failures and stream.max_concurrent must not be negative")
	}
	if q := c.Encoder.JPEGQuality; q < 1 || q > 100 {
		add("encoder.jpeg_quality must be in 1..100, got %d", q)
	}
	if c.Detect.Enabled {
		if c.Detect.URL == "" {
			add("detect.url is required when detect.enabled is set")
		}
		if c.Detect.MinConfidence < 0 || c.Detect.MinConfidence > 1 {
			add("detect.min_confidence must be in 0..1")
		}
	}
	return errors.Join(errs...)
}
