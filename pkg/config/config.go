package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"avatarcast/pkg/circuitbreaker"
	"avatarcast/pkg/retry"

	"gopkg.in/yaml.v2"
)

type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		StaticDir       string        `yaml:"static_dir"`
	} `yaml:"server"`

	Signal struct {
		PingInterval     time.Duration `yaml:"ping_interval"`
		PongTimeout      time.Duration `yaml:"pong_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		SendTimeout      time.Duration `yaml:"send_timeout"`
		SubmissionBuffer int           `yaml:"submission_buffer"`
		MaxMessageBytes  int64         `yaml:"max_message_bytes"`
	} `yaml:"signal"`

	WebRTC struct {
		ICEServers []ICEServer `yaml:"ice_servers"`
		PortRange  struct {
			Min uint16 `yaml:"min"`
			Max uint16 `yaml:"max"`
		} `yaml:"port_range"`
		DefaultFPS       int           `yaml:"default_fps"`
		QueueSeconds     int           `yaml:"queue_seconds"`
		AudioEnabled     bool          `yaml:"audio_enabled"`
		SampleRate       int           `yaml:"sample_rate"`
		FFmpegPath       string        `yaml:"ffmpeg_path"`
		VideoBitrateKbps int           `yaml:"video_bitrate_kbps"`
		GatherTimeout    time.Duration `yaml:"gather_timeout"`
	} `yaml:"webrtc"`

	Inference struct {
		Endpoint       string        `yaml:"endpoint"`
		BundleDir      string        `yaml:"bundle_dir"`
		BatchSize      int           `yaml:"batch_size"`
		AvatarCacheCap int           `yaml:"avatar_cache_cap"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
		PushTimeout    time.Duration `yaml:"push_timeout"`

		Breaker circuitbreaker.Config `yaml:"breaker"`
		Retry   retry.Config          `yaml:"retry"`
	} `yaml:"inference"`

	Ingestion struct {
		YouTube struct {
			APIKey       string        `yaml:"api_key"`
			GracePeriod  time.Duration `yaml:"grace_period"`
			MinPollDelay time.Duration `yaml:"min_poll_delay"`
		} `yaml:"youtube"`
		TikTok struct {
			RelayURL    string        `yaml:"relay_url"`
			GracePeriod time.Duration `yaml:"grace_period"`
		} `yaml:"tiktok"`
		BufferSize  int           `yaml:"buffer_size"`
		JoinTimeout time.Duration `yaml:"join_timeout"`
	} `yaml:"ingestion"`

	Persistence struct {
		Retry retry.Config `yaml:"retry"`
	} `yaml:"persistence"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Signal
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= c.Signal.PingInterval {
		return fmt.Errorf("signal.pong_timeout must be > signal.ping_interval")
	}
	if c.Signal.WriteTimeout <= 0 {
		return fmt.Errorf("signal.write_timeout must be > 0")
	}
	if c.Signal.SendTimeout <= 0 || c.Signal.SendTimeout > c.Signal.WriteTimeout {
		return fmt.Errorf("signal.send_timeout must be > 0 and <= signal.write_timeout")
	}
	if c.Signal.SubmissionBuffer <= 0 {
		return fmt.Errorf("signal.submission_buffer must be > 0")
	}

	// WebRTC
	if c.WebRTC.PortRange.Min > 0 || c.WebRTC.PortRange.Max > 0 {
		if c.WebRTC.PortRange.Min == 0 || c.WebRTC.PortRange.Max == 0 {
			return fmt.Errorf("webrtc.port_range.min and max must both be set when one is set")
		}
		if c.WebRTC.PortRange.Min >= c.WebRTC.PortRange.Max {
			return fmt.Errorf("webrtc.port_range.min must be < max")
		}
	}
	if c.WebRTC.DefaultFPS < 1 || c.WebRTC.DefaultFPS > 60 {
		return fmt.Errorf("webrtc.default_fps must be between 1 and 60")
	}
	if c.WebRTC.QueueSeconds < 3 || c.WebRTC.QueueSeconds > 5 {
		return fmt.Errorf("webrtc.queue_seconds must be between 3 and 5")
	}
	if c.WebRTC.AudioEnabled && c.WebRTC.SampleRate != 8000 {
		return fmt.Errorf("webrtc.sample_rate must be 8000 when audio is enabled (PCMU)")
	}
	if c.WebRTC.GatherTimeout <= 0 {
		return fmt.Errorf("webrtc.gather_timeout must be > 0")
	}

	// Inference
	if c.Inference.BatchSize <= 0 {
		return fmt.Errorf("inference.batch_size must be > 0")
	}
	if c.Inference.AvatarCacheCap <= 0 {
		return fmt.Errorf("inference.avatar_cache_cap must be > 0")
	}
	if c.Inference.RequestTimeout <= 0 {
		return fmt.Errorf("inference.request_timeout must be > 0")
	}

	// Ingestion
	if c.Ingestion.BufferSize <= 0 {
		return fmt.Errorf("ingestion.buffer_size must be > 0")
	}
	if c.Ingestion.JoinTimeout <= 0 {
		return fmt.Errorf("ingestion.join_timeout must be > 0")
	}
	if c.Ingestion.YouTube.GracePeriod <= 0 || c.Ingestion.TikTok.GracePeriod <= 0 {
		return fmt.Errorf("ingestion grace periods must be > 0")
	}

	// Persistence
	if c.Persistence.Retry.MaxAttempts < 0 {
		return fmt.Errorf("persistence.retry.max_attempts must be >= 0")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Tracing
	if c.Tracing.Enabled && (c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1) {
		return fmt.Errorf("tracing.sample_rate must be in (0, 1] when tracing is enabled")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 15 * time.Second
	cfg.Server.StaticDir = "outputs"

	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.WriteTimeout = 10 * time.Second
	cfg.Signal.SendTimeout = 2 * time.Second
	cfg.Signal.SubmissionBuffer = 256
	cfg.Signal.MaxMessageBytes = 64 * 1024

	cfg.WebRTC.ICEServers = []ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	cfg.WebRTC.DefaultFPS = 25
	cfg.WebRTC.QueueSeconds = 5
	cfg.WebRTC.AudioEnabled = false
	cfg.WebRTC.SampleRate = 8000
	cfg.WebRTC.FFmpegPath = "ffmpeg"
	cfg.WebRTC.VideoBitrateKbps = 1500
	cfg.WebRTC.GatherTimeout = 10 * time.Second

	cfg.Inference.Endpoint = "http://127.0.0.1:8500"
	cfg.Inference.BundleDir = "results/avatars"
	cfg.Inference.BatchSize = 4
	cfg.Inference.AvatarCacheCap = 4
	cfg.Inference.RequestTimeout = 10 * time.Minute
	cfg.Inference.PushTimeout = 100 * time.Millisecond
	cfg.Inference.Breaker = circuitbreaker.DefaultConfig()
	cfg.Inference.Retry = retry.DefaultConfig()
	cfg.Inference.Retry.MaxAttempts = 2

	cfg.Ingestion.YouTube.GracePeriod = 2 * time.Second
	cfg.Ingestion.YouTube.MinPollDelay = time.Second
	cfg.Ingestion.TikTok.RelayURL = "ws://127.0.0.1:8765/webcast"
	cfg.Ingestion.TikTok.GracePeriod = 10 * time.Second
	cfg.Ingestion.BufferSize = 500
	cfg.Ingestion.JoinTimeout = 5 * time.Second

	cfg.Persistence.Retry = retry.DefaultConfig()

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("AVATARCAST_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("AVATARCAST_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if key := os.Getenv("AVATARCAST_YOUTUBE_API_KEY"); key != "" {
		c.Ingestion.YouTube.APIKey = key
	}
	if relay := os.Getenv("AVATARCAST_TIKTOK_RELAY_URL"); relay != "" {
		c.Ingestion.TikTok.RelayURL = relay
	}
	if endpoint := os.Getenv("AVATARCAST_INFERENCE_ENDPOINT"); endpoint != "" {
		c.Inference.Endpoint = endpoint
	}
	if addr := os.Getenv("AVATARCAST_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
	if fps := os.Getenv("AVATARCAST_DEFAULT_FPS"); fps != "" {
		if v, err := strconv.Atoi(fps); err == nil {
			c.WebRTC.DefaultFPS = v
		}
	}
}

// QueueCapacity returns the per-session video queue size for the given rate.
func (c *Config) QueueCapacity(fps int) int {
	if fps <= 0 {
		fps = c.WebRTC.DefaultFPS
	}
	return fps * c.WebRTC.QueueSeconds
}
