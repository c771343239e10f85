package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Backend   BackendConfig
	Poll      PollConfig
	DNS       DNSConfig
	RateLimit RateLimitConfig
	Render    RenderFileConfig
}

type ServerConfig struct {
	Host           string `validate:"required"`
	Port           int    `validate:"min=1,max=65535"`
	Env            string `validate:"oneof=development production test"`
	AllowedOrigins []string
}

// BackendConfig describes the scan service this process drives.
type BackendConfig struct {
	URL               string  `validate:"required,url"`
	TimeoutSeconds    int     `validate:"min=1"`
	RequestsPerSecond float64 `validate:"gt=0"`
	RequestBurst      int     `validate:"min=1"`
	HealthMaxWaitSecs int     `validate:"min=0"`
}

type PollConfig struct {
	IntervalMS           int `validate:"min=100"`
	ToolWarningThreshold int `validate:"min=0"`
}

type DNSConfig struct {
	Resolver string `validate:"required,hostname_port"`
}

type RateLimitConfig struct {
	Requests      int `validate:"min=1"`
	WindowSeconds int `validate:"min=1"`
}

// RenderFileConfig points at an optional YAML or JSON file that overrides
// the log vocabulary and keyword sets.
type RenderFileConfig struct {
	Path string
}

func (b *BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

func (b *BackendConfig) HealthMaxWait() time.Duration {
	return time.Duration(b.HealthMaxWaitSecs) * time.Second
}

func (p *PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMS) * time.Millisecond
}

func (r *RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

var validate = validator.New()

// Load reads defaults, an optional .env file and the environment, in that
// order of increasing precedence.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("SERVER_HOST", "127.0.0.1")
	v.SetDefault("SERVER_PORT", 8090)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("BACKEND_URL", "http://localhost:8080")
	v.SetDefault("BACKEND_TIMEOUT_SECONDS", 30)
	v.SetDefault("POLL_INTERVAL_MS", 2000)
	v.SetDefault("REQUESTS_PER_SECOND", 10)
	v.SetDefault("REQUEST_BURST", 5)
	v.SetDefault("HEALTH_MAX_WAIT_SECONDS", 15)
	v.SetDefault("TOOL_WARNING_THRESHOLD", 5)
	v.SetDefault("DNS_RESOLVER", "1.1.1.1:53")
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:8090,http://127.0.0.1:8090")
	v.SetDefault("RENDER_CONFIG", "")

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("SERVER_HOST"),
			Port:           v.GetInt("SERVER_PORT"),
			Env:            v.GetString("SERVER_ENV"),
			AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
		},
		Backend: BackendConfig{
			URL:               strings.TrimRight(v.GetString("BACKEND_URL"), "/"),
			TimeoutSeconds:    v.GetInt("BACKEND_TIMEOUT_SECONDS"),
			RequestsPerSecond: v.GetFloat64("REQUESTS_PER_SECOND"),
			RequestBurst:      v.GetInt("REQUEST_BURST"),
			HealthMaxWaitSecs: v.GetInt("HEALTH_MAX_WAIT_SECONDS"),
		},
		Poll: PollConfig{
			IntervalMS:           v.GetInt("POLL_INTERVAL_MS"),
			ToolWarningThreshold: v.GetInt("TOOL_WARNING_THRESHOLD"),
		},
		DNS: DNSConfig{
			Resolver: v.GetString("DNS_RESOLVER"),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Render: RenderFileConfig{
			Path: v.GetString("RENDER_CONFIG"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks field constraints after overrides have been applied.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
