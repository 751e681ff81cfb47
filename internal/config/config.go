package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type RelayConfig struct {
	ForwardReject bool `mapstructure:"forward_reject"`
}

type RateLimitConfig struct {
	Events   int           `mapstructure:"events"`
	Interval time.Duration `mapstructure:"interval"`
}

type Config struct {
	Mode          string          `mapstructure:"mode"`
	Port          int             `mapstructure:"port"`
	AllowedOrigin string          `mapstructure:"allowed_origin"`
	LogLevel      string          `mapstructure:"log_level"`
	ReadLimit     int64           `mapstructure:"read_limit"`
	PingPeriod    time.Duration   `mapstructure:"ping_period"`
	PongWait      time.Duration   `mapstructure:"pong_wait"`
	WriteWait     time.Duration   `mapstructure:"write_wait"`
	SendBuffer    int             `mapstructure:"send_buffer"`
	Backpressure  string          `mapstructure:"backpressure"`
	Relay         RelayConfig     `mapstructure:"relay"`
	RateLimit     RateLimitConfig `mapstructure:"rate_limit"`
	ICEServerList []ICEServer     `mapstructure:"ice_servers"`

	// ICEServers is ICEServerList validated and converted for clients.
	ICEServers []webrtc.ICEServer `mapstructure:"-"`
}

func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads fileName if it exists and layers env overrides on top of the
// defaults. PORT and CLIENT_URL keep their historical names; every other key
// can be set as CALLRELAY_<KEY>, e.g. CALLRELAY_RATE_LIMIT_EVENTS.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetDefault("mode", "release")
	v.SetDefault("port", 4000)
	v.SetDefault("allowed_origin", "*")
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 8<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("backpressure", "drop")
	v.SetDefault("relay.forward_reject", true)
	v.SetDefault("rate_limit.events", 0)
	v.SetDefault("rate_limit.interval", "1s")
	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})

	v.SetEnvPrefix("CALLRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("allowed_origin", "CLIENT_URL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("allowed_origin", cfg.AllowedOrigin).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Mode {
	case "release", "debug", "test":
	default:
		return fmt.Errorf("mode: unknown value %q", c.Mode)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port: %d out of range", c.Port)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.ReadLimit <= 0 {
		return errors.New("read_limit: must be positive")
	}
	if c.PingPeriod <= 0 || c.PongWait <= c.PingPeriod {
		return fmt.Errorf("ping_period (%s) must be positive and below pong_wait (%s)", c.PingPeriod, c.PongWait)
	}
	if c.WriteWait <= 0 {
		return errors.New("write_wait: must be positive")
	}
	if c.SendBuffer <= 0 {
		return errors.New("send_buffer: must be positive")
	}
	switch c.Backpressure {
	case "drop", "kick":
	default:
		return fmt.Errorf("backpressure: unknown policy %q", c.Backpressure)
	}
	if c.RateLimit.Events < 0 {
		return errors.New("rate_limit.events: must not be negative")
	}
	if c.RateLimit.Events > 0 && c.RateLimit.Interval <= 0 {
		return errors.New("rate_limit.interval: must be positive when rate limiting is on")
	}

	servers, err := ParseICEServers(c.ICEServerList)
	if err != nil {
		return err
	}
	c.ICEServers = servers
	return nil
}

// Level returns the configured zerolog level. validate has already checked it.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// OriginAllowed reports whether a browser Origin may talk to the relay.
// Requests without an Origin header come from non-browser clients and pass.
func (c *Config) OriginAllowed(origin string) bool {
	allowed := strings.TrimSpace(c.AllowedOrigin)
	if allowed == "" || allowed == "*" || origin == "" {
		return true
	}
	return strings.EqualFold(strings.TrimSuffix(origin, "/"), strings.TrimSuffix(allowed, "/"))
}
