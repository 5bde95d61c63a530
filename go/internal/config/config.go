package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/planningroom/go/internal/engine"
	"github.com/mcdev12/planningroom/go/internal/gateway"
	"github.com/mcdev12/planningroom/go/internal/natsbus"
	"github.com/mcdev12/planningroom/go/internal/realtime"
)

// Config is shared by roomd and the planningroom client. Each binary reads
// the sections it needs.
type Config struct {
	LogLevel string        `yaml:"log_level"`
	Server   ServerConfig  `yaml:"server"`
	Gateway  GatewayConfig `yaml:"gateway"`
	NATS     NATSConfig    `yaml:"nats"`
	Redis    RedisConfig   `yaml:"redis"`
	Sync     SyncConfig    `yaml:"sync"`
	Client   ClientConfig  `yaml:"client"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// Storage is "memory" or "postgres"; postgres reads the DB_* variables.
	Storage string `yaml:"storage"`
}

type GatewayConfig struct {
	PresenceSyncInterval time.Duration `yaml:"presence_sync_interval"`
	PingInterval         time.Duration `yaml:"ping_interval"`
}

// NATSConfig enables the change bus when URL is set.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SyncConfig tunes the client side synchronization.
type SyncConfig struct {
	MaxRetries        int           `yaml:"max_retries"`
	BaseBackoff       time.Duration `yaml:"base_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	CountdownSeconds  int           `yaml:"countdown_seconds"`
	ResyncInterval    time.Duration `yaml:"resync_interval"`
}

type ClientConfig struct {
	APIURL     string `yaml:"api_url"`
	GatewayURL string `yaml:"gateway_url"`
	// SessionStore is "file" or "redis".
	SessionStore string `yaml:"session_store"`
	SessionDir   string `yaml:"session_dir"`
}

func Default() Config {
	rt := realtime.DefaultConfig()
	eng := engine.DefaultConfig()
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
			Storage:        "memory",
		},
		Gateway: GatewayConfig{
			PresenceSyncInterval: 30 * time.Second,
			PingInterval:         30 * time.Second,
		},
		NATS: NATSConfig{
			SubjectPrefix: "planningroom.rooms",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Sync: SyncConfig{
			MaxRetries:        rt.MaxRetries,
			BaseBackoff:       rt.BaseBackoff,
			MaxBackoff:        rt.MaxBackoff,
			PollInterval:      rt.PollInterval,
			HeartbeatInterval: rt.HeartbeatInterval,
			CountdownSeconds:  eng.CountdownSeconds,
			ResyncInterval:    eng.ResyncInterval,
		},
		Client: ClientConfig{
			APIURL:       "http://localhost:8080",
			GatewayURL:   "ws://localhost:8080/ws/room",
			SessionStore: "file",
			SessionDir:   ".planningroom",
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	c.Server.Storage = getEnv("STORAGE", c.Server.Storage)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvAsInt("REDIS_DB", c.Redis.DB)
	c.Client.APIURL = getEnv("PLANNINGROOM_API_URL", c.Client.APIURL)
	c.Client.GatewayURL = getEnv("PLANNINGROOM_GATEWAY_URL", c.Client.GatewayURL)
	c.Client.SessionStore = getEnv("PLANNINGROOM_SESSION_STORE", c.Client.SessionStore)
	c.Sync.PollInterval = getEnvAsDuration("SYNC_POLL_INTERVAL", c.Sync.PollInterval)
}

// Validate checks values the binaries cannot run with.
func (c *Config) Validate() error {
	switch c.Server.Storage {
	case "memory", "postgres":
	default:
		return fmt.Errorf("invalid storage %q: want memory or postgres", c.Server.Storage)
	}
	switch c.Client.SessionStore {
	case "file", "redis":
	default:
		return fmt.Errorf("invalid session_store %q: want file or redis", c.Client.SessionStore)
	}
	if c.Sync.MaxRetries < 0 {
		return fmt.Errorf("invalid max_retries %d", c.Sync.MaxRetries)
	}
	if c.Sync.BaseBackoff <= 0 || c.Sync.MaxBackoff < c.Sync.BaseBackoff {
		return fmt.Errorf("invalid backoff: base %s, max %s", c.Sync.BaseBackoff, c.Sync.MaxBackoff)
	}
	if c.Sync.PollInterval <= 0 {
		return fmt.Errorf("invalid poll_interval %s", c.Sync.PollInterval)
	}
	if c.Sync.CountdownSeconds < 1 {
		return fmt.Errorf("invalid countdown_seconds %d", c.Sync.CountdownSeconds)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// Realtime returns the subscription settings.
func (c *Config) Realtime() realtime.Config {
	rt := realtime.DefaultConfig()
	rt.MaxRetries = c.Sync.MaxRetries
	rt.BaseBackoff = c.Sync.BaseBackoff
	rt.MaxBackoff = c.Sync.MaxBackoff
	rt.PollInterval = c.Sync.PollInterval
	rt.HeartbeatInterval = c.Sync.HeartbeatInterval
	return rt
}

// Engine returns the engine settings.
func (c *Config) Engine() engine.Config {
	e := engine.DefaultConfig()
	e.CountdownSeconds = c.Sync.CountdownSeconds
	e.ResyncInterval = c.Sync.ResyncInterval
	return e
}

// Hub returns the gateway connection settings.
func (c *Config) Hub() gateway.ConnectionConfig {
	g := gateway.DefaultConnectionConfig()
	g.PresenceSyncInterval = c.Gateway.PresenceSyncInterval
	if c.Gateway.PingInterval > 0 {
		g.PingInterval = c.Gateway.PingInterval
	}
	return g
}

// Bus returns the NATS settings, or false when no bus is configured.
func (c *Config) Bus() (natsbus.Config, bool) {
	if c.NATS.URL == "" {
		return natsbus.Config{}, false
	}
	b := natsbus.DefaultConfig()
	b.URL = c.NATS.URL
	if c.NATS.SubjectPrefix != "" {
		b.SubjectPrefix = c.NATS.SubjectPrefix
	}
	return b, true
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
