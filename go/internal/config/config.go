// Package config loads service settings from an optional YAML file, then a
// .env file, then the process environment. Later sources win.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/NicolaBuomp/fantabid/go/internal/auction"
	"github.com/NicolaBuomp/fantabid/go/internal/auction/listener"
	"github.com/NicolaBuomp/fantabid/go/internal/auction/stream"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Auction  AuctionConfig  `yaml:"auction"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	NATS     NATSConfig     `yaml:"nats"`
	Listener ListenerConfig `yaml:"listener"`
	Import   ImportConfig   `yaml:"import"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"CORS_ORIGINS" envSeparator:","`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

func (c ServerConfig) Addr() string {
	return net.JoinHostPort("", strconv.Itoa(c.Port))
}

// DatabaseConfig holds Postgres connection settings. URL, when set, wins
// over the individual fields.
type DatabaseConfig struct {
	URL      string `yaml:"url" env:"DATABASE_URL"`
	Host     string `yaml:"host" env:"DB_HOST"`
	Port     int    `yaml:"port" env:"DB_PORT"`
	User     string `yaml:"user" env:"DB_USER"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
	Name     string `yaml:"name" env:"DB_NAME"`
	SSLMode  string `yaml:"sslmode" env:"DB_SSLMODE"`
	MaxConns int32  `yaml:"max_conns" env:"DB_MAX_CONNS"`
}

// DSN returns the Postgres connection URL.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" env:"SUPABASE_JWT_SECRET"`
	ClockSkew time.Duration `yaml:"clock_skew" env:"JWT_CLOCK_SKEW"`
}

type AuctionConfig struct {
	TimerTick          time.Duration `yaml:"timer_tick" env:"AUCTION_TIMER_TICK"`
	PulseCheckInterval time.Duration `yaml:"pulse_check_interval" env:"AUCTION_PULSE_CHECK_INTERVAL"`
	PulseTimeout       time.Duration `yaml:"pulse_timeout" env:"AUCTION_PULSE_TIMEOUT"`
	BidSpacing         time.Duration `yaml:"bid_spacing" env:"AUCTION_BID_SPACING"`
	Workers            int           `yaml:"workers" env:"AUCTION_WORKERS"`
}

// Engine converts the section to engine timings.
func (c AuctionConfig) Engine() auction.Config {
	return auction.Config{
		TimerTick:          c.TimerTick,
		PulseCheckInterval: c.PulseCheckInterval,
		PulseTimeout:       c.PulseTimeout,
		BidSpacing:         c.BidSpacing,
		Workers:            c.Workers,
	}
}

type GatewayConfig struct {
	MessageRate    float64 `yaml:"message_rate" env:"WS_MESSAGE_RATE"`
	MessageBurst   int     `yaml:"message_burst" env:"WS_MESSAGE_BURST"`
	MaxMessageSize int64   `yaml:"max_message_size" env:"WS_MAX_MESSAGE_SIZE"`
	SendBufferSize int     `yaml:"send_buffer_size" env:"WS_SEND_BUFFER_SIZE"`
}

type NATSConfig struct {
	Enabled       bool   `yaml:"enabled" env:"NATS_ENABLED"`
	URL           string `yaml:"url" env:"NATS_URL"`
	StreamName    string `yaml:"stream_name" env:"NATS_STREAM"`
	SubjectPrefix string `yaml:"subject_prefix" env:"NATS_SUBJECT_PREFIX"`
}

// JetStream merges the section into the publisher defaults.
func (c NATSConfig) JetStream() stream.JetStreamConfig {
	cfg := stream.DefaultJetStreamConfig()
	if c.URL != "" {
		cfg.URL = c.URL
	}
	if c.StreamName != "" {
		cfg.StreamName = c.StreamName
	}
	if c.SubjectPrefix != "" {
		cfg.SubjectPrefix = c.SubjectPrefix
	}
	return cfg
}

type ListenerConfig struct {
	Enabled          bool          `yaml:"enabled" env:"MEMBERS_LISTENER_ENABLED"`
	Channel          string        `yaml:"channel" env:"MEMBERS_NOTIFY_CHANNEL"`
	FallbackInterval time.Duration `yaml:"fallback_interval" env:"MEMBERS_RESYNC_INTERVAL"`
}

// Listener builds the membership listener settings for the given DSN.
func (c ListenerConfig) Listener(dsn string) listener.Config {
	cfg := listener.DefaultConfig()
	cfg.DatabaseURL = dsn
	if c.Channel != "" {
		cfg.NotifyChannel = c.Channel
	}
	if c.FallbackInterval > 0 {
		cfg.FallbackInterval = c.FallbackInterval
	}
	return cfg
}

type ImportConfig struct {
	PreviewTTL time.Duration `yaml:"preview_ttl" env:"IMPORT_PREVIEW_TTL"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"LOG_PRETTY"`
}

// ZerologLevel parses Level, falling back to info.
func (c LogConfig) ZerologLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Level)
	if err != nil || c.Level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	engine := auction.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Port:            3000,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			Name:     "fantabid",
			SSLMode:  "disable",
			MaxConns: 10,
		},
		Auth: AuthConfig{ClockSkew: 30 * time.Second},
		Auction: AuctionConfig{
			TimerTick:          engine.TimerTick,
			PulseCheckInterval: engine.PulseCheckInterval,
			PulseTimeout:       engine.PulseTimeout,
			BidSpacing:         engine.BidSpacing,
			Workers:            engine.Workers,
		},
		Gateway: GatewayConfig{
			MessageRate:    20,
			MessageBurst:   40,
			MaxMessageSize: 4096,
			SendBufferSize: 256,
		},
		NATS: NATSConfig{
			URL:           stream.DefaultJetStreamConfig().URL,
			StreamName:    "AUCTION_EVENTS",
			SubjectPrefix: "auction.events",
		},
		Listener: ListenerConfig{
			Enabled:          true,
			Channel:          "league_members_changed",
			FallbackInterval: time.Minute,
		},
		Import: ImportConfig{PreviewTTL: 10 * time.Minute},
		Log:    LogConfig{Level: "info"},
	}
}

var ErrMissingJWTSecret = errors.New("SUPABASE_JWT_SECRET is required")

// Load layers Default, the YAML file at path (skipped when path is empty),
// a .env file in the working directory and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate reports settings the service cannot start without.
func (c Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Database.URL == "" && c.Database.Host == "" {
		return errors.New("database host or DATABASE_URL is required")
	}
	return nil
}
