package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	PlayerSpeed = 200.0
	Sqrt2       = 1.4142135623730951

	DefaultPort      = 12345
	DefaultShards    = 4
	DefaultWorldSize = 1600
	DefaultCellSize  = 100

	// Original fixed viewport: 1600 wide, 900 tall, measured from the player
	// to each edge.
	DefaultViewHalfWidth  = 1600
	DefaultViewHalfHeight = 900
)

// WorldConfig sizes the shared grid
type WorldConfig struct {
	Width    int `yaml:"width"`
	Height   int `yaml:"height"`
	CellSize int `yaml:"cell_size"`
}

// ViewConfig is the viewport half-extent around each player
type ViewConfig struct {
	HalfWidth  float64 `yaml:"half_width"`
	HalfHeight float64 `yaml:"half_height"`
}

// TickConfig holds the periods of the shard loops
type TickConfig struct {
	PlayerView time.Duration `yaml:"player_view"`
	Objects    time.Duration `yaml:"objects"`
	Stats      time.Duration `yaml:"stats"`
}

// LimitsConfig bounds connections and inbound traffic
type LimitsConfig struct {
	MaxConnsPerIP     int `yaml:"max_conns_per_ip"`
	MaxTotalConns     int `yaml:"max_total_conns"`
	MaxMessagesPerSec int `yaml:"max_messages_per_sec"`
}

// AuthConfig enables signed join tokens when Secret is set
type AuthConfig struct {
	Secret string `yaml:"secret"`
}

// JournalConfig enables the SQLite event journal when Path is set
type JournalConfig struct {
	Path string `yaml:"path"`
}

// LogConfig configures the process logger
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the full process configuration
type Config struct {
	Port        int           `yaml:"port"`
	Shards      int           `yaml:"shards"`
	ReusePort   bool          `yaml:"reuse_port"`
	PlayerSpeed float64       `yaml:"player_speed"`
	World       WorldConfig   `yaml:"world"`
	View        ViewConfig    `yaml:"view"`
	Tick        TickConfig    `yaml:"tick"`
	Limits      LimitsConfig  `yaml:"limits"`
	Auth        AuthConfig    `yaml:"auth"`
	Journal     JournalConfig `yaml:"journal"`
	Log         LogConfig     `yaml:"log"`
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() Config {
	return Config{
		Port:        DefaultPort,
		Shards:      DefaultShards,
		ReusePort:   true,
		PlayerSpeed: PlayerSpeed,
		World: WorldConfig{
			Width:    DefaultWorldSize,
			Height:   DefaultWorldSize,
			CellSize: DefaultCellSize,
		},
		View: ViewConfig{
			HalfWidth:  DefaultViewHalfWidth,
			HalfHeight: DefaultViewHalfHeight,
		},
		Tick: TickConfig{
			PlayerView: 20 * time.Millisecond,
			Objects:    250 * time.Millisecond,
			Stats:      30 * time.Second,
		},
		Limits: LimitsConfig{
			MaxConnsPerIP:     5,
			MaxTotalConns:     1000,
			MaxMessagesPerSec: 120,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads a YAML file over the defaults. An empty path keeps the
// defaults. ARENA_AUTH_SECRET, when set, replaces auth.secret.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if secret := os.Getenv("ARENA_AUTH_SECRET"); secret != "" {
		cfg.Auth.Secret = secret
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with
func (c Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Shards <= 0 {
		errs = append(errs, fmt.Errorf("shards must be positive, got %d", c.Shards))
	}
	if c.World.Width <= 0 || c.World.Height <= 0 {
		errs = append(errs, fmt.Errorf("world size must be positive, got %dx%d", c.World.Width, c.World.Height))
	}
	if c.World.CellSize <= 0 {
		errs = append(errs, fmt.Errorf("cell size must be positive, got %d", c.World.CellSize))
	}
	if c.View.HalfWidth < 0 || c.View.HalfHeight < 0 {
		errs = append(errs, errors.New("view half-extent must not be negative"))
	}
	if c.Tick.PlayerView <= 0 || c.Tick.Objects <= 0 {
		errs = append(errs, errors.New("tick periods must be positive"))
	}
	if c.PlayerSpeed < 0 {
		errs = append(errs, errors.New("player speed must not be negative"))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address for the configured port
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
