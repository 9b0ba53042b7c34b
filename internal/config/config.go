package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full server configuration, loaded from YAML with
// LASTHAND_-prefixed environment overrides.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Game     GameConfig     `mapstructure:"game"`
	Wallet   WalletConfig   `mapstructure:"wallet"`
	Replay   ReplayConfig   `mapstructure:"replay"`
}

// ServerConfig holds transport settings.
type ServerConfig struct {
	WebSocket       WebSocketConfig `mapstructure:"websocket"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
}

// WebSocketConfig holds the websocket listener settings.
type WebSocketConfig struct {
	Address string `mapstructure:"address"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig holds the postgres connection settings. An empty DSN
// disables persistence; the engine runs with no result sink.
type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// GameConfig fixes the default match parameters.
type GameConfig struct {
	MinPlayers     int           `mapstructure:"min_players"`
	MaxPlayers     int           `mapstructure:"max_players"`
	TotalRounds    int           `mapstructure:"total_rounds"`
	RoundTimeLimit time.Duration `mapstructure:"round_time_limit"`
	MaxHealth      int           `mapstructure:"max_health"`
	HandSize       int           `mapstructure:"hand_size"`
}

// WalletConfig controls session wallet lifetimes.
type WalletConfig struct {
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// ReplayConfig controls on-disk match archives. An empty directory
// disables archiving.
type ReplayConfig struct {
	Dir string `mapstructure:"dir"`
}

// Load reads configuration from the given file path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("LASTHAND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file falls back to defaults plus env overrides.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.websocket.address", ":8089")
	v.SetDefault("server.websocket.path", "/ws")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)

	v.SetDefault("game.min_players", 4)
	v.SetDefault("game.max_players", 8)
	v.SetDefault("game.total_rounds", 5)
	v.SetDefault("game.round_time_limit", 15*time.Second)
	v.SetDefault("game.max_health", 100)
	v.SetDefault("game.hand_size", 5)

	v.SetDefault("wallet.session_ttl", time.Hour)
	v.SetDefault("wallet.sweep_interval", 30*time.Second)

	v.SetDefault("replay.dir", "")
}

func (c *Config) validate() error {
	if c.Game.MinPlayers < 2 {
		return fmt.Errorf("game.min_players must be at least 2, got %d", c.Game.MinPlayers)
	}
	if c.Game.MaxPlayers < c.Game.MinPlayers {
		return fmt.Errorf("game.max_players (%d) below game.min_players (%d)",
			c.Game.MaxPlayers, c.Game.MinPlayers)
	}
	if c.Game.TotalRounds < 1 {
		return fmt.Errorf("game.total_rounds must be positive, got %d", c.Game.TotalRounds)
	}
	if c.Game.RoundTimeLimit <= 0 {
		return fmt.Errorf("game.round_time_limit must be positive")
	}
	if c.Game.HandSize < 1 {
		return fmt.Errorf("game.hand_size must be positive, got %d", c.Game.HandSize)
	}
	return nil
}
