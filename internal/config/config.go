// Package config manages sync engine configuration via viper.
//
// Priority order: command-line flags > config file > environment
// variables > defaults. The config file is sudokodus.yaml, searched in
// the current directory and ~/.sudokodus/. Environment variables use
// the SUDOKODUS_ prefix with underscores for dots, e.g.
// SUDOKODUS_REMOTE_URL.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Keys understood by the engine.
const (
	KeyDBPath                   = "db_path"
	KeySyncInterval             = "sync_interval"
	KeyMaxRetryAttempts         = "max_retry_attempts"
	KeyRetryDelay               = "retry_delay"
	KeyMinPuzzleCount           = "min_puzzle_count"
	KeyFetchBatchSize           = "fetch_batch_size"
	KeyReplenishThreshold       = "replenish_threshold"
	KeyPuzzleSyncCooldown       = "puzzle_sync_cooldown"
	KeyDailyChallengeWindowDays = "daily_challenge_window_days"
	KeyDailyChallengesPerDate   = "daily_challenges_per_date"
	KeyDashboardPort            = "dashboard_port"
	KeyRemoteURL                = "remote.url"
	KeyRemoteAPIKey             = "remote.api_key"
)

// Initialize sets up viper with defaults, config file discovery, and
// environment variable binding. Call once at startup; a missing config
// file is not an error.
func Initialize() error {
	viper.SetConfigName("sudokodus")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".sudokodus"))
	}

	viper.SetEnvPrefix("SUDOKODUS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return nil
}

func setDefaults() {
	viper.SetDefault(KeyDBPath, "sudokodus.db")
	viper.SetDefault(KeySyncInterval, 60*time.Second)
	viper.SetDefault(KeyMaxRetryAttempts, 3)
	viper.SetDefault(KeyRetryDelay, 5*time.Second)
	viper.SetDefault(KeyMinPuzzleCount, 100)
	viper.SetDefault(KeyFetchBatchSize, 500)
	viper.SetDefault(KeyReplenishThreshold, 50)
	viper.SetDefault(KeyPuzzleSyncCooldown, 5*time.Minute)
	viper.SetDefault(KeyDailyChallengeWindowDays, 30)
	viper.SetDefault(KeyDailyChallengesPerDate, 4)
	viper.SetDefault(KeyDashboardPort, 8372)
	viper.SetDefault(KeyRemoteURL, "")
	viper.SetDefault(KeyRemoteAPIKey, "")
}

// GetString returns the string value for key.
func GetString(key string) string { return viper.GetString(key) }

// GetInt returns the int value for key.
func GetInt(key string) int { return viper.GetInt(key) }

// GetDuration returns the duration value for key.
func GetDuration(key string) time.Duration { return viper.GetDuration(key) }

// Config is a snapshot of the effective configuration.
type Config struct {
	DBPath                   string        `yaml:"db_path"`
	SyncInterval             time.Duration `yaml:"sync_interval"`
	MaxRetryAttempts         int           `yaml:"max_retry_attempts"`
	RetryDelay               time.Duration `yaml:"retry_delay"`
	MinPuzzleCount           int           `yaml:"min_puzzle_count"`
	FetchBatchSize           int           `yaml:"fetch_batch_size"`
	ReplenishThreshold       int           `yaml:"replenish_threshold"`
	PuzzleSyncCooldown       time.Duration `yaml:"puzzle_sync_cooldown"`
	DailyChallengeWindowDays int           `yaml:"daily_challenge_window_days"`
	DailyChallengesPerDate   int           `yaml:"daily_challenges_per_date"`
	DashboardPort            int           `yaml:"dashboard_port"`
	Remote                   RemoteConfig  `yaml:"remote"`
}

// RemoteConfig holds backend connection settings.
type RemoteConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// Load returns the effective configuration after Initialize.
func Load() *Config {
	return &Config{
		DBPath:                   viper.GetString(KeyDBPath),
		SyncInterval:             viper.GetDuration(KeySyncInterval),
		MaxRetryAttempts:         viper.GetInt(KeyMaxRetryAttempts),
		RetryDelay:               viper.GetDuration(KeyRetryDelay),
		MinPuzzleCount:           viper.GetInt(KeyMinPuzzleCount),
		FetchBatchSize:           viper.GetInt(KeyFetchBatchSize),
		ReplenishThreshold:       viper.GetInt(KeyReplenishThreshold),
		PuzzleSyncCooldown:       viper.GetDuration(KeyPuzzleSyncCooldown),
		DailyChallengeWindowDays: viper.GetInt(KeyDailyChallengeWindowDays),
		DailyChallengesPerDate:   viper.GetInt(KeyDailyChallengesPerDate),
		DashboardPort:            viper.GetInt(KeyDashboardPort),
		Remote: RemoteConfig{
			URL:    viper.GetString(KeyRemoteURL),
			APIKey: viper.GetString(KeyRemoteAPIKey),
		},
	}
}

// Validate checks the snapshot for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.MaxRetryAttempts < 1 {
		return fmt.Errorf("max_retry_attempts must be at least 1, got %d", c.MaxRetryAttempts)
	}
	if c.MinPuzzleCount < 0 || c.FetchBatchSize < 1 {
		return fmt.Errorf("invalid puzzle cache sizing: min=%d batch=%d", c.MinPuzzleCount, c.FetchBatchSize)
	}
	if c.ReplenishThreshold > c.MinPuzzleCount {
		return fmt.Errorf("replenish_threshold %d exceeds min_puzzle_count %d",
			c.ReplenishThreshold, c.MinPuzzleCount)
	}
	return nil
}

// WriteDefault writes a config file with default values to path.
// Fails if the file already exists.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}

	defaults := &Config{
		DBPath:                   "sudokodus.db",
		SyncInterval:             60 * time.Second,
		MaxRetryAttempts:         3,
		RetryDelay:               5 * time.Second,
		MinPuzzleCount:           100,
		FetchBatchSize:           500,
		ReplenishThreshold:       50,
		PuzzleSyncCooldown:       5 * time.Minute,
		DailyChallengeWindowDays: 30,
		DailyChallengesPerDate:   4,
		DashboardPort:            8372,
	}

	data, err := yaml.Marshal(defaults)
	if err != nil {
		return fmt.Errorf("failed to marshal defaults: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
