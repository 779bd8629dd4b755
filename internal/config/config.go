// internal/config/config.go
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	Port               string        `mapstructure:"PORT"`
	GithubClientID     string        `mapstructure:"GITHUB_CLIENT_ID"`
	GithubClientSecret string        `mapstructure:"GITHUB_CLIENT_SECRET"`
	CallbackURL        string        `mapstructure:"CALLBACK_URL"`
	SessionTTL         time.Duration `mapstructure:"SESSION_TTL"`
	DBURL              string        `mapstructure:"DB_URL"`
	MaxPages           int           `mapstructure:"MAX_PAGES"`
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	// Set default values
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("PORT", "3000")
	viper.SetDefault("CALLBACK_URL", "http://localhost:3000/auth/callback")
	viper.SetDefault("SESSION_TTL", "24h")
	viper.SetDefault("MAX_PAGES", 50)

	// Load from .env file if it exists
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if file not found

	// Bind environment variables
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate required fields
	if cfg.GithubClientID == "" {
		return nil, errors.New("GITHUB_CLIENT_ID is a required configuration field")
	}
	if cfg.GithubClientSecret == "" {
		return nil, errors.New("GITHUB_CLIENT_SECRET is a required configuration field")
	}
	if cfg.MaxPages <= 0 {
		return nil, errors.New("MAX_PAGES must be a positive integer")
	}

	return &cfg, nil
}
