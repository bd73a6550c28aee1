// Package config loads ledgerlight's runtime configuration from a YAML file,
// an optional .env overlay, and environment variables, in that order of
// increasing precedence.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/uiuxdeveloper-io/ledgerlight/pkg/utils"
)

// Config is the unified configuration for a ledgerlight client process.
type Config struct {
	Node struct {
		URL               string        `mapstructure:"url" json:"url"`
		OpenTimeout       time.Duration `mapstructure:"open_timeout" json:"open_timeout"`
		KeepaliveInterval time.Duration `mapstructure:"keepalive_interval" json:"keepalive_interval"`
		SubmitTimeout     time.Duration `mapstructure:"submit_timeout" json:"submit_timeout"`
		IdleGrace         time.Duration `mapstructure:"idle_grace" json:"idle_grace"`
	} `mapstructure:"node" json:"node"`

	Identity struct {
		URL string `mapstructure:"url" json:"url"`
	} `mapstructure:"identity" json:"identity"`

	Cache struct {
		Provider string `mapstructure:"provider" json:"provider"`
		DSN      string `mapstructure:"dsn" json:"dsn"`
	} `mapstructure:"cache" json:"cache"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

func defaults() {
	viper.SetDefault("node.url", "ws://localhost:8080/rpc")
	viper.SetDefault("node.open_timeout", "5s")
	viper.SetDefault("node.keepalive_interval", "10s")
	viper.SetDefault("node.submit_timeout", "5s")
	viper.SetDefault("node.idle_grace", "5s")
	viper.SetDefault("identity.url", "ws://localhost:54345")
	viper.SetDefault("cache.provider", "memory")
	viper.SetDefault("cache.dsn", "")
	viper.SetDefault("logging.level", "info")
}

// Load reads config/default.yaml, merges an env-specific overlay file when
// env is non-empty, then applies any LEDGERLIGHT_-prefixed environment
// variables. A missing .env file in the working directory is not an error.
func Load(env string) (*Config, error) {
	_ = godotenv.Load()

	defaults()
	viper.SetConfigName("default")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, utils.Wrap(err, "load config")
		}
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, utils.Wrap(err, "merge "+env+" config")
			}
		}
	}

	viper.SetEnvPrefix("LEDGERLIGHT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the LEDGERLIGHT_ENV environment
// variable to select the overlay file.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("LEDGERLIGHT_ENV", ""))
}
