// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/civicsignal/ballotbox-cli/internal/loader"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Geocode    GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	TravelTime TravelTimeConfig `yaml:"traveltime" mapstructure:"traveltime"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Voters     VotersConfig     `yaml:"voters" mapstructure:"voters"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string       `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string       `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolSettings `yaml:"pool" mapstructure:"pool"`
}

// PoolSettings tunes the Postgres connection pool.
type PoolSettings struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// GeocodeConfig configures the address resolver and its result cache.
type GeocodeConfig struct {
	CacheDir     string  `yaml:"cache_dir" mapstructure:"cache_dir"`
	GoogleAPIKey string  `yaml:"google_api_key" mapstructure:"google_api_key"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// TravelTimeConfig configures the isochrone client.
type TravelTimeConfig struct {
	AppID           string `yaml:"app_id" mapstructure:"app_id"`
	APIKey          string `yaml:"api_key" mapstructure:"api_key"`
	CacheDir        string `yaml:"cache_dir" mapstructure:"cache_dir"`
	PreDelaySecs    int    `yaml:"pre_delay_secs" mapstructure:"pre_delay_secs"`
	MaxRetries      int    `yaml:"max_retries" mapstructure:"max_retries"`
	BackoffBaseSecs int    `yaml:"backoff_base_secs" mapstructure:"backoff_base_secs"`
	Timezone        string `yaml:"timezone" mapstructure:"timezone"`
}

// PipelineConfig tunes the geocoding pipeline.
type PipelineConfig struct {
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
	Workers   int `yaml:"workers" mapstructure:"workers"`
}

// VotersConfig names the voter-table columns holding the address parts and
// the default weight column.
type VotersConfig struct {
	Mapping      loader.ColumnMapping `yaml:"mapping" mapstructure:"mapping"`
	Sheet        string               `yaml:"sheet" mapstructure:"sheet"`
	WeightColumn string               `yaml:"weight_column" mapstructure:"weight_column"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config file, and environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BALLOTBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Credentials keep their unprefixed upstream names as fallbacks.
	_ = v.BindEnv("geocode.google_api_key", "BALLOTBOX_GEOCODE_GOOGLE_API_KEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("traveltime.app_id", "BALLOTBOX_TRAVELTIME_APP_ID", "TRAVELTIME_ID")
	_ = v.BindEnv("traveltime.api_key", "BALLOTBOX_TRAVELTIME_API_KEY", "TRAVELTIME_KEY")

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "ballotbox.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("geocode.cache_dir", "cache/geocode")
	v.SetDefault("geocode.rate_limit", 50)
	v.SetDefault("traveltime.cache_dir", "cache/isochrones")
	v.SetDefault("traveltime.pre_delay_secs", 5)
	v.SetDefault("traveltime.max_retries", 4)
	v.SetDefault("traveltime.backoff_base_secs", 10)
	v.SetDefault("traveltime.timezone", "America/New_York")
	v.SetDefault("pipeline.batch_size", 100)
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("voters.mapping.street", "res_street_address")
	v.SetDefault("voters.mapping.city", "res_city")
	v.SetDefault("voters.mapping.state", "res_state")
	v.SetDefault("voters.mapping.zip", "res_zip")
	v.SetDefault("voters.mapping.unit", "unit")
	v.SetDefault("voters.weight_column", "total_reg_voters")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
