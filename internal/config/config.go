// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/site-density/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// AnalysisConfig holds the default analysis parameters.
type AnalysisConfig struct {
	RadiusKM             float64 `yaml:"radius_km" mapstructure:"radius_km"`
	CoLocationThresholdM float64 `yaml:"co_location_threshold_m" mapstructure:"co_location_threshold_m"`
	Mode                 string  `yaml:"classification_mode" mapstructure:"classification_mode"`
	RuralThreshold       float64 `yaml:"rural_threshold" mapstructure:"rural_threshold"`
	SuburbanThreshold    float64 `yaml:"suburban_threshold" mapstructure:"suburban_threshold"`
	UrbanThreshold       float64 `yaml:"urban_threshold" mapstructure:"urban_threshold"`
	Workers              int     `yaml:"workers" mapstructure:"workers"`
}

// Params converts the configured defaults to analysis parameters.
func (a AnalysisConfig) Params() model.AnalysisParams {
	return model.AnalysisParams{
		RadiusKM:             a.RadiusKM,
		CoLocationThresholdM: a.CoLocationThresholdM,
		Mode:                 a.Mode,
		RuralThreshold:       a.RuralThreshold,
		SuburbanThreshold:    a.SuburbanThreshold,
		UrbanThreshold:       a.UrbanThreshold,
	}
}

// StoreConfig configures the run store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port        int `yaml:"port" mapstructure:"port"`
	MaxUploadMB int `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// FetchConfig configures remote source retrieval.
type FetchConfig struct {
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SITEDENSITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("analysis.radius_km", 2.0)
	v.SetDefault("analysis.co_location_threshold_m", 100.0)
	v.SetDefault("analysis.classification_mode", model.ModeQuantile)
	v.SetDefault("analysis.rural_threshold", 10.0)
	v.SetDefault("analysis.suburban_threshold", 50.0)
	v.SetDefault("analysis.urban_threshold", 200.0)
	v.SetDefault("analysis.workers", 0)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "site-density.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_mb", 64)
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.rate_limit", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// ThresholdPreset is one named set of fixed classification cutoffs.
type ThresholdPreset struct {
	Rural    float64 `yaml:"rural"`
	Suburban float64 `yaml:"suburban"`
	Urban    float64 `yaml:"urban"`
}

// presetFile is the on-disk layout of a threshold preset file.
type presetFile struct {
	Presets map[string]ThresholdPreset `yaml:"presets"`
}

// LoadPresets reads named threshold presets from a yaml file.
func LoadPresets(path string) (map[string]ThresholdPreset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read preset file %s", path)
	}

	var file presetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrapf(err, "config: parse preset file %s", path)
	}
	if len(file.Presets) == 0 {
		return nil, eris.Errorf("config: preset file %s defines no presets", path)
	}
	return file.Presets, nil
}
