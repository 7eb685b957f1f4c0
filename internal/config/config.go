package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string       `mapstructure:"environment"`
	LogLevel    string       `mapstructure:"log_level"`
	Server      ServerConfig `mapstructure:"server"`
	ML          MLConfig     `mapstructure:"ml"`
	Telemetry   Telemetry    `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type MLConfig struct {
	ModelPath          string  `mapstructure:"model_path"`
	TrainingTimeout    string  `mapstructure:"training_timeout"`
	MaxTextFeatures    int     `mapstructure:"max_text_features"`
	ClassifierTrees    int     `mapstructure:"classifier_trees"`
	ClassifierMaxDepth int     `mapstructure:"classifier_max_depth"`
	DetectorTrees      int     `mapstructure:"detector_trees"`
	Contamination      float64 `mapstructure:"contamination"`
	RandomSeed         int64   `mapstructure:"random_seed"`
}

type Telemetry struct {
	Enabled bool `mapstructure:"enabled"`
}

// TrainingBudget returns the parsed training timeout.
func (m MLConfig) TrainingBudget() time.Duration {
	d, err := time.ParseDuration(m.TrainingTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	if config.ML.TrainingTimeout != "" {
		if _, err := time.ParseDuration(config.ML.TrainingTimeout); err != nil {
			return nil, fmt.Errorf("invalid training timeout: %w", err)
		}
	}
	if config.ML.Contamination <= 0 || config.ML.Contamination >= 1 {
		return nil, fmt.Errorf("contamination must be in (0, 1), got %v", config.ML.Contamination)
	}
	if config.ML.MaxTextFeatures <= 0 {
		return nil, fmt.Errorf("max_text_features must be positive, got %d", config.ML.MaxTextFeatures)
	}

	return &config, nil
}

// Default returns the default configuration without touching config files or
// the environment. Used by tests and embedded callers.
func Default() *Config {
	return &Config{
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:           8000,
			AllowedOrigins: []string{"*"},
		},
		ML:        defaultML(),
		Telemetry: Telemetry{Enabled: false},
	}
}

func defaultML() MLConfig {
	return MLConfig{
		ModelPath:          "data/models.bin",
		TrainingTimeout:    "30s",
		MaxTextFeatures:    100,
		ClassifierTrees:    100,
		ClassifierMaxDepth: 10,
		DetectorTrees:      100,
		Contamination:      0.1,
		RandomSeed:         42,
	}
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.allowed_origins", []string{"*"})

	ml := defaultML()
	viper.SetDefault("ml.model_path", ml.ModelPath)
	viper.SetDefault("ml.training_timeout", ml.TrainingTimeout)
	viper.SetDefault("ml.max_text_features", ml.MaxTextFeatures)
	viper.SetDefault("ml.classifier_trees", ml.ClassifierTrees)
	viper.SetDefault("ml.classifier_max_depth", ml.ClassifierMaxDepth)
	viper.SetDefault("ml.detector_trees", ml.DetectorTrees)
	viper.SetDefault("ml.contamination", ml.Contamination)
	viper.SetDefault("ml.random_seed", 42)

	viper.SetDefault("telemetry.enabled", false)
}
