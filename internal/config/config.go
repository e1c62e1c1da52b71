package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/manash/imgstudio/pkg/models"
)

// Config holds the client settings. Values come from defaults, an optional
// config.yaml in the config directory, and IMGSTUDIO_* environment variables,
// in ascending priority.
type Config struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSec     int    `mapstructure:"timeout_sec"`
	DataDir        string `mapstructure:"data_dir"`
	DefaultModel   string `mapstructure:"default_model"`
	DefaultSize    string `mapstructure:"default_size"`
	DefaultQuality string `mapstructure:"default_quality"`
	DefaultStyle   string `mapstructure:"default_style"`
	AutoEnhance    bool   `mapstructure:"auto_enhance"`
	StrictURLCheck bool   `mapstructure:"strict_url_check"`
}

func Load(configDir string) (*Config, error) {
	v := viper.New()

	v.SetDefault("base_url", "")
	v.SetDefault("timeout_sec", 120)
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("default_model", models.ModelDallE3)
	v.SetDefault("default_size", "")
	v.SetDefault("default_quality", "")
	v.SetDefault("default_style", "")
	v.SetDefault("auto_enhance", false)
	v.SetDefault("strict_url_check", true)

	v.SetEnvPrefix("IMGSTUDIO")
	v.AutomaticEnv()

	if configDir != "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir)
		if err := v.ReadInConfig(); err != nil {
			// A missing config file is fine; a broken one is not.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// HistoryPath is where the generation history database lives.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

func defaultDataDir() string {
	if dir := os.Getenv("IMGSTUDIO_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".imgstudio"
	}
	return filepath.Join(home, ".imgstudio")
}
