package config

import (
	"os"
	"path/filepath"

	"stratd/src/datamodels"
	"stratd/src/utils/general"

	"github.com/spf13/viper"
)

func Load() (*datamodels.StratdConfig, error) {
	// read config path from env var
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		currentDir := general.GetCurrentDir()
		// go up two levels to the repo root
		configPath = filepath.Join(currentDir, "..", "..", "config.local.yaml")
	}

	viper.SetConfigFile(configPath)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var stratdConfig datamodels.StratdConfig
	if err := viper.Unmarshal(&stratdConfig); err != nil {
		return nil, err
	}

	if err := stratdConfig.EngineConfig.Validate(); err != nil {
		return nil, err
	}

	return &stratdConfig, nil
}
