package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/ethpandaops/mlbdfs/pkg/engine"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const defaultConfigFile = "./config.yaml"

// loadConfig reads the engine configuration. A missing default config file
// leaves every setting at its default; an explicit --config must exist.
func loadConfig(file string) (*engine.Config, error) {
	explicit := file != ""
	if !explicit {
		file = defaultConfigFile
	}

	config := &engine.Config{}

	if err := defaults.Set(config); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(file) //nolint:gosec // User-provided config file path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return config, nil
		}

		return nil, fmt.Errorf("failed to read config %s: %w", file, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", file, err)
	}

	return config, nil
}

// applyLogLevel uses the config file level unless --log-level was passed
func applyLogLevel(cmd *cobra.Command, config *engine.Config) {
	if cmd.Flags().Changed("log-level") {
		return
	}

	level, err := logrus.ParseLevel(config.Logging)
	if err != nil {
		return
	}

	logger.SetLevel(level)
}
