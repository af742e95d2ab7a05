package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	SearchPaths []string        `mapstructure:"search_paths"`
	Output      string          `mapstructure:"output"`
	Log         LogConfig       `mapstructure:"log"`
	Generator   GeneratorConfig `mapstructure:"generator"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type GeneratorConfig struct {
	Version string `mapstructure:"version"`
}

// Flags maps settings keys to the command line flags that override them.
type Flags map[string]*pflag.Flag

// Load reads the settings file at path. With an empty path, cangen.yaml is
// looked up in the working directory and may be absent.
func Load(path string, flags Flags) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("cangen")
		v.AddConfigPath(".")
	}

	// Defaults
	v.SetDefault("search_paths", []string{"."})
	v.SetDefault("output", "-")
	v.SetDefault("log.level", "info")
	v.SetDefault("generator.version", "4.0-dev")

	// CANGEN_LOG_LEVEL overrides log.level
	v.SetEnvPrefix("CANGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A changed flag replaces the configured value, lists included.
	for key, flag := range flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// Verbose reports whether debug logging was requested.
func (c *Config) Verbose() bool {
	return strings.EqualFold(c.Log.Level, "debug")
}
