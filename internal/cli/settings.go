package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultServerURL is used when neither flag, env nor config file names a server
const DefaultServerURL = "http://localhost:3001"

// Settings are the resolved connection settings for one invocation.
// Precedence: flag, TIDES_* env, ~/.tides/tidesctl.yaml, default.
type Settings struct {
	Server    string `mapstructure:"server"`
	Token     string `mapstructure:"token"`
	User      string `mapstructure:"user"`
	JWTSecret string `mapstructure:"jwt_secret"`
	NoColor   bool   `mapstructure:"no_color"`
}

// ConfigPath returns the default config file location
func ConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".tides", "tidesctl.yaml")
	}
	return filepath.Join(home, ".tides", "tidesctl.yaml")
}

// LoadSettings resolves settings through v. An explicit configFile must exist;
// the default one is optional.
func LoadSettings(v *viper.Viper, flags *pflag.FlagSet, configFile string) (*Settings, error) {
	v.SetDefault("server", DefaultServerURL)
	v.SetEnvPrefix("TIDES")
	v.AutomaticEnv()

	for _, key := range []string{"server", "token", "user", "no_color"} {
		flagName := key
		if key == "no_color" {
			flagName = "no-color"
		}
		if f := flags.Lookup(flagName); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", flagName, err)
			}
		}
	}
	// Env-only keys still need to be known to Unmarshal
	if err := v.BindEnv("jwt_secret"); err != nil {
		return nil, fmt.Errorf("failed to bind jwt_secret: %w", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigFile(ConfigPath())
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config %s: %w", ConfigPath(), err)
			}
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	if settings.Server == "" {
		settings.Server = DefaultServerURL
	}
	return &settings, nil
}
