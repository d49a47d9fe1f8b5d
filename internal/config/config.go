// internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"sprig/internal/errors"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// FileName is the optional per-repository config file inside the metadata dir.
const FileName = "config.json"

type Config struct {
	LogLevel string `mapstructure:"log_level"` // debug, info, warn, error
	Color    bool   `mapstructure:"color"`

	Store struct {
		CacheSize   int `mapstructure:"cache_size"`
		Compression struct {
			MinSize int `mapstructure:"min_size"`
			Level   int `mapstructure:"level"`
		} `mapstructure:"compression"`
	} `mapstructure:"store"`

	Storage struct {
		InMemoryIndex bool `mapstructure:"in_memory_index"`
	} `mapstructure:"storage"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "warn")
	v.SetDefault("color", true)
	v.SetDefault("store.cache_size", 1000)
	v.SetDefault("store.compression.min_size", 1024)
	v.SetDefault("store.compression.level", 2)
	v.SetDefault("storage.in_memory_index", false)
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load reads defaults, then metaDir/config.json if it exists, then SPRIG_*
// environment variables.
func Load(fs afero.Fs, metaDir string) (*Config, error) {
	v := viper.New()
	v.SetFs(fs)
	setDefaults(v)

	v.SetEnvPrefix("SPRIG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := filepath.Join(metaDir, FileName)
	if ok, err := afero.Exists(fs, path); err != nil {
		return nil, fmt.Errorf("checking config file: %w", err)
	} else if ok {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports out-of-range settings as validation errors.
func (c *Config) Validate() error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return errors.Validation(fmt.Sprintf("invalid log level %q", c.LogLevel))
	}
	if c.Store.CacheSize <= 0 {
		return errors.Validation("store.cache_size must be positive")
	}
	if c.Store.Compression.Level < 1 || c.Store.Compression.Level > 4 {
		return errors.Validation(fmt.Sprintf("store.compression.level must be between 1 and 4, got %d", c.Store.Compression.Level))
	}
	return nil
}
