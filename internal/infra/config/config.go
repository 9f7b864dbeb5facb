package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Download DownloadConfig `mapstructure:"download" yaml:"download"`
	Verify   VerifyConfig   `mapstructure:"verify" yaml:"verify"`
	Extract  ExtractConfig  `mapstructure:"extract" yaml:"extract"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`

	Port string `mapstructure:"port" yaml:"port"`
}

type DownloadConfig struct {
	OutDir     string        `mapstructure:"out_dir" yaml:"out_dir"`
	ChunkSize  int           `mapstructure:"chunk_size" yaml:"chunk_size"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type VerifyConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	PointerTimeout time.Duration `mapstructure:"pointer_timeout" yaml:"pointer_timeout"`
}

type ExtractConfig struct {
	Enabled  bool `mapstructure:"enabled" yaml:"enabled"`
	MaxDepth int  `mapstructure:"max_depth" yaml:"max_depth"`
	Workers  int  `mapstructure:"workers" yaml:"workers"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
}

type StoreConfig struct {
	Driver     string `mapstructure:"driver" yaml:"driver"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
}

// Load reads the config file at path, falling back to defaults for every
// missing key. An empty path means "config.yaml" if it exists; a config file
// is optional since every value has a default.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set Defaults
	v.SetDefault("port", "8080")
	v.SetDefault("download.out_dir", "./downloads")
	v.SetDefault("download.chunk_size", 1024)
	v.SetDefault("download.max_retries", 5)
	v.SetDefault("download.retry_delay", "60s")
	v.SetDefault("download.timeout", "60s")
	v.SetDefault("verify.enabled", true)
	v.SetDefault("verify.pointer_timeout", "10s")
	v.SetDefault("extract.enabled", true)
	v.SetDefault("extract.max_depth", 1)
	v.SetDefault("extract.workers", 4)
	v.SetDefault("log.path", "zipfetch.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "zipfetch.db")

	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	} else if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// Support Environment Variables
	v.SetEnvPrefix("ZIPFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Download.ChunkSize <= 0 {
		c.Download.ChunkSize = 1024
	}

	if c.Download.MaxRetries < 0 {
		return fmt.Errorf("download.max_retries must not be negative (got %d)", c.Download.MaxRetries)
	}

	if c.Download.Timeout <= 0 {
		c.Download.Timeout = 60 * time.Second
	}

	if c.Extract.MaxDepth < 0 {
		return fmt.Errorf("extract.max_depth must not be negative (got %d)", c.Extract.MaxDepth)
	}

	if c.Extract.Workers <= 0 {
		// Default to a sane value
		c.Extract.Workers = 4
	}

	if c.Download.OutDir == "" {
		c.Download.OutDir = "./downloads"
	}

	switch c.Store.Driver {
	case "", "sqlite":
		c.Store.Driver = "sqlite"
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store.postgres_dsn is required when store.driver is postgres")
		}
	default:
		return fmt.Errorf("unknown store.driver %q (want sqlite or postgres)", c.Store.Driver)
	}

	return nil
}
