// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/seedcrawl/internal/crawler"
	"github.com/JakeFAU/seedcrawl/internal/engine"
)

// Output formats understood by the crawl command.
const (
	FormatCSV      = "csv"
	FormatJSONL    = "jsonl"
	FormatPostgres = "postgres"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Input    InputConfig    `mapstructure:"input"`
	Output   OutputConfig   `mapstructure:"output"`
	Sink     SinkConfig     `mapstructure:"sink"`
	DB       DBConfig       `mapstructure:"db"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Progress ProgressConfig `mapstructure:"progress"`
}

// CrawlerConfig governs the worker pool and the fetcher.
type CrawlerConfig struct {
	Threads        int           `mapstructure:"threads"`
	Extended       bool          `mapstructure:"extended"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRedirects   int           `mapstructure:"max_redirects"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// InputConfig locates the seed list.
type InputConfig struct {
	Path string `mapstructure:"path"`
}

// OutputConfig selects where and how results are written.
type OutputConfig struct {
	Path      string `mapstructure:"path"`
	Format    string `mapstructure:"format"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// SinkConfig tunes result writing.
type SinkConfig struct {
	WriteAttempts int `mapstructure:"write_attempts"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	MaxConns    int32  `mapstructure:"max_conns"`
	TablePrefix string `mapstructure:"table_prefix"`
}

// LoggingConfig configures zap and the optional rotating log file.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// ProgressConfig toggles the console progress bar.
type ProgressConfig struct {
	Bar bool `mapstructure:"bar"`
}

// flagKeys maps CLI flag names onto configuration keys.
var flagKeys = map[string]string{
	"input":    "input.path",
	"output":   "output.path",
	"threads":  "crawler.threads",
	"extended": "crawler.extended",
	"timeout":  "crawler.request_timeout",
	"format":   "output.format",
}

// Load builds a Config from defaults, an optional file, the environment, and
// any flags the caller changed. Precedence follows Viper: flags, then env,
// then file, then defaults.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.threads", 4)
	v.SetDefault("crawler.extended", false)
	v.SetDefault("crawler.request_timeout", "30s")
	v.SetDefault("crawler.max_redirects", 5)
	v.SetDefault("crawler.max_body_bytes", 8<<20)
	v.SetDefault("crawler.user_agent", "seedcrawl/1.0 (+https://github.com/JakeFAU/seedcrawl)")
	v.SetDefault("input.path", "data/urls.txt")
	v.SetDefault("output.path", "data/results.csv")
	v.SetDefault("output.format", FormatCSV)
	v.SetDefault("output.gcs_bucket", "")
	v.SetDefault("output.gcs_prefix", "crawls")
	v.SetDefault("sink.write_attempts", 3)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.table_prefix", "crawl_")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("progress.bar", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.Threads < 1 || c.Crawler.Threads > engine.MaxThreads {
		return invalid("crawler.threads", fmt.Sprintf("must be between 1 and %d, got %d", engine.MaxThreads, c.Crawler.Threads))
	}
	if c.Crawler.RequestTimeout <= 0 {
		return invalid("crawler.request_timeout", "must be > 0")
	}
	if c.Crawler.MaxRedirects < 0 {
		return invalid("crawler.max_redirects", "must be >= 0")
	}
	if c.Crawler.MaxBodyBytes <= 0 {
		return invalid("crawler.max_body_bytes", "must be > 0")
	}
	if strings.TrimSpace(c.Input.Path) == "" {
		return invalid("input.path", "must be set")
	}
	switch c.Output.Format {
	case FormatCSV, FormatJSONL:
		if strings.TrimSpace(c.Output.Path) == "" {
			return invalid("output.path", "must be set")
		}
	case FormatPostgres:
		if c.DB.DSN == "" {
			return invalid("db.dsn", "must be set when output.format is postgres")
		}
		if c.DB.MaxConns <= 0 {
			return invalid("db.max_conns", "must be > 0")
		}
	default:
		return invalid("output.format", fmt.Sprintf("must be one of csv, jsonl, postgres, got %q", c.Output.Format))
	}
	if c.Sink.WriteAttempts < 1 {
		return invalid("sink.write_attempts", "must be >= 1")
	}
	if c.Logging.MaxSizeMB < 0 {
		return invalid("logging.max_size_mb", "must be >= 0")
	}
	if c.Logging.MaxBackups < 0 {
		return invalid("logging.max_backups", "must be >= 0")
	}
	return nil
}

func invalid(key, reason string) error {
	return &crawler.ConfigError{Key: key, Reason: reason}
}
