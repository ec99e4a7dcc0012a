package cohere

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// fileConfig is the on-disk form of Config.
type fileConfig struct {
	APIKey     string            `toml:"api_key"`
	BaseURL    string            `toml:"base_url"`
	Headers    map[string]string `toml:"headers"`
	MaxRetries int               `toml:"max_retries"`
	MinBackoff duration          `toml:"min_backoff"`
	MaxBackoff duration          `toml:"max_backoff"`
	Timeout    duration          `toml:"timeout"`
	LogLevel   string            `toml:"log_level"`
	Defaults   Options           `toml:"defaults"`
}

type duration struct{ time.Duration }

func (d *duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// LoadConfig reads a TOML config file. When log_level is set, the returned
// config logs to stderr at that level. Zero or omitted values take the
// client defaults, so max_retries = 0 still retries twice; use -1 to disable
// retries.
//
//	api_key = "..."
//	max_retries = 3 # -1 disables retries
//	min_backoff = "500ms"
//	timeout = "2m"
//	log_level = "debug"
//
//	[defaults]
//	model = "command-a-03-2025"
//	temperature = 0.2
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(data)
}

// ParseConfig decodes TOML config data. Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	var fc fileConfig
	md, err := toml.Decode(string(data), &fc)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("parse config: unknown keys %s", strings.Join(keys, ", "))
	}

	cfg := Config{
		APIKey:     fc.APIKey,
		BaseURL:    fc.BaseURL,
		Headers:    fc.Headers,
		MaxRetries: fc.MaxRetries,
		MinBackoff: fc.MinBackoff.Duration,
		MaxBackoff: fc.MaxBackoff.Duration,
		Timeout:    fc.Timeout.Duration,
		Defaults:   fc.Defaults,
	}
	if fc.LogLevel != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(fc.LogLevel)); err != nil {
			return Config{}, fmt.Errorf("failed to parse log_level: %w", err)
		}
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	return cfg, nil
}
