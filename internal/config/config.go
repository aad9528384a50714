// Package config loads the server's config.json, materializing
// missing keys with defaults and refusing to continue until the file
// has been reviewed, matching original_source/config.py's
// ConfigReader behaviour: a fresh or partially-populated config.json
// is rewritten with defaults and the process exits so an operator can
// inspect the generated file before the server actually starts.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config mirrors original_source/config.py's Config field list,
// renamed to idiomatic Go casing (ADDED-C.8 in SPEC_FULL.md).
type Config struct {
	Port              int    `mapstructure:"port"`
	DBHost            string `mapstructure:"db_host"`
	DBUsername        string `mapstructure:"db_username"`
	DBPassword        string `mapstructure:"db_password"`
	DBDatabase        string `mapstructure:"db_database"`
	DBWorkers         int    `mapstructure:"db_workers"`
	RedisHost         string `mapstructure:"redis_host"`
	RedisPort         int    `mapstructure:"redis_port"`
	RedisDB           int    `mapstructure:"redis_db"`
	RedisPassword     string `mapstructure:"redis_password"`
	GzipLevel         int    `mapstructure:"gzip_level"`
	ThreadsCount      int    `mapstructure:"threads_count"`
	CIKey             string `mapstructure:"ci_key"`
	NewRankedWebhook  string `mapstructure:"new_ranked_webhook"`
}

func defaults() map[string]any {
	return map[string]any{
		"port":               13381,
		"db_host":            "localhost",
		"db_username":        "root",
		"db_password":        "",
		"db_database":        "bancho",
		"db_workers":         4,
		"redis_host":         "localhost",
		"redis_port":         6379,
		"redis_db":           0,
		"redis_password":     "",
		"gzip_level":         0,
		"threads_count":      4,
		"ci_key":             "changeme",
		"new_ranked_webhook": "",
	}
}

// ErrNeedsReview is returned when config.json did not exist, or was
// missing keys that have just been materialized with defaults. The
// caller (cmd/banchod) must print a notice and exit without starting
// the server, exactly as config.py's on_finish_update raises
// SystemExit(0).
var ErrNeedsReview = fmt.Errorf("config.json was created or updated with default values; review it before restarting")

// Load reads path, materializing any missing keys with defaults and
// writing them back. Returns (cfg, ErrNeedsReview) when the file was
// created or modified, in which case cfg should not be used to start
// the server.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	for k, val := range defaults() {
		v.SetDefault(k, val)
	}

	_, statErr := os.Stat(path)
	fileExisted := statErr == nil

	updatedKeys := []string{}
	if fileExisted {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		for k := range defaults() {
			if !v.InConfig(k) {
				updatedKeys = append(updatedKeys, k)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if !fileExisted || len(updatedKeys) > 0 {
		if err := v.WriteConfigAs(path); err != nil {
			return nil, fmt.Errorf("config: write %s: %w", path, err)
		}
		return &cfg, ErrNeedsReview
	}

	return &cfg, nil
}
