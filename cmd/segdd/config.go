package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type logConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type decodeConfig struct {
	Slack      int  `yaml:"slack"`
	StrictTail bool `yaml:"strict_tail"`
}

type cacheConfig struct {
	Bytes int64 `yaml:"bytes"`
}

type uploadConfig struct {
	RatePerSec float64 `yaml:"rate_per_sec"`
	Burst      int     `yaml:"burst"`
	MaxBytes   int64   `yaml:"max_bytes"`
}

type catalogConfig struct {
	Enabled bool `yaml:"enabled"`
}

type advertiseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

type rulePackConfig struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Rules string `yaml:"rules"`
}

type config struct {
	Addr          string           `yaml:"addr"`
	Storage       string           `yaml:"storage"`
	Log           logConfig        `yaml:"log"`
	Decode        decodeConfig     `yaml:"decode"`
	Cache         cacheConfig      `yaml:"cache"`
	Upload        uploadConfig     `yaml:"upload"`
	Catalog       catalogConfig    `yaml:"catalog"`
	Advertise     advertiseConfig  `yaml:"advertise"`
	RulePackIndex string           `yaml:"rule_pack_index"`
	RulePacks     []rulePackConfig `yaml:"rule_packs"`
}

// loadConfig reads the daemon config and fills defaults. Relative paths
// are resolved against the config file's directory.
func loadConfig(path string) (config, error) {
	var cfg config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	baseDir := filepath.Dir(path)
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" {
			return ""
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Clean(filepath.Join(baseDir, p))
	}

	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Storage == "" {
		cfg.Storage = "data"
	}
	cfg.Storage = resolvePath(cfg.Storage)
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(cfg.Storage, "logs", "segdd.log")
	}
	cfg.Log.File = resolvePath(cfg.Log.File)
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 25
	}
	if cfg.Log.MaxAgeDays <= 0 {
		cfg.Log.MaxAgeDays = 7
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Decode.Slack < 0 {
		return cfg, fmt.Errorf("decode.slack must not be negative")
	}
	if cfg.Advertise.Instance == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "segdd"
		}
		cfg.Advertise.Instance = "segdd on " + host
	}
	if cfg.RulePackIndex != "" {
		cfg.RulePackIndex = resolvePath(cfg.RulePackIndex)
	}
	for i := range cfg.RulePacks {
		if cfg.RulePacks[i].ID == "" {
			return cfg, fmt.Errorf("rule_packs[%d]: missing id", i)
		}
		cfg.RulePacks[i].Rules = resolvePath(cfg.RulePacks[i].Rules)
	}
	return cfg, nil
}
