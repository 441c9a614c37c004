package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "segdd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "advertise:\n  enabled: true\n")
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	dir := filepath.Dir(path)
	if cfg.Addr != ":8080" || cfg.Storage != filepath.Join(dir, "data") {
		t.Fatalf("addr %q storage %q", cfg.Addr, cfg.Storage)
	}
	if cfg.Log.File != filepath.Join(dir, "data", "logs", "segdd.log") {
		t.Fatalf("log file %q", cfg.Log.File)
	}
	if cfg.Log.MaxSizeMB != 25 || cfg.Log.MaxAgeDays != 7 || cfg.Log.MaxBackups != 5 {
		t.Fatalf("log defaults %+v", cfg.Log)
	}
	if !cfg.Advertise.Enabled || cfg.Advertise.Instance == "" {
		t.Fatalf("advertise %+v", cfg.Advertise)
	}
	if cfg.Catalog.Enabled {
		t.Fatalf("catalog enabled by default")
	}
}

func TestLoadConfigValues(t *testing.T) {
	path := writeConfig(t, `addr: "127.0.0.1:9090"
storage: /srv/segd
log:
  file: logs/d.log
  max_size_mb: 10
  compress: true
decode:
  slack: 64
  strict_tail: true
cache:
  bytes: 1048576
upload:
  rate_per_sec: 0.5
  burst: 2
  max_bytes: 1000
catalog:
  enabled: true
rule_pack_index: packs/index.yaml
rule_packs:
  - id: strict
    rules: packs/strict.yaml
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	dir := filepath.Dir(path)
	if cfg.Storage != "/srv/segd" || cfg.Log.File != filepath.Join(dir, "logs", "d.log") || !cfg.Log.Compress {
		t.Fatalf("paths %+v", cfg)
	}
	if cfg.RulePackIndex != filepath.Join(dir, "packs", "index.yaml") || cfg.RulePacks[0].Rules != filepath.Join(dir, "packs", "strict.yaml") {
		t.Fatalf("rule packs %q %+v", cfg.RulePackIndex, cfg.RulePacks)
	}

	opts := serverOptions(cfg)
	if opts.Decode.Slack != 64 || !opts.Decode.StrictTail || opts.CacheBytes != 1<<20 {
		t.Fatalf("decode/cache options %+v", opts)
	}
	if opts.UploadRate != 0.5 || opts.UploadBurst != 2 || opts.MaxUploadBytes != 1000 {
		t.Fatalf("upload options %+v", opts)
	}
	if len(opts.RulePacks) != 1 || opts.RulePacks[0].ID != "strict" {
		t.Fatalf("packs %+v", opts.RulePacks)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	for name, body := range map[string]string{
		"negative slack": "decode:\n  slack: -1\n",
		"pack id":        "rule_packs:\n  - rules: x.yaml\n",
		"bad yaml":       "addr: [\n",
	} {
		if _, err := loadConfig(writeConfig(t, body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("missing file: expected error")
	}
}

func TestAdvertiseRejectsBadAddr(t *testing.T) {
	if _, err := advertise("x", "no-port"); err == nil {
		t.Fatalf("expected error for address without port")
	}
	if _, err := advertise("x", ":http"); err == nil {
		t.Fatalf("expected error for non-numeric port")
	}
}
