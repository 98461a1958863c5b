package util

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TOPOMON_DATA_DIR", dir)
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "log_level: debug\n")

	v := viper.New()
	v.SetConfigFile(path)
	cfg, err := loadConfig(v)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.SNMP.Community != "public" || cfg.SNMP.Timeout != 5*time.Second || cfg.SNMP.Retries != 2 {
		t.Errorf("unexpected snmp defaults: %+v", cfg.SNMP)
	}
	if cfg.Poll.Interval != 5*time.Minute || cfg.Poll.Concurrency != 20 {
		t.Errorf("unexpected poll defaults: %+v", cfg.Poll)
	}
	if cfg.Discovery.MaxHosts != 256 || cfg.Discovery.BatchSize != 20 {
		t.Errorf("unexpected discovery defaults: %+v", cfg.Discovery)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
snmp:
  community: s3cret
  timeout: 3s
poll:
  interval: 1m
  concurrency: 4
discovery:
  enabled: true
  subnets:
    - 10.0.0.0/24
    - 10.0.1.0/28
`)
	t.Setenv("TOPOMON_POLL_CONCURRENCY", "8")

	v := viper.New()
	v.SetConfigFile(path)
	cfg, err := loadConfig(v)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.SNMP.Community != "s3cret" || cfg.SNMP.Timeout != 3*time.Second {
		t.Errorf("snmp = %+v", cfg.SNMP)
	}
	if cfg.Poll.Interval != time.Minute {
		t.Errorf("poll interval = %v", cfg.Poll.Interval)
	}
	if cfg.Poll.Concurrency != 8 {
		t.Errorf("env override not applied: concurrency = %d", cfg.Poll.Concurrency)
	}
	if !cfg.Discovery.Enabled || len(cfg.Discovery.Subnets) != 2 {
		t.Errorf("discovery = %+v", cfg.Discovery)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad subnet", "discovery:\n  subnets: [\"10.0.0.300/24\"]\n"},
		{"zero concurrency", "poll:\n  concurrency: 0\n"},
		{"v3 without user", "snmp:\n  version: v3\n"},
		{"bad level", "log_level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.body)
			v := viper.New()
			v.SetConfigFile(path)
			if _, err := loadConfig(v); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDiscoveryChanged(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	if a.DiscoveryChanged(b) {
		t.Fatal("identical configs reported as changed")
	}

	b.WebPort = 9999
	if a.DiscoveryChanged(b) {
		t.Error("unrelated field should not restart discovery")
	}

	b.Discovery.Subnets = []string{"192.168.0.0/24"}
	if !a.DiscoveryChanged(b) {
		t.Error("subnet change not detected")
	}

	c := DefaultConfig()
	c.Discovery.Interval = time.Minute
	if !a.DiscoveryChanged(c) {
		t.Error("interval change not detected")
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(LevelWarn, &buf)

	l.Info("hidden %d", 1)
	l.Warn("shown %d", 2)
	l.Error("shown %d", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message logged at warn level: %q", out)
	}
	if !strings.Contains(out, "WARN: shown 2") || !strings.Contains(out, "ERROR: shown 3") {
		t.Errorf("missing messages: %q", out)
	}

	l.SetLevel(LevelDebug)
	l.Debug("now visible")
	if !strings.Contains(buf.String(), "DEBUG: now visible") {
		t.Errorf("debug not logged after SetLevel: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug": LevelDebug, "INFO": LevelInfo, "warning": LevelWarn, "error": LevelError, "": LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
