package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "murmur.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadEmptyPathIsDefault(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg != Default() {
		t.Fatalf("got %+v", cfg)
	}
}

func TestLoadFileFillsDefaults(t *testing.T) {
	path := writeFile(t, "relay: true\ndial_timeout: 3s\nlog_level: debug\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Relay || cfg.DialTimeout != 3*time.Second {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.ReadBuffer != DefaultReadBuffer || cfg.MaxMessage != DefaultMaxMessage || cfg.RelayWindow != DefaultRelayWindow {
		t.Fatalf("defaults not filled: %+v", cfg)
	}
	lvl, err := cfg.Level()
	if err != nil || lvl != slog.LevelDebug {
		t.Fatalf("level=%v err=%v", lvl, err)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	for name, body := range map[string]string{
		"negative buffer": "read_buffer: -1\n",
		"bad level":       "log_level: chatty\n",
		"bad yaml":        "relay: [\n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeFile(t, body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestParsePort(t *testing.T) {
	for _, s := range []string{"1", "5000", "65535", " 8080 "} {
		if _, err := ParsePort(s); err != nil {
			t.Fatalf("ParsePort(%q): %v", s, err)
		}
	}
	for _, s := range []string{"0", "65536", "-1", "abc", ""} {
		if _, err := ParsePort(s); !errors.Is(err, ErrInvalidPort) {
			t.Fatalf("ParsePort(%q): expected ErrInvalidPort, got %v", s, err)
		}
	}
}

func TestFillDefaultsKeepsSetFields(t *testing.T) {
	cfg := Config{Relay: true, MaxMessage: 200}
	cfg.FillDefaults()
	if !cfg.Relay || cfg.MaxMessage != 200 {
		t.Fatalf("set fields overwritten: %+v", cfg)
	}
	if cfg.ReadBuffer != DefaultReadBuffer || cfg.RelayWindow != DefaultRelayWindow || cfg.LogLevel != "info" {
		t.Fatalf("zero fields not filled: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}
