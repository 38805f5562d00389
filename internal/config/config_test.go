package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultRunnerConfig(t *testing.T) {
	cfg := DefaultRunnerConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if cfg.LogFormat != "auto" || cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		check   func(t *testing.T, cfg RunnerConfig)
		wantErr string
	}{
		{
			name: "empty keeps defaults",
			yaml: "",
			check: func(t *testing.T, cfg RunnerConfig) {
				if cfg != DefaultRunnerConfig() {
					t.Errorf("cfg = %+v", cfg)
				}
			},
		},
		{
			name: "overrides",
			yaml: "log_level: debug\njournal: /tmp/j.db\npoll_interval: 1s\nmax_steps: 100\nstop_on_error: true\nconcurrency: 8\n",
			check: func(t *testing.T, cfg RunnerConfig) {
				if cfg.LogLevel != "debug" || cfg.JournalPath != "/tmp/j.db" || cfg.PollInterval != time.Second ||
					cfg.MaxSteps != 100 || !cfg.StopOnError || cfg.Concurrency != 8 {
					t.Errorf("cfg = %+v", cfg)
				}
				if cfg.LogFormat != "auto" {
					t.Errorf("unset field lost its default: %q", cfg.LogFormat)
				}
			},
		},
		{name: "unknown key", yaml: "bogus: 1\n", wantErr: "bogus"},
		{name: "bad format", yaml: "log_format: xml\n", wantErr: "log_format"},
		{name: "bad interval", yaml: "poll_interval: 0s\n", wantErr: "poll_interval"},
		{name: "negative steps", yaml: "max_steps: -1\n", wantErr: "max_steps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRunnerConfig()
			err := Decode(strings.NewReader(tt.yaml), &cfg)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want mention of %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coloop.yaml")
	if err := os.WriteFile(path, []byte("admin_addr: \":9000\"\nmax_copy_depth: 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AdminAddr != ":9000" || cfg.MaxCopyDepth != 10 {
		t.Errorf("cfg = %+v", cfg)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}
