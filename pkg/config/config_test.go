package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Build.ChunkSize != 2000 || cfg.Build.MergeBufferSize != 5000 {
		t.Errorf("unexpected defaults: %+v", cfg.Build)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bsbi.yaml")
	data := []byte("build:\n  dataDir: /tmp/idx\n  chunkSize: 2\n  mergeBufferSize: 1\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BSBI_MERGE_BUFFER_SIZE", "1000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Build.DataDir != "/tmp/idx" || cfg.Build.ChunkSize != 2 {
		t.Errorf("file values not applied: %+v", cfg.Build)
	}
	if cfg.Build.MergeBufferSize != 1000 {
		t.Errorf("env override not applied: got %d", cfg.Build.MergeBufferSize)
	}
	if cfg.Build.IndexWorkers != 1 {
		t.Errorf("default lost for unset field: got %d", cfg.Build.IndexWorkers)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"chunk size", func(c *Config) { c.Build.ChunkSize = 0 }, "build.chunkSize must be positive, got 0"},
		{"buffer size", func(c *Config) { c.Build.MergeBufferSize = -1 }, "build.mergeBufferSize must be positive, got -1"},
		{"workers", func(c *Config) { c.Build.MergeWorkers = 0 }, "build.mergeWorkers must be positive, got 0"},
		{"stemmer", func(c *Config) { c.Tokenizer.Stemmer = "snowball" }, `tokenizer.stemmer must be "simple", "porter2" or "none", got "snowball"`},
		{"kafka brokers", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = nil }, "kafka.brokers is required when kafka is enabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Error() != tt.want {
				t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), tt.want)
			}
		})
	}
}
