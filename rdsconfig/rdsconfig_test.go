package rdsconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestParseConfigDefaults(t *testing.T) {
	body := strings.NewReader(`{"tmc_local_directory": "/etc/rdsdecode/tmc"}`)

	config, err := getConfig(body, nil)
	if err != nil {
		t.Fatal(err)
	}

	if config.TMCLocalDirectory != "/etc/rdsdecode/tmc" {
		t.Errorf("TMCLocalDirectory = %q, want /etc/rdsdecode/tmc", config.TMCLocalDirectory)
	}
	if config.BERWindowCap != 40 {
		t.Errorf("BERWindowCap default = %d, want 40", config.BERWindowCap)
	}
	if config.ResolverMinBatchIntervalMS != 1100 {
		t.Errorf("ResolverMinBatchIntervalMS default = %d, want 1100", config.ResolverMinBatchIntervalMS)
	}
}

func TestParseConfigOverridesDefaults(t *testing.T) {
	body := strings.NewReader(`{"ber_window_cap": 20, "resolver_batch_size": 10}`)

	config, err := getConfig(body, nil)
	if err != nil {
		t.Fatal(err)
	}
	if config.BERWindowCap != 20 {
		t.Errorf("BERWindowCap = %d, want 20", config.BERWindowCap)
	}
	if config.ResolverBatchSize != 10 {
		t.Errorf("ResolverBatchSize = %d, want 10", config.ResolverBatchSize)
	}
}

func TestParseConfigWithBadJSON(t *testing.T) {
	_, err := getConfig(strings.NewReader("{not json}"), nil)
	if err == nil {
		t.Error("expected an error for malformed JSON")
	}
}

func TestGetConfigFromFile(t *testing.T) {
	dir, err := os.MkdirTemp("", "rdsconfig-"+uuid.NewString())
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"event_log_directory": "/var/log/rdsdecode"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	config, err := GetConfigFromFile(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if config.EventLogDirectory != "/var/log/rdsdecode" {
		t.Errorf("EventLogDirectory = %q, want /var/log/rdsdecode", config.EventLogDirectory)
	}
}

func TestGetConfigFromFileMissing(t *testing.T) {
	_, err := GetConfigFromFile("/nonexistent/path/config.json", nil)
	if err == nil {
		t.Error("expected an error for a missing file")
	}
}
