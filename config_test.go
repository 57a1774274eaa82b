package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadConfigFromYAMLWithDefaults(t *testing.T) {
	path := writeConfigFile(t, `
slack_bot_token: xoxb-yaml
slack_app_token: xapp-yaml
transcript_channel_id: CARCHIVE
training_channel_id: CTRAIN
manager_ids:
  - UALICE
  - UBOB
`)
	t.Setenv("CONFIG_PATH", path)

	cfg := LoadConfig()

	if cfg.SlackBotToken != "xoxb-yaml" {
		t.Fatalf("expected yaml token, got %q", cfg.SlackBotToken)
	}
	if cfg.TranscriptDir != "./transcripts" {
		t.Fatalf("expected default transcript dir, got %q", cfg.TranscriptDir)
	}
	if cfg.SweepSchedule != "* * * * *" {
		t.Fatalf("expected default sweep schedule, got %q", cfg.SweepSchedule)
	}
	if cfg.Location != time.Local {
		t.Fatalf("expected local timezone default, got %v", cfg.Location)
	}
	if len(cfg.ManagerIDs) != 2 || cfg.ManagerIDs[0] != "UALICE" {
		t.Fatalf("unexpected manager list: %v", cfg.ManagerIDs)
	}
}

func TestLoadConfigEnvOverridesYAML(t *testing.T) {
	path := writeConfigFile(t, `
slack_bot_token: xoxb-yaml
slack_app_token: xapp-yaml
transcript_channel_id: CARCHIVE
training_channel_id: CTRAIN
transcript_dir: /from/yaml
`)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-env")
	t.Setenv("TRANSCRIPT_DIR", "/from/env")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("MANAGER_IDS", "U1, U2,,U3 ")

	cfg := LoadConfig()

	if cfg.SlackBotToken != "xoxb-env" {
		t.Fatalf("env must override yaml, got %q", cfg.SlackBotToken)
	}
	if cfg.SlackAppToken != "xapp-yaml" {
		t.Fatalf("unset env must leave yaml value, got %q", cfg.SlackAppToken)
	}
	if cfg.TranscriptDir != "/from/env" {
		t.Fatalf("env must override yaml dir, got %q", cfg.TranscriptDir)
	}
	if cfg.Location != time.UTC {
		t.Fatalf("expected UTC location, got %v", cfg.Location)
	}
	want := []string{"U1", "U2", "U3"}
	if len(cfg.ManagerIDs) != len(want) {
		t.Fatalf("unexpected manager list: %v", cfg.ManagerIDs)
	}
	for i, id := range want {
		if cfg.ManagerIDs[i] != id {
			t.Fatalf("unexpected manager list: %v", cfg.ManagerIDs)
		}
	}
}

func TestIsManagerID(t *testing.T) {
	cfg := Config{ManagerIDs: []string{"UALICE", " UBOB "}}

	if !cfg.IsManagerID("UALICE") {
		t.Fatal("listed id must be a manager")
	}
	if !cfg.IsManagerID(" UBOB") {
		t.Fatal("whitespace must not defeat the comparison")
	}
	if cfg.IsManagerID("UEVE") {
		t.Fatal("unlisted id must not be a manager")
	}
	if cfg.IsManagerID("") {
		t.Fatal("empty id must not be a manager")
	}
}

func TestParseClock(t *testing.T) {
	hour, min, err := parseClock("14:30")
	if err != nil || hour != 14 || min != 30 {
		t.Fatalf("unexpected parse: %d:%d err=%v", hour, min, err)
	}
	if _, _, err := parseClock("24:00"); err == nil {
		t.Fatal("expected hour out of range to be rejected")
	}
	if _, _, err := parseClock("12:60"); err == nil {
		t.Fatal("expected minute out of range to be rejected")
	}
	if _, _, err := parseClock("noon"); err == nil {
		t.Fatal("expected malformed clock to be rejected")
	}
}
