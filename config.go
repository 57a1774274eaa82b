package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	SlackBotToken string `yaml:"slack_bot_token"`
	SlackAppToken string `yaml:"slack_app_token"`

	// Channel that receives exported ticket transcripts.
	TranscriptChannelID string `yaml:"transcript_channel_id"`
	// Channel that receives training session announcements.
	TrainingChannelID string `yaml:"training_channel_id"`

	// Slack user group tagged in new tickets, e.g. "S0123ABCD". Optional.
	SupportGroupID string `yaml:"support_group_id"`
	// Voice channel link shown in training announcements. Optional.
	TrainingVoiceLink string `yaml:"training_voice_link"`

	// User IDs allowed to publish the ticket panel.
	ManagerIDs []string `yaml:"manager_ids"`

	TranscriptDir string `yaml:"transcript_dir"`
	SweepSchedule string `yaml:"sweep_schedule"`
	Timezone      string `yaml:"timezone"`

	Location *time.Location `yaml:"-"`
}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackAppToken, "SLACK_APP_TOKEN")
	envOverride(&cfg.TranscriptChannelID, "TRANSCRIPT_CHANNEL_ID")
	envOverride(&cfg.TrainingChannelID, "TRAINING_CHANNEL_ID")
	envOverride(&cfg.SupportGroupID, "SUPPORT_GROUP_ID")
	envOverride(&cfg.TrainingVoiceLink, "TRAINING_VOICE_LINK")
	envOverride(&cfg.TranscriptDir, "TRANSCRIPT_DIR")
	envOverride(&cfg.SweepSchedule, "SWEEP_SCHEDULE")
	envOverride(&cfg.Timezone, "TIMEZONE")
	envOverrideList(&cfg.ManagerIDs, "MANAGER_IDS")

	// Defaults
	if cfg.TranscriptDir == "" {
		cfg.TranscriptDir = "./transcripts"
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = "* * * * *"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	// Validate required fields
	required := map[string]string{
		"slack_bot_token":       cfg.SlackBotToken,
		"slack_app_token":       cfg.SlackAppToken,
		"transcript_channel_id": cfg.TranscriptChannelID,
		"training_channel_id":   cfg.TrainingChannelID,
	}
	for name, val := range required {
		if val == "" {
			log.Fatalf("Required config '%s' is not set (via config.yaml or env var)", name)
		}
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("invalid timezone '%s': %v", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(cfg.SweepSchedule); err != nil {
		log.Fatalf("invalid sweep_schedule '%s': %v", cfg.SweepSchedule, err)
	}

	return cfg
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideList(field *[]string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = nil
		for _, item := range strings.Split(val, ",") {
			item = strings.TrimSpace(item)
			if item != "" {
				*field = append(*field, item)
			}
		}
	}
}

// IsManagerID reports whether the given Slack user ID may publish the
// ticket panel.
func (c Config) IsManagerID(userID string) bool {
	userID = strings.TrimSpace(userID)
	for _, id := range c.ManagerIDs {
		if strings.TrimSpace(id) == userID {
			return true
		}
	}
	return false
}

func parseClock(s string) (int, int, error) {
	var hour, min int
	_, err := fmt.Sscanf(s, "%d:%d", &hour, &min)
	if err != nil {
		return 0, 0, err
	}
	if hour < 0 || hour > 23 || min < 0 || min > 59 {
		return 0, 0, fmt.Errorf("time out of range: %02d:%02d", hour, min)
	}
	return hour, min, nil
}
