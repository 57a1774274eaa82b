package main

import (
	"log"
	"os"

	"github.com/slack-go/slack"
)

func main() {
	cfg := LoadConfig()

	os.MkdirAll(cfg.TranscriptDir, 0755)

	api := slack.New(
		cfg.SlackBotToken,
		slack.OptionAppLevelToken(cfg.SlackAppToken),
	)

	desk := NewTicketDesk(api, cfg)
	cal := NewTrainingCalendar(api, cfg)
	cal.StartSweepScheduler()

	log.Println("Starting Community Support Bot...")
	if err := StartSupportBot(cfg, api, desk, cal); err != nil {
		log.Fatalf("Slack bot error: %v", err)
	}
}
