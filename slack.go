package main

import (
	"log"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

// Capacity of the duplicate-envelope guard. Socket Mode redelivers
// unacknowledged envelopes, so the router remembers recent ones.
const eventDedupeCapacity = 1000

// slackAPI is the subset of the Slack Web API the bot invokes. Coordinators
// take the interface so the interaction flows are testable with a recording
// fake; *slack.Client satisfies it.
type slackAPI interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
	PostEphemeral(channelID, userID string, options ...slack.MsgOption) (string, error)
	UpdateMessage(channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
	DeleteMessage(channelID, timestamp string) (string, string, error)
	GetConversationReplies(params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error)
	UploadFileV2(params slack.UploadFileV2Parameters) (*slack.FileSummary, error)
	GetUserInfo(user string) (*slack.User, error)
	GetPermalink(params *slack.PermalinkParameters) (string, error)
	OpenView(triggerID string, view slack.ModalViewRequest) (*slack.ViewResponse, error)
}

func StartSupportBot(cfg Config, api *slack.Client, desk *TicketDesk, cal *TrainingCalendar) error {
	client := socketmode.New(api)
	seen := newRecentKeys(eventDedupeCapacity)

	go func() {
		for evt := range client.Events {
			switch evt.Type {
			case socketmode.EventTypeSlashCommand:
				client.Ack(*evt.Request)
				if duplicateEnvelope(seen, evt) {
					continue
				}
				cmd, ok := evt.Data.(slack.SlashCommand)
				if !ok {
					continue
				}
				log.Printf("Slash command received: %s from user=%s channel=%s", cmd.Command, cmd.UserID, cmd.ChannelID)
				go handleSlashCommand(desk, cal, cmd)
			case socketmode.EventTypeInteractive:
				client.Ack(*evt.Request)
				if duplicateEnvelope(seen, evt) {
					continue
				}
				cb, ok := evt.Data.(slack.InteractionCallback)
				if !ok {
					continue
				}
				go handleInteraction(desk, cal, cb)
			case socketmode.EventTypeEventsAPI:
				// Acknowledged so the platform stops redelivering; the
				// stateful workflows are all interaction-driven.
				client.Ack(*evt.Request)
			}
		}
	}()

	log.Println("Support bot connected via Socket Mode")
	return client.Run()
}

func duplicateEnvelope(seen *recentKeys, evt socketmode.Event) bool {
	if evt.Request == nil || evt.Request.EnvelopeID == "" {
		return false
	}
	if seen.Observe(evt.Request.EnvelopeID) {
		log.Printf("duplicate envelope suppressed id=%s", evt.Request.EnvelopeID)
		return true
	}
	return false
}

func handleSlashCommand(desk *TicketDesk, cal *TrainingCalendar, cmd slack.SlashCommand) {
	switch cmd.Command {
	case "/support-panel":
		desk.PublishPanel(cmd.ChannelID, cmd.UserID)
	case "/training":
		cal.OpenScheduleModal(cmd.TriggerID, cmd.ChannelID)
	}
}

func handleInteraction(desk *TicketDesk, cal *TrainingCalendar, cb slack.InteractionCallback) {
	switch cb.Type {
	case slack.InteractionTypeBlockActions:
		handleBlockActions(desk, cal, cb)
	case slack.InteractionTypeViewSubmission:
		handleViewSubmission(cal, cb)
	}
}

func handleBlockActions(desk *TicketDesk, cal *TrainingCalendar, cb slack.InteractionCallback) {
	if len(cb.ActionCallback.BlockActions) == 0 {
		return
	}
	act := cb.ActionCallback.BlockActions[0]
	channelID := cb.Channel.ID
	if channelID == "" {
		channelID = cb.Container.ChannelID
	}
	messageTS := cb.Message.Timestamp
	if messageTS == "" {
		messageTS = cb.Container.MessageTs
	}
	userID := cb.User.ID

	switch act.ActionID {
	case actionTicketType:
		category := strings.TrimSpace(act.SelectedOption.Value)
		if category == "" {
			return
		}
		desk.CreateTicket(channelID, userID, cb.User.Name, category)
	case actionClaimTicket:
		desk.Claim(channelID, messageTS, userID, act.Value)
	case actionShowCloseMenu:
		desk.ShowCloseMenu(channelID, messageTS, userID, act.Value)
	case actionCloseTranscript:
		desk.CloseTranscript(channelID, userID, act.Value)
	case actionCloseDelete:
		desk.CloseDelete(channelID, userID, act.Value)
	case actionAttendTraining:
		cal.Attend(channelID, messageTS, userID)
	case actionCancelTraining:
		cal.Cancel(channelID, messageTS, userID, act.Value)
	}
}

func handleViewSubmission(cal *TrainingCalendar, cb slack.InteractionCallback) {
	if cb.View.CallbackID != modalTrainingCallback {
		return
	}
	if cb.View.State == nil || cb.View.State.Values == nil {
		return
	}
	values := cb.View.State.Values
	trainingName := strings.TrimSpace(values[blockTrainingType][inputTrainingType].SelectedOption.Value)
	startClock := strings.TrimSpace(values[blockTrainingTime][inputTrainingTime].SelectedOption.Value)
	if trainingName == "" || startClock == "" {
		return
	}

	channelID := strings.TrimSpace(cb.View.PrivateMetadata)
	if channelID == "" {
		channelID = cb.Container.ChannelID
	}
	cal.Schedule(channelID, cb.User.ID, trainingName, startClock)
}
