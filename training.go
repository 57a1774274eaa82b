package main

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/slack-go/slack"
)

const (
	actionAttendTraining  = "attend_training"
	actionCancelTraining  = "cancel_training"
	modalTrainingCallback = "training_schedule_modal"
	blockTrainingType     = "training_type"
	inputTrainingType     = "training_type_input"
	blockTrainingTime     = "training_time"
	inputTrainingTime     = "training_time_input"

	trainingDuration = 2 * time.Hour
	trainingMinLead  = time.Hour
	trainingMaxLead  = 2*time.Hour + 30*time.Minute

	attendeePlaceholder = "Click the button below to sign up!"
)

type trainingType struct {
	Name  string
	Glyph string
}

var trainingTypes = []trainingType{
	{"Basic Cadet - Trooper Training", "🎓"},
	{"Spike Training", "📌"},
	{"FTO Training", "👮"},
	{"Master FTO Training", "⭐"},
}

func trainingGlyph(name string) string {
	for _, t := range trainingTypes {
		if t.Name == name {
			return t.Glyph
		}
	}
	return ""
}

// trainingSlots computes the offerable start times relative to now: the
// first half-hour boundary at least one hour ahead (exact boundaries stay
// put), then one candidate every 30 minutes across a 2-hour span, both
// endpoints included. Pure; it only populates the selection list.
func trainingSlots(now time.Time) []time.Time {
	earliest := now.Add(trainingMinLead)
	year, month, day := earliest.Date()
	hour, min := earliest.Hour(), earliest.Minute()

	var first time.Time
	switch {
	case min == 0:
		first = time.Date(year, month, day, hour, 0, 0, 0, earliest.Location())
	case min <= 30:
		first = time.Date(year, month, day, hour, 30, 0, 0, earliest.Location())
	default:
		first = time.Date(year, month, day, hour+1, 0, 0, 0, earliest.Location())
	}

	slots := make([]time.Time, 0, 5)
	for t := first; !t.After(first.Add(trainingDuration)); t = t.Add(30 * time.Minute) {
		slots = append(slots, t)
	}
	return slots
}

func formatClockTime(t time.Time) string {
	return t.Format("3:04 PM")
}

// resolveStartTime maps a wall-clock "15:04" value onto the current date,
// rolling to the next day when that clock time has already passed today.
func resolveStartTime(now time.Time, clock string) (time.Time, error) {
	hour, min, err := parseClock(clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start time %q: %w", clock, err)
	}
	start := time.Date(now.Year(), now.Month(), now.Day(), hour, min, 0, 0, now.Location())
	if start.Before(now) {
		start = start.AddDate(0, 0, 1)
	}
	return start, nil
}

// TrainingCalendar owns the in-memory session registry, keyed by the
// announcement message timestamp. The registry resets on restart.
type TrainingCalendar struct {
	api   slackAPI
	cfg   Config
	now   func() time.Time
	store SessionStore

	mu       sync.Mutex
	sessions map[string]*TrainingSession
}

func NewTrainingCalendar(api slackAPI, cfg Config) *TrainingCalendar {
	return &TrainingCalendar{
		api:      api,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().In(cfg.Location) },
		store:    noopSessionStore{},
		sessions: make(map[string]*TrainingSession),
	}
}

// OpenScheduleModal opens the scheduling form: a training type select and a
// start time select populated from trainingSlots. The invoking channel is
// carried in the view metadata so the submission outcome can be reported
// back to the requester.
func (c *TrainingCalendar) OpenScheduleModal(triggerID, channelID string) {
	typeOptions := make([]*slack.OptionBlockObject, 0, len(trainingTypes))
	for _, t := range trainingTypes {
		typeOptions = append(typeOptions, slack.NewOptionBlockObject(
			t.Name,
			slack.NewTextBlockObject(slack.PlainTextType, fmt.Sprintf("%s %s", t.Name, t.Glyph), false, false),
			nil,
		))
	}
	typeSelect := slack.NewOptionsSelectBlockElement(
		slack.OptTypeStatic,
		slack.NewTextBlockObject(slack.PlainTextType, "Select the type of training", false, false),
		inputTrainingType,
		typeOptions...,
	)

	var timeOptions []*slack.OptionBlockObject
	for _, slot := range trainingSlots(c.now()) {
		timeOptions = append(timeOptions, slack.NewOptionBlockObject(
			slot.Format("15:04"),
			slack.NewTextBlockObject(slack.PlainTextType, formatClockTime(slot), false, false),
			nil,
		))
	}
	timeSelect := slack.NewOptionsSelectBlockElement(
		slack.OptTypeStatic,
		slack.NewTextBlockObject(slack.PlainTextType, "Select the start time", false, false),
		inputTrainingTime,
		timeOptions...,
	)

	view := slack.ModalViewRequest{
		Type:            slack.VTModal,
		Title:           slack.NewTextBlockObject(slack.PlainTextType, "Schedule Training", false, false),
		Close:           slack.NewTextBlockObject(slack.PlainTextType, "Cancel", false, false),
		Submit:          slack.NewTextBlockObject(slack.PlainTextType, "Schedule", false, false),
		CallbackID:      modalTrainingCallback,
		PrivateMetadata: channelID,
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			slack.NewInputBlock(blockTrainingType,
				slack.NewTextBlockObject(slack.PlainTextType, "Training type", false, false),
				nil, typeSelect),
			slack.NewInputBlock(blockTrainingTime,
				slack.NewTextBlockObject(slack.PlainTextType, "Start time (at least 1 hour from now)", false, false),
				nil, timeSelect),
		}},
	}

	if _, err := c.api.OpenView(triggerID, view); err != nil {
		log.Printf("training modal open error: %v", err)
	}
}

// Schedule validates the requested session and, on success, posts the
// announcement, attaches the roster and cancel controls, and registers the
// session for expiry. Rejections name the valid window and have no side
// effects.
func (c *TrainingCalendar) Schedule(notifyChannelID, hostID, trainingName, startClock string) {
	now := c.now()

	start, err := resolveStartTime(now, startClock)
	if err != nil {
		log.Printf("training schedule parse error host=%s: %v", hostID, err)
		c.notify(notifyChannelID, hostID, "❌ Invalid start time. Please pick one of the offered slots.")
		return
	}

	earliest := now.Add(trainingMinLead)
	latest := now.Add(trainingMaxLead)
	if start.Before(earliest) || start.After(latest) {
		c.notify(notifyChannelID, hostID, fmt.Sprintf(
			"❌ Please select a start time between %s and %s.",
			formatClockTime(earliest), formatClockTime(latest)))
		log.Printf("training schedule rejected host=%s start=%s window=[%s, %s]",
			hostID, formatClockTime(start), formatClockTime(earliest), formatClockTime(latest))
		return
	}

	session := TrainingSession{
		ChannelID: c.cfg.TrainingChannelID,
		Type:      trainingName,
		HostID:    hostID,
		StartTime: start,
		EndTime:   start.Add(trainingDuration),
	}

	_, ts, err := c.api.PostMessage(c.cfg.TrainingChannelID,
		slack.MsgOptionAttachments(trainingCard(session, c.cfg.TrainingVoiceLink).attachment()),
		slack.MsgOptionBlocks(trainingControls(hostID)...),
	)
	if err != nil {
		log.Printf("training post error host=%s: %v", hostID, err)
		c.notify(notifyChannelID, hostID, fmt.Sprintf("❌ Failed to post training session: %v", err))
		return
	}
	session.MessageTS = ts

	c.mu.Lock()
	c.sessions[ts] = &session
	c.mu.Unlock()
	if err := c.store.SaveSession(session); err != nil {
		log.Printf("session store save error ts=%s: %v", ts, err)
	}

	c.notify(notifyChannelID, hostID, fmt.Sprintf(
		"✅ Training session posted in <#%s>. It will be removed after the training ends.",
		c.cfg.TrainingChannelID))
	log.Printf("training scheduled type=%q host=%s start=%s ts=%s",
		trainingName, hostID, formatClockTime(start), ts)
}

// Attend appends the user to the session roster. Membership lives in the
// registry, not the rendered text; the announcement is re-rendered as a
// pure projection of the roster.
func (c *TrainingCalendar) Attend(channelID, messageTS, userID string) {
	c.mu.Lock()
	session, ok := c.sessions[messageTS]
	if !ok {
		c.mu.Unlock()
		c.notify(channelID, userID, "This training is no longer tracked.")
		return
	}
	for _, id := range session.Attendees {
		if id == userID {
			c.mu.Unlock()
			c.notify(channelID, userID, "You are already marked as attending!")
			return
		}
	}
	session.Attendees = append(session.Attendees, userID)
	snapshot := *session
	c.mu.Unlock()

	if err := c.store.SaveSession(snapshot); err != nil {
		log.Printf("session store save error ts=%s: %v", messageTS, err)
	}

	if _, _, _, err := c.api.UpdateMessage(channelID, messageTS,
		slack.MsgOptionAttachments(trainingCard(snapshot, c.cfg.TrainingVoiceLink).attachment()),
		slack.MsgOptionBlocks(trainingControls(snapshot.HostID)...),
	); err != nil {
		log.Printf("training roster render error ts=%s: %v", messageTS, err)
		c.notify(channelID, userID, "Error updating the attendee list.")
		return
	}
	c.notify(channelID, userID, "You have been marked as attending!")
	log.Printf("training attend ts=%s user=%s total=%d", messageTS, userID, len(snapshot.Attendees))
}

// Cancel deletes the announcement. Host-only; the registry entry is purged
// together with the message so a later sweep finds nothing stale.
func (c *TrainingCalendar) Cancel(channelID, messageTS, userID, hostValue string) {
	c.mu.Lock()
	session, tracked := c.sessions[messageTS]
	host := strings.TrimSpace(hostValue)
	if tracked {
		host = session.HostID
	}
	if userID != host || host == "" {
		c.mu.Unlock()
		c.notify(channelID, userID, "Only the host can cancel this training.")
		log.Printf("training cancel denied ts=%s user=%s host=%s", messageTS, userID, host)
		return
	}
	delete(c.sessions, messageTS)
	c.mu.Unlock()

	if _, _, err := c.api.DeleteMessage(channelID, messageTS); err != nil {
		log.Printf("training cancel delete error ts=%s: %v", messageTS, err)
	}
	if err := c.store.DeleteSession(messageTS); err != nil {
		log.Printf("session store delete error ts=%s: %v", messageTS, err)
	}
	c.notify(channelID, userID, "Training cancelled and message deleted.")
	log.Printf("training cancelled ts=%s host=%s", messageTS, userID)
}

// Sweep retires every session whose end time has passed: the announcement
// is deleted and the registry entry removed. Both steps run even when the
// delete fails, so an entry can never wedge the registry.
func (c *TrainingCalendar) Sweep() {
	now := c.now()

	c.mu.Lock()
	var expired []TrainingSession
	for ts, session := range c.sessions {
		if !session.EndTime.After(now) {
			expired = append(expired, *session)
			delete(c.sessions, ts)
		}
	}
	c.mu.Unlock()

	if len(expired) == 0 {
		return
	}

	removed, failed := 0, 0
	for _, session := range expired {
		if _, _, err := c.api.DeleteMessage(session.ChannelID, session.MessageTS); err != nil {
			failed++
			log.Printf("sweep delete error ts=%s: %v", session.MessageTS, err)
		} else {
			removed++
		}
		if err := c.store.DeleteSession(session.MessageTS); err != nil {
			log.Printf("session store delete error ts=%s: %v", session.MessageTS, err)
		}
	}
	log.Printf("training sweep expired=%d removed=%d failed=%d", len(expired), removed, failed)
}

// StartSweepScheduler runs the periodic sweep on the configured cron
// schedule (validated at startup).
func (c *TrainingCalendar) StartSweepScheduler() {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(c.cfg.SweepSchedule)
	if err != nil {
		log.Printf("Invalid sweep_schedule '%s': %v, sweep disabled", c.cfg.SweepSchedule, err)
		return
	}
	log.Printf("Training sweep scheduled (cron: %s)", c.cfg.SweepSchedule)

	go func() {
		for {
			now := c.now()
			next := sched.Next(now)
			time.Sleep(next.Sub(now))
			c.Sweep()
		}
	}()
}

func (c *TrainingCalendar) notify(channelID, userID, text string) {
	if _, err := c.api.PostEphemeral(channelID, userID, slack.MsgOptionText(text, false)); err != nil {
		log.Printf("Error posting ephemeral: %v", err)
	}
}

// trainingCard projects a session onto its announcement card.
func trainingCard(s TrainingSession, voiceLink string) Card {
	attendees := attendeePlaceholder
	if len(s.Attendees) > 0 {
		mentions := make([]string, 0, len(s.Attendees))
		for _, id := range s.Attendees {
			mentions = append(mentions, fmt.Sprintf("<@%s>", id))
		}
		attendees = strings.Join(mentions, "\n")
	}

	display := formatClockTime(s.StartTime)
	startValue := fmt.Sprintf("%s • <!date^%d^{time}|%s>", display, s.StartTime.Unix(), display)

	voiceRef := "the voice channel"
	if voiceLink != "" {
		voiceRef = fmt.Sprintf("the voice channel <%s|here>", voiceLink)
	}
	info := fmt.Sprintf("Plan on joining %s 10-15 minutes in advance.\nClick below if you are attending.", voiceRef)

	return Card{
		Title: fmt.Sprintf("%s %s", s.Type, trainingGlyph(s.Type)),
		Color: colorBlurple,
		Fields: []CardField{
			{Name: "👥 Attendees:", Value: attendees},
			{Name: "➡️ Start Time:", Value: startValue},
			{Name: "➡️ Hosted By:", Value: fmt.Sprintf("<@%s>", s.HostID)},
			{Name: "➡️ Information:", Value: info},
		},
	}
}

func trainingControls(hostID string) []slack.Block {
	attendBtn := slack.NewButtonBlockElement(
		actionAttendTraining, "attend",
		slack.NewTextBlockObject(slack.PlainTextType, "✅ Attending", false, false),
	).WithStyle(slack.StylePrimary)
	cancelBtn := slack.NewButtonBlockElement(
		actionCancelTraining, hostID,
		slack.NewTextBlockObject(slack.PlainTextType, "❌ Cancel Training", false, false),
	).WithStyle(slack.StyleDanger)
	return []slack.Block{slack.NewActionBlock("training_controls", attendBtn, cancelBtn)}
}
