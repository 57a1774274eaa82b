package main

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
)

const (
	actionTicketType      = "ticket_type_select"
	actionClaimTicket     = "claim_ticket"
	actionShowCloseMenu   = "show_close_options"
	actionCloseTranscript = "close_transcript"
	actionCloseDelete     = "close_delete"

	publishCooldown  = 2 * time.Second
	closeMenuTimeout = 60 * time.Second
	closeActionDelay = 2 * time.Second
)

type ticketCategory struct {
	Value       string
	Label       string
	Emoji       string
	Description string
}

var ticketCategories = []ticketCategory{
	{"support", "Support", "🛠️", "Get help from our team"},
	{"general", "General Question", "❓", "Ask a general question"},
	{"report", "Report User", "🚨", "Report a user to staff"},
}

func categoryLabel(value string) string {
	for _, c := range ticketCategories {
		if c.Value == value {
			return c.Label
		}
	}
	return strings.ReplaceAll(value, "_", " ")
}

// TicketDesk owns all ticket state: the sequential id counter and the
// per-thread ticket records. Every mutation goes through the desk mutex;
// guarded transitions re-check state after acquiring it, so the second of
// two racing claim clicks observes the already-set flag.
type TicketDesk struct {
	api      slackAPI
	cfg      Config
	exporter *TranscriptExporter
	now      func() time.Time
	schedule func(d time.Duration, f func())
	store    TicketStore

	mu          sync.Mutex
	nextID      int
	tickets     map[string]*Ticket
	lastPublish map[string]time.Time
}

func NewTicketDesk(api slackAPI, cfg Config) *TicketDesk {
	return &TicketDesk{
		api:      api,
		cfg:      cfg,
		exporter: &TranscriptExporter{api: api, cfg: cfg},
		now:      func() time.Time { return time.Now().In(cfg.Location) },
		schedule: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		store:    noopTicketStore{},

		nextID:      1,
		tickets:     make(map[string]*Ticket),
		lastPublish: make(map[string]time.Time),
	}
}

// PublishPanel posts the ticket panel to the invoking channel. Manager-only,
// with a short per-user cooldown against double submission.
func (d *TicketDesk) PublishPanel(channelID, userID string) {
	if !d.cfg.IsManagerID(userID) {
		d.notify(channelID, "", userID, "You don't have permission to use this command!")
		log.Printf("publish denied user=%s", userID)
		return
	}

	d.mu.Lock()
	now := d.now()
	if last, ok := d.lastPublish[userID]; ok && now.Sub(last) < publishCooldown {
		d.mu.Unlock()
		d.notify(channelID, "", userID, "You are on cooldown. Try again in a moment.")
		return
	}
	d.lastPublish[userID] = now
	d.mu.Unlock()

	var lines []string
	lines = append(lines,
		"Welcome to the support center!",
		"Select your ticket type below.",
		"",
		"*Options:*",
	)
	options := make([]*slack.OptionBlockObject, 0, len(ticketCategories))
	for _, c := range ticketCategories {
		lines = append(lines, fmt.Sprintf("%s %s: %s", c.Emoji, c.Label, c.Description))
		options = append(options, slack.NewOptionBlockObject(
			c.Value,
			slack.NewTextBlockObject(slack.PlainTextType, fmt.Sprintf("%s %s", c.Emoji, c.Label), false, false),
			slack.NewTextBlockObject(slack.PlainTextType, c.Description, false, false),
		))
	}
	selector := slack.NewOptionsSelectBlockElement(
		slack.OptTypeStatic,
		slack.NewTextBlockObject(slack.PlainTextType, "Select your ticket type...", false, false),
		actionTicketType,
		options...,
	)

	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, "🎫 Need Help? Open a Ticket!", false, false)),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, strings.Join(lines, "\n"), false, false), nil, nil),
		slack.NewActionBlock("ticket_panel", selector),
		slack.NewContextBlock("ticket_panel_footer",
			slack.NewTextBlockObject(slack.MarkdownType, "Our team will respond as soon as possible.", false, false)),
	}

	if _, _, err := d.api.PostMessage(channelID, slack.MsgOptionBlocks(blocks...)); err != nil {
		log.Printf("publish panel error channel=%s: %v", channelID, err)
		d.notify(channelID, "", userID, "Error publishing the ticket panel.")
		return
	}
	log.Printf("ticket panel published channel=%s by=%s", channelID, userID)
}

// CreateTicket allocates the next id and opens the ticket thread: a root
// control message in the panel channel whose replies form the conversation.
// The id counter is process-lifetime monotonic; a failed thread creation
// burns the id rather than reusing it.
func (d *TicketDesk) CreateTicket(channelID, userID, userName, category string) {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.mu.Unlock()

	t := Ticket{
		ID:        id,
		ChannelID: channelID,
		Category:  category,
		Requester: userID,
		State:     ticketOpen,
	}
	threadName := fmt.Sprintf("ticket-%03d-%s", id, userName)

	_, ts, err := d.api.PostMessage(channelID,
		slack.MsgOptionText(threadName, false),
		slack.MsgOptionBlocks(ticketRootBlocks(t, threadName, d.cfg.SupportGroupID)...),
	)
	if err != nil {
		log.Printf("ticket create error user=%s category=%s: %v", userID, category, err)
		d.notify(channelID, "", userID, "Error: could not create the ticket thread. Please try again.")
		return
	}
	t.ThreadTS = ts

	d.mu.Lock()
	d.tickets[t.Key()] = &t
	d.mu.Unlock()
	if err := d.store.SaveTicket(t); err != nil {
		log.Printf("ticket store save error id=%d: %v", t.ID, err)
	}

	ref := threadName
	if link, linkErr := d.api.GetPermalink(&slack.PermalinkParameters{Channel: channelID, Ts: ts}); linkErr == nil && link != "" {
		ref = fmt.Sprintf("<%s|%s>", link, threadName)
	}
	d.notify(channelID, "", userID, fmt.Sprintf("Ticket created: %s", ref))
	log.Printf("ticket created id=%d user=%s category=%s ts=%s", id, userID, category, ts)
}

// Claim assigns the ticket to the first responding staff member. The flag
// flips false->true exactly once; later attempts get a private rejection
// and trigger no re-render.
func (d *TicketDesk) Claim(channelID, threadTS, userID, value string) {
	d.mu.Lock()
	t := d.lookupOrRegister(channelID, threadTS, value)
	if t.State != ticketOpen {
		d.mu.Unlock()
		d.notify(channelID, threadTS, userID, "This ticket is already closed.")
		return
	}
	if t.Claimed {
		d.mu.Unlock()
		d.notify(channelID, threadTS, userID, "This ticket has already been claimed.")
		log.Printf("claim rejected ticket=%d user=%s already=%s", t.ID, userID, t.ClaimedBy)
		return
	}
	t.Claimed = true
	t.ClaimedBy = userID
	snapshot := *t
	d.mu.Unlock()

	if err := d.store.SaveTicket(snapshot); err != nil {
		log.Printf("ticket store save error id=%d: %v", snapshot.ID, err)
	}

	threadName := fmt.Sprintf("ticket-%03d", snapshot.ID)
	if _, _, _, err := d.api.UpdateMessage(channelID, threadTS,
		slack.MsgOptionBlocks(ticketRootBlocks(snapshot, threadName, d.cfg.SupportGroupID)...),
	); err != nil {
		log.Printf("claim re-render error ticket=%d: %v", snapshot.ID, err)
	}
	if _, _, err := d.api.PostMessage(channelID,
		slack.MsgOptionTS(threadTS),
		slack.MsgOptionText(fmt.Sprintf("Ticket claimed by <@%s>.", userID), false),
	); err != nil {
		log.Printf("claim announce error ticket=%d: %v", snapshot.ID, err)
	}
	log.Printf("ticket claimed id=%d by=%s", snapshot.ID, userID)
}

// ShowCloseMenu sends the invoker an ephemeral menu with the two terminal
// actions. The menu expires after closeMenuTimeout: the deadline rides in
// the button values and expired clicks are silent no-ops, since an
// ephemeral message cannot be withdrawn after the fact.
func (d *TicketDesk) ShowCloseMenu(channelID, threadTS, userID, value string) {
	d.mu.Lock()
	t := d.lookupOrRegister(channelID, threadTS, value)
	state := t.State
	d.mu.Unlock()
	if state != ticketOpen {
		d.notify(channelID, threadTS, userID, "This ticket is already closed.")
		return
	}

	deadline := d.now().Add(closeMenuTimeout).Unix()
	val := fmt.Sprintf("%s|%d", threadTS, deadline)

	transcriptBtn := slack.NewButtonBlockElement(
		actionCloseTranscript, val,
		slack.NewTextBlockObject(slack.PlainTextType, "Transcript & Close Ticket", false, false),
	).WithStyle(slack.StyleDanger)
	deleteBtn := slack.NewButtonBlockElement(
		actionCloseDelete, val,
		slack.NewTextBlockObject(slack.PlainTextType, "Delete Ticket", false, false),
	).WithStyle(slack.StyleDanger)

	blocks := []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType,
				"*Close Ticket Options*\nClick an action below to process this ticket:", false, false),
			nil, nil),
		slack.NewActionBlock("close_options", transcriptBtn, deleteBtn),
	}

	if _, err := d.api.PostEphemeral(channelID, userID,
		slack.MsgOptionTS(threadTS),
		slack.MsgOptionBlocks(blocks...),
	); err != nil {
		log.Printf("close menu error ticket=%d user=%s: %v", t.ID, userID, err)
	}
}

// CloseTranscript is the soft close: export the thread transcript to the
// archive channel, then archive-lock the root message after a short pause.
func (d *TicketDesk) CloseTranscript(channelID, userID, value string) {
	threadTS, expired, ok := d.parseCloseValue(value)
	if !ok {
		return
	}
	if expired {
		log.Printf("close menu expired channel=%s user=%s", channelID, userID)
		return
	}

	d.mu.Lock()
	t := d.lookupOrRegister(channelID, threadTS, "")
	if t.State != ticketOpen {
		d.mu.Unlock()
		d.notify(channelID, threadTS, userID, "This ticket is already being closed.")
		return
	}
	t.State = ticketClosingSoft
	snapshot := *t
	d.mu.Unlock()

	if err := d.exporter.Export(channelID, threadTS); err != nil {
		log.Printf("transcript export error ticket=%d: %v", snapshot.ID, err)
		d.mu.Lock()
		t.State = ticketOpen
		d.mu.Unlock()
		d.notify(channelID, threadTS, userID, "Error exporting the transcript. The ticket remains open.")
		return
	}

	d.notify(channelID, threadTS, userID, "📄 Transcript delivered. This ticket is now closed (locked).")

	d.schedule(closeActionDelay, func() {
		d.mu.Lock()
		if t.State != ticketClosingSoft {
			d.mu.Unlock()
			return
		}
		t.State = ticketClosedSoft
		final := *t
		d.mu.Unlock()

		threadName := fmt.Sprintf("ticket-%03d", final.ID)
		if _, _, _, err := d.api.UpdateMessage(channelID, threadTS,
			slack.MsgOptionBlocks(ticketRootBlocks(final, threadName, d.cfg.SupportGroupID)...),
		); err != nil {
			// Delayed action; the error is surfaced nowhere else, so swallow it.
			log.Printf("soft close render error ticket=%d: %v", final.ID, err)
		}
		if err := d.store.SaveTicket(final); err != nil {
			log.Printf("ticket store save error id=%d: %v", final.ID, err)
		}
		log.Printf("ticket closed soft id=%d by=%s", final.ID, userID)
	})
}

// CloseDelete is the hard close: destroy the ticket thread after a short
// pause. Irreversible.
func (d *TicketDesk) CloseDelete(channelID, userID, value string) {
	threadTS, expired, ok := d.parseCloseValue(value)
	if !ok {
		return
	}
	if expired {
		log.Printf("close menu expired channel=%s user=%s", channelID, userID)
		return
	}

	d.mu.Lock()
	t := d.lookupOrRegister(channelID, threadTS, "")
	if t.State != ticketOpen {
		d.mu.Unlock()
		d.notify(channelID, threadTS, userID, "This ticket is already being closed.")
		return
	}
	t.State = ticketClosingHard
	snapshot := *t
	d.mu.Unlock()

	d.notify(channelID, threadTS, userID, "🗑️ Deleting ticket...")

	d.schedule(closeActionDelay, func() {
		d.mu.Lock()
		if t.State != ticketClosingHard {
			d.mu.Unlock()
			return
		}
		t.State = ticketClosedHard
		delete(d.tickets, t.Key())
		d.mu.Unlock()

		if _, _, err := d.api.DeleteMessage(channelID, threadTS); err != nil {
			// Delayed destructive action: swallow, never retry.
			log.Printf("ticket delete error id=%d: %v", snapshot.ID, err)
		}
		if err := d.store.DeleteTicket(snapshot.Key()); err != nil {
			log.Printf("ticket store delete error id=%d: %v", snapshot.ID, err)
		}
		log.Printf("ticket deleted id=%d by=%s", snapshot.ID, userID)
	})
}

// lookupOrRegister finds the ticket owning the thread, or registers a fresh
// open record for it. Control values are self-describing so panels posted
// before a restart stay actionable; the claim flag resets with the process.
// Caller must hold d.mu.
func (d *TicketDesk) lookupOrRegister(channelID, threadTS, value string) *Ticket {
	key := channelID + "|" + threadTS
	if t, ok := d.tickets[key]; ok {
		return t
	}
	id, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		id = 0
	}
	t := &Ticket{
		ID:        id,
		ChannelID: channelID,
		ThreadTS:  threadTS,
		State:     ticketOpen,
	}
	d.tickets[key] = t
	return t
}

func (d *TicketDesk) parseCloseValue(value string) (threadTS string, expired, ok bool) {
	tsPart, deadlinePart, found := strings.Cut(value, "|")
	if !found || tsPart == "" {
		return "", false, false
	}
	deadline, err := strconv.ParseInt(deadlinePart, 10, 64)
	if err != nil {
		return "", false, false
	}
	return tsPart, d.now().After(time.Unix(deadline, 0)), true
}

func (d *TicketDesk) notify(channelID, threadTS, userID, text string) {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	if _, err := d.api.PostEphemeral(channelID, userID, opts...); err != nil {
		log.Printf("Error posting ephemeral: %v", err)
	}
}

// ticketRootBlocks projects a ticket onto its thread-root control message.
// Open tickets carry claim and close controls; a claimed ticket loses the
// claim button; terminal states carry no controls at all.
func ticketRootBlocks(t Ticket, threadName, supportGroupID string) []slack.Block {
	support := "our support team"
	if supportGroupID != "" {
		support = fmt.Sprintf("<!subteam^%s>", supportGroupID)
	}
	text := fmt.Sprintf("*%s*\nThank you for opening a ticket! %s will be with you shortly.\n*Ticket Type:* %s",
		threadName, support, categoryLabel(t.Category))

	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
	}

	switch t.State {
	case ticketClosedSoft:
		blocks = append(blocks, slack.NewContextBlock("ticket_status",
			slack.NewTextBlockObject(slack.MarkdownType, "🔒 This ticket is closed and locked.", false, false)))
		return blocks
	case ticketClosedHard:
		return blocks
	}

	if t.Claimed {
		blocks = append(blocks, slack.NewContextBlock("ticket_status",
			slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("Claimed by <@%s>", t.ClaimedBy), false, false)))
	}

	val := strconv.Itoa(t.ID)
	var controls []slack.BlockElement
	if !t.Claimed {
		controls = append(controls, slack.NewButtonBlockElement(
			actionClaimTicket, val,
			slack.NewTextBlockObject(slack.PlainTextType, "Claim Ticket", false, false),
		).WithStyle(slack.StylePrimary))
	}
	controls = append(controls, slack.NewButtonBlockElement(
		actionShowCloseMenu, val,
		slack.NewTextBlockObject(slack.PlainTextType, "Close Ticket", false, false),
	).WithStyle(slack.StyleDanger))
	blocks = append(blocks, slack.NewActionBlock("ticket_controls", controls...))
	return blocks
}
