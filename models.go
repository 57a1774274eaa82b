package main

import "time"

type ticketState int

const (
	ticketOpen        ticketState = iota
	ticketClosingSoft             // transcript delivered, lock render pending
	ticketClosingHard             // delete pending
	ticketClosedSoft
	ticketClosedHard
)

type Ticket struct {
	ID        int
	ChannelID string
	ThreadTS  string // thread root message timestamp, 1:1 with the ticket
	Category  string
	Requester string // Slack user ID of the opener
	Claimed   bool   // false->true only
	ClaimedBy string // set exactly once, with Claimed
	State     ticketState
}

// Key identifies the ticket's owning thread.
func (t Ticket) Key() string {
	return t.ChannelID + "|" + t.ThreadTS
}

type TrainingSession struct {
	MessageTS string // announcement message timestamp (registry key)
	ChannelID string
	Type      string
	HostID    string // sole authority to cancel
	StartTime time.Time
	EndTime   time.Time // StartTime + 2h
	Attendees []string  // user IDs, unique, insertion order preserved
}

// TicketStore is the persistence boundary for ticket state. The bot keeps
// all state in memory and resets to empty on restart; the default store is
// a no-op so the boundary stays explicit without implying durability.
type TicketStore interface {
	SaveTicket(t Ticket) error
	DeleteTicket(key string) error
}

// SessionStore is the persistence boundary for the training registry.
type SessionStore interface {
	SaveSession(s TrainingSession) error
	DeleteSession(messageTS string) error
}

type noopTicketStore struct{}

func (noopTicketStore) SaveTicket(Ticket) error   { return nil }
func (noopTicketStore) DeleteTicket(string) error { return nil }

type noopSessionStore struct{}

func (noopSessionStore) SaveSession(TrainingSession) error { return nil }
func (noopSessionStore) DeleteSession(string) error        { return nil }
