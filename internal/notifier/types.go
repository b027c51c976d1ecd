package notifier

import (
	"strings"
	"time"

	"autoshout/internal/transport"
)

// Config controls the async notification pipeline.
type Config struct {
	Enabled       bool
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration

	// DefaultTarget receives broadcasts (messages with no Target).
	DefaultTarget transport.ChatTarget
}

type MessageType string

const (
	TypeSiteMessage MessageType = "SiteMessage"
	TypePlugin      MessageType = "Plugin"
)

// Message is one notification. Title and Text are both optional.
type Message struct {
	Channel string
	// Target is nil for broadcasts.
	Target *transport.ChatTarget
	UserID int64
	Title  string
	Text   string
	Type   MessageType
}

// Render joins title and text with a blank line.
func (m Message) Render() string {
	title := strings.TrimSpace(m.Title)
	text := strings.TrimRight(m.Text, "\n")
	switch {
	case title == "":
		return text
	case text == "":
		return title
	default:
		return title + "\n\n" + text
	}
}

type HistoryItem struct {
	At   time.Time
	Type MessageType
	Text string
}

// NotificationEvent is emitted on the event bus for notifier lifecycle events.
type NotificationEvent struct {
	Channel  string      `json:"channel"`
	ChatID   int64       `json:"chat_id"`
	ThreadID int         `json:"thread_id,omitempty"`
	Type     MessageType `json:"type"`
	At       time.Time   `json:"at"`
	Error    string      `json:"error,omitempty"`
}

// Event types published on the bus.
const (
	EventQueued  = "notifier.queued"
	EventSent    = "notifier.sent"
	EventFailed  = "notifier.failed"
	EventDropped = "notifier.dropped"
)
