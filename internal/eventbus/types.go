package eventbus

import "time"

// Event types published by autoshout components.
const (
	// TypePluginAction carries an ActionData. Emitted by the command router.
	TypePluginAction = "plugin.action"
	// TypeShoutRun is emitted after every shout run that reached dispatch.
	TypeShoutRun = "shout.run"
)

// ActionData is the payload of a plugin.action event: an action tag plus the
// channel and user that asked for it.
type ActionData struct {
	Action   string `json:"action"`
	Channel  string `json:"channel,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
	UserID   int64  `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
}

// RunEvent is the payload of a shout.run event.
type RunEvent struct {
	RunID   string        `json:"run_id"`
	Trigger string        `json:"trigger"`
	Sites   int           `json:"sites"`
	OK      int           `json:"ok"`
	Fail    int           `json:"fail"`
	Took    time.Duration `json:"took"`
}
