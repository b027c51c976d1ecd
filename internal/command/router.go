// Package command turns chat commands into plugin.action events.
package command

import (
	"context"
	"strings"
	"sync"
	"time"

	"autoshout/internal/eventbus"
	"autoshout/internal/transport"
	logx "autoshout/pkg/logx"
)

// Route maps a slash command (without the slash) to an action tag.
type Route struct {
	Command     string
	Action      string
	Description string
}

// Router reads updates, keeps owner-issued commands it knows and publishes
// them as plugin.action events.
type Router struct {
	channel string
	bus     eventbus.Bus
	log     logx.Logger

	mu      sync.RWMutex
	owners  map[int64]struct{}
	botName string
	routes  map[string]Route
}

func NewRouter(channel string, bus eventbus.Bus, log logx.Logger, routes ...Route) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{channel: channel, bus: bus, log: log, routes: map[string]Route{}}
	for _, rt := range routes {
		r.routes[strings.ToLower(rt.Command)] = rt
	}
	return r
}

// SetOwners replaces the set of users allowed to issue commands.
func (r *Router) SetOwners(ids []int64) {
	owners := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		owners[id] = struct{}{}
	}
	r.mu.Lock()
	r.owners = owners
	r.mu.Unlock()
}

// SetBotName makes /cmd@<name> match; other bot suffixes are ignored.
func (r *Router) SetBotName(name string) {
	r.mu.Lock()
	r.botName = strings.ToLower(strings.TrimPrefix(name, "@"))
	r.mu.Unlock()
}

func (r *Router) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Route, 0, len(r.routes))
	for _, rt := range r.routes {
		out = append(out, rt)
	}
	return out
}

// Run consumes updates until ctx is done or in is closed.
func (r *Router) Run(ctx context.Context, in <-chan transport.Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-in:
			if !ok {
				return nil
			}
			r.Handle(up)
		}
	}
}

// Handle routes one update. It reports whether an action was published.
func (r *Router) Handle(up transport.Update) bool {
	if up.Kind != transport.UpdateMessage || up.Message == nil {
		return false
	}
	m := up.Message
	cmd, ok := r.parse(m.Text)
	if !ok {
		return false
	}

	r.mu.RLock()
	rt, known := r.routes[cmd]
	_, owner := r.owners[m.FromID]
	r.mu.RUnlock()
	if !known {
		return false
	}
	if !owner {
		r.log.Warn("command from non-owner ignored", logx.String("command", cmd), logx.Int64("user_id", m.FromID), logx.String("username", m.FromUsername))
		return false
	}

	r.log.Info("command received", logx.String("command", cmd), logx.Int64("user_id", m.FromID))
	r.bus.Publish(eventbus.Event{
		Type: eventbus.TypePluginAction,
		Time: time.Now(),
		Data: eventbus.ActionData{
			Action:   rt.Action,
			Channel:  r.channel,
			ChatID:   m.ChatID,
			ThreadID: m.ThreadID,
			UserID:   m.FromID,
			Username: m.FromUsername,
		},
	})
	return true
}

// parse extracts "shout" from "/shout", "/shout@bot" or "/shout extra args".
func (r *Router) parse(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	word, _, _ := strings.Cut(text[1:], " ")
	word = strings.ToLower(word)
	cmd, target, hasTarget := strings.Cut(word, "@")
	if cmd == "" {
		return "", false
	}
	if hasTarget {
		r.mu.RLock()
		bot := r.botName
		r.mu.RUnlock()
		if bot == "" || target != bot {
			return "", false
		}
	}
	return cmd, true
}
