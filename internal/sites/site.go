// Package sites is the registry of tracker sites a shout can be sent to.
package sites

import (
	"errors"
	"strings"

	"autoshout/internal/config"
)

var (
	ErrMissingURL    = errors.New("site url is missing")
	ErrMissingCookie = errors.New("site cookie is missing")
)

// Site is everything needed to reach and authenticate against one tracker site.
type Site struct {
	ID     string
	Name   string
	URL    string
	Cookie string
	UA     string
	Proxy  bool
	Public bool
}

// Validate reports whether the site has the fields a shout request needs.
func (s Site) Validate() error {
	if strings.TrimSpace(s.URL) == "" {
		return ErrMissingURL
	}
	if strings.TrimSpace(s.Cookie) == "" {
		return ErrMissingCookie
	}
	return nil
}

// Label returns the display name, falling back to the id.
func (s Site) Label() string {
	if n := strings.TrimSpace(s.Name); n != "" {
		return n
	}
	return s.ID
}

func fromConfig(c config.SiteConfig) Site {
	return Site{
		ID:     strings.TrimSpace(c.ID),
		Name:   strings.TrimSpace(c.Name),
		URL:    strings.TrimSpace(c.URL),
		Cookie: strings.TrimSpace(c.Cookie),
		UA:     strings.TrimSpace(c.UA),
		Proxy:  c.Proxy,
		Public: c.Public,
	}
}
