package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks a parsed config before it is committed.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("http.timeout", cfg.HTTP.Timeout); err != nil {
		return err
	}
	if p := strings.TrimSpace(cfg.HTTP.Proxy); p != "" {
		u, err := url.Parse(p)
		if err != nil {
			return fmt.Errorf("http.proxy: %w", err)
		}
		switch u.Scheme {
		case "http", "https", "socks5", "socks5h":
		default:
			return fmt.Errorf("http.proxy: unsupported scheme %q", u.Scheme)
		}
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}
	if n := cfg.Notifier; n != nil {
		if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 {
			return fmt.Errorf("notifier: numeric fields must be >= 0")
		}
		if _, err := ParseDurationField("notifier.retry_base", n.RetryBase); err != nil {
			return err
		}
		if _, err := ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay); err != nil {
			return err
		}
	}
	if s := cfg.Storage; s != nil {
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			return err
		}
	}

	seen := map[string]string{}
	check := func(path string, sites []SiteConfig) error {
		for i, s := range sites {
			id := strings.TrimSpace(s.ID)
			if id == "" {
				return fmt.Errorf("%s[%d].id: required", path, i)
			}
			if prev, ok := seen[id]; ok {
				return fmt.Errorf("%s[%d].id: duplicate %q (already used by %s)", path, i, id, prev)
			}
			seen[id] = fmt.Sprintf("%s[%d]", path, i)
		}
		return nil
	}
	if err := check("indexers", cfg.Indexers); err != nil {
		return err
	}
	return check("custom_sites.sites", cfg.CustomSites.Sites)
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
