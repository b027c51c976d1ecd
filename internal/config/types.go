package config

// Config is the whole autoshout configuration file (JSON or YAML).
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// Notifier controls the async notification pipeline.
	// If omitted, the notifier defaults to enabled.
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`

	HTTP HTTPConfig `json:"http"`

	// Indexers are the built-in tracker sites known to the host.
	Indexers []SiteConfig `json:"indexers"`
	// CustomSites are user-defined sites, only visible when enabled.
	CustomSites CustomSitesConfig `json:"custom_sites"`

	Shout ShoutConfig `json:"shout"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// NotifyChat is the chat id that receives broadcast notifications.
	NotifyChat   string `json:"notify_chat"`
	NotifyThread int    `json:"notify_thread,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the trigger service.
type SchedulerConfig struct {
	// Timezone is an IANA name, e.g. "Asia/Shanghai". Empty means local time.
	Timezone string `json:"timezone,omitempty"`
}

// NotifierConfig controls the async notification pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s").
type NotifierConfig struct {
	Enabled       bool   `json:"enabled"`
	Workers       int    `json:"workers"`
	QueueSize     int    `json:"queue_size"`
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
}

// StorageConfig controls where site health statistics and run history live.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/autoshout.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// HTTPConfig controls the outbound client used for shoutbox requests.
type HTTPConfig struct {
	// Timeout is a Go duration string; default 30s.
	Timeout string `json:"timeout,omitempty"`
	// UserAgent is used when a site has no ua of its own.
	UserAgent string `json:"user_agent,omitempty"`
	// Proxy applies to sites with proxy=true. http://, https://, socks5:// and socks5h:// are accepted.
	Proxy string `json:"proxy,omitempty"`
}

// SiteConfig describes one tracker site and its credentials.
type SiteConfig struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Cookie string `json:"cookie,omitempty"`
	UA     string `json:"ua,omitempty"`
	Proxy  bool   `json:"proxy,omitempty"`
	Public bool   `json:"public,omitempty"`
}

type CustomSitesConfig struct {
	Enabled bool         `json:"enabled"`
	Sites   []SiteConfig `json:"sites,omitempty"`
}

// ShoutConfig is the persisted record of the shout plugin.
type ShoutConfig struct {
	Enabled bool `json:"enabled"`
	// Cron is a 5- or 6-field cron expression. Empty means daily at 09:00.
	Cron string `json:"cron"`
	// OnlyOnce triggers one run shortly after load and clears itself.
	OnlyOnce   bool     `json:"onlyonce"`
	Notify     bool     `json:"notify"`
	ShoutSites []string `json:"shout_sites"`
	ShoutText  string   `json:"shout_text"`
}

// Clone returns a deep copy, so callers can mutate and Save without racing readers.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Telegram.OwnerUserIDs = append([]int64(nil), c.Telegram.OwnerUserIDs...)
	if c.Notifier != nil {
		n := *c.Notifier
		cp.Notifier = &n
	}
	if c.Storage != nil {
		s := *c.Storage
		cp.Storage = &s
	}
	cp.Indexers = append([]SiteConfig(nil), c.Indexers...)
	cp.CustomSites.Sites = append([]SiteConfig(nil), c.CustomSites.Sites...)
	cp.Shout.ShoutSites = append([]string(nil), c.Shout.ShoutSites...)
	return &cp
}
