package config

import (
	"reflect"
	"strings"

	logx "autoshout/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// structured fields for logging. Secrets (telegram token, site cookies, proxy
// credentials) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Telegram.Token != newCfg.Telegram.Token ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.NotifyChat) != strings.TrimSpace(newCfg.Telegram.NotifyChat) ||
		oldCfg.Telegram.NotifyThread != newCfg.Telegram.NotifyThread {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.notify_chat_set", strings.TrimSpace(newCfg.Telegram.NotifyChat) != ""),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) {
		changed = append(changed, "scheduler")
		attrs = append(attrs, logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)))
	}

	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		// Storage is opened once at startup; a change needs a restart.
		changed = append(changed, "storage")
	}

	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.String("http.timeout", newCfg.HTTP.Timeout),
			logx.Bool("http.proxy_set", strings.TrimSpace(newCfg.HTTP.Proxy) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Indexers, newCfg.Indexers) || !reflect.DeepEqual(oldCfg.CustomSites, newCfg.CustomSites) {
		changed = append(changed, "sites")
		attrs = append(attrs,
			logx.Int("sites.indexers", len(newCfg.Indexers)),
			logx.Bool("sites.custom_enabled", newCfg.CustomSites.Enabled),
			logx.Int("sites.custom", len(newCfg.CustomSites.Sites)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Shout, newCfg.Shout) {
		changed = append(changed, "shout")
		attrs = append(attrs,
			logx.Bool("shout.enabled", newCfg.Shout.Enabled),
			logx.String("shout.cron", newCfg.Shout.Cron),
			logx.Bool("shout.onlyonce", newCfg.Shout.OnlyOnce),
			logx.Int("shout.sites", len(newCfg.Shout.ShoutSites)),
		)
	}

	return changed, attrs
}
