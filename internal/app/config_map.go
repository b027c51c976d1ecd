package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"autoshout/internal/config"
	"autoshout/internal/notifier"
	"autoshout/internal/scheduler"
	"autoshout/internal/shout"
	"autoshout/internal/storage"
	"autoshout/internal/transport"
	"autoshout/internal/transport/telegram"
	logx "autoshout/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// mapStorageConfig falls back to the in-memory store when storage is omitted.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{Driver: "memory"}, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "none", "memory":
		return storage.Config{Driver: "memory"}, nil
	case "file":
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// mapNotifierConfig defaults to enabled when the notifier section is omitted.
// Zero numeric fields are filled in by notifier.Service.
func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	out := notifier.Config{Enabled: true}
	if cfg == nil {
		return out, nil
	}
	target, err := notifyTarget(cfg)
	if err != nil {
		return notifier.Config{}, err
	}
	out.DefaultTarget = target
	n := cfg.Notifier
	if n == nil {
		return out, nil
	}
	out.Enabled = n.Enabled
	out.Workers = n.Workers
	out.QueueSize = n.QueueSize
	out.RatePerSec = n.RatePerSec
	out.RetryMax = n.RetryMax
	if out.RetryBase, err = config.ParseDurationField("notifier.retry_base", n.RetryBase); err != nil {
		return notifier.Config{}, err
	}
	if out.RetryMaxDelay, err = config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay); err != nil {
		return notifier.Config{}, err
	}
	return out, nil
}

func notifyTarget(cfg *config.Config) (transport.ChatTarget, error) {
	raw := strings.TrimSpace(cfg.Telegram.NotifyChat)
	if raw == "" {
		return transport.ChatTarget{}, nil
	}
	chatID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return transport.ChatTarget{}, fmt.Errorf("telegram.notify_chat: invalid chat id %q", raw)
	}
	return transport.ChatTarget{ChatID: chatID, ThreadID: cfg.Telegram.NotifyThread}, nil
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{Token: strings.TrimSpace(cfg.Telegram.Token), PollTimeout: poll}, nil
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Timezone: strings.TrimSpace(cfg.Scheduler.Timezone)}
}

func buildClients(cfg *config.Config) (shout.Clients, error) {
	timeout, err := config.ParseDurationOrDefault("http.timeout", cfg.HTTP.Timeout, shout.DefaultTimeout)
	if err != nil {
		return shout.Clients{}, err
	}
	return shout.NewClients(shout.ClientConfig{Timeout: timeout, Proxy: cfg.HTTP.Proxy})
}

// validateConfig runs the checks that need the app's mapping rules on top of
// config.Validate. It is installed as the hot-reload validator.
func validateConfig(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapTelegramConfig(cfg); err != nil {
		return err
	}
	if _, err := buildClients(cfg); err != nil {
		return err
	}
	if cfg.Shout.Enabled && strings.TrimSpace(cfg.Shout.Cron) != "" {
		if err := scheduler.Validate(cfg.Shout.Cron); err != nil {
			return fmt.Errorf("shout.cron: %w", err)
		}
	}
	return nil
}
