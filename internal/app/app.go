// Package app assembles the domain components from configuration. Both
// binaries build their collaborators here so they agree on wiring.
package app

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/expirywatch/internal/config"
	"github.com/albapepper/expirywatch/internal/digest"
	"github.com/albapepper/expirywatch/internal/kvstore"
	"github.com/albapepper/expirywatch/internal/notifications"
)

// OpenState opens the configured key-value backend and wraps it in a
// StateStore. pool may be nil unless the postgres backend is selected.
func OpenState(cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (kvstore.Store, *notifications.StateStore, error) {
	kv, err := kvstore.Open(cfg.StateBackend, cfg.StateFile, pool, cfg.StateScope)
	if err != nil {
		return nil, nil, fmt.Errorf("open state store: %w", err)
	}
	return kv, notifications.NewStateStore(kv, logger), nil
}

// Dispatcher builds the channel list: the push relay first when configured,
// then the direct console surface writing to out.
func Dispatcher(cfg *config.Config, out io.Writer, logger *slog.Logger) (*notifications.Dispatcher, error) {
	var push *notifications.PushChannel
	if cfg.PushURL != "" {
		p, err := notifications.NewPushChannel(notifications.PushConfig{
			URL:           cfg.PushURL,
			AuthToken:     cfg.PushToken,
			RatePerMinute: cfg.PushRatePerMinute,
		}, logger)
		if err != nil {
			return nil, err
		}
		push = p
	}

	var direct *notifications.DirectChannel
	if cfg.DirectEnabled {
		direct = notifications.NewDirectChannel(
			notifications.NewConsoleSurface(out), nil,
			notifications.DirectOptions{DisplayFor: cfg.DirectDisplayFor},
			logger)
	}

	permitted := cfg.NotifyPermitted
	return notifications.NewDispatcher(logger, notifications.DispatcherOptions{
		Permitted: func() bool { return permitted },
	}, push, direct), nil
}

// SchedulerOptions maps configuration onto scheduler options.
func SchedulerOptions(cfg *config.Config) notifications.SchedulerOptions {
	opts := notifications.DefaultSchedulerOptions()
	opts.TriggerHour = cfg.NotifyHour
	opts.PollInterval = cfg.NotifyPollInterval
	opts.AlignToHour = cfg.NotifyAlignToHour
	opts.Location = cfg.NotifyLocation
	opts.AppURL = cfg.AppURL
	return opts
}

// DigestJob builds the digest job over lister.
func DigestJob(cfg *config.Config, lister digest.ProductLister, logger *slog.Logger) (*digest.Job, error) {
	mailer, err := digest.NewSMTPMailer(digest.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		Timeout:  cfg.SMTPTimeout,
	})
	if err != nil {
		return nil, err
	}
	composer := digest.NewComposer(cfg.MailFrom, cfg.MailTo, cfg.AppURL)
	return digest.NewJob(lister, composer, mailer, cfg.DigestLocation, logger), nil
}
