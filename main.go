package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jyothri/inboxsweep/cache"
	"github.com/jyothri/inboxsweep/collect"
	"github.com/jyothri/inboxsweep/constants"
	"github.com/jyothri/inboxsweep/mailbox"
	"github.com/jyothri/inboxsweep/notification"
	"github.com/jyothri/inboxsweep/web"
)

func init() {
	options := &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format("2006-01-02 15:04:05.999"))
			}
			return a
		},
		Level: slog.LevelDebug,
	}

	handler := slog.NewTextHandler(os.Stdout, options)
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(slog.LevelDebug)
}

func main() {
	if err := run(); err != nil {
		slog.Error("Exiting", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if err := constants.Parse(); err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, closeSrc, err := openSource(ctx)
	if err != nil {
		return err
	}
	defer closeSrc()

	store, err := cache.Open(ctx, cache.Options{
		Backend:     cache.Backend(constants.CacheBackend),
		Dir:         constants.CacheDir,
		SQLitePath:  constants.SqlitePath,
		PostgresDSN: constants.PostgresDsn,
		RedisURL:    constants.RedisUrl,
		RedisPrefix: constants.RedisPrefix,
		GCSBucket:   constants.GcsBucket,
		GCSPrefix:   constants.GcsPrefix,
	})
	if err != nil {
		return fmt.Errorf("failed to open %s cache: %w", constants.CacheBackend, err)
	}
	snapshots := cache.New(store)
	defer snapshots.Close()

	tracker := notification.NewTracker(notification.NewHub())
	fetcher := collect.NewFetcher(ctx, src, snapshots, tracker, collect.Options{
		PageSize:        constants.PageSize,
		InitialPageSize: constants.InitialPageSize,
		MaxTotal:        constants.MaxTotal,
		PageDelay:       constants.PageDelay,
	})
	slog.Info("Configured backend",
		"mailbox_source", constants.MailboxSource,
		"cache_backend", constants.CacheBackend,
		"page_size", constants.PageSize,
		"max_total", constants.MaxTotal)

	return web.Server(ctx, web.ServerConfig{
		Addr:        constants.ListenAddr,
		FrontendUrl: constants.FrontendUrl,
	}, web.Deps{
		Fetcher: fetcher,
		Actions: collect.NewActions(src, snapshots),
		Cache:   snapshots,
		Tracker: tracker,
	})
}

func openSource(ctx context.Context) (mailbox.Source, func(), error) {
	switch constants.MailboxSource {
	case "imap":
		src := mailbox.NewIMAP(mailbox.IMAPConfig{
			Address:  constants.ImapAddress,
			Username: constants.ImapUsername,
			Password: constants.ImapPassword,
			Archive:  constants.ImapArchiveBox,
			Trash:    constants.ImapTrashBox,
		})
		return src, func() {
			if err := src.Close(); err != nil {
				slog.Warn("Failed to close IMAP session", "error", err)
			}
		}, nil
	default:
		src, err := mailbox.NewGmail(ctx, mailbox.GmailConfig{
			ClientID:          constants.OauthClientId,
			ClientSecret:      constants.OauthClientSecret,
			RefreshToken:      constants.OauthRefreshToken,
			RequestsPerSecond: constants.GmailRequestRate,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gmail source: %w", err)
		}
		return src, func() {}, nil
	}
}
