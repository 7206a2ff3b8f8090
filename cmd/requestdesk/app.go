package main

import (
	"context"
	"fmt"
	"time"

	"github.com/JiaqinWu/CGHPI-Request-System/internal/auth"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/config"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/audit"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/entity"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/events"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/notify"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/relay"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/service"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app holds the wired components of a running server.
type app struct {
	svc      *service.RequestService
	sessions *auth.Service
	tokens   *auth.TokenManager
	hub      *events.Hub
	rdb      *redis.Client
	fileRoot string
}

func (a *app) Close() {
	if a.rdb != nil {
		a.rdb.Close()
	}
}

func newWorkbookStore(cfg config.StoreConfig, options *entity.Options, logger *zap.Logger) *store.WorkbookStore {
	return store.NewWorkbookStore(cfg.Path, logger,
		store.WithSheet(cfg.Sheet),
		store.WithRetry(cfg.RetryAttempts, cfg.RetryDelay),
		store.WithKnownLabels(options.Known()),
	)
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}
	options := entity.DefaultOptions()

	if cfg.Redis.Enabled {
		a.rdb = initRedis(cfg.Redis)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := a.rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}

	// Record store and its cache.
	wb := newWorkbookStore(cfg.Store, options, logger)
	var records store.RecordStore = wb
	var cache service.Cache
	switch cfg.Cache.Backend {
	case "memory":
		cs := store.NewCachedStore(wb, store.NewMemoryCache(), cfg.Cache.TTL, logger)
		records, cache = cs, cs
	case "redis":
		cs := store.NewCachedStore(wb, store.NewRedisCache(a.rdb, cfg.Cache.Key), cfg.Cache.TTL, logger)
		records, cache = cs, cs
	}

	// File relay.
	prefixes := relay.Prefixes{}
	for k, v := range cfg.Files.Prefixes {
		prefixes[relay.Destination(k)] = v
	}
	var files relay.Relay
	switch cfg.Files.Backend {
	case "minio":
		mr, err := relay.NewMinIORelay(relay.MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
			PublicURL: cfg.MinIO.PublicURL,
			Prefixes:  prefixes,
		}, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := mr.EnsureBucket(ctx); err != nil {
			logger.Warn("MinIO bucket not ready, uploads will fail until it is", zap.Error(err))
		}
		files = mr
	default:
		files = relay.NewDiskRelay(cfg.Files.Dir, cfg.Files.PublicURL, prefixes, logger)
		a.fileRoot = cfg.Files.Dir
	}

	// Mail.
	var sender notify.Sender
	switch cfg.Mail.Backend {
	case "mailjet":
		sender = notify.NewMailjetSender(notify.MailjetConfig{
			APIKey:    cfg.Mail.APIKey,
			APISecret: cfg.Mail.APISecret,
			FromEmail: cfg.Mail.FromEmail,
			FromName:  cfg.Mail.FromName,
		}, logger)
	default:
		sender = notify.NewLogSender(logger)
	}
	dispatcher := notify.NewDispatcher(sender, notify.DispatcherConfig{
		AppURL:       cfg.Mail.AppURL,
		ContactEmail: cfg.Mail.ContactEmail,
		SystemName:   cfg.Mail.SystemName,
	}, logger)

	// Audit trail.
	db, err := audit.Open(audit.Config{Driver: cfg.Audit.Driver, DSN: cfg.Audit.DSN, LogLevel: cfg.Audit.LogLevel})
	if err != nil {
		a.Close()
		return nil, err
	}

	// Sessions.
	coordinators := make([]auth.Coordinator, 0, len(cfg.Coordinators))
	for _, c := range cfg.Coordinators {
		coordinators = append(coordinators, auth.Coordinator{Email: c.Email, Name: c.Name, PasswordHash: c.PasswordHash, Notify: c.Notify})
	}
	directory := auth.NewDirectory(coordinators)
	if len(coordinators) == 0 {
		logger.Warn("No coordinators configured, dashboard login is impossible")
	}
	var revocations auth.RevocationStore = auth.NewMemoryRevocations()
	if a.rdb != nil {
		revocations = auth.NewRedisRevocations(a.rdb)
	}
	a.tokens = auth.NewTokenManager(auth.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer, TTL: cfg.JWT.TTL}, revocations)
	a.sessions = auth.NewService(a.tokens, directory)

	var recipients []service.Recipient
	for _, c := range directory.NotifyList() {
		recipients = append(recipients, service.Recipient{Email: c.Email, Name: c.Name})
	}

	a.hub = events.NewHub(logger)
	a.svc = service.NewRequestService(service.Deps{
		Store:        records,
		Cache:        cache,
		Relay:        files,
		Dispatcher:   dispatcher,
		Audit:        audit.NewRepository(db),
		Events:       a.hub,
		Coordinators: recipients,
		Options:      options,
	}, logger)

	logger.Info("Components ready",
		zap.String("store", cfg.Store.Path),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("files", cfg.Files.Backend),
		zap.String("mail", cfg.Mail.Backend),
		zap.String("audit", cfg.Audit.Driver),
		zap.Int("notify_coordinators", len(recipients)),
	)
	return a, nil
}
