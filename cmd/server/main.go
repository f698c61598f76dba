package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"correspondence/internal/attachment"
	"correspondence/internal/attachment/local"
	attachmentotel "correspondence/internal/attachment/otel"
	"correspondence/internal/attachment/s3"
	"correspondence/internal/audit"
	auditkafka "correspondence/internal/audit/store/kafka"
	"correspondence/internal/credential"
	"correspondence/internal/dashboard"
	identityhandler "correspondence/internal/identity/handler"
	identitymetrics "correspondence/internal/identity/metrics"
	identityservice "correspondence/internal/identity/service"
	"correspondence/internal/identity/store/revocation"
	"correspondence/internal/identity/store/user"
	mailhandler "correspondence/internal/mail/handler"
	mailmetrics "correspondence/internal/mail/metrics"
	mailservice "correspondence/internal/mail/service"
	mailstore "correspondence/internal/mail/store"
	"correspondence/internal/notification"
	notificationhandler "correspondence/internal/notification/handler"
	"correspondence/internal/platform/config"
	"correspondence/internal/platform/httpserver"
	"correspondence/internal/platform/logger"
	"correspondence/internal/platform/metrics"
	"correspondence/internal/platform/postgres"
	"correspondence/internal/platform/redis"
	"correspondence/internal/ratelimit"
	lockoutmodels "correspondence/internal/ratelimit/models"
	lockoutstore "correspondence/internal/ratelimit/store"
	templatehandler "correspondence/internal/template/handler"
	templateservice "correspondence/internal/template/service"
	templatestore "correspondence/internal/template/store"
	httptransport "correspondence/internal/transport/http"
	"correspondence/pkg/platform/tx"
)

// main wires dependencies once and runs the HTTP server until SIGINT or
// SIGTERM.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

// stores groups the persistence backends selected by configuration.
type stores struct {
	users     identityservice.UserStore
	mail      mailservice.Store
	templates templateservice.Store
	runner    txRunner
	releasers []identityservice.UserReferenceReleaser
}

type txRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type auditEmitter interface {
	Emit(ctx context.Context, base audit.Event) error
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := metrics.NewRegistry()
	health := map[string]httptransport.HealthCheck{}
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	st, db, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		closers = append(closers, func() { _ = db.Close() })
		health["database"] = db.PingContext
	}

	var revocations identityservice.RevocationList = revocation.NewInMemory()
	var lockouts ratelimit.Store = lockoutstore.NewInMemory()
	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if rdb != nil {
		closers = append(closers, func() { _ = rdb.Close() })
		health["redis"] = rdb.Health
		revocations = revocation.NewRedis(rdb.Client)
		lockouts = lockoutstore.NewRedis(rdb.Client)
		log.Info("token revocation and login lockout backed by redis")
	}

	files, err := openAttachments(ctx, cfg.Attachments, log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	var publisher auditEmitter
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := auditkafka.New(cfg.Kafka.Brokers, cfg.Kafka.ClientID, cfg.Kafka.TopicPrefix)
		if err != nil {
			return err
		}
		closers = append(closers, sink.Close)
		if err := sink.EnsureTopics(ctx, cfg.Kafka.Partitions, cfg.Kafka.Replication); err != nil {
			return err
		}
		health["kafka"] = sink.Ping

		async := audit.NewAsyncPublisher(1024, func(e audit.Event) {
			log.Warn("audit buffer full, event dropped", "action", e.Action, "request_id", e.RequestID)
		})
		worker := audit.NewWorker(sink, async.Inbox(), log)
		g.Go(func() error {
			if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		publisher = async
		log.Info("audit events streamed to kafka", "brokers", cfg.Kafka.Brokers)
	}

	lockoutOpts := []ratelimit.Option{
		ratelimit.WithLogger(log),
		ratelimit.WithPolicy(lockoutmodels.Policy{
			Attempts:     cfg.Auth.LoginAttempts,
			Window:       cfg.Auth.LoginWindow,
			LockDuration: cfg.Auth.LoginLockout,
		}),
	}
	if publisher != nil {
		lockoutOpts = append(lockoutOpts, ratelimit.WithAuditPublisher(publisher))
	}

	tokens := credential.NewTokenService(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	identityOpts := []identityservice.Option{
		identityservice.WithLogger(log),
		identityservice.WithMetrics(identitymetrics.New(reg)),
		identityservice.WithTxRunner(st.runner),
		identityservice.WithTokenIssuer(tokens),
		identityservice.WithRevocationList(revocations),
		identityservice.WithLoginGuard(ratelimit.New(lockouts, lockoutOpts...)),
		identityservice.WithUserReferences(st.releasers...),
	}
	mailOpts := []mailservice.Option{
		mailservice.WithLogger(log),
		mailservice.WithMetrics(mailmetrics.New(reg)),
		mailservice.WithTxRunner(st.runner),
	}
	templateOpts := []templateservice.Option{
		templateservice.WithLogger(log),
		templateservice.WithTxRunner(st.runner),
	}
	if publisher != nil {
		identityOpts = append(identityOpts, identityservice.WithAuditPublisher(publisher))
		mailOpts = append(mailOpts, mailservice.WithAuditPublisher(publisher))
		templateOpts = append(templateOpts, templateservice.WithAuditPublisher(publisher))
	}

	identitySvc := identityservice.New(st.users, credential.NewBcryptHasher(cfg.Auth.BcryptCost), identityOpts...)
	mailSvc := mailservice.New(st.mail, files, mailOpts...)
	templateSvc := templateservice.New(st.templates, files, templateOpts...)
	feed := notification.New(identitySvc, mailSvc, log)

	router := httptransport.NewRouter(httptransport.Config{
		Logger:         log,
		RequestTimeout: cfg.RequestTimeout,
		Tokens:         credential.NewMiddlewareAdapter(tokens),
		Revocations:    identitySvc,
		Principals:     identitySvc,
		Latency:        metrics.NewHTTP(reg),
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Health:         health,
		Modules: []any{
			identityhandler.New(identitySvc, log),
			mailhandler.New(mailSvc, log, cfg.Attachments.MaxBytes),
			templatehandler.New(templateSvc, log, cfg.Attachments.MaxBytes),
			notificationhandler.New(feed, log),
			dashboard.NewHandler(dashboard.New(mailSvc, identitySvc, templateSvc, feed), log),
		},
	})

	srv := httpserver.New(cfg.Addr, router)
	log.Info("configured", "dev_mode", cfg.DevMode, "postgres", db != nil, "redis", rdb != nil, "kafka", len(cfg.Kafka.Brokers) > 0)
	g.Go(func() error { return httpserver.Run(gctx, srv, log) })

	return g.Wait()
}

// openStores returns postgres-backed stores when DATABASE_URL is set and
// in-memory stores otherwise.
func openStores(ctx context.Context, cfg config.Server, log *slog.Logger) (*stores, *sql.DB, error) {
	if cfg.Database.URL == "" {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		mail, templates := mailstore.NewInMemory(), templatestore.NewInMemory()
		return &stores{
			users:     user.NewInMemory(),
			mail:      mail,
			templates: templates,
			runner:    tx.NewMemoryRunner(),
			releasers: []identityservice.UserReferenceReleaser{mail, templates},
		}, nil, nil
	}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	mail, templates := mailstore.NewPostgres(db), templatestore.NewPostgres(db)
	return &stores{
		users:     user.NewPostgres(db),
		mail:      mail,
		templates: templates,
		runner:    postgres.NewTxRunner(db, cfg.TxTimeout),
		releasers: []identityservice.UserReferenceReleaser{mail, templates},
	}, db, nil
}

func openAttachments(ctx context.Context, cfg config.AttachmentConfig, log *slog.Logger) (attachment.Store, error) {
	var backend attachment.Store
	switch cfg.Backend {
	case config.AttachmentBackendS3:
		store, err := s3.New(ctx, cfg.S3, log)
		if err != nil {
			return nil, fmt.Errorf("init s3 attachments: %w", err)
		}
		backend = store
	default:
		store, err := local.New(cfg.Dir, local.WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("init local attachments: %w", err)
		}
		backend = store
	}
	return attachmentotel.New(backend)
}
