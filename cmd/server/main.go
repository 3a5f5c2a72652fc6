package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/api"
	"github.com/lalith-99/huddle/internal/auth"
	"github.com/lalith-99/huddle/internal/authz"
	"github.com/lalith-99/huddle/internal/cache"
	"github.com/lalith-99/huddle/internal/config"
	"github.com/lalith-99/huddle/internal/db"
	"github.com/lalith-99/huddle/internal/events"
	"github.com/lalith-99/huddle/internal/kvstore"
	"github.com/lalith-99/huddle/internal/messaging"
	"github.com/lalith-99/huddle/internal/observ"
	"github.com/lalith-99/huddle/internal/ratelimit"
	"github.com/lalith-99/huddle/internal/repository"
	"github.com/lalith-99/huddle/internal/repository/memory"
	"github.com/lalith-99/huddle/internal/repository/postgres"
	"github.com/lalith-99/huddle/internal/users"
	"github.com/lalith-99/huddle/internal/workspace"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ---------------------------------------------------------------
	// 1. Load config
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// ---------------------------------------------------------------
	// 2. Create logger
	// ---------------------------------------------------------------
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	// Cancelled on SIGINT/SIGTERM. Startup uses it too, so a stuck DB
	// connect can be interrupted.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------------------------------------------------------
	// 3. Metrics
	//
	// With metrics disabled every component gets the noop meter, so no
	// call site checks a flag.
	// ---------------------------------------------------------------
	metrics := observ.NoopMetrics()
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		provider, err := observ.NewPrometheusMeterProvider()
		if err != nil {
			return fmt.Errorf("create meter provider: %w", err)
		}
		defer func() { _ = provider.Shutdown(context.Background()) }()
		if metrics, err = observ.NewMetrics(provider.Meter()); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		metricsHandler = provider.Handler()
	}

	// ---------------------------------------------------------------
	// 4. System of record
	//
	// DATABASE_URL=memory:// runs everything in process: handy for demos
	// and local work, lost on restart.
	// ---------------------------------------------------------------
	repos, health, closeRepos, err := openRepositories(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepos()

	// ---------------------------------------------------------------
	// 5. Key-value store
	//
	// The store is only ever a cache and a rate-limit counter. While it is
	// down, reads fall through to the system of record and the limiter
	// fails open, at boot as much as later. Only bad config is fatal.
	// ---------------------------------------------------------------
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	// ---------------------------------------------------------------
	// 6. Events
	// ---------------------------------------------------------------
	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		}, logger)
		if err != nil {
			return fmt.Errorf("create event publisher: %w", err)
		}
		publisher = kp
		logger.Info("publishing events to kafka",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
		)
	}
	defer func() { _ = publisher.Close() }()

	// ---------------------------------------------------------------
	// 7. Core services
	//
	// One coordinator and one limiter for the whole process, passed to
	// every service that needs them. Nothing reaches for a global.
	// ---------------------------------------------------------------
	coordinator := cache.New(store, cfg.CachePolicy, logger,
		cache.WithMetrics(metrics),
		cache.WithCoalescing(cfg.CacheCoalesce),
	)
	limiter := ratelimit.New(store, cfg.RateRules, logger, ratelimit.WithMetrics(metrics))
	authority := authz.NewAuthority(repos.workspaces, repos.channels, repos.memberships, repos.messages, repos.directs)

	userSvc := users.NewService(repos.users, repos.workspaces, coordinator, limiter, publisher, logger)
	workspaceSvc := workspace.NewService(workspace.Repositories{
		Users:       repos.users,
		Workspaces:  repos.workspaces,
		Channels:    repos.channels,
		Memberships: repos.memberships,
	}, authority, coordinator, publisher, logger)
	messagingSvc := messaging.NewService(messaging.Repositories{
		Users:          repos.users,
		Memberships:    repos.memberships,
		Messages:       repos.messages,
		DirectMessages: repos.directs,
		Reactions:      repos.reactions,
		Attachments:    repos.attachments,
	}, authority, coordinator, limiter, publisher, logger,
		messaging.WithPageSize(cfg.MessagePageSize),
	)

	// ---------------------------------------------------------------
	// 8. HTTP server
	// ---------------------------------------------------------------
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Deps{
		Users:     userSvc,
		Workspace: workspaceSvc,
		Messaging: messagingSvc,
		Tokens:    auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL),
		Limiter:   limiter,
		Logger:    logger,
		Metrics:   metricsHandler,
		Health:    health,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting huddle",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
		zap.Bool("memory_db", cfg.UseMemoryDatabase()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	// Stop accepting connections and let in-flight requests finish.
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// repositories is the system of record behind the repository interfaces.
// Assigning concrete stores to interface-typed fields proves at compile time
// that they implement them.
type repositories struct {
	users       repository.UserRepository
	workspaces  repository.WorkspaceRepository
	channels    repository.ChannelRepository
	memberships repository.MembershipRepository
	messages    repository.MessageRepository
	directs     repository.DirectMessageRepository
	reactions   repository.ReactionRepository
	attachments repository.AttachmentRepository
}

func openRepositories(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories, func(context.Context) error, func(), error) {
	if cfg.UseMemoryDatabase() {
		logger.Warn("using in-memory system of record; data is lost on restart")
		m := memory.New()
		return repositories{
			users:       m.Users(),
			workspaces:  m.Workspaces(),
			channels:    m.Channels(),
			memberships: m.Memberships(),
			messages:    m.Messages(),
			directs:     m.DirectMessages(),
			reactions:   m.Reactions(),
			attachments: m.Attachments(),
		}, nil, func() {}, nil
	}

	database, err := db.New(ctx, cfg.DatabaseURL, db.PoolConfig{}, logger)
	if err != nil {
		return repositories{}, nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return repositories{}, nil, nil, fmt.Errorf("migrate database: %w", err)
	}

	// Each store gets the same pool. The pool is goroutine-safe.
	pool := database.Pool()
	return repositories{
		users:       postgres.NewUserStore(pool),
		workspaces:  postgres.NewWorkspaceStore(pool),
		channels:    postgres.NewChannelStore(pool),
		memberships: postgres.NewMembershipStore(pool),
		messages:    postgres.NewMessageStore(pool),
		directs:     postgres.NewDirectMessageStore(pool),
		reactions:   postgres.NewReactionStore(pool),
		attachments: postgres.NewAttachmentStore(pool),
	}, database.Health, database.Close, nil
}

// storePingTimeout bounds the startup reachability check.
const storePingTimeout = 2 * time.Second

// openStore builds the configured store. An unreachable server is logged and
// the store is returned anyway; its clients reconnect on later calls.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (kvstore.Store, error) {
	var (
		store kvstore.Store
		err   error
	)
	switch cfg.KVBackend {
	case config.BackendMemory:
		store = kvstore.NewMemoryStore()
	case config.BackendValkey:
		store, err = kvstore.NewValkeyStore(kvstore.ValkeyConfig{
			Address:   cfg.ValkeyAddr,
			Password:  cfg.ValkeyPassword,
			Namespace: cfg.KVNamespace,
			OpTimeout: cfg.KVOpTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("configure valkey: %w", err)
		}
	default:
		store, err = kvstore.NewRedisStore(kvstore.RedisConfig{
			URL:       cfg.RedisURL,
			Namespace: cfg.KVNamespace,
			OpTimeout: cfg.KVOpTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("configure redis: %w", err)
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, storePingTimeout)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		logger.Warn("key-value store unreachable, serving uncached until it recovers",
			zap.String("backend", cfg.KVBackend),
			zap.Error(err),
		)
		return store, nil
	}
	logger.Info("key-value store ready", zap.String("backend", cfg.KVBackend))
	return store, nil
}
