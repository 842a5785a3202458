// Package main is the entry point for the Lumena real-time gateway.
//
// The gateway terminates long-lived client connections, authenticates them
// against the shared session store, and fans platform events out to personal,
// discussion, and live-lesson channels. It also serves the internal REST API
// that platform services use to push notifications and read rosters.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/lumena-hub/lumena-platform/config"
	"github.com/lumena-hub/lumena-platform/internal/application/chat"
	"github.com/lumena-hub/lumena-platform/internal/application/notify"
	"github.com/lumena-hub/lumena-platform/internal/application/presence"
	"github.com/lumena-hub/lumena-platform/internal/domain/access"
	"github.com/lumena-hub/lumena-platform/internal/infrastructure/email"
	"github.com/lumena-hub/lumena-platform/internal/infrastructure/messaging"
	"github.com/lumena-hub/lumena-platform/internal/infrastructure/persistence/postgres"
	"github.com/lumena-hub/lumena-platform/internal/infrastructure/persistence/redis"
	httpapi "github.com/lumena-hub/lumena-platform/internal/interface/http"
	"github.com/lumena-hub/lumena-platform/internal/interface/http/handlers"
	"github.com/lumena-hub/lumena-platform/internal/interface/realtime"
	"github.com/lumena-hub/lumena-platform/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := setupLogger(cfg)

	if err := run(cfg, log); err != nil {
		log.Error("gateway exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ───────────────────────────────────────────────────────────
	// Storage
	// ───────────────────────────────────────────────────────────

	conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer conn.Close()

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	log.Info("connected to postgres")

	if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// The gateway resolves connection tokens against Redis-backed sessions,
	// so Redis is mandatory here even when the bridge is off. Only the
	// worker can run without it.
	if cfg.Redis.Disabled {
		return fmt.Errorf("the gateway requires Redis for session lookups; unset REDIS_DISABLED")
	}

	cache, err := redis.NewCache(redisCacheConfig(cfg))
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer cache.Close()

	if err := cache.Ping(ctx); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	log.Info("connected to redis")

	// ───────────────────────────────────────────────────────────
	// Registry and bridge
	// ───────────────────────────────────────────────────────────

	local := messaging.NewGroupRegistry(messaging.GroupRegistryConfig{
		Logger:        log,
		EnableMetrics: cfg.Observability.MetricsEnabled,
	})

	var registry messaging.Registry = local

	if cfg.Features.IsEnabled(config.FeatureRealtimeBridge, nil) {
		instanceID := cfg.App.InstanceID
		if instanceID == "" {
			instanceID = uuid.NewString()
		}

		bridged, err := messaging.NewBridgedRegistry(messaging.BridgedRegistryConfig{
			Client:      redis.NewPubSubClient(cache),
			Local:       local,
			ChannelName: cfg.Realtime.BroadcastChannel,
			InstanceID:  instanceID,
			Logger:      log,
		})
		if err != nil {
			return fmt.Errorf("bridge: %w", err)
		}
		defer bridged.Close()

		registry = bridged
		log.Info("cross-instance bridge enabled",
			"channel", cfg.Realtime.BroadcastChannel,
			"instance_id", instanceID,
		)
	}

	// ───────────────────────────────────────────────────────────
	// Repositories and services
	// ───────────────────────────────────────────────────────────

	notificationRepo := postgres.NewNotificationRepository(conn)
	replyRepo := postgres.NewReplyRepository(conn)
	attendanceRepo := postgres.NewAttendanceRepository(conn)
	questionRepo := postgres.NewQuestionRepository(conn)
	directoryRepo := postgres.NewDirectoryRepository(conn)

	var sender email.Sender
	if cfg.Features.IsEnabled(config.FeatureNotifyEmailCopies, nil) {
		if cfg.Email.APIKey != "" && !cfg.Email.Sandbox {
			sender, err = email.NewSendGridSender(email.SendGridConfig{
				APIKey:      cfg.Email.APIKey,
				FromName:    cfg.Email.FromName,
				FromAddress: cfg.Email.FromAddress,
				AppName:     cfg.App.Name,
				Logger:      log,
			})
			if err != nil {
				return fmt.Errorf("email: %w", err)
			}
			log.Info("email copies enabled via sendgrid", "from", cfg.Email.FromAddress)
		} else {
			sender = email.NewConsoleSender(cfg.App.Name, log)
			log.Info("email copies logged to console; no SENDGRID_API_KEY")
		}
	}

	notifySvc, err := notify.NewService(notify.Config{
		Repository: notificationRepo,
		Registry:   registry,
		Directory:  directoryRepo,
		Sender:     sender,
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("notify service: %w", err)
	}

	chatSvc, err := chat.NewService(chat.Config{
		Replies:  replyRepo,
		Registry: registry,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("chat service: %w", err)
	}

	var roster presence.Roster
	if cfg.Features.IsEnabled(config.FeatureRealtimePresence, nil) {
		roster = redis.NewPresenceCache(cache)
	}

	presenceSvc, err := presence.NewService(presence.Config{
		Spans:     attendanceRepo,
		Questions: questionRepo,
		Roster:    roster,
		Registry:  registry,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("presence service: %w", err)
	}

	// ───────────────────────────────────────────────────────────
	// Realtime gateway
	// ───────────────────────────────────────────────────────────

	personal, err := realtime.NewPersonalChannel(notifySvc, log)
	if err != nil {
		return fmt.Errorf("personal channel: %w", err)
	}
	discussionCh, err := realtime.NewDiscussionChannel(chatSvc, log)
	if err != nil {
		return fmt.Errorf("discussion channel: %w", err)
	}
	liveLesson, err := realtime.NewLiveLessonChannel(presenceSvc, log)
	if err != nil {
		return fmt.Errorf("live lesson channel: %w", err)
	}

	gateway, err := realtime.NewGateway(realtime.GatewayConfig{
		Authenticator:  redis.NewSessionAuthenticator(cache),
		Gate:           access.NewGate(directoryRepo),
		Registry:       registry,
		Channels:       []realtime.Channel{personal, discussionCh, liveLesson},
		Logger:         log,
		SendBufferSize: cfg.Realtime.SendBufferSize,
		IdleTimeout:    cfg.Realtime.IdleTimeout,
	})
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}

	tcpServer, err := realtime.NewTCPServer(realtime.TCPServerConfig{
		Address:      cfg.Realtime.Address,
		Gateway:      gateway,
		MaxFrameSize: cfg.Realtime.MaxFrameSize,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("tcp server: %w", err)
	}

	tcpErr := make(chan error, 1)
	go func() {
		tcpErr <- tcpServer.Serve(ctx)
	}()

	// ───────────────────────────────────────────────────────────
	// REST API
	// ───────────────────────────────────────────────────────────

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("database", handlers.NewDatabaseCheck(conn))
	health.AddCheck("cache", handlers.NewCacheCheck(cache))

	var metrics *messaging.RegistryMetrics
	if cfg.Observability.MetricsEnabled {
		metrics = local.Metrics()
	}

	httpCfg := httpapi.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.EnableCORS = cfg.HTTP.EnableCORS
	httpCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpCfg.EnableMetrics = cfg.HTTP.EnableMetrics
	httpCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	httpCfg.APIKeyHeader = cfg.HTTP.APIKeyHeader
	httpCfg.APIKeyHashes = cfg.HTTP.APIKeyHashes

	httpLogger := logger.New(logger.Options{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
	})

	srv := httpapi.NewServer(httpCfg, httpapi.Dependencies{
		Notify:          notifySvc,
		Chat:            chatSvc,
		Presence:        presenceSvc,
		RegistryMetrics: metrics,
		Logger:          httpLogger,
		HealthChecker:   health,
	})

	httpErr := srv.StartAsync()
	log.Info("gateway started",
		"realtime_address", cfg.Realtime.Address,
		"http_address", httpCfg.Address(),
		"environment", string(cfg.App.Environment),
	)

	// ───────────────────────────────────────────────────────────
	// Shutdown
	// ───────────────────────────────────────────────────────────

	tcpDone := false
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-tcpErr:
		tcpDone = true
		if err != nil {
			return fmt.Errorf("realtime listener: %w", err)
		}
	case err := <-httpErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", "error", err)
	}

	// The TCP server drains its connections when the signal context ends.
	if !tcpDone {
		<-tcpErr
	}

	log.Info("gateway stopped")
	return nil
}

// setupLogger builds the process logger. JSON in production for log
// aggregation, text in development for readability.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

// redisCacheConfig maps the application Redis settings onto the cache
// package's configuration, keeping the pool defaults where unset.
func redisCacheConfig(cfg *config.Config) redis.Config {
	rc := redis.DefaultConfig()
	rc.Host = cfg.Redis.Host
	rc.Port = cfg.Redis.Port
	rc.Password = cfg.Redis.Password
	rc.DB = cfg.Redis.DB

	if cfg.Redis.PoolSize > 0 {
		rc.PoolSize = cfg.Redis.PoolSize
	}
	if cfg.Redis.MinIdleConns > 0 {
		rc.MinIdleConns = cfg.Redis.MinIdleConns
	}
	if cfg.Redis.DialTimeout > 0 {
		rc.DialTimeout = cfg.Redis.DialTimeout
	}
	if cfg.Redis.ReadTimeout > 0 {
		rc.ReadTimeout = cfg.Redis.ReadTimeout
	}
	if cfg.Redis.WriteTimeout > 0 {
		rc.WriteTimeout = cfg.Redis.WriteTimeout
	}

	return rc
}
