package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"groupchat-service/internal/auth"
	"groupchat-service/internal/chat"
	"groupchat-service/internal/config"
	"groupchat-service/internal/db"
	"groupchat-service/internal/filestore"
	grpcserver "groupchat-service/internal/grpc"
	"groupchat-service/internal/handlers"
	"groupchat-service/internal/middleware"
	"groupchat-service/internal/observability"
	"groupchat-service/internal/presence"
	"groupchat-service/internal/rabbitmq"
	"groupchat-service/internal/relay"
	"groupchat-service/internal/repositories"
	"groupchat-service/internal/sweeper"
	"groupchat-service/internal/telemetry"
	"groupchat-service/internal/ws"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.App.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	nodeID := cfg.App.NodeID
	if nodeID == "" {
		nodeID = uuid.NewString()
	}
	logger = logger.With("node_id", nodeID)

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Tracing, cfg.App.Name, cfg.App.Environment)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	database, err := db.Connect(ctx, cfg.DB, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
	defer publisher.Close()
	logger.Info("amqp publisher ready", "mode", rabbitmq.PublisherMode(publisher), "reason", rabbitmq.PublisherNoopReason(publisher))
	events := observability.NewEvents(publisher, logger)
	audit := telemetry.NewAuditEmitter(publisher, cfg.AMQP.AuditRoute, cfg.App.Name, cfg.App.Environment, logger)

	groupRepo := repositories.NewGroupRepo(database)
	messageRepo := repositories.NewMessageRepo(database, cfg.Chat.MessageTTL)
	userRepo := repositories.NewUserRepo(database)

	checks := map[string]grpcserver.Check{
		"postgres": func(ctx context.Context) error { return database.PingContext(ctx) },
	}

	sinks := []presence.Sink{userRepo}
	var sharedPresence handlers.PresenceStore
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		defer redisClient.Close()
		mirror := presence.NewRedisMirror(redisClient, cfg.Redis.PresenceTTL)
		sinks = append(sinks, mirror)
		sharedPresence = mirror
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	tracker := presence.NewTracker(logger, sinks...)

	router := ws.NewRouter(logger)
	if cfg.NATS.URL != "" {
		natsRelay, err := relay.Connect(cfg.NATS, nodeID, logger)
		if err != nil {
			return err
		}
		defer natsRelay.Close()
		if err := natsRelay.Subscribe(router); err != nil {
			return err
		}
		router.SetRelay(natsRelay)
		logger.Info("cross-node relay enabled", "subject", cfg.NATS.Subject)
	}

	files, err := newFileStore(ctx, cfg.S3)
	if err != nil {
		return err
	}

	chatService := chat.NewService(groupRepo, messageRepo, files, router, logger, chat.Options{
		PageSize:    cfg.Chat.PageSize,
		MaxPageSize: cfg.Chat.MaxPageSize,
	})
	gateway := ws.NewGateway(router, tracker, groupRepo, chatService, logger)
	validator := auth.NewValidator(cfg.Auth.JWTSecret)
	wsHandler := ws.NewHandler(gateway, validator, events, cfg.WS, logger)

	groupHandler := handlers.NewGroupHandler(groupRepo, files, router, audit, logger)
	messageHandler := handlers.NewMessageHandler(chatService, maxImageSize)
	presenceHandler := handlers.NewPresenceHandler(tracker, sharedPresence, logger)

	health := grpcserver.NewHealthServer(checks, logger)

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware(cfg.App.Name))
	engine.Use(observability.HTTPMetricsMiddleware())

	engine.GET("/metrics", gin.WrapH(observability.Handler()))
	engine.GET("/healthz", func(c *gin.Context) {
		results, healthy := health.Probe(c.Request.Context())
		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": results, "connections": router.ConnectionCount()})
	})
	engine.GET("/ws", wsHandler.Handle)

	authMiddleware := middleware.AuthMiddleware(validator)
	authed := engine.Group("/", authMiddleware)
	groupHandler.Register(authed)
	authed.GET("/users/:user_id/presence", presenceHandler.GetPresence)
	messageHandler.Register(engine.Group("/api", authMiddleware))
	handlers.RegisterDebugRoutes(authed, handlers.DebugDeps{Audit: audit, Realtime: router, Presence: tracker}, cfg.App.Debug)

	go sweeper.New(messageRepo, files, router, cfg.Chat.SweepPeriod, logger).Run(ctx)
	go health.Run(ctx, 15*time.Second)

	lis, err := net.Listen("tcp", cfg.GRPC.HealthAddr)
	if err != nil {
		return err
	}
	go func() {
		if err := health.Serve(lis); err != nil {
			logger.Error("grpc health server stopped", "error", err)
		}
	}()
	defer health.Stop()

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr, "grpc_health", cfg.GRPC.HealthAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

const maxImageSize = 10 << 20

func newFileStore(ctx context.Context, cfg config.S3Config) (filestore.Store, error) {
	if cfg.Bucket == "" {
		return filestore.Disabled{}, nil
	}
	return filestore.NewS3Store(ctx, cfg)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
