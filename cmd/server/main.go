package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jordansalagala21/GymTribe/internal/config"
	"github.com/jordansalagala21/GymTribe/internal/database"
	"github.com/jordansalagala21/GymTribe/internal/docstore"
	"github.com/jordansalagala21/GymTribe/internal/handlers"
	"github.com/jordansalagala21/GymTribe/internal/logging"
	"github.com/jordansalagala21/GymTribe/internal/middleware"
	"github.com/jordansalagala21/GymTribe/internal/services"
)

func main() {
	if err := run(); err != nil {
		logging.Error("Application error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func run() error {
	logger := logging.New()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := logging.ParseLevel(cfg.Log.Level)
	logger.SetLevel(level)
	logging.SetDefaultLevel(level)

	logger.Info("Starting GymTribe social server...", map[string]interface{}{
		"env":          cfg.Server.Environment,
		"store_driver": cfg.Store.Driver,
	})

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	logger.Info("Connecting to Redis", map[string]interface{}{
		"addr": cfg.Redis.Addr(),
	})
	redisDB, err := database.NewRedisDB(database.RedisConfig{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() { _ = redisDB.Close() }()
	logger.Info("Connected to Redis")

	// Initialize services
	profileService := services.NewProfileService(store)
	friendService := services.NewFriendService(store, profileService)
	suggestionService := services.NewSuggestionService(profileService, friendService)
	messageService := services.NewMessageService(store)
	sessionService := services.NewSessionService(redisDB.Client)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(store, redisDB)
	friendHandler := handlers.NewFriendHandler(friendService)
	suggestionHandler := handlers.NewSuggestionHandler(suggestionService)
	messageHandler := handlers.NewMessageHandler(messageService)
	feedHandler := handlers.NewFeedHandler(messageService, friendService, profileService)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(sessionService)
	requestLogger := middleware.NewRequestLogger(logger)
	messageLimiter := middleware.NewMessageRateLimiter(redisDB.Client, cfg.Messaging.RateLimit, cfg.Messaging.RateWindow)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	// Health and metrics
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/live", healthHandler.Live)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)
		r.Use(requestLogger.Apply)
		r.Use(authMiddleware.RequireAuth)

		// Friend graph
		r.Get("/api/friends", friendHandler.List)
		r.Delete("/api/friends/{id}", friendHandler.Remove)
		r.Get("/api/friends/requests", friendHandler.ListRequests)
		r.Post("/api/friends/requests", friendHandler.SendRequest)
		r.Put("/api/friends/requests/{id}/accept", friendHandler.Accept)
		r.Put("/api/friends/requests/{id}/decline", friendHandler.Decline)
		r.Delete("/api/friends/requests/{id}", friendHandler.Retract)

		// Suggestions
		r.Get("/api/suggestions", suggestionHandler.List)
		r.Post("/api/suggestions/{id}/request", suggestionHandler.SendRequest)

		// Messaging
		r.With(messageLimiter.Middleware).Post("/api/messages", messageHandler.Send)
		r.Get("/api/messages/{peerId}", messageHandler.Conversation)
		r.Get("/ws", feedHandler.Serve)
	})

	// Feeds follow this context so they end when the server shuts down.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}

	// Graceful shutdown
	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("Server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		server.SetKeepAlivesEnabled(false)
		cancelBase()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Could not gracefully shutdown the server", map[string]interface{}{
				"error": err.Error(),
			})
		}
		close(done)
	}()

	logger.Info("Server listening", map[string]interface{}{
		"addr": addr,
	})
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	logger.Info("Server stopped")
	return nil
}

// openStore connects the configured document store and returns a func that
// releases it.
func openStore(cfg *config.Config, logger *logging.Logger) (docstore.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.StoreDriverBadger:
		badgerCfg := database.DefaultBadgerConfig(cfg.Store.BadgerPath)
		if cfg.Store.InMemory {
			badgerCfg = database.InMemoryBadgerConfig()
		}
		badgerCfg.Logger = logger

		logger.Info("Opening Badger store", map[string]interface{}{
			"path":      cfg.Store.BadgerPath,
			"in_memory": cfg.Store.InMemory,
		})
		bdb, err := database.NewBadgerDB(badgerCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("opening badger: %w", err)
		}
		store := docstore.NewBadgerStore(bdb.DB)
		return store, func() {
			bdb.Close()
			if err := store.Close(); err != nil {
				logger.Warn("Closing badger store failed", map[string]interface{}{"error": err.Error()})
			}
		}, nil

	case config.StoreDriverPostgres:
		logger.Info("Connecting to PostgreSQL", map[string]interface{}{
			"host": cfg.Database.Host,
			"port": cfg.Database.Port,
		})
		db, err := database.NewPostgresDB(cfg.Database.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}

		logger.Info("Running database migrations...")
		migrator, err := database.NewMigrator(cfg.Database.DSN())
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("creating migrator: %w", err)
		}
		if err := migrator.Up(); err != nil {
			_ = migrator.Close()
			db.Close()
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		_ = migrator.Close()
		logger.Info("Migrations completed")

		store := db.DocumentStore()
		return store, func() {
			_ = store.Close()
			db.Close()
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
