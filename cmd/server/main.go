package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"tides/internal/config"
	"tides/internal/database"
	"tides/internal/handlers"
	"tides/internal/jobs"
	"tides/internal/logging"
	"tides/internal/middleware"
	"tides/internal/objectstore"
	"tides/internal/services"
	"tides/pkg/auth"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🌊 Starting Tides Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, Storage: %s)", cfg.Port, redactURL(cfg.StorageURL))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Primary object store: all writes go here
	primaryBackend, err := objectstore.Open(ctx, cfg.StorageURL)
	if err != nil {
		log.Fatalf("❌ Failed to open primary storage: %v", err)
	}
	primary := services.NewSource(config.PrimarySourceID, services.NewDocumentStore(primaryBackend))
	log.Printf("✅ Primary storage ready (%s)", primaryBackend.Name())

	// Peer sources, read-only, consulted after the primary
	peers := newPeerPool(primary)
	specs, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		log.Printf("⚠️  Failed to load %s: %v (continuing with primary only)", cfg.SourcesFile, err)
	}
	resolver := services.NewMultiSourceResolver(peers.Apply(ctx, specs)...)

	actors := services.NewActorRegistry(primary.Docs, services.ActorConfig{
		QueueTimeout: cfg.ActorQueueTimeout,
		InboxSize:    cfg.ActorInboxSize,
	})

	if cfg.MetricsEnabled {
		services.InitMetrics(prometheus.DefaultRegisterer, actors)
		log.Println("📊 Tides metrics registered")
	}

	// Activity sink (optional MongoDB)
	var activity services.ActivitySink = services.LogActivitySink{}
	var activityDB *database.MongoDB
	if cfg.ActivityMongoURI != "" {
		activityDB, err = database.NewMongoDB(ctx, cfg.ActivityMongoURI)
		if err != nil {
			log.Printf("⚠️  Activity MongoDB unavailable, logging activity only: %v", err)
		} else {
			if err := activityDB.Initialize(ctx); err != nil {
				log.Printf("⚠️  Failed to initialize activity indexes: %v", err)
			}
			activity = services.NewMongoActivitySink(activityDB)
			log.Println("✅ Activity sink: MongoDB")
		}
	}

	// Insights (optional)
	var runner services.PromptRunner
	if cfg.InsightsBaseURL != "" {
		runner = services.NewChatCompletionsRunner(cfg.InsightsBaseURL, cfg.InsightsAPIKey, cfg.InsightsModel)
		log.Printf("✅ Insights enabled (model %s)", cfg.InsightsModel)
	} else {
		log.Println("⚠️  Insights disabled (INSIGHTS_BASE_URL not set)")
	}

	tideService := services.NewTideService(services.TideServiceConfig{
		Primary:  primary,
		Resolver: resolver,
		Actors:   actors,
		Activity: activity,
		Insights: services.NewInsightService(runner),
	})

	// Cross-instance relay (optional Redis)
	var relay *services.EventRelay
	if cfg.RedisURL != "" {
		redisService, err := services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️  Redis unavailable, live events stay on this instance: %v", err)
		} else {
			relay = services.NewEventRelay(redisService, "", tideService.DeliverRemote)
			if err := relay.Start(); err != nil {
				log.Printf("⚠️  Failed to start event relay: %v", err)
				relay = nil
			} else {
				tideService.SetPublisher(relay)
				log.Printf("✅ Event relay started (instance %s)", relay.InstanceID())
			}
		}
	}

	// Hot-reload the peer source list
	if err := config.WatchSources(ctx, cfg.SourcesFile, func(specs []config.SourceSpec) {
		resolver.SetSources(peers.Apply(ctx, specs))
	}); err != nil {
		log.Printf("⚠️  Source hot-reload disabled: %v", err)
	}

	// Background jobs
	jobScheduler, err := jobs.NewJobScheduler()
	if err != nil {
		log.Fatalf("❌ Failed to create job scheduler: %v", err)
	}
	if err := jobs.Register(jobScheduler, tideService, cfg.ActorIdleTTL, cfg.ActorReapInterval, cfg.IndexRebuildCron); err != nil {
		log.Fatalf("❌ Failed to register jobs: %v", err)
	}
	jobScheduler.Start()

	// Auth
	var tokenAuth *auth.TokenAuth
	if cfg.JWTSecret != "" {
		tokenAuth, err = auth.NewTokenAuth(cfg.JWTSecret, 0)
		if err != nil {
			log.Fatalf("❌ Failed to initialize JWT auth: %v", err)
		}
	} else if cfg.IsProduction() {
		log.Fatal("❌ JWT_SECRET is required in production")
	} else {
		log.Println("⚠️  JWT_SECRET not set: requests act as X-User-ID or dev-user")
	}

	app := fiber.New(fiber.Config{
		AppName:      "Tides v1.0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	if cfg.MetricsEnabled {
		prom := fiberprometheus.New("tides")
		prom.RegisterAt(app, "/metrics")
		app.Use(prom.Middleware)
		log.Println("📊 Prometheus metrics endpoint enabled at /metrics")
	}

	// Fiber's CORS middleware does not allow AllowCredentials with wildcard origins.
	allowCredentials := cfg.AllowedOrigins != "*"
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: allowCredentials,
	}))
	log.Printf("🔒 [SECURITY] CORS allowed origins: %s", cfg.AllowedOrigins)

	rateLimitConfig := middleware.NewRateLimitConfig(cfg.RateLimitGlobalAPI, cfg.RateLimitWritesPerSecond, cfg.Environment == "development")
	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))
	log.Printf("🛡️  [RATE-LIMIT] Global=%d/min, writes=%.1f/s per owner", rateLimitConfig.GlobalAPIMax, rateLimitConfig.WritesPerSecond)

	var wsOrigins []string
	if cfg.AllowedOrigins != "*" {
		wsOrigins = strings.Split(cfg.AllowedOrigins, ",")
	}
	handlers.RegisterRoutes(app, tideService, handlers.RouteOptions{
		TokenAuth:      tokenAuth,
		WriteLimiter:   middleware.NewOwnerWriteLimiter(rateLimitConfig),
		WSConnLimiter:  middleware.WebSocketRateLimiter(rateLimitConfig),
		AllowedOrigins: wsOrigins,
	})

	log.Printf("✅ Server ready on port %s", cfg.Port)
	log.Printf("🔗 Live updates: ws://localhost:%s/ws/tides", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)

	// Handle graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}

		jobScheduler.Stop()

		if relay != nil {
			if err := relay.Stop(); err != nil {
				log.Printf("⚠️ Error stopping event relay: %v", err)
			}
		}

		// Drain actors before closing the stores they write to
		actors.Shutdown()
		stop()

		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		peers.Close(closeCtx)
		if err := objectstore.Close(closeCtx, primaryBackend); err != nil {
			log.Printf("⚠️ Error closing primary storage: %v", err)
		}
		if activityDB != nil {
			activityDB.Close(closeCtx)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
	<-shutdownDone
	log.Println("👋 Server stopped")
}

// redactURL hides credentials in a storage URL for logging
func redactURL(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = "***@" + rest[at+1:]
	}
	return scheme + "://" + rest
}
