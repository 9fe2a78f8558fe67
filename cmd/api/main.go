package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinsight/clinical-dashboard/internal/adapters/cache"
	"github.com/clinsight/clinical-dashboard/internal/adapters/database"
	"github.com/clinsight/clinical-dashboard/internal/adapters/events"
	"github.com/clinsight/clinical-dashboard/internal/adapters/search"
	"github.com/clinsight/clinical-dashboard/internal/api/handlers"
	"github.com/clinsight/clinical-dashboard/internal/api/middleware"
	"github.com/clinsight/clinical-dashboard/internal/api/routes"
	"github.com/clinsight/clinical-dashboard/internal/application/services"
	"github.com/clinsight/clinical-dashboard/internal/domain/providers"
	"github.com/clinsight/clinical-dashboard/internal/domain/repositories"
	"github.com/clinsight/clinical-dashboard/internal/infrastructure/clients/canvas"
	"github.com/clinsight/clinical-dashboard/internal/infrastructure/clients/keywell"
	"github.com/clinsight/clinical-dashboard/internal/infrastructure/clients/postgres"
	"github.com/clinsight/clinical-dashboard/internal/infrastructure/clients/redis"
	"github.com/clinsight/clinical-dashboard/internal/infrastructure/clients/typesense"
	"github.com/clinsight/clinical-dashboard/internal/infrastructure/clients/xpc"
	"github.com/clinsight/clinical-dashboard/internal/infrastructure/observability"
	"github.com/clinsight/clinical-dashboard/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	var shutdown func(context.Context) error
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err = observability.Setup(
			ctx,
			cfg.OTEL.ServiceName,
			cfg.OTEL.ServiceVersion,
			cfg.OTEL.Endpoint,
		)
		if err != nil {
			log.Printf("Warning: Failed to set up OpenTelemetry: %v", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Printf("Error shutting down OpenTelemetry: %v", err)
				}
			}()
			log.Println("OpenTelemetry initialized successfully")
		}
	}

	// Initialize metrics
	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}

	// Initialize database client
	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize PostgreSQL client: %v", err)
	}
	defer pgClient.Close()
	log.Println("PostgreSQL client initialized successfully")

	// Initialize Redis client
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Printf("Warning: Failed to initialize Redis client: %v", err)
		// Continue without Redis - the application can work without caching
		redisClient = nil
	} else {
		defer redisClient.Close()
		log.Println("Redis client initialized successfully")
	}

	// Initialize Typesense client
	typesenseClient, err := typesense.NewClient(&cfg.Typesense)
	if err != nil {
		log.Printf("Warning: Failed to initialize Typesense client: %v", err)
		typesenseClient = nil
	} else {
		log.Println("Typesense client initialized successfully")
	}

	var cacheProvider providers.CacheProvider
	if redisClient != nil {
		cacheProvider = cache.NewRedisAdapter(redisClient)
	}

	// Initialize adapters

	basePatientAdapter := database.NewPatientAdapter(pgClient)

	// Wrap with caching if Redis is available (for read performance optimization)
	var patientRepo repositories.PatientRepository
	if cacheProvider != nil {
		patientRepo = database.NewCachedPatientAdapter(basePatientAdapter, cacheProvider)
		log.Println("Patient adapter wrapped with caching layer")
	} else {
		patientRepo = basePatientAdapter
		log.Println("Patient adapter running without cache (Redis unavailable)")
	}

	assessmentRepo := database.NewRiskAssessmentAdapter(pgClient)
	conditionRepo := database.NewConditionAdapter(pgClient)
	vitalsRepo := database.NewVitalsAdapter(pgClient)
	alertRepo := database.NewAlertAdapter(pgClient)
	feedbackRepo := database.NewFeedbackAdapter(pgClient)

	var searchRepo repositories.PatientSearchRepository
	if typesenseClient != nil {
		adapter := search.NewTypesenseAdapter(typesenseClient)

		// Ensure schema exists
		if err := adapter.InitSchema(context.Background()); err != nil {
			log.Printf("Warning: Failed to init Typesense schema: %v", err)
		}
		searchRepo = adapter
	}

	// Initialize event bus for real-time updates
	var eventBus providers.EventBus
	if redisClient != nil {
		eventBus = events.NewRedisEventBus(redisClient)
		log.Println("Event bus initialized successfully")
	} else {
		log.Println("Event bus disabled (Redis not available)")
	}

	// Keep cached patient records in step with load cycles and enrichment
	var cacheInvalidationService *services.CacheInvalidationService
	if cacheProvider != nil && eventBus != nil {
		cacheInvalidationService = services.NewCacheInvalidationService(cacheProvider, eventBus)
		if err := cacheInvalidationService.Start(); err != nil {
			log.Printf("Warning: Failed to start cache invalidation service: %v", err)
			cacheInvalidationService = nil
		}
	}

	// Initialize external clients

	var consultationProvider providers.ConsultationProvider
	var keywellClient *keywell.Client
	if cfg.Keywell.Endpoint == "" || cfg.Keywell.Token == "" {
		log.Println("Warning: KEYWELL_ENDPOINT or KEYWELL_PAT not set; model consultations disabled")
	} else {
		keywellClient, err = keywell.NewClient(&cfg.Keywell)
		if err != nil {
			log.Fatalf("Failed to initialize consultation client: %v", err)
		}
		consultationProvider = keywellClient
	}

	var ehrClient canvas.Client
	if cfg.Canvas.ClientID == "" || cfg.Canvas.ClientSecret == "" {
		log.Println("Warning: CANVAS_ID or CANVAS_SECRET not set; EHR integration disabled")
	} else {
		ehrClient = canvas.NewClient(cfg.Canvas.BaseURL, cfg.Canvas.ClientID, cfg.Canvas.ClientSecret)
	}

	var chartReviewProvider providers.ChartReviewProvider
	if cfg.XPC.APIKey == "" {
		log.Println("Warning: XPC_API not set; chart review disabled")
	} else {
		chartReviewProvider = xpc.NewClient(&cfg.XPC)
	}

	// Initialize services

	analysisService := services.NewAnalysisService(
		patientRepo,
		conditionRepo,
		vitalsRepo,
		assessmentRepo,
		consultationProvider,
		eventBus,
	)

	var dispatcher *services.EnrichmentDispatcher
	if consultationProvider != nil {
		dispatcher = services.NewEnrichmentDispatcher(
			analysisService,
			cfg.Loader.EnrichmentChunkSize,
			cfg.Loader.StalenessWindow,
		)
	} else {
		log.Println("Background enrichment disabled (no consultation provider)")
	}

	loaderService := services.NewPatientLoaderService(
		patientRepo,
		assessmentRepo,
		conditionRepo,
		vitalsRepo,
		alertRepo,
		dispatcher,
		eventBus,
	)

	chartReviewService := services.NewChartReviewService(
		patientRepo,
		conditionRepo,
		vitalsRepo,
		assessmentRepo,
		chartReviewProvider,
	)

	feedbackService := services.NewFeedbackService(feedbackRepo)

	var syncService *services.EHRSyncService
	if ehrClient != nil {
		syncService = services.NewEHRSyncService(
			ehrClient,
			patientRepo,
			conditionRepo,
			vitalsRepo,
			searchRepo,
		)
	}

	// Kick off the initial load cycle so the read model is warm before the
	// first request. Failures here are recoverable via refetch.
	go func() {
		if err := loaderService.Load(ctx); err != nil {
			log.Printf("Warning: Initial patient load failed: %v", err)
		}
	}()

	// Initialize handlers

	patientHandler := handlers.NewPatientHandler(loaderService, patientRepo, searchRepo)
	analysisHandler := handlers.NewAnalysisHandler(analysisService, chartReviewService)

	var ehrHandler *handlers.EHRHandler
	if ehrClient != nil && syncService != nil {
		ehrHandler = handlers.NewEHRHandler(ehrClient, syncService)
	}

	feedbackHandler := handlers.NewFeedbackHandler(feedbackService, cacheProvider)

	var sseHandler *handlers.SSEHandler
	if eventBus != nil {
		sseHandler = handlers.NewSSEHandler(eventBus, loaderService)
	}

	// Initialize cache middleware
	var cacheMiddleware *middleware.CacheMiddleware
	if cacheProvider != nil {
		cacheMiddleware = middleware.NewCacheMiddleware(cacheProvider)
		log.Println("Cache middleware initialized successfully")
	}

	// Set up router
	router := routes.NewRouter(
		patientHandler,
		analysisHandler,
		ehrHandler,
		sseHandler,
		feedbackHandler,
		cacheMiddleware,
		metrics,
	)

	handler := router.SetupRoutes()

	// Create HTTP server. WriteTimeout is disabled because the SSE stream
	// endpoints hold their connections open.
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on %s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during server shutdown: %v", err)
	}

	if cacheInvalidationService != nil {
		cacheInvalidationService.Stop()
	}

	if keywellClient != nil {
		keywellClient.Close()
	}

	// Close event bus
	if eventBus != nil {
		if err := eventBus.Close(); err != nil {
			log.Printf("Error closing event bus: %v", err)
		}
	}

	log.Println("Server stopped")
}
