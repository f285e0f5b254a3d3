package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/medflow/medflow-stock/internal/stock/consumers"
	"github.com/medflow/medflow-stock/internal/stock/events"
	"github.com/medflow/medflow-stock/internal/stock/handler"
	"github.com/medflow/medflow-stock/internal/stock/service"
	"github.com/medflow/medflow-stock/pkg/auth"
	"github.com/medflow/medflow-stock/pkg/config"
	"github.com/medflow/medflow-stock/pkg/database"
	"github.com/medflow/medflow-stock/pkg/httputil"
	"github.com/medflow/medflow-stock/pkg/i18n"
	"github.com/medflow/medflow-stock/pkg/logger"
	"github.com/medflow/medflow-stock/pkg/messaging"
	"github.com/medflow/medflow-stock/pkg/metrics"
)

const serviceName = "stock-service"

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.Server.Environment)
	log.Info().Msg("starting Stock Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// RabbitMQ is optional: without it movements still commit, no events go out
	var rmq *messaging.RabbitMQ
	var publisher *events.StockEventPublisher
	if cfg.RabbitMQ.URL != "" {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		publisher, err = events.NewStockEventPublisher(rmq, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
	} else {
		log.Warn().Msg("rabbitmq.url is empty, stock events are disabled")
	}

	var m *metrics.Metrics
	if cfg.Stock.MetricsEnabled {
		m = metrics.New()
	}

	// Initialize services
	stores := service.NewStores(db, cfg.Stock.CodeRetryAttempts)
	batcher := service.NewBatcher(db, stores.Groups)
	ledger := service.NewLedgerService(db, stores, batcher, m, publisher, log)
	distribution := service.NewDistributionService(db, stores, batcher, cfg.Stock.DefaultDistributionStrategy, m, publisher, log)

	svc := &handler.Services{
		Stores:       stores,
		Batcher:      batcher,
		Transfers:    service.NewTransferService(db, stores, batcher, m, publisher, log),
		Ledger:       ledger,
		Receiving:    service.NewReceivingService(db, stores, distribution, m, publisher, log),
		Distribution: distribution,
		Intake:       service.NewIntakeService(db, stores, batcher, m, publisher, log),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Courier reports arrive over the bus as well as over HTTP
	if rmq != nil {
		if err := rmq.DeclareDeadLetterQueue(serviceName); err != nil {
			log.Fatal().Err(err).Msg("failed to declare dead letter queue")
		}
		courierConsumer, err := consumers.NewCourierEventConsumer(rmq, cfg.Stock.CourierQueue, ledger, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create courier event consumer")
		}
		if err := courierConsumer.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start courier event consumer")
		}
	}

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return slices.Contains(cfg.Server.AllowedOrigins, origin)
		},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(i18n.Middleware)
	if m != nil {
		r.Use(m.Middleware)
	}
	r.Use(httputil.Authenticate(auth.NewVerifier(&cfg.JWT), cfg.JWT.Required))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{
			"status":   "healthy",
			"service":  serviceName,
			"database": db.Health(r.Context()),
		}
		if rmq != nil {
			status["rabbitmq"] = rmq.Health()
		}
		httputil.JSON(w, http.StatusOK, status)
	})
	if m != nil {
		r.Handle("/metrics", m.Handler())
	}

	// API routes
	r.Route("/api/v1/stock", func(r chi.Router) {
		handler.Mount(r, svc, log)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop consumers
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
