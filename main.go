package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"contractit/config"
	"contractit/database"
	"contractit/events"
	"contractit/handlers"
	"contractit/logger"
	"contractit/middleware"
	"contractit/models"
	"contractit/receipts"
	"contractit/scheduler"
	"contractit/services"
	"contractit/uploads"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Initialize database
	db, err := database.Open(cfg.Database.URL, log, time.Duration(cfg.Database.SlowQueryMS)*time.Millisecond)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("Redis unavailable, idempotency keys are not enforced", zap.Error(err))
		}
		defer rdb.Close()
	}

	// Websocket clients are notified once per event; RabbitMQ, when
	// configured, is retried until it accepts the event.
	hub := events.NewHub(cfg.CORS.AllowedOrigins, log)
	var publisher events.Publisher
	if cfg.AMQP.URL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.Warn("RabbitMQ unavailable, events reach websocket clients only", zap.Error(err))
		}
		if amqpPublisher != nil {
			defer amqpPublisher.Close()
			publisher = amqpPublisher
		}
	}

	store := uploads.NewStore(cfg.Uploads.Dir, cfg.Uploads.MaxBytes)
	svc := services.New(db, log, services.Options{
		AutoApproveAfter: cfg.Payments.AutoApproveAfter,
		Uploads:          store,
	})

	dispatcher := events.NewDispatcher(db, publisher, log).
		WithNotifier(hub).
		WithInterval(cfg.Outbox.Interval).
		WithBatchSize(cfg.Outbox.BatchSize).
		WithMaxRetries(cfg.Outbox.MaxRetries)
	go dispatcher.Start(ctx)

	approver := scheduler.NewAutoApprover(svc.Payments, cfg.Payments.SweepInterval, log)
	go approver.Start(ctx)

	templates, err := handlers.LoadTemplates()
	if err != nil {
		log.Fatal("Failed to parse templates", zap.Error(err))
	}

	auth := middleware.NewAuthenticator(db, cfg.JWT.Secret, cfg.JWT.Expiration)
	renderer := receipts.NewRenderer(cfg.Server.BaseURL, cfg.Receipts.Secret)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.AuthPerMinute)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(cfg, templates, svc, auth)
	projectHandler := handlers.NewProjectHandler(templates, svc)
	paymentHandler := handlers.NewPaymentHandler(cfg, templates, svc, renderer)
	api := handlers.NewAPI(cfg, svc, auth, renderer, hub, limiter, rdb)

	// Setup router
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestLogger(log))
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Metrics)
	router.Use(middleware.SecurityHeaders)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Ping(r.Context(), db); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(store.Dir()))))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.IdempotencyHeader},
		AllowCredentials: true,
	})
	router.With(corsHandler.Handler).Mount("/api", api.Routes())

	// Public routes
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	})
	router.Get("/login", authHandler.LoginPage)
	router.Get("/register", authHandler.RegisterPage)
	router.Group(func(r chi.Router) {
		r.Use(limiter.Limit)
		r.Post("/login", authHandler.Login)
		r.Post("/register", authHandler.Register)
	})

	// Protected routes
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware)

		r.Get("/logout", authHandler.Logout)
		r.Get("/dashboard", authHandler.Dashboard)
		r.Get("/projects/{id}", projectHandler.ProjectDetail)
		r.Get("/payments/{id}/receipt", paymentHandler.Receipt)
		r.Get("/payments/export", paymentHandler.ExportCSV)

		// Client routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(models.RoleClient))
			r.Get("/projects/new", projectHandler.NewProjectPage)
			r.Post("/projects/new", projectHandler.CreateProject)
			r.Get("/projects/mine", projectHandler.MyProjects)
			r.Get("/projects/{id}/edit", projectHandler.EditProjectPage)
			r.Post("/projects/{id}/edit", projectHandler.UpdateProject)
			r.Post("/projects/{id}/complete", projectHandler.CompleteProject)
			r.Post("/projects/{id}/cancel", projectHandler.CancelProject)
			r.Get("/projects/{id}/bids", projectHandler.ProjectBids)
			r.Post("/bids/{id}/accept", projectHandler.AcceptBid)
			r.Post("/milestones/{id}/release", paymentHandler.Release)
			r.Get("/payments/{id}/review", paymentHandler.ReviewPage)
			r.Post("/payments/{id}/review", paymentHandler.Review)
		})

		// Contractor routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(models.RoleContractor))
			r.Get("/jobs", projectHandler.Jobs)
			r.Get("/projects/awarded", projectHandler.AwardedProjects)
			r.Get("/projects/{id}/bid", projectHandler.BidPage)
			r.Post("/projects/{id}/bid", projectHandler.SubmitBid)
			r.Get("/bids/mine", projectHandler.MyBids)
			r.Get("/milestones/{id}/payment", paymentHandler.RequestPage)
			r.Post("/milestones/{id}/payment", paymentHandler.RequestPayment)
			r.Post("/projects/{id}/portfolio", paymentHandler.TogglePortfolio)
		})
	})

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("Server starting", zap.String("port", cfg.Server.Port), zap.String("env", cfg.Server.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("ListenAndServe failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutdown signal received, shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", zap.Error(err))
	}
	log.Info("Server stopped")
}
