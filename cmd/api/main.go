package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-apparel/internal/admin"
	"github.com/noah-isme/toko-apparel/internal/analytics"
	"github.com/noah-isme/toko-apparel/internal/app"
	"github.com/noah-isme/toko-apparel/internal/audit"
	"github.com/noah-isme/toko-apparel/internal/auth"
	"github.com/noah-isme/toko-apparel/internal/cache"
	"github.com/noah-isme/toko-apparel/internal/catalog"
	"github.com/noah-isme/toko-apparel/internal/common"
	"github.com/noah-isme/toko-apparel/internal/config"
	"github.com/noah-isme/toko-apparel/internal/content"
	"github.com/noah-isme/toko-apparel/internal/db"
	"github.com/noah-isme/toko-apparel/internal/health"
	"github.com/noah-isme/toko-apparel/internal/obs"
	"github.com/noah-isme/toko-apparel/internal/order"
	"github.com/noah-isme/toko-apparel/internal/ratelimit"
	"github.com/noah-isme/toko-apparel/internal/resilience"
	"github.com/noah-isme/toko-apparel/internal/security"
	"github.com/noah-isme/toko-apparel/internal/tasks"
	"github.com/noah-isme/toko-apparel/internal/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "toko_apparel")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	resilience.RegisterMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:    "toko-apparel-api",
			ServiceVersion: envOrDefault("APP_VERSION", ""),
			Environment:    cfg.AppEnv,
			Exporter:       envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			Endpoint:       envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Insecure:       envBool("OBS_OTLP_INSECURE", false),
			Headers:        obs.ParseHeaders(envOrDefault("OBS_OTLP_HEADERS", "")),
			SamplingRatio:  envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if envBool("DB_AUTO_MIGRATE", false) {
		m, err := db.NewMigrator(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("open migrator")
		}
		if err := db.Up(m); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
		_, _ = m.Close()
	}

	pool, err := app.NewPool(ctx, cfg.DatabaseURL, "toko-apparel-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("database")
	}
	defer pool.Close()

	redisClient, err := app.NewRedis(ctx, cfg.RedisURL, app.MeterProvider(metricsEnabled), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	taskRedis, err := app.TaskRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("task redis")
	}
	taskClient := asynq.NewClient(taskRedis)
	defer func() { _ = taskClient.Close() }()

	backend, err := app.NewUpstream(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise upstream client")
	}

	catalogService, err := app.NewCatalog(cfg, backend, redisClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: catalogService, MaxAge: cfg.CatalogHTTPMaxAge})

	verifier, err := auth.NewVerifier(auth.Config{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
		ClockSkew: cfg.JWTClockSkew,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise token verifier")
	}
	authMiddleware := auth.Middleware{Verifier: verifier, AccessCookie: cfg.AuthCookie}

	orderService, err := order.NewService(order.ServiceConfig{
		Backend:    backend,
		Pricer:     catalogService,
		PriceScale: cfg.PriceScale,
		Logger:     obs.Component(logger, "order"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise order service")
	}
	orderHandler := &order.Handler{Svc: orderService}
	orderAdmin := &order.AdminHandler{Svc: orderService}

	adminService, err := admin.NewService(admin.ServiceConfig{
		Backend: backend,
		Catalog: catalogService,
		Warmer:  tasks.Client{Enqueuer: taskClient, Logger: obs.Component(logger, "tasks")},
		Logger:  obs.Component(logger, "admin"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise admin service")
	}
	adminHandler := &admin.Handler{Svc: adminService}

	userHandler := &user.Handler{Service: user.NewService(backend, obs.Component(logger, "user"))}

	contentService, err := content.NewService(backend, cache.New(redisClient, cfg.ContentCacheTTL), obs.Component(logger, "content"))
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise content service")
	}
	contentHandler := &content.Handler{Svc: contentService}

	analyticsHandler := &analytics.Handler{Svc: &analytics.Service{
		Orders:       backend,
		Cache:        cache.New(redisClient, cfg.AnalyticsCacheTTL).Named("analytics"),
		DefaultRange: int(cfg.AnalyticsDefaultRange / (24 * time.Hour)),
		MaxRangeDays: int(cfg.AnalyticsMaxRange / (24 * time.Hour)),
		Scale:        cfg.PriceScale,
	}}

	auditStore := audit.PGStore{DB: pool}
	auditRecorder := audit.HTTPRecorder{
		Service: &audit.Service{Store: auditStore, Enabled: cfg.AuditEnabled, SamplingRate: cfg.AuditSamplingRate},
		OnError: func(err error) { logger.Warn().Err(err).Msg("audit_record_failed") },
	}
	auditHandler := audit.Handler{Store: auditStore}

	limiter, err := ratelimit.New(cfg.RateLimitStrategy, redisClient, "ratelimit:")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}
	rateLimit := func(name string, key func(*http.Request) string) func(http.Handler) http.Handler {
		return ratelimit.Handler{
			Limiter: limiter,
			Config:  ratelimit.Config{Name: name, Key: key, Window: cfg.RateLimitWindow, Max: cfg.RateLimitMax},
			OnError: func(err error) { logger.Warn().Err(err).Msg("rate_limit_unavailable") },
		}.Middleware
	}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", "")), nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger, Slow: envDurationMillis("OBS_SLOW_REQUEST_MS", 1000)}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Total-Count", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes, MaxMultipart: 6 << 20}.Middleware)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(),
			envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", ""),
			envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")))
	}

	healthHandler := health.Handler{
		Checker:      app.Readiness{DB: pool, Redis: redisClient},
		Upstream:     backend,
		Circuits:     []health.CircuitReporter{backend.Breaker()},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(authMiddleware.Authenticate)
		v.Use(rateLimit("api", ratelimit.ByClientIP("api")))

		v.Get("/categories", catalogHandler.Categories)
		v.Get("/products", catalogHandler.Products)
		v.Get("/products/best-sellers", catalogHandler.BestSellers)
		v.Get("/products/{id}", catalogHandler.ProductDetail)
		v.Get("/products/{id}/related", catalogHandler.Related)
		v.Get("/content/{page}", contentHandler.Page)

		v.Group(func(authR chi.Router) {
			authR.Use(authMiddleware.RequireAuth)
			authR.Get("/me", userHandler.Me)
			authR.With(rateLimit("orders", ratelimit.ByUser("orders")), idem.Middleware).Post("/orders", orderHandler.Create)
			authR.Get("/orders", orderHandler.List)
			authR.Get("/orders/{orderId}", orderHandler.Get)
			authR.Post("/orders/{orderId}/cancel", orderHandler.Cancel)
		})

		v.Route("/admin", func(adm chi.Router) {
			adm.Use(authMiddleware.RequireAuth)
			adm.Use(auth.RequireRole("admin"))
			adm.Use(auditRecorder.Mutations)

			adm.Get("/products", adminHandler.ListProducts)
			adm.Post("/products", adminHandler.CreateProduct)
			adm.Get("/products/{id}", adminHandler.GetProduct)
			adm.Put("/products/{id}", adminHandler.UpdateProduct)
			adm.Delete("/products/{id}", adminHandler.DeleteProduct)
			adm.Post("/products/{id}/images", adminHandler.UploadImage)

			adm.Get("/categories", adminHandler.ListCategories)
			adm.Post("/categories", adminHandler.CreateCategory)
			adm.Put("/categories/{id}", adminHandler.UpdateCategory)
			adm.Delete("/categories/{id}", adminHandler.DeleteCategory)

			adm.Get("/discounts", adminHandler.ListDiscounts)
			adm.Post("/discounts", adminHandler.CreateDiscount)
			adm.Put("/discounts/{id}", adminHandler.UpdateDiscount)
			adm.Delete("/discounts/{id}", adminHandler.DeleteDiscount)

			adm.Get("/orders", orderAdmin.List)
			adm.With(idem.Middleware).Post("/orders", orderAdmin.Create)
			adm.Get("/orders/{id}", orderAdmin.Get)
			adm.Patch("/orders/{id}/status", orderAdmin.PatchStatus)

			adm.Get("/users", userHandler.List)
			adm.Get("/users/{id}", userHandler.Get)
			adm.Patch("/users/{id}/role", userHandler.UpdateRole)
			adm.Delete("/users/{id}", userHandler.Delete)

			adm.Get("/content", contentHandler.List)
			adm.Post("/content", contentHandler.Create)
			adm.Put("/content/{id}", contentHandler.Update)
			adm.Delete("/content/{id}", contentHandler.Delete)

			adm.Get("/analytics/overview", analyticsHandler.Overview)
			adm.Get("/analytics/sales", analyticsHandler.Sales)
			adm.Get("/analytics/top-products", analyticsHandler.TopProducts)

			adm.Get("/audit-logs", auditHandler.List)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serve(srv, logger, envDurationMillis("SHUTDOWN_GRACE_MS", 15000))
}

// serve runs srv until SIGINT/SIGTERM, then flips readiness and drains.
func serve(srv *http.Server, logger zerolog.Logger, grace time.Duration) {
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
		return
	case <-sigCtx.Done():
	}

	health.SetReady(false)
	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	ms := fallback
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			ms = parsed
		}
	}
	return time.Duration(ms) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle("/"+name, pprof.Handler(name))
	}
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	if user == "" {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "pprof credentials not configured", http.StatusForbidden)
		})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
