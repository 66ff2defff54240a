package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-kasir/internal/app"
	"github.com/noah-isme/backend-kasir/internal/auth"
	"github.com/noah-isme/backend-kasir/internal/cart"
	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/checkout"
	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/config"
	"github.com/noah-isme/backend-kasir/internal/events"
	"github.com/noah-isme/backend-kasir/internal/health"
	"github.com/noah-isme/backend-kasir/internal/lock"
	"github.com/noah-isme/backend-kasir/internal/obs"
	"github.com/noah-isme/backend-kasir/internal/queue"
	"github.com/noah-isme/backend-kasir/internal/ratelimit"
	"github.com/noah-isme/backend-kasir/internal/retur"
	"github.com/noah-isme/backend-kasir/internal/sales"
	"github.com/noah-isme/backend-kasir/internal/security"
	"github.com/noah-isme/backend-kasir/internal/stock"
)

const maxBodyBytes = 1 << 20

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	if cfg.MetricsEnabled {
		obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)
	}

	tracingEnabled := cfg.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "kasir-api",
			Endpoint:      cfg.TracingEndpoint,
			SamplingRatio: cfg.TracingSampling,
			Environment:   cfg.AppEnv,
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

	if err := app.RunMigrations(cfg.DatabaseURL, "migrations"); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "kasir-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	taskClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     redisOpts.Addr,
		Password: redisOpts.Password,
		DB:       redisOpts.DB,
	})
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()
	recon := &queue.Client{A: taskClient}

	validate := validator.New()

	catalogSvc := &catalog.Service{
		Pool:  pool,
		Cache: catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
	}
	catalogHandler := &catalog.Handler{Lookup: catalogSvc}

	bus := &events.Bus{Store: &events.PgStore{Pool: pool}}

	guard := stock.Guard{Lookup: catalogSvc}

	cartSvc := &cart.Service{
		Store:   &cart.Store{R: redisClient, TTL: cfg.CartTTL},
		Catalog: catalogSvc,
		Stock:   guard,
	}
	cartHandler := &cart.Handler{Svc: cartSvc, Validate: validate}

	salesStore := &sales.PgStore{Pool: pool}
	salesHandler := &sales.Handler{Store: salesStore}

	checkoutSvc := &checkout.Service{
		Carts:  cartSvc,
		Store:  salesStore,
		Events: bus,
		Recon:  recon,
		Logger: logger,
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc, Validate: validate}

	returStore := &retur.PgStore{Pool: pool}
	returBuilder := &retur.Builder{
		Sessions: &retur.SessionStore{R: redisClient, TTL: cfg.ReturnDraftTTL},
		Sales:    salesStore,
		Catalog:  catalogSvc,
		Stock:    guard,
		Store:    returStore,
		Events:   bus,
	}
	returApproval := &retur.Approval{
		Store:   returStore,
		Locker:  lock.Locker{R: redisClient},
		LockTTL: cfg.DecisionLockTTL,
		Events:  bus,
		Recon:   recon,
		Logger:  logger,
	}
	returHandler := &retur.Handler{
		Builder:  returBuilder,
		Approval: returApproval,
		Store:    returStore,
		Validate: validate,
	}

	verifier := auth.Verifier{Secret: []byte(cfg.JWTSecret), Issuer: cfg.JWTIssuer}
	authMW := auth.Middleware{Verifier: verifier}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	limiterStore, err := app.NewLimiterStore(redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise limiter store")
	}
	writeLimiter, err := app.NewWriteLimiter(limiterStore, cfg.WriteRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise write limiter")
	}

	// Commit endpoints get a tighter per-cashier budget on top of the
	// per-IP write limit: a register never fires thirty checkouts in a
	// minute, but a stuck client easily can.
	commitLimiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "rl:commit:"},
		Config: ratelimit.Config{
			Key:    operatorKey,
			Window: time.Minute,
			Max:    30,
		},
		OnError: func(err error) {
			logger.Error().Err(err).Msg("rate limit check")
		},
	}

	var httpMetrics *obs.HTTPMetrics
	if cfg.MetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBuckets), nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers{Enable: true}.Middleware)
	r.Use(security.BodyLimit{Max: maxBodyBytes}.Middleware)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if cfg.MetricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.AppEnv == "development" {
		r.Mount("/debug/pprof", newPprofMux())
	}

	healthHandler := health.Handler{
		Checker: readinessChecker{db: pool, redis: redisClient},
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(authMW.RequireOperator)

		v.Get("/products/{id}", catalogHandler.Product)

		v.Route("/carts", func(c chi.Router) {
			c.Get("/{id}", cartHandler.Get)
			c.Group(func(g chi.Router) {
				g.Use(writeLimiter)
				g.Post("/", cartHandler.Create)
				g.Post("/{id}/items", cartHandler.AddItem)
				g.Patch("/{id}/items/{index}", cartHandler.UpdateQuantity)
				g.Delete("/{id}/items/{index}", cartHandler.RemoveItem)
				g.Patch("/{id}", cartHandler.Update)
				g.Delete("/{id}", cartHandler.Discard)
			})
		})

		v.With(writeLimiter, commitLimiter.Middleware, idem.Middleware).
			Post("/checkout", checkoutHandler.Process)

		v.Route("/transactions", func(t chi.Router) {
			t.Get("/", salesHandler.ListRecent)
			t.Get("/{number}", salesHandler.GetByNumber)
		})

		v.Route("/returns", func(ret chi.Router) {
			ret.Get("/", returHandler.List)

			ret.Route("/drafts", func(d chi.Router) {
				d.Use(writeLimiter)
				d.Post("/", returHandler.StartDraft)
				d.Get("/{id}", returHandler.GetDraft)
				d.Patch("/{id}", returHandler.UpdateDraft)
				d.Delete("/{id}", returHandler.DiscardDraft)
				d.Post("/{id}/items", returHandler.AddItem)
				d.Patch("/{id}/items/{index}", returHandler.UpdateItem)
				d.Delete("/{id}/items/{index}", returHandler.RemoveItem)
				d.Post("/{id}/replacements", returHandler.AddReplacement)
				d.Patch("/{id}/replacements/{index}", returHandler.UpdateReplacement)
				d.Delete("/{id}/replacements/{index}", returHandler.RemoveReplacement)
				d.With(idem.Middleware).Post("/{id}/submit", returHandler.SubmitDraft)
			})

			ret.Get("/{id}", returHandler.Get)
			ret.Group(func(g chi.Router) {
				g.Use(writeLimiter, commitLimiter.Middleware)
				g.Post("/{id}/approve", returHandler.Approve)
				g.Post("/{id}/reject", returHandler.Reject)
				g.Delete("/{id}", returHandler.Delete)
			})
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-runCtx.Done():
		logger.Info().Msg("shutdown signal received")
		health.SetReady(false)
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown server")
		}
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func operatorKey(r *http.Request) string {
	if op, ok := common.OperatorFrom(r.Context()); ok {
		return op.CashierID.String()
	}
	return r.RemoteAddr
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	return mux
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}
