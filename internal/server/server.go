// Package server contains HTTP and WebSocket handlers for the directory API.
package server

import (
	"context"
	"log/slog"
	"strings"
	"time"

	_ "memberdir/docs" // swagger docs
	"memberdir/internal/bootstrap"
	"memberdir/internal/config"
	"memberdir/internal/directory"
	"memberdir/internal/featureflags"
	"memberdir/internal/middleware"
	"memberdir/internal/models"
	"memberdir/internal/notifications"
	"memberdir/internal/repository"
	"memberdir/internal/service"
	"memberdir/internal/session"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	readTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	// instanceID tags the directory changes this server publishes.
	instanceID string

	profileRepo  repository.ProfileRepository
	skillRepo    repository.SkillRepository
	identityRepo repository.IdentityRepository
	featureFlags *featureflags.Manager

	store    *directory.RemoteStore
	registry *directory.Registry
	auth     *service.AuthService
	broker   *session.Broker
	notifier *notifications.Notifier
	hub      *notifications.Hub

	unsubscribeSessions func()
}

// Option customizes a Server built by NewWithDeps.
type Option func(*options)

type options struct {
	mailer service.Mailer
}

// WithMailer replaces the log mailer used to deliver sign-in codes.
func WithMailer(m service.Mailer) Option {
	return func(o *options) { o.mailer = m }
}

// New creates a server, connecting to the database and Redis from cfg. Pending
// migrations are applied and the skills taxonomy is ensured first.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	db, rdb, err := bootstrap.InitRuntime(cfg, bootstrap.Options{
		Migrate:      true,
		SeedTaxonomy: true,
		DemoMembers:  cfg.SeedDemoMembers,
	})
	if err != nil {
		return nil, err
	}
	return NewWithDeps(cfg, db, rdb, opts...)
}

// NewWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil; realtime delivery then stays in-process and
// sign-in codes cannot be stored.
func NewWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, opts ...Option) (*Server, error) {
	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("memberdir-api"),
		profileRepo:    repository.NewProfileRepository(db),
		skillRepo:      repository.NewSkillRepository(db),
		identityRepo:   repository.NewIdentityRepository(db),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		broker:         session.NewBroker(),
		notifier:       notifications.NewNotifier(redisClient),
		hub:            notifications.NewHub(),
		instanceID:     uuid.NewString(),
	}

	o := &options{mailer: service.LogMailer{Logger: middleware.Logger}}
	for _, opt := range opts {
		opt(o)
	}

	s.store = directory.NewStore(s.profileRepo, s.skillRepo, directory.WithFlags(s.featureFlags))
	s.registry = directory.NewRegistry(s.store,
		directory.WithReconcilerFactory(s.reconcilerFor),
		directory.WithEventForwarder(s.forwardDirectoryEvent),
		directory.WithChangePublisher(s.publishChange),
	)
	s.registry.Attach(s.broker)
	s.unsubscribeSessions = s.broker.Subscribe(s.forwardSessionEvent)

	s.auth = service.NewAuthService(
		s.identityRepo,
		redisClient,
		service.NewOTPStore(redisClient, cfg.OTPTTL(), cfg.OTPMaxAttempts),
		service.NewTokens(cfg.JWTSecret, cfg.SessionTTL(), cfg.RememberTTL()),
		o.mailer,
		s.broker,
		service.AuthConfig{CommunityPassword: cfg.CommunityPassword, PublicURL: cfg.PublicURL},
	)

	return s, nil
}

// reconcilerFor picks the configured policy, upgraded to polling for members
// in the poll_reconcile rollout.
func (s *Server) reconcilerFor(identity session.Identity) directory.Reconciler {
	mode := s.config.ReconcileMode
	if s.featureFlags.Enabled(featureflags.PollReconcile, identity.ID) {
		mode = directory.ReconcilePoll
	}
	return directory.NewReconciler(mode, s.config.ReconcileDelay(), s.config.ReconcileMaxAttempts)
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	app.Use(middleware.TracingMiddleware())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests; they should be handled by CORS.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return models.RespondWithError(c, fiber.StatusTooManyRequests,
				models.NewRateLimitedError("Too many requests, please try again later."))
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Member Directory Metrics",
	}))

	// Swagger documentation
	api.Get("/swagger/*", swagger.HandlerDefault)

	api.Get("/categories", s.GetCategories)

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/signup", middleware.RateLimit(
		s.redis, 3, 10*time.Minute, "signup"), s.Signup)
	auth.Post("/otp", middleware.RateLimit(
		s.redis, 5, 10*time.Minute, "otp_send"), s.SendCode)
	auth.Post("/otp/verify", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "otp_verify"), s.VerifyCode)
	auth.Post("/otp/resend", s.ResendCode)
	auth.Get("/session", s.AuthRequired(), s.GetSession)
	auth.Post("/refresh", s.Refresh)
	auth.Post("/logout", s.Logout)

	// WebSocket routes sit ahead of the protected group so a ticket is
	// redeemed exactly once.
	api.Post("/ws/ticket", s.AuthRequired(), s.IssueWSTicket)
	api.Get("/ws", s.AuthRequired(), s.WebsocketHandler())

	// Protected routes
	protected := api.Group("", s.AuthRequired())

	skills := protected.Group("/skills")
	skills.Get("/", s.GetSkills)
	skills.Get("/suggest", s.SuggestSkills)

	profile := protected.Group("/profile")
	profile.Get("/me", s.GetMyProfile)
	profile.Get("/setup", s.GetSetupStatus)
	profile.Post("/setup", middleware.RateLimit(
		s.redis, 5, 10*time.Minute, "profile_setup"), s.CompleteSetup)

	dir := protected.Group("/directory")
	dir.Get("/", s.GetDirectory)
	dir.Patch("/query", s.UpdateQuery)
	dir.Post("/reload", s.ReloadDirectory)
	dir.Post("/form", s.OpenForm)
	dir.Delete("/form", s.CloseForm)
	dir.Post("/form/submit", middleware.RateLimit(
		s.redis, 10, time.Minute, "profile_write"), s.SubmitForm)
	dir.Get("/profiles/:userId", s.GetDirectoryProfile)
	dir.Delete("/profiles/:userId", s.DeleteProfile)

	protected.Get("/feature-flags", s.GetFeatureFlags)

}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readTimeout)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		// Sign-in codes live in Redis, so it is required for readiness.
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"views": s.registry.Len(),
		"time":  time.Now(),
	})
}

// App builds the Fiber app with middleware and routes.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "Member Directory API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error",
				slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// StartWiring connects the hub to the notifier. It runs until Shutdown.
func (s *Server) StartWiring() error {
	if s.shutdownCtx == nil {
		s.shutdownCtx, s.shutdownFn = context.WithCancel(context.Background())
	}
	return s.hub.StartWiring(s.shutdownCtx, s.notifier, s.handleChange)
}

// Start starts the server
func (s *Server) Start() error {
	s.app = s.App()

	if err := s.StartWiring(); err != nil {
		middleware.Logger.Error("failed to start hub wiring", slog.String("error", err.Error()))
	}

	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancel the server-scoped context to stop the subscriber
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		middleware.Logger.Error("error shutting down hub", slog.String("error", err.Error()))
	}
	if s.unsubscribeSessions != nil {
		s.unsubscribeSessions()
	}
	s.registry.Close()

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}

// AuthRequired resolves the caller's session from a WebSocket ticket, a
// bearer token or the session cookie.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		isWSPath := strings.HasPrefix(c.Path(), "/api/ws")

		token := ""
		if ticket := c.Query("ticket"); ticket != "" && isWSPath {
			redeemed, err := s.redeemWSTicket(c.UserContext(), ticket)
			if err != nil {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
			}
			token = redeemed
		}
		if token == "" {
			token = tokenFromRequest(c)
		}
		if token == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		sess, err := s.auth.GetSession(c.UserContext(), token)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized, err)
		}

		c.Locals("userID", sess.Identity.ID)
		c.Locals("session", sess)
		c.Locals("sessionID", sess.ID)
		c.Locals("token", token)
		ctx := session.WithSession(c.UserContext(), sess)
		ctx = context.WithValue(ctx, middleware.UserIDKey, sess.Identity.ID)
		ctx = context.WithValue(ctx, middleware.SessionIDKey, sess.ID)
		c.SetUserContext(ctx)

		return c.Next()
	}
}

// tokenFromRequest reads the bearer token, falling back to the session cookie.
func tokenFromRequest(c *fiber.Ctx) string {
	if authHeader := c.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	return c.Cookies(sessionCookie)
}
