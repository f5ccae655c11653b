package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	echoSwagger "github.com/swaggo/echo-swagger"
	"golang.org/x/time/rate"

	_ "github.com/arqon/siteapi/docs"
	httpHandlers "github.com/arqon/siteapi/internal/adapters/http"
	"github.com/arqon/siteapi/internal/adapters/repository"
	"github.com/arqon/siteapi/internal/application/services"
	"github.com/arqon/siteapi/internal/domain/entities"
	"github.com/arqon/siteapi/internal/infrastructure/config"
	"github.com/arqon/siteapi/internal/infrastructure/logger"
	"github.com/arqon/siteapi/internal/infrastructure/mailer"
	"github.com/arqon/siteapi/internal/infrastructure/ratelimit"
	"github.com/arqon/siteapi/internal/infrastructure/storage"
	"github.com/arqon/siteapi/internal/infrastructure/uploads"
	"github.com/arqon/siteapi/internal/ports"
	"github.com/arqon/siteapi/internal/security"
)

// Server represents the HTTP server
type Server struct {
	echo   *echo.Echo
	config *config.Config
	logger *logger.Logger

	projectStore *storage.Store[entities.Project]
	articleStore *storage.Store[entities.Article]
	images       *uploads.Store
	counters     ratelimit.CounterStore
	closers      []io.Closer

	rejections *prometheus.CounterVec
}

type options struct {
	notifier ports.Notifier
	counters ratelimit.CounterStore
}

// Option customizes the dependencies built by New
type Option func(*options)

// WithNotifier replaces the SMTP notifier
func WithNotifier(n ports.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithCounterStore replaces the rate limit counter store
func WithCounterStore(cs ratelimit.CounterStore) Option {
	return func(o *options) { o.counters = cs }
}

// New creates a new server instance. Both record stores are initialized
// before it returns.
func New(cfg *config.Config, appLogger *logger.Logger, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	e := echo.New()

	// Set custom validator
	e.Validator = httpHandlers.NewValidator()

	// Configure Echo
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	e.Server.IdleTimeout = cfg.Server.IdleTimeout
	if cfg.Server.TrustProxy {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	} else {
		e.IPExtractor = echo.ExtractIPDirect()
	}

	// Custom error handler
	e.HTTPErrorHandler = customErrorHandler(appLogger, cfg.App.IsProduction())

	server := &Server{
		echo:   e,
		config: cfg,
		logger: appLogger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize record stores
	server.projectStore = repository.NewProjectStore(filepath.Join(cfg.Storage.DataDir, "projects.json"), appLogger)
	server.articleStore = repository.NewArticleStore(filepath.Join(cfg.Storage.DataDir, "articles.json"), appLogger)
	if err := server.projectStore.Init(ctx); err != nil {
		return nil, err
	}
	if err := server.articleStore.Init(ctx); err != nil {
		return nil, err
	}
	server.images = uploads.NewStore(cfg.Storage.PublicDir, appLogger)
	server.images.TrackReferences(server.imageInUse)

	// Rate limit counters
	server.counters = o.counters
	if server.counters == nil {
		counters, err := newCounterStore(ctx, cfg.Redis, appLogger)
		if err != nil {
			return nil, err
		}
		server.counters = counters
	}

	notifier := o.notifier
	if notifier == nil {
		n, err := server.newNotifier()
		if err != nil {
			return nil, err
		}
		notifier = n
	}

	// Initialize repositories
	projectRepo := repository.NewProjectRepository(server.projectStore)
	articleRepo := repository.NewArticleRepository(server.articleStore)

	// Initialize services
	emailLimiter := ratelimit.NewLimiter(server.counters, "email", cfg.Security.EmailLimit, cfg.Security.EmailWindow)
	projectService := services.NewProjectService(projectRepo, server.images, appLogger)
	articleService := services.NewArticleService(articleRepo, server.images, appLogger)
	contactService := services.NewContactService(notifier, emailLimiter, appLogger)

	// Initialize handlers
	handlers := routeHandlers{
		health:    httpHandlers.NewHealthHandler(cfg.App),
		project:   httpHandlers.NewProjectHandler(projectService, appLogger),
		article:   httpHandlers.NewArticleHandler(articleService, appLogger),
		contact:   httpHandlers.NewContactHandler(contactService, appLogger),
		contactIP: ratelimit.NewLimiter(server.counters, "contact_ip", cfg.Security.ContactLimit, cfg.Security.ContactWindow),
	}

	// Setup metrics
	if cfg.Metrics.Enabled {
		server.setupMetrics()
	}

	// Setup middleware
	server.setupMiddleware()

	// Setup routes
	server.setupRoutes(handlers)

	return server, nil
}

func newCounterStore(ctx context.Context, cfg config.RedisConfig, appLogger *logger.Logger) (ratelimit.CounterStore, error) {
	if cfg.URL == "" {
		return ratelimit.NewMemoryStore(time.Minute), nil
	}

	client, err := ratelimit.DialRedis(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	appLogger.Infow("Using Redis for rate limit counters", "addr", client.Options().Addr)
	return ratelimit.NewRedisStore(client, nil), nil
}

// imageInUse reports whether any stored record still points at url
func (s *Server) imageInUse(url string) bool {
	for _, p := range s.projectStore.List() {
		if p.Image == url {
			return true
		}
	}
	for _, a := range s.articleStore.List() {
		if a.ImageURL == url {
			return true
		}
	}
	return false
}

func (s *Server) newNotifier() (ports.Notifier, error) {
	var sender mailer.Sender
	transport, err := mailer.NewSMTPTransport(s.config.SMTP, s.logger)
	switch {
	case errors.Is(err, mailer.ErrNotConfigured):
		s.logger.Warn("SMTP_HOST is not set, contact submissions will fail")
		sender = mailer.Unconfigured{}
	case err != nil:
		return nil, err
	default:
		s.closers = append(s.closers, transport)
		sender = transport
	}
	return mailer.NewNotifier(sender, s.config.SMTP), nil
}

type routeHandlers struct {
	health    *httpHandlers.HealthHandler
	project   *httpHandlers.ProjectHandler
	article   *httpHandlers.ArticleHandler
	contact   *httpHandlers.ContactHandler
	contactIP *ratelimit.Limiter
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.echo.Use(middleware.Recover())

	// Request ID middleware
	s.echo.Use(middleware.RequestID())

	// Logger middleware
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogError:     true,
		LogRemoteIP:  true,
		LogUserAgent: true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, values middleware.RequestLoggerValues) error {
			reqLogger := s.logger.WithRequestID(values.RequestID)
			latency := float64(values.Latency.Nanoseconds()) / 1000000

			if values.Error != nil {
				reqLogger.WithError(values.Error).Errorw("HTTP request failed",
					"method", values.Method,
					"path", values.URI,
					"status_code", values.Status,
					"duration_ms", latency,
					"user_agent", values.UserAgent,
					"ip", values.RemoteIP,
				)
				return nil
			}

			reqLogger.LogHTTPRequest(values.Method, values.URI, values.UserAgent, values.RemoteIP, values.Status, latency)
			return nil
		},
	}))

	// Security headers
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'self'; img-src 'self' data: https:",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}))

	// Parameter pollution guard
	s.echo.Use(s.hppGuard)

	// Rate limiting middleware
	window := s.config.Security.RateLimitWindow
	s.echo.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(float64(s.config.Security.RateLimitRequests) / window.Seconds()),
				Burst:     s.config.Security.RateLimitRequests,
				ExpiresIn: window,
			},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			id := ctx.RealIP()
			return id, nil
		},
		ErrorHandler: func(context echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "Forbidden")
		},
		DenyHandler: func(context echo.Context, identifier string, err error) error {
			s.reject("rate_limit")
			s.logger.LogSecurityEvent("rate_limited", identifier, map[string]interface{}{
				"path": context.Request().URL.Path,
			})
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests, please try again later")
		},
	}))

	// CORS middleware
	origins := s.config.Security.AllowedOrigins()
	s.echo.Use(s.originGuard(origins))
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowMethods: []string{echo.GET, echo.HEAD, echo.PUT, echo.POST, echo.DELETE},
		MaxAge:       86400,
	}))

	// Body limit
	s.echo.Use(middleware.BodyLimit(s.config.Server.BodyLimit))

	// Timeout middleware
	s.echo.Use(middleware.ContextTimeoutWithConfig(middleware.ContextTimeoutConfig{
		Timeout: 30 * time.Second,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(h routeHandlers) {
	// Uploaded images
	s.echo.Static(strings.TrimSuffix(uploads.URLPrefix, "/"), s.images.Root())

	// Swagger documentation
	if !s.config.App.IsProduction() {
		s.echo.GET("/swagger/*", echoSwagger.WrapHandler)
	}

	api := s.echo.Group("/api")

	// Health check routes
	api.GET("/health", h.health.Health)

	// Public landing data
	api.GET("/projects", h.project.ListProjects)
	api.GET("/articles", h.article.ListArticles)

	// Contact routes
	api.POST("/contact", h.contact.Submit, s.contactRateLimit(h.contactIP), s.attackScan(security.NewScanner()))
	api.GET("/contact/health", h.contact.Health)

	// Admin routes
	gate := newAdminGate(s.config.Admin, s.config.App.IsDevelopment(), s.logger, s.reject)
	admin := api.Group("/admin", gate.middleware)

	admin.GET("/projects", h.project.ListProjects)
	admin.POST("/projects", h.project.CreateProject)
	admin.GET("/projects/:id", h.project.GetProject)
	admin.PUT("/projects/:id", h.project.UpdateProject)
	admin.DELETE("/projects/:id", h.project.DeleteProject)

	admin.GET("/articles", h.article.ListArticles)
	admin.POST("/articles", h.article.CreateArticle)
	admin.GET("/articles/:id", h.article.GetArticle)
	admin.PUT("/articles/:id", h.article.UpdateArticle)
	admin.DELETE("/articles/:id", h.article.DeleteArticle)
}

// setupMetrics configures Prometheus metrics
func (s *Server) setupMetrics() {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	s.rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_rejections_total",
			Help: "Requests rejected by the security pipeline",
		},
		[]string{"reason"},
	)

	registry.MustRegister(requestsTotal, requestDuration, s.rejections)

	// Custom metrics middleware
	s.echo.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start)
			status := c.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			}

			requestsTotal.WithLabelValues(
				c.Request().Method,
				c.Path(),
				strconv.Itoa(status),
			).Inc()

			requestDuration.WithLabelValues(
				c.Request().Method,
				c.Path(),
			).Observe(duration.Seconds())

			return err
		}
	})

	// Metrics endpoint
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	s.echo.GET("/metrics", echo.WrapHandler(metricsHandler))
}

func (s *Server) reject(reason string) {
	if s.rejections != nil {
		s.rejections.WithLabelValues(reason).Inc()
	}
}

// Start starts the HTTP server
func (s *Server) Start(address string) error {
	s.logger.Infow("Starting server", "address", address, "environment", s.config.App.Environment)
	return s.echo.Start(address)
}

// Shutdown gracefully shuts down the server, waits for pending upload
// removals and releases the counter store and SMTP sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")
	err := s.echo.Shutdown(ctx)

	s.images.Wait()
	if cerr := s.counters.Close(); cerr != nil {
		s.logger.Warnw("Failed to close rate limit store", "error", cerr)
	}
	for _, c := range s.closers {
		if cerr := c.Close(); cerr != nil {
			s.logger.Warnw("Failed to close resource", "error", cerr)
		}
	}
	return err
}

// customErrorHandler renders every error as {success:false, message}. Server
// errors carry their cause in "error" outside production.
func customErrorHandler(logger *logger.Logger, production bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		var (
			code   = http.StatusInternalServerError
			resp   = httpHandlers.ErrorResponse{Message: "Internal server error"}
			detail = err
		)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			switch m := he.Message.(type) {
			case httpHandlers.ErrorResponse:
				resp = m
			case string:
				resp.Message = m
			default:
				resp.Message = http.StatusText(code)
			}
			detail = he.Internal
			if he.Internal != nil {
				err = fmt.Errorf("%v, %v", err, he.Internal)
			}
		}
		resp.Success = false

		if code >= http.StatusInternalServerError {
			logger.Errorw("Internal server error", "error", err, "path", c.Request().URL.Path)
			if !production && detail != nil {
				resp.Error = detail.Error()
			}
		}

		// Send response
		if !c.Response().Committed {
			if c.Request().Method == echo.HEAD {
				err = c.NoContent(code)
			} else {
				err = c.JSON(code, resp)
			}
			if err != nil {
				logger.Errorw("Error sending response", "error", err)
			}
		}
	}
}
