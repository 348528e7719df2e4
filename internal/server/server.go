package server

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	nrecho "github.com/newrelic/go-agent/v3/integrations/nrecho-v4"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/birdhouse-labs/aviary/internal/config"
	"github.com/birdhouse-labs/aviary/internal/handler"
	"github.com/birdhouse-labs/aviary/internal/oplog"
	"github.com/birdhouse-labs/aviary/internal/ratelimit"
	"github.com/birdhouse-labs/aviary/internal/repository"
	"github.com/birdhouse-labs/aviary/internal/response"
	"github.com/birdhouse-labs/aviary/internal/storage"
)

const apiCacheControl = "public, max-age=3600, stale-while-revalidate=86400"

// Server holds the Echo app and dependencies.
type Server struct {
	Echo   *echo.Echo
	Config *config.Config
	Birds  *repository.BirdRepository
	Oplog  *oplog.Logger
}

// New opens the backing stores named in cfg and builds the Echo server with
// all routes registered.
func New(cfg *config.Config, log zerolog.Logger) (*Server, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, err
	}

	fileStore, err := repository.NewFileStore(cfg.Storage.BirdsPath())
	if err != nil {
		return nil, err
	}
	birds, err := repository.New(fileStore, log)
	if err != nil {
		return nil, err
	}
	images, err := storage.NewImageStore(cfg.Storage.ImagesDir, log)
	if err != nil {
		return nil, err
	}
	ops, err := oplog.Open(cfg.Storage.OplogPath(), cfg.Oplog.Retention(), log)
	if err != nil {
		return nil, err
	}
	limiter, err := ratelimit.Open(cfg.Storage.RateLimitPath(), cfg.RateLimit.Limit, cfg.RateLimit.Window(), log)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover(), middleware.Logger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Server.CORSAllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderContentType, "X-Operation"},
		ExposeHeaders: []string{
			"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After",
		},
	}))
	if cfg.Observability.LicenseKey != "" {
		app, err := newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.Observability.AppName),
			newrelic.ConfigLicense(cfg.Observability.LicenseKey),
		)
		if err != nil {
			log.Warn().Err(err).Msg("new relic disabled")
		} else {
			e.Use(nrecho.Middleware(app))
		}
	}
	if cfg.Server.StaticDir != "" {
		e.Use(middleware.StaticWithConfig(middleware.StaticConfig{
			Root:  cfg.Server.StaticDir,
			HTML5: true,
			Skipper: func(c echo.Context) bool {
				return strings.HasPrefix(c.Request().URL.Path, "/api")
			},
		}))
	}

	h := handler.New(birds, images, log)

	api := e.Group("/api", cacheControl)
	api.GET("/health", health)
	api.GET("/birds", h.List)
	api.GET("/birds/count", h.Count)
	api.GET("/birds/:id", h.Get)
	api.Static("/images", images.Dir())

	mutate := api.Group("/birds",
		middleware.BodyLimit(cfg.Server.BodyLimit),
		throttle(limiter, ops),
	)
	mutate.POST("", h.Create)
	mutate.PUT("/:id", h.Update)
	mutate.DELETE("/:id", h.Delete)

	return &Server{Echo: e, Config: cfg, Birds: birds, Oplog: ops}, nil
}

// throttle applies the per-IP sliding window to mutating routes, then records
// the operation in the operation log. A rejected request is never logged;
// stale limiter entries stay on disk until the next allowed request prunes
// them.
func throttle(limiter *ratelimit.Limiter, ops *oplog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ip := c.RealIP()
			d := limiter.Check(ip, req.Method, req.URL.Path)
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				h.Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds()))
				return response.RateLimited(c, d.RetryAfterSeconds(), d.ResetAt)
			}
			ops.Record(ip, handler.Operation(c), req.Method, req.URL.Path, req.UserAgent())
			return next(c)
		}
	}
}

// cacheControl marks every /api response cacheable with background
// revalidation, matching what the offline-capable front-end expects.
func cacheControl(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set("Cache-Control", apiCacheControl)
		return next(c)
	}
}

func health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Start starts the HTTP server. Blocks until the context is cancelled or the
// server fails. On context cancel, Shutdown drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()
	s.Echo.Server.ReadTimeout = time.Duration(s.Config.Server.ReadTimeout) * time.Second
	s.Echo.Server.WriteTimeout = time.Duration(s.Config.Server.WriteTimeout) * time.Second
	s.Echo.Server.IdleTimeout = time.Duration(s.Config.Server.IdleTimeout) * time.Second
	return s.Echo.Start(":" + s.Config.Server.Port)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}
