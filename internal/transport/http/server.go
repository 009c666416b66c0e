package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"quiz-platform/internal/app"
)

type (
	// Services are the use cases exposed over HTTP.
	Services struct {
		Identity     *app.IdentityService
		Catalog      *app.CatalogService
		Attempts     *app.AttemptService
		Leaderboard  *app.LeaderboardService
		Certificates *app.CertificateService
		Analytics    *app.AnalyticsService
		Courses      *app.CourseService
		Payments     *app.PaymentService
		Proctoring   *app.ProctoringService
	}

	Options struct {
		Address        string
		Debug          bool
		DisableReqLogs bool
		Tokens         TokenParser
		Services       Services
		Log            app.Logger
		// Health reports backend reachability on /healthz; nil means always healthy.
		Health func(ctx context.Context) error
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.HideBanner = true
	s.app.Debug = s.opts.Debug

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in debug mode
	if !s.opts.Debug {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	v := newRequestValidator()
	s.app.Validator = v
	s.app.JSONSerializer = sonicSerializer{}
	s.app.HTTPErrorHandler = newErrorHandler(v, s.opts.Log)

	s.app.GET("/healthz", s.health)

	authed := requireAuth(s.opts.Tokens)
	optional := optionalAuth(s.opts.Tokens)
	svc := s.opts.Services

	v1 := s.app.Group("/api/v1")
	registerIdentityAPI(v1, authed, svc.Identity)
	registerCatalogAPI(v1, authed, svc.Catalog)
	registerAttemptAPI(v1, authed, svc.Attempts)
	registerLeaderboardAPI(v1, authed, svc.Leaderboard)
	registerCertificateAPI(v1, authed, svc.Certificates)
	registerAnalyticsAPI(v1, authed, svc.Analytics)
	registerCourseAPI(v1, authed, optional, svc.Courses)
	registerPaymentAPI(v1, authed, svc.Payments)
	registerProctoringAPI(v1, authed, svc.Proctoring)

	ws := NewWSHandler(svc.Leaderboard, s.opts.Log)
	s.app.GET("/ws/quizzes/:id/leaderboard", ws.ServeWS, requireAuthFrom(s.opts.Tokens, socketLookup))
}

func (s *server) Start() error {
	err := s.app.Start(s.opts.Address)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) health(c echo.Context) error {
	if s.opts.Health != nil {
		if err := s.opts.Health(c.Request().Context()); err != nil {
			s.opts.Log.Error("health check failed", "err", err)
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
