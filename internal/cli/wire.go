package cli

import (
	"context"
	"fmt"
	"log"
	netmail "net/mail"
	"os"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"quiz-platform/internal/app"
	"quiz-platform/internal/auth"
	"quiz-platform/internal/config"
	"quiz-platform/internal/infra/certificate"
	"quiz-platform/internal/infra/mail"
	"quiz-platform/internal/infra/memory"
	"quiz-platform/internal/infra/payment"
	"quiz-platform/internal/infra/postgres"
	redisstore "quiz-platform/internal/infra/redis"
	"quiz-platform/internal/jobs"
	"quiz-platform/internal/logging"
)

type logger interface {
	app.Logger
	Std() *log.Logger
}

// newLogger returns the process logger and a flush function.
func newLogger(cfg config.Config) (logger, func()) {
	base := logging.New(cfg.App.Name, cfg.App.Debug)
	if cfg.Rollbar.Token == "" {
		return base, func() {}
	}
	host, _ := os.Hostname()
	rl := logging.NewRollbarLogger(base, logging.RollbarConfig{
		Token:       cfg.Rollbar.Token,
		Environment: cfg.App.Env,
		ServerHost:  host,
	})
	return rl, rl.Close
}

// backends are the storage implementations selected by config: Postgres when a URL is set,
// Redis for caches, leaderboards and the task queue when an address is set, memory otherwise.
type backends struct {
	users       app.UserRepository
	catalog     app.CatalogRepository
	attempts    app.AttemptRepository
	certs       app.CertificateRepository
	courses     app.CourseRepository
	payments    app.PaymentRepository
	proctoring  app.ProctoringRepository
	analytics   app.AnalyticsRepository
	quizzes     app.QuizSource
	leaderboard app.LeaderboardStore
	feeds       app.FeedRegistry
	queue       jobs.Queue

	db    *bun.DB
	pool  *pgxpool.Pool
	redis *redis.Client
}

func openBackends(ctx context.Context, cfg config.Config, log app.Logger) (*backends, error) {
	b := &backends{}
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)

	var loader memory.QuizLoader
	if cfg.Postgres.URL != "" {
		b.db = postgres.Open(cfg.Postgres.URL)
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.pool = pool

		store := postgres.NewStore(b.db)
		b.users, b.catalog, b.attempts, b.certs = store, store, store, store
		b.courses, b.payments, b.proctoring = store, store, store
		b.analytics = postgres.NewAnalytics(pool)
		loader = postgres.NewQuizLoader(pool)
	} else {
		log.Warn("postgres url not configured, data is kept in memory")
		store := memory.NewStore()
		b.users, b.catalog, b.attempts, b.certs = store, store, store, store
		b.courses, b.payments, b.proctoring = store, store, store
		b.analytics = store.Analytics()
		loader = store
	}

	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := b.redis.Ping(ctx).Err(); err != nil {
			b.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
		b.quizzes = redisstore.NewQuizRepository(b.redis, loader, quizTTL)
		b.leaderboard = redisstore.NewLeaderboard(b.redis)
		b.feeds = redisstore.NewFeedStore(b.redis, redisTTL)
		b.queue = redisstore.NewTaskQueue(b.redis)
	} else {
		b.quizzes = memory.NewQuizRepository(loader, quizTTL)
		b.leaderboard = memory.NewLeaderboard()
		b.feeds = memory.NewFeedStore()
		b.queue = memory.NewTaskQueue(1024)
	}
	return b, nil
}

// Ping checks every configured network backend.
func (b *backends) Ping(ctx context.Context) error {
	if b.db != nil {
		if err := b.db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if b.redis != nil {
		if err := b.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (b *backends) Close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
	if b.db != nil {
		_ = b.db.Close()
	}
}

// services holds every use case plus the background task handler.
type services struct {
	identity     *app.IdentityService
	catalog      *app.CatalogService
	attempts     *app.AttemptService
	leaderboard  *app.LeaderboardService
	certificates *app.CertificateService
	analytics    *app.AnalyticsService
	courses      *app.CourseService
	payments     *app.PaymentService
	proctoring   *app.ProctoringService
	postprocess  *app.PostProcessor
	tokens       *auth.Manager
}

func newServices(cfg config.Config, b *backends, log logger) (*services, error) {
	tokens, err := auth.NewManager(auth.Config{
		Secret:     cfg.Auth.JWTSecret,
		Issuer:     cfg.App.Name,
		AccessTTL:  config.TTLDuration(cfg.Auth.AccessTTL, 0),
		RefreshTTL: config.TTLDuration(cfg.Auth.RefreshTTL, 0),
	})
	if err != nil {
		return nil, err
	}

	notifier, err := newNotifier(cfg, log)
	if err != nil {
		return nil, err
	}

	taxRate := decimal.Zero
	if cfg.Payments.TaxRate != "" {
		if taxRate, err = decimal.NewFromString(cfg.Payments.TaxRate); err != nil {
			return nil, fmt.Errorf("payments.tax_rate: %w", err)
		}
	}

	deps := app.CertificateDeps{
		Certificates: b.certs,
		Attempts:     b.attempts,
		Users:        b.users,
		Quizzes:      b.quizzes,
		Courses:      b.courses,
		Mail:         notifier,
		Log:          log,
	}
	if cfg.Certificates.CloudinaryURL != "" {
		storage, err := certificate.NewCloudinaryStorage(cfg.Certificates.CloudinaryURL, cfg.Certificates.Folder)
		if err != nil {
			return nil, err
		}
		deps.Storage = storage
		deps.Renderer = certificate.NewChromeRenderer(cfg.App.Name, cfg.Certificates.VerifyBaseURL,
			config.TTLDuration(cfg.Certificates.RenderTimeout, 30*time.Second))
	}

	secret := cfg.Quiz.Secret
	if secret == "" {
		secret = cfg.Auth.JWTSecret
	}
	selector := app.NewSelector(secret, cfg.Quiz.SelectionSize)
	grace := config.TTLDuration(cfg.Quiz.Grace, app.DefaultSubmitGrace)

	s := &services{tokens: tokens}
	s.identity = app.NewIdentityService(b.users, tokens, notifier, app.IdentityConfig{
		BcryptCost:      cfg.Auth.BcryptCost,
		VerificationTTL: config.TTLDuration(cfg.Auth.VerificationTTL, 0),
		ResetTTL:        config.TTLDuration(cfg.Auth.ResetTTL, 0),
	}, log)
	s.catalog = app.NewCatalogService(b.catalog, b.quizzes)
	s.attempts = app.NewAttemptService(b.attempts, b.quizzes, selector, b.queue, grace, log)
	s.leaderboard = app.NewLeaderboardService(b.attempts, b.users, b.quizzes, b.leaderboard, b.feeds)
	s.analytics = app.NewAnalyticsService(b.analytics, b.quizzes, b.courses)
	s.certificates = app.NewCertificateService(deps)
	s.courses = app.NewCourseService(b.courses, b.payments, b.queue, log)
	s.payments = app.NewPaymentService(b.payments, b.users, b.courses, s.courses,
		payment.NewMidtransGateway(cfg.Payments.MidtransServerKey, cfg.Payments.Production),
		app.PaymentConfig{Currency: cfg.Payments.Currency, TaxRate: taxRate}, log)
	s.proctoring = app.NewProctoringService(b.proctoring, b.quizzes, b.attempts, s.attempts, log)
	s.postprocess = app.NewPostProcessor(b.attempts, b.users, b.quizzes, s.leaderboard, s.analytics, s.certificates, notifier, log)
	return s, nil
}

// newNotifier delivers through SendGrid when a key is configured and logs emails otherwise.
func newNotifier(cfg config.Config, log logger) (*mail.Notifier, error) {
	var sender mail.Sender
	if cfg.Mail.SendgridKey != "" {
		from := netmail.Address{Name: cfg.Mail.FromName, Address: cfg.Mail.FromEmail}
		sender = mail.NewSendgridSender(cfg.Mail.SendgridKey, cfg.App.Name, from)
	} else {
		sender = mail.NewConsoleSender(log)
	}
	return mail.NewNotifier(sender, mail.Config{AppName: cfg.App.Name, FrontendBaseURL: cfg.App.FrontendBaseURL})
}
