package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/blog-service/internal/api/http"
	"github.com/spec-kit/blog-service/internal/api/http/handlers"
	"github.com/spec-kit/blog-service/internal/auth"
	"github.com/spec-kit/blog-service/internal/config"
	"github.com/spec-kit/blog-service/internal/events"
	"github.com/spec-kit/blog-service/internal/mailer"
	"github.com/spec-kit/blog-service/internal/observability"
	"github.com/spec-kit/blog-service/internal/persistence"
	"github.com/spec-kit/blog-service/internal/repository"
	"github.com/spec-kit/blog-service/internal/repository/memory"
	"github.com/spec-kit/blog-service/internal/service"
	"github.com/spec-kit/blog-service/internal/worker"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "blog-api",
		Short:         "Blog API with email-verified accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(commandContext(cmd))
		},
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(commandContext(cmd))
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if cfg.Postgres.DSN == "" {
				return persistence.ErrNoDatabase
			}
			pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pg.Close()
			return persistence.RunMigrations(ctx, pg.PoolHandle(), logger)
		},
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

type storage struct {
	users         repository.UserRepository
	verifications repository.VerificationTokenRepository
	posts         repository.PostRepository
}

func newStorage(pg *persistence.Postgres) storage {
	if pg.Configured() {
		pool := pg.PoolHandle()
		return storage{
			users:         repository.NewUserRepository(pool),
			verifications: repository.NewVerificationTokenRepository(pool),
			posts:         repository.NewPostRepository(pool),
		}
	}
	store := memory.NewStore()
	return storage{
		users:         store.Users(),
		verifications: store.VerificationTokens(),
		posts:         store.Posts(),
	}
}

func newMailSender(cfg config.MailConfig, logger *zap.Logger) mailer.Sender {
	if cfg.SMTPHost == "" {
		logger.Warn("MAIL_SMTP_HOST not provided; verification mails are logged, not sent")
		return mailer.NewLogSender(logger)
	}
	return mailer.NewSMTPSender(cfg)
}

func newForwarder(cfg config.EventsConfig, logger *zap.Logger) (*events.Forwarder, func()) {
	if cfg.NATSURL == "" {
		return nil, func() {}
	}
	publisher, err := events.NewNATSPublisher(cfg.NATSURL)
	if err != nil {
		logger.Warn("unable to reach nats; account events stay in-process", zap.Error(err))
		return nil, func() {}
	}
	logger.Info("publishing account events to nats", zap.String("prefix", cfg.SubjectPrefix))
	return events.NewForwarder(publisher, cfg.SubjectPrefix), publisher.Close
}

func runServe(parent context.Context) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	var limiter service.LoginLimiter = service.NoopLoginLimiter{}
	if redis.Available() {
		limiter = service.NewRedisLoginLimiter(redis.Client, cfg.Auth.LoginMaxAttempts, cfg.Auth.LoginWindow())
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	forwarder, closeForwarder := newForwarder(cfg.Events, logger)
	defer closeForwarder()
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, logger, metrics, forwarder), logger)

	store := newStorage(pg)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL(), auth.WithIssuer(cfg.App.Name))
	deps := service.AuthDependencies{
		Users:         store.users,
		Verifications: service.NewVerificationService(store.verifications, cfg.Auth.VerificationTTL(), time.Now),
		Tokens:        tokens,
		Hasher:        auth.NewPasswordHasher(cfg.Auth.BcryptCost),
		Mailer:        newMailSender(cfg.Mail, logger),
		Limiter:       limiter,
		Dispatcher:    dispatcher,
		Logger:        logger,
	}
	authService := service.NewAuthService(*cfg, deps)
	accountService := service.NewAccountService(*cfg, deps)
	postService := service.NewPostService(store.posts, logger)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), store.users, cfg.Auth.CookieName, logger)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: !cfg.App.IsDevelopment(),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(authService, cfg.Auth, metrics),
		Users:          handlers.NewUsersHandler(accountService, cfg.Auth),
		Posts:          handlers.NewPostsHandler(postService),
		Admin:          handlers.NewAdminHandler(accountService),
		AuthMiddleware: authMiddleware,
		Metrics:        metrics,
	})

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		listenErr <- app.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("fiber listen: %w", err)
	case <-waitForShutdown(logger):
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return app.ShutdownWithContext(shutdownCtx)
}

func waitForShutdown(logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("shutting down", zap.String("signal", sig.String()))
		close(done)
	}()
	return done
}
