package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	auth "github.com/goliatone/go-shop-auth"
	"github.com/goliatone/go-shop-auth/activitymap"
	"github.com/goliatone/go-shop-auth/cache"
	"github.com/goliatone/go-shop-auth/config"
	"github.com/goliatone/go-shop-auth/migrations"
	"github.com/goliatone/go-shop-auth/repository"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config.MustLoad(*configPath)); err != nil {
		log.Fatalf("authd: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := auth.NewDefaultLogger()

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DB.URL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return err
	}

	if err := migrations.Up(ctx, sqldb, "postgres"); err != nil {
		return err
	}

	repo := repository.NewRepositoryManager(db)
	repo.MustValidate()

	secret, err := auth.NewSigningSecret(cfg.GetSigningKey())
	if err != nil {
		return err
	}

	codec := auth.NewTokenCodec(secret, cfg.GetIssuer()).WithLogger(logger)

	activity := activitymap.NewSink(func(_ context.Context, record activitymap.Record) error {
		args := []any{
			"action", record.Action,
			"outcome", record.Outcome,
			"user_id", record.UserID,
			"identifier", record.Identifier,
			"occurred_at", record.OccurredAt,
		}
		if record.Delivered != nil {
			args = append(args, "delivered", *record.Delivered)
		}
		if record.Authority != "" {
			args = append(args, "authority", record.Authority, "granted_by", record.GrantedBy)
		}
		if record.Reason != "" {
			args = append(args, "reason", record.Reason)
		}
		logger.Info("auth activity", args...)
		return nil
	})

	activation := auth.NewActivationService(
		repo,
		auth.NewLoggerNotifier(logger),
		cfg.GetActivationCodeTTL(),
		cfg.GetActivationCodeLength(),
	).WithLogger(logger).WithActivitySink(activity)

	auther := auth.NewAuthenticator(repo, codec, activation, cfg).
		WithLogger(logger).
		WithActivitySink(activity).
		WithTimeout(cfg.Timeouts.Service)

	if cfg.Redis.URL != "" {
		client, err := cache.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer func(c *redis.Client) { _ = c.Close() }(client)
		auther.WithLoginThrottle(cache.NewRedisLoginThrottle(client, cfg.Lockout.MaxAttempts, cfg.Lockout.Window))
	} else {
		logger.Warn("redis not configured, login lockout disabled")
	}

	gate := auth.NewRequestAuthenticator(codec, repo.Credentials()).WithLogger(logger)

	app := fiber.New(fiber.Config{
		AppName:               "authd",
		DisableStartupMessage: true,
	})
	auth.NewHTTPController(auther, gate, auth.WithControllerLogger(logger)).Register(app, cfg)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTP.Addr())
		errCh <- app.Listen(cfg.HTTP.Addr())
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := app.ShutdownWithTimeout(cfg.Timeouts.Shutdown); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
