// Command identityd serves the identity engine over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/account"
	"github.com/MrEthical07/goIdentity/httpapi"
	"github.com/MrEthical07/goIdentity/internal/logging"
	"github.com/MrEthical07/goIdentity/internal/serverconfig"
	"github.com/MrEthical07/goIdentity/mail"
	"github.com/MrEthical07/goIdentity/mail/amqpmail"
	otelexport "github.com/MrEthical07/goIdentity/metrics/export/otel"
	promexport "github.com/MrEthical07/goIdentity/metrics/export/prometheus"
	"github.com/MrEthical07/goIdentity/store/memory"
	"github.com/MrEthical07/goIdentity/store/redisstore"
	"github.com/MrEthical07/goIdentity/store/sqlstore"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

func main() {
	envFile := flag.String("env-file", "", "dotenv file to load before the environment (default .env)")
	flag.Parse()

	if err := run(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "identityd: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile string) error {
	cfg, err := serverconfig.Load(envFile)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stdout, cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))
	log := logging.NewSlogLogger(logger)

	engineCfg, err := cfg.Engine()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("close failed", "error", err)
			}
		}
	}()

	var redisClient redis.UniversalClient
	// Redis backs both the account store and the rate limiter when selected.
	if cfg.Store == serverconfig.StoreRedis {
		redisClient = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{cfg.RedisAddr}})
		closers = append(closers, redisClient.Close)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}

	store, closeStore, err := openStore(ctx, cfg, redisClient, logger)
	if err != nil {
		return err
	}
	if closeStore != nil {
		closers = append(closers, closeStore)
	}

	var mailer mail.Deliverer = mail.NewLogDeliverer(log.With("component", "mail"), cfg.MailLogTokens)
	if cfg.AMQPURL != "" {
		pub, err := amqpmail.Dial(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return err
		}
		closers = append(closers, pub.Close)
		mailer = pub
	}

	builder := goIdentity.New().
		WithConfig(engineCfg).
		WithStore(store).
		WithMailer(mailer).
		WithLogger(logger)
	if redisClient != nil {
		builder = builder.WithRedis(redisClient)
	}
	engine, err := builder.Build()
	if err != nil {
		return err
	}
	closers = append(closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return engine.Shutdown(ctx)
	})

	report := engine.SecurityReport()
	logger.Info("security posture",
		"signing", report.SigningAlgorithm,
		"password_algorithm", report.Password.Algorithm,
		"lockout", report.LockoutActive,
		"session_cap", report.SessionCap,
		"rate_limit_backend", report.RateLimitBackend,
	)
	for _, w := range report.Warnings {
		logger.Warn("security warning", "detail", w)
	}

	// The OTel instruments report through whatever global provider the
	// deployment installs.
	otelExporter, err := otelexport.NewExporter(otel.Meter("github.com/MrEthical07/goIdentity"), engine,
		otelexport.WithAttributes(attribute.String("store", cfg.Store)))
	if err != nil {
		return err
	}
	closers = append(closers, otelExporter.Close)

	proxies, err := cfg.ProxyNets()
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	httpapi.New(engine, httpapi.Config{
		Prefix:         cfg.APIPrefix,
		SecureCookies:  cfg.SecureCookies,
		AccessTTL:      engineCfg.JWT.AccessTTL,
		RefreshTTL:     engineCfg.JWT.RefreshTTL,
		Metrics:        promexport.NewExporter(engine).Handler(),
		TrustedProxies: proxies,
	}, log.With("component", "http")).Mount(e)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "store", cfg.Store)
		if err := e.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg serverconfig.Config, client redis.UniversalClient, logger *slog.Logger) (account.Store, func() error, error) {
	switch cfg.Store {
	case serverconfig.StoreRedis:
		return redisstore.New(client, cfg.RedisPrefix), nil, nil
	case serverconfig.StoreSQL:
		openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		s, err := sqlstore.Open(openCtx, sqlstore.Dialect(cfg.SQLDialect), cfg.SQLDSN)
		if err != nil {
			return nil, nil, err
		}
		if cfg.SQLMigrate {
			if err := s.Migrate(openCtx); err != nil {
				_ = s.Close()
				return nil, nil, err
			}
		}
		return s, s.Close, nil
	}
	logger.Warn("memory store selected; accounts are lost on restart")
	return memory.New(), nil, nil
}
