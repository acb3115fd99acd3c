package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/internal/config"
	"github.com/MrEthical07/tokenauth/internal/rate"
	"github.com/MrEthical07/tokenauth/middleware"
	promexport "github.com/MrEthical07/tokenauth/metrics/export/prometheus"
	"github.com/MrEthical07/tokenauth/notify"
	"github.com/MrEthical07/tokenauth/password"
	"github.com/MrEthical07/tokenauth/rights"
	"github.com/MrEthical07/tokenauth/token/pgstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type serveOptions struct {
	dev           bool
	adminEmail    string
	adminPassword string
}

// purger is implemented by stores that need expired rows removed.
type purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type closer func()

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func buildApp(ctx context.Context, cfg *config.Config, opts serveOptions, logger *zap.Logger) (*app, []closer, error) {
	var closers []closer
	fail := func(err error) (*app, []closer, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		return nil, nil, err
	}

	if cfg.JWT.Secret == "" && opts.dev {
		secret, err := randomSecret()
		if err != nil {
			return fail(err)
		}
		cfg.JWT.Secret = secret
		logger.Warn("no jwt.secret configured, using a random secret for this process")
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return fail(fmt.Errorf("engine config: %w", err))
	}

	b := tokenauth.New().WithConfig(engineCfg).WithLogger(logger)
	var (
		expiring purger
		rdb      redis.UniversalClient
	)

	switch {
	case opts.dev:
		mr, err := miniredis.Run()
		if err != nil {
			return fail(fmt.Errorf("start in-process redis: %w", err))
		}
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		closers = append(closers, func() { _ = client.Close(); mr.Close() })
		b.WithRedis(client)
		rdb = client
		logger.Info("using in-process redis", zap.String("addr", mr.Addr()))
	case cfg.Store.Backend == "postgres":
		db, err := pgstore.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = db.Close() })
		store := pgstore.New(db)
		b.WithTokenStore(store)
		expiring = store
	default:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = client.Close() })
		b.WithRedis(client)
		rdb = client
	}

	hasher, err := password.New(password.DefaultConfig())
	if err != nil {
		return fail(err)
	}
	principals := newPrincipalStore(hasher)
	if opts.adminEmail != "" {
		if _, err := principals.create(opts.adminEmail, opts.adminPassword, "Administrator", rights.RoleAdmin); err != nil {
			return fail(fmt.Errorf("seed admin: %w", err))
		}
	}
	b.WithPrincipalStore(principals)

	links := notify.Links{
		ResetPasswordURL: cfg.Links.ResetPasswordURL,
		VerifyEmailURL:   cfg.Links.VerifyEmailURL,
	}
	if cfg.NATS.URL != "" {
		n, err := notify.ConnectNATS(cfg.NATS.URL,
			notify.WithSubjectPrefix(cfg.NATS.SubjectPrefix),
			notify.WithLinks(links),
		)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, n.Close)
		b.WithNotifier(n)
	} else {
		ln := notify.NewLogNotifier(logger.Named("notify"), opts.dev)
		ln.Links = links
		b.WithNotifier(ln)
	}

	engine, err := b.Build()
	if err != nil {
		return fail(fmt.Errorf("build engine: %w", err))
	}
	closers = append(closers, engine.Close)

	proxies, err := middleware.NewProxyTrust(cfg.Server.TrustedProxies)
	if err != nil {
		return fail(fmt.Errorf("server.trusted_proxies: %w", err))
	}

	a := &app{
		engine:     engine,
		principals: principals,
		logger:     logger,
		purger:     expiring,
		proxies:    proxies,
	}
	if engineCfg.Metrics.Enabled {
		a.metrics = promexport.NewPrometheusExporter(engine).Handler()
	}
	if cfg.Rate.Enabled && rdb != nil {
		limits := rate.Config{MaxAttempts: cfg.Rate.MaxAttempts, Window: cfg.Rate.Window}

		limits.Prefix = cfg.Redis.Prefix + "rl:login:"
		if a.loginLimit, err = rate.New(rdb, limits); err != nil {
			return fail(err)
		}
		limits.Prefix = cfg.Redis.Prefix + "rl:reset:"
		if a.resetLimit, err = rate.New(rdb, limits); err != nil {
			return fail(err)
		}
	}
	return a, closers, nil
}

// runPurge removes expired rows every interval until ctx is done.
func runPurge(ctx context.Context, p purger, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("purge expired tokens failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("purged expired tokens", zap.Int64("rows", n))
			}
		}
	}
}

func serve(ctx context.Context, cfg *config.Config, opts serveOptions, logger *zap.Logger) error {
	a, closers, err := buildApp(ctx, cfg, opts, logger)
	if err != nil {
		return err
	}
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	if a.purger != nil {
		go runPurge(ctx, a.purger, cfg.Server.PurgeInterval, logger)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
