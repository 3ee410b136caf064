// Package server wires configuration, storage, signing keys and the
// authentication service together and runs the gRPC endpoint and the
// expired-session sweeper until the process is told to stop.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/identity"
	"github.com/dmitrijs2005/gophauth/internal/server/keys"
	"github.com/dmitrijs2005/gophauth/internal/server/password"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/memory"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"github.com/dmitrijs2005/gophauth/internal/server/sweeper"
	"github.com/dmitrijs2005/gophauth/internal/telemetry"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/gophauth/internal/server/grpc"
)

const serviceName = "gophauth"

type App struct {
	config      *config.Config
	logger      logging.Logger
	authService *services.AuthService
	sweeper     *sweeper.Sweeper

	// released in reverse order on shutdown
	closers []func() error
}

// sqlOpen is a seam so tests can avoid a live database.
var sqlOpen = sql.Open

func NewApp(ctx context.Context, c *config.Config) (_ *App, err error) {

	logger := logging.NewJSONLogger(slog.LevelInfo)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	app := &App{config: c, logger: logger}
	defer func() {
		if err != nil {
			app.close(ctx)
		}
	}()

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, c.OTelEndpoint)
	if err != nil {
		return nil, fmt.Errorf("telemetry init error: %w", err)
	}
	app.closers = append(app.closers, func() error { return shutdownTracing(context.Background()) })

	key, err := signingKeyLoader(c).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}

	codec, err := auth.NewCodec(key, c.AccessTokenValidityDuration, c.RefreshTokenValidityDuration, c.TokenLeeway, time.Now)
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewBcryptHasher(c.BcryptCost)
	if err != nil {
		return nil, err
	}

	deps := services.Deps{
		Hasher:   hasher,
		Identity: identity.Disabled{},
		Codec:    codec,
		Logger:   logger,
	}

	if err := app.initStorage(ctx, &deps); err != nil {
		return nil, err
	}

	if c.GoogleClientID != "" {
		v, err := identity.NewGoogleVerifier(c.GoogleJWKSURL, c.GoogleClientID, logger)
		if err != nil {
			return nil, fmt.Errorf("google verifier init error: %w", err)
		}
		deps.Identity = v
		app.closers = append(app.closers, func() error { v.Close(); return nil })
	}

	app.authService = services.NewAuthService(deps)
	app.sweeper = sweeper.New(app.authService, c.SweepInterval, logger)

	return app, nil
}

func signingKeyLoader(c *config.Config) keys.Loader {
	if c.SigningKeyObject != "" {
		return keys.S3Loader{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
			Bucket:       c.S3Bucket,
			Object:       c.SigningKeyObject,
		}
	}
	return keys.Static(c.SecretKey)
}

// initStorage fills the storage part of deps for the configured backend.
func (app *App) initStorage(ctx context.Context, deps *services.Deps) error {

	c := app.config

	if c.SessionBackend == config.BackendMemory {
		app.logger.Warn(ctx, "using in-memory storage, data is lost on restart")
		mgr := memory.NewManager(time.Now)
		deps.Tx = mgr
		deps.Repos = mgr
		return nil
	}

	db, err := sqlOpen("pgx", c.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	app.closers = append(app.closers, db.Close)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("db init error: %w", err)
	}

	var opts []repomanager.Option
	if c.SessionBackend == config.BackendRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
		app.closers = append(app.closers, rdb.Close)

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis init error: %w", err)
		}
		opts = append(opts, repomanager.WithRedisSessions(rdb, c.RedisKeyPrefix))
	}

	repos, err := repomanager.NewPostgresRepositoryManager(db, opts...)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}

	if err := repos.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations error: %w", err)
	}

	deps.DB = db
	deps.Tx = dbx.NewSQLTransactor(db, nil)
	deps.Repos = repos
	return nil
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.authService)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until ctx is cancelled, a termination signal arrives or the
// gRPC server fails, then releases every resource NewApp acquired.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "session_backend", app.config.SessionBackend)

	app.initSignalHandler(ctx, cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.sweeper.Run(ctx)
	}()

	wg.Wait()

	app.close(context.Background())
	app.logger.Info(context.Background(), "App stopped")
}

func (app *App) close(ctx context.Context) {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	app.closers = nil
	if err := errors.Join(errs...); err != nil {
		app.logger.Error(ctx, "shutdown error", "error", err)
	}
}
