// Package server wires the clautod process: store, access service, session
// tokens, dispatcher, and the HTTP and gRPC transports in front of them.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/jeremy-quicklearner/clautod/internal/common"
	"github.com/jeremy-quicklearner/clautod/internal/cryptox"
	"github.com/jeremy-quicklearner/clautod/internal/dbx"
	"github.com/jeremy-quicklearner/clautod/internal/logging"
	"github.com/jeremy-quicklearner/clautod/internal/server/auth"
	"github.com/jeremy-quicklearner/clautod/internal/server/config"
	"github.com/jeremy-quicklearner/clautod/internal/server/dispatch"
	"github.com/jeremy-quicklearner/clautod/internal/server/httpapi"
	"github.com/jeremy-quicklearner/clautod/internal/server/models"
	"github.com/jeremy-quicklearner/clautod/internal/server/repositories/repomanager"
	"github.com/jeremy-quicklearner/clautod/internal/server/repositories/revocations"
	"github.com/jeremy-quicklearner/clautod/internal/server/services"

	gs "github.com/jeremy-quicklearner/clautod/internal/server/grpc"
)

const (
	housekeepingInterval = time.Minute
	limiterIdle          = 10 * time.Minute
	devKeyBits           = 2048
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	access      *services.AccessService
	tokens      *auth.Service
	dispatcher  *dispatch.Dispatcher
	limiter     *httpapi.LoginLimiter
	revocations revocations.Repository
}

// NewApp opens and migrates the store, makes sure the admin account exists
// and builds the request path. The caller owns the returned App and must
// Close it.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	dialect, err := dbx.ParseDialect(c.DatabaseDriver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.DriverName(), dialect.PrepareDSN(c.DatabaseDSN))
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if dialect == dbx.SQLite && isMemoryDSN(c.DatabaseDSN) {
		db.SetMaxOpenConns(1)
	}

	app := &App{config: c, logger: logger, db: db}
	if err := app.init(ctx, dialect); err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context, dialect dbx.Dialect) error {
	c := app.config

	pingCtx, cancel := context.WithTimeout(ctx, c.StoreTimeout)
	defer cancel()
	if err := app.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("%w: %w", common.ErrStorageUnavailable, err)
	}

	m := repomanager.NewSQLRepositoryManager(dialect, c.StoreTimeout)
	if err := m.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	if err := app.checkSchema(ctx, m); err != nil {
		return err
	}

	hasher, err := cryptox.NewHasher(c.PasswordHasher)
	if err != nil {
		return err
	}
	codec := cryptox.NewCodec(hasher, cryptox.NewSaltSource(time.Now))
	app.access = services.NewAccessService(app.db, m, codec, app.logger)

	if err := app.ensureAdmin(ctx); err != nil {
		return err
	}

	keys, err := app.loadKeys(ctx)
	if err != nil {
		return err
	}

	var denylist auth.Denylist
	if c.Revocation {
		app.revocations = m.Revocations(app.db)
		denylist = app.revocations
	}
	app.tokens, err = auth.NewService(keys, auth.Options{
		Issuer:        c.TokenIssuer,
		Audience:      c.TokenAudience,
		Lifetime:      c.TokenLifetime,
		MaxSessionAge: c.MaxSessionAge,
		Denylist:      denylist,
		Logger:        app.logger,
	})
	if err != nil {
		return err
	}

	app.dispatcher = dispatch.New(app.access, app.tokens, dispatch.Options{
		RenewWindow: c.TokenRenewWindow,
		Logger:      app.logger,
	})
	app.limiter = httpapi.NewLoginLimiter(c.LoginRatePerMinute)
	return nil
}

func (app *App) checkSchema(ctx context.Context, m repomanager.RepositoryManager) error {
	v, err := m.CheckSchemaVersion(ctx, app.db)
	if err == nil {
		app.logger.Debug(ctx, "schema version ok", "version", v)
		return nil
	}
	if !errors.Is(err, common.ErrStorageState) || app.config.SchemaMismatch == config.SchemaMismatchFail {
		return err
	}
	app.logger.Warn(ctx, "schema version mismatch, continuing", "error", err)
	return nil
}

func (app *App) ensureAdmin(ctx context.Context) error {
	if app.config.AdminPassword != "" {
		_, err := app.access.EnsureAdmin(ctx, app.config.AdminPassword)
		return err
	}
	found, err := app.access.Get(ctx, models.ByUsername(common.AdminUsername))
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return fmt.Errorf("%w: the %s account does not exist, set admin_password to create it",
			common.ErrStorageState, common.AdminUsername)
	}
	return nil
}

func (app *App) loadKeys(ctx context.Context) (auth.KeyPair, error) {
	if app.config.TokenPrivateKey != "" {
		return auth.LoadKeyPair(app.config.TokenPrivateKey, app.config.TokenCertificate)
	}
	app.logger.Warn(ctx, "no token key configured, generating a temporary key pair; sessions end on restart")
	return auth.GenerateKeyPair(devKeyBits)
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

// HTTPHandler returns the HTTP API handler.
func (app *App) HTTPHandler() http.Handler {
	return httpapi.NewHandler(app.dispatcher, httpapi.Options{
		AllowedOrigins: app.config.AllowedOrigins,
		Limiter:        app.limiter,
		RequestTimeout: 2 * app.config.StoreTimeout,
		Logger:         app.logger,
	})
}

// Close releases the store.
func (app *App) Close() error {
	return app.db.Close()
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:              app.config.HTTPAddr,
		Handler:           app.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", app.config.HTTPAddr, "tls", app.config.TLSCert != "")

	var err error
	if app.config.TLSCert != "" {
		err = srv.ListenAndServeTLS(app.config.TLSCert, app.config.TLSKey)
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	var opts []grpc.ServerOption
	if app.config.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(app.config.TLSCert, app.config.TLSKey)
		if err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
			return
		}
		opts = append(opts, grpc.Creds(creds))
	}

	s := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.dispatcher, opts...)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// housekeeping drops expired revocations and idle limiter entries.
func (app *App) housekeeping(ctx context.Context) {
	ticker := time.NewTicker(housekeepingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.sweep(ctx, time.Now())
		}
	}
}

func (app *App) sweep(ctx context.Context, now time.Time) {
	if app.revocations != nil {
		n, err := app.revocations.Purge(ctx, now)
		if err != nil {
			app.logger.Warn(ctx, "purge revoked tokens", "error", err)
		} else if n > 0 {
			app.logger.Debug(ctx, "purged revoked tokens", "count", n)
		}
	}
	app.limiter.Sweep(limiterIdle)
}

// Run serves both transports until ctx is cancelled or a signal arrives.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "config", app.config.String())

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.housekeeping(ctx)
	}()

	wg.Wait()
	app.logger.Info(context.Background(), "App stopped")
}
