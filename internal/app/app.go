// Package app wires configuration, storage and services into a runnable API
// process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abduss/clientdrop/internal/auth"
	"github.com/abduss/clientdrop/internal/blob"
	"github.com/abduss/clientdrop/internal/config"
	"github.com/abduss/clientdrop/internal/events"
	"github.com/abduss/clientdrop/internal/file"
	"github.com/abduss/clientdrop/internal/server"
	"github.com/abduss/clientdrop/internal/share"
	"github.com/abduss/clientdrop/internal/storage"
	"github.com/abduss/clientdrop/internal/storage/migrations"
	"github.com/abduss/clientdrop/internal/token"
)

const shutdownTimeout = 10 * time.Second

type accountRepository interface {
	CreateAccount(ctx context.Context, code, name, passwordHash string) (auth.Account, error)
	FindAccountByCode(ctx context.Context, code string) (auth.Account, error)
}

type fileRepository interface {
	Create(ctx context.Context, rec file.Record) error
	ListByOwner(ctx context.Context, ownerID int64) ([]file.Record, error)
	Get(ctx context.Context, fileID uuid.UUID) (file.Record, error)
	Delete(ctx context.Context, fileID uuid.UUID, ownerID int64) error
}

// database is the opened metadata store with its repositories.
type database struct {
	accounts accountRepository
	files    fileRepository
	check    server.ReadinessCheck
	close    func()
}

// App owns the HTTP server and background workers.
type App struct {
	cfg       config.Config
	log       *zap.Logger
	httpSrv   *http.Server
	publisher *events.AMQPPublisher
	db        *database
}

// New opens every dependency named by cfg and builds the HTTP handler.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	setGinMode(cfg.Server)

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, log: log, db: db}

	blobs, err := blob.New(ctx, cfg.Storage, cfg.MinIO, cfg.S3)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	checks := []server.ReadinessCheck{db.check}
	if pinger, ok := blobs.(blob.Pinger); ok {
		checks = append(checks, server.ReadinessCheck{Component: "storage", Check: pinger.Ping})
	}

	issuer := token.NewIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.SessionTTL, cfg.Auth.ShareTTL)
	authService := auth.NewService(db.accounts, issuer, cfg.Auth, log)
	if cfg.Auth.SeedDemoAccounts {
		created, err := authService.SeedAccounts(ctx, auth.DemoAccounts)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("seed demo accounts: %w", err)
		}
		log.Info("demo accounts ready", zap.Int("created", created))
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.Events.Enabled() {
		a.publisher = events.NewAMQPPublisher(cfg.Events, log)
		if err := a.publisher.Connect(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect event publisher: %w", err)
		}
		publisher = a.publisher
	}

	registry := file.NewRegistry(db.files, blobs, log)
	fileService := file.NewService(registry, blobs, publisher, cfg.Storage.MaxUploadBytes, log)
	shareService := share.NewService(fileService, issuer, publisher, log)

	var staticDir string
	if local, ok := blobs.(*blob.LocalStore); ok {
		staticDir = local.Root()
	}

	handler := server.NewHandler(server.Dependencies{
		Config:       cfg,
		Log:          log,
		AuthService:  authService,
		FileService:  fileService,
		ShareService: shareService,
		StaticDir:    staticDir,
		Checks:       checks,
	})

	a.httpSrv = &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	log.Info("application initialized",
		zap.String("database", cfg.Database.Driver),
		zap.String("storage", cfg.Storage.Backend),
		zap.Bool("events", cfg.Events.Enabled()),
	)
	return a, nil
}

// Run serves HTTP and runs background workers until ctx is cancelled or one
// of them fails, then shuts the server down gracefully.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("ClientDrop API listening", zap.String("addr", a.httpSrv.Addr))
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.publisher != nil {
		g.Go(func() error {
			return a.publisher.Run(ctx)
		})
	}

	<-ctx.Done()

	a.log.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("http server shutdown", zap.Error(err))
		return err
	}

	if err := g.Wait(); err != nil {
		return err
	}
	a.log.Info("ClientDrop API stopped")
	return nil
}

// Close releases the publisher and database handles.
func (a *App) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn("close event publisher", zap.Error(err))
		}
	}
	if a.db != nil && a.db.close != nil {
		a.db.close()
	}
}

func openDatabase(ctx context.Context, cfg config.Config, log *zap.Logger) (*database, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pool, err := storage.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		sqlDB := stdlib.OpenDBFromPool(pool)
		if err := migrations.Up(ctx, sqlDB, migrations.DialectPostgres, log); err != nil {
			_ = sqlDB.Close()
			pool.Close()
			return nil, err
		}
		return &database{
			accounts: auth.NewPostgresRepository(pool),
			files:    file.NewPostgresRepository(pool),
			check:    server.ReadinessCheck{Component: "postgres", Check: pool.Ping},
			close: func() {
				_ = sqlDB.Close()
				pool.Close()
			},
		}, nil

	case config.DriverSQLite:
		db, err := storage.OpenSQLite(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := migrations.Up(ctx, db, migrations.DialectSQLite, log); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &database{
			accounts: auth.NewSQLiteRepository(db),
			files:    file.NewSQLiteRepository(db),
			check:    server.ReadinessCheck{Component: "sqlite", Check: db.PingContext},
			close:    func() { _ = db.Close() },
		}, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
}

func setGinMode(cfg config.ServerConfig) {
	switch {
	case cfg.IsRelease():
		gin.SetMode(gin.ReleaseMode)
	case cfg.Env == gin.TestMode:
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}
}
