// Command padel runs the padel match server.
//
// Usage:
//
//	padel serve
//	padel migrate
//	padel lifecycle
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/padel-system/config"
	"github.com/Dosada05/padel-system/db"
	"github.com/Dosada05/padel-system/feed"
	"github.com/Dosada05/padel-system/handlers"
	"github.com/Dosada05/padel-system/repositories"
	"github.com/Dosada05/padel-system/routes"
	"github.com/Dosada05/padel-system/services"
	"github.com/Dosada05/padel-system/storage"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	root := &cobra.Command{
		Use:           "padel",
		Short:         "Padel match lifecycle server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(lifecycleCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// backend - набор хранилищ выбранного драйвера.
type backend struct {
	matches   repositories.MatchRepository
	finalized repositories.FinalizedMatchRepository
	users     repositories.UserRepository
	friends   repositories.FriendshipRepository
	tx        repositories.Transactor
	// signals запускает источник сигналов об изменениях матчей.
	signals func(ctx context.Context) (<-chan struct{}, error)
	health  func(r *http.Request) error
	close   func()
}

func openBackend(cfg *config.Config, logger *slog.Logger) (*backend, error) {
	if cfg.StorageDriver == config.DriverMemory {
		store := repositories.NewMemoryStore()
		logger.Warn("using in-memory storage, data is lost on restart")
		return &backend{
			matches:   store.Matches(),
			finalized: store.Finalized(),
			users:     store.Users(),
			friends:   store.Friendships(),
			tx:        store.Transactor(),
			signals: func(ctx context.Context) (<-chan struct{}, error) {
				return store.Changes(), nil
			},
			close: func() {},
		}, nil
	}

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("database connection established")

	return &backend{
		matches:   repositories.NewPostgresMatchRepository(dbConn),
		finalized: repositories.NewPostgresFinalizedMatchRepository(dbConn),
		users:     repositories.NewPostgresUserRepository(dbConn),
		friends:   repositories.NewPostgresFriendshipRepository(dbConn),
		tx:        repositories.NewPostgresTransactor(dbConn),
		signals: func(ctx context.Context) (<-chan struct{}, error) {
			return feed.ListenPostgres(ctx, cfg.DatabaseURL, db.MatchesChannel, logger)
		},
		health: func(r *http.Request) error {
			return dbConn.PingContext(r.Context())
		},
		close: func() {
			if err := dbConn.Close(); err != nil {
				logger.Error("failed to close database connection", slog.Any("error", err))
			} else {
				logger.Info("database connection closed")
			}
		},
	}, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, live feed and lifecycle clock",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel)
			logger.Info("configuration loaded",
				slog.Int("port", cfg.ServerPort),
				slog.String("storage_driver", cfg.StorageDriver))

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	be, err := openBackend(cfg, logger)
	if err != nil {
		return err
	}
	defer be.close()

	var mirror services.ArchiveMirror
	if cfg.R2.Enabled() {
		store, err := storage.NewCloudflareR2Store(ctx, cfg.R2)
		if err != nil {
			return fmt.Errorf("failed to initialize Cloudflare R2 store: %w", err)
		}
		mirror = storage.NewArchiveMirror(store)
		logger.Info("Cloudflare R2 archive mirror initialized", slog.String("bucket", cfg.R2.BucketName))
	}

	view := services.NewMatchView()
	matchService := services.NewMatchService(be.matches, be.finalized, be.users, be.tx, view, services.MatchServiceOptions{
		OverlapWindow: cfg.OverlapWindow,
		Logger:        logger,
		Mirror:        mirror,
	})
	authService := services.NewAuthService(be.users, 0)
	userService := services.NewUserService(be.users, be.finalized)
	friendshipService := services.NewFriendshipService(be.friends, be.users)
	clock := services.NewLifecycleClock(be.matches, view, cfg.LifecycleInterval, nil, logger)

	if err := matchService.Sync(ctx); err != nil {
		return fmt.Errorf("initial match load failed: %w", err)
	}
	logger.Info("Services initialized", slog.Int("live_matches", view.Len()))

	signals, err := be.signals(ctx)
	if err != nil {
		return fmt.Errorf("failed to start match listener: %w", err)
	}
	matchFeed := feed.New(be.matches, logger)
	wsHub := feed.NewHub(logger)

	engineSnapshots, cancelEngine := matchFeed.Subscribe()
	defer cancelEngine()
	hubSnapshots, cancelHub := matchFeed.Subscribe()
	defer cancelHub()

	router := chi.NewRouter()
	routes.SetupRoutes(router,
		routes.Options{
			JWTSecret:          []byte(cfg.JWTSecretKey),
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
			RateLimitRequests:  cfg.RateLimitRequests,
			RateLimitWindow:    cfg.RateLimitWindow,
			RequestLogging:     cfg.LogLevel <= slog.LevelDebug,
		},
		handlers.NewAuthHandler(authService, cfg.JWTSecretKey),
		handlers.NewMatchHandler(matchService),
		handlers.NewUserHandler(userService),
		handlers.NewFriendshipHandler(friendshipService),
		handlers.NewWebSocketHandler(wsHub, matchService, cfg.CORSAllowedOrigins, logger),
		handlers.NewHealthHandler(be.health),
	)
	logger.Info("Routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		matchFeed.Watch(gCtx, signals)
		return nil
	})
	g.Go(func() error {
		matchService.Follow(gCtx, engineSnapshots)
		return nil
	})
	g.Go(func() error {
		wsHub.Run(gCtx)
		return nil
	})
	g.Go(func() error {
		wsHub.Relay(gCtx, hubSnapshots)
		return nil
	})
	g.Go(func() error {
		clock.Run(gCtx)
		return nil
	})
	g.Go(func() error {
		logger.Info("starting server", slog.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			return server.Close()
		}
		logger.Info("server shutdown complete")
		return nil
	})

	err = g.Wait()
	logger.Info("application exited")
	return err
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.StorageDriver != config.DriverPostgres {
				return fmt.Errorf("migrate requires STORAGE_DRIVER=%s", config.DriverPostgres)
			}
			logger := newLogger(cfg.LogLevel)

			return withDB(cfg, func(ctx context.Context, dbConn *sql.DB) error {
				if err := db.Migrate(ctx, dbConn); err != nil {
					return err
				}
				logger.Info("schema applied")
				return nil
			})
		},
	}
}

// lifecycleCmd делает один проход часов без запуска сервера (например, из cron).
func lifecycleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lifecycle",
		Short: "Run one lifecycle pass over all live matches and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel)

			be, err := openBackend(cfg, logger)
			if err != nil {
				return err
			}
			defer be.close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			matches, err := be.matches.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list matches: %w", err)
			}
			view := services.NewMatchView()
			view.ApplySnapshot(matches)

			res := services.NewLifecycleClock(be.matches, view, cfg.LifecycleInterval, nil, logger).Tick(ctx)
			logger.Info("lifecycle pass finished",
				slog.Int("matches", len(matches)),
				slog.Int("cancelled", res.Cancelled),
				slog.Int("transitions", res.Transitions),
				slog.Int("failed", res.Failed))
			if res.Failed > 0 {
				return fmt.Errorf("%d matches failed to update", res.Failed)
			}
			return nil
		},
	}
}

func withDB(cfg *config.Config, fn func(ctx context.Context, dbConn *sql.DB) error) error {
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbConn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return fn(ctx, dbConn)
}
