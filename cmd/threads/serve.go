package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/saidovdiyorbek/threads/internal/config"
	httpapi "github.com/saidovdiyorbek/threads/internal/http"
	"github.com/saidovdiyorbek/threads/internal/observability"
	"github.com/saidovdiyorbek/threads/internal/repo"
)

const (
	shutdownGrace = 10 * time.Second
	purgeEvery    = time.Hour
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "serve <service>",
		Short:     "Run one service over HTTP",
		Long:      "Run one of the services (user, post, comment, attach) or the public gateway.",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: config.Services,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(args[0])
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, nil)
		},
	}
}

// serve runs cfg.Service until ctx is done, then drains in-flight requests.
// When ready is non-nil the bound address is sent on it once listening.
func serve(ctx context.Context, cfg config.Config, ready chan<- string) error {
	gin.SetMode(cfg.GinMode)

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	r := gin.New()
	if cfg.Service == config.ServiceGateway {
		if err := httpapi.RegisterGateway(r, cfg, nil); err != nil {
			return err
		}
	} else {
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer closeDB(db)
		if err := httpapi.RegisterRoutes(r, db, cfg); err != nil {
			return err
		}
		if cfg.Service == config.ServicePost || cfg.Service == config.ServiceComment {
			go purgeIdempotency(ctx, db, purgeEvery)
		}
	}

	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Str("version", version).Msg("listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	if ready != nil {
		ready <- ln.Addr().String()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(sctx)
}

func openDB(cfg config.Config) (*gorm.DB, error) {
	db, err := repo.Open(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.DB.Driver, err)
	}
	if err := repo.AutoMigrate(db, cfg.Service); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// purgeIdempotency drops expired Idempotency-Key rows every interval until
// ctx is done.
func purgeIdempotency(ctx context.Context, db *gorm.DB, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("purge idempotency keys")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("idempotency keys expired")
			}
		}
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [service]",
		Short:     "Create or update the schema of one or all domain services",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{config.ServiceUser, config.ServicePost, config.ServiceComment, config.ServiceAttach},
		RunE: func(cmd *cobra.Command, args []string) error {
			services := cmd.ValidArgs
			if len(args) == 1 {
				services = args
			}
			for _, name := range services {
				cfg, err := loadConfig(name)
				if err != nil {
					return err
				}
				db, err := openDB(cfg)
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				closeDB(db)
				cmd.Printf("migrated %s (%s)\n", name, cfg.DB.Driver)
			}
			return nil
		},
	}
}
