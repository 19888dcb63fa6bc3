package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/tokengate/tokengate/api"
	"github.com/tokengate/tokengate/archive"
	"github.com/tokengate/tokengate/config"
	"github.com/tokengate/tokengate/store"
	"github.com/tokengate/tokengate/store/failover"
	"github.com/tokengate/tokengate/store/memory"
	redisstore "github.com/tokengate/tokengate/store/redis"
	"github.com/tokengate/tokengate/users"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the token service server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logger, closeLog, err := buildLogger(cfg)
		if err != nil {
			return err
		}
		defer closeLog()

		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		dir, err := users.OpenBolt(filepath.Join(cfg.DataDir, "users.db"))
		if err != nil {
			return fmt.Errorf("failed to open user directory: %w", err)
		}
		defer dir.Close()

		tokens, closeStore := buildTokenStore(cfg, logger)
		defer closeStore()

		a := api.New(tokens, dir,
			api.WithLogger(logger),
			api.WithRateIntervals(cfg.IssueRate(), cfg.ValidateRate()),
		)

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		r.Mount("/api/v1", a.Router())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if cfg.LogDir != "" {
			arc := archive.New(cfg.LogDir, cfg.ArchiveEvery(), archive.WithLogger(logger))
			go arc.Run(ctx)
		}

		server := &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		fmt.Printf("Starting server on %s (data: %s)...\n", cfg.ListenAddr, cfg.DataDir)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

// buildTokenStore assembles the failover chain: Redis primary when
// configured, in-memory fallback always. With no Redis address the service
// runs on the fallback alone.
func buildTokenStore(cfg *config.Config, logger *slog.Logger) (store.Backend, func()) {
	fallback := memory.New(cfg.Store())

	if cfg.RedisAddr == "" {
		logger.Warn("no redis address configured, running on in-memory store only")
		return failover.New(nil, fallback), func() {}
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  cfg.RedisOpTimeout(),
		ReadTimeout:  cfg.RedisOpTimeout(),
		WriteTimeout: cfg.RedisOpTimeout(),
	})

	primary := redisstore.New(client, cfg.Store())
	migrator := failover.NewTokenMigrator(fallback, primary)

	return failover.New(migrator, primary, fallback), func() { client.Close() }
}

// buildLogger returns a JSON slog logger. With LOG_DIR set, output also goes
// to a dated file in that directory so the archiver has something to roll up.
func buildLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	if cfg.LogDir == "" {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil)), func() {}, nil
	}

	if err := os.MkdirAll(cfg.LogDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	name := fmt.Sprintf("tokengate.%s.log", time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(cfg.LogDir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	w := io.MultiWriter(os.Stderr, f)
	return slog.New(slog.NewJSONHandler(w, nil)), func() { f.Close() }, nil
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
