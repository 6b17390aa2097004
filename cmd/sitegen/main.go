// Package main provides the sitegen command for generating the static HTML
// site from the matrix database, and optionally serving it for preview.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/clean-dependency-project/winiso/internal/logger"
	"github.com/clean-dependency-project/winiso/internal/sitegen"
	"github.com/clean-dependency-project/winiso/internal/storage"
)

func main() {
	app := &cli.App{
		Name:  "sitegen",
		Usage: "Generate static HTML site from the matrix database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "db",
				Usage:    "path to SQLite database file",
				Required: true,
				EnvVars:  []string{"SITEGEN_DB"},
			},
			&cli.StringFlag{
				Name:     "out",
				Usage:    "output directory for generated HTML files",
				Required: true,
				EnvVars:  []string{"SITEGEN_OUT"},
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "validate without writing files",
			},
			&cli.StringFlag{
				Name:  "serve",
				Usage: "after generating, serve the output directory on this address (e.g. :8080)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "log level (debug, info, warn, error)",
				EnvVars: []string{"SITEGEN_LOG_LEVEL"},
			},
		},
		Action: runSitegen,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		stop()
		log.Fatal(err)
	}
}

// runSitegen executes the site generation process.
func runSitegen(c *cli.Context) error {
	stdout, err := logger.New(c.String("log-level"), logger.FormatJSON, os.Stderr)
	if err != nil {
		return err
	}

	db, err := storage.InitDB(storage.Config{
		DatabasePath: c.String("db"),
		LogLevel:     "silent", // Database logs are verbose, suppress them
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			stdout.Error("failed to close database", "error", closeErr)
		}
	}()

	generator := sitegen.NewGenerator(db, stdout)
	opts := sitegen.GenerateOptions{
		OutputDir: c.String("out"),
		DryRun:    c.Bool("dry-run"),
	}
	if err := generator.Generate(c.Context, opts); err != nil {
		return err
	}
	stdout.Info("site generation completed successfully")

	if addr := c.String("serve"); addr != "" && !opts.DryRun {
		return serve(c.Context, addr, opts.OutputDir, stdout)
	}
	return nil
}

// serve serves dir until ctx is cancelled.
func serve(ctx context.Context, addr, dir string, log *slog.Logger) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           http.FileServer(http.Dir(absDir)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("serving site", "dir", absDir, "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
