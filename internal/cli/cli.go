// Package cli provides the command-line interface for winiso.
// It loads the YAML configuration, wires the vendor clients and writes
// results as JSON to stdout while logs go to stderr.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/clean-dependency-project/winiso/internal/config"
	"github.com/clean-dependency-project/winiso/internal/connector"
	"github.com/clean-dependency-project/winiso/internal/kv"
	"github.com/clean-dependency-project/winiso/internal/logger"
	"github.com/clean-dependency-project/winiso/internal/output"
	"github.com/clean-dependency-project/winiso/internal/scrape"
	"github.com/clean-dependency-project/winiso/internal/session"
	"github.com/clean-dependency-project/winiso/internal/sitegen"
	"github.com/clean-dependency-project/winiso/internal/storage"
	"github.com/clean-dependency-project/winiso/internal/webclient"
)

// DefaultConfigPath is read when it exists and --config is not given.
const DefaultConfigPath = "winiso.yaml"

// NewApp creates and configures the main CLI application.
func NewApp() *cli.App {
	return &cli.App{
		Name:     "winiso",
		Usage:    "Resolve Windows installation image download links",
		Version:  "1.0.0",
		Compiled: time.Now(),
		Authors: []*cli.Author{
			{
				Name:  "Clean Dependency Project",
				Email: "info@example.com",
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   DefaultConfigPath,
				Usage:   "path to configuration file (built-in defaults when absent)",
				EnvVars: []string{"WINISO_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "log level (debug, info, warn, error)",
				EnvVars: []string{"WINISO_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   logger.FormatJSON,
				Usage:   "log format (json, text)",
				EnvVars: []string{"WINISO_LOG_FORMAT"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "matrix",
				Usage: "Enumerate every (release, arch, language) row from the product pages",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "release",
						Usage: "release constraint (e.g. 11, >=11, \"10 || 11\")",
					},
					&cli.StringSliceFlag{
						Name:    "arch",
						Aliases: []string{"a"},
						Usage:   "architectures to include (x86_64, aarch64, all)",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "write the matrix JSON to this file instead of stdout",
					},
					&cli.StringFlag{
						Name:    "db",
						Usage:   "also store the matrix in this SQLite database",
						EnvVars: []string{"WINISO_DB"},
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "maximum targets processed at once (0 uses config, unlimited by default)",
					},
				},
				Action: matrixCommand,
			},
			{
				Name:  "resolve",
				Usage: "Resolve a matrix row to a signed download link",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "release", Usage: "release label of the row"},
					&cli.StringFlag{Name: "arch", Usage: "architecture of the row"},
					&cli.StringFlag{Name: "language", Usage: "language (edition) of the row"},
					&cli.StringFlag{Name: "referer", Usage: "product page URL the row came from"},
					&cli.StringFlag{Name: "sku", Usage: "SKU id of the row"},
					&cli.StringFlag{Name: "product-edition-id", Usage: "product edition id of the row"},
					&cli.StringFlag{Name: "checksum", Usage: "published SHA-256 of the image"},
					&cli.StringFlag{
						Name:    "db",
						Usage:   "look rows up in, and record resolutions to, this SQLite database",
						EnvVars: []string{"WINISO_DB"},
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "resolve every row stored in --db (filtered by --release and --arch)",
					},
					&cli.StringFlag{
						Name:  "format",
						Value: output.FormatKV,
						Usage: "output format (kv, plain)",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "write the result JSON to this file instead of stdout",
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "maximum rows resolved at once with --all (0 uses config)",
					},
				},
				Action: resolveCommand,
			},
			{
				Name:  "sitegen",
				Usage: "Generate static HTML site from the matrix database",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "db",
						Usage:   "path to SQLite database file (defaults to config)",
						EnvVars: []string{"SITEGEN_DB", "WINISO_DB"},
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
				},
				Action: sitegenCommand,
			},
			{
				Name:  "publish",
				Usage: "Upload matrix and result files to a GitHub release (needs GITHUB_TOKEN)",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "matrix",
						Usage: "matrix JSON file(s) to upload",
					},
					&cli.StringSliceFlag{
						Name:  "results",
						Usage: "resolution result file(s) to upload",
					},
					&cli.StringFlag{
						Name:    "db",
						Usage:   "SQLite database recording published releases (defaults to config)",
						EnvVars: []string{"WINISO_DB"},
					},
				},
				Action: publishCommand,
			},
			{
				Name:  "db",
				Usage: "Inspect the matrix database",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "db",
						Usage:   "path to SQLite database file (defaults to config)",
						EnvVars: []string{"WINISO_DB"},
					},
				},
				Subcommands: []*cli.Command{
					{
						Name:   "stats",
						Usage:  "Print row and resolution counts",
						Action: dbStatsCommand,
					},
					{
						Name:   "releases",
						Usage:  "Print published releases as JSON",
						Action: dbReleasesCommand,
					},
				},
			},
			{
				Name:  "init-config",
				Usage: "Write the built-in configuration to a file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "out",
						Value: DefaultConfigPath,
						Usage: "file to write",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "overwrite an existing file",
					},
				},
				Action: initConfigCommand,
			},
		},
	}
}

// newLogger builds the process logger from the global flags. Logs go to the
// app's error writer so stdout stays clean for JSON results.
func newLogger(c *cli.Context) (*slog.Logger, error) {
	return logger.New(c.String("log-level"), c.String("log-format"), errWriter(c))
}

func errWriter(c *cli.Context) io.Writer {
	if c.App != nil && c.App.ErrWriter != nil {
		return c.App.ErrWriter
	}
	return os.Stderr
}

func outWriter(c *cli.Context) io.Writer {
	if c.App != nil && c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}

// loadConfig reads --config. The built-in defaults are used when the flag
// was left at its default and that file does not exist.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if !c.IsSet("config") {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.DefaultConfig(), nil
		}
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// setup loads the configuration and the logger shared by every command.
func setup(c *cli.Context) (*config.Config, *slog.Logger, error) {
	log, err := newLogger(c)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		log.Error("failed to load config", "error", err)
		return nil, nil, err
	}
	return cfg, log, nil
}

// services are the vendor-facing clients built from configuration.
type services struct {
	permitter *session.Permitter
	connector connector.Client
	scraper   *scrape.Scraper
}

func newServices(cfg *config.Config, log *slog.Logger) (*services, error) {
	webCfg, err := cfg.WebClientConfig()
	if err != nil {
		return nil, err
	}
	web := webclient.New(webCfg)

	sessionCfg := cfg.SessionConfig()
	sessionCfg.Logger = log

	return &services{
		permitter: session.NewPermitter(web, sessionCfg),
		connector: connector.NewClient(web, cfg.ConnectorConfig()),
		scraper:   scrape.NewScraper(web, log),
	}, nil
}

// openDB opens path, or the configured database when path is empty.
func openDB(cfg *config.Config, path string) (*storage.DB, error) {
	if path == "" {
		path = cfg.Config.GetDatabasePath()
	}
	db, err := storage.InitDB(storage.Config{
		DatabasePath: path,
		LogLevel:     "silent",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

func closeDB(db *storage.DB, log *slog.Logger) {
	if err := db.Close(); err != nil {
		log.Warn("failed to close database", "error", err)
	}
}

// writeResult writes v as JSON to path, or to stdout when path is empty.
func writeResult(c *cli.Context, path string, v any) error {
	if path == "" {
		return output.WriteJSON(outWriter(c), v)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	if err := output.WriteJSON(f, v); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// EnvelopeWriter stores resolution envelopes in the KV store.
type EnvelopeWriter interface {
	Put(ctx context.Context, env output.Envelope) error
	Close() error
}

// newEnvelopeWriter connects to the configured KV store. Tests replace it.
var newEnvelopeWriter = func(ctx context.Context, cfg config.KVConfig, log *slog.Logger) (EnvelopeWriter, error) {
	return kv.NewRedisWriter(ctx, kv.Config{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}, log)
}

// sitegenCommand implements the sitegen command.
func sitegenCommand(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}

	db, err := openDB(cfg, c.String("db"))
	if err != nil {
		log.Error("failed to open database", "error", err)
		return err
	}
	defer closeDB(db, log)

	generator := sitegen.NewGenerator(db, log)
	opts := sitegen.GenerateOptions{
		OutputDir: c.String("out"),
		DryRun:    c.Bool("dry-run"),
	}
	if err := generator.Generate(c.Context, opts); err != nil {
		return fmt.Errorf("site generation failed: %w", err)
	}
	return nil
}

func dbStatsCommand(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	db, err := openDB(cfg, c.String("db"))
	if err != nil {
		return err
	}
	defer closeDB(db, log)

	stats, err := db.GetStats()
	if err != nil {
		return err
	}
	return output.WriteJSON(outWriter(c), stats)
}

func dbReleasesCommand(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	db, err := openDB(cfg, c.String("db"))
	if err != nil {
		return err
	}
	defer closeDB(db, log)

	data, err := db.ExportReleasesJSON()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(outWriter(c), string(data))
	return err
}

func initConfigCommand(c *cli.Context) error {
	path := c.String("out")
	if !c.Bool("force") {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := config.SaveConfig(config.DefaultConfig(), path); err != nil {
		return err
	}
	_, err := fmt.Fprintf(outWriter(c), "wrote %s\n", path)
	return err
}
