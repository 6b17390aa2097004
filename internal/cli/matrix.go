package cli

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/clean-dependency-project/winiso/internal/matrix"
	"github.com/clean-dependency-project/winiso/internal/version"
)

// matrixCommand implements the matrix command.
func matrixCommand(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}

	filter, err := version.NewFilter(c.String("release"))
	if err != nil {
		return fmt.Errorf("invalid --release: %w", err)
	}
	archs, err := cfg.ArchitectureTable().ResolveArchs(c.StringSlice("arch"))
	if err != nil {
		return fmt.Errorf("invalid --arch: %w", err)
	}
	targets, err := matrix.FilterTargets(cfg.MatrixTargets(), filter, archs)
	if err != nil {
		return err
	}

	concurrency := c.Int("concurrency")
	if concurrency == 0 {
		concurrency = cfg.Config.Concurrency
	}

	log.Info("starting matrix build",
		"targets", len(targets),
		"release_filter", filter.String(),
		"archs", archs,
		"concurrency", concurrency)

	svc, err := newServices(cfg, log)
	if err != nil {
		return err
	}

	sess, err := svc.permitter.Permit(c.Context)
	if err != nil {
		log.Error("failed to permit session", "error", err)
		return err
	}

	builder := matrix.NewBuilder(svc.scraper, svc.connector, matrix.Options{
		Concurrency: concurrency,
		Logger:      log,
	})
	result := builder.Build(c.Context, sess.ID, targets)

	if err := writeResult(c, c.String("output"), result.Entries); err != nil {
		return err
	}

	if dbPath := c.String("db"); dbPath != "" {
		db, err := openDB(cfg, dbPath)
		if err != nil {
			log.Error("failed to open database", "error", err)
			return err
		}
		defer closeDB(db, log)

		if err := db.ReplaceMatrix(result.Entries, time.Now().UTC()); err != nil {
			log.Error("failed to store matrix", "error", err)
			return err
		}
		log.Info("matrix stored", "db", dbPath, "entries", len(result.Entries))
	}

	return nil
}
