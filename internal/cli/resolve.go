package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/clean-dependency-project/winiso/internal/config"
	"github.com/clean-dependency-project/winiso/internal/matrix"
	"github.com/clean-dependency-project/winiso/internal/output"
	"github.com/clean-dependency-project/winiso/internal/resolve"
	"github.com/clean-dependency-project/winiso/internal/storage"
	"github.com/clean-dependency-project/winiso/internal/version"
)

// ErrRowRequired is returned when resolve is given neither a full row nor a stored SKU.
var ErrRowRequired = errors.New("give the row as flags (--release --arch --language --referer --sku --product-edition-id) or --sku with --db")

// resolveCommand implements the resolve command.
func resolveCommand(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}

	format := c.String("format")
	if format != output.FormatKV && format != output.FormatPlain {
		return fmt.Errorf("%w: %s", output.ErrUnknownFormat, format)
	}

	var db *storage.DB
	if dbPath := c.String("db"); dbPath != "" {
		db, err = openDB(cfg, dbPath)
		if err != nil {
			log.Error("failed to open database", "error", err)
			return err
		}
		defer closeDB(db, log)
	}

	var entries []matrix.Entry
	if c.Bool("all") {
		if db == nil {
			return fmt.Errorf("--all requires --db")
		}
		entries, err = storedEntries(c, cfg, db)
	} else {
		var entry matrix.Entry
		entry, err = rowFromFlags(c, cfg, db)
		entries = []matrix.Entry{entry}
	}
	if err != nil {
		return err
	}

	svc, err := newServices(cfg, log)
	if err != nil {
		return err
	}
	resolver, err := newResolver(cfg, svc, log)
	if err != nil {
		return err
	}

	results := make([]resolve.Result, len(entries))
	sess, permitErr := svc.permitter.Permit(c.Context)
	if permitErr != nil {
		log.Error("failed to permit session", "error", permitErr)
		for i, entry := range entries {
			results[i] = resolver.ErrorResult(entry, permitErr)
		}
	} else {
		concurrency := c.Int("concurrency")
		if concurrency == 0 {
			concurrency = cfg.Config.Concurrency
		}
		var g errgroup.Group
		if concurrency > 0 {
			g.SetLimit(concurrency)
		}
		for i, entry := range entries {
			g.Go(func() error {
				results[i] = resolver.Run(c.Context, sess.ID, entry)
				return nil
			})
		}
		_ = g.Wait()
	}

	prefix := cfg.Config.KV.GetKeyPrefix()
	if err := writeResolutions(c, format, prefix, results, c.Bool("all")); err != nil {
		return err
	}

	if db != nil {
		resolvedAt := time.Now().UTC()
		for _, r := range results {
			if err := db.RecordResolution(storage.NewResolution(r, resolvedAt)); err != nil {
				log.Error("failed to record resolution", "sku", r.SKU, "error", err)
				return err
			}
		}
	}

	if cfg.Config.KV.Enabled {
		if err := putEnvelopes(c, cfg.Config.KV, prefix, results, log); err != nil {
			return err
		}
	}

	return nil
}

func newResolver(cfg *config.Config, svc *services, log *slog.Logger) (*resolve.Resolver, error) {
	ttl, err := cfg.Config.GetFailureTTL()
	if err != nil {
		return nil, err
	}
	opts := resolve.Options{
		Architectures: cfg.ArchitectureTable(),
		FailureTTL:    ttl,
		Logger:        log,
	}
	if cfg.Config.ShouldProbeFilename() {
		opts.Prober = svc.scraper
	}
	return resolve.NewResolver(svc.connector, opts), nil
}

// rowFromFlags builds the row from explicit flags, or looks --sku up in db.
func rowFromFlags(c *cli.Context, cfg *config.Config, db *storage.DB) (matrix.Entry, error) {
	arch := c.String("arch")
	if label, err := cfg.ArchitectureTable().FindArch(arch); err == nil {
		arch = label
	}

	if c.IsSet("product-edition-id") {
		entry := matrix.Entry{
			Release:          c.String("release"),
			Arch:             arch,
			Referer:          c.String("referer"),
			Language:         c.String("language"),
			ProductEditionID: c.String("product-edition-id"),
			SKU:              c.String("sku"),
		}
		required := []struct{ name, value string }{
			{"release", entry.Release},
			{"arch", entry.Arch},
			{"language", entry.Language},
			{"referer", entry.Referer},
			{"sku", entry.SKU},
		}
		for _, flag := range required {
			if flag.value == "" {
				return matrix.Entry{}, fmt.Errorf("--%s is required: %w", flag.name, ErrRowRequired)
			}
		}
		if c.IsSet("checksum") {
			checksum := c.String("checksum")
			entry.Checksum = &checksum
		}
		return entry, nil
	}

	if c.String("sku") == "" || db == nil {
		return matrix.Entry{}, ErrRowRequired
	}
	stored, err := db.GetEntry(c.String("sku"), arch)
	if err != nil {
		return matrix.Entry{}, fmt.Errorf("failed to look up sku %s: %w", c.String("sku"), err)
	}
	return stored.Entry(), nil
}

// storedEntries returns the stored rows matching --release and --arch.
func storedEntries(c *cli.Context, cfg *config.Config, db storage.Store) ([]matrix.Entry, error) {
	filter, err := version.NewFilter(c.String("release"))
	if err != nil {
		return nil, fmt.Errorf("invalid --release: %w", err)
	}
	var archs []string
	if arch := c.String("arch"); arch != "" {
		archs, err = cfg.ArchitectureTable().ResolveArchs([]string{arch})
		if err != nil {
			return nil, fmt.Errorf("invalid --arch: %w", err)
		}
	}

	stored, err := db.ListEntries()
	if err != nil {
		return nil, err
	}

	var entries []matrix.Entry
	for _, row := range stored {
		ok, err := filter.Match(row.Release)
		if err != nil {
			return nil, err
		}
		if !ok || (len(archs) > 0 && archs[0] != row.Arch) {
			continue
		}
		entries = append(entries, row.Entry())
	}
	return entries, nil
}

// writeResolutions writes one record, or a JSON array of records for --all.
func writeResolutions(c *cli.Context, format, prefix string, results []resolve.Result, asList bool) error {
	encoded := make([]json.RawMessage, len(results))
	for i, r := range results {
		data, err := output.Encode(format, prefix, r)
		if err != nil {
			return err
		}
		encoded[i] = data
	}

	path := c.String("output")
	if asList {
		return writeResult(c, path, encoded)
	}
	if path == "" {
		_, err := fmt.Fprintln(outWriter(c), string(encoded[0]))
		return err
	}
	return os.WriteFile(path, append(encoded[0], '\n'), 0644)
}

func putEnvelopes(c *cli.Context, kvCfg config.KVConfig, prefix string, results []resolve.Result, log *slog.Logger) error {
	writer, err := newEnvelopeWriter(c.Context, kvCfg, log)
	if err != nil {
		log.Error("failed to connect to kv store", "error", err)
		return err
	}
	defer func() {
		if err := writer.Close(); err != nil {
			log.Warn("failed to close kv store", "error", err)
		}
	}()

	for _, r := range results {
		if err := writer.Put(c.Context, output.NewEnvelope(prefix, r)); err != nil {
			log.Error("failed to store envelope", "sku", r.SKU, "error", err)
			return err
		}
	}
	return nil
}
