package sitegen

import (
	"context"
	"fmt"
	"os"

	"log/slog"
)

// Generator orchestrates the HTML site generation process.
type Generator struct {
	reader SiteReader
	logger *slog.Logger
}

// NewGenerator creates a new Generator with the provided SiteReader.
func NewGenerator(reader SiteReader, logger *slog.Logger) *Generator {
	return &Generator{
		reader: reader,
		logger: logger,
	}
}

// GenerateOptions contains options for site generation.
type GenerateOptions struct {
	OutputDir string
	DryRun    bool
}

// Generate generates the complete static site from the database.
func (g *Generator) Generate(ctx context.Context, opts GenerateOptions) error {
	if opts.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}

	g.logger.Info("starting site generation", "output_dir", opts.OutputDir, "dry_run", opts.DryRun)

	data, err := LoadSite(g.reader)
	if err != nil {
		return err
	}

	g.logger.Info("loaded site data",
		"entries", len(data.Entries),
		"resolutions", len(data.Resolutions),
		"releases", len(data.Releases))

	if len(data.Entries) == 0 {
		g.logger.Warn("no matrix entries found in database")
		return nil
	}

	model := BuildModel(data)
	g.logger.Info("built site model", "releases", len(model.Releases), "published", len(model.Published))

	if opts.DryRun {
		g.logger.Info("dry-run mode: skipping file writes")
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	w := newSiteWriter(opts.OutputDir, g.logger)
	if err := renderHumanPages(model, w); err != nil {
		return fmt.Errorf("failed to render human pages: %w", err)
	}
	if err := renderJSONIndex(model, w); err != nil {
		return fmt.Errorf("failed to render json index: %w", err)
	}

	g.logger.Info("site generation completed successfully",
		"written", w.written,
		"unchanged", w.unchanged)
	return nil
}
