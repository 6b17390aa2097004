// Package matrix builds the table of downloadable images: one row per SKU
// of every configured (release, architecture, product page) target, joined
// with the checksum the product page publishes for that language.
package matrix

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/clean-dependency-project/winiso/internal/connector"
	"github.com/clean-dependency-project/winiso/internal/scrape"
	"github.com/clean-dependency-project/winiso/internal/version"
)

// Target is one product page to enumerate for a release and architecture.
type Target struct {
	Release string `json:"release"`
	Arch    string `json:"arch"`
	URL     string `json:"url"`
}

// Entry is one row of the matrix. It carries everything a later resolution
// of the row needs.
type Entry struct {
	Release          string  `json:"release"`
	Arch             string  `json:"arch"`
	Referer          string  `json:"referer"`
	Language         string  `json:"language"`
	ProductEditionID string  `json:"product_edition_id"`
	SKU              string  `json:"sku"`
	Checksum         *string `json:"checksum"`
}

// TargetError records a target that produced no rows.
type TargetError struct {
	Target Target
	Err    error
}

func (e TargetError) Error() string {
	return fmt.Sprintf("target %s/%s (%s): %v", e.Target.Release, e.Target.Arch, e.Target.URL, e.Err)
}

func (e TargetError) Unwrap() error {
	return e.Err
}

// Result is the outcome of a build. Entries are in target declaration
// order, and in API order within a target.
type Result struct {
	Entries []Entry
	Failed  []TargetError
}

// PageScraper fetches and parses a product page.
type PageScraper interface {
	Scrape(ctx context.Context, pageURL string) (*scrape.ProductPage, error)
}

// Options configures a Builder.
type Options struct {
	// Concurrency caps the number of targets processed at once. Zero or
	// negative means no limit.
	Concurrency int
	Logger      *slog.Logger
}

// Builder enumerates targets into matrix rows.
type Builder struct {
	scraper     PageScraper
	client      connector.Client
	concurrency int
	logger      *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(scraper PageScraper, client connector.Client, opts Options) *Builder {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Builder{
		scraper:     scraper,
		client:      client,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
	}
}

// Build processes every target concurrently under one session. A failing
// target is logged and contributes no rows; it never aborts the others.
func (b *Builder) Build(ctx context.Context, sessionID string, targets []Target) *Result {
	rows := make([][]Entry, len(targets))
	errs := make([]error, len(targets))

	var g errgroup.Group
	if b.concurrency > 0 {
		g.SetLimit(b.concurrency)
	}

	for i, target := range targets {
		g.Go(func() error {
			rows[i], errs[i] = b.buildTarget(ctx, sessionID, target)
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{Entries: []Entry{}}
	for i, target := range targets {
		if errs[i] != nil {
			b.logger.Error("target failed",
				"release", target.Release,
				"arch", target.Arch,
				"url", target.URL,
				"error", errs[i])
			result.Failed = append(result.Failed, TargetError{Target: target, Err: errs[i]})
			continue
		}
		result.Entries = append(result.Entries, rows[i]...)
	}

	b.logger.Info("matrix built",
		"targets", len(targets),
		"failed", len(result.Failed),
		"entries", len(result.Entries))

	return result
}

func (b *Builder) buildTarget(ctx context.Context, sessionID string, target Target) ([]Entry, error) {
	page, err := b.scraper.Scrape(ctx, target.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape product page: %w", err)
	}

	skus, err := b.client.SkusByEdition(ctx, page.EditionID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list SKUs for edition %s: %w", page.EditionID, err)
	}

	entries := Join(target, page, skus)

	if remaining := page.Checksums.Labels(); len(remaining) > 0 {
		b.logger.Warn("checksums not matched to any SKU language",
			"release", target.Release,
			"arch", target.Arch,
			"labels", remaining)
	}

	return entries, nil
}

// Join produces one row per SKU, in SKU order. Each SKU claims the checksum
// published under exactly its language name, so a checksum lands on at most
// one row. Claimed checksums are removed from page.Checksums.
func Join(target Target, page *scrape.ProductPage, skus []connector.Sku) []Entry {
	entries := make([]Entry, 0, len(skus))
	for _, sku := range skus {
		entry := Entry{
			Release:          target.Release,
			Arch:             target.Arch,
			Referer:          target.URL,
			Language:         sku.Language,
			ProductEditionID: page.EditionID,
			SKU:              sku.ID,
		}
		if sum, ok := page.Checksums.Claim(sku.Language); ok {
			entry.Checksum = &sum
		}
		entries = append(entries, entry)
	}
	return entries
}

// FilterTargets keeps targets whose release satisfies filter and whose
// architecture is in archs. A nil filter or empty archs does not filter.
func FilterTargets(targets []Target, filter *version.Filter, archs []string) ([]Target, error) {
	var out []Target
	for _, target := range targets {
		ok, err := filter.Match(target.Release)
		if err != nil {
			return nil, fmt.Errorf("target %s/%s: %w", target.Release, target.Arch, err)
		}
		if !ok || !containsArch(archs, target.Arch) {
			continue
		}
		out = append(out, target)
	}
	return out, nil
}

func containsArch(archs []string, arch string) bool {
	if len(archs) == 0 {
		return true
	}
	for _, a := range archs {
		if a == arch {
			return true
		}
	}
	return false
}
