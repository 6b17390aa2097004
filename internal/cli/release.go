package cli

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/clean-dependency-project/winiso/internal/config"
	gh "github.com/clean-dependency-project/winiso/internal/github"
	"github.com/clean-dependency-project/winiso/internal/storage"
)

// Asset types recorded for uploaded files.
const (
	AssetMatrix  = "matrix"
	AssetResults = "results"
)

// ErrAlreadyPublished is returned when the computed tag is already recorded.
var ErrAlreadyPublished = errors.New("release already published")

// PublishFile is one local file to upload.
type PublishFile struct {
	Type string
	Path string
}

// Publisher uploads output files to a GitHub release and records it.
type Publisher struct {
	db     ReleaseStore
	github GitHubReleaser
	cfg    config.ReleaseConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher creates a Publisher. The release section must name a repository.
func NewPublisher(cfg config.ReleaseConfig, github GitHubReleaser, db ReleaseStore, logger *slog.Logger) (*Publisher, error) {
	if err := cfg.ValidateRelease(); err != nil {
		return nil, err
	}
	if github == nil {
		return nil, fmt.Errorf("github client is required to publish")
	}
	if db == nil {
		return nil, fmt.Errorf("database is required to publish")
	}
	if cfg.TagPrefix == "" {
		cfg.TagPrefix = config.DefaultTagPrefix
	}
	if cfg.ReleaseNameTemplate == "" {
		cfg.ReleaseNameTemplate = config.DefaultNameTemplate
	}
	return &Publisher{
		db:     db,
		github: github,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Publish creates (or reuses) the release for the current time, uploads
// files and records the release with its assets.
func (p *Publisher) Publish(ctx context.Context, files []PublishFile, entryCount int) (*storage.Release, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("nothing to publish")
	}

	now := p.now().UTC()
	tag := fmt.Sprintf("%s-%s", p.cfg.TagPrefix, now.Format("20060102T150405Z"))
	if _, err := p.db.GetReleaseByTag(tag); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyPublished, tag)
	} else if !errors.Is(err, storage.ErrReleaseNotFound) {
		return nil, err
	}

	name := formatReleaseName(p.cfg.ReleaseNameTemplate, now)
	body := generateReleaseBody(name, files, entryCount)

	p.logger.Info("creating GitHub release", "tag", tag, "name", name)
	ghRelease, created, err := p.github.EnsureRelease(ctx, gh.ReleaseSpec{
		Tag:   tag,
		Name:  name,
		Body:  body,
		Draft: p.cfg.DraftRelease,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub release: %w", err)
	}
	releaseURL := p.github.ReleaseURL(ghRelease)
	p.logger.Info("GitHub release ready", "url", releaseURL, "created", created)

	start := time.Now()
	assets, err := p.uploadFiles(ctx, ghRelease.GetID(), files)
	if err != nil {
		return nil, err
	}
	assets.Metadata.UploadDurationSecs = int(time.Since(start).Seconds())

	assetsJSON, err := json.Marshal(assets)
	if err != nil {
		return nil, fmt.Errorf("failed to build assets JSON: %w", err)
	}

	release := &storage.Release{
		ReleaseTag: tag,
		Name:       name,
		ReleaseURL: releaseURL,
		EntryCount: entryCount,
		Assets:     string(assetsJSON),
		CreatedAt:  now,
	}
	if err := p.db.CreateRelease(release); err != nil {
		return nil, fmt.Errorf("failed to record release in database: %w", err)
	}

	p.logger.Info("release recorded to database", "id", release.ID, "assets", len(assets.Files))
	return release, nil
}

// uploadFiles uploads every file and returns their asset records.
func (p *Publisher) uploadFiles(ctx context.Context, releaseID int64, files []PublishFile) (storage.ReleaseAssets, error) {
	assets := storage.ReleaseAssets{Files: []storage.AssetFile{}}

	for _, f := range files {
		filename := filepath.Base(f.Path)
		info, err := os.Stat(f.Path)
		if err != nil {
			return assets, fmt.Errorf("failed to stat %s: %w", f.Path, err)
		}
		sum, err := calculateFileSHA256(f.Path)
		if err != nil {
			return assets, err
		}

		p.logger.Info("uploading asset", "file", filename, "type", f.Type, "size", info.Size())
		asset, err := p.github.UploadAsset(ctx, releaseID, f.Path)
		if err != nil {
			return assets, fmt.Errorf("failed to upload %s: %w", filename, err)
		}

		downloadURL := p.github.AssetURL(asset)
		assets.Files = append(assets.Files, storage.AssetFile{
			Type:       f.Type,
			Filename:   filename,
			Size:       info.Size(),
			SHA256:     sum,
			URL:        downloadURL,
			UploadedAt: p.now().UTC(),
		})
		assets.Metadata.TotalAssets++
		assets.Metadata.TotalSizeBytes += info.Size()

		p.logger.Info("asset uploaded", "file", filename, "url", downloadURL, "sha256", sum)
	}

	return assets, nil
}

// calculateFileSHA256 computes the SHA256 hash of a file.
func calculateFileSHA256(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// formatReleaseName fills {date} in the template.
func formatReleaseName(template string, now time.Time) string {
	return strings.ReplaceAll(template, "{date}", now.Format("2006-01-02"))
}

// generateReleaseBody lists the files a release carries.
func generateReleaseBody(name string, files []PublishFile, entryCount int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", cases.Title(language.English).String(name))
	b.WriteString("Automatically generated release with Windows installation image links.\n\n")
	fmt.Fprintf(&b, "Matrix rows: %d\n\n", entryCount)

	b.WriteString("## Files\n\n")
	for _, f := range files {
		fmt.Fprintf(&b, "- %s (%s)\n", filepath.Base(f.Path), f.Type)
	}

	b.WriteString("\n## Notes\n\n")
	b.WriteString("Download links are signed by the vendor and expire. Result files carry the expiration of every link.\n")
	return b.String()
}

// newGitHubReleaser builds the GitHub client. Tests replace it.
var newGitHubReleaser = func(token, repository string) (GitHubReleaser, error) {
	return gh.NewClient(token, repository)
}

// publishCommand implements the publish command.
func publishCommand(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}

	var files []PublishFile
	for _, path := range c.StringSlice("matrix") {
		files = append(files, PublishFile{Type: AssetMatrix, Path: path})
	}
	for _, path := range c.StringSlice("results") {
		files = append(files, PublishFile{Type: AssetResults, Path: path})
	}
	if len(files) == 0 {
		return fmt.Errorf("give at least one --matrix or --results file")
	}

	// In GitHub Actions the token is provided when the workflow has 'contents: write'.
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		return fmt.Errorf("GITHUB_TOKEN environment variable is required to publish")
	}

	client, err := newGitHubReleaser(token, cfg.Config.Release.GitHubRepository)
	if err != nil {
		return fmt.Errorf("failed to create GitHub client: %w", err)
	}

	db, err := openDB(cfg, c.String("db"))
	if err != nil {
		log.Error("failed to open database", "error", err)
		return err
	}
	defer closeDB(db, log)

	entries, err := db.ListEntries()
	if err != nil {
		return err
	}

	publisher, err := NewPublisher(cfg.Config.Release, client, db, log)
	if err != nil {
		return err
	}

	release, err := publisher.Publish(c.Context, files, len(entries))
	if err != nil {
		log.Error("publish failed", "error", err)
		return err
	}

	log.Info("release published", "tag", release.ReleaseTag, "url", release.ReleaseURL)
	return nil
}
