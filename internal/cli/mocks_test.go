package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-github/v57/github"

	"github.com/clean-dependency-project/winiso/internal/config"
	gh "github.com/clean-dependency-project/winiso/internal/github"
	"github.com/clean-dependency-project/winiso/internal/output"
	"github.com/clean-dependency-project/winiso/internal/storage"
)

// mockGitHubReleaser implements GitHubReleaser for testing.
type mockGitHubReleaser struct {
	ensureReleaseFn func(ctx context.Context, spec gh.ReleaseSpec) (*github.RepositoryRelease, bool, error)
	uploadAssetFn   func(ctx context.Context, releaseID int64, filePath string) (*github.ReleaseAsset, error)

	mu       sync.Mutex
	uploaded []string
}

// EnsureRelease implements GitHubReleaser.
func (m *mockGitHubReleaser) EnsureRelease(ctx context.Context, spec gh.ReleaseSpec) (*github.RepositoryRelease, bool, error) {
	if m.ensureReleaseFn != nil {
		return m.ensureReleaseFn(ctx, spec)
	}
	htmlURL := fmt.Sprintf("https://github.com/owner/repo/releases/tag/%s", spec.Tag)
	return &github.RepositoryRelease{
		ID:      github.Int64(123),
		TagName: github.String(spec.Tag),
		Name:    github.String(spec.Name),
		Body:    github.String(spec.Body),
		Draft:   github.Bool(spec.Draft),
		HTMLURL: github.String(htmlURL),
	}, true, nil
}

// UploadAsset implements GitHubReleaser.
func (m *mockGitHubReleaser) UploadAsset(ctx context.Context, releaseID int64, filePath string) (*github.ReleaseAsset, error) {
	m.mu.Lock()
	m.uploaded = append(m.uploaded, filePath)
	m.mu.Unlock()

	if m.uploadAssetFn != nil {
		return m.uploadAssetFn(ctx, releaseID, filePath)
	}
	name := filepath.Base(filePath)
	return &github.ReleaseAsset{
		ID:                 github.Int64(456),
		Name:               github.String(name),
		BrowserDownloadURL: github.String("https://github.com/owner/repo/releases/download/t/" + name),
	}, nil
}

// AssetURL implements GitHubReleaser.
func (m *mockGitHubReleaser) AssetURL(asset *github.ReleaseAsset) string {
	return asset.GetBrowserDownloadURL()
}

// ReleaseURL implements GitHubReleaser.
func (m *mockGitHubReleaser) ReleaseURL(release *github.RepositoryRelease) string {
	return release.GetHTMLURL()
}

// mockReleaseStore implements ReleaseStore for testing.
type mockReleaseStore struct {
	createReleaseFn   func(release *storage.Release) error
	getReleaseByTagFn func(tag string) (*storage.Release, error)

	created []*storage.Release
}

// CreateRelease implements ReleaseStore.
func (m *mockReleaseStore) CreateRelease(release *storage.Release) error {
	if m.createReleaseFn != nil {
		return m.createReleaseFn(release)
	}
	m.created = append(m.created, release)
	return nil
}

// GetReleaseByTag implements ReleaseStore.
func (m *mockReleaseStore) GetReleaseByTag(tag string) (*storage.Release, error) {
	if m.getReleaseByTagFn != nil {
		return m.getReleaseByTagFn(tag)
	}
	return nil, storage.ErrReleaseNotFound
}

// recordingEnvelopeWriter implements EnvelopeWriter for testing.
type recordingEnvelopeWriter struct {
	putErr error
	puts   []output.Envelope
	closed bool
}

func (w *recordingEnvelopeWriter) Put(ctx context.Context, env output.Envelope) error {
	if w.putErr != nil {
		return w.putErr
	}
	w.puts = append(w.puts, env)
	return nil
}

func (w *recordingEnvelopeWriter) Close() error {
	w.closed = true
	return nil
}

// useEnvelopeWriter swaps the KV constructor for the duration of a test.
func useEnvelopeWriter(t *testing.T, w *recordingEnvelopeWriter) *config.KVConfig {
	var seen config.KVConfig
	orig := newEnvelopeWriter
	newEnvelopeWriter = func(ctx context.Context, cfg config.KVConfig, log *slog.Logger) (EnvelopeWriter, error) {
		seen = cfg
		return w, nil
	}
	t.Cleanup(func() { newEnvelopeWriter = orig })
	return &seen
}
