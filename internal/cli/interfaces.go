package cli

import (
	"context"

	"github.com/google/go-github/v57/github"

	gh "github.com/clean-dependency-project/winiso/internal/github"
	"github.com/clean-dependency-project/winiso/internal/storage"
)

// GitHubReleaser abstracts GitHub release operations for testing.
type GitHubReleaser interface {
	// EnsureRelease returns the release for spec.Tag, creating it when missing.
	EnsureRelease(ctx context.Context, spec gh.ReleaseSpec) (*github.RepositoryRelease, bool, error)

	// UploadAsset uploads a file to an existing GitHub release.
	UploadAsset(ctx context.Context, releaseID int64, filePath string) (*github.ReleaseAsset, error)

	// AssetURL returns the public download URL for a release asset.
	AssetURL(asset *github.ReleaseAsset) string

	// ReleaseURL returns the HTML URL for a GitHub release.
	ReleaseURL(release *github.RepositoryRelease) string
}

// ReleaseStore abstracts the release records kept in the database.
type ReleaseStore interface {
	CreateRelease(release *storage.Release) error
	GetReleaseByTag(tag string) (*storage.Release, error)
}
