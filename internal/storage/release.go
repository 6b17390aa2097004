package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Sentinel errors for release records.
var (
	ErrNilRelease      = errors.New("release cannot be nil")
	ErrReleaseNotFound = errors.New("release not found")
	ErrInvalidAssets   = errors.New("release assets are not valid JSON")
)

// CreateRelease records a published release. Tags are unique, so
// recording the same publish twice fails.
func (d *DB) CreateRelease(release *Release) error {
	if release == nil {
		return ErrNilRelease
	}
	if release.ReleaseTag == "" {
		return fmt.Errorf("release tag cannot be empty")
	}
	if release.Assets != "" && !json.Valid([]byte(release.Assets)) {
		return fmt.Errorf("%w: %s", ErrInvalidAssets, release.ReleaseTag)
	}

	if err := d.db.Create(release).Error; err != nil {
		return fmt.Errorf("failed to record release %s: %w", release.ReleaseTag, err)
	}
	return nil
}

// GetReleaseByTag returns the release recorded under tag, or
// ErrReleaseNotFound.
func (d *DB) GetReleaseByTag(tag string) (*Release, error) {
	if tag == "" {
		return nil, fmt.Errorf("release tag cannot be empty")
	}

	var release Release
	err := d.db.Where("release_tag = ?", tag).First(&release).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrReleaseNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get release %s: %w", tag, err)
	}
	return &release, nil
}

// GetAllReleases returns every recorded release, newest first.
func (d *DB) GetAllReleases() ([]Release, error) {
	releases := []Release{}
	if err := d.db.Order("created_at DESC").Find(&releases).Error; err != nil {
		return nil, fmt.Errorf("failed to list releases: %w", err)
	}
	return releases, nil
}

// PublishedRelease is the exported view of a release with its assets
// decoded.
type PublishedRelease struct {
	Tag        string        `json:"tag"`
	Name       string        `json:"name"`
	URL        string        `json:"url"`
	EntryCount int           `json:"entry_count"`
	CreatedAt  time.Time     `json:"created_at"`
	Assets     ReleaseAssets `json:"assets"`
}

// ExportReleasesJSON renders every release, newest first, as indented JSON.
func (d *DB) ExportReleasesJSON() ([]byte, error) {
	releases, err := d.GetAllReleases()
	if err != nil {
		return nil, err
	}

	published := make([]PublishedRelease, 0, len(releases))
	for _, r := range releases {
		assets, err := r.ParsedAssets()
		if err != nil {
			return nil, err
		}
		published = append(published, PublishedRelease{
			Tag:        r.ReleaseTag,
			Name:       r.Name,
			URL:        r.ReleaseURL,
			EntryCount: r.EntryCount,
			CreatedAt:  r.CreatedAt,
			Assets:     assets,
		})
	}

	data, err := json.MarshalIndent(published, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal releases to JSON: %w", err)
	}
	return data, nil
}
