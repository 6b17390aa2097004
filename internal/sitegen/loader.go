package sitegen

import (
	"fmt"

	"github.com/clean-dependency-project/winiso/internal/storage"
)

// SiteData is everything read from storage for one generation run.
type SiteData struct {
	Entries     []*storage.MatrixEntry
	Resolutions map[string]*storage.Resolution
	Releases    []ReleaseWithAssets
}

// ReleaseWithAssets combines a Release with its parsed assets.
type ReleaseWithAssets struct {
	Release storage.Release
	Assets  storage.ReleaseAssets
}

// LoadSite reads matrix rows, their latest resolutions and published releases.
func LoadSite(reader SiteReader) (*SiteData, error) {
	entries, err := reader.ListEntries()
	if err != nil {
		return nil, fmt.Errorf("failed to load matrix entries: %w", err)
	}

	resolutions, err := reader.LatestResolutions()
	if err != nil {
		return nil, fmt.Errorf("failed to load resolutions: %w", err)
	}

	releases, err := LoadReleases(reader)
	if err != nil {
		return nil, err
	}

	return &SiteData{
		Entries:     entries,
		Resolutions: resolutions,
		Releases:    releases,
	}, nil
}

// LoadReleases loads all releases and parses their asset JSON.
// A release with no asset JSON yields an empty asset list.
func LoadReleases(reader SiteReader) ([]ReleaseWithAssets, error) {
	releases, err := reader.GetAllReleases()
	if err != nil {
		return nil, fmt.Errorf("failed to load releases: %w", err)
	}

	result := make([]ReleaseWithAssets, 0, len(releases))
	for _, release := range releases {
		assets, err := release.ParsedAssets()
		if err != nil {
			return nil, err
		}
		result = append(result, ReleaseWithAssets{Release: release, Assets: assets})
	}
	return result, nil
}
