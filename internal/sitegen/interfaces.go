// Package sitegen generates a static HTML index of the stored matrix for GitHub Pages.
package sitegen

import "github.com/clean-dependency-project/winiso/internal/storage"

// SiteReader abstracts the storage reads the generator needs.
type SiteReader interface {
	// ListEntries returns the current matrix rows in build order.
	ListEntries() ([]*storage.MatrixEntry, error)

	// LatestResolutions returns the newest resolution per storage.ResolutionKey.
	LatestResolutions() (map[string]*storage.Resolution, error)

	// GetAllReleases returns published releases, newest first.
	GetAllReleases() ([]storage.Release, error)
}
