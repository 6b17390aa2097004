package sitegen

import "time"

// SiteModel represents the complete site structure for HTML generation.
type SiteModel struct {
	Releases  []ReleaseModel
	Published []PublishedModel
}

// ReleaseModel groups the rows of one Windows release (e.g. "11").
type ReleaseModel struct {
	Name  string // release label
	Slug  string // directory name, e.g. "windows-11"
	Archs []ArchModel
}

// ArchModel holds the editions available for one architecture.
type ArchModel struct {
	Arch     string
	Referer  string
	Editions []EditionModel
}

// EditionModel is one matrix row plus its latest resolution, if any.
type EditionModel struct {
	Language         string
	SKU              string
	ProductEditionID string
	Checksum         string

	Status     string // Success, Failure, Error or empty when never resolved
	URL        string
	Filename   string
	Error      string
	Expiration time.Time
	ResolvedAt time.Time
}

// Resolved reports whether a resolution was recorded for the row.
func (e EditionModel) Resolved() bool {
	return e.Status != ""
}

// PublishedModel is a GitHub release the matrix was published to.
type PublishedModel struct {
	Tag        string
	Name       string
	URL        string
	EntryCount int
	CreatedAt  time.Time
	Files      []FileModel
}

// FileModel represents a single uploaded file with its metadata.
type FileModel struct {
	Type     string
	Filename string
	Size     int64
	SHA256   string
	URL      string
}
