package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// Release is a GitHub release that carried matrix and resolution files.
type Release struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ReleaseTag string    `gorm:"not null;unique" json:"release_tag"`
	Name       string    `gorm:"not null" json:"name"`
	ReleaseURL string    `gorm:"not null" json:"release_url"`
	EntryCount int       `gorm:"not null;default:0" json:"entry_count"`
	Assets     string    `gorm:"type:json" json:"assets"` // ReleaseAssets as JSON
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (Release) TableName() string {
	return "releases"
}

// ParsedAssets decodes Assets. An empty column yields no files.
func (r *Release) ParsedAssets() (ReleaseAssets, error) {
	var assets ReleaseAssets
	if r.Assets == "" {
		return assets, nil
	}
	if err := json.Unmarshal([]byte(r.Assets), &assets); err != nil {
		return assets, fmt.Errorf("%w: %s: %w", ErrInvalidAssets, r.ReleaseTag, err)
	}
	return assets, nil
}

// ReleaseAssets lists the files uploaded to a release.
type ReleaseAssets struct {
	Files    []AssetFile    `json:"files"`
	Metadata AssetsMetadata `json:"metadata"`
}

// AssetFile is one uploaded file: a matrix or a results file.
type AssetFile struct {
	Type       string    `json:"type"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	SHA256     string    `json:"sha256,omitempty"`
	URL        string    `json:"url"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// AssetsMetadata totals the uploaded files.
type AssetsMetadata struct {
	TotalAssets        int   `json:"total_assets"`
	TotalSizeBytes     int64 `json:"total_size_bytes"`
	UploadDurationSecs int   `json:"upload_duration_seconds"`
}
