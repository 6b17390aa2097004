// Package storage keeps the hand-off between building the matrix and
// resolving its rows, plus an audit trail of resolutions, using GORM and
// SQLite.
//
// Stored rows are never consulted to skip network work: every resolution
// performs the full vendor protocol.
package storage

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/clean-dependency-project/winiso/internal/matrix"
	"github.com/clean-dependency-project/winiso/internal/resolve"
)

// Sentinel errors following Dave Cheney's principle: define errors as values
var (
	ErrNilResolution = errors.New("resolution cannot be nil")
	ErrNotFound      = errors.New("matrix entry not found")
	ErrEmptySKU      = errors.New("sku cannot be empty")
)

// MatrixEntry is a stored matrix row. Position keeps the build order.
type MatrixEntry struct {
	ID uint `gorm:"primaryKey"`

	Position         int    `gorm:"not null;index"`
	Release          string `gorm:"column:windows_release;not null;index:idx_entry_release_arch"`
	Arch             string `gorm:"not null;index:idx_entry_release_arch"`
	Referer          string `gorm:"not null"`
	Language         string `gorm:"not null"`
	ProductEditionID string `gorm:"not null"`
	SKU              string `gorm:"not null;index"`
	Checksum         *string

	BuiltAt time.Time `gorm:"not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Resolution is one resolution attempt of a row.
type Resolution struct {
	ID uint `gorm:"primaryKey"`

	SKU      string `gorm:"not null;index:idx_resolution_sku"`
	Release  string `gorm:"column:windows_release;not null"`
	Arch     string `gorm:"not null"`
	Edition  string `gorm:"not null"`
	Status   string `gorm:"not null;index"`
	URL      string `gorm:"type:text"`
	Filename string
	Checksum *string
	Error    string `gorm:"type:text"`

	Expiration time.Time `gorm:"not null"`
	ResolvedAt time.Time `gorm:"not null;index:idx_resolution_sku"`

	CreatedAt time.Time
}

// Store defines the interface for storage operations
type Store interface {
	Close() error
	ReplaceMatrix(entries []matrix.Entry, builtAt time.Time) error
	GetEntry(sku, arch string) (*MatrixEntry, error)
	ListEntries() ([]*MatrixEntry, error)
	RecordResolution(*Resolution) error
	LatestResolutions() (map[string]*Resolution, error)
	CreateRelease(*Release) error
	GetAllReleases() ([]Release, error)
	GetStats() (map[string]interface{}, error)
}

var _ Store = (*DB)(nil)

// DB wraps gorm.DB with our storage operations
type DB struct {
	db *gorm.DB
}

// Config holds database configuration
type Config struct {
	DatabasePath string
	LogLevel     string // silent, error, warn, info
}

// InitDB initializes the database connection and runs migrations
func InitDB(cfg Config) (*DB, error) {
	logLevel := logger.Silent
	switch cfg.LogLevel {
	case "error":
		logLevel = logger.Error
	case "warn":
		logLevel = logger.Warn
	case "info":
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if cfg.DatabasePath == ":memory:" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	// Auto-migrate schema
	if err := db.AutoMigrate(&MatrixEntry{}, &Resolution{}, &Release{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}

// NewMatrixEntry converts a matrix row for storage.
func NewMatrixEntry(position int, e matrix.Entry, builtAt time.Time) *MatrixEntry {
	return &MatrixEntry{
		Position:         position,
		Release:          e.Release,
		Arch:             e.Arch,
		Referer:          e.Referer,
		Language:         e.Language,
		ProductEditionID: e.ProductEditionID,
		SKU:              e.SKU,
		Checksum:         e.Checksum,
		BuiltAt:          builtAt,
	}
}

// Entry converts a stored row back to a matrix row.
func (m *MatrixEntry) Entry() matrix.Entry {
	return matrix.Entry{
		Release:          m.Release,
		Arch:             m.Arch,
		Referer:          m.Referer,
		Language:         m.Language,
		ProductEditionID: m.ProductEditionID,
		SKU:              m.SKU,
		Checksum:         m.Checksum,
	}
}

// ReplaceMatrix atomically replaces all stored rows with entries.
func (d *DB) ReplaceMatrix(entries []matrix.Entry, builtAt time.Time) error {
	err := d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&MatrixEntry{}).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		rows := make([]*MatrixEntry, len(entries))
		for i, e := range entries {
			rows[i] = NewMatrixEntry(i, e, builtAt)
		}
		return tx.CreateInBatches(rows, 100).Error
	})
	if err != nil {
		return fmt.Errorf("failed to replace matrix: %w", err)
	}
	return nil
}

// GetEntry returns the stored row for sku. An empty arch matches any
// architecture; the first row in build order wins.
func (d *DB) GetEntry(sku, arch string) (*MatrixEntry, error) {
	if sku == "" {
		return nil, ErrEmptySKU
	}

	query := d.db.Where("sku = ?", sku)
	if arch != "" {
		query = query.Where("arch = ?", arch)
	}

	var entry MatrixEntry
	err := query.Order("position ASC").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry for sku %s: %w", sku, err)
	}
	return &entry, nil
}

// ListEntries returns all rows in build order
func (d *DB) ListEntries() ([]*MatrixEntry, error) {
	var entries []*MatrixEntry
	if err := d.db.Order("position ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list matrix entries: %w", err)
	}
	return entries, nil
}

// NewResolution converts a resolution record for storage.
func NewResolution(r resolve.Result, resolvedAt time.Time) *Resolution {
	res := &Resolution{
		SKU:        r.SKU,
		Release:    r.Metadata.Release,
		Arch:       r.Metadata.Arch,
		Edition:    r.Metadata.Edition,
		Status:     r.Value.Status(),
		Checksum:   r.Metadata.Checksum,
		Expiration: r.Expiration,
		ResolvedAt: resolvedAt,
	}
	switch o := r.Value.Outcome.(type) {
	case resolve.Success:
		res.URL = o.URL
	case resolve.Failure:
		res.Error = o.Message
	case resolve.Error:
		res.Error = o.Message
	}
	if r.Metadata.Filename != nil {
		res.Filename = *r.Metadata.Filename
	}
	return res
}

// RecordResolution stores a resolution attempt
func (d *DB) RecordResolution(resolution *Resolution) error {
	if resolution == nil {
		return ErrNilResolution
	}
	if err := d.db.Create(resolution).Error; err != nil {
		return fmt.Errorf("failed to record resolution: %w", err)
	}
	return nil
}

// ResolutionKey identifies the row a resolution belongs to.
func ResolutionKey(sku, arch string) string {
	return sku + "/" + arch
}

// LatestResolutions returns the most recent resolution per row, keyed by
// ResolutionKey.
func (d *DB) LatestResolutions() (map[string]*Resolution, error) {
	var resolutions []*Resolution
	if err := d.db.Order("resolved_at ASC, id ASC").Find(&resolutions).Error; err != nil {
		return nil, fmt.Errorf("failed to list resolutions: %w", err)
	}

	latest := make(map[string]*Resolution, len(resolutions))
	for _, r := range resolutions {
		latest[ResolutionKey(r.SKU, r.Arch)] = r
	}
	return latest, nil
}

// GetStats returns matrix and resolution statistics
func (d *DB) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var total int64
	if err := d.db.Model(&MatrixEntry{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count matrix entries: %w", err)
	}
	stats["total_entries"] = total

	var releaseCounts []struct {
		Release string `gorm:"column:windows_release"`
		Arch    string
		Count   int64
	}
	if err := d.db.Model(&MatrixEntry{}).Select("windows_release, arch, COUNT(*) as count").
		Group("windows_release, arch").Order("windows_release, arch").Scan(&releaseCounts).Error; err != nil {
		return nil, fmt.Errorf("failed to get release counts: %w", err)
	}
	stats["by_release"] = releaseCounts

	var statusCounts []struct {
		Status string
		Count  int64
	}
	if err := d.db.Model(&Resolution{}).Select("status, COUNT(*) as count").
		Group("status").Order("status").Scan(&statusCounts).Error; err != nil {
		return nil, fmt.Errorf("failed to get status counts: %w", err)
	}
	stats["by_status"] = statusCounts

	return stats, nil
}
