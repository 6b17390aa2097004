package storage

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/clean-dependency-project/winiso/internal/matrix"
	"github.com/clean-dependency-project/winiso/internal/resolve"
)

// newTestDB creates an in-memory SQLite database for testing
func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := InitDB(Config{
		DatabasePath: ":memory:",
		LogLevel:     "silent",
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})

	return db
}

func strPtr(s string) *string { return &s }

// testEntries returns a small matrix spanning two targets
func testEntries() []matrix.Entry {
	return []matrix.Entry{
		{Release: "11", Arch: "x86_64", Referer: "https://example.com/windows11", Language: "Arabic", ProductEditionID: "3113", SKU: "19245", Checksum: strPtr("AA")},
		{Release: "11", Arch: "x86_64", Referer: "https://example.com/windows11", Language: "French", ProductEditionID: "3113", SKU: "19250"},
		{Release: "11", Arch: "aarch64", Referer: "https://example.com/windows11ARM64", Language: "French", ProductEditionID: "3131", SKU: "19250"},
		{Release: "10", Arch: "x86_64", Referer: "https://example.com/windows10ISO", Language: "French", ProductEditionID: "2618", SKU: "17000"},
	}
}

func TestInitDB(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
	}{
		{"silent", "silent"},
		{"error", "error"},
		{"warn", "warn"},
		{"info", "info"},
		{"default", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := InitDB(Config{DatabasePath: ":memory:", LogLevel: tt.logLevel})
			if err != nil {
				t.Fatalf("InitDB() error = %v", err)
			}
			if err := db.Close(); err != nil {
				t.Errorf("Close() error = %v", err)
			}
		})
	}
}

func TestDB_ReplaceMatrix(t *testing.T) {
	db := newTestDB(t)
	builtAt := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	if err := db.ReplaceMatrix(testEntries(), builtAt); err != nil {
		t.Fatalf("ReplaceMatrix() error = %v", err)
	}

	stored, err := db.ListEntries()
	if err != nil {
		t.Fatalf("ListEntries() error = %v", err)
	}
	var got []matrix.Entry
	for _, e := range stored {
		got = append(got, e.Entry())
		if !e.BuiltAt.Equal(builtAt) {
			t.Errorf("BuiltAt = %v, want %v", e.BuiltAt, builtAt)
		}
	}
	if !reflect.DeepEqual(got, testEntries()) {
		t.Errorf("round trip = %+v\nwant %+v", got, testEntries())
	}

	// a second build replaces rather than appends
	if err := db.ReplaceMatrix(testEntries()[:1], builtAt); err != nil {
		t.Fatalf("ReplaceMatrix() error = %v", err)
	}
	stored, err = db.ListEntries()
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 || stored[0].SKU != "19245" {
		t.Errorf("after replace: %+v", stored)
	}

	if err := db.ReplaceMatrix(nil, builtAt); err != nil {
		t.Fatalf("ReplaceMatrix(nil) error = %v", err)
	}
	stored, _ = db.ListEntries()
	if len(stored) != 0 {
		t.Errorf("expected empty matrix, got %d rows", len(stored))
	}
}

func TestDB_GetEntry(t *testing.T) {
	db := newTestDB(t)
	if err := db.ReplaceMatrix(testEntries(), time.Now()); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		sku      string
		arch     string
		wantArch string
		wantErr  error
	}{
		{name: "unique sku", sku: "19245", wantArch: "x86_64"},
		{name: "shared sku first in build order", sku: "19250", wantArch: "x86_64"},
		{name: "shared sku by arch", sku: "19250", arch: "aarch64", wantArch: "aarch64"},
		{name: "missing", sku: "1", wantErr: ErrNotFound},
		{name: "wrong arch", sku: "19245", arch: "aarch64", wantErr: ErrNotFound},
		{name: "empty", sku: "", wantErr: ErrEmptySKU},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := db.GetEntry(tt.sku, tt.arch)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("GetEntry() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetEntry() error = %v", err)
			}
			if entry.Arch != tt.wantArch {
				t.Errorf("Arch = %q, want %q", entry.Arch, tt.wantArch)
			}
		})
	}
}

func TestDB_Resolutions(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	failure := resolve.Result{
		SKU:        "19245",
		Value:      resolve.Value{Outcome: resolve.Failure{Message: "Code: 715"}},
		Metadata:   resolve.Metadata{Release: "11", Arch: "x86_64", Edition: "Arabic", Error: strPtr("Code: 715")},
		Expiration: base.Add(24 * time.Hour),
	}
	success := resolve.Result{
		SKU:        "19245",
		Value:      resolve.Value{Outcome: resolve.Success{URL: "https://dl/ar.iso"}},
		Metadata:   resolve.Metadata{Release: "11", Arch: "x86_64", Edition: "Arabic", Filename: strPtr("ar.iso")},
		Expiration: base.Add(time.Hour),
	}
	other := resolve.Result{
		SKU:        "19250",
		Value:      resolve.Value{Outcome: resolve.Error{Message: "session permit failed"}},
		Metadata:   resolve.Metadata{Release: "11", Arch: "aarch64", Edition: "French"},
		Expiration: base,
	}

	for i, r := range []resolve.Result{failure, success, other} {
		if err := db.RecordResolution(NewResolution(r, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("RecordResolution() error = %v", err)
		}
	}
	if err := db.RecordResolution(nil); !errors.Is(err, ErrNilResolution) {
		t.Errorf("expected ErrNilResolution, got %v", err)
	}

	latest, err := db.LatestResolutions()
	if err != nil {
		t.Fatalf("LatestResolutions() error = %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("len(latest) = %d, want 2", len(latest))
	}

	got := latest[ResolutionKey("19245", "x86_64")]
	if got == nil || got.Status != "Success" || got.URL != "https://dl/ar.iso" || got.Filename != "ar.iso" {
		t.Errorf("latest for 19245 = %+v", got)
	}
	got = latest[ResolutionKey("19250", "aarch64")]
	if got == nil || got.Status != "Error" || got.Error != "session permit failed" {
		t.Errorf("latest for 19250 = %+v", got)
	}
}

func TestDB_GetStats(t *testing.T) {
	db := newTestDB(t)
	if err := db.ReplaceMatrix(testEntries(), time.Now()); err != nil {
		t.Fatal(err)
	}
	r := resolve.Result{
		SKU:      "17000",
		Value:    resolve.Value{Outcome: resolve.Success{URL: "u"}},
		Metadata: resolve.Metadata{Release: "10", Arch: "x86_64", Edition: "French"},
	}
	if err := db.RecordResolution(NewResolution(r, time.Now())); err != nil {
		t.Fatal(err)
	}

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats["total_entries"] != int64(4) {
		t.Errorf("total_entries = %v, want 4", stats["total_entries"])
	}
	if _, ok := stats["by_release"]; !ok {
		t.Error("expected by_release in stats")
	}
	if _, ok := stats["by_status"]; !ok {
		t.Error("expected by_status in stats")
	}
}
