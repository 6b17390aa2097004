package sitegen

import (
	"bytes"
	"time"

	"github.com/clean-dependency-project/winiso/internal/output"
)

// IndexEntry is one row of the machine-readable index.json.
type IndexEntry struct {
	Release    string     `json:"release"`
	Arch       string     `json:"arch"`
	Language   string     `json:"language"`
	SKU        string     `json:"sku"`
	Checksum   *string    `json:"checksum"`
	Status     string     `json:"status,omitempty"`
	URL        string     `json:"url,omitempty"`
	Filename   string     `json:"filename,omitempty"`
	Expiration *time.Time `json:"expiration,omitempty"`
}

// BuildIndex flattens the model into index rows in page order.
func BuildIndex(model *SiteModel) []IndexEntry {
	index := []IndexEntry{}
	for _, release := range model.Releases {
		for _, arch := range release.Archs {
			for _, e := range arch.Editions {
				row := IndexEntry{
					Release:  release.Name,
					Arch:     arch.Arch,
					Language: e.Language,
					SKU:      e.SKU,
					Status:   e.Status,
					Filename: e.Filename,
				}
				if e.Checksum != "" {
					checksum := e.Checksum
					row.Checksum = &checksum
				}
				if e.Status == "Success" {
					row.URL = e.URL
				}
				if !e.Expiration.IsZero() {
					exp := e.Expiration.UTC()
					row.Expiration = &exp
				}
				index = append(index, row)
			}
		}
	}
	return index
}

// renderJSONIndex writes /index.json for scripts that consume the site.
func renderJSONIndex(model *SiteModel, w *siteWriter) error {
	var buf bytes.Buffer
	if err := output.WriteJSON(&buf, BuildIndex(model)); err != nil {
		return err
	}
	return w.write("index.json", buf.Bytes())
}
