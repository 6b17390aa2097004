package sitegen

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"time"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

//go:embed assets/style.css
var assetsFS embed.FS

// renderHumanPages generates the browsable HTML pages:
// /index.html and /windows-<release>/index.html.
func renderHumanPages(model *SiteModel, w *siteWriter) error {
	tmpl, err := loadTemplates()
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	if err := writeSiteAssets(w); err != nil {
		return fmt.Errorf("failed to write site assets: %w", err)
	}

	if err := renderPage(w, tmpl, "root.tmpl", model, "index.html"); err != nil {
		return fmt.Errorf("failed to render root index: %w", err)
	}
	w.logger.Info("rendered root index", "releases", len(model.Releases))

	for _, release := range model.Releases {
		if err := renderPage(w, tmpl, "release.tmpl", release, path.Join(release.Slug, "index.html")); err != nil {
			return fmt.Errorf("failed to render release page for %s: %w", release.Name, err)
		}
	}

	return nil
}

// writeSiteAssets copies the embedded stylesheet next to the pages.
func writeSiteAssets(w *siteWriter) error {
	data, err := fs.ReadFile(assetsFS, "assets/style.css")
	if err != nil {
		return fmt.Errorf("failed to read embedded style.css: %w", err)
	}
	return w.write("assets/style.css", data)
}

// loadTemplates parses all embedded templates with helper functions.
func loadTemplates() (*template.Template, error) {
	tmpl := template.New("").Funcs(template.FuncMap{
		"formatBytes": formatBytes,
		"formatTime":  formatTime,
		"shortHash":   shortHash,
		"dict":        dict,
	})
	return tmpl.ParseFS(templateFS, "templates/*.tmpl")
}

func renderPage(w *siteWriter, tmpl *template.Template, name string, data any, rel string) error {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("failed to execute %s: %w", name, err)
	}
	return w.write(rel, buf.Bytes())
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatTime renders t in UTC, or a dash for the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

// dict builds a map from alternating keys and values for nested templates.
func dict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("dict needs an even number of arguments")
	}
	m := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict key %v is not a string", pairs[i])
		}
		m[key] = pairs[i+1]
	}
	return m, nil
}

// shortHash keeps the first 12 characters of a hex digest.
func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12]
}
