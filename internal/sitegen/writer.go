package sitegen

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// siteWriter writes generated files below root. Files whose content is
// unchanged are left alone so regenerating keeps their timestamps, and
// changed files are replaced by rename so a served site never shows a
// half-written page.
type siteWriter struct {
	root      string
	logger    *slog.Logger
	written   int
	unchanged int
}

func newSiteWriter(root string, logger *slog.Logger) *siteWriter {
	return &siteWriter{root: root, logger: logger}
}

// write stores content at rel, a slash-separated path below root.
func (w *siteWriter) write(rel string, content []byte) error {
	path := filepath.Join(w.root, filepath.FromSlash(rel))

	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, content) {
		w.unchanged++
		w.logger.Debug("file unchanged, skipping", "path", path)
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", rel, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	if err := tmp.Chmod(0644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", rel, err)
	}

	w.written++
	w.logger.Debug("file written", "path", path, "bytes", len(content))
	return nil
}
