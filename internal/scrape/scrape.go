// Package scrape reads the vendor's product download page: the product
// edition id the connector API needs, and the published SHA-256 checksums of
// each language edition.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/clean-dependency-project/winiso/internal/webclient"
)

var (
	// ErrNoEditionID is returned when a product page lists no edition option.
	ErrNoEditionID = errors.New("no product edition id found on page")
	// ErrNoFilename is returned when a download URL cannot be parsed.
	ErrNoFilename = errors.New("download url has no file name")
	// ErrReadBody is returned when a response body cannot be read or decoded.
	ErrReadBody = errors.New("failed to read response body")
)

var (
	editionIDPattern = regexp.MustCompile(`option value="(\d+)`)
	checksumPattern  = regexp.MustCompile(`</tr><tr><td>([\p{L}\p{M}\p{N}\p{Pc}\p{Z}\s()]+) 64-bit</td>[\s\p{Z}]*<td>([A-F0-9]{64})</td>`)
)

// Checksums maps an edition display label (e.g. "English International") to
// its published SHA-256. Labels are the vendor's table text, not SKU
// language names, and are never normalized.
type Checksums map[string]string

// Claim returns the checksum for label and removes it, so each checksum is
// handed to at most one caller.
func (c Checksums) Claim(label string) (string, bool) {
	sum, ok := c[label]
	if ok {
		delete(c, label)
	}
	return sum, ok
}

// Labels returns the remaining labels in sorted order.
func (c Checksums) Labels() []string {
	labels := make([]string, 0, len(c))
	for label := range c {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// ProductPage is what one product page yields.
type ProductPage struct {
	URL       string
	EditionID string
	Checksums Checksums
}

// Parse extracts the edition id and checksum table from page markup.
// A page without checksums is valid; a page without an edition id is not.
func Parse(html string) (*ProductPage, error) {
	m := editionIDPattern.FindStringSubmatch(html)
	if m == nil {
		return nil, ErrNoEditionID
	}

	checksums := make(Checksums)
	for _, row := range checksumPattern.FindAllStringSubmatch(html, -1) {
		checksums[row[1]] = row[2]
	}

	return &ProductPage{
		EditionID: m[1],
		Checksums: checksums,
	}, nil
}

// Scraper fetches product pages and probes download file names.
type Scraper struct {
	client *webclient.Client
	logger *slog.Logger
}

// NewScraper creates a Scraper using the shared web client.
func NewScraper(client *webclient.Client, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{client: client, logger: logger}
}

// Scrape downloads and parses the product page at pageURL. The page is
// requested without a session; the vendor serves the same markup to
// everyone.
func (s *Scraper) Scrape(ctx context.Context, pageURL string) (*ProductPage, error) {
	resp, err := s.client.Get(ctx, pageURL, webclient.WithEmptyAccept())
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := readDecoded(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("%w from %s: %w", ErrReadBody, pageURL, err)
	}

	page, err := Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", pageURL, err)
	}
	page.URL = pageURL

	s.logger.Info("scraped product page",
		"url", pageURL,
		"product_edition_id", page.EditionID,
		"checksums", map[string]string(page.Checksums))

	return page, nil
}

// Filename follows downloadURL and returns the last path segment of the
// final URL. The body is never read.
func (s *Scraper) Filename(ctx context.Context, downloadURL string) (string, error) {
	resp, err := s.client.Get(ctx, downloadURL)
	if err != nil {
		return "", err
	}
	_ = resp.Body.Close()

	final := downloadURL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return FilenameFromURL(final)
}

// FilenameFromURL returns the last path segment of rawURL. A URL with no
// path, or one ending in a slash, has an empty last segment and yields "".
func FilenameFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoFilename, err)
	}
	if u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return "", nil
	}
	return path.Base(u.Path), nil
}

// readDecoded reads r as text, converting from the charset declared in
// contentType when there is one.
func readDecoded(r io.Reader, contentType string) (string, error) {
	if contentType != "" {
		if _, params, err := mime.ParseMediaType(contentType); err == nil {
			if charset := params["charset"]; charset != "" {
				enc, err := htmlindex.Get(charset)
				if err != nil {
					return "", fmt.Errorf("unsupported charset %q: %w", charset, err)
				}
				r = transform.NewReader(r, enc.NewDecoder())
			}
		}
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
