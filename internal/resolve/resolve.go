// Package resolve turns a matrix row into a signed, expiring download URL,
// and captures any failure as a record instead of an error.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clean-dependency-project/winiso/internal/connector"
	"github.com/clean-dependency-project/winiso/internal/matrix"
	"github.com/clean-dependency-project/winiso/internal/platform"
)

// DefaultFailureTTL is how long a failure record stays valid.
const DefaultFailureTTL = 24 * time.Hour

// Download is a resolved link.
type Download struct {
	URL string
	// Filename is empty unless the link was probed.
	Filename   string
	Expiration time.Time
}

// Metadata describes the row a Result belongs to. Nil fields encode as null.
type Metadata struct {
	Release  string  `json:"release"`
	Arch     string  `json:"arch"`
	Edition  string  `json:"edition"`
	Filename *string `json:"filename"`
	Checksum *string `json:"checksum"`
	Error    *string `json:"error"`
}

// Result is the record produced for one row.
type Result struct {
	SKU        string
	Value      Value
	Metadata   Metadata
	Expiration time.Time
}

// FilenameProber follows a download URL and names the file it serves.
type FilenameProber interface {
	Filename(ctx context.Context, downloadURL string) (string, error)
}

// Options configures a Resolver.
type Options struct {
	Architectures platform.Architectures
	// Prober, when set, is used to look up the file name of every resolved
	// link. Without it Download.Filename stays empty.
	Prober     FilenameProber
	FailureTTL time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
}

// Resolver resolves rows through the connector API.
type Resolver struct {
	client     connector.Client
	archs      platform.Architectures
	prober     FilenameProber
	failureTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time

	// sessions holds one *sync.Mutex per session ID. The vendor remembers
	// only the last primed edition of a session, so a prime and its links
	// request must not interleave with another row's.
	sessions sync.Map
}

// NewResolver creates a Resolver, filling unset options with defaults.
func NewResolver(client connector.Client, opts Options) *Resolver {
	if opts.Architectures == nil {
		opts.Architectures = platform.DefaultArchitectures()
	}
	if opts.FailureTTL <= 0 {
		opts.FailureTTL = DefaultFailureTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Resolver{
		client:     client,
		archs:      opts.Architectures,
		prober:     opts.Prober,
		failureTTL: opts.FailureTTL,
		logger:     opts.Logger,
		now:        opts.Now,
	}
}

// Resolve primes the row's edition for the session, requests the SKU's
// download links and picks the first one whose download type maps to the
// row's architecture.
func (r *Resolver) Resolve(ctx context.Context, sessionID string, entry matrix.Entry) (*Download, error) {
	options, err := r.primedLinks(ctx, sessionID, entry)
	if err != nil {
		return nil, err
	}
	if err := options.Err(); err != nil {
		return nil, err
	}

	uri, ok := r.selectOption(options.ProductDownloadOptions, entry.Arch)
	if !ok {
		return nil, &connector.APIError{
			Kind:    connector.KindNoMatchingArch,
			Op:      connector.OpDownloadLinks,
			Message: fmt.Sprintf("no download option for %s among %d options", entry.Arch, len(options.ProductDownloadOptions)),
		}
	}

	download := &Download{
		URL:        uri,
		Expiration: options.DownloadExpirationDateTime,
	}
	// A missing expiration is reported as the Unix epoch.
	if download.Expiration.IsZero() {
		download.Expiration = time.Unix(0, 0).UTC()
	}

	if r.prober != nil {
		name, err := r.prober.Filename(ctx, uri)
		if err != nil {
			return nil, fmt.Errorf("failed to determine file name: %w", err)
		}
		download.Filename = name
	}

	return download, nil
}

// primedLinks primes entry's edition and fetches its SKU's links while
// holding the session's lock.
func (r *Resolver) primedLinks(ctx context.Context, sessionID string, entry matrix.Entry) (*connector.DownloadOptions, error) {
	lock, _ := r.sessions.LoadOrStore(sessionID, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	if err := r.client.PrimeEdition(ctx, entry.ProductEditionID, sessionID); err != nil {
		return nil, fmt.Errorf("failed to prime edition %s: %w", entry.ProductEditionID, err)
	}
	options, err := r.client.DownloadLinksBySku(ctx, entry.SKU, sessionID, entry.Referer)
	if err != nil {
		return nil, fmt.Errorf("failed to get download links for sku %s: %w", entry.SKU, err)
	}
	return options, nil
}

func (r *Resolver) selectOption(options []connector.DownloadOption, arch string) (string, bool) {
	for _, option := range options {
		label, ok := r.archs.ForDownloadType(option.DownloadType)
		if ok && label == arch {
			return option.URI, true
		}
	}
	return "", false
}

// Run resolves entry and always returns a record: Success with the vendor's
// expiration, or Failure valid for the failure TTL.
func (r *Resolver) Run(ctx context.Context, sessionID string, entry matrix.Entry) Result {
	download, err := r.Resolve(ctx, sessionID, entry)
	if err != nil {
		r.logger.Warn("resolution failed",
			"sku", entry.SKU,
			"release", entry.Release,
			"arch", entry.Arch,
			"error", err)
		return r.failed(entry, Failure{Message: err.Error()}, err)
	}

	r.logger.Info("resolved download",
		"sku", entry.SKU,
		"release", entry.Release,
		"arch", entry.Arch,
		"expiration", download.Expiration)

	meta := baseMetadata(entry)
	if download.Filename != "" {
		meta.Filename = &download.Filename
	}
	meta.Checksum = entry.Checksum

	return Result{
		SKU:        entry.SKU,
		Value:      Value{Outcome: Success{URL: download.URL}},
		Metadata:   meta,
		Expiration: download.Expiration,
	}
}

// ErrorResult builds the record for a row that could not be attempted.
func (r *Resolver) ErrorResult(entry matrix.Entry, err error) Result {
	return r.failed(entry, Error{Message: err.Error()}, err)
}

func (r *Resolver) failed(entry matrix.Entry, outcome Outcome, err error) Result {
	msg := err.Error()
	meta := baseMetadata(entry)
	meta.Error = &msg
	return Result{
		SKU:        entry.SKU,
		Value:      Value{Outcome: outcome},
		Metadata:   meta,
		Expiration: r.now().Add(r.failureTTL),
	}
}

func baseMetadata(entry matrix.Entry) Metadata {
	return Metadata{
		Release: entry.Release,
		Arch:    entry.Arch,
		Edition: entry.Language,
	}
}
