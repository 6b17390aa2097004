// Package github publishes winiso output files (matrices and resolution
// results) as assets of a GitHub release.
package github

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-github/v57/github"
)

// Sentinel errors for GitHub operations.
var (
	ErrEmptyToken      = errors.New("github token cannot be empty")
	ErrInvalidRepo     = errors.New("repository must be in format 'owner/repo'")
	ErrTagRequired     = errors.New("release tag cannot be empty")
	ErrNameRequired    = errors.New("release name cannot be empty")
	ErrReleaseNotFound = errors.New("release not found")
	ErrNotInitialized  = errors.New("client not initialized: use NewClient to create instances")
)

// ReleaseSpec describes a release to look up or create.
type ReleaseSpec struct {
	Tag   string
	Name  string
	Body  string
	Draft bool
}

func (s ReleaseSpec) validate() error {
	if s.Tag == "" {
		return ErrTagRequired
	}
	if s.Name == "" {
		return ErrNameRequired
	}
	return nil
}

// Option customizes the underlying API client.
type Option func(*options)

type options struct {
	httpClient *http.Client
	baseURL    string
}

// WithHTTPClient sends API calls through hc.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithBaseURL points API and upload calls at baseURL, e.g. a GitHub
// Enterprise host or an httptest server.
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = baseURL }
}

// Client publishes to a single repository.
type Client struct {
	api   *github.Client
	owner string
	repo  string
}

// NewClient creates a client for repository ("owner/repo") authenticated
// with token, typically the GITHUB_TOKEN of a workflow with contents: write.
func NewClient(token, repository string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}
	owner, repo, err := parseRepository(repository)
	if err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	api := github.NewClient(o.httpClient).WithAuthToken(token)
	if o.baseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(o.baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid base url %q: %w", o.baseURL, err)
		}
		api.BaseURL = base
		api.UploadURL = base
	}

	return &Client{api: api, owner: owner, repo: repo}, nil
}

func (c *Client) ready() error {
	if c.api == nil || c.owner == "" || c.repo == "" {
		return ErrNotInitialized
	}
	return nil
}

// Repository returns the "owner/repo" the client publishes to.
func (c *Client) Repository() string {
	return c.owner + "/" + c.repo
}

// Release returns the release tagged tag, or ErrReleaseNotFound.
func (c *Client) Release(ctx context.Context, tag string) (*github.RepositoryRelease, error) {
	if tag == "" {
		return nil, ErrTagRequired
	}
	if err := c.ready(); err != nil {
		return nil, err
	}

	release, resp, err := c.api.Repositories.GetReleaseByTag(ctx, c.owner, c.repo, tag)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrReleaseNotFound
		}
		return nil, fmt.Errorf("failed to get release %s: %w", tag, err)
	}
	return release, nil
}

// CreateRelease creates the release described by spec.
func (c *Client) CreateRelease(ctx context.Context, spec ReleaseSpec) (*github.RepositoryRelease, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	if err := c.ready(); err != nil {
		return nil, err
	}

	created, _, err := c.api.Repositories.CreateRelease(ctx, c.owner, c.repo, &github.RepositoryRelease{
		TagName: github.String(spec.Tag),
		Name:    github.String(spec.Name),
		Body:    github.String(spec.Body),
		Draft:   github.Bool(spec.Draft),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create release %s: %w", spec.Tag, err)
	}
	return created, nil
}

// EnsureRelease returns the release for spec.Tag, creating it when missing.
// The boolean reports whether it was created. An existing release keeps its
// name and body.
func (c *Client) EnsureRelease(ctx context.Context, spec ReleaseSpec) (*github.RepositoryRelease, bool, error) {
	if err := spec.validate(); err != nil {
		return nil, false, err
	}
	existing, err := c.Release(ctx, spec.Tag)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrReleaseNotFound) {
		return nil, false, err
	}
	created, err := c.CreateRelease(ctx, spec)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// UploadAsset uploads filePath to the release, named after the file. An
// asset of the same name left by an interrupted run is deleted first, since
// GitHub rejects duplicate names.
func (c *Client) UploadAsset(ctx context.Context, releaseID int64, filePath string) (*github.ReleaseAsset, error) {
	if releaseID == 0 {
		return nil, fmt.Errorf("release ID cannot be zero")
	}
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}
	if err := c.ready(); err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer func() { _ = file.Close() }()

	name := filepath.Base(filePath)
	if err := c.deleteAsset(ctx, releaseID, name); err != nil {
		return nil, err
	}

	opts := &github.UploadOptions{Name: name, MediaType: mediaType(name)}
	asset, _, err := c.api.Repositories.UploadReleaseAsset(ctx, c.owner, c.repo, releaseID, opts, file)
	if err != nil {
		return nil, fmt.Errorf("failed to upload asset %s: %w", name, err)
	}
	return asset, nil
}

// deleteAsset removes the asset called name from the release, if present.
func (c *Client) deleteAsset(ctx context.Context, releaseID int64, name string) error {
	opts := &github.ListOptions{PerPage: 100}
	for {
		assets, resp, err := c.api.Repositories.ListReleaseAssets(ctx, c.owner, c.repo, releaseID, opts)
		if err != nil {
			return fmt.Errorf("failed to list assets of release %d: %w", releaseID, err)
		}
		for _, asset := range assets {
			if asset.GetName() != name {
				continue
			}
			if _, err := c.api.Repositories.DeleteReleaseAsset(ctx, c.owner, c.repo, asset.GetID()); err != nil {
				return fmt.Errorf("failed to replace asset %s: %w", name, err)
			}
			return nil
		}
		if resp == nil || resp.NextPage == 0 {
			return nil
		}
		opts.Page = resp.NextPage
	}
}

func mediaType(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// AssetURL returns the public download URL of an asset.
func (c *Client) AssetURL(asset *github.ReleaseAsset) string {
	return asset.GetBrowserDownloadURL()
}

// ReleaseURL returns the HTML URL of a release.
func (c *Client) ReleaseURL(release *github.RepositoryRelease) string {
	return release.GetHTMLURL()
}

// parseRepository splits "owner/repo", trimming spaces around either part.
func parseRepository(repository string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(repository, "/")
	if !ok || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("%w: got %q", ErrInvalidRepo, repository)
	}
	owner, repo = strings.TrimSpace(owner), strings.TrimSpace(repo)
	if owner == "" || repo == "" {
		return "", "", fmt.Errorf("%w: owner or repo is empty", ErrInvalidRepo)
	}
	return owner, repo, nil
}
