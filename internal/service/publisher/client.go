package publisher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/go-github/v75/github"

	"github.com/oshokin/gacha-release/internal/config"
	"github.com/oshokin/gacha-release/internal/domain/release"
	"github.com/oshokin/gacha-release/internal/logger"
)

// Client talks to the releases API of one repository.
type Client struct {
	// api is the go-github client.
	api *github.Client
	// owner and name identify the repository.
	owner string
	name  string

	// callTimeout is the default timeout for individual API calls.
	callTimeout time.Duration

	httpClient *http.Client
	token      string
	apiURL     string
	uploadURL  string
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for API calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithToken authenticates every request with a bearer token.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithEndpoints overrides the REST and upload base URLs. Empty values keep github.com.
func WithEndpoints(apiURL, uploadURL string) Option {
	return func(c *Client) {
		c.apiURL = apiURL
		c.uploadURL = uploadURL
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

var (
	// errRepositoryRequired is returned when the owner or name is missing.
	errRepositoryRequired = errors.New("repository owner and name must be provided")
	// errTargetRequired is returned when no release is given for an upload.
	errTargetRequired = errors.New("release target must be provided")
	// errArchiveRequired is returned when no archive is given for an upload.
	errArchiveRequired = errors.New("archive must be provided")
	// errTagLookup is returned when the tag lookup fails with anything but 404.
	errTagLookup = errors.New("look up release by tag")
)

// New creates a client for owner/name.
func New(owner, name string, opts ...Option) (*Client, error) {
	if owner == "" || name == "" {
		return nil, errRepositoryRequired
	}

	client := &Client{
		owner:       owner,
		name:        name,
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	api := github.NewClient(client.httpClient)
	if client.token != "" {
		api = api.WithAuthToken(client.token)
	}

	if err := setBaseURL(&api.BaseURL, client.apiURL); err != nil {
		return nil, fmt.Errorf("api url: %w", err)
	}

	if err := setBaseURL(&api.UploadURL, client.uploadURL); err != nil {
		return nil, fmt.Errorf("upload url: %w", err)
	}

	client.api = api

	return client, nil
}

// NewFromConfig creates a client from the release settings and the environment.
func NewFromConfig(cfg *config.Config) (*Client, error) {
	owner, name, err := cfg.Repository()
	if err != nil {
		return nil, err
	}

	token, err := cfg.Token()
	if err != nil {
		return nil, err
	}

	return New(owner, name,
		WithToken(token),
		WithEndpoints(cfg.Release.APIURL, cfg.Release.UploadURL),
		WithCallTimeout(cfg.Release.Timeout))
}

// setBaseURL parses raw into dst; the path always ends with a slash as go-github requires.
func setBaseURL(dst **url.URL, raw string) error {
	if raw == "" {
		return nil
	}

	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}

	*dst = parsed

	return nil
}

// Repository returns "owner/name".
func (c *Client) Repository() string {
	return c.owner + "/" + c.name
}

// CreateRelease creates a published release for the draft.
// A release already attached to the tag yields release.ErrDuplicateVersion.
func (c *Client) CreateRelease(ctx context.Context, draft *release.Draft) (*release.Target, error) {
	if err := c.ensureTagFree(ctx, draft.Tag); err != nil {
		return nil, err
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	request := &github.RepositoryRelease{
		TagName:    github.Ptr(draft.Tag),
		Name:       github.Ptr(draft.Title),
		Body:       github.Ptr(draft.Body),
		Draft:      github.Ptr(draft.Draft),
		Prerelease: github.Ptr(draft.Prerelease),
	}

	created, _, err := c.api.Repositories.CreateRelease(callCtx, c.owner, c.name, request)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", release.ErrReleaseCreateFailed, draft.Tag, err)
	}

	target := &release.Target{
		ID:        created.GetID(),
		Tag:       created.GetTagName(),
		UploadURL: created.GetUploadURL(),
		HTMLURL:   created.GetHTMLURL(),
	}

	logger.InfoKV(ctx, "Release created",
		"repository", c.Repository(),
		"tag", target.Tag,
		"release_id", target.ID,
		"url", target.HTMLURL)

	return target, nil
}

// ensureTagFree fails when a release for tag already exists.
func (c *Client) ensureTagFree(ctx context.Context, tag string) error {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	existing, resp, err := c.api.Repositories.GetReleaseByTag(callCtx, c.owner, c.name, tag)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil
		}

		return fmt.Errorf("%w: %w %s: %w", release.ErrReleaseCreateFailed, errTagLookup, tag, err)
	}

	return fmt.Errorf("%w: %s (%s)", release.ErrDuplicateVersion, tag, existing.GetHTMLURL())
}

// UploadAsset attaches the archive to the release.
func (c *Client) UploadAsset(ctx context.Context, target *release.Target, archive *release.Archive) (*release.Asset, error) {
	if target == nil {
		return nil, fmt.Errorf("%w: %w", release.ErrAssetUploadFailed, errTargetRequired)
	}

	if archive == nil {
		return nil, fmt.Errorf("%w: %w", release.ErrAssetUploadFailed, errArchiveRequired)
	}

	file, err := os.Open(archive.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", release.ErrAssetUploadFailed, err)
	}

	defer func() {
		_ = file.Close()
	}()

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	options := &github.UploadOptions{
		Name:      archive.Name,
		MediaType: release.ArchiveContentType,
	}

	uploaded, _, err := c.api.Repositories.UploadReleaseAsset(callCtx, c.owner, c.name, target.ID, options, file)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", release.ErrAssetUploadFailed, archive.Name, err)
	}

	asset := &release.Asset{
		ID:          uploaded.GetID(),
		Name:        uploaded.GetName(),
		ContentType: uploaded.GetContentType(),
		Size:        int64(uploaded.GetSize()),
		DownloadURL: uploaded.GetBrowserDownloadURL(),
	}

	logger.InfoKV(ctx, "Asset uploaded",
		"release_id", target.ID,
		"asset", asset.Name,
		"url", asset.DownloadURL)

	return asset, nil
}

// DeleteRelease removes a release; the tag stays.
func (c *Client) DeleteRelease(ctx context.Context, target *release.Target) error {
	if target == nil {
		return errTargetRequired
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	if _, err := c.api.Repositories.DeleteRelease(callCtx, c.owner, c.name, target.ID); err != nil {
		return fmt.Errorf("delete release %d: %w", target.ID, err)
	}

	logger.InfoKV(ctx, "Release deleted", "release_id", target.ID, "tag", target.Tag)

	return nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
