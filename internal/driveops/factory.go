package driveops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/tonimelisma/onedrive-fs/internal/config"
	"github.com/tonimelisma/onedrive-fs/internal/graph"
	"github.com/tonimelisma/onedrive-fs/internal/remotefs"
)

// Configuration errors. Both are fatal for the identifier concerned.
var (
	ErrUnknownDrive = errors.New("driveops: unknown drive")
	ErrSiteNotFound = errors.New("driveops: site not found")
)

var errNotAnAdapter = errors.New("driveops: cached value is not an adapter")

// driveSuffix turns a site ID into the identifier of its default drive.
const driveSuffix = "/drive"

// FactoryOptions carries the collaborators a Factory builds clients from.
// Zero values select production defaults.
type FactoryOptions struct {
	// TokenProvider exchanges credentials for tokens. Nil uses
	// graph.ClientCredentials against each drive's login_url.
	TokenProvider graph.TokenProvider
	// Transport is shared by every Graph and token client. Nil uses
	// http.DefaultTransport.
	Transport http.RoundTripper
	// Metrics, when set, is attached to every Graph client.
	Metrics *graph.Metrics
}

// sessionKey identifies one token cache entry.
type sessionKey struct {
	graph.Credentials
	loginURL string
}

// Factory hands out one remotefs.Adapter per configured drive identifier.
// The first Get for an identifier builds the adapter; concurrent first
// calls share that work and later calls return the cached instance. A
// failed build is not cached.
type Factory struct {
	cfg    *config.Config
	env    config.EnvOverrides
	opts   FactoryOptions
	logger *slog.Logger

	group singleflight.Group

	mu       sync.Mutex
	adapters map[string]*remotefs.Adapter
	sessions map[sessionKey]*graph.Session
}

// NewFactory creates a Factory over cfg. No network traffic happens until
// Get is called.
func NewFactory(cfg *config.Config, env config.EnvOverrides, opts FactoryOptions, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}

	return &Factory{
		cfg:      cfg,
		env:      env,
		opts:     opts,
		logger:   logger,
		adapters: make(map[string]*remotefs.Adapter),
		sessions: make(map[sessionKey]*graph.Session),
	}
}

// Identifiers returns the configured drive identifiers, sorted.
func (f *Factory) Identifiers() []string {
	return config.DriveIDs(f.cfg)
}

// Get returns the adapter for id, building it on first use. Unknown
// identifiers fail with ErrUnknownDrive; a site that no search result
// matches exactly fails with ErrSiteNotFound.
//
// The build is detached from ctx and bounded by the drive's request
// timeout instead, so one caller giving up does not fail the others
// waiting on the same build. A canceled caller returns ctx.Err() at once.
func (f *Factory) Get(ctx context.Context, id string) (*remotefs.Adapter, error) {
	if a := f.cached(id); a != nil {
		return a, nil
	}

	buildCtx := context.WithoutCancel(ctx)

	ch := f.group.DoChan(id, func() (any, error) {
		if a := f.cached(id); a != nil {
			return a, nil
		}

		a, err := f.build(buildCtx, id)
		if err != nil {
			return nil, err
		}

		f.mu.Lock()
		f.adapters[id] = a
		f.mu.Unlock()

		return a, nil
	})

	var res singleflight.Result

	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, fmt.Errorf("driveops: drive %q: %w", id, ctx.Err())
	}

	if res.Err != nil {
		return nil, res.Err
	}

	if res.Shared {
		f.logger.Debug("adapter build shared", slog.String("drive", id))
	}

	a, ok := res.Val.(*remotefs.Adapter)
	if !ok {
		return nil, errNotAnAdapter
	}

	return a, nil
}

func (f *Factory) cached(id string) *remotefs.Adapter {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.adapters[id]
}

func (f *Factory) build(ctx context.Context, id string) (*remotefs.Adapter, error) {
	if _, ok := f.cfg.Drives[id]; !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownDrive, id)
	}

	rd, err := config.ResolveDrive(f.cfg, id, f.env)
	if err != nil {
		return nil, fmt.Errorf("driveops: resolving drive %q: %w", id, err)
	}

	ctx, cancel := context.WithTimeout(ctx, rd.RequestTimeout)
	defer cancel()

	f.logger.Info("building adapter",
		slog.String("drive", id),
		slog.String("site", rd.Site),
		slog.String("tenant_id", rd.TenantID),
	)

	session := f.session(rd)

	// The first token is fetched up front so bad credentials surface here
	// rather than on the first file operation.
	if _, err := session.Token(ctx); err != nil {
		return nil, fmt.Errorf("driveops: authenticating drive %q: %w", id, err)
	}

	httpClient := &http.Client{Transport: f.opts.Transport, Timeout: rd.RequestTimeout}
	client := graph.NewClient(rd.GraphURL, httpClient, session, f.logger).WithMetrics(f.opts.Metrics)

	drive, dirType := rd.Drive, rd.DirectoryType

	if rd.Site != "" {
		siteID, err := resolveSite(ctx, client, rd.Site)
		if err != nil {
			return nil, fmt.Errorf("driveops: drive %q: %w", id, err)
		}

		drive, dirType = siteID+driveSuffix, remotefs.KindSites
	}

	a, err := remotefs.New(client, drive, remotefs.Options{
		RequestTimeout: rd.RequestTimeout,
		ChunkSize:      rd.ChunkSize,
		DirectoryType:  dirType,
		WaitForCopy:    rd.WaitForCopy,
		CopyTimeout:    rd.CopyTimeout,
	}, f.logger.With(slog.String("drive", id)))
	if err != nil {
		return nil, fmt.Errorf("driveops: drive %q: %w", id, err)
	}

	f.logger.Info("adapter ready", slog.String("drive", id), slog.String("root", a.RootURL()))

	return a, nil
}

// session returns the shared Session for rd's credentials, creating it on
// first use.
func (f *Factory) session(rd *config.ResolvedDrive) *graph.Session {
	key := sessionKey{
		Credentials: graph.Credentials{
			TenantID:     rd.TenantID,
			ClientID:     rd.ClientID,
			ClientSecret: rd.ClientSecret,
		},
		loginURL: rd.LoginURL,
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.sessions[key]; ok {
		return s
	}

	provider := f.opts.TokenProvider
	if provider == nil {
		provider = &graph.ClientCredentials{
			AuthorityURL: rd.LoginURL,
			HTTPClient:   &http.Client{Transport: f.opts.Transport, Timeout: rd.RequestTimeout},
			Logger:       f.logger,
		}
	}

	s := graph.NewSession(provider, key.Credentials, f.logger)
	f.sessions[key] = s

	return s
}

// siteSearcher is the part of the Graph client site resolution needs.
type siteSearcher interface {
	SearchSites(ctx context.Context, query string) ([]graph.Site, error)
}

// resolveSite searches for name and returns the ID of the site whose
// display name equals it exactly. Search results are fuzzy, so near misses
// are skipped.
func resolveSite(ctx context.Context, api siteSearcher, name string) (string, error) {
	sites, err := api.SearchSites(ctx, name)
	if err != nil {
		return "", fmt.Errorf("searching for site %q: %w", name, err)
	}

	for _, s := range sites {
		if s.DisplayName == name {
			return s.ID, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrSiteNotFound, name)
}
