package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Session holds one bearer token for one credential set. The token is
// fetched on first use and replaced only by Refresh; expiry is not tracked.
// Session satisfies TokenSource and Refresher.
type Session struct {
	provider TokenProvider
	creds    Credentials
	logger   *slog.Logger

	mu    sync.Mutex
	token string
}

// NewSession creates a Session. No token is fetched until Token is called.
func NewSession(provider TokenProvider, creds Credentials, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		provider: provider,
		creds:    creds,
		logger:   logger,
	}
}

// Token returns the cached token, fetching it on first use.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" {
		return s.token, nil
	}

	return s.fetchLocked(ctx)
}

// Refresh discards the cached token and fetches a new one.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.fetchLocked(ctx)

	return err
}

func (s *Session) fetchLocked(ctx context.Context) (string, error) {
	tok, err := s.provider.GetToken(ctx, s.creds.TenantID, s.creds.ClientID, s.creds.ClientSecret)
	if err != nil {
		return "", fmt.Errorf("graph: session token: %w", err)
	}

	if tok == nil || tok.AccessToken == "" {
		return "", fmt.Errorf("graph: session token: provider returned an empty token")
	}

	s.token = tok.AccessToken

	s.logger.Debug("session token stored",
		slog.String("tenant_id", s.creds.TenantID),
		slog.String("client_id", s.creds.ClientID),
	)

	return s.token, nil
}
