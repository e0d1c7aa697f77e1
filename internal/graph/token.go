package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/microsoft"
)

// DefaultScope requests every application permission granted to the app
// registration on Microsoft Graph.
const DefaultScope = "https://graph.microsoft.com/.default"

// Token is a bearer token returned by a TokenProvider.
type Token struct {
	AccessToken string
	Expiry      time.Time // informational; Session does not track expiry
}

// TokenProvider exchanges app credentials for a bearer token.
type TokenProvider interface {
	GetToken(ctx context.Context, tenantID, clientID, clientSecret string) (*Token, error)
}

// ClientCredentials is the OAuth2 client-credentials TokenProvider for
// Microsoft identity platform tenants.
type ClientCredentials struct {
	// AuthorityURL overrides the login host ("https://login.microsoftonline.com").
	// Empty uses the Azure AD endpoint from golang.org/x/oauth2/microsoft.
	AuthorityURL string
	Scopes       []string
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// GetToken performs the client-credentials exchange. There is no caching
// here; Session holds the token.
func (p *ClientCredentials) GetToken(ctx context.Context, tenantID, clientID, clientSecret string) (*Token, error) {
	if tenantID == "" || clientID == "" || clientSecret == "" {
		return nil, errors.New("graph: tenant ID, client ID and client secret are required")
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	scopes := p.Scopes
	if len(scopes) == 0 {
		scopes = []string{DefaultScope}
	}

	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     p.tokenURL(tenantID),
		Scopes:       scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	if p.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.HTTPClient)
	}

	logger.Info("requesting client credentials token",
		slog.String("tenant_id", tenantID),
		slog.String("client_id", clientID),
	)

	tok, err := cfg.Token(ctx)
	if err != nil {
		logger.Warn("token acquisition failed",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)

		return nil, fmt.Errorf("graph: client credentials exchange for tenant %s: %w", tenantID, err)
	}

	logger.Debug("token acquired", slog.Time("expiry", tok.Expiry))

	return &Token{AccessToken: tok.AccessToken, Expiry: tok.Expiry}, nil
}

func (p *ClientCredentials) tokenURL(tenantID string) string {
	if p.AuthorityURL == "" {
		return microsoft.AzureADEndpoint(tenantID).TokenURL
	}

	return strings.TrimSuffix(p.AuthorityURL, "/") + "/" + tenantID + "/oauth2/v2.0/token"
}
