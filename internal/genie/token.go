package genie

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// DatabricksScope is the Azure AD resource scope of Azure Databricks.
	DatabricksScope = "2ff814a6-3304-4ab8-85cb-cd0e6f879c1d/.default"

	// tokenEarlyExpiry refreshes cached tokens this long before they expire.
	tokenEarlyExpiry = 60 * time.Second
	tokenTimeout     = 10 * time.Second
)

// CredentialConfig describes a client-credentials grant.
type CredentialConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Scope        string
	// TokenURL overrides the Azure AD endpoint derived from TenantID.
	TokenURL string
}

// TokenEndpoint returns the Azure AD v2 token endpoint for a tenant.
func TokenEndpoint(tenantID string) string {
	return "https://login.microsoftonline.com/" + tenantID + "/oauth2/v2.0/token"
}

// NewTokenSource returns a process-wide token source that caches the bearer
// credential and re-fetches it when absent or within 60s of expiry.
func NewTokenSource(ctx context.Context, cfg CredentialConfig) oauth2.TokenSource {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = TokenEndpoint(cfg.TenantID)
	}
	scope := cfg.Scope
	if scope == "" {
		scope = DatabricksScope
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{scope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	// The token request uses its own short timeout regardless of the caller.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: tokenTimeout})
	return oauth2.ReuseTokenSourceWithExpiry(nil, &exchangeSource{ctx: ctx, cfg: cc}, tokenEarlyExpiry)
}

// exchangeSource performs a fresh client-credentials exchange on every call.
// cc.TokenSource caches with its own expiry window, which would hide the
// early refresh above.
type exchangeSource struct {
	ctx context.Context
	cfg *clientcredentials.Config
}

func (s *exchangeSource) Token() (*oauth2.Token, error) {
	return s.cfg.Token(s.ctx)
}

// NewHTTPClient returns an HTTP client that attaches bearer tokens from ts.
func NewHTTPClient(ts oauth2.TokenSource) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: ts,
			Base:   http.DefaultTransport,
		},
	}
}
