package genie

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenServer(t *testing.T, expiresIn int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, DatabricksScope, r.PostForm.Get("scope"))
		assert.Equal(t, "client", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":%d}`, n, expiresIn)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func testCredentials(tokenURL string) CredentialConfig {
	return CredentialConfig{ClientID: "client", ClientSecret: "secret", TokenURL: tokenURL}
}

func TestTokenSourceCachesToken(t *testing.T) {
	srv, hits := newTokenServer(t, 3600)
	ts := NewTokenSource(context.Background(), testCredentials(srv.URL))

	first, err := ts.Token()
	require.NoError(t, err)
	second, err := ts.Token()
	require.NoError(t, err)

	assert.Equal(t, "tok-1", first.AccessToken)
	assert.Equal(t, first.AccessToken, second.AccessToken)
	assert.Equal(t, int32(1), hits.Load())
}

func TestTokenSourceRefreshesNearExpiry(t *testing.T) {
	// Tokens valid for less than the early-expiry window are never reused.
	srv, hits := newTokenServer(t, 30)
	ts := NewTokenSource(context.Background(), testCredentials(srv.URL))

	_, err := ts.Token()
	require.NoError(t, err)
	second, err := ts.Token()
	require.NoError(t, err)

	assert.Equal(t, "tok-2", second.AccessToken)
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPClientAttachesBearer(t *testing.T) {
	tokens, _ := newTokenServer(t, 3600)
	var auth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer api.Close()

	client := NewHTTPClient(NewTokenSource(context.Background(), testCredentials(tokens.URL)))
	resp, err := client.Get(api.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer tok-1", auth)
}

func TestTokenEndpoint(t *testing.T) {
	assert.Equal(t, "https://login.microsoftonline.com/tenant-1/oauth2/v2.0/token", TokenEndpoint("tenant-1"))
}
