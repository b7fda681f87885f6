package auth

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

const clientSecrets = `{"installed":{
	"client_id":"id.apps.googleusercontent.com",
	"client_secret":"secret",
	"auth_uri":"https://accounts.google.com/o/oauth2/auth",
	"token_uri":"https://oauth2.googleapis.com/token",
	"redirect_uris":["http://localhost"]
}}`

func newTestProvider(t *testing.T, opts ...Option) (*Provider, string) {
	t.Helper()
	dir := t.TempDir()
	opts = append([]Option{WithLogger(log.New(io.Discard, "", 0))}, opts...)
	p, err := NewProvider(dir, []string{"scope"}, opts...)
	require.NoError(t, err)
	return p, dir
}

func installCredentials(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ClientSecretsFile), []byte(clientSecrets), 0600))
	require.NoError(t, saveToken(filepath.Join(dir, TokenFile), &oauth2.Token{
		AccessToken:  "access",
		TokenType:    "Bearer",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	}))
}

func TestCurrentWithoutTokenIsAnonymous(t *testing.T) {
	p, _ := newTestProvider(t)
	id, client, err := p.Current(context.Background())
	require.NoError(t, err)
	assert.True(t, id.Anonymous())
	assert.Nil(t, client)
}

func TestCurrentUsesRememberedPrincipal(t *testing.T) {
	p, dir := newTestProvider(t)
	installCredentials(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, PrincipalFile), []byte("me@example.com\n"), 0600))

	id, client, err := p.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", id.Principal)
	assert.Equal(t, "access", id.Token.AccessToken)
	assert.NotNil(t, client)
}

func TestCurrentLooksUpPrincipal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/drive/v3/about" || r.Header.Get("Authorization") != "Bearer access" {
			http.Error(w, `{"error":{"code":401,"message":"nope"}}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"user":{"emailAddress":"me@example.com"}}`)
	}))
	defer srv.Close()

	p, dir := newTestProvider(t, WithAPIOptions(option.WithEndpoint(srv.URL+"/drive/v3/")))
	installCredentials(t, dir)

	id, _, err := p.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", id.Principal)

	b, err := os.ReadFile(filepath.Join(dir, PrincipalFile))
	require.NoError(t, err)
	assert.Equal(t, "me@example.com\n", string(b))
}

func TestCurrentWithUnreachableAccountFails(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	p, dir := newTestProvider(t, WithAPIOptions(option.WithEndpoint(srv.URL+"/drive/v3/")))
	installCredentials(t, dir)

	id, client, err := p.Current(context.Background())
	require.ErrorIs(t, err, ErrPrincipalUnknown)
	assert.Nil(t, client)
	assert.Equal(t, Identity{}, id)
	_, statErr := os.Stat(filepath.Join(dir, PrincipalFile))
	assert.True(t, os.IsNotExist(statErr), "nothing is remembered")
	_, statErr = os.Stat(filepath.Join(dir, TokenFile))
	assert.NoError(t, statErr, "the token is kept for the next attempt")
}

func TestCurrentWithoutClientSecrets(t *testing.T) {
	p, dir := newTestProvider(t)
	installCredentials(t, dir)
	require.NoError(t, os.Remove(filepath.Join(dir, ClientSecretsFile)))

	_, _, err := p.Current(context.Background())
	assert.ErrorIs(t, err, ErrNoClientSecrets)
}

func TestInvalidateKeepsPrincipal(t *testing.T) {
	p, dir := newTestProvider(t)
	installCredentials(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, PrincipalFile), []byte("me@example.com"), 0600))

	p.Invalidate()
	_, err := os.Stat(filepath.Join(dir, TokenFile))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, "me@example.com", p.cachedPrincipal())

	p.Invalidate()

	p.Logout()
	assert.Equal(t, "", p.cachedPrincipal())
}

func TestSaveTokenIsPrivate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", TokenFile)
	require.NoError(t, saveToken(path, &oauth2.Token{AccessToken: "a"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	tok, err := tokenFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a", tok.AccessToken)
}

func TestRedirectURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://localhost", "http://localhost:6789"},
		{"http://127.0.0.1:8080/cb", "http://127.0.0.1:6789/cb"},
		{"urn:ietf:wg:oauth:2.0:oob", "http://localhost:6789/oauth2callback"},
		{"https://example.com/cb", "https://example.com/cb"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, redirectURL(tt.in), tt.in)
	}
}

type staticSource struct{ tok *oauth2.Token }

func (s staticSource) Token() (*oauth2.Token, error) { return s.tok, nil }

func TestSavingSourcePersistsRefresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), TokenFile)
	old := &oauth2.Token{AccessToken: "old"}
	src := &savingSource{
		base:   staticSource{&oauth2.Token{AccessToken: "new"}},
		path:   path,
		last:   old,
		logger: log.New(io.Discard, "", 0),
	}

	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "new", tok.AccessToken)

	saved, err := tokenFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", saved.AccessToken)
}
