package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const (
	// ClientSecretsFile is the Google API client secrets (credentials.json) downloaded
	// from the Cloud console, kept in the config directory.
	ClientSecretsFile = "credentials.json"

	// TokenFile holds the user's access and refresh token.
	TokenFile = "token.json"

	// PrincipalFile remembers who the token belongs to, so local data stays scoped
	// to the right identity while offline.
	PrincipalFile = "principal"

	// LocalhostAuthPort is where the local web server listens for the OAuth redirect.
	LocalhostAuthPort = "6789"

	xdgAppName = "kotonote"
)

var (
	// ErrNoClientSecrets means credentials.json has not been installed.
	ErrNoClientSecrets = errors.New("client secrets not found")
	// ErrPrincipalUnknown means a token is stored but the account it belongs to
	// could not be looked up, typically because the network is down.
	ErrPrincipalUnknown = errors.New("signed-in account is not known yet")
)

// Identity is the signed-in principal. A zero Identity is the anonymous user.
type Identity struct {
	Principal string
	Token     *oauth2.Token
}

func (i Identity) Anonymous() bool {
	return i.Principal == ""
}

// Provider hands out the current identity and an authorized client, and drops the
// stored credential when the remote store rejects it.
type Provider struct {
	dir     string
	scopes  []string
	logger  *log.Logger
	apiOpts []option.ClientOption

	mu sync.Mutex
}

type Option func(*Provider)

func WithLogger(l *log.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithAPIOptions is passed to the Drive client used for the principal lookup.
func WithAPIOptions(opts ...option.ClientOption) Option {
	return func(p *Provider) { p.apiOpts = append(p.apiOpts, opts...) }
}

// NewProvider keeps its files in dir; empty dir means GetXdgHome.
func NewProvider(dir string, scopes []string, opts ...Option) (*Provider, error) {
	if dir == "" {
		var err error
		if dir, err = GetXdgHome(); err != nil {
			return nil, fmt.Errorf("could not find path to configuration directory: %w", err)
		}
	}
	p := &Provider{
		dir:    dir,
		scopes: scopes,
		logger: log.New(os.Stderr, "[auth] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Provider) tokenPath() string     { return filepath.Join(p.dir, TokenFile) }
func (p *Provider) principalPath() string { return filepath.Join(p.dir, PrincipalFile) }

// Current returns the stored identity and a client authorized as it. With no
// stored token the anonymous identity and a nil client come back. A token whose
// account cannot be determined yields ErrPrincipalUnknown, never the anonymous identity.
func (p *Provider) Current(ctx context.Context) (Identity, *http.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tok, err := tokenFromFile(p.tokenPath())
	if err != nil {
		if !os.IsNotExist(err) {
			p.logger.Printf("Warning: ignoring unreadable token: %v", err)
		}
		return Identity{}, nil, nil
	}
	config, err := GetConfig(p.dir, p.scopes)
	if err != nil {
		return Identity{}, nil, err
	}
	client := p.client(ctx, config, tok)

	principal := p.cachedPrincipal()
	if principal == "" {
		if principal, err = p.lookupPrincipal(ctx, client); err != nil {
			return Identity{}, nil, fmt.Errorf("%w: %v", ErrPrincipalUnknown, err)
		}
		p.savePrincipal(principal)
	}
	return Identity{Principal: principal, Token: tok}, client, nil
}

// Login discards any stored token and runs the browser consent flow.
func (p *Provider) Login(ctx context.Context) (Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	config, err := GetConfig(p.dir, p.scopes)
	if err != nil {
		return Identity{}, err
	}
	p.removeLocked()

	tok, err := getTokenFromWeb(config, p.logger)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to get token from web: %w", err)
	}
	if err := saveToken(p.tokenPath(), tok); err != nil {
		return Identity{}, err
	}
	principal, err := p.lookupPrincipal(ctx, p.client(ctx, config, tok))
	if err != nil {
		return Identity{}, err
	}
	p.savePrincipal(principal)
	return Identity{Principal: principal, Token: tok}, nil
}

// Invalidate removes the stored token after the remote store refused it. The
// principal is kept so local state stays under the same identity.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := os.Remove(p.tokenPath()); err != nil && !os.IsNotExist(err) {
		p.logger.Printf("Warning: could not delete token file '%s': %v", p.tokenPath(), err)
		return
	}
	p.logger.Printf("Removed rejected token, run 'kotonote auth' to reconnect")
}

// Logout forgets both the token and the principal.
func (p *Provider) Logout() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked()
}

func (p *Provider) removeLocked() {
	for _, path := range []string{p.tokenPath(), p.principalPath()} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			p.logger.Printf("Warning: could not delete '%s': %v", path, err)
		}
	}
}

func (p *Provider) client(ctx context.Context, config *oauth2.Config, tok *oauth2.Token) *http.Client {
	src := &savingSource{
		base:   config.TokenSource(ctx, tok),
		path:   p.tokenPath(),
		last:   tok,
		logger: p.logger,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src))
}

func (p *Provider) lookupPrincipal(ctx context.Context, client *http.Client) (string, error) {
	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, p.apiOpts...)
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("unable to create Drive service: %w", err)
	}
	about, err := srv.About.Get().Fields("user(emailAddress)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to look up signed-in user: %w", err)
	}
	if about.User == nil || about.User.EmailAddress == "" {
		return "", fmt.Errorf("signed-in user has no email address")
	}
	return about.User.EmailAddress, nil
}

func (p *Provider) cachedPrincipal() string {
	b, err := os.ReadFile(p.principalPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func (p *Provider) savePrincipal(principal string) {
	if err := os.MkdirAll(p.dir, 0700); err != nil {
		p.logger.Printf("Warning: could not create config directory %s: %v", p.dir, err)
		return
	}
	if err := os.WriteFile(p.principalPath(), []byte(principal+"\n"), 0600); err != nil {
		p.logger.Printf("Warning: could not remember principal: %v", err)
	}
}

// savingSource writes the token back to disk whenever a refresh changes it.
type savingSource struct {
	base   oauth2.TokenSource
	path   string
	logger *log.Logger

	mu   sync.Mutex
	last *oauth2.Token
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || tok.AccessToken != s.last.AccessToken || tok.RefreshToken != s.last.RefreshToken {
		if err := saveToken(s.path, tok); err != nil {
			s.logger.Printf("Warning: could not save refreshed token: %v", err)
		}
		s.last = tok
	}
	return tok, nil
}

// GetConfig creates an oauth2.Config from the client secrets in dir.
func GetConfig(dir string, scopes []string) (*oauth2.Config, error) {
	clientSecretsFile := filepath.Join(dir, ClientSecretsFile)
	b, err := os.ReadFile(clientSecretsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: place credentials.json in %s", ErrNoClientSecrets, dir)
		}
		return nil, fmt.Errorf("unable to read client secret file %s: %w", clientSecretsFile, err)
	}

	config, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = redirectURL(config.RedirectURL)
	return config, nil
}

// redirectURL points localhost and out-of-band redirects at LocalhostAuthPort,
// where getTokenFromWeb listens.
func redirectURL(configured string) string {
	if configured == "urn:ietf:wg:oauth:2.0:oob" || configured == "" {
		return fmt.Sprintf("http://localhost:%s/oauth2callback", LocalhostAuthPort)
	}
	parsedURL, err := url.Parse(configured)
	if err != nil {
		log.Printf("Warning: Could not parse RedirectURL '%s': %v. Using it as is.", configured, err)
		return configured
	}
	if parsedURL.Hostname() != "localhost" && parsedURL.Hostname() != "127.0.0.1" {
		log.Printf("Warning: Configured RedirectURL in credentials.json is not a localhost callback: %s", configured)
		return configured
	}
	if parsedURL.Port() != LocalhostAuthPort {
		parsedURL.Host = net.JoinHostPort(parsedURL.Hostname(), LocalhostAuthPort)
	}
	return parsedURL.String()
}

// getTokenFromWeb runs the authorization code flow, capturing the redirect on a
// local web server.
func getTokenFromWeb(config *oauth2.Config, logger *log.Logger) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", LocalhostAuthPort))
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on port %s: %w", LocalhostAuthPort, err)
	}
	defer listener.Close()

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Authorization code not found", http.StatusBadRequest)
				select {
				case errCh <- fmt.Errorf("authorization code not found in redirect URL"):
				default:
				}
				return
			}
			fmt.Fprintf(w, "Authentication successful! You can close this window.")
			select {
			case codeCh <- code:
			default:
			}
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case errCh <- fmt.Errorf("HTTP server error: %w", err):
			default:
			}
		}
	}()
	defer server.Shutdown(context.Background())

	// AccessTypeOffline is required to get a refresh token.
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Printf("Please open the following URL in your browser to authorize KotoNote:\n%s\n", authURL)
	logger.Println("Waiting for authorization code...")

	select {
	case authCode := <-codeCh:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		tok, err := config.Exchange(ctx, authCode)
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve token from Google: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-time.After(5 * time.Minute):
		return nil, fmt.Errorf("authorization timed out. Please try again")
	}
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode token from file %s: %w", file, err)
	}
	return tok, nil
}

// saveToken writes token to path, readable by the owner only.
func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("could not create token directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache OAuth token to %s: %w", path, err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

func GetXdgHome() (string, error) {
	xdgHome, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(xdgHome, ".config", xdgAppName), nil
}
