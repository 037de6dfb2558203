// Package auth yields authenticated HTTP clients for the remote
// stores. It reads the OAuth client credentials file, caches the
// exchanged token in the system keyring with a JSON file fallback,
// and answers scope questions so the orchestrator can tell whether
// mailbox mutation is permitted.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/99designs/keyring"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	keyringService = "mailsheets"
	tokenKey       = "oauth-token"
)

// Provider holds the OAuth configuration and token cache paths.
type Provider struct {
	config    *oauth2.Config
	scopes    []string
	tokenFile string
	logger    *slog.Logger

	// openRing is swapped out by tests.
	openRing func() (keyring.Keyring, error)
}

// NewProvider parses the client credentials file for the given scopes.
func NewProvider(credentialsFile, tokenFile string, scopes []string, logger *slog.Logger) (*Provider, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading client credentials: %w", err)
	}
	cfg, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parsing client credentials: %w", err)
	}
	return &Provider{
		config:    cfg,
		scopes:    scopes,
		tokenFile: tokenFile,
		logger:    logger,
		openRing:  openKeyring,
	}, nil
}

// Client returns an HTTP client that refreshes its token as needed.
// When no cached token exists, it runs the interactive authorization
// code exchange.
func (p *Provider) Client(ctx context.Context) (*http.Client, error) {
	tok := p.loadToken()
	if tok == nil {
		var err error
		tok, err = p.exchangeInteractive(ctx)
		if err != nil {
			return nil, err
		}
		p.saveToken(tok)
	}
	return p.config.Client(ctx, tok), nil
}

// HasScope reports whether the configured scope set grants the given
// capability, matched as a substring so callers can ask for
// "gmail.modify" without the full URL.
func (p *Provider) HasScope(scope string) bool {
	for _, s := range p.scopes {
		if strings.Contains(s, scope) {
			return true
		}
	}
	return false
}

// loadToken tries the keyring first, then the token file. A missing
// or unreadable token is not an error; it triggers the interactive
// flow.
func (p *Provider) loadToken() *oauth2.Token {
	if ring, err := p.openRing(); err == nil {
		if item, err := ring.Get(tokenKey); err == nil {
			var tok oauth2.Token
			if err := json.Unmarshal(item.Data, &tok); err == nil {
				p.logger.Debug("loaded oauth token from keyring")
				return &tok
			}
		}
	}

	data, err := os.ReadFile(p.tokenFile)
	if err != nil {
		return nil
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		p.logger.Warn("token file is unreadable, re-authenticating", "path", p.tokenFile, "error", err)
		return nil
	}
	p.logger.Debug("loaded oauth token from file", "path", p.tokenFile)
	return &tok
}

// saveToken writes the token to the keyring and the fallback file.
// Cache failures are logged, not fatal; the token still lives for
// this process.
func (p *Provider) saveToken(tok *oauth2.Token) {
	data, err := json.Marshal(tok)
	if err != nil {
		p.logger.Warn("encoding oauth token", "error", err)
		return
	}

	if ring, err := p.openRing(); err == nil {
		if err := ring.Set(keyring.Item{Key: tokenKey, Data: data}); err != nil {
			p.logger.Warn("storing token in keyring", "error", err)
		}
	}

	if dir := filepath.Dir(p.tokenFile); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			p.logger.Warn("creating token directory", "path", dir, "error", err)
			return
		}
	}
	if err := os.WriteFile(p.tokenFile, data, 0o600); err != nil {
		p.logger.Warn("writing token file", "path", p.tokenFile, "error", err)
		return
	}
	p.logger.Info("oauth token cached", "path", p.tokenFile)
}

// exchangeInteractive prints the consent URL and exchanges the code
// the user pastes back.
func (p *Provider) exchangeInteractive(ctx context.Context) (*oauth2.Token, error) {
	authURL := p.config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Printf("Open the following link in your browser, then paste the authorization code:\n%v\n> ", authURL)

	var code string
	if _, err := fmt.Scan(&code); err != nil {
		return nil, fmt.Errorf("reading authorization code: %w", err)
	}

	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	return tok, nil
}

// openKeyring returns the system keyring, falling back to an
// encrypted file backend where no native store exists.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: keyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/mailsheets/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("mailsheets-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}
