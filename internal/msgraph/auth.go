package msgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

var requiredScopes = []string{
	"https://graph.microsoft.com/Calendars.Read",
	"offline_access",
}

func msEndpoint(tenantID, path string) string {
	return "https://login.microsoftonline.com/" + tenantID + "/oauth2/v2.0/" + path
}

// TokenPath returns where Graph tokens are cached below the data directory.
func TokenPath(baseDir string) string {
	return filepath.Join(baseDir, "auth", "msgraph_tokens.json")
}

// oauth2Config returns the oauth2.Config for Microsoft Graph using the
// provided tenant and client IDs.
func oauth2Config(tenantID, clientID string) *oauth2.Config {
	return &oauth2.Config{
		ClientID: clientID,
		Scopes:   requiredScopes,
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: msEndpoint(tenantID, "devicecode"),
			TokenURL:      msEndpoint(tenantID, "token"),
			AuthStyle:     oauth2.AuthStyleInParams,
		},
	}
}

// TokenStore persists the Graph token as JSON at Path.
type TokenStore struct {
	Path string
}

// Load returns the saved token, or nil when none has been saved yet.
func (s TokenStore) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("corrupt token file (delete %s to re-authenticate): %w", s.Path, err)
	}
	return &tok, nil
}

// Save writes tok atomically with owner-only permissions.
func (s TokenStore) Save(tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("creating auth directory: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling token: %w", err)
	}
	tmpPath := s.Path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("saving token file: %w", err)
	}
	return nil
}

// Authenticator obtains Graph tokens, reusing the cached one when possible
// and falling back to the device code flow. The sign-in prompt goes to Out.
type Authenticator struct {
	TenantID string
	ClientID string
	Store    TokenStore
	Out      io.Writer
	Log      *slog.Logger
}

// TokenSource returns a token source that refreshes and persists tokens.
func (a *Authenticator) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	cfg := oauth2Config(a.TenantID, a.ClientID)
	log := a.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	tok, err := a.Store.Load()
	if err != nil {
		log.Warn("ignoring cached graph token", "err", err)
		tok = nil
	}

	if tok == nil || (!tok.Valid() && tok.RefreshToken == "") {
		tok, err = a.deviceFlow(ctx, cfg)
		if err != nil {
			return nil, err
		}
	} else if !tok.Valid() {
		refreshed, err := cfg.TokenSource(ctx, tok).Token()
		if err != nil {
			log.Info("token refresh failed, re-authenticating", "err", err)
			if refreshed, err = a.deviceFlow(ctx, cfg); err != nil {
				return nil, err
			}
		}
		tok = refreshed
	}

	if err := a.Store.Save(tok); err != nil {
		log.Warn("could not save graph token", "err", err)
	}
	return &savingTokenSource{ts: cfg.TokenSource(ctx, tok), store: a.Store, last: tok.AccessToken}, nil
}

func (a *Authenticator) deviceFlow(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	resp, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("device auth request failed: %w", err)
	}

	out := a.Out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "To sign in, use a web browser to open the page:")
	fmt.Fprintf(out, "  %s\n", resp.VerificationURI)
	fmt.Fprintf(out, "Enter the code: %s\n", resp.UserCode)
	fmt.Fprintln(out)

	tok, err := cfg.DeviceAccessToken(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("device authentication failed: %w", err)
	}
	return tok, nil
}

// savingTokenSource persists every token that differs from the last one seen.
type savingTokenSource struct {
	ts    oauth2.TokenSource
	store TokenStore
	last  string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.ts.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		// Best effort: a lost refresh only costs another sign-in.
		_ = s.store.Save(tok)
	}
	return tok, nil
}
