package vasttrafik

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/DominikKuenkele/sgs-housing-bot/travel"
	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultTokenURL = "https://ext-api.vasttrafik.se/token"
	DefaultScope    = "device_sgs"
	TokenFileName   = "access_token.json"

	// refreshMargin is how long before expiry a token is replaced.
	refreshMargin = 10 * time.Minute
	// fallbackLifetime applies when the token carries neither an exp claim
	// nor expires_in. It must exceed refreshMargin.
	fallbackLifetime = 30 * time.Minute
)

type tokenFile struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
	Scope       string `json:"scope,omitempty"`
}

// TokenSource hands out bearer tokens for the planner API. Tokens are
// persisted to Path and reused across runs until they are about to expire.
type TokenSource struct {
	TokenURL string
	// Key is the base64 encoded client credentials sent as Basic auth.
	Key        string
	Scope      string
	Path       string
	HTTPClient *http.Client
	Now        func() time.Time

	mu      sync.Mutex
	current string
	expiry  time.Time
}

func (ts *TokenSource) now() time.Time {
	if ts.Now != nil {
		return ts.Now()
	}
	return time.Now()
}

func (ts *TokenSource) valid(exp time.Time) bool {
	return !exp.IsZero() && exp.After(ts.now().Add(refreshMargin))
}

// Token returns a token that is valid for at least ten more minutes.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.current != "" && ts.valid(ts.expiry) {
		return ts.current, nil
	}
	if tok, exp, ok := ts.readFile(); ok && ts.valid(exp) {
		ts.current, ts.expiry = tok, exp
		return tok, nil
	}
	tok, exp, err := ts.fetch(ctx)
	if err != nil {
		return "", err
	}
	ts.current, ts.expiry = tok, exp
	return tok, nil
}

// Invalidate drops the cached token so the next call fetches a new one.
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	ts.current = ""
	ts.expiry = time.Time{}
	ts.mu.Unlock()
	if ts.Path != "" {
		_ = os.Remove(ts.Path)
	}
}

func (ts *TokenSource) readFile() (string, time.Time, bool) {
	if strings.TrimSpace(ts.Path) == "" {
		return "", time.Time{}, false
	}
	raw, err := os.ReadFile(ts.Path)
	if err != nil {
		return "", time.Time{}, false
	}
	var tf tokenFile
	if err := json.Unmarshal(raw, &tf); err != nil || tf.AccessToken == "" {
		return "", time.Time{}, false
	}
	exp, ok := tokenExpiry(tf.AccessToken)
	if !ok {
		return "", time.Time{}, false
	}
	return tf.AccessToken, exp, true
}

func (ts *TokenSource) fetch(ctx context.Context) (string, time.Time, error) {
	if strings.TrimSpace(ts.Key) == "" {
		return "", time.Time{}, travel.Permanent(fmt.Errorf("vasttrafik: missing api key"))
	}
	tokenURL := ts.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	scope := ts.Scope
	if scope == "" {
		scope = DefaultScope
	}
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, travel.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+ts.Key)

	client := ts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("vasttrafik token: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("vasttrafik token: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", time.Time{}, travel.Permanent(fmt.Errorf("vasttrafik token: status %d", resp.StatusCode))
	}
	if err := statusError("token", resp.StatusCode); err != nil {
		return "", time.Time{}, err
	}

	var tf tokenFile
	if err := json.Unmarshal(body, &tf); err != nil {
		return "", time.Time{}, fmt.Errorf("vasttrafik token: decode: %w", err)
	}
	if tf.AccessToken == "" {
		return "", time.Time{}, travel.Permanent(fmt.Errorf("vasttrafik token: empty access_token"))
	}
	exp, ok := tokenExpiry(tf.AccessToken)
	switch {
	case ok:
	case tf.ExpiresIn > 0:
		exp = ts.now().Add(time.Duration(tf.ExpiresIn) * time.Second)
	default:
		exp = ts.now().Add(fallbackLifetime)
	}

	if ts.Path != "" {
		if err := writeTokenFile(ts.Path, body); err != nil {
			return "", time.Time{}, err
		}
	}
	return tf.AccessToken, exp, nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// token is only ever sent back to its issuer.
func tokenExpiry(raw string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func writeTokenFile(path string, body []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("vasttrafik token: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o600); err != nil {
		return fmt.Errorf("vasttrafik token: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("vasttrafik token: %w", err)
	}
	return nil
}
