package intra

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"lucky-wheel/internal/pkg/metrics"
)

// ErrNoExpiry is returned when the token endpoint omits expires_in.
var ErrNoExpiry = errors.New("token response has no expires_in")

// TokenSource caches one client-credentials token per process.
// Concurrent callers converge on a single fetch: readers take the fast path
// under the read lock, and the first writer re-checks before fetching.
type TokenSource struct {
	cfg        clientcredentials.Config
	httpClient *http.Client
	margin     time.Duration
	timeout    time.Duration
	now        func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// NewTokenSource creates a TokenSource that fetches through httpClient.
func NewTokenSource(tokenURL, clientID, clientSecret string, httpClient *http.Client, margin, timeout time.Duration) *TokenSource {
	return &TokenSource{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient: httpClient,
		margin:     margin,
		timeout:    timeout,
		now:        time.Now,
	}
}

func (ts *TokenSource) valid() bool {
	return ts.token != "" && ts.now().Before(ts.expiresAt.Add(-ts.margin))
}

// Token returns a cached access token, fetching a new one when the cache is
// empty or within the safety margin of expiry.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.RLock()
	if ts.valid() {
		tok := ts.token
		ts.mu.RUnlock()
		return tok, nil
	}
	ts.mu.RUnlock()

	ts.mu.Lock()
	defer ts.mu.Unlock()

	// Another caller may have refreshed while we waited.
	if ts.valid() {
		return ts.token, nil
	}

	tok, err := ts.fetch(ctx)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		log.Error().Err(err).Str("token_url", ts.cfg.TokenURL).Msg("Failed to fetch campus API token")
		return "", err
	}
	metrics.TokenRefreshes.WithLabelValues("ok").Inc()

	ts.token = tok.AccessToken
	ts.expiresAt = tok.Expiry
	log.Info().
		Str("token_url", ts.cfg.TokenURL).
		Time("expires_at", ts.expiresAt).
		Msg("Fetched campus API token")

	return ts.token, nil
}

func (ts *TokenSource) fetch(ctx context.Context) (*oauth2.Token, error) {
	if ts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ts.timeout)
		defer cancel()
	}
	if ts.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, ts.httpClient)
	}

	tok, err := ts.cfg.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("client credentials grant: %w", err)
	}
	if tok.Expiry.IsZero() {
		return nil, ErrNoExpiry
	}
	return tok, nil
}

// Invalidate drops the cached token if it is still the one the caller used.
// A token refreshed in the meantime by another caller is kept.
func (ts *TokenSource) Invalidate(used string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if used == "" || ts.token == used {
		ts.token = ""
		ts.expiresAt = time.Time{}
	}
}
