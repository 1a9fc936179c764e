package rail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/cache"
	"go.uber.org/zap"
)

// tokenSafetyMargin is subtracted from expires_in so a cached token is never
// presented in its final minutes.
const tokenSafetyMargin = 5 * time.Minute

var tokenCacheKey = cache.Key("rail", "access_token")

// TokenSource issues bearer tokens for the rail. A static token always wins;
// otherwise client credentials are exchanged and the result cached.
type TokenSource struct {
	static   string
	tokenURL string
	key      string
	secret   string
	http     *http.Client
	cache    cache.Cache

	mu sync.Mutex
}

func NewTokenSource(static, tokenURL, key, secret string, httpClient *http.Client, c cache.Cache) *TokenSource {
	if c == nil {
		c = cache.NewMemory()
	}
	return &TokenSource{
		static:   static,
		tokenURL: tokenURL,
		key:      key,
		secret:   secret,
		http:     httpClient,
		cache:    c,
	}
}

func (t *TokenSource) Token(ctx context.Context) (string, error) {
	if t.static != "" {
		return t.static, nil
	}
	if tok, err := t.cache.Get(ctx, tokenCacheKey); err == nil {
		return string(tok), nil
	}

	// One exchange at a time per process; concurrent callers reuse its result.
	t.mu.Lock()
	defer t.mu.Unlock()
	if tok, err := t.cache.Get(ctx, tokenCacheKey); err == nil {
		return string(tok), nil
	} else if !errors.Is(err, cache.ErrMiss) {
		zap.L().Warn("rail token cache read failed", zap.Error(err))
	}

	if t.key == "" || t.secret == "" {
		return "", fmt.Errorf("rail credentials not configured")
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(t.key, t.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var out tokenResponse
	if err := doJSON(t.http, req, "token", &out); err != nil {
		return "", err
	}

	ttl := time.Duration(out.ExpiresIn)*time.Second - tokenSafetyMargin
	if ttl > 0 {
		if err := t.cache.Set(ctx, tokenCacheKey, []byte(out.AccessToken), ttl); err != nil {
			zap.L().Warn("rail token cache write failed", zap.Error(err))
		}
	}
	zap.L().Info("rail access token obtained", zap.Int64("expires_in", out.ExpiresIn))
	return out.AccessToken, nil
}

// Invalidate drops the cached token after the rail refused it.
func (t *TokenSource) Invalidate(ctx context.Context) {
	if t.static != "" {
		return
	}
	if err := t.cache.Delete(ctx, tokenCacheKey); err != nil {
		zap.L().Warn("rail token invalidation failed", zap.Error(err))
	}
}
