package zoom

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gijibot/gijibot/cmd/server/internal/metrics"
)

// tokenSafetyMargin is subtracted from the exchanged token's lifetime
// so a token is never used right at its expiry boundary.
const tokenSafetyMargin = 60 * time.Second

// selfSignedTokenTTL is the validity window of Strategy-A tokens.
const selfSignedTokenTTL = time.Hour

// AuthError reports a failed credential exchange with the provider's
// own error code and description attached.
type AuthError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("zoom auth failed (HTTP %d): %s - %s", e.StatusCode, e.Code, e.Description)
}

// CredentialBroker produces Authorization headers for the Zoom API
// using one of two strategies:
//
//   - Strategy A: a self-signed short-lived HS256 JWT, minted locally
//     per request and never cached.
//   - Strategy B: a Server-to-Server OAuth access token obtained from
//     the token endpoint and cached until shortly before expiry.
//
// Refreshing the cached token is race-tolerant: two goroutines may
// both perform the exchange, the second result simply wins.
type CredentialBroker struct {
	apiKey    string
	apiSecret string
	accountID string
	tokenURL  string

	httpClient *http.Client
	now        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewCredentialBroker creates a broker. accountID may be empty, in
// which case only Strategy A is available.
func NewCredentialBroker(apiKey, apiSecret, accountID string) *CredentialBroker {
	return &CredentialBroker{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		accountID:  accountID,
		tokenURL:   "https://zoom.us/oauth/token",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

// HasAccountID reports whether Strategy B can be attempted at all.
func (b *CredentialBroker) HasAccountID() bool {
	return b.accountID != ""
}

// mintSelfSigned builds a fresh Strategy-A token. No network calls,
// wall clock plus signing secret only.
func (b *CredentialBroker) mintSelfSigned() (string, error) {
	now := b.now()
	claims := jwt.RegisteredClaims{
		Issuer:    b.apiKey,
		ExpiresAt: jwt.NewNumericDate(now.Add(selfSignedTokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(b.apiSecret))
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

// exchangeToken performs the Server-to-Server OAuth exchange
// (grant_type=account_credentials with Basic auth) and caches the
// result with the safety margin applied.
func (b *CredentialBroker) exchangeToken(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "account_credentials")
	form.Set("account_id", b.accountID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(b.apiKey, b.apiSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var provErr struct {
			Reason      string `json:"reason"`
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		_ = json.Unmarshal(body, &provErr)
		code := provErr.Error
		if code == "" {
			code = provErr.Reason
		}
		desc := provErr.Description
		if desc == "" {
			desc = strings.TrimSpace(string(body))
			if len(desc) > 200 {
				desc = desc[:200]
			}
		}
		return "", &AuthError{StatusCode: resp.StatusCode, Code: code, Description: desc}
	}

	var tokenData struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenData); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}
	if tokenData.AccessToken == "" {
		return "", &AuthError{StatusCode: resp.StatusCode, Code: "empty_token", Description: "token endpoint returned no access_token"}
	}

	expiresIn := tokenData.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}

	b.mu.Lock()
	b.token = tokenData.AccessToken
	b.expiresAt = b.now().Add(time.Duration(expiresIn)*time.Second - tokenSafetyMargin)
	b.mu.Unlock()

	return tokenData.AccessToken, nil
}

// cachedToken returns the cached Strategy-B token if still valid.
func (b *CredentialBroker) cachedToken() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.token != "" && b.now().Before(b.expiresAt) {
		return b.token, true
	}
	return "", false
}

// Headers returns Authorization headers for an API call.
//
// With preferExchanged=false a fresh self-signed token is minted every
// time. With preferExchanged=true the cached exchanged token is used
// when valid, otherwise an exchange is performed; without an account
// ID the broker silently falls back to Strategy A.
func (b *CredentialBroker) Headers(ctx context.Context, preferExchanged bool) (http.Header, error) {
	if preferExchanged && b.accountID != "" {
		if token, ok := b.cachedToken(); ok {
			return bearerHeaders(token), nil
		}
		token, err := b.exchangeToken(ctx)
		if err != nil {
			metrics.RecordTokenAcquisition("oauth_exchange", "failed")
			return nil, err
		}
		metrics.RecordTokenAcquisition("oauth_exchange", "success")
		return bearerHeaders(token), nil
	}

	token, err := b.mintSelfSigned()
	if err != nil {
		metrics.RecordTokenAcquisition("self_signed", "failed")
		return nil, err
	}
	metrics.RecordTokenAcquisition("self_signed", "success")
	return bearerHeaders(token), nil
}

func bearerHeaders(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	h.Set("Content-Type", "application/json")
	return h
}
