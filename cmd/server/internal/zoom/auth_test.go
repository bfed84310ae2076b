package zoom

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestHeadersSelfSigned(t *testing.T) {
	broker := NewCredentialBroker("my-key", "my-secret", "")

	headers, err := broker.Headers(context.Background(), false)
	if err != nil {
		t.Fatalf("Headers failed: %v", err)
	}

	auth := headers.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		t.Fatalf("expected bearer token, got %q", auth)
	}

	// The minted token must be a valid HS256 JWT with our issuer.
	tokenStr := strings.TrimPrefix(auth, "Bearer ")
	parsed, err := jwt.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte("my-secret"), nil
	})
	if err != nil {
		t.Fatalf("minted token does not verify: %v", err)
	}
	claims := parsed.Claims.(*jwt.RegisteredClaims)
	if claims.Issuer != "my-key" {
		t.Errorf("expected issuer my-key, got %s", claims.Issuer)
	}
}

func TestHeadersFallsBackWithoutAccountID(t *testing.T) {
	// preferExchanged with no account ID must silently use Strategy A.
	broker := NewCredentialBroker("my-key", "my-secret", "")

	headers, err := broker.Headers(context.Background(), true)
	if err != nil {
		t.Fatalf("expected silent fallback, got error: %v", err)
	}
	if !strings.HasPrefix(headers.Get("Authorization"), "Bearer ") {
		t.Fatal("fallback did not produce a bearer token")
	}
}

func TestHeadersExchangeAndCache(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.FormValue("grant_type"); got != "account_credentials" {
			t.Errorf("unexpected grant_type %q", got)
		}
		if got := r.FormValue("account_id"); got != "acc-1" {
			t.Errorf("unexpected account_id %q", got)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "my-key" || pass != "my-secret" {
			t.Errorf("bad basic auth: %s/%s", user, pass)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-123","expires_in":3600}`))
	}))
	defer srv.Close()

	broker := NewCredentialBroker("my-key", "my-secret", "acc-1")
	broker.tokenURL = srv.URL

	h1, err := broker.Headers(context.Background(), true)
	if err != nil {
		t.Fatalf("first exchange failed: %v", err)
	}
	if h1.Get("Authorization") != "Bearer tok-123" {
		t.Errorf("unexpected token header: %s", h1.Get("Authorization"))
	}

	// Second call must be served from cache.
	if _, err := broker.Headers(context.Background(), true); err != nil {
		t.Fatalf("cached call failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 exchange call, got %d", calls)
	}
}

func TestHeadersExchangeExpiryMargin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok-xyz","expires_in":3600}`))
	}))
	defer srv.Close()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	broker := NewCredentialBroker("k", "s", "acc")
	broker.tokenURL = srv.URL
	broker.now = func() time.Time { return current }

	if _, err := broker.Headers(context.Background(), true); err != nil {
		t.Fatalf("exchange failed: %v", err)
	}

	// Just inside the margin the cached token must be considered stale.
	current = base.Add(3600*time.Second - 30*time.Second)
	if _, ok := broker.cachedToken(); ok {
		t.Error("token should be stale inside the safety margin")
	}

	// Well before the margin it is still valid.
	current = base.Add(time.Minute)
	if _, ok := broker.cachedToken(); !ok {
		t.Error("token should still be valid one minute after exchange")
	}
}

func TestHeadersExchangeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_client","error_description":"Invalid client_id or client_secret"}`))
	}))
	defer srv.Close()

	broker := NewCredentialBroker("bad-key", "bad-secret", "acc-1")
	broker.tokenURL = srv.URL

	_, err := broker.Headers(context.Background(), true)
	if err == nil {
		t.Fatal("expected exchange failure")
	}

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %T: %v", err, err)
	}
	if authErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", authErr.StatusCode)
	}
	if authErr.Code != "invalid_client" {
		t.Errorf("expected provider code in error, got %q", authErr.Code)
	}
}
