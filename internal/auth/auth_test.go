package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestIssueAndVerify(t *testing.T) {
	tokens := NewTokens("secret")
	tok, err := tokens.Issue("p1", "", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	caller, err := tokens.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if caller.PlayerID != "p1" || caller.IsAdmin() {
		t.Fatalf("unexpected caller %+v", caller)
	}
}

func TestVerifyRejects(t *testing.T) {
	tokens := NewTokens("secret")
	expired, _ := tokens.Issue("p1", "", -time.Minute)
	foreign, _ := NewTokens("other").Issue("p1", "", time.Hour)

	for name, tok := range map[string]string{
		"expired":    expired,
		"bad secret": foreign,
		"garbage":    "not-a-token",
	} {
		if _, err := tokens.Verify(tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestAuthorizer(t *testing.T) {
	ctx := context.Background()
	var a Authorizer
	tests := []struct {
		name   string
		caller Caller
		player string
		want   bool
	}{
		{name: "self", caller: Caller{PlayerID: "p1"}, player: "p1", want: true},
		{name: "other", caller: Caller{PlayerID: "p1"}, player: "p2", want: false},
		{name: "admin", caller: Caller{PlayerID: "root", Role: RoleAdmin}, player: "p2", want: true},
		{name: "anonymous", caller: Caller{}, player: "", want: false},
	}
	for _, tt := range tests {
		if got := a.Check(ctx, tt.caller, tt.player); got != tt.want {
			t.Fatalf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMiddleware(t *testing.T) {
	tokens := NewTokens("secret")
	tok, _ := tokens.Issue("p9", RoleAdmin, time.Hour)

	var seen Caller
	var authenticated bool
	h := Middleware(tokens, zap.NewNop().Sugar())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, authenticated = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if !authenticated || seen.PlayerID != "p9" || !seen.IsAdmin() {
		t.Fatalf("expected admin caller, got %+v %v", seen, authenticated)
	}

	authenticated = false
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if authenticated || rec.Code != http.StatusOK {
		t.Fatalf("anonymous request should pass through, code %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
