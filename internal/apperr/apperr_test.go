package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeOfWrapped(t *testing.T) {
	base := New(CodeNotFound, "game not found")
	err := fmt.Errorf("load leaderboard: %w", base)

	if got := CodeOf(err); got != CodeNotFound {
		t.Fatalf("expected not_found, got %s", got)
	}
	if got := CodeOf(errors.New("boom")); got != CodeInternal {
		t.Fatalf("expected internal for plain error, got %s", got)
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := New(CodeInvalidArgument, "score must be non-negative")
	if !errors.Is(err, &Error{Code: CodeInvalidArgument}) {
		t.Fatal("expected match by code")
	}
	if errors.Is(err, &Error{Code: CodeNotFound}) {
		t.Fatal("expected no match for other code")
	}
}

func TestMessageHidesCause(t *testing.T) {
	err := Wrap(CodeUnavailable, "score store unavailable", errors.New("dial tcp: refused"))
	if got := Message(err); got != "score store unavailable" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := err.Error(); got != "score store unavailable: dial tcp: refused" {
		t.Fatalf("unexpected error text %q", got)
	}
	if !Retryable(err) {
		t.Fatal("expected unavailable to be retryable")
	}
	if Message(errors.New("secret")) != "internal error" {
		t.Fatal("expected generic message for plain errors")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := map[Code]int{
		CodeInvalidArgument:  http.StatusBadRequest,
		CodeNotFound:         http.StatusNotFound,
		CodeUnauthenticated:  http.StatusUnauthorized,
		CodePermissionDenied: http.StatusForbidden,
		CodeUnavailable:      http.StatusServiceUnavailable,
		CodeInternal:         http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := code.HTTPStatus(); got != want {
			t.Fatalf("%s: got %d, want %d", code, got, want)
		}
	}
}
