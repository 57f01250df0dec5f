package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusPerKind(t *testing.T) {
	cases := map[*Error]int{
		NotFound("x"):      http.StatusNotFound,
		Validation("x"):    http.StatusBadRequest,
		Conflict("x"):      http.StatusConflict,
		Forbidden("x"):     http.StatusForbidden,
		Internal("x"):      http.StatusInternalServerError,
		Unprocessable("x"): http.StatusUnprocessableEntity,
		Unavailable("x"):   http.StatusServiceUnavailable,
	}
	for err, want := range cases {
		if got := err.HTTPStatus(); got != want {
			t.Fatalf("kind %d: status %d, want %d", err.Kind, got, want)
		}
	}
}

func TestIsFollowsWrappedErrors(t *testing.T) {
	err := fmt.Errorf("load automation: %w", NotFound("automation not found"))
	if !Is(err, KindNotFound) {
		t.Fatalf("expected not found through wrapping")
	}
	if Is(err, KindForbidden) || Is(errors.New("plain"), KindNotFound) {
		t.Fatalf("unexpected kind match")
	}
}
