package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusByKind(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{NotFound("missing"), http.StatusNotFound},
		{Conflict("dup"), http.StatusConflict},
		{Upstream("provider failed", errors.New("timeout")), http.StatusBadGateway},
		{Internal("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := tc.err.HTTPStatus(); got != tc.want {
			t.Fatalf("kind %d: expected %d, got %d", tc.err.Kind, tc.want, got)
		}
	}
}

func TestGetKindFollowsWrappedErrors(t *testing.T) {
	err := fmt.Errorf("handle inbound: %w", Upstream("reply generation failed", errors.New("eof")))

	if !Is(err, KindUpstream) {
		t.Fatalf("expected wrapped upstream error to be detected")
	}
	if !IsRetryable(err) {
		t.Fatalf("expected upstream error to be retryable")
	}
}

func TestValidationIsNotRetryable(t *testing.T) {
	if IsRetryable(Validation("missing contact id")) {
		t.Fatalf("validation errors must not be retryable")
	}
	if IsRetryable(nil) {
		t.Fatalf("nil error must not be retryable")
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(KindInternal, "commit exchange", errors.New("deadlock"))
	if err.Error() != "commit exchange: deadlock" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, err.Err) {
		t.Fatalf("expected cause to unwrap")
	}
	if New(Kind(99), "odd").HTTPStatus() != http.StatusInternalServerError {
		t.Fatalf("expected unknown kind to map to 500")
	}
}
