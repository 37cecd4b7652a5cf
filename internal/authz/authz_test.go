package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/FranksOps/gofr-dig/internal/apperr"
)

type stubVerifier struct {
	info TokenInfo
	err  error
}

func (s stubVerifier) Verify(ctx context.Context, token string) (TokenInfo, error) {
	return s.info, s.err
}

func TestResolve_DisabledAuthAlwaysBypassesGroupCheck(t *testing.T) {
	a := New(stubVerifier{info: TokenInfo{Groups: []string{"apac"}}}, false)
	identity, err := a.Resolve(context.Background(), "some-token")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if identity.Enforce {
		t.Errorf("expected Enforce=false when auth disabled")
	}
	if identity.Group != "" {
		t.Errorf("expected disabled-auth identity to ignore token groups, got %q", identity.Group)
	}
}

func TestResolve_EmptyTokenIsAnonymousButEnforced(t *testing.T) {
	a := New(stubVerifier{}, true)
	identity, err := a.Resolve(context.Background(), "")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if !identity.Enforce {
		t.Errorf("expected Enforce=true for an authenticated-but-anonymous caller")
	}
	if identity.Group != "" {
		t.Errorf("expected empty group for an anonymous caller, got %q", identity.Group)
	}
}

func TestResolve_ValidTokenYieldsPrimaryGroup(t *testing.T) {
	a := New(stubVerifier{info: TokenInfo{Groups: []string{"apac", "emea"}}}, true)
	identity, err := a.Resolve(context.Background(), "tok-123")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if !identity.Enforce {
		t.Errorf("expected Enforce=true")
	}
	if identity.Group != "apac" {
		t.Errorf("expected primary group 'apac', got %q", identity.Group)
	}
}

func TestResolve_TokenWithNoGroupsIsAnonymous(t *testing.T) {
	a := New(stubVerifier{info: TokenInfo{}}, true)
	identity, err := a.Resolve(context.Background(), "tok-123")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if identity.Group != "" {
		t.Errorf("expected empty primary group for a groupless token, got %q", identity.Group)
	}
}

func TestResolve_VerifierErrorBecomesAuthError(t *testing.T) {
	a := New(stubVerifier{err: errors.New("expired")}, true)
	_, err := a.Resolve(context.Background(), "tok-123")
	if err == nil {
		t.Fatalf("expected an error for an invalid token")
	}
	appErr, ok := apperr.As(err)
	if !ok || appErr.Code != apperr.CodeAuthError {
		t.Fatalf("expected CodeAuthError, got %v", err)
	}
}

func TestResolve_NilVerifierWithAuthEnabledIsConfigurationError(t *testing.T) {
	a := New(nil, true)
	_, err := a.Resolve(context.Background(), "tok-123")
	if err == nil {
		t.Fatalf("expected an error when no verifier is configured")
	}
	appErr, ok := apperr.As(err)
	if !ok || appErr.Code != apperr.CodeConfigurationError {
		t.Fatalf("expected CodeConfigurationError, got %v", err)
	}
}

func TestBearerToken_ParsesCaseInsensitiveScheme(t *testing.T) {
	cases := map[string]string{
		"Bearer abc123":  "abc123",
		"bearer abc123":  "abc123",
		"BEARER  abc123": "abc123",
		"":                "",
		"Basic abc123":   "",
		"Bearer":         "",
	}
	for header, want := range cases {
		if got := BearerToken(header); got != want {
			t.Errorf("BearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}
