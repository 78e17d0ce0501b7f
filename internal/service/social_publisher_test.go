package service

import (
	"context"
	"errors"
	"testing"

	"app/internal/config"
)

type stubTokenSource struct {
	token string
	err   error
}

func (s *stubTokenSource) Token(ctx context.Context, userID, platform string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.token, nil
}

// The per-user secret wins over the app-level fallback.
func TestChainTokenSourcePrecedence(t *testing.T) {
	chain := NewChainTokenSource(
		&stubTokenSource{token: "user-token"},
		&stubTokenSource{token: "app-token"},
	)
	got, err := chain.Token(context.Background(), "u1", "linkedin")
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if got != "user-token" {
		t.Fatalf("token = %q, want the first source's", got)
	}
}

func TestChainTokenSourceFallsThrough(t *testing.T) {
	chain := NewChainTokenSource(
		&stubTokenSource{err: ErrNoToken},
		&stubTokenSource{token: "app-token"},
	)
	got, err := chain.Token(context.Background(), "u1", "linkedin")
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if got != "app-token" {
		t.Fatalf("token = %q, want the fallback's", got)
	}
}

func TestChainTokenSourceExhausted(t *testing.T) {
	chain := NewChainTokenSource(
		&stubTokenSource{err: ErrNoToken},
		&stubTokenSource{err: ErrNoToken},
	)
	_, err := chain.Token(context.Background(), "u1", "linkedin")
	if !errors.Is(err, ErrNoToken) {
		t.Fatalf("got %v, want ErrNoToken", err)
	}
}

// A real failure (not ErrNoToken) stops the chain instead of silently falling
// back to a weaker credential.
func TestChainTokenSourceStopsOnRealError(t *testing.T) {
	boom := errors.New("secret manager unreachable")
	chain := NewChainTokenSource(
		&stubTokenSource{err: boom},
		&stubTokenSource{token: "app-token"},
	)
	_, err := chain.Token(context.Background(), "u1", "linkedin")
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want the source error", err)
	}
}

func TestStaticTokenSource(t *testing.T) {
	src := NewStaticTokenSource(&config.Config{LinkedInAppToken: "app-token"})
	got, err := src.Token(context.Background(), "u1", "linkedin")
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if got != "app-token" {
		t.Fatalf("token = %q, want app-token", got)
	}
	if _, err := src.Token(context.Background(), "u1", "bluesky"); !errors.Is(err, ErrNoToken) {
		t.Fatalf("got %v, want ErrNoToken for unconfigured platform", err)
	}
}
