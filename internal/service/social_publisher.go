package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"app/internal/config"

	"github.com/rs/zerolog"
)

// ErrNoToken signals that a token source has no credential for the user and
// the next source in the chain should be tried.
var ErrNoToken = errors.New("no platform token available")

// TokenSource resolves a platform access token for a user.
type TokenSource interface {
	Token(ctx context.Context, userID, platform string) (string, error)
}

// SecretTokenSource reads per-user tokens from Secret Manager.
type SecretTokenSource struct {
	secrets SecretManagerService
}

func NewSecretTokenSource(secrets SecretManagerService) *SecretTokenSource {
	return &SecretTokenSource{secrets: secrets}
}

func (s *SecretTokenSource) Token(ctx context.Context, userID, platform string) (string, error) {
	token, err := s.secrets.GetPlatformToken(ctx, userID, platform)
	if err != nil || token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// StaticTokenSource serves an app-level token from config, used when a user
// has not connected their own account.
type StaticTokenSource struct {
	tokens map[string]string
}

func NewStaticTokenSource(cfg *config.Config) *StaticTokenSource {
	tokens := map[string]string{}
	if cfg.LinkedInAppToken != "" {
		tokens["linkedin"] = cfg.LinkedInAppToken
	}
	return &StaticTokenSource{tokens: tokens}
}

func (s *StaticTokenSource) Token(ctx context.Context, userID, platform string) (string, error) {
	token, ok := s.tokens[platform]
	if !ok || token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// ChainTokenSource tries each source in order, falling through on ErrNoToken.
type ChainTokenSource struct {
	sources []TokenSource
}

func NewChainTokenSource(sources ...TokenSource) *ChainTokenSource {
	return &ChainTokenSource{sources: sources}
}

func (c *ChainTokenSource) Token(ctx context.Context, userID, platform string) (string, error) {
	for _, src := range c.sources {
		token, err := src.Token(ctx, userID, platform)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, ErrNoToken) {
			return "", err
		}
	}
	return "", ErrNoToken
}

// SocialPublisher posts content to one social platform on behalf of a user.
type SocialPublisher interface {
	Platform() string
	Publish(ctx context.Context, userID, body string, mediaKeys []string) error
}

// PublisherRegistry maps platform names to publishers.
type PublisherRegistry struct {
	publishers map[string]SocialPublisher
}

func NewPublisherRegistry(publishers ...SocialPublisher) *PublisherRegistry {
	m := make(map[string]SocialPublisher, len(publishers))
	for _, p := range publishers {
		m[p.Platform()] = p
	}
	return &PublisherRegistry{publishers: m}
}

// Get returns the publisher for a platform, or an error for unknown platforms.
func (r *PublisherRegistry) Get(platform string) (SocialPublisher, error) {
	p, ok := r.publishers[platform]
	if !ok {
		return nil, fmt.Errorf("no publisher registered for platform: %s", platform)
	}
	return p, nil
}

const linkedInPostsURL = "https://api.linkedin.com/rest/posts"

// LinkedInPublisher posts text shares through the LinkedIn REST API.
type LinkedInPublisher struct {
	tokens     TokenSource
	httpClient *http.Client
	baseURL    string
	logger     zerolog.Logger
}

func NewLinkedInPublisher(tokens TokenSource, logger zerolog.Logger) *LinkedInPublisher {
	return &LinkedInPublisher{
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    linkedInPostsURL,
		logger:     logger.With().Str("publisher", "linkedin").Logger(),
	}
}

func (p *LinkedInPublisher) Platform() string { return "linkedin" }

func (p *LinkedInPublisher) Publish(ctx context.Context, userID, body string, mediaKeys []string) error {
	token, err := p.tokens.Token(ctx, userID, "linkedin")
	if err != nil {
		return fmt.Errorf("resolve linkedin token for user %s: %w", userID, err)
	}

	payload, err := json.Marshal(map[string]any{
		"commentary":    body,
		"visibility":    "PUBLIC",
		"lifecycleState": "PUBLISHED",
		"distribution": map[string]any{
			"feedDistribution": "MAIN_FEED",
		},
	})
	if err != nil {
		return fmt.Errorf("marshal linkedin post: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build linkedin request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("LinkedIn-Version", "202411")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post to linkedin: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		p.logger.Error().Int("status", resp.StatusCode).Str("body", string(respBody)).Msg("LinkedIn rejected post")
		return fmt.Errorf("linkedin returned status %d", resp.StatusCode)
	}
	return nil
}
