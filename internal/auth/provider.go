// Package auth supplies the credentials pulsewire presents to the collector.
package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/torosent/pulsewire/internal/config"
)

// Provider obtains a bearer token for collector requests.
type Provider interface {
	// Token returns a valid token, from cache when possible.
	Token(ctx context.Context) (string, error)

	// InjectHeader sets the Authorization header on req.
	InjectHeader(ctx context.Context, req *http.Request) error

	Close() error
}

// FromConfig returns the provider the configuration asks for, or nil when
// collector requests go out unauthenticated.
func FromConfig(cfg *config.Config, logger *zap.Logger) Provider {
	if cfg == nil {
		return nil
	}
	if cfg.OAuth.Enabled() {
		return NewClientCredentials(ClientCredentialsOptions{
			TokenURL:            cfg.OAuth.TokenURL,
			ClientID:            cfg.OAuth.ClientID,
			ClientSecret:        cfg.OAuth.ClientSecret,
			Scopes:              cfg.OAuth.Scopes,
			RefreshBeforeExpiry: cfg.OAuth.RefreshBeforeExpiry,
			Logger:              logger,
		})
	}
	if token := strings.TrimSpace(cfg.AuthToken); token != "" {
		return NewStatic(token)
	}
	return nil
}

func setBearer(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
}
