package cloud

import (
	"context"
	"log/slog"
	"time"

	"github.com/tempest-bridge/tempest-go/pkg/oauth"
)

// Factory builds a coordinator for a cloud entry's token.
type Factory func(name string, tok oauth.Token) *Coordinator

// FactoryConfig configures NewFactory.
type FactoryConfig struct {
	BaseURL        string
	UpdateInterval time.Duration
	Logger         *slog.Logger
}

// NewFactory returns a Factory that authenticates with the entry token.
func NewFactory(cfg FactoryConfig) Factory {
	return func(name string, tok oauth.Token) *Coordinator {
		var opts []ClientOption
		if cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.BaseURL))
		}
		client := NewClient(oauth.Client(context.Background(), tok), opts...)
		return NewCoordinator(client, CoordinatorConfig{
			Name:           name,
			UpdateInterval: cfg.UpdateInterval,
			Logger:         cfg.Logger,
		})
	}
}
