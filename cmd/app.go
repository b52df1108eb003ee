package cmd

import (
	"context"
	"fmt"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/config"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/dispatcher"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/gmail"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/google"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/instrumentation"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/server"
)

// newCredentialStore builds the credential store from the configured OAuth
// client. Missing credentials are obtained through the loopback consent.
func newCredentialStore(c *config.Config, metrics *instrumentation.Metrics) (*google.CredentialStore, error) {
	conf, err := google.LoadOAuthConfig(c.ClientSecretFile, c.GoogleClientID, c.GoogleClientSecret)
	if err != nil {
		return nil, err
	}
	return google.NewCredentialStore(conf, c.TokenDir,
		google.WithConsentFlow(&google.LoopbackConsent{}),
		google.WithLogger(logger),
		google.WithMetrics(metrics),
	), nil
}

// newServerContext wires the credential store, the Gmail session settings
// and the dispatcher from the configuration.
func newServerContext(ctx context.Context, c *config.Config, metrics *instrumentation.Metrics, opts ...server.Option) (*server.ServerContext, error) {
	policy, err := gmail.ParseBodyPolicy(c.BodyPolicy)
	if err != nil {
		return nil, err
	}
	store, err := newCredentialStore(c, metrics)
	if err != nil {
		return nil, err
	}

	base := []server.Option{
		server.WithLogger(logger),
		server.WithMetrics(metrics),
		server.WithReadOnly(c.ReadOnly),
		server.WithSessionOptions(
			gmail.WithBodyPolicy(policy),
			gmail.WithRateLimit(c.RateLimit, c.RateBurst),
		),
		server.WithDispatcherOptions(dispatcher.WithAttachmentDir(c.AttachmentDir)),
	}
	sc, err := server.NewServerContext(ctx, store, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create server context: %w", err)
	}
	return sc, nil
}
