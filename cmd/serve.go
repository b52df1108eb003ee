package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/config"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/instrumentation"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/logging"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/prompts"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/resources"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/server"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/tools/gmail_tools"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/tools/google_tools"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server that exposes the Gmail
tools, resources and prompts to AI assistants.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport at /mcp, with /healthz and /readyz

Accounts:
  Every tool takes an email_identifier naming the account. An account without
  a stored credential is authorized on first use through the browser, or ahead
  of time with the authorize command.

Read-only mode:
  --read-only leaves out send_mail.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String(config.KeyTransport, config.TransportStdio, "Transport type: stdio or streamable-http")
	cmd.Flags().String(config.KeyHTTPAddr, ":8080", "HTTP server address (for streamable-http transport)")
	cmd.Flags().Bool(config.KeyMetricsEnabled, true, "Enable the metrics server on a dedicated port (streamable-http only)")
	cmd.Flags().String(config.KeyMetricsAddr, ":9090", "Metrics server address")
	cmd.Flags().Bool(config.KeyReadOnly, false, "Do not register tools that send mail")

	return cmd
}

func runServe(ctx context.Context, c *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	instrConfig := c.Telemetry
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	opts := []server.Option{}
	if provider.Enabled() {
		opts = append(opts, server.WithAuditLogger(instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging)))
	}
	serverContext, err := newServerContext(shutdownCtx, c, provider.Metrics(), opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("server context shutdown failed", logging.Err(err))
		}
	}()

	mcpSrv := mcpserver.NewMCPServer("gmail-mcp-server", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
		mcpserver.WithPromptCapabilities(false),
		mcpserver.WithRecovery(),
	)

	if c.ReadOnly {
		logger.Info("starting server in read-only mode, send_mail is disabled")
	}
	if err := registerAll(mcpSrv, serverContext, c); err != nil {
		return err
	}

	// Start the appropriate server based on transport type
	switch c.Transport {
	case config.TransportStdio:
		return runStdioServer(mcpSrv)
	case config.TransportStreamableHTTP:
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, serverContext, c, provider)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", c.Transport)
	}
}

// registerAll registers every tool, resource and prompt.
func registerAll(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, c *config.Config) error {
	type registration struct {
		name     string
		register func() error
	}

	registrations := []registration{
		{
			name: "Gmail tools",
			register: func() error {
				return gmail_tools.RegisterGmailTools(mcpSrv, sc, c.ReadOnly)
			},
		},
		{
			name: "Google authorization tools",
			register: func() error {
				return google_tools.RegisterGoogleTools(mcpSrv, sc)
			},
		},
		{
			name: "Gmail resources",
			register: func() error {
				return resources.RegisterGmailResources(mcpSrv, sc)
			},
		},
		{
			name: "prompts",
			register: func() error {
				prompts.RegisterPrompts(mcpSrv, c.AttachmentDir)
				return nil
			},
		},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s: %w", reg.name, err)
		}
	}
	return nil
}

// runStdioServer blocks until stdin closes or the process is signalled.
func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	if err := mcpserver.ServeStdio(mcpSrv); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, c *config.Config, provider *instrumentation.Provider) error {
	var metricsServer *server.MetricsServer
	if c.MetricsEnabled && provider.Enabled() {
		var err error
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    c.MetricsAddr,
			Enabled:                 true,
			InstrumentationProvider: provider,
			Logger:                  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("metrics server failed", logging.Err(err))
			}
		}()
	}

	healthChecker := server.NewHealthChecker(sc)
	httpServer := server.NewHTTPServer(mcpSrv, healthChecker, provider.Metrics(), logger)

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Start(c.HTTPAddr); err != nil {
			serverDone <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
	case err := <-serverDone:
		if err != nil {
			runErr = fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancel()
	var errs []error
	if err := httpServer.Shutdown(stopCtx); err != nil {
		errs = append(errs, fmt.Errorf("error shutting down HTTP server: %w", err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(stopCtx); err != nil {
			errs = append(errs, fmt.Errorf("error shutting down metrics server: %w", err))
		}
	}
	if runErr != nil {
		return runErr
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	logger.Info("HTTP server gracefully stopped")
	return nil
}
