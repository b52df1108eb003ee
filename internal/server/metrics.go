package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/instrumentation"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/logging"
)

// DefaultMetricsAddr is where /metrics listens unless configured otherwise.
const DefaultMetricsAddr = ":9090"

// DefaultShutdownTimeout bounds graceful shutdown of every listener.
const DefaultShutdownTimeout = 30 * time.Second

// MetricsServerConfig configures NewMetricsServer.
type MetricsServerConfig struct {
	Addr                    string
	Enabled                 bool
	InstrumentationProvider *instrumentation.Provider
	Logger                  *slog.Logger
}

// MetricsServer exposes the provider's Prometheus registry on its own
// listener so scrapes never share a port with /mcp.
type MetricsServer struct {
	srv    *http.Server
	logger *slog.Logger
}

var (
	errNoProvider       = errors.New("instrumentation provider is required for metrics server")
	errProviderDisabled = errors.New("instrumentation provider is not enabled")
)

// NewMetricsServer validates config and builds the server without listening.
func NewMetricsServer(config MetricsServerConfig) (*MetricsServer, error) {
	p := config.InstrumentationProvider
	switch {
	case p == nil:
		return nil, errNoProvider
	case !p.Enabled():
		return nil, errProviderDisabled
	}
	addr := config.Addr
	if addr == "" {
		addr = DefaultMetricsAddr
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       time.Minute,
		},
		logger: logging.WithComponent(config.Logger, "metrics"),
	}, nil
}

// Handler returns the /metrics and /healthz routes.
func (s *MetricsServer) Handler() http.Handler { return s.srv.Handler }

// Addr returns the configured listen address.
func (s *MetricsServer) Addr() string { return s.srv.Addr }

// Start listens on Addr and blocks until Shutdown.
func (s *MetricsServer) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve blocks serving ln until Shutdown. A clean shutdown returns nil.
func (s *MetricsServer) Serve(ln net.Listener) error {
	s.logger.Info("metrics server listening", slog.String("addr", ln.Addr().String()))
	if err := s.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener, waiting for in-flight scrapes until ctx expires.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down metrics server")
	return s.srv.Shutdown(ctx)
}
