package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/dispatcher"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/gmail"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/google"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/instrumentation"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/logging"
)

// ErrShutdown is returned once the server context has been shut down.
var ErrShutdown = errors.New("server is shutting down")

// ServerContext holds the context for the MCP server: the credential store,
// one cached Gmail session per mailbox and the dispatcher built on them.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	store       *google.CredentialStore
	sessionOpts []gmail.SessionOption
	sessions    map[string]*gmail.Session

	dispatcher     *dispatcher.Dispatcher
	dispatcherOpts []dispatcher.Option

	logger   *slog.Logger
	metrics  *instrumentation.Metrics
	audit    *instrumentation.AuditLogger
	readOnly bool

	mu       sync.RWMutex
	shutdown bool
}

// Option configures a ServerContext.
type Option func(*ServerContext)

// WithSessionOptions adds options applied to every Gmail session.
func WithSessionOptions(opts ...gmail.SessionOption) Option {
	return func(sc *ServerContext) { sc.sessionOpts = append(sc.sessionOpts, opts...) }
}

// WithLogger sets the logger shared by the server components.
func WithLogger(l *slog.Logger) Option {
	return func(sc *ServerContext) { sc.logger = l }
}

// WithMetrics records metrics on m.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(sc *ServerContext) { sc.metrics = m }
}

// WithAuditLogger records tool invocations on a.
func WithAuditLogger(a *instrumentation.AuditLogger) Option {
	return func(sc *ServerContext) { sc.audit = a }
}

// WithReadOnly hides operations that change the mailbox.
func WithReadOnly(readOnly bool) Option {
	return func(sc *ServerContext) { sc.readOnly = readOnly }
}

// WithDispatcherOptions configures the dispatcher.
func WithDispatcherOptions(opts ...dispatcher.Option) Option {
	return func(sc *ServerContext) { sc.dispatcherOpts = append(sc.dispatcherOpts, opts...) }
}

// NewServerContext creates a new server context around store.
func NewServerContext(ctx context.Context, store *google.CredentialStore, opts ...Option) (*ServerContext, error) {
	if store == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	shutdownCtx, cancel := context.WithCancel(ctx)

	sc := &ServerContext{
		ctx:      shutdownCtx,
		cancel:   cancel,
		store:    store,
		sessions: make(map[string]*gmail.Session),
	}
	for _, opt := range opts {
		opt(sc)
	}
	sc.logger = logging.OrDiscard(sc.logger)

	dopts := append([]dispatcher.Option{dispatcher.WithLogger(sc.logger)}, sc.dispatcherOpts...)
	sc.dispatcher = dispatcher.New(sc, dopts...)
	sc.dispatcherOpts = nil
	return sc, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Store returns the credential store.
func (sc *ServerContext) Store() *google.CredentialStore {
	return sc.store
}

// Dispatcher returns the operation dispatcher.
func (sc *ServerContext) Dispatcher() *dispatcher.Dispatcher {
	return sc.dispatcher
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Metrics returns the metrics recorder, which may be nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// Audit returns the audit logger, which may be nil.
func (sc *ServerContext) Audit() *instrumentation.AuditLogger {
	return sc.audit
}

// ReadOnly reports whether mailbox-changing operations are disabled.
func (sc *ServerContext) ReadOnly() bool {
	return sc.readOnly
}

// Session returns the cached session for mailbox, creating it on first use.
// When a Gmail client cannot be built from the stored credential, the
// credential is deleted and a CredentialError is returned; the next call
// starts over with consent.
func (sc *ServerContext) Session(ctx context.Context, mailbox string) (*gmail.Session, error) {
	if err := google.ValidateMailbox(mailbox); err != nil {
		return nil, err
	}

	sc.mu.RLock()
	if sc.shutdown {
		sc.mu.RUnlock()
		return nil, ErrShutdown
	}
	s, ok := sc.sessions[mailbox]
	sc.mu.RUnlock()
	if ok {
		return s, nil
	}

	client, err := sc.store.HTTPClient(ctx, mailbox)
	if err != nil {
		return nil, err
	}

	opts := append([]gmail.SessionOption{
		gmail.WithHTTPClient(client),
		gmail.WithLogger(sc.logger),
		gmail.WithMetrics(sc.metrics),
	}, sc.sessionOpts...)
	s, err = gmail.NewSession(sc.ctx, mailbox, opts...)
	if err != nil {
		if delErr := sc.store.Delete(mailbox); delErr != nil {
			sc.logger.Warn("failed to delete unusable credential",
				logging.Mailbox(mailbox), logging.Err(delErr))
		}
		return nil, &google.CredentialError{Op: "client", Mailbox: mailbox, Err: err}
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if existing, ok := sc.sessions[mailbox]; ok {
		return existing, nil
	}
	sc.sessions[mailbox] = s
	sc.logger.Info("gmail session created", logging.Mailbox(mailbox))
	return s, nil
}

// Resolve implements dispatcher.Resolver. A session that fails with a
// credential error is dropped from the cache.
func (sc *ServerContext) Resolve(ctx context.Context, mailbox string) (dispatcher.Mailbox, error) {
	s, err := sc.Session(ctx, mailbox)
	if err != nil {
		if google.IsCredentialError(err) {
			sc.Invalidate(mailbox)
		}
		return nil, err
	}
	return s, nil
}

// Invalidate drops the cached session for mailbox.
func (sc *ServerContext) Invalidate(mailbox string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.sessions, mailbox)
}

// SessionCount returns the number of cached sessions.
func (sc *ServerContext) SessionCount() int {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return len(sc.sessions)
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.sessions = make(map[string]*gmail.Session)
	sc.cancel()
	return nil
}
