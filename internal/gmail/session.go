package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/instrumentation"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/logging"
)

// me is the Gmail API alias for the authorized user.
const me = "me"

// Session is a Gmail handle bound to one mailbox's credential.
type Session struct {
	svc        *gmail.UsersService
	mailbox    string
	logger     *slog.Logger
	limiter    *rate.Limiter
	metrics    *instrumentation.Metrics
	bodyPolicy BodyPolicy

	clientOpts []option.ClientOption
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithHTTPClient makes the session use an already authorized HTTP client.
func WithHTTPClient(c *http.Client) SessionOption {
	return func(s *Session) { s.clientOpts = append(s.clientOpts, option.WithHTTPClient(c)) }
}

// WithClientOptions passes extra options to the Gmail service constructor.
func WithClientOptions(opts ...option.ClientOption) SessionOption {
	return func(s *Session) { s.clientOpts = append(s.clientOpts, opts...) }
}

// WithRateLimit throttles provider calls to r per second. A zero r disables
// throttling.
func WithRateLimit(r float64, burst int) SessionOption {
	return func(s *Session) {
		if r <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// WithLogger sets the session's logger.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithMetrics records provider calls on m.
func WithMetrics(m *instrumentation.Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// WithBodyPolicy selects how message bodies are extracted.
func WithBodyPolicy(p BodyPolicy) SessionOption {
	return func(s *Session) { s.bodyPolicy = p }
}

// NewSession creates a Gmail session for mailbox.
func NewSession(ctx context.Context, mailbox string, opts ...SessionOption) (*Session, error) {
	s := &Session{mailbox: mailbox, bodyPolicy: BodyPolicyFirstInline}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.WithMailbox(logging.WithComponent(s.logger, "gmail"), mailbox)

	svc, err := gmail.NewService(ctx, s.clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	s.svc = svc.Users
	s.clientOpts = nil
	return s, nil
}

// Mailbox returns the mailbox this session is bound to.
func (s *Session) Mailbox() string {
	return s.mailbox
}

// BodyPolicy returns the body extraction policy in effect.
func (s *Session) BodyPolicy() BodyPolicy {
	return s.bodyPolicy
}

// call runs one provider round trip with throttling, tracing and metrics.
// Failures come back as *ProviderCallError.
func call[T any](ctx context.Context, s *Session, method string, fn func(context.Context) (T, error), attrs ...attribute.KeyValue) (T, error) {
	var zero T
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return zero, &ProviderCallError{Op: method, Mailbox: s.mailbox, Err: err}
		}
	}

	ctx, span := instrumentation.StartGmailSpan(ctx, method, s.mailbox, attrs...)
	start := time.Now()
	res, err := fn(ctx)
	duration := time.Since(start)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		err = &ProviderCallError{Op: method, Mailbox: s.mailbox, Err: err}
	}
	s.metrics.RecordGmailCall(ctx, method, status, duration)
	instrumentation.EndSpan(span, err)

	s.logger.Debug("gmail call",
		logging.Operation(method),
		logging.Status(status),
		slog.Duration(logging.KeyDuration, duration),
		logging.Err(err))
	return res, err
}
