package google

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/instrumentation"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/keylock"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/logging"
)

// manualState is sent with URLs from AuthCodeURL. The manual flow has no
// callback to check it against.
const manualState = "gmail-mcp-server"

// CredentialStore resolves, refreshes and persists mailbox credentials.
type CredentialStore struct {
	conf    *oauth2.Config
	dir     string
	consent ConsentFlow
	logger  *slog.Logger
	metrics *instrumentation.Metrics

	locks keylock.Map
	group singleflight.Group
}

// StoreOption configures a CredentialStore.
type StoreOption func(*CredentialStore)

// WithConsentFlow sets the interactive flow used when a mailbox has no usable credential.
func WithConsentFlow(c ConsentFlow) StoreOption {
	return func(s *CredentialStore) { s.consent = c }
}

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *CredentialStore) { s.logger = l }
}

// WithMetrics records credential resolutions on m.
func WithMetrics(m *instrumentation.Metrics) StoreOption {
	return func(s *CredentialStore) { s.metrics = m }
}

// NewCredentialStore creates a store keeping credential files in dir.
func NewCredentialStore(conf *oauth2.Config, dir string, opts ...StoreOption) *CredentialStore {
	s := &CredentialStore{conf: conf, dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.WithComponent(s.logger, "credentials")
	return s
}

// Dir returns the token directory.
func (s *CredentialStore) Dir() string {
	return s.dir
}

// Path returns the credential file path for mailbox.
func (s *CredentialStore) Path(mailbox string) (string, error) {
	if err := ValidateMailbox(mailbox); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, TokenFileName(mailbox)), nil
}

// Load reads the persisted credential for mailbox. A missing file yields an
// error satisfying errors.Is(err, fs.ErrNotExist).
func (s *CredentialStore) Load(mailbox string) (*Credential, error) {
	path, err := s.Path(mailbox)
	if err != nil {
		return nil, err
	}
	return readCredential(path)
}

// Save persists tok for mailbox, creating the token directory if needed.
func (s *CredentialStore) Save(mailbox string, tok *oauth2.Token) error {
	unlock := s.locks.Lock(mailbox)
	defer unlock()
	return s.save(mailbox, tok)
}

func (s *CredentialStore) save(mailbox string, tok *oauth2.Token) error {
	path, err := s.Path(mailbox)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}
	if err := writeCredential(path, NewCredential(tok, s.conf.Scopes)); err != nil {
		return fmt.Errorf("write credential: %w", err)
	}
	return nil
}

// Delete removes the persisted credential for mailbox. Deleting a missing
// credential is not an error.
func (s *CredentialStore) Delete(mailbox string) error {
	path, err := s.Path(mailbox)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(mailbox)
	defer unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Has reports whether mailbox has a persisted credential.
func (s *CredentialStore) Has(mailbox string) bool {
	path, err := s.Path(mailbox)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Mailboxes lists the mailboxes with persisted credentials.
func (s *CredentialStore) Mailboxes() ([]string, error) {
	return listMailboxes(s.dir)
}

// Token returns a usable access token for mailbox, refreshing or running the
// consent flow as needed. Concurrent calls for one mailbox share a result,
// and the shared resolution outlives any one caller's cancellation; a caller
// whose ctx ends stops waiting without affecting the others.
func (s *CredentialStore) Token(ctx context.Context, mailbox string) (*oauth2.Token, error) {
	if err := ValidateMailbox(mailbox); err != nil {
		return nil, &CredentialError{Op: "resolve", Mailbox: mailbox, Err: err}
	}
	ch := s.group.DoChan(mailbox, func() (any, error) {
		return s.resolve(context.WithoutCancel(ctx), mailbox)
	})
	select {
	case <-ctx.Done():
		return nil, &CredentialError{Op: "resolve", Mailbox: mailbox, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*oauth2.Token), nil
	}
}

func (s *CredentialStore) resolve(ctx context.Context, mailbox string) (*oauth2.Token, error) {
	unlock := s.locks.Lock(mailbox)
	defer unlock()

	logger := s.logger.With(logging.Mailbox(mailbox))

	cred, err := s.Load(mailbox)
	switch {
	case err == nil && cred.OAuth2Token().Valid():
		s.metrics.RecordCredentialResolution(ctx, instrumentation.CredentialLoaded)
		return cred.OAuth2Token(), nil

	case err == nil && cred.Usable():
		tok, err := s.conf.TokenSource(ctx, cred.OAuth2Token()).Token()
		if err != nil {
			s.metrics.RecordCredentialResolution(ctx, instrumentation.CredentialFailure)
			logger.Warn("credential refresh failed", logging.Err(err))
			return nil, &CredentialError{Op: "refresh", Mailbox: mailbox, Err: err}
		}
		if err := s.save(mailbox, tok); err != nil {
			return nil, &CredentialError{Op: "persist", Mailbox: mailbox, Err: err}
		}
		s.metrics.RecordCredentialResolution(ctx, instrumentation.CredentialRefreshed)
		logger.Info("credential refreshed",
			slog.String("access_token", logging.SanitizeToken(tok.AccessToken)),
			slog.Time("expiry", tok.Expiry))
		return tok, nil

	case err != nil && !errors.Is(err, fs.ErrNotExist):
		s.metrics.RecordCredentialResolution(ctx, instrumentation.CredentialFailure)
		return nil, &CredentialError{Op: "load", Mailbox: mailbox, Err: err}
	}

	// Missing, or expired with nothing to refresh it with.
	if s.consent == nil {
		s.metrics.RecordCredentialResolution(ctx, instrumentation.CredentialFailure)
		return nil, &CredentialError{Op: "consent", Mailbox: mailbox, Err: ErrConsentRequired}
	}
	logger.Info("running consent flow")
	tok, err := s.consent.Authorize(ctx, s.conf, mailbox)
	if err != nil {
		s.metrics.RecordCredentialResolution(ctx, instrumentation.CredentialFailure)
		return nil, &CredentialError{Op: "consent", Mailbox: mailbox, Err: err}
	}
	if err := s.save(mailbox, tok); err != nil {
		return nil, &CredentialError{Op: "persist", Mailbox: mailbox, Err: err}
	}
	s.metrics.RecordCredentialResolution(ctx, instrumentation.CredentialConsent)
	return tok, nil
}

// TokenSource resolves mailbox and returns a token source that refreshes on
// expiry and persists every refreshed token.
func (s *CredentialStore) TokenSource(ctx context.Context, mailbox string) (oauth2.TokenSource, error) {
	tok, err := s.Token(ctx, mailbox)
	if err != nil {
		return nil, err
	}
	// Refreshes happen long after the resolving request is done.
	bg := context.WithoutCancel(ctx)
	return &persistingSource{
		store:   s,
		mailbox: mailbox,
		base:    s.conf.TokenSource(bg, tok),
		last:    tok.AccessToken,
	}, nil
}

// HTTPClient returns an HTTP client authorized for mailbox.
func (s *CredentialStore) HTTPClient(ctx context.Context, mailbox string) (*http.Client, error) {
	ts, err := s.TokenSource(ctx, mailbox)
	if err != nil {
		return nil, err
	}
	return newHTTPClient(ts), nil
}

// AuthCodeURL returns the consent URL for the manual flow. The user opens it,
// approves access and passes the returned code to SaveAuthCode.
func (s *CredentialStore) AuthCodeURL(mailbox string) (string, error) {
	if err := ValidateMailbox(mailbox); err != nil {
		return "", err
	}
	return s.conf.AuthCodeURL(manualState,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("login_hint", mailbox),
	), nil
}

// SaveAuthCode exchanges an authorization code and persists the token for mailbox.
func (s *CredentialStore) SaveAuthCode(ctx context.Context, mailbox, code string) error {
	if err := ValidateMailbox(mailbox); err != nil {
		return err
	}
	tok, err := s.conf.Exchange(ctx, code)
	if err != nil {
		s.metrics.RecordCredentialResolution(ctx, instrumentation.CredentialFailure)
		return &CredentialError{Op: "exchange", Mailbox: mailbox, Err: err}
	}
	if err := s.Save(mailbox, tok); err != nil {
		return &CredentialError{Op: "persist", Mailbox: mailbox, Err: err}
	}
	s.metrics.RecordCredentialResolution(ctx, instrumentation.CredentialConsent)
	return nil
}

// persistingSource writes every newly issued access token back to disk.
type persistingSource struct {
	store   *CredentialStore
	mailbox string
	base    oauth2.TokenSource

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, &CredentialError{Op: "refresh", Mailbox: p.mailbox, Err: err}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		if err := p.store.Save(p.mailbox, tok); err != nil {
			p.store.logger.Warn("failed to persist refreshed credential",
				logging.Mailbox(p.mailbox), logging.Err(err))
		}
	}
	return tok, nil
}
