package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// ConsentFlow obtains a fresh token for a mailbox through user interaction.
type ConsentFlow interface {
	Authorize(ctx context.Context, conf *oauth2.Config, mailbox string) (*oauth2.Token, error)
}

// ConsentFunc adapts a function to ConsentFlow.
type ConsentFunc func(ctx context.Context, conf *oauth2.Config, mailbox string) (*oauth2.Token, error)

// Authorize calls f.
func (f ConsentFunc) Authorize(ctx context.Context, conf *oauth2.Config, mailbox string) (*oauth2.Token, error) {
	return f(ctx, conf, mailbox)
}

// DefaultConsentTimeout bounds how long LoopbackConsent waits for the browser callback.
const DefaultConsentTimeout = 5 * time.Minute

const consentDonePage = `<!DOCTYPE html>
<html><head><title>gmail-mcp-server</title></head>
<body><h1>Authorization complete</h1><p>You can close this window.</p></body></html>`

// LoopbackConsent runs the installed-app flow: it listens on a loopback port,
// shows the user the consent URL and exchanges the code Google redirects back.
type LoopbackConsent struct {
	// ListenAddr defaults to 127.0.0.1:0.
	ListenAddr string
	// Timeout defaults to DefaultConsentTimeout.
	Timeout time.Duration
	// Prompt presents the consent URL. The default writes it to Out.
	Prompt func(authURL string) error
	// Out defaults to os.Stderr. Stdout belongs to the stdio transport.
	Out io.Writer
}

// Authorize implements ConsentFlow.
func (l *LoopbackConsent) Authorize(ctx context.Context, conf *oauth2.Config, mailbox string) (*oauth2.Token, error) {
	addr := l.ListenAddr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = DefaultConsentTimeout
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("start callback listener: %w", err)
	}

	c := *conf
	c.RedirectURL = "http://" + ln.Addr().String() + "/"
	state := uuid.NewString()

	type result struct {
		code string
		err  error
	}
	results := make(chan result, 1)
	deliver := func(r result) {
		select {
		case results <- r:
		default:
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		if e := q.Get("error"); e != "" {
			http.Error(w, "authorization denied", http.StatusForbidden)
			deliver(result{err: fmt.Errorf("authorization denied: %s", e)})
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, consentDonePage)
		deliver(result{code: code})
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			deliver(result{err: fmt.Errorf("callback server: %w", err)})
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := c.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("login_hint", mailbox),
	)
	if err := l.prompt(authURL, mailbox); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var r result
	select {
	case r = <-results:
	case <-timer.C:
		return nil, fmt.Errorf("authorization timed out after %s", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if r.err != nil {
		return nil, r.err
	}

	tok, err := c.Exchange(ctx, r.code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}

func (l *LoopbackConsent) prompt(authURL, mailbox string) error {
	if l.Prompt != nil {
		return l.Prompt(authURL)
	}
	out := l.Out
	if out == nil {
		out = os.Stderr
	}
	_, err := fmt.Fprintf(out, "Authorize access to %s by visiting:\n\n%s\n\n", mailbox, authURL)
	return err
}
