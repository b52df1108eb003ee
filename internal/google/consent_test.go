package google

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// callback simulates the browser following Google's redirect.
func callback(t *testing.T, authURL string, override url.Values) {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()
	redirect := q.Get("redirect_uri")

	params := url.Values{"state": {q.Get("state")}, "code": {"good-code"}}
	for k, v := range override {
		params[k] = v
	}
	go func() {
		resp, err := http.Get(redirect + "?" + params.Encode())
		if err == nil {
			resp.Body.Close()
		}
	}()
}

func TestLoopbackConsent_ExchangesCode(t *testing.T) {
	fake := newFakeTokenEndpoint(t)
	var seenURL string
	flow := &LoopbackConsent{
		Timeout: 5 * time.Second,
		Prompt: func(authURL string) error {
			seenURL = authURL
			callback(t, authURL, nil)
			return nil
		},
	}

	tok, err := flow.Authorize(context.Background(), fake.config(), mailbox)
	require.NoError(t, err)
	assert.Equal(t, "issued-access", tok.AccessToken)
	assert.Contains(t, seenURL, "redirect_uri=http%3A%2F%2F127.0.0.1%3A")
	assert.Contains(t, seenURL, "access_type=offline")
}

func TestLoopbackConsent_DeniedByUser(t *testing.T) {
	fake := newFakeTokenEndpoint(t)
	flow := &LoopbackConsent{
		Timeout: 5 * time.Second,
		Prompt: func(authURL string) error {
			callback(t, authURL, url.Values{"error": {"access_denied"}, "code": {""}})
			return nil
		},
	}

	_, err := flow.Authorize(context.Background(), fake.config(), mailbox)
	assert.ErrorContains(t, err, "access_denied")
}

func TestLoopbackConsent_Timeout(t *testing.T) {
	fake := newFakeTokenEndpoint(t)
	flow := &LoopbackConsent{
		Timeout: 50 * time.Millisecond,
		Prompt:  func(string) error { return nil },
	}

	_, err := flow.Authorize(context.Background(), fake.config(), mailbox)
	assert.ErrorContains(t, err, "timed out")
}

func TestLoopbackConsent_ContextCancelled(t *testing.T) {
	fake := newFakeTokenEndpoint(t)
	ctx, cancel := context.WithCancel(context.Background())
	flow := &LoopbackConsent{
		Prompt: func(string) error { cancel(); return nil },
	}

	_, err := flow.Authorize(ctx, fake.config(), mailbox)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConsentFunc(t *testing.T) {
	var f ConsentFlow = ConsentFunc(func(ctx context.Context, conf *oauth2.Config, mb string) (*oauth2.Token, error) {
		return &oauth2.Token{AccessToken: mb}, nil
	})
	tok, err := f.Authorize(context.Background(), nil, "x")
	require.NoError(t, err)
	assert.Equal(t, "x", tok.AccessToken)
}
