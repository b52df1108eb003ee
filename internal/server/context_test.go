package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/gmailtest"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/google"
)

const testMailbox = "jane@example.com"

func newTestServerContext(t *testing.T, f *gmailtest.Server, opts ...Option) *ServerContext {
	t.Helper()
	store := google.NewCredentialStore(gmailtest.OAuthConfig(), t.TempDir())
	opts = append([]Option{WithSessionOptions(f.SessionOption())}, opts...)
	sc, err := NewServerContext(context.Background(), store, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func saveValidToken(t *testing.T, sc *ServerContext, mailbox string) {
	t.Helper()
	gmailtest.SaveToken(t, sc.Store(), mailbox)
}

func TestNewServerContext_RequiresStore(t *testing.T) {
	_, err := NewServerContext(context.Background(), nil)
	assert.Error(t, err)
}

func TestServerContext_SessionIsCached(t *testing.T) {
	f := gmailtest.New(t)
	sc := newTestServerContext(t, f)
	saveValidToken(t, sc, testMailbox)
	ctx := context.Background()

	s1, err := sc.Session(ctx, testMailbox)
	require.NoError(t, err)
	s2, err := sc.Session(ctx, testMailbox)
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, sc.SessionCount())
	assert.Equal(t, testMailbox, s1.Mailbox())

	sc.Invalidate(testMailbox)
	assert.Equal(t, 0, sc.SessionCount())
	s3, err := sc.Session(ctx, testMailbox)
	require.NoError(t, err)
	assert.NotSame(t, s1, s3)
}

func TestServerContext_SessionUsesStoredCredential(t *testing.T) {
	f := gmailtest.New(t)
	sc := newTestServerContext(t, f)
	saveValidToken(t, sc, testMailbox)

	r := sc.Dispatcher().GetInbox(context.Background(), testMailbox)
	require.True(t, r.Success(), r.Message())
	assert.Equal(t, "Bearer access-"+testMailbox, f.Authorization())
	assert.Equal(t, []string{"GET labels", "GET messages"}, f.Requests())
}

func TestServerContext_MissingCredential(t *testing.T) {
	f := gmailtest.New(t)
	sc := newTestServerContext(t, f)

	_, err := sc.Session(context.Background(), testMailbox)
	require.Error(t, err)
	assert.True(t, google.IsCredentialError(err))
	assert.ErrorIs(t, err, google.ErrConsentRequired)
	assert.Equal(t, 0, sc.SessionCount())

	r := sc.Dispatcher().GetInbox(context.Background(), testMailbox)
	assert.False(t, r.Success())
	assert.Contains(t, r.Message(), testMailbox)
	assert.Empty(t, f.Requests())
}

func TestServerContext_InvalidMailbox(t *testing.T) {
	sc := newTestServerContext(t, gmailtest.New(t))
	_, err := sc.Session(context.Background(), "../etc/passwd")
	assert.Error(t, err)
}

func TestServerContext_MailboxesAreIsolated(t *testing.T) {
	f := gmailtest.New(t)
	sc := newTestServerContext(t, f)
	saveValidToken(t, sc, testMailbox)
	saveValidToken(t, sc, "bob@example.com")
	ctx := context.Background()

	jane, err := sc.Session(ctx, testMailbox)
	require.NoError(t, err)
	bob, err := sc.Session(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.NotSame(t, jane, bob)
	assert.Equal(t, 2, sc.SessionCount())

	sc.Invalidate("bob@example.com")
	again, err := sc.Session(ctx, testMailbox)
	require.NoError(t, err)
	assert.Same(t, jane, again)
}

func TestServerContext_Shutdown(t *testing.T) {
	f := gmailtest.New(t)
	sc := newTestServerContext(t, f)
	saveValidToken(t, sc, testMailbox)

	_, err := sc.Session(context.Background(), testMailbox)
	require.NoError(t, err)

	require.NoError(t, sc.Shutdown())
	assert.True(t, sc.IsShutdown())
	assert.Equal(t, 0, sc.SessionCount())
	assert.ErrorIs(t, sc.Context().Err(), context.Canceled)

	_, err = sc.Session(context.Background(), testMailbox)
	assert.ErrorIs(t, err, ErrShutdown)

	// Shutting down twice is a no-op.
	assert.NoError(t, sc.Shutdown())
}

func TestServerContext_Options(t *testing.T) {
	sc := newTestServerContext(t, gmailtest.New(t), WithReadOnly(true))
	assert.True(t, sc.ReadOnly())
	assert.NotNil(t, sc.Logger())
	assert.Nil(t, sc.Metrics())
	assert.Nil(t, sc.Audit())
	assert.NotNil(t, sc.Dispatcher())
}
