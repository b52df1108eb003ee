package instrumentation

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := NewProvider(ctx, Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: ExporterPrometheus,
		TracingExporter: ExporterNone,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p
}

func scrape(t *testing.T, p *Provider) string {
	t.Helper()
	h := p.Handler()
	require.NotNil(t, h)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.Nil(t, p.Handler())
	assert.NoError(t, p.Shutdown(context.Background()))

	// A disabled provider hands out a nil recorder that is safe to use.
	m := p.Metrics()
	m.RecordGmailCall(context.Background(), MethodMessagesGet, StatusSuccess, time.Millisecond)
	m.RecordToolInvocation(context.Background(), "search", StatusSuccess, "a@example.com", time.Millisecond)
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, MetricsExporter: "graphite"})
	assert.Error(t, err)
}

func TestNewProvider_TwoPrometheusProviders(t *testing.T) {
	// Separate registries mean a second provider in the same process works.
	newTestProvider(t)
	newTestProvider(t)
}

func TestMetrics_ExposedOnHandler(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	m := p.Metrics()
	require.NotNil(t, m)

	m.RecordGmailCall(ctx, MethodMessagesGet, StatusSuccess, 20*time.Millisecond)
	m.RecordCredentialResolution(ctx, CredentialRefreshed)
	m.RecordToolInvocation(ctx, "get_inbox", StatusSuccess, "", 5*time.Millisecond)
	m.RecordHTTPRequest(ctx, "POST", "/mcp", 200, time.Millisecond)
	m.RecordAttachmentWritten(ctx, 1024)
	m.RecordMessageSent(ctx, StatusError)

	body := scrape(t, p)
	assert.Contains(t, body, "gmail_api_calls_total")
	assert.Contains(t, body, `method="messages.get"`)
	assert.Contains(t, body, "credential_resolutions_total")
	assert.Contains(t, body, `result="refreshed"`)
	assert.Contains(t, body, "mcp_tool_invocations_total")
	assert.Contains(t, body, `tool="get_inbox"`)
}

func TestMetrics_DetailedLabelsHashMailbox(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p, err := NewProvider(ctx, Config{
		ServiceName:     "test-service",
		Enabled:         true,
		MetricsExporter: ExporterPrometheus,
		DetailedLabels:  true,
	})
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()

	p.Metrics().RecordToolInvocation(ctx, "search", StatusSuccess, "jane@example.com", time.Millisecond)
	body := scrape(t, p)
	assert.Contains(t, body, `mailbox="mbx:`)
	assert.NotContains(t, body, "jane@example.com")
}
