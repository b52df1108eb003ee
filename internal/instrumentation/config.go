package instrumentation

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the configuration for OpenTelemetry instrumentation.
type Config struct {
	// ServiceName is the name of the service (default: gmail-mcp-server)
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// ServiceInstanceID is the unique instance identifier (default: hostname)
	ServiceInstanceID string

	// Enabled determines if instrumentation is active (default: true)
	Enabled bool

	// MetricsExporter is one of "prometheus", "otlp", "stdout"
	MetricsExporter string

	// TracingExporter is one of "otlp", "stdout", "none"
	TracingExporter string

	// OTLPEndpoint is the OTLP collector endpoint without scheme, e.g. "localhost:4318"
	OTLPEndpoint string

	// OTLPInsecure switches OTLP export to plain HTTP. Local development only.
	OTLPInsecure bool

	// TraceSamplingRate is the sampling rate for traces (0.0 to 1.0)
	TraceSamplingRate float64

	// DetailedLabels adds the hashed mailbox to tool metrics. High cardinality.
	DetailedLabels bool

	// AuditLogging configures audit logging behavior.
	AuditLogging AuditLoggingConfig
}

// AuditLoggingConfig holds configuration for audit logging.
type AuditLoggingConfig struct {
	// Enabled determines if audit logging is active (default: true)
	Enabled bool

	// IncludePII logs the raw mailbox identifier instead of its hash.
	IncludePII bool
}

// Telemetry configuration keys, read through the same viper instance as the
// rest of the configuration. Each also honors the standard variable named in
// otelEnv.
const (
	KeyServiceName       = "otel.service-name"
	KeyServiceInstanceID = "otel.service-instance-id"
	KeyEnabled           = "otel.enabled"
	KeyMetricsExporter   = "otel.metrics-exporter"
	KeyTracingExporter   = "otel.tracing-exporter"
	KeyOTLPEndpoint      = "otel.otlp-endpoint"
	KeyOTLPInsecure      = "otel.otlp-insecure"
	KeyTraceSamplingRate = "otel.trace-sampling-rate"
	KeyDetailedLabels    = "otel.detailed-labels"
	KeyAuditEnabled      = "audit.enabled"
	KeyAuditIncludePII   = "audit.include-pii"
)

var otelEnv = map[string]string{
	KeyServiceName:       "OTEL_SERVICE_NAME",
	KeyServiceInstanceID: "OTEL_SERVICE_INSTANCE_ID",
	KeyEnabled:           "INSTRUMENTATION_ENABLED",
	KeyMetricsExporter:   "METRICS_EXPORTER",
	KeyTracingExporter:   "TRACING_EXPORTER",
	KeyOTLPEndpoint:      "OTEL_EXPORTER_OTLP_ENDPOINT",
	KeyOTLPInsecure:      "OTEL_EXPORTER_OTLP_INSECURE",
	KeyTraceSamplingRate: "OTEL_TRACES_SAMPLER_ARG",
	KeyDetailedLabels:    "METRICS_DETAILED_LABELS",
	KeyAuditEnabled:      "AUDIT_LOGGING_ENABLED",
	KeyAuditIncludePII:   "AUDIT_LOGGING_INCLUDE_PII",
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		ServiceName:       "gmail-mcp-server",
		ServiceVersion:    "unknown",
		Enabled:           true,
		MetricsExporter:   ExporterPrometheus,
		TracingExporter:   ExporterNone,
		TraceSamplingRate: 0.1,
		AuditLogging:      AuditLoggingConfig{Enabled: true},
	}
}

// RegisterDefaults sets the telemetry defaults on v and binds each key to its
// prefixed variable (prefix_OTEL_ENABLED) and to its standard one.
func RegisterDefaults(v *viper.Viper, envPrefix string) {
	d := DefaultConfig()
	v.SetDefault(KeyServiceName, d.ServiceName)
	v.SetDefault(KeyEnabled, d.Enabled)
	v.SetDefault(KeyMetricsExporter, d.MetricsExporter)
	v.SetDefault(KeyTracingExporter, d.TracingExporter)
	v.SetDefault(KeyTraceSamplingRate, d.TraceSamplingRate)
	v.SetDefault(KeyAuditEnabled, d.AuditLogging.Enabled)

	replacer := strings.NewReplacer(".", "_", "-", "_")
	for key, std := range otelEnv {
		prefixed := strings.ToUpper(envPrefix + "_" + replacer.Replace(key))
		_ = v.BindEnv(key, prefixed, std)
	}
}

// ConfigFromViper reads the telemetry keys from v.
func ConfigFromViper(v *viper.Viper) Config {
	return Config{
		ServiceName:       v.GetString(KeyServiceName),
		ServiceVersion:    "unknown",
		ServiceInstanceID: v.GetString(KeyServiceInstanceID),
		Enabled:           v.GetBool(KeyEnabled),
		MetricsExporter:   v.GetString(KeyMetricsExporter),
		TracingExporter:   v.GetString(KeyTracingExporter),
		OTLPEndpoint:      v.GetString(KeyOTLPEndpoint),
		OTLPInsecure:      v.GetBool(KeyOTLPInsecure),
		TraceSamplingRate: v.GetFloat64(KeyTraceSamplingRate),
		DetailedLabels:    v.GetBool(KeyDetailedLabels),
		AuditLogging: AuditLoggingConfig{
			Enabled:    v.GetBool(KeyAuditEnabled),
			IncludePII: v.GetBool(KeyAuditIncludePII),
		},
	}
}

// Validate checks exporter names, the sampling rate and the OTLP endpoint.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}
	if !slices.Contains([]string{"", ExporterPrometheus, ExporterOTLP, ExporterStdout}, c.MetricsExporter) {
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter)
	}
	if !slices.Contains([]string{"", ExporterOTLP, ExporterStdout, ExporterNone}, c.TracingExporter) {
		return fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter)
	}
	usesOTLP := c.TracingExporter == ExporterOTLP || c.MetricsExporter == ExporterOTLP
	if usesOTLP && c.OTLPEndpoint == "" {
		return fmt.Errorf("OTLP endpoint is required when using an OTLP exporter")
	}
	return nil
}

// Metric label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	// Credential resolution outcomes
	CredentialLoaded    = "loaded"
	CredentialRefreshed = "refreshed"
	CredentialConsent   = "consent"
	CredentialFailure   = "failure"

	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"
)

// Gmail API methods used as the method label and span name suffix.
const (
	MethodLabelsList     = "labels.list"
	MethodMessagesList   = "messages.list"
	MethodMessagesGet    = "messages.get"
	MethodMessagesSend   = "messages.send"
	MethodAttachmentsGet = "messages.attachments.get"
	MethodThreadsList    = "threads.list"
	MethodThreadsGet     = "threads.get"
)
