package config

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
)

type contextKey string

func (c contextKey) String() string {
	return "resourceloader/config/" + string(c)
}

const (
	ctxKeyConfiguration = contextKey("configurationKey")

	defaultExpiryDuration = time.Second
	defaultHTTPTimeout    = 30 * time.Second
)

// ToContext adds service configuration to the current supplied context.
func ToContext(ctx context.Context, config any) context.Context {
	return context.WithValue(ctx, ctxKeyConfiguration, config)
}

// FromContext extracts service configuration from the supplied context if any exist.
func FromContext[T any](ctx context.Context) T {
	if cfg, ok := ctx.Value(ctxKeyConfiguration).(T); ok {
		return cfg
	}
	var zero T
	return zero
}

// FromEnv convenience method to process configs.
func FromEnv[T any]() (T, error) {
	return env.ParseAs[T]()
}

// FillEnv convenience method to fill a config object with environment data.
func FillEnv(v any) error {
	return env.Parse(v)
}

type ConfigurationDefault struct {
	LogLevel      string `envDefault:"info"                      env:"LOG_LEVEL"       yaml:"log_level"`
	LogFormat     string `envDefault:"info"                      env:"LOG_FORMAT"      yaml:"log_format"`
	LogTimeFormat string `envDefault:"2006-01-02T15:04:05Z07:00" env:"LOG_TIME_FORMAT" yaml:"log_time_format"`
	LogColored    bool   `envDefault:"true"                      env:"LOG_COLORED"     yaml:"log_colored"`

	LogShowStackTrace bool `envDefault:"false" env:"LOG_SHOW_STACK_TRACE" yaml:"log_show_stack_trace"`

	TraceRequests        bool `envDefault:"false" env:"TRACE_REQUESTS"          yaml:"trace_requests"`
	TraceRequestsLogBody bool `envDefault:"false" env:"TRACE_REQUESTS_LOG_BODY" yaml:"trace_requests_log_body"`

	OpenTelemetryDisable    bool    `envDefault:"false" env:"OPENTELEMETRY_DISABLE"        yaml:"opentelemetry_disable"`
	OpenTelemetryTraceRatio float64 `envDefault:"1"     env:"OPENTELEMETRY_TRACE_ID_RATIO" yaml:"opentelemetry_trace_id_ratio"`

	ServiceName    string `envDefault:"resourceloader" env:"SERVICE_NAME"    yaml:"service_name"`
	ServiceVersion string `envDefault:""               env:"SERVICE_VERSION" yaml:"service_version"`

	// Resource fetching
	DefaultLocaleValue string `envDefault:""      env:"RESOURCE_DEFAULT_LOCALE"     yaml:"default_locale"`
	LocaleValue        string `envDefault:""      env:"RESOURCE_LOCALE"             yaml:"locale"`
	HTTPTimeoutValue   string `envDefault:"30s"   env:"RESOURCE_HTTP_TIMEOUT"       yaml:"http_timeout"`
	MaxResponseBytes   int64  `envDefault:"0"     env:"RESOURCE_MAX_RESPONSE_BYTES" yaml:"max_response_bytes"`
	CircuitBreaker     bool   `envDefault:"true"  env:"RESOURCE_CIRCUIT_BREAKER"    yaml:"circuit_breaker"`
	BlobBucketURL      string `envDefault:""      env:"RESOURCE_BLOB_BUCKET_URL"    yaml:"blob_bucket_url"`

	HTTPRateLimit float64 `envDefault:"0" env:"RESOURCE_HTTP_RATE_LIMIT" yaml:"http_rate_limit"`
	HTTPRateBurst int     `envDefault:"0" env:"RESOURCE_HTTP_RATE_BURST" yaml:"http_rate_burst"`

	// Worker pool settings
	WorkerPoolCPUFactorForWorkerCount int    `envDefault:"10"  env:"WORKER_POOL_CPU_FACTOR_FOR_WORKER_COUNT" yaml:"worker_pool_cpu_factor_for_worker_count"`
	WorkerPoolCapacity                int    `envDefault:"100" env:"WORKER_POOL_CAPACITY"                    yaml:"worker_pool_capacity"`
	WorkerPoolCount                   int    `envDefault:"1"   env:"WORKER_POOL_COUNT"                       yaml:"worker_pool_count"`
	WorkerPoolExpiryDuration          string `envDefault:"1s"  env:"WORKER_POOL_EXPIRY_DURATION"             yaml:"worker_pool_expiry_duration"`
}

type ConfigurationService interface {
	Name() string
	Version() string
}

var _ ConfigurationService = new(ConfigurationDefault)

func (c *ConfigurationDefault) Name() string {
	return c.ServiceName
}

func (c *ConfigurationDefault) Version() string {
	return c.ServiceVersion
}

type ConfigurationLogLevel interface {
	LoggingLevel() string
	LoggingFormat() string
	LoggingTimeFormat() string
	LoggingShowStackTrace() bool
	LoggingColored() bool
	LoggingLevelIsDebug() bool
}

var _ ConfigurationLogLevel = new(ConfigurationDefault)

func (c *ConfigurationDefault) LoggingLevel() string {
	return c.LogLevel
}

func (c *ConfigurationDefault) LoggingTimeFormat() string {
	return c.LogTimeFormat
}

func (c *ConfigurationDefault) LoggingFormat() string {
	return c.LogFormat
}

func (c *ConfigurationDefault) LoggingColored() bool {
	return c.LogColored
}

func (c *ConfigurationDefault) LoggingShowStackTrace() bool {
	return c.LogShowStackTrace
}

func (c *ConfigurationDefault) LoggingLevelIsDebug() bool {
	return c.LoggingLevel() == "debug" || c.LoggingLevel() == "trace"
}

type ConfigurationTraceRequests interface {
	TraceReq() bool
	TraceReqLogBody() bool
}

var _ ConfigurationTraceRequests = new(ConfigurationDefault)

func (c *ConfigurationDefault) TraceReq() bool {
	return c.TraceRequests
}

func (c *ConfigurationDefault) TraceReqLogBody() bool {
	return c.TraceRequestsLogBody
}

type ConfigurationTelemetry interface {
	DisableOpenTelemetry() bool
	SamplingRatio() float64
}

var _ ConfigurationTelemetry = new(ConfigurationDefault)

func (c *ConfigurationDefault) DisableOpenTelemetry() bool {
	return c.OpenTelemetryDisable
}

func (c *ConfigurationDefault) SamplingRatio() float64 {
	return c.OpenTelemetryTraceRatio
}

// ConfigurationLocale carries the session wide locale settings applied to
// descriptors that do not name their own.
type ConfigurationLocale interface {
	DefaultLocale() string
	Locale() string
}

var _ ConfigurationLocale = new(ConfigurationDefault)

func (c *ConfigurationDefault) DefaultLocale() string {
	return c.DefaultLocaleValue
}

func (c *ConfigurationDefault) Locale() string {
	return c.LocaleValue
}

type ConfigurationTransport interface {
	HTTPTimeout() time.Duration
	MaxResponseSize() int64
	UseCircuitBreaker() bool
	RateLimit() (float64, int)
	BlobBucket() string
}

var _ ConfigurationTransport = new(ConfigurationDefault)

func (c *ConfigurationDefault) HTTPTimeout() time.Duration {
	if c.HTTPTimeoutValue != "" {
		duration, err := time.ParseDuration(c.HTTPTimeoutValue)
		if err == nil && duration > 0 {
			return duration
		}
	}

	return defaultHTTPTimeout
}

// MaxResponseSize returns zero when the transport default applies.
func (c *ConfigurationDefault) MaxResponseSize() int64 {
	if c.MaxResponseBytes < 0 {
		return 0
	}
	return c.MaxResponseBytes
}

func (c *ConfigurationDefault) UseCircuitBreaker() bool {
	return c.CircuitBreaker
}

// RateLimit is the per host request rate and burst. A zero rate means
// requests are not paced.
func (c *ConfigurationDefault) RateLimit() (float64, int) {
	if c.HTTPRateLimit <= 0 {
		return 0, 0
	}
	return c.HTTPRateLimit, max(c.HTTPRateBurst, 0)
}

func (c *ConfigurationDefault) BlobBucket() string {
	return c.BlobBucketURL
}

type ConfigurationWorkerPool interface {
	GetCPUFactor() int
	GetCapacity() int
	GetCount() int
	GetExpiryDuration() time.Duration
}

var _ ConfigurationWorkerPool = new(ConfigurationDefault)

func (c *ConfigurationDefault) GetCPUFactor() int {
	return c.WorkerPoolCPUFactorForWorkerCount
}

func (c *ConfigurationDefault) GetCapacity() int {
	return c.WorkerPoolCapacity
}

func (c *ConfigurationDefault) GetCount() int {
	return c.WorkerPoolCount
}

func (c *ConfigurationDefault) GetExpiryDuration() time.Duration {
	if c.WorkerPoolExpiryDuration != "" {
		duration, err := time.ParseDuration(c.WorkerPoolExpiryDuration)
		if err == nil {
			return duration
		}
	}

	return defaultExpiryDuration
}
