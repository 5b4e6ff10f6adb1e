package commands

import (
	"context"
	"errors"

	"github.com/pitabwire/util"

	"github.com/pitabwire/resourceloader/client"
	"github.com/pitabwire/resourceloader/config"
	"github.com/pitabwire/resourceloader/datasource"
	"github.com/pitabwire/resourceloader/fetch"
	"github.com/pitabwire/resourceloader/loader"
	"github.com/pitabwire/resourceloader/telemetry"
	"github.com/pitabwire/resourceloader/version"
	"github.com/pitabwire/resourceloader/workerpool"
)

const fetchPackage = "github.com/pitabwire/resourceloader/fetch"

// runtime is everything a command needs to run fetch sessions.
type runtime struct {
	cfg       *config.ConfigurationDefault
	telemetry telemetry.Manager
	pool      workerpool.WorkerPool
	blob      *datasource.Blob
	http      *client.Fetcher
}

// setup reads the environment and starts telemetry, the worker pool and the
// optional blob bucket. The returned context carries the configured logger.
func setup(ctx context.Context) (context.Context, *runtime, error) {
	cfg, err := config.FromEnv[config.ConfigurationDefault]()
	if err != nil {
		return ctx, nil, err
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = version.Get().Version
	}
	ctx = config.ToContext(ctx, &cfg)

	rt := &runtime{cfg: &cfg}

	rt.telemetry = telemetry.NewManager(ctx, &cfg,
		telemetry.WithServiceName(cfg.Name()),
		telemetry.WithServiceVersion(cfg.Version()),
		telemetry.WithMetricViews(fetchPackage),
	)
	if err = rt.telemetry.Init(ctx); err != nil {
		return ctx, nil, err
	}

	log := newLogger(ctx, &cfg, rt.telemetry)
	ctx = util.ContextWithLogger(ctx, log)

	rt.pool, err = workerpool.New(ctx, &cfg, workerpool.WithPoolLogger(log))
	if err != nil {
		return ctx, nil, errors.Join(err, rt.close(ctx))
	}

	rt.http = client.NewFetcher(transportOptions(&cfg)...)

	if bucket := cfg.BlobBucket(); bucket != "" {
		rt.blob, err = datasource.OpenBlob(ctx, bucket)
		if err != nil {
			return ctx, nil, errors.Join(err, rt.close(ctx))
		}
	}

	log.WithField("service", cfg.Name()).
		WithField("version", cfg.Version()).
		WithField("telemetry", !rt.telemetry.Disabled()).
		Debug("runtime ready")
	return ctx, rt, nil
}

func newLogger(ctx context.Context, cfg config.ConfigurationLogLevel, tm telemetry.Manager) *util.LogEntry {
	var opts []util.Option

	logLevel, err := util.ParseLevel(cfg.LoggingLevel())
	if err == nil {
		opts = append(opts, util.WithLogLevel(logLevel))
	}
	opts = append(opts,
		util.WithLogTimeFormat(cfg.LoggingTimeFormat()),
		util.WithLogNoColor(!cfg.LoggingColored()))
	if cfg.LoggingShowStackTrace() {
		opts = append(opts, util.WithLogStackTrace())
	}
	if tm != nil && !tm.Disabled() && tm.LogHandler() != nil {
		opts = append(opts, util.WithLogHandler(tm.LogHandler()))
	}

	return util.NewLogger(ctx, opts...)
}

func transportOptions(cfg *config.ConfigurationDefault) []client.Option {
	opts := []client.Option{
		client.WithTimeout(cfg.HTTPTimeout()),
		client.WithUserAgent(cfg.Name() + "/" + cfg.Version()),
	}
	if n := cfg.MaxResponseSize(); n > 0 {
		opts = append(opts, client.WithMaxBodyLen(n))
	}
	if rps, burst := cfg.RateLimit(); rps > 0 {
		opts = append(opts, client.WithRateLimit(rps, burst))
	}
	if !cfg.UseCircuitBreaker() {
		opts = append(opts, client.WithoutCircuitBreaker())
	}
	if cfg.TraceReq() {
		opts = append(opts, client.WithTraceRequests(), client.WithTraceRequestHeaders())
		if cfg.TraceReqLogBody() {
			opts = append(opts, client.WithTraceResponseBody())
		}
	}
	return opts
}

// sessionOptions wires the runtime into a fetch session. Locales come in
// through the resolve options of the manifest.
func (rt *runtime) sessionOptions() []fetch.Option {
	return []fetch.Option{
		fetch.WithLoaders(loader.Defaults(rt.http)),
		fetch.WithScheduler(rt.pool),
	}
}

func (rt *runtime) close(ctx context.Context) error {
	var errs []error
	if rt.blob != nil {
		errs = append(errs, rt.blob.Close())
	}
	if rt.pool != nil {
		rt.pool.Shutdown()
	}
	if rt.telemetry != nil {
		errs = append(errs, rt.telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
