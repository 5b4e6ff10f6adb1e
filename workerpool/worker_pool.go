// Package workerpool runs resource pipelines on a bounded ants pool.
package workerpool

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/pitabwire/util"
)

const (
	defaultCPUFactor      = 10
	defaultPoolCapacity   = 100
	defaultExpiryDuration = time.Second
)

// ErrPoolClosed is returned when submitting to a pool that has been shut down.
var ErrPoolClosed = errors.New("worker pool is closed")

// WorkerPool runs tasks asynchronously. It hides whether a single ants.Pool or
// an ants.MultiPool sits underneath.
type WorkerPool interface {
	Submit(ctx context.Context, task func()) error
	Shutdown()
}

// Configuration is the subset of settings that sizes the pool.
type Configuration interface {
	GetCPUFactor() int
	GetCapacity() int
	GetCount() int
	GetExpiryDuration() time.Duration
}

// Options defines configurable options for the worker pool.
type Options struct {
	PoolCount          int
	SinglePoolCapacity int
	Concurrency        int
	ExpiryDuration     time.Duration
	Nonblocking        bool
	PreAlloc           bool
	PanicHandler       func(any)
	Logger             *util.LogEntry
	DisablePurge       bool
}

// Option defines a function that configures worker pool options.
type Option func(*Options)

// WithPoolCount sets the number of worker pools.
func WithPoolCount(count int) Option {
	return func(opts *Options) {
		opts.PoolCount = count
	}
}

// WithSinglePoolCapacity sets the capacity for a single worker pool.
func WithSinglePoolCapacity(capacity int) Option {
	return func(opts *Options) {
		opts.SinglePoolCapacity = capacity
	}
}

// WithConcurrency caps the tasks allowed to wait for a free worker.
func WithConcurrency(concurrency int) Option {
	return func(opts *Options) {
		opts.Concurrency = concurrency
	}
}

// WithPoolExpiryDuration sets the expiry duration for idle workers.
func WithPoolExpiryDuration(duration time.Duration) Option {
	return func(opts *Options) {
		opts.ExpiryDuration = duration
	}
}

// WithPoolNonblocking makes Submit fail instead of wait when the pool is full.
func WithPoolNonblocking(nonblocking bool) Option {
	return func(opts *Options) {
		opts.Nonblocking = nonblocking
	}
}

// WithPoolPanicHandler sets a panic handler for the pool.
func WithPoolPanicHandler(handler func(any)) Option {
	return func(opts *Options) {
		opts.PanicHandler = handler
	}
}

// WithPoolLogger sets a logger for the pool.
func WithPoolLogger(logger *util.LogEntry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

func defaultOptions(cfg Configuration, log *util.LogEntry) *Options {
	opts := &Options{
		Concurrency:        runtime.NumCPU() * defaultCPUFactor,
		SinglePoolCapacity: defaultPoolCapacity,
		PoolCount:          1,
		ExpiryDuration:     defaultExpiryDuration,
		Nonblocking:        true,
		Logger:             log,
	}
	if cfg == nil {
		return opts
	}

	if cfg.GetCPUFactor() > 0 {
		opts.Concurrency = runtime.NumCPU() * cfg.GetCPUFactor()
	}
	if cfg.GetCapacity() > 0 {
		opts.SinglePoolCapacity = cfg.GetCapacity()
	}
	if cfg.GetCount() > 0 {
		opts.PoolCount = cfg.GetCount()
	}
	if cfg.GetExpiryDuration() > 0 {
		opts.ExpiryDuration = cfg.GetExpiryDuration()
	}
	return opts
}

// New creates a worker pool sized from cfg (which may be nil) and opts.
func New(ctx context.Context, cfg Configuration, opts ...Option) (WorkerPool, error) {
	log := util.Log(ctx)

	poolOpts := defaultOptions(cfg, log)
	for _, opt := range opts {
		opt(poolOpts)
	}
	if poolOpts.PanicHandler == nil {
		poolOpts.PanicHandler = func(p any) {
			log.WithField("panic", p).Error("worker pool task panicked")
		}
	}

	return setupWorkerPool(poolOpts)
}

func setupWorkerPool(wopts *Options) (WorkerPool, error) {
	var antsOpts []ants.Option
	if wopts.ExpiryDuration > 0 {
		antsOpts = append(antsOpts, ants.WithExpiryDuration(wopts.ExpiryDuration))
	}
	antsOpts = append(antsOpts, ants.WithNonblocking(wopts.Nonblocking))
	if wopts.PreAlloc {
		antsOpts = append(antsOpts, ants.WithPreAlloc(wopts.PreAlloc))
	}
	if wopts.Concurrency > 0 {
		antsOpts = append(antsOpts, ants.WithMaxBlockingTasks(wopts.Concurrency))
	}
	if wopts.PanicHandler != nil {
		antsOpts = append(antsOpts, ants.WithPanicHandler(wopts.PanicHandler))
	}
	if wopts.Logger != nil {
		antsOpts = append(antsOpts, ants.WithLogger(wopts.Logger))
	}
	antsOpts = append(antsOpts, ants.WithDisablePurge(wopts.DisablePurge))

	if wopts.PoolCount <= 1 {
		p, err := ants.NewPool(wopts.SinglePoolCapacity, antsOpts...)
		if err != nil {
			return nil, err
		}
		return &singlePoolWrapper{pool: p}, nil
	}

	mp, err := ants.NewMultiPool(wopts.PoolCount, wopts.SinglePoolCapacity, ants.LeastTasks, antsOpts...)
	if err != nil {
		return nil, err
	}
	return &multiPoolWrapper{multiPool: mp}, nil
}

// singlePoolWrapper adapts *ants.Pool to the WorkerPool interface.
type singlePoolWrapper struct {
	pool *ants.Pool
}

func (w *singlePoolWrapper) Submit(ctx context.Context, task func()) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return translate(w.pool.Submit(task))
}

func (w *singlePoolWrapper) Shutdown() {
	w.pool.Release()
}

// multiPoolWrapper adapts *ants.MultiPool to the WorkerPool interface.
type multiPoolWrapper struct {
	multiPool *ants.MultiPool
}

func (w *multiPoolWrapper) Submit(ctx context.Context, task func()) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return translate(w.multiPool.Submit(task))
}

func (w *multiPoolWrapper) Shutdown() {
	_ = w.multiPool.ReleaseTimeout(defaultExpiryDuration)
}

func translate(err error) error {
	if errors.Is(err, ants.ErrPoolClosed) {
		return ErrPoolClosed
	}
	return err
}

// Go runs task on pool. When the pool cannot take the task (overloaded or
// closed) the task runs on a fresh goroutine instead, so a submitted task is
// never dropped.
func Go(ctx context.Context, pool WorkerPool, task func()) {
	if pool != nil {
		err := pool.Submit(ctx, task)
		if err == nil {
			return
		}
		util.Log(ctx).WithError(err).Debug("worker pool rejected task, running it on its own goroutine")
	}
	go task()
}
