package workerpool_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/pitabwire/resourceloader/workerpool"
)

type staticConfig struct {
	cpuFactor int
	capacity  int
	count     int
	expiry    time.Duration
}

func (c staticConfig) GetCPUFactor() int                { return c.cpuFactor }
func (c staticConfig) GetCapacity() int                 { return c.capacity }
func (c staticConfig) GetCount() int                    { return c.count }
func (c staticConfig) GetExpiryDuration() time.Duration { return c.expiry }

type WorkerPoolTestSuite struct {
	suite.Suite
}

func TestWorkerPoolSuite(t *testing.T) {
	suite.Run(t, &WorkerPoolTestSuite{})
}

func (s *WorkerPoolTestSuite) TestSubmitRunsTasks() {
	testCases := []struct {
		name string
		cfg  workerpool.Configuration
	}{
		{name: "defaults", cfg: nil},
		{name: "single pool", cfg: staticConfig{capacity: 4, count: 1}},
		{name: "multi pool", cfg: staticConfig{capacity: 4, count: 3, expiry: 2 * time.Second}},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			ctx := s.T().Context()
			pool, err := workerpool.New(ctx, tc.cfg)
			s.Require().NoError(err)
			defer pool.Shutdown()

			var ran atomic.Int32
			var wg sync.WaitGroup
			for range 10 {
				wg.Add(1)
				workerpool.Go(ctx, pool, func() {
					defer wg.Done()
					ran.Add(1)
				})
			}
			wg.Wait()
			s.Equal(int32(10), ran.Load())
		})
	}
}

func (s *WorkerPoolTestSuite) TestSubmitAfterShutdown() {
	ctx := s.T().Context()
	pool, err := workerpool.New(ctx, nil)
	s.Require().NoError(err)
	pool.Shutdown()

	err = pool.Submit(ctx, func() {})
	s.Require().ErrorIs(err, workerpool.ErrPoolClosed)

	done := make(chan struct{})
	workerpool.Go(ctx, pool, func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("task was dropped by a closed pool")
	}
}

func (s *WorkerPoolTestSuite) TestGoWithoutPool() {
	done := make(chan struct{})
	workerpool.Go(s.T().Context(), nil, func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("task never ran")
	}
}

func (s *WorkerPoolTestSuite) TestOverloadFallsBack() {
	ctx := s.T().Context()
	pool, err := workerpool.New(ctx, staticConfig{capacity: 1},
		workerpool.WithPoolNonblocking(true),
		workerpool.WithConcurrency(0),
	)
	s.Require().NoError(err)
	defer pool.Shutdown()

	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(3)
	for range 3 {
		workerpool.Go(ctx, pool, func() {
			defer wg.Done()
			<-release
		})
	}
	close(release)
	wg.Wait()
}
