// Package sampler produces location samples at a cadence that trades
// freshness against power and network cost. It emits raw samples
// unfiltered; throttling transmission is the gateway's job, and the two
// rates are deliberately decoupled.
package sampler

import (
	"context"
	"sync"
	"time"

	"github.com/convoylab/convoy/logger"
	"github.com/convoylab/convoy/module/party"
	"github.com/convoylab/convoy/tools/errs"
	"github.com/convoylab/convoy/tools/geo"
)

type Config struct {
	// SpeedThreshold separates moving from stationary, in m/s.
	SpeedThreshold float64
	// MovingInterval is the sampling delay while moving.
	MovingInterval time.Duration
	// StationaryInterval is the sampling delay while stationary.
	StationaryInterval time.Duration
	// RetryBackoff is the delay after a recoverable acquisition error.
	RetryBackoff time.Duration
	// Clock is injectable for tests; nil means time.Now.
	Clock func() time.Time
}

func (c *Config) norm() {
	if c.SpeedThreshold <= 0 {
		c.SpeedThreshold = 1.5
	}
	if c.MovingInterval <= 0 {
		c.MovingInterval = 2 * time.Second
	}
	if c.StationaryInterval <= 0 {
		c.StationaryInterval = 10 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 5 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

type OnSample func(party.LocationSample)
type OnError func(error)

// Sampler runs the adaptive acquisition loop for one device. Construct
// one per session; there is no process-wide instance.
type Sampler struct {
	cfg    Config
	source PositionSource

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
	prev    *party.LocationSample
	moving  bool
}

func New(source PositionSource, cfg Config) *Sampler {
	cfg.norm()
	return &Sampler{cfg: cfg, source: source}
}

// SampleOnce acquires a single reading outside the continuous loop.
func (s *Sampler) SampleOnce(ctx context.Context) (party.LocationSample, error) {
	return s.source.Read(ctx)
}

// Start begins the continuous loop and returns immediately. Samples and
// errors are delivered on the loop goroutine until Stop.
func (s *Sampler) Start(onSample OnSample, onError OnError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errs.ErrInternal.WrapMsg("sampler already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stopped = false

	go s.loop(ctx, onSample, onError)
	return nil
}

// Stop cancels the loop. Idempotent, returns immediately, and no
// callback fires after it: an in-flight reading is checked against the
// stop flag before delivery.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Moving reports the last motion classification.
func (s *Sampler) Moving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moving
}

func (s *Sampler) loop(ctx context.Context, onSample OnSample, onError OnError) {
	if err := s.source.RequestAccess(ctx); err != nil {
		if !s.suppressed() {
			onError(err)
		}
		return
	}

	for {
		sample, err := s.source.Read(ctx)

		if s.suppressed() {
			return
		}

		var delay time.Duration
		switch {
		case err == nil:
			moving := s.classify(sample)
			onSample(sample)
			if moving {
				delay = s.cfg.MovingInterval
			} else {
				delay = s.cfg.StationaryInterval
			}
		case errs.ErrPermissionDenied.Is(err) || errs.ErrNotSupported.Is(err):
			// fatal: surface once and halt the loop
			onError(err)
			return
		default:
			// recoverable (unavailable/timeout): report and retry
			onError(err)
			delay = s.cfg.RetryBackoff
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (s *Sampler) suppressed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// classify decides moving vs stationary for this sample and remembers
// it for the next interval choice. Single-sample speed spikes are taken
// as-is; there is no smoothing.
func (s *Sampler) classify(sample party.LocationSample) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	moving := false
	switch {
	case sample.SpeedKnown():
		moving = sample.Speed >= s.cfg.SpeedThreshold
	case s.prev != nil:
		elapsed := sample.Timestamp.Sub(s.prev.Timestamp).Seconds()
		if elapsed > 0 {
			dist := geo.Haversine(s.prev.Latitude, s.prev.Longitude, sample.Latitude, sample.Longitude)
			moving = dist/elapsed >= s.cfg.SpeedThreshold
		}
	default:
		// first sample with unknown speed: assume stationary
	}

	if moving != s.moving {
		logger.Debugf("sampler motion state: moving=%v", moving)
	}
	prev := sample
	s.prev = &prev
	s.moving = moving
	return moving
}
