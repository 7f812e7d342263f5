// Package renewal periodically renews Let's Encrypt certificates that are
// about to expire.
package renewal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"proxy_manager/internal/access"
	"proxy_manager/internal/model"
)

const (
	DefaultInterval = time.Hour
	DefaultLeadTime = 30 * 24 * time.Hour
)

// CertificateSource lists active Let's Encrypt certificates expiring
// before a point in time
type CertificateSource interface {
	ListRenewable(ctx context.Context, before time.Time) ([]model.Certificate, error)
}

// Renewer renews one certificate
type Renewer interface {
	Renew(ctx context.Context, id int) (*model.Certificate, error)
}

// Config holds configuration for the scheduler
type Config struct {
	Enabled  bool
	Interval time.Duration // Default: 1h
	LeadTime time.Duration // Default: 30 days
	Logger   *logrus.Entry
}

// Scheduler sweeps for expiring certificates at start and on every
// interval. At most one sweep runs at a time; a tick that fires while a
// sweep is in flight is dropped.
type Scheduler struct {
	source   CertificateSource
	renewer  Renewer
	enabled  bool
	interval time.Duration
	leadTime time.Duration
	logger   *logrus.Entry
	now      func() time.Time

	busy atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler
func NewScheduler(source CertificateSource, renewer Renewer, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.LeadTime <= 0 {
		cfg.LeadTime = DefaultLeadTime
	}
	return &Scheduler{
		source:   source,
		renewer:  renewer,
		enabled:  cfg.Enabled,
		interval: cfg.Interval,
		leadTime: cfg.LeadTime,
		logger:   cfg.Logger.WithField("component", "renewal-scheduler"),
		now:      time.Now,
	}
}

// Start fires a sweep immediately and then on every interval
func (s *Scheduler) Start() {
	if !s.enabled {
		s.logger.Info("Renewal scheduler disabled, not starting")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.logger.Infof("Starting renewal scheduler: interval=%s lead=%s", s.interval, s.leadTime)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop ends the loop and waits for an in-flight sweep to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	s.logger.Info("Stopping renewal scheduler...")
	cancel()
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.spawn(ctx)
	for {
		select {
		case <-ticker.C:
			s.spawn(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// spawn runs a tick off the loop so a slow sweep never delays the ticker;
// the busy flag drops the overlapping ones.
func (s *Scheduler) spawn(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Tick(ctx)
	}()
}

// Tick runs one sweep. It returns false without doing anything when
// another sweep is in flight.
func (s *Scheduler) Tick(ctx context.Context) bool {
	if !s.busy.CompareAndSwap(false, true) {
		s.logger.Debug("Sweep already running, tick dropped")
		return false
	}
	defer s.busy.Store(false)

	ctx = access.WithPrincipal(ctx, access.System())
	before := s.now().Add(s.leadTime)
	certs, err := s.source.ListRenewable(ctx, before)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list renewable certificates")
		return true
	}
	if len(certs) == 0 {
		s.logger.Debug("No certificates due for renewal")
		return true
	}

	s.logger.Infof("Renewing %d certificate(s)", len(certs))
	for _, cert := range certs {
		// Stop only takes effect between certificates
		if ctx.Err() != nil {
			s.logger.Info("Sweep interrupted by shutdown")
			return true
		}
		logger := s.logger.WithField("certificate_id", cert.ID)
		if _, err := s.renewer.Renew(ctx, cert.ID); err != nil {
			logger.WithError(err).Error("Renewal failed")
			continue
		}
		logger.Info("Renewed")
	}
	return true
}

// Busy reports whether a sweep is in flight
func (s *Scheduler) Busy() bool {
	return s.busy.Load()
}
