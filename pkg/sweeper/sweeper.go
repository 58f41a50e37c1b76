package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/mcclellann/installments/pkg/ledger"
	"github.com/mcclellann/installments/pkg/models"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultInterval is the period between overdue sweeps.
const DefaultInterval = 24 * time.Hour

// OverdueMarker is the ledger operation the sweeper drives.
type OverdueMarker interface {
	SweepOverdue(ctx context.Context, now time.Time) (ledger.SweepResult, error)
}

// Notifier is told about installments that a sweep moved to Overdue.
type Notifier interface {
	NotifyOverdue(ctx context.Context, notices []models.OverdueNotice) error
}

// Sweeper runs the overdue sweep once at start and then on a fixed interval.
type Sweeper struct {
	marker   OverdueMarker
	clock    ledger.Clock
	interval time.Duration
	notifier Notifier
	log      *logrus.Logger
}

// New creates a Sweeper. A non-positive interval falls back to DefaultInterval.
// notifier may be nil.
func New(marker OverdueMarker, clock ledger.Clock, interval time.Duration, notifier Notifier, log *logrus.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		marker:   marker,
		clock:    clock,
		interval: interval,
		notifier: notifier,
		log:      log,
	}
}

// Run sweeps immediately, then every interval until ctx is cancelled. It
// returns once any in-flight sweep has finished.
func (s *Sweeper) Run(ctx context.Context) {
	s.RunOnce(ctx)

	logger := cron.PrintfLogger(s.log)
	c := cron.New(cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	))
	c.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		s.RunOnce(ctx)
	}))
	c.Start()
	s.log.WithField("interval", s.interval.String()).Info("Overdue sweeper started")

	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info("Overdue sweeper stopped")
}

// RunOnce performs a single sweep cycle. Failures, including panics, are
// logged and returned; they never escape as a panic.
func (s *Sweeper) RunOnce(ctx context.Context) (result ledger.SweepResult, err error) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("overdue sweep panicked: %v", r)
			s.log.WithError(err).Error("Overdue sweep failed")
		}
	}()

	s.log.Info("Running overdue sweep...")
	result, err = s.marker.SweepOverdue(ctx, s.clock.Now())
	if err != nil {
		s.log.WithError(err).Error("Overdue sweep failed")
		return result, err
	}

	s.log.WithFields(logrus.Fields{
		"plans_scanned": result.PlansScanned,
		"plans_updated": result.PlansUpdated,
		"overdue":       len(result.Notices),
		"failed":        result.Failed,
		"duration":      time.Since(started).String(),
	}).Info("Overdue sweep complete")

	if s.notifier != nil && len(result.Notices) > 0 {
		if nerr := s.notifier.NotifyOverdue(ctx, result.Notices); nerr != nil {
			s.log.WithError(nerr).Warn("Failed to send overdue notices")
		}
	}
	return result, nil
}
