// Package reconcile runs the background sweeps that correct drift the webhook
// stream cannot: checkouts that were never completed, periods that lapsed
// without a renewal event, and grace periods that ran out.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/patronkit/patronkit/internal/billing"
	"github.com/patronkit/patronkit/internal/subscription"
)

// Config tunes the sweep cadence and cutoffs.
type Config struct {
	Interval     time.Duration `env:"RECONCILE_INTERVAL" envDefault:"15m"`
	PendingTTL   time.Duration `env:"RECONCILE_PENDING_TTL" envDefault:"24h"`
	PastDueGrace time.Duration `env:"RECONCILE_PAST_DUE_GRACE" envDefault:"336h"`
	PendingSweep bool          `env:"RECONCILE_PENDING_SWEEP" envDefault:"true"`
	LapsedSweep  bool          `env:"RECONCILE_LAPSED_SWEEP" envDefault:"true"`
	PastDueSweep bool          `env:"RECONCILE_PAST_DUE_SWEEP" envDefault:"true"`
}

// Sweeper owns the scheduled reconciliation jobs.
type Sweeper struct {
	cfg       Config
	store     subscription.Store
	provider  billing.Provider
	log       *slog.Logger
	scheduler gocron.Scheduler
	now       func() time.Time
}

// NewSweeper creates a Sweeper. Panics on missing dependencies.
func NewSweeper(cfg Config, store subscription.Store, provider billing.Provider, log *slog.Logger) (*Sweeper, error) {
	if store == nil {
		panic("reconcile: subscription.Store is required")
	}
	if provider == nil {
		panic("reconcile: billing.Provider is required")
	}
	if log == nil {
		log = slog.Default()
	}

	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	return &Sweeper{
		cfg:       cfg,
		store:     store,
		provider:  provider,
		log:       log,
		scheduler: scheduler,
		now:       time.Now,
	}, nil
}

// Start registers the enabled sweeps and begins the schedule. Jobs run
// singleton-mode so a slow sweep never overlaps itself.
func (s *Sweeper) Start(ctx context.Context) error {
	jobs := []struct {
		name    string
		enabled bool
		run     func(ctx context.Context)
	}{
		{"pending_sweep", s.cfg.PendingSweep, s.sweepPending},
		{"lapsed_sweep", s.cfg.LapsedSweep, s.sweepLapsedActive},
		{"past_due_sweep", s.cfg.PastDueSweep, s.sweepLapsedPastDue},
	}

	for _, j := range jobs {
		if !j.enabled {
			s.log.InfoContext(ctx, "reconcile sweep disabled", "job", j.name)
			continue
		}
		_, err := s.scheduler.NewJob(
			gocron.DurationJob(s.cfg.Interval),
			gocron.NewTask(j.run, ctx),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return err
		}
	}

	s.scheduler.Start()
	s.log.InfoContext(ctx, "reconciliation scheduler started", "interval", s.cfg.Interval)
	return nil
}

// Stop shuts the scheduler down, waiting for in-flight sweeps.
func (s *Sweeper) Stop() error {
	return s.scheduler.Shutdown()
}

// sweepPending expires checkout sessions that never completed. Before
// expiring, each candidate is verified against the processor: a completion
// webhook may still be in flight, and expiring a paid-for subscription would
// strand the subscriber.
func (s *Sweeper) sweepPending(ctx context.Context) {
	cutoff := s.now().UTC().Add(-s.cfg.PendingTTL)
	candidates, err := s.store.ListPendingOlderThan(ctx, cutoff)
	if err != nil {
		s.log.ErrorContext(ctx, "pending sweep failed to list candidates", "error", err)
		return
	}

	var expired int
	for _, sub := range candidates {
		state, err := s.provider.CheckoutStatus(ctx, sub.CheckoutSessionID)
		if err != nil {
			if errors.Is(err, billing.ErrRemoteNotFound) {
				state = billing.CheckoutAbandoned
			} else {
				s.log.WarnContext(ctx, "checkout status lookup failed, leaving pending row for next sweep",
					"subscription_id", sub.ID, "error", err)
				continue
			}
		}
		if state == billing.CheckoutCompleted {
			// Completion webhook is still in flight. The webhook path owns
			// the activation; the row just survives another sweep.
			s.log.InfoContext(ctx, "pending checkout completed at processor, awaiting webhook",
				"subscription_id", sub.ID)
			continue
		}

		// Guarded update: the row only expires if it is still pending, so a
		// webhook that activated it between the list and this write wins.
		ok, err := s.store.ExpireIfStillPending(ctx, sub.ID)
		if err != nil {
			s.log.ErrorContext(ctx, "failed to expire pending subscription",
				"subscription_id", sub.ID, "error", err)
			continue
		}
		if ok {
			expired++
		}
	}

	if expired > 0 {
		s.log.InfoContext(ctx, "pending sweep expired abandoned checkouts", "count", expired)
	}
}

// sweepLapsedActive expires active subscriptions whose period ended without
// a renewal or payment-failure event ever arriving.
func (s *Sweeper) sweepLapsedActive(ctx context.Context) {
	n, err := s.store.ExpireLapsedActive(ctx, s.now().UTC())
	if err != nil {
		s.log.ErrorContext(ctx, "lapsed-active sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.log.InfoContext(ctx, "lapsed-active sweep expired subscriptions", "count", n)
	}
}

// sweepLapsedPastDue cancels past_due subscriptions whose grace period ran
// out without a successful retry. Like the pending sweep, each candidate is
// verified against the processor first: a recovery webhook may still be in
// flight, and force-canceling a subscription the processor considers active
// would cut off a paying subscriber.
func (s *Sweeper) sweepLapsedPastDue(ctx context.Context) {
	cutoff := s.now().UTC().Add(-s.cfg.PastDueGrace)
	candidates, err := s.store.ListPastDueLapsedBefore(ctx, cutoff)
	if err != nil {
		s.log.ErrorContext(ctx, "past-due sweep failed to list candidates", "error", err)
		return
	}

	var canceled int
	for _, sub := range candidates {
		if sub.ProcessorSubID != "" {
			state, err := s.provider.SubscriptionState(ctx, sub.ProcessorSubID)
			switch {
			case errors.Is(err, billing.ErrRemoteNotFound):
				// Processor forgot the subscription entirely; cancel ours.
			case err != nil:
				s.log.WarnContext(ctx, "subscription state lookup failed, leaving past-due row for next sweep",
					"subscription_id", sub.ID, "error", err)
				continue
			case state == billing.RemoteActive:
				// Recovery webhook is still in flight. The webhook path owns
				// the transition back to active.
				s.log.InfoContext(ctx, "past-due subscription active at processor, awaiting webhook",
					"subscription_id", sub.ID)
				continue
			}
		}

		// Guarded update: only a row still past_due is canceled, so a
		// renewal that lands between the list and this write wins.
		ok, err := s.store.CancelIfStillPastDue(ctx, sub.ID)
		if err != nil {
			s.log.ErrorContext(ctx, "failed to cancel past-due subscription",
				"subscription_id", sub.ID, "error", err)
			continue
		}
		if ok {
			canceled++
		}
	}

	if canceled > 0 {
		s.log.InfoContext(ctx, "past-due sweep canceled lapsed subscriptions", "count", canceled)
	}
}
