// Package scheduler implements the Scheduler & Lock Manager (C1): the
// three independent cycle tickers and the cross-replica cooperative
// lock protocol that serializes their execution.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/common"
	"github.com/ternarybob/vetting-core/internal/interfaces"
	"github.com/ternarybob/vetting-core/internal/models"
	vetcoreerrors "github.com/ternarybob/vetting-core/internal/vetcore/errors"
)

// cycleSchedule is the fixed trigger shape for one named cycle: either
// a fixed tick interval (vetting, publish) or a daily cron expression
// (digest).
type cycleSchedule struct {
	name            string
	tickInterval    time.Duration // zero means cron-driven
	cronExpr        string
	expectedRuntime time.Duration
}

// Service implements interfaces.Scheduler using robfig/cron for the
// digest's daily trigger and plain tickers for the fixed-interval
// vetting/publish cycles, with every tick gated by the distributed
// lock in SchedulerLockStorage.
type Service struct {
	locks       interfaces.SchedulerLockStorage
	cron        *cron.Cron
	logger      arbor.ILogger
	environment string
	ownerID     string

	mu        sync.Mutex
	schedules map[string]cycleSchedule
	handlers  map[string]interfaces.CycleHandler
	tickers   map[string]*time.Ticker
	cronIDs   map[string]cron.EntryID
	running   bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

var _ interfaces.Scheduler = (*Service)(nil)

// NewService builds the scheduler with its three cycles pre-wired from
// configuration. RegisterCycle attaches handlers to these named
// cycles; registering an unrecognized name is an error.
func NewService(locks interfaces.SchedulerLockStorage, vetting common.VettingConfig, environment string, logger arbor.ILogger) *Service {
	digestCron := dailyCronExpr(vetting.DigestDailyUTC)

	tickMinutes := vetting.TickMinutes
	if tickMinutes <= 0 {
		tickMinutes = 5
	}
	publishMinutes := vetting.PublishTickMinutes
	if publishMinutes <= 0 {
		publishMinutes = 30
	}
	cycleDeadline := vetting.CycleDeadlineSeconds
	if cycleDeadline <= 0 {
		cycleDeadline = 360
	}
	publishDeadline := vetting.PublishDeadlineSeconds
	if publishDeadline <= 0 {
		publishDeadline = 90
	}

	return &Service{
		locks:       locks,
		cron:        cron.New(),
		logger:      logger,
		environment: environment,
		ownerID:     uuid.NewString(),
		schedules: map[string]cycleSchedule{
			"vetting": {
				name:            "vetting",
				tickInterval:    time.Duration(tickMinutes) * time.Minute,
				expectedRuntime: time.Duration(cycleDeadline) * time.Second,
			},
			"publish": {
				name:            "publish",
				tickInterval:    time.Duration(publishMinutes) * time.Minute,
				expectedRuntime: time.Duration(publishDeadline) * time.Second,
			},
			"digest": {
				name:            "digest",
				cronExpr:        digestCron,
				expectedRuntime: time.Duration(publishDeadline) * time.Second,
			},
		},
		handlers: make(map[string]interfaces.CycleHandler),
		tickers:  make(map[string]*time.Ticker),
		cronIDs:  make(map[string]cron.EntryID),
	}
}

// dailyCronExpr converts an "HH:MM" wall-clock string into a 5-field
// cron expression firing once a day at that UTC time. An unparseable
// value falls back to 13:00 UTC, the documented default.
func dailyCronExpr(hhmm string) string {
	var hour, minute int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &hour, &minute); err != nil {
		hour, minute = 13, 0
	}
	return fmt.Sprintf("%d %d * * *", minute, hour)
}

// RegisterCycle wires a handler to one of the three pre-configured
// cycles.
func (s *Service) RegisterCycle(name string, handler interfaces.CycleHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schedules[name]; !ok {
		return fmt.Errorf("unknown cycle %q", name)
	}
	s.handlers[name] = handler
	return nil
}

// Start activates all registered tickers and the cron scheduler.
// Idempotent.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.stopCh = make(chan struct{})

	for name, sched := range s.schedules {
		handler, ok := s.handlers[name]
		if !ok {
			s.logger.Warn().Str("cycle", name).Msg("cycle has no registered handler, skipping")
			continue
		}

		if sched.tickInterval > 0 {
			ticker := time.NewTicker(sched.tickInterval)
			s.tickers[name] = ticker
			s.wg.Add(1)
			go s.runTicker(name, sched, handler, ticker)
			continue
		}

		name, sched, handler := name, sched, handler
		entryID, err := s.cron.AddFunc(sched.cronExpr, func() {
			s.runOnce(context.Background(), name, sched, handler)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule cycle %q: %w", name, err)
		}
		s.cronIDs[name] = entryID
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().Msg("scheduler started")
	return nil
}

func (s *Service) runTicker(name string, sched cycleSchedule, handler interfaces.CycleHandler, ticker *time.Ticker) {
	defer s.wg.Done()
	for {
		select {
		case <-ticker.C:
			s.runOnce(context.Background(), name, sched, handler)
		case <-s.stopCh:
			return
		}
	}
}

// Stop halts new ticks and waits up to the context deadline for
// in-flight handlers.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	for _, t := range s.tickers {
		t.Stop()
	}
	s.cron.Stop()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn().Msg("scheduler stop deadline exceeded, in-flight handlers may still be running")
	}

	s.logger.Info().Msg("scheduler stopped")
	return nil
}

// TriggerNow runs a cycle immediately, still subject to the lock
// protocol.
func (s *Service) TriggerNow(ctx context.Context, name string) error {
	s.mu.Lock()
	sched, ok := s.schedules[name]
	handler, hasHandler := s.handlers[name]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown cycle %q", name)
	}
	if !hasHandler {
		return fmt.Errorf("cycle %q has no registered handler", name)
	}

	return s.executeLocked(ctx, name, sched, handler)
}

// IsRunning reports whether Start has been called and Stop has not.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// runOnce executes one tick, swallowing and logging any error so a
// handler panic/exception never crashes the process per 4.1's failure
// semantics. Lock acquisition failures (another replica already holds
// the lock) are not logged as errors — that is the expected steady
// state of a multi-replica deployment. A tripped safeguard
// (ErrPolicyBlock) is likewise not a failure from the scheduler's
// perspective: the handler already alerted once, so the tick is
// reported as a successful, intentionally-skipped cycle.
func (s *Service) runOnce(ctx context.Context, name string, sched cycleSchedule, handler interfaces.CycleHandler) {
	if err := s.executeLocked(ctx, name, sched, handler); err != nil {
		if errors.Is(err, vetcoreerrors.ErrPolicyBlock) {
			s.logger.Debug().Err(err).Str("cycle", name).Msg("cycle blocked by policy, treated as success")
			return
		}
		s.logger.Error().Err(err).Str("cycle", name).Msg("cycle handler failed")
	}
}

// executeLocked implements 4.1's lock protocol: TTL 1.5x expected
// runtime, renewal at <= TTL/3, release on completion or failure,
// skip-don't-queue when another replica already holds the lock.
func (s *Service) executeLocked(ctx context.Context, name string, sched cycleSchedule, handler interfaces.CycleHandler) error {
	if setting, err := s.locks.GetSetting(ctx, name); err == nil && setting != nil && !setting.Enabled {
		s.logger.Debug().Str("cycle", name).Msg("cycle disabled by operator, skipping tick")
		return nil
	}

	ttlSeconds := int64(sched.expectedRuntime.Seconds() * 1.5)
	if ttlSeconds <= 0 {
		ttlSeconds = 60
	}

	acquired, err := s.locks.TryAcquire(ctx, name, s.environment, s.ownerID, ttlSeconds)
	if err != nil {
		return fmt.Errorf("failed to acquire lock for cycle %q: %w", name, err)
	}
	if !acquired {
		s.logger.Debug().Str("cycle", name).Msg("cycle lock held by another replica, skipping tick")
		return nil
	}

	renewInterval := time.Duration(ttlSeconds/3) * time.Second
	if renewInterval <= 0 {
		renewInterval = time.Second
	}
	renewStop := make(chan struct{})
	var renewWg sync.WaitGroup
	renewWg.Add(1)
	go func() {
		defer renewWg.Done()
		ticker := time.NewTicker(renewInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := s.locks.Renew(ctx, name, s.environment, s.ownerID, ttlSeconds); err != nil {
					s.logger.Warn().Err(err).Str("cycle", name).Msg("failed to renew cycle lock")
				}
			case <-renewStop:
				return
			}
		}
	}()

	handlerErr := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("cycle %q handler panicked: %v", name, r)
			}
		}()
		return handler(ctx)
	}()

	close(renewStop)
	renewWg.Wait()

	if releaseErr := s.locks.Release(ctx, name, s.environment, s.ownerID); releaseErr != nil {
		s.logger.Warn().Err(releaseErr).Str("cycle", name).Msg("failed to release cycle lock")
	}

	s.recordRun(ctx, name, handlerErr)

	return handlerErr
}

// recordRun persists the cycle's last-run bookkeeping so the digest and
// the settings API can report it. Never touches Enabled. ErrPolicyBlock
// is recorded as "ok": spec.md guarantees these rows are accurate and
// monotonically advancing, and a tripped safeguard is not a handler
// failure — it is the handler correctly declining to proceed.
func (s *Service) recordRun(ctx context.Context, name string, runErr error) {
	status := "ok"
	if runErr != nil && !errors.Is(runErr, vetcoreerrors.ErrPolicyBlock) {
		status = "failed: " + runErr.Error()
	}

	enabled := true
	if existing, err := s.locks.GetSetting(ctx, name); err == nil && existing != nil {
		enabled = existing.Enabled
	}

	now := time.Now()
	setting := &models.JobSetting{
		Cycle:      name,
		Enabled:    enabled,
		LastRunAt:  &now,
		LastStatus: status,
	}
	if err := s.locks.SaveSetting(ctx, setting); err != nil {
		s.logger.Warn().Err(err).Str("cycle", name).Msg("failed to persist cycle run state")
	}
}
