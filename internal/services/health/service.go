// Package health implements the Health & Self-Monitor (C13): the three
// alive/ready/healthy signals exposed to the outside world.
package health

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/common"
	"github.com/ternarybob/vetting-core/internal/interfaces"
)

const heartbeatKey = "health_heartbeat"

// cycleExpectation maps a registered cycle name to the deadline its
// stuck-cycle check multiplies by 3.
type cycleExpectation struct {
	cycle           string
	environment     string
	expectedSeconds int64
}

// Service implements interfaces.Health.
type Service struct {
	kv         interfaces.KeyValueStorage
	locks      interfaces.SchedulerLockStorage
	ats        interfaces.ATSClient
	scheduler  interfaces.Scheduler
	cycles     []cycleExpectation
	logger     arbor.ILogger
}

var _ interfaces.Health = (*Service)(nil)

func NewService(
	kv interfaces.KeyValueStorage,
	locks interfaces.SchedulerLockStorage,
	ats interfaces.ATSClient,
	scheduler interfaces.Scheduler,
	environment string,
	vetting common.VettingConfig,
	logger arbor.ILogger,
) *Service {
	return &Service{
		kv:        kv,
		locks:     locks,
		ats:       ats,
		scheduler: scheduler,
		logger:    logger,
		cycles: []cycleExpectation{
			{cycle: "vetting", environment: environment, expectedSeconds: int64(vetting.CycleDeadlineSeconds)},
			{cycle: "publish", environment: environment, expectedSeconds: int64(vetting.PublishDeadlineSeconds)},
		},
	}
}

// Alive reports whether the process can respond at all: if this method
// runs, it can.
func (s *Service) Alive(ctx context.Context) bool {
	return true
}

// Ready checks that required external collaborators are reachable and
// the scheduler is running.
func (s *Service) Ready(ctx context.Context) (bool, map[string]error) {
	failures := make(map[string]error)

	if err := s.kv.Set(ctx, heartbeatKey, time.Now().Format(time.RFC3339), "health heartbeat"); err != nil {
		failures["storage"] = err
	}

	if err := s.ats.Authenticate(ctx); err != nil {
		failures["ats"] = err
	}

	if !s.scheduler.IsRunning() {
		failures["scheduler"] = errNotRunning
	}

	return len(failures) == 0, failures
}

// Healthy aggregates Ready plus a stuck-cycle check: no cycle's lock
// may be held longer than 3x its expected runtime.
func (s *Service) Healthy(ctx context.Context) (bool, map[string]error) {
	ready, failures := s.Ready(ctx)
	if failures == nil {
		failures = make(map[string]error)
	}

	for _, exp := range s.cycles {
		lock, err := s.locks.Get(ctx, exp.cycle, exp.environment)
		if err != nil || lock == nil {
			continue
		}
		if exp.expectedSeconds <= 0 {
			continue
		}
		heldFor := time.Since(lock.AcquiredAt)
		if heldFor > 3*time.Duration(exp.expectedSeconds)*time.Second {
			failures["stuck_cycle_"+exp.cycle] = errStuckCycle
			s.logger.Error().Str("cycle", exp.cycle).Dur("held_for", heldFor).Msg("cycle lock held beyond 3x expected runtime")
		}
	}

	return ready && len(failures) == 0, failures
}
