// Package digest implements the daily digest cycle: a once-a-day
// operator summary of vetting activity and scheduler health, sent by
// email and also triggerable over HTTP by an external cron caller.
package digest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/interfaces"
)

// Service composes and sends the daily digest email.
type Service struct {
	requirements interfaces.RequirementsStorage
	references   interfaces.ReferenceStorage
	locks        interfaces.SchedulerLockStorage
	mailer       interfaces.Mailer
	environment  string
	recipients   []string
	logger       arbor.ILogger
}

func NewService(
	requirements interfaces.RequirementsStorage,
	references interfaces.ReferenceStorage,
	locks interfaces.SchedulerLockStorage,
	mailer interfaces.Mailer,
	environment string,
	recipients []string,
	logger arbor.ILogger,
) *Service {
	return &Service{
		requirements: requirements,
		references:   references,
		locks:        locks,
		mailer:       mailer,
		environment:  environment,
		recipients:   recipients,
		logger:       logger,
	}
}

// Run is the scheduler's "digest" CycleHandler and is also what the
// bearer-authenticated HTTP trigger invokes directly.
func (s *Service) Run(ctx context.Context) error {
	body, err := s.compose(ctx)
	if err != nil {
		return fmt.Errorf("failed to compose digest: %w", err)
	}

	if len(s.recipients) == 0 {
		s.logger.Info().Str("digest", body).Msg("daily digest composed, no recipients configured")
		return nil
	}

	if _, err := s.mailer.Send(ctx, s.recipients, nil, nil, "Vetting Core — Daily Digest", "<pre>"+body+"</pre>", body); err != nil {
		return fmt.Errorf("failed to send daily digest: %w", err)
	}
	return nil
}

func (s *Service) compose(ctx context.Context) (string, error) {
	reqs, err := s.requirements.All(ctx)
	if err != nil {
		return "", err
	}
	refs, err := s.references.All(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Daily digest for %s — %s\n\n", s.environment, time.Now().Format("2006-01-02"))
	fmt.Fprintf(&b, "Tracked job requirements: %d\n", len(reqs))
	fmt.Fprintf(&b, "Published reference tokens: %d\n\n", len(refs))

	b.WriteString("Cycle status:\n")
	for _, cycle := range []string{"vetting", "publish", "digest"} {
		setting, err := s.locks.GetSetting(ctx, cycle)
		if err != nil || setting == nil {
			fmt.Fprintf(&b, "  %s: no run recorded\n", cycle)
			continue
		}
		lastRun := "never"
		if setting.LastRunAt != nil {
			lastRun = setting.LastRunAt.Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "  %s: last_run=%s status=%s\n", cycle, lastRun, setting.LastStatus)
	}

	return b.String(), nil
}
