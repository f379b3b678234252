package feed

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/common"
	"github.com/ternarybob/vetting-core/internal/interfaces"
	"github.com/ternarybob/vetting-core/internal/models"
	vetcoreerrors "github.com/ternarybob/vetting-core/internal/vetcore/errors"
)

const lastPublishedCountKey = "feed_last_published_job_count"
const zeroJobSafeguardFloor = 5

// Service orchestrates one freshness cycle: pull tearsheet jobs from
// the ATS, classify, build the XML, enforce SG-1, and publish.
type Service struct {
	ats        interfaces.ATSClient
	classifier interfaces.Classifier
	builder    interfaces.FeedBuilder
	publisher  interfaces.FeedPublisher
	mailer     interfaces.Mailer
	dedup      interfaces.DedupLedger
	kv         interfaces.KeyValueStorage
	atsCfg     common.ATSConfig
	feedCfg    common.FeedConfig
	alertTo    []string
	logger     arbor.ILogger
}

func NewService(
	ats interfaces.ATSClient,
	classifier interfaces.Classifier,
	builder interfaces.FeedBuilder,
	publisher interfaces.FeedPublisher,
	mailer interfaces.Mailer,
	dedup interfaces.DedupLedger,
	kv interfaces.KeyValueStorage,
	atsCfg common.ATSConfig,
	feedCfg common.FeedConfig,
	alertTo []string,
	logger arbor.ILogger,
) *Service {
	return &Service{
		ats:        ats,
		classifier: classifier,
		builder:    builder,
		publisher:  publisher,
		mailer:     mailer,
		dedup:      dedup,
		kv:         kv,
		atsCfg:    atsCfg,
		feedCfg:    feedCfg,
		alertTo:    alertTo,
		logger:     logger,
	}
}

// Run executes one freshness cycle. Returns vetcoreerrors.ErrPolicyBlock
// when the freeze switch is set or SG-1 trips, which callers (the
// scheduler) treat as a successful, intentionally-skipped cycle.
func (s *Service) Run(ctx context.Context) error {
	if s.feedCfg.Frozen {
		s.logger.Warn().Msg("feed builder frozen, skipping cycle")
		return fmt.Errorf("feed builder is frozen: %w", vetcoreerrors.ErrPolicyBlock)
	}

	jobs, err := s.collectJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to collect tearsheet jobs: %w", err)
	}

	lastCount := s.lastPublishedCount(ctx)
	if len(jobs) == 0 && lastCount >= zeroJobSafeguardFloor {
		s.alert(ctx, string(models.ChannelEmailZeroJobAlert), "zero-job-safeguard",
			"feed zero-job safeguard tripped",
			fmt.Sprintf("Tearsheet query returned 0 jobs while the last published feed had %d. Publish aborted; existing remote file left untouched.", lastCount))
		return fmt.Errorf("tearsheet query returned 0 jobs against a published feed of %d: %w", lastCount, vetcoreerrors.ErrPolicyBlock)
	}

	tags := make(map[string]interfaces.ClassificationTag, len(jobs))
	for i := range jobs {
		tag, err := s.classifier.Classify(ctx, &jobs[i])
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobs[i].JobID).Msg("classification failed, using empty tag")
			continue
		}
		tags[jobs[i].JobID] = tag
	}

	body, err := s.builder.Build(ctx, jobs, tags)
	if err != nil {
		return fmt.Errorf("failed to build feed: %w", err)
	}

	if err := s.publisher.Publish(ctx, body); err != nil {
		s.alert(ctx, string(models.ChannelEmailXMLUpload), "upload-failure", "feed publish failed",
			fmt.Sprintf("Feed upload failed after retries: %v", err))
		return fmt.Errorf("failed to publish feed: %w", err)
	}

	if err := s.kv.Set(ctx, lastPublishedCountKey, strconv.Itoa(len(jobs)), "last published feed job count"); err != nil {
		s.logger.Warn().Err(err).Msg("failed to persist last published job count")
	}

	s.logger.Info().Int("job_count", len(jobs)).Msg("feed cycle completed")
	return nil
}

func (s *Service) collectJobs(ctx context.Context) ([]models.Job, error) {
	exclude := make(map[string]bool, len(s.atsCfg.ExcludeJobIDs))
	for _, id := range s.atsCfg.ExcludeJobIDs {
		exclude[id] = true
	}

	var jobs []models.Job
	seen := make(map[string]bool)
	for _, tearsheetID := range s.atsCfg.TearsheetIDs {
		tsJobs, err := s.ats.ListTearsheetJobs(ctx, tearsheetID)
		if err != nil {
			return nil, err
		}
		for _, job := range tsJobs {
			if exclude[job.JobID] || seen[job.JobID] {
				continue
			}
			seen[job.JobID] = true
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

func (s *Service) lastPublishedCount(ctx context.Context) int {
	raw, err := s.kv.Get(ctx, lastPublishedCountKey)
	if err != nil || raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

// alert sends a de-duplicated operator alert on channel keyed by key:
// a given kind of alert fires at most once per the channel's configured
// window, even if the underlying condition persists across cycles.
func (s *Service) alert(ctx context.Context, channel, key, subject, body string) {
	if recent, err := s.dedup.HasRecent(ctx, channel, key); err == nil && recent {
		return
	}

	if len(s.alertTo) == 0 {
		s.logger.Error().Str("subject", subject).Msg(body)
		return
	}

	deliveryID, err := s.mailer.Send(ctx, s.alertTo, nil, nil, subject, "<p>"+body+"</p>", body)
	status := "sent"
	if err != nil {
		status = "failed"
		s.logger.Error().Err(err).Str("subject", subject).Msg("failed to send feed alert email")
	}
	if recErr := s.dedup.Record(ctx, channel, key, deliveryID, status); recErr != nil {
		s.logger.Warn().Err(recErr).Str("channel", channel).Msg("failed to record feed alert in dedup ledger")
	}
}
