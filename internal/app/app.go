// -----------------------------------------------------------------------
// Last Modified: Thursday, 30th July 2026 12:00:00 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vetting-core/internal/common"
	"github.com/ternarybob/vetting-core/internal/interfaces"
	"github.com/ternarybob/vetting-core/internal/services/aggregator"
	"github.com/ternarybob/vetting-core/internal/services/ats"
	"github.com/ternarybob/vetting-core/internal/services/dedup"
	"github.com/ternarybob/vetting-core/internal/services/detector"
	"github.com/ternarybob/vetting-core/internal/services/digest"
	"github.com/ternarybob/vetting-core/internal/services/embeddings"
	"github.com/ternarybob/vetting-core/internal/services/feed"
	"github.com/ternarybob/vetting-core/internal/services/health"
	"github.com/ternarybob/vetting-core/internal/services/kv"
	"github.com/ternarybob/vetting-core/internal/services/llm"
	"github.com/ternarybob/vetting-core/internal/services/mailer"
	"github.com/ternarybob/vetting-core/internal/services/pdf"
	"github.com/ternarybob/vetting-core/internal/services/resume"
	"github.com/ternarybob/vetting-core/internal/services/scheduler"
	"github.com/ternarybob/vetting-core/internal/services/scorer"
	"github.com/ternarybob/vetting-core/internal/services/vetting"
	"github.com/ternarybob/vetting-core/internal/storage/badger"
)

// App holds every component the vetting core wires together: the
// durable storage manager, the thirteen domain components, and the
// scheduler/health surfaces that drive and observe them.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	ctx       context.Context
	cancelCtx context.CancelFunc

	StorageManager interfaces.StorageManager

	Mailer *mailer.Service
	Dedup  *dedup.Service

	ATSClient     *ats.Client
	PDFExtractor  *pdf.Extractor
	ResumeService *resume.Service

	ProviderFactory  *llm.ProviderFactory
	EmbeddingService interfaces.EmbeddingService
	EmbeddingFilter  *embeddings.FilterService
	ScorerL2         *scorer.Service
	ScorerL3         *scorer.Service

	Detector   *detector.Service
	Aggregator *aggregator.Service
	Pipeline   *vetting.Pipeline

	FeedBuilder   *feed.Builder
	FeedPublisher *feed.Publisher
	Classifier    interfaces.Classifier
	FeedService   *feed.Service

	Digest *digest.Service

	Scheduler     *scheduler.Service
	HealthService *health.Service
	HealthServer  *health.Server
}

// New wires the whole application from configuration. Nothing is
// started yet; callers invoke Start (or drive the scheduler/health
// server directly) once New returns successfully.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	storageManager, err := badger.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.StorageManager = storageManager
	kvStorage := storageManager.KeyValueStorage()
	kvService := kv.NewService(kvStorage, logger)

	a.Mailer = mailer.NewService(cfg.Mail, kvStorage, logger)
	a.Dedup = dedup.NewService(storageManager.DeliveryLedgerStorage(), cfg.Dedup, logger)

	a.ATSClient = ats.NewClient(cfg.ATS, logger)
	a.PDFExtractor = pdf.NewExtractor(logger)
	a.ResumeService = resume.NewService(a.ATSClient, storageManager.ResumeCacheStorage(), a.PDFExtractor, logger)

	a.ProviderFactory = llm.NewProviderFactory(&cfg.Gemini, &cfg.Claude, &cfg.LLM, kvStorage, logger)

	premiumL2 := cfg.LLM.PrimaryModel != "" && cfg.LLM.PrimaryModel == cfg.LLM.EscalationModel
	a.ScorerL2 = scorer.New(a.ProviderFactory, cfg.LLM.PrimaryModel, premiumL2, logger)
	a.ScorerL3 = scorer.New(a.ProviderFactory, cfg.LLM.EscalationModel, true, logger)

	embeddingDimension := 768
	a.EmbeddingService = embeddings.NewService(cfg.Embedding.OllamaURL, cfg.LLM.EmbeddingModel, embeddingDimension, logger)
	a.EmbeddingFilter = embeddings.NewFilterService(
		a.EmbeddingService,
		storageManager.EmbeddingCacheStorage(),
		storageManager.AuditLogStorage(),
		orDefaultFloat(cfg.Embedding.Threshold, 0.35),
		orDefaultInt(cfg.Embedding.MinJobs, 5),
		orDefaultInt(cfg.Embedding.MaxTokens, 8000),
		logger,
	)

	a.Detector = detector.NewService(storageManager.ApplicationStorage(), a.ATSClient, cfg.Vetting, cfg.ATS, logger)
	a.Aggregator = aggregator.NewService(
		storageManager.VettingRunStorage(),
		storageManager.ApplicationStorage(),
		storageManager.RequirementsStorage(),
		storageManager.JobCacheStorage(),
		a.ATSClient,
		a.Mailer,
		a.Dedup,
		cfg.Scoring,
		cfg.Mail,
		logger,
	)

	a.Pipeline = vetting.NewPipeline(
		a.Detector,
		a.ResumeService,
		storageManager.JobCacheStorage(),
		storageManager.RequirementsStorage(),
		storageManager.VettingRunStorage(),
		storageManager.AuditLogStorage(),
		a.EmbeddingFilter,
		a.ScorerL2,
		a.ScorerL3,
		a.Aggregator,
		a.ATSClient,
		kvService,
		a.ProviderFactory,
		cfg.LLM.PrimaryModel,
		cfg.ATS,
		cfg.Vetting,
		cfg.Scoring,
		cfg.Workers.ScoringPoolSize,
		logger,
	)

	a.FeedBuilder = feed.NewBuilder(storageManager.ReferenceStorage(), cfg.Feed, logger)
	a.FeedPublisher = feed.NewPublisher(cfg.Remote, logger)
	a.Classifier = feed.NewNullClassifier()
	a.FeedService = feed.NewService(
		a.ATSClient,
		a.Classifier,
		a.FeedBuilder,
		a.FeedPublisher,
		a.Mailer,
		a.Dedup,
		kvStorage,
		cfg.ATS,
		cfg.Feed,
		adminRecipients(cfg.Mail.AdminBCC),
		logger,
	)

	a.Digest = digest.NewService(
		storageManager.RequirementsStorage(),
		storageManager.ReferenceStorage(),
		storageManager.SchedulerLockStorage(),
		a.Mailer,
		cfg.Environment,
		adminRecipients(cfg.Mail.AdminBCC),
		logger,
	)

	a.Scheduler = scheduler.NewService(storageManager.SchedulerLockStorage(), cfg.Vetting, cfg.Environment, logger)
	if err := a.Scheduler.RegisterCycle("vetting", a.Pipeline.Run); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to register vetting cycle: %w", err)
	}
	if err := a.Scheduler.RegisterCycle("publish", a.FeedService.Run); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to register publish cycle: %w", err)
	}
	if err := a.Scheduler.RegisterCycle("digest", a.Digest.Run); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to register digest cycle: %w", err)
	}

	a.HealthService = health.NewService(kvStorage, storageManager.SchedulerLockStorage(), a.ATSClient, a.Scheduler, cfg.Environment, cfg.Vetting, logger)
	a.HealthServer = health.NewServer(a.HealthService, cfg.Server, a.Digest.Run, cfg.Cron.BearerSecret, logger)

	return a, nil
}

// Start activates the scheduler and begins serving the health/cron HTTP
// surface. The health server blocks its caller, so it runs in its own
// goroutine; its startup error (other than a clean shutdown) is logged,
// not returned, since by the time it would fail the scheduler is already
// ticking.
func (a *App) Start() error {
	if err := a.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	go func() {
		if err := a.HealthServer.Start(); err != nil {
			a.Logger.Error().Err(err).Msg("health server stopped unexpectedly")
		}
	}()

	return nil
}

// Close stops the scheduler and health server and releases storage.
func (a *App) Close() error {
	defer a.cancelCtx()

	if err := a.Scheduler.Stop(a.ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("scheduler did not stop cleanly")
	}
	if err := a.HealthServer.Shutdown(a.ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("health server did not shut down cleanly")
	}

	common.Stop()

	if a.StorageManager != nil {
		return a.StorageManager.Close()
	}
	return nil
}

func orDefaultFloat(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// adminRecipients splits the configured admin BCC field on commas so a
// single config value can carry more than one operator address.
func adminRecipients(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
