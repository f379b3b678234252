package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/interfaces"
	"github.com/ternarybob/vetting-core/internal/models"
)

// FilterService implements interfaces.EmbeddingFilter (Layer 1): it
// eliminates obviously-mismatched (resume, job) pairs before Layer 2 spends
// an LLM call on them.
type FilterService struct {
	embedding   interfaces.EmbeddingService
	cache       interfaces.EmbeddingCacheStorage
	auditLog    interfaces.AuditLogStorage
	logger      arbor.ILogger
	threshold   float64
	minJobs     int
	maxTokens   int
}

// NewFilterService builds the Layer 1 filter. threshold, minJobs and
// maxTokens come from EmbeddingConfig (defaults 0.35, 5, 8000).
func NewFilterService(
	embedding interfaces.EmbeddingService,
	cache interfaces.EmbeddingCacheStorage,
	auditLog interfaces.AuditLogStorage,
	threshold float64,
	minJobs int,
	maxTokens int,
	logger arbor.ILogger,
) *FilterService {
	return &FilterService{
		embedding: embedding,
		cache:     cache,
		auditLog:  auditLog,
		logger:    logger,
		threshold: threshold,
		minJobs:   minJobs,
		maxTokens: maxTokens,
	}
}

// Filter evaluates candidateJobs against resumeText and returns the pairs
// that survive to Layer 2. appliedJobID always survives (S2); if fewer
// than minJobs pairs pass the threshold, the top pairs by similarity are
// added regardless (S1).
func (s *FilterService) Filter(ctx context.Context, candidateID, resumeText, appliedJobID string, candidateJobs []models.Job) ([]interfaces.EmbeddingFilterPair, error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("panic", fmt.Sprintf("%v", r)).Str("candidate_id", candidateID).Msg("PANIC RECOVERED in embedding filter")
		}
	}()

	truncated := truncateForEmbedding(resumeText, s.maxTokens)
	resumeVector, err := s.embedding.Embed(ctx, truncated)
	if err != nil {
		s.logger.Warn().Err(err).Str("candidate_id", candidateID).Msg("resume embedding failed, bypassing Layer 1 filter for this candidate")
		return s.bypassAll(candidateJobs), nil
	}

	type scored struct {
		jobID      string
		similarity float64
		isApplied  bool
	}
	scoredJobs := make([]scored, 0, len(candidateJobs))

	for i := range candidateJobs {
		job := &candidateJobs[i]
		vector, err := s.jobVector(ctx, job)
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("job embedding unavailable, skipping from Layer 1 comparison")
			continue
		}
		sim := cosineSimilarity(resumeVector, vector)
		scoredJobs = append(scoredJobs, scored{jobID: job.JobID, similarity: sim, isApplied: job.JobID == appliedJobID})
	}

	sort.Slice(scoredJobs, func(i, j int) bool { return scoredJobs[i].similarity > scoredJobs[j].similarity })

	passed := make(map[string]bool)
	result := make([]interfaces.EmbeddingFilterPair, 0, len(scoredJobs))

	for _, sj := range scoredJobs {
		if sj.similarity >= s.threshold {
			passed[sj.jobID] = true
			result = append(result, interfaces.EmbeddingFilterPair{JobID: sj.jobID, Similarity: sj.similarity})
		}
	}

	// S1: minimum-pass safeguard.
	if len(result) < s.minJobs {
		for _, sj := range scoredJobs {
			if len(result) >= s.minJobs {
				break
			}
			if passed[sj.jobID] {
				continue
			}
			passed[sj.jobID] = true
			result = append(result, interfaces.EmbeddingFilterPair{JobID: sj.jobID, Similarity: sj.similarity, Safeguard: true})
		}
	}

	// S2: applied-job bypass — always present, even if never scored above
	// (e.g. outside every monitored tearsheet; the detector is responsible
	// for fetching it directly from the ATS before calling Filter).
	if appliedJobID != "" && !passed[appliedJobID] {
		sim := 0.0
		for _, sj := range scoredJobs {
			if sj.jobID == appliedJobID {
				sim = sj.similarity
				break
			}
		}
		result = append(result, interfaces.EmbeddingFilterPair{JobID: appliedJobID, Similarity: sim, Safeguard: true})
	}

	s.recordAudit(ctx, candidateID, scoredJobs, passed)

	return result, nil
}

func (s *FilterService) bypassAll(candidateJobs []models.Job) []interfaces.EmbeddingFilterPair {
	out := make([]interfaces.EmbeddingFilterPair, 0, len(candidateJobs))
	for i := range candidateJobs {
		out = append(out, interfaces.EmbeddingFilterPair{JobID: candidateJobs[i].JobID, Similarity: 0, Safeguard: true})
	}
	return out
}

func (s *FilterService) recordAudit(ctx context.Context, candidateID string, scoredJobs []struct {
	jobID      string
	similarity float64
	isApplied  bool
}, passed map[string]bool) {
	for _, sj := range scoredJobs {
		entry := &models.FilterLogEntry{
			ID:            uuid.NewString(),
			CandidateID:   candidateID,
			JobID:         sj.jobID,
			Similarity:    sj.similarity,
			ThresholdUsed: s.threshold,
			Filtered:      !passed[sj.jobID],
			Safeguard:     passed[sj.jobID] && sj.similarity < s.threshold,
			CreatedAt:     time.Now(),
		}
		if err := s.auditLog.RecordFilter(ctx, entry); err != nil {
			s.logger.Warn().Err(err).Str("job_id", sj.jobID).Msg("failed to record filter audit entry")
		}
	}
}

// jobVector returns job's embedding, computing and caching it if the
// description has changed since the cached vector was produced.
func (s *FilterService) jobVector(ctx context.Context, job *models.Job) ([]float32, error) {
	hash := descriptionHash(job.DescriptionHTML)

	entry, found, err := s.cache.Get(ctx, job.JobID, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding cache for job %s: %w", job.JobID, err)
	}
	if found {
		return entry.Vector, nil
	}

	text := truncateForEmbedding(job.Title+"\n\n"+job.DescriptionHTML, s.maxTokens)
	vector, err := s.embedding.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed job %s: %w", job.JobID, err)
	}

	cacheEntry := &models.EmbeddingCacheEntry{
		JobID:           job.JobID,
		DescriptionHash: hash,
		Vector:          vector,
		UpdatedAt:       time.Now(),
	}
	if err := s.cache.Put(ctx, cacheEntry); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("failed to cache job embedding")
	}

	return vector, nil
}

func descriptionHash(description string) string {
	sum := sha256.Sum256([]byte(description))
	return hex.EncodeToString(sum[:])
}

// truncateForEmbedding keeps the first 75% and last 25% of tokens when the
// estimated token count exceeds maxTokens, preserving contact/skills
// sections at the top and education/certifications at the bottom. Token
// count is estimated as len(text)/3 when no precise tokenizer is available.
func truncateForEmbedding(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	estimatedTokens := len(text) / 3
	if estimatedTokens <= maxTokens {
		return text
	}

	maxChars := maxTokens * 3
	headChars := (maxChars * 3) / 4
	tailChars := maxChars - headChars
	if headChars+tailChars >= len(text) {
		return text
	}
	return text[:headChars] + "\n...\n" + text[len(text)-tailChars:]
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
