// Package feed implements the Feed Builder & Publisher (C4): composes
// the bit-exact XML feed from ATS jobs plus the reference store and
// uploads it to the remote file drop.
package feed

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/common"
	"github.com/ternarybob/vetting-core/internal/interfaces"
	"github.com/ternarybob/vetting-core/internal/models"
)

// feedSource mirrors 6.2's root <source> element.
type feedSource struct {
	XMLName xml.Name  `xml:"source"`
	Title   string    `xml:"title"`
	Link    string    `xml:"link"`
	Jobs    []feedJob `xml:"job"`
}

// feedJob mirrors 6.2's per-job child element, in the mandated field
// order. Human-text fields use the ",cdata" tag so encoding/xml wraps
// them in character-data sections instead of entity-escaping them.
type feedJob struct {
	Title             string `xml:"title,cdata"`
	Date              string `xml:"date"`
	ReferenceNumber   string `xml:"referencenumber"`
	BhatsID           string `xml:"bhatsid"`
	Company           string `xml:"company"`
	URL               string `xml:"url"`
	Description       string `xml:"description,cdata"`
	JobType           string `xml:"jobtype"`
	City              string `xml:"city"`
	State             string `xml:"state"`
	Country           string `xml:"country"`
	Category          string `xml:"category"`
	ApplyEmail        string `xml:"apply_email"`
	RemoteType        string `xml:"remotetype"`
	AssignedRecruiter string `xml:"assignedrecruiter,cdata"`
	JobFunction       string `xml:"jobfunction,cdata"`
	JobIndustries     string `xml:"jobindustries,cdata"`
	SeniorityLevel    string `xml:"senioritylevel,cdata"`
}

const dateLayout = "2006-01-02"

// Builder implements interfaces.FeedBuilder.
type Builder struct {
	references interfaces.ReferenceStorage
	validate   *validator.Validate
	cfg        common.FeedConfig
	logger     arbor.ILogger
}

var _ interfaces.FeedBuilder = (*Builder)(nil)

func NewBuilder(references interfaces.ReferenceStorage, cfg common.FeedConfig, logger arbor.ILogger) *Builder {
	return &Builder{
		references: references,
		validate:   validator.New(),
		cfg:        cfg,
		logger:     logger,
	}
}

// Build renders the feed, sorted by bhatsid (job_id) ascending so
// identical inputs always produce byte-identical output (P-DET).
// Jobs failing struct validation are skipped and logged rather than
// aborting the whole build, since one malformed upstream record
// shouldn't take the entire feed down.
func (b *Builder) Build(ctx context.Context, jobs []models.Job, tags map[string]interfaces.ClassificationTag) ([]byte, error) {
	valid := make([]models.Job, 0, len(jobs))
	for _, job := range jobs {
		if err := b.validate.Struct(job); err != nil {
			b.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("skipping invalid job from feed build")
			continue
		}
		valid = append(valid, job)
	}

	sort.Slice(valid, func(i, j int) bool { return valid[i].JobID < valid[j].JobID })

	jobIDs := make([]string, len(valid))
	for i, job := range valid {
		jobIDs[i] = job.JobID
	}
	refTokens, err := b.references.LoadOrMint(ctx, jobIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference tokens: %w", err)
	}

	feedJobs := make([]feedJob, 0, len(valid))
	for _, job := range valid {
		loc := normalizeLocation(job)
		tag := tags[job.JobID]
		feedJobs = append(feedJobs, feedJob{
			Title:             job.Title,
			Date:              job.PostedAt.Format(dateLayout),
			ReferenceNumber:   refTokens[job.JobID],
			BhatsID:           job.JobID,
			Company:           b.cfg.CompanyName,
			URL:               b.cfg.ApplyURLBase + job.JobID,
			Description:       job.DescriptionHTML,
			JobType:           string(job.WorkType),
			City:              loc.City,
			State:             loc.State,
			Country:           loc.Country,
			Category:          tag.JobFunction,
			ApplyEmail:        job.Owner.Email,
			RemoteType:        string(job.WorkType),
			AssignedRecruiter: job.Owner.Name,
			JobFunction:       tag.JobFunction,
			JobIndustries:     tag.JobIndustries,
			SeniorityLevel:    tag.SeniorityLevel,
		})
	}

	source := feedSource{
		Title: b.cfg.CompanyName,
		Link:  b.cfg.ApplyURLBase,
		Jobs:  feedJobs,
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(source); err != nil {
		return nil, fmt.Errorf("failed to encode feed XML: %w", err)
	}

	return buf.Bytes(), nil
}
