package aggregator

import (
	"fmt"
	"strings"

	"github.com/ternarybob/vetting-core/internal/interfaces"
)

// composeNote builds 4.10's candidate note: "QUALIFIED CANDIDATE" when
// at least one pair cleared its threshold, otherwise "NOT RECOMMENDED"
// listing the top 5 pairs by score.
func composeNote(input interfaces.AggregationInput, pairs []qualifiedPair, qualified []qualifiedPair) (title, body string) {
	if len(qualified) > 0 {
		return composeQualifiedNote(input, qualified)
	}
	return composeNotRecommendedNote(input, pairs)
}

func composeQualifiedNote(input interfaces.AggregationInput, qualified []qualifiedPair) (string, string) {
	var b strings.Builder
	b.WriteString("QUALIFIED CANDIDATE\n\n")

	var applied *qualifiedPair
	var others []qualifiedPair
	for i := range qualified {
		if qualified[i].match.IsAppliedJob {
			applied = &qualified[i]
		} else {
			others = append(others, qualified[i])
		}
	}

	if applied != nil {
		b.WriteString("APPLIED POSITION (QUALIFIED)\n")
		b.WriteString(formatPair(*applied))
		b.WriteString("\n")
	} else if input.AppliedJobID != "" {
		b.WriteString("APPLIED POSITION:\n")
		b.WriteString(fmt.Sprintf("  job_id=%s (not among qualifying positions)\n\n", input.AppliedJobID))
	}

	if len(others) > 0 {
		b.WriteString("OTHER QUALIFIED POSITIONS\n")
		for _, p := range others {
			b.WriteString(formatPair(p))
		}
	}

	return "QUALIFIED CANDIDATE", b.String()
}

func composeNotRecommendedNote(input interfaces.AggregationInput, pairs []qualifiedPair) (string, string) {
	var b strings.Builder
	b.WriteString("NOT RECOMMENDED\n\n")

	top := pairs
	if len(top) > 5 {
		top = top[:5]
	}

	appliedIncluded := false
	for _, p := range top {
		if p.match.IsAppliedJob {
			appliedIncluded = true
		}
		b.WriteString(formatPairWithGaps(p))
	}

	if !appliedIncluded && input.AppliedJobID != "" {
		for _, p := range pairs {
			if p.match.IsAppliedJob {
				b.WriteString("APPLIED POSITION:\n")
				b.WriteString(formatPairWithGaps(p))
				break
			}
		}
	}

	return "NOT RECOMMENDED", b.String()
}

func formatPair(p qualifiedPair) string {
	title := p.match.JobID
	if p.job != nil {
		title = p.job.Title
	}
	label := ""
	if p.match.IsAppliedJob {
		label = " [APPLIED]"
	}
	return fmt.Sprintf("  %s%s - score %d\n  %s\n  skills: %s\n\n", title, label, p.match.Score, p.match.Summary, strings.Join(p.match.Skills, ", "))
}

func formatPairWithGaps(p qualifiedPair) string {
	title := p.match.JobID
	if p.job != nil {
		title = p.job.Title
	}
	label := ""
	if p.match.IsAppliedJob {
		label = " [APPLIED]"
	}
	return fmt.Sprintf("  %s%s - score %d\n  gaps: %s\n\n", title, label, p.match.Score, strings.Join(p.match.Gaps, "; "))
}

// composeEmail builds the consolidated qualification email. primaryTo
// identifies the recipient so their own job can be labelled "YOUR JOB"
// rather than "[NAME]'s Job".
func composeEmail(input interfaces.AggregationInput, qualified []qualifiedPair, primaryTo string) (subject, htmlBody, textBody string) {
	candidateName := input.CandidateID

	subject = fmt.Sprintf("Qualified candidate: %s", candidateName)

	var html, text strings.Builder
	html.WriteString(fmt.Sprintf("<p>Candidate <b>%s</b> qualified for the following position(s):</p><ul>", candidateName))
	text.WriteString(fmt.Sprintf("Candidate %s qualified for the following position(s):\n\n", candidateName))

	for _, p := range qualified {
		title := p.match.JobID
		ownerEmail := ""
		ownerName := ""
		if p.job != nil {
			title = p.job.Title
			ownerEmail = p.job.Owner.Email
			ownerName = p.job.Owner.Name
		}
		ownerLabel := "YOUR JOB"
		if ownerEmail != primaryTo {
			ownerLabel = fmt.Sprintf("%s's Job", ownerName)
		}
		appliedBadge := ""
		if p.match.IsAppliedJob {
			appliedBadge = " (applied)"
		}
		html.WriteString(fmt.Sprintf("<li>%s [%s]%s — score %d</li>", title, ownerLabel, appliedBadge, p.match.Score))
		text.WriteString(fmt.Sprintf("- %s [%s]%s — score %d\n", title, ownerLabel, appliedBadge, p.match.Score))
	}
	html.WriteString("</ul>")

	return subject, html.String(), text.String()
}
