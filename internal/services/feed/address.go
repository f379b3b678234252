package feed

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/vetting-core/internal/models"
)

// normalizeLocation fills any of city/state/country missing on a job's
// structured location from its free-text address1 field, per 4.4's
// "normalize address (fill missing city/state/country from free-text
// address1)." address1 sometimes carries markup from the ATS's rich
// text editor, so it is run through goquery to get at the underlying
// text before splitting on commas.
func normalizeLocation(job models.Job) models.Location {
	loc := job.Location
	if loc.City != "" && loc.State != "" && loc.Country != "" {
		return loc
	}
	if job.Address1 == "" {
		return loc
	}

	parts := addressParts(htmlToText(job.Address1))
	if len(parts) == 0 {
		return loc
	}

	// The free-text address is assumed to end ..., city, state, country;
	// take however many trailing comma-separated segments are needed to
	// fill whichever fields are still empty.
	fields := []*string{&loc.Country, &loc.State, &loc.City}
	for i, field := range fields {
		if *field != "" {
			continue
		}
		idx := len(parts) - 1 - i
		if idx < 0 {
			continue
		}
		*field = parts[idx]
	}
	return loc
}

func htmlToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}
	return strings.TrimSpace(doc.Text())
}

func addressParts(text string) []string {
	raw := strings.Split(text, ",")
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
