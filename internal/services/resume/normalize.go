package resume

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	zeroWidthOrTab  = regexp.MustCompile(`[\x{200B}\x{200C}\x{200D}\x{FEFF}\t]`)
	whitespaceRun   = regexp.MustCompile(`[ \f\v\r\n]+`)
	blankLinesRun   = regexp.MustCompile(`\n{3,}`)
)

// pdfMergePatterns are common PDF-extraction artifacts where a resume
// builder's layout collapses adjacent words together, substituted back
// to their spaced form.
var pdfMergePatterns = []struct {
	pattern *regexp.Regexp
	replace string
}{
	{regexp.MustCompile(`PROFESSIONALSUMMARY`), "PROFESSIONAL SUMMARY"},
	{regexp.MustCompile(`WORKEXPERIENCE`), "WORK EXPERIENCE"},
	{regexp.MustCompile(`TECHNICALSKILLS`), "TECHNICAL SKILLS"},
	{regexp.MustCompile(`EDUCATIONANDTRAINING`), "EDUCATION AND TRAINING"},
}

// normalize applies 4.6's deterministic normalization pass: collapse
// zero-width/tab characters to a single space, collapse whitespace
// runs, split CamelCase boundaries, and fix up a small set of known
// PDF-extraction word merges.
func normalize(text string) string {
	text = zeroWidthOrTab.ReplaceAllString(text, " ")

	for _, p := range pdfMergePatterns {
		text = p.pattern.ReplaceAllString(text, p.replace)
	}

	text = splitCamelCase(text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(whitespaceRun.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankLinesRun.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}

// splitCamelCase inserts a space wherever an uppercase letter directly
// follows a lowercase letter, undoing the word-boundary loss that
// happens when a PDF extractor drops the whitespace between two
// differently-styled runs (e.g. a bolded heading glued to body text).
func splitCamelCase(text string) string {
	var b strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && unicode.IsLower(runes[i-1]) {
			b.WriteRune(' ')
		}
		// A capital that starts a new word after a run of capitals, e.g.
		// the "An" in "SUMMARYAn": split before the capital when it is
		// itself followed by a lowercase letter.
		if i > 0 && i+1 < len(runes) && unicode.IsUpper(r) && unicode.IsUpper(runes[i-1]) && unicode.IsLower(runes[i+1]) {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
