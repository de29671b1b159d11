package textutil

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Sanitizer provides HTML sanitization and plain-text stripping.
type Sanitizer struct {
	strict *bluemonday.Policy
	ugc    *bluemonday.Policy
}

// NewSanitizer builds the shared policies once; bluemonday policies are safe
// for concurrent use.
func NewSanitizer() *Sanitizer {
	ugc := bluemonday.UGCPolicy()
	ugc.RequireNoFollowOnLinks(true)
	return &Sanitizer{
		strict: bluemonday.StrictPolicy(),
		ugc:    ugc,
	}
}

// CleanHTML sanitizes stored article HTML, keeping basic formatting tags.
func (s *Sanitizer) CleanHTML(html string) string {
	return strings.TrimSpace(s.ugc.Sanitize(html))
}

// PlainText strips all markup and collapses whitespace runs, producing text
// suitable for narration or prompting.
func (s *Sanitizer) PlainText(html string) string {
	text := s.strict.Sanitize(html)
	text = whitespaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Truncate cuts s to at most limit runes. The second return reports whether
// any truncation happened.
func Truncate(s string, limit int) (string, bool) {
	if limit <= 0 {
		return s, false
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s, false
	}
	return string(runes[:limit]), true
}
