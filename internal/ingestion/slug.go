package ingestion

import (
	"strconv"
	"strings"
	"unicode"
)

// Slugger derives stable, unique article keys from titles. Repeated titles get
// a numeric suffix in order of appearance.
type Slugger struct {
	seen map[string]int
}

func NewSlugger() *Slugger {
	return &Slugger{seen: make(map[string]int)}
}

func (s *Slugger) Slug(title string) string {
	base := slugify(title)
	if base == "" {
		base = "article"
	}
	s.seen[base]++
	if n := s.seen[base]; n > 1 {
		return base + "-" + strconv.Itoa(n)
	}
	return base
}

func slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
