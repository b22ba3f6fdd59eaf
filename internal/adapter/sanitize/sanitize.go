package sanitize

import (
	"log/slog"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Sanitizer normalizes caller-supplied event metadata before it reaches the
// store. Empty results are left empty so defaults can be applied afterwards.
type Sanitizer struct {
	maxCategory    int
	maxDescription int
	logger         *slog.Logger
}

// NewSanitizer creates a Sanitizer. A non-positive limit disables truncation
// for that field.
func NewSanitizer(maxCategory, maxDescription int, logger *slog.Logger) *Sanitizer {
	return &Sanitizer{
		maxCategory:    maxCategory,
		maxDescription: maxDescription,
		logger:         logger,
	}
}

// Category trims, strips control characters and caps the category.
func (s *Sanitizer) Category(v string) string {
	return s.clean("category", v, s.maxCategory, false)
}

// Description is like Category but keeps line breaks and tabs.
func (s *Sanitizer) Description(v string) string {
	return s.clean("description", v, s.maxDescription, true)
}

func (s *Sanitizer) clean(field, v string, limit int, keepNewlines bool) string {
	v = strings.ToValidUTF8(v, "")
	v = strings.Map(func(r rune) rune {
		if keepNewlines && (r == '\n' || r == '\t') {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, v)
	v = strings.TrimSpace(v)

	if limit > 0 && utf8.RuneCountInString(v) > limit {
		s.logger.Debug("truncating upload field", "field", field, "limit", limit)
		v = strings.TrimSpace(string([]rune(v)[:limit]))
	}
	return v
}

// FileName reduces an uploaded file name to its base name using only
// letters, digits, '.', '-' and '_'. Other characters become '_'. Leading
// dots are dropped so the result never names a hidden file. Returns "" when
// nothing usable remains.
func FileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if len(out) > 200 {
		out = out[len(out)-200:]
	}
	return out
}
