// Package filename extracts detection metadata from the names the external
// detector gives its output images, e.g. ch1_Fall_Detection_2024-05-01_13-45-02.jpg.
package filename

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/V4T54L/detection-feed/internal/adapter/metrics"
)

// channel token, category words, then YYYY-MM-DD_HH-MM-SS; anything may follow.
var pattern = regexp.MustCompile(`^ch\d+_([A-Za-z_]+)_(\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2})`)

const isoLayout = "2006-01-02T15:04:05"

var (
	ErrNoMatch     = errors.New("filename does not match detection pattern")
	ErrInvalidDate = errors.New("filename embeds an invalid date")
)

// ParseTimestamp returns the date-time embedded in name, interpreted in loc
// (time.Local when nil).
func ParseTimestamp(name string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	m := pattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, ErrNoMatch
	}
	ts, err := time.ParseInLocation(isoLayout, canonical(m[2]), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	return ts, nil
}

// Category returns the human readable category words of a detection
// filename ("Fall_Detection" -> "Fall Detection").
func Category(name string) (string, bool) {
	m := pattern.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return strings.ReplaceAll(m[1], "_", " "), true
}

// canonical rewrites YYYY-MM-DD_HH-MM-SS as YYYY-MM-DDTHH:MM:SS.
func canonical(segment string) string {
	date, clock, _ := strings.Cut(segment, "_")
	return date + "T" + strings.ReplaceAll(clock, "-", ":")
}

// Parser wraps ParseTimestamp with the scan path's fallback: a filename that
// cannot be parsed is stamped with the current time instead of being rejected.
type Parser struct {
	loc     *time.Location
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewParser creates a Parser. m may be nil.
func NewParser(loc *time.Location, logger *slog.Logger, m *metrics.Metrics) *Parser {
	if loc == nil {
		loc = time.Local
	}
	return &Parser{
		loc:     loc,
		now:     time.Now,
		logger:  logger.With("component", "filename_parser"),
		metrics: m,
	}
}

// WithClock replaces the fallback clock.
func (p *Parser) WithClock(now func() time.Time) *Parser {
	p.now = now
	return p
}

// Timestamp never fails: on a non-matching name or an impossible date it
// returns the current time and records the fallback.
func (p *Parser) Timestamp(name string) time.Time {
	ts, err := ParseTimestamp(name, p.loc)
	if err == nil {
		return ts
	}

	reason := "no_match"
	if errors.Is(err, ErrInvalidDate) {
		reason = "invalid_date"
	}
	p.metrics.TimestampFallback(reason)
	p.logger.Warn("could not derive timestamp from filename, using current time",
		"filename", name,
		"reason", reason,
		"error", err,
	)
	return p.now().In(p.loc)
}
