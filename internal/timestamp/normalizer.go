// Package timestamp converts the date notations found in article pages into one canonical UTC form.
package timestamp

import (
	"errors"
	"fmt"
	"strings"
	"time"

	// Embedded zone database so the home timezone resolves on minimal images.
	_ "time/tzdata"
)

// Layout names the notation a raw timestamp is written in.
type Layout int

const (
	// LayoutUTC is an already machine-readable instant, e.g. "2012-01-11T16:15:00.000Z".
	LayoutUTC Layout = iota
	// LayoutShortMonthAt is "Jan 12, 2012 at 03:15:00" in home time.
	LayoutShortMonthAt
	// LayoutLongMonth is "January 12, 2012 03:15:00" in home time.
	LayoutLongMonth
	// LayoutScreenReader is "Thursday 12 Jan 2012 at 3:15pm" in home time.
	LayoutScreenReader
)

// Canonical is the single output format of the normalizer.
const Canonical = "2006-01-02T15:04:05.000000Z"

// DefaultTimezone is the home zone of the harvested site.
const DefaultTimezone = "Australia/Melbourne"

const (
	utcTemplate          = "2006-01-02T15:04:05.999999999Z"
	shortMonthAtTemplate = "Jan 2, 2006 at 15:04:05"
	longMonthTemplate    = "January 2, 2006 15:04:05"
	screenReaderTemplate = "Monday 2 Jan 2006 at 3:04pm"
)

// ErrUnparseable is returned when text does not match the requested layout.
var ErrUnparseable = errors.New("unparseable timestamp")

// String returns the layout name used in logs.
func (l Layout) String() string {
	switch l {
	case LayoutUTC:
		return "utc"
	case LayoutShortMonthAt:
		return "short_month_at"
	case LayoutLongMonth:
		return "long_month"
	case LayoutScreenReader:
		return "screen_reader"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// Normalizer parses raw timestamps. It is immutable and safe for concurrent use.
type Normalizer struct {
	home *time.Location
}

// New returns a Normalizer for the named home timezone. An empty name selects DefaultTimezone.
func New(tz string) (*Normalizer, error) {
	if strings.TrimSpace(tz) == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return &Normalizer{home: loc}, nil
}

// Location returns the configured home timezone.
func (n *Normalizer) Location() *time.Location {
	return n.home
}

// Parse returns the UTC instant represented by text in the given layout.
func (n *Normalizer) Parse(text string, layout Layout) (time.Time, error) {
	clean := strings.Join(strings.Fields(text), " ")
	if clean == "" {
		return time.Time{}, fmt.Errorf("%w: empty input", ErrUnparseable)
	}

	var (
		t   time.Time
		err error
	)
	switch layout {
	case LayoutUTC:
		t, err = time.Parse(utcTemplate, clean)
		if err != nil {
			t, err = time.Parse(time.RFC3339Nano, clean)
		}
	case LayoutShortMonthAt:
		t, err = time.ParseInLocation(shortMonthAtTemplate, clean, n.home)
	case LayoutLongMonth:
		t, err = time.ParseInLocation(longMonthTemplate, clean, n.home)
	case LayoutScreenReader:
		t, err = time.ParseInLocation(screenReaderTemplate, strings.ToLower(clean), n.home)
	default:
		return time.Time{}, fmt.Errorf("%w: unknown layout %s", ErrUnparseable, layout)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q as %s: %v", ErrUnparseable, clean, layout, err)
	}
	return t.UTC(), nil
}

// Normalize parses text and renders it in the Canonical format.
func (n *Normalizer) Normalize(text string, layout Layout) (string, error) {
	t, err := n.Parse(text, layout)
	if err != nil {
		return "", err
	}
	return Format(t), nil
}

// Format renders an instant in the Canonical format.
func Format(t time.Time) string {
	return t.UTC().Format(Canonical)
}
