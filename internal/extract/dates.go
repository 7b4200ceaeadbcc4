package extract

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/topic-harvester/internal/timestamp"
)

// dates is the outcome of the posted-date chain. updated is only set by the reconciling strategy.
type dates struct {
	posted  time.Time
	updated time.Time
}

func (e *Engine) postedChain() []strategy[dates] {
	return []strategy[dates]{
		{name: "time_attribute", apply: e.timeAttribute},
		{name: "single_timestamp", apply: e.singleTimestamp},
		{name: "reconciled_timestamps", apply: e.reconciledTimestamps},
		{name: "published_block", apply: e.publishedBlock},
	}
}

func (e *Engine) updatedChain(posted dates) []strategy[time.Time] {
	return []strategy[time.Time]{
		{name: "screen_reader_time", apply: e.screenReaderTime},
		{name: "reconciled_timestamps", apply: func(*goquery.Document) (time.Time, bool) {
			return posted.updated, !posted.updated.IsZero()
		}},
	}
}

// timeAttribute takes the machine-readable value of the first time element.
func (e *Engine) timeAttribute(doc *goquery.Document) (dates, bool) {
	raw, ok := doc.Find("time").First().Attr("datetime")
	if !ok {
		return dates{}, false
	}
	t, err := e.norm.Parse(raw, timestamp.LayoutUTC)
	if err != nil {
		return dates{}, false
	}
	return dates{posted: t}, true
}

func (e *Engine) singleTimestamp(doc *goquery.Document) (dates, bool) {
	spans := doc.Find("span.timestamp")
	if spans.Length() != 1 {
		return dates{}, false
	}
	t, err := e.norm.Parse(spans.Text(), timestamp.LayoutShortMonthAt)
	if err != nil {
		return dates{}, false
	}
	return dates{posted: t}, true
}

// reconciledTimestamps takes the earliest of several timestamps as posted and a strictly later one as updated.
func (e *Engine) reconciledTimestamps(doc *goquery.Document) (dates, bool) {
	spans := doc.Find("span.timestamp")
	if spans.Length() < 2 {
		return dates{}, false
	}
	var lo, hi time.Time
	spans.Each(func(_ int, s *goquery.Selection) {
		t, err := e.norm.Parse(s.Text(), timestamp.LayoutLongMonth)
		if err != nil {
			return
		}
		if lo.IsZero() || t.Before(lo) {
			lo = t
		}
		if hi.IsZero() || t.After(hi) {
			hi = t
		}
	})
	if lo.IsZero() {
		return dates{}, false
	}
	d := dates{posted: lo}
	if hi.After(lo) {
		d.updated = hi
	}
	return d, true
}

func (e *Engine) publishedBlock(doc *goquery.Document) (dates, bool) {
	raw := doc.Find("p.published .timestamp").First().Text()
	t, err := e.norm.Parse(raw, timestamp.LayoutLongMonth)
	if err != nil {
		return dates{}, false
	}
	return dates{posted: t}, true
}

// screenReaderTime reads the second screen-reader time element. Its display text only has to
// match the expected notation; the value taken is the datetime attribute.
func (e *Engine) screenReaderTime(doc *goquery.Document) (time.Time, bool) {
	second := doc.Find(`time[data-component="ScreenReaderOnly"]`).Eq(1)
	if second.Length() == 0 {
		return time.Time{}, false
	}
	if _, err := e.norm.Parse(second.Text(), timestamp.LayoutScreenReader); err != nil {
		return time.Time{}, false
	}
	raw, ok := second.Attr("datetime")
	if !ok || strings.TrimSpace(raw) == "" {
		return time.Time{}, false
	}
	t, err := e.norm.Parse(raw, timestamp.LayoutUTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
