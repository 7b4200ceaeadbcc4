package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/topic-harvester/internal/crawler"
	"github.com/JakeFAU/topic-harvester/internal/timestamp"
)

const modernArticle = `<!doctype html>
<html><head><title>Universities brace for
 funding cuts - ABC News</title></head>
<body>
<h1>Universities brace for funding cuts</h1>
<div data-component="InfoSource"><a href="/news/">ABC News</a></div>
<div data-component="Byline"><p><span data-component="Text">By </span><a data-component="Link" href="/news/jane"><span data-component="Text">Jane Citizen</span></a> and <a data-component="ContentLink" href="/news/sam">Sam Writer</a></p></div>
<time data-component="ScreenReaderOnly" datetime="2020-02-01T10:00:00.000Z">Saturday 1 Feb 2020 at 9:00pm</time>
<time data-component="ScreenReaderOnly" datetime="2020-02-02T01:30:00.000Z">Sunday 2 Feb 2020 at 12:30pm</time>
<div data-component="KeyPoints"><ul><li>Funding  falls</li><li>ﬁve campuses affected</li></ul></div>
<p class="_1HzXw">Vice-chancellors say the cuts
will hurt.</p>
<h2 class="_1HzXw">Staff numbers</h2>
<p class="_1HzXw">Jobs are at risk.</p>
<p class="caption">Not body text.</p>
<div data-component="RelatedTopics"><a href="/t/1">Education</a><a href="/t/2">University</a></div>
</body></html>`

const bodySpanArticle = `<html><head><title>Campus news</title></head><body>
<span class="timestamp">Jan 12, 2012 at 03:15:00</span>
<div id="body"><span>Students   returned
to class.</span></div>
<div class="byline">By <a href="/programs/am/">AM</a> <a href="/news/reporter">Kim Reporter</a></div>
<p class="topics">Topics: <a href="/t/a">schools</a>, <a href="/t/b">teachers</a></p>
</body></html>`

const sectionArticle = `<html><head></head><body>
<h1>Legacy   headline</h1>
<p class="published">Posted <span class="timestamp">January 12, 2011 10:00:00</span></p>
<span class="timestamp">March 3, 2011 09:30:00</span>
<div class="article section">
  <p class="published">Updated shortly after</p>
  <p>First paragraph.</p>
  <h2>A heading</h2>
  <p>First paragraph.</p>
  <blockquote>A  quote
  here.</blockquote>
  <p class="topics">Topics: education</p>
  <p class="button">Share</p>
</div>
<div class="byline"><a href="/news/one">By Only Author</a></div>
<div class="inline-content wysiwyg right"><ul><li>Point one</li><li>Point two</li></ul></div>
<ul><li class="topic-subject">Higher education</li></ul>
</body></html>`

const richTextArticle = `<html><head><title>Rich text story</title></head><body>
<p class="published">Posted <span class="timestamp">October 30, 2013 14:05:00</span></p>
<div class="comp-rich-text article-text clearfix"><p>One.</p><p>Two.</p></div>
</body></html>`

func newEngine(t *testing.T) *Engine {
	t.Helper()
	norm, err := timestamp.New("Australia/Melbourne")
	require.NoError(t, err)
	return New(norm, nil)
}

func extract(t *testing.T, html string) (crawler.Fields, error) {
	t.Helper()
	return newEngine(t).Extract(crawler.RawDocument{Key: "news_test", Content: []byte(html)})
}

func TestExtractModernArticle(t *testing.T) {
	t.Parallel()

	f, err := extract(t, modernArticle)
	require.NoError(t, err)

	assert.Equal(t, "Universities brace for funding cuts - ABC News", f.Title)
	assert.Equal(t, "Universities brace for funding cuts", f.Headline)
	assert.Equal(t, "2020-02-01T10:00:00.000000Z", f.PostedDate)
	assert.Equal(t, "2020-02-02T01:30:00.000000Z", f.UpdatedDate)
	assert.Equal(t, "Vice-chancellors say the cuts will hurt. Staff numbers Jobs are at risk.", f.BodyText)
	assert.Equal(t, []string{"Jane Citizen", "Sam Writer"}, f.Byline)
	assert.Equal(t, []string{"Education", "University"}, f.RelatedKeywords)
	assert.Equal(t, []string{"Funding falls", "five campuses affected"}, f.KeyPoints)
	assert.Equal(t, "ABC News", f.InfoSource)
	assert.Equal(t, "styled_paragraphs", f.Strategies["body_text"])
	assert.Equal(t, "time_attribute", f.Strategies["posted_date"])
	assert.Equal(t, "screen_reader_time", f.Strategies["updated_date"])
}

func TestExtractSingleTimestampAndBodySpan(t *testing.T) {
	t.Parallel()

	f, err := extract(t, bodySpanArticle)
	require.NoError(t, err)

	assert.Equal(t, "2012-01-11T16:15:00.000000Z", f.PostedDate)
	assert.Empty(t, f.UpdatedDate)
	assert.Equal(t, "Students returned to class.", f.BodyText)
	assert.Equal(t, []string{"Kim Reporter"}, f.Byline)
	assert.Equal(t, []string{"schools", "teachers"}, f.RelatedKeywords)
	assert.Nil(t, f.KeyPoints)
	assert.Empty(t, f.Headline)
	assert.Equal(t, "body_span", f.Strategies["body_text"])
}

func TestExtractLegacySection(t *testing.T) {
	t.Parallel()

	f, err := extract(t, sectionArticle)
	require.NoError(t, err)

	assert.Equal(t, "Legacy headline", f.Title)
	assert.Equal(t, "first_heading", f.Strategies["title"])
	// January 12 10:00 AEDT and March 3 09:30 AEDT.
	assert.Equal(t, "2011-01-11T23:00:00.000000Z", f.PostedDate)
	assert.Equal(t, "2011-03-02T22:30:00.000000Z", f.UpdatedDate)
	assert.Equal(t, "reconciled_timestamps", f.Strategies["updated_date"])
	assert.Equal(t, "First paragraph. A heading A quote here.", f.BodyText)
	assert.Equal(t, "article_section", f.Strategies["body_text"])
	assert.Equal(t, []string{"Only Author"}, f.Byline)
	assert.Equal(t, []string{"Higher education"}, f.RelatedKeywords)
	assert.Equal(t, "topic_subjects", f.Strategies["related_keywords"])
	assert.Equal(t, []string{"Point one", "Point two"}, f.KeyPoints)
}

func TestExtractRichTextWithPublishedBlock(t *testing.T) {
	t.Parallel()

	f, err := extract(t, richTextArticle)
	require.NoError(t, err)

	// October 30 14:05 AEDT.
	assert.Equal(t, "2013-10-30T03:05:00.000000Z", f.PostedDate)
	assert.Equal(t, "published_block", f.Strategies["posted_date"])
	assert.Equal(t, "One. Two.", f.BodyText)
	assert.Equal(t, "rich_text", f.Strategies["body_text"])
}

func TestExtractMandatoryFields(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		html  string
		field string
	}{
		{
			name:  "no title or heading",
			html:  `<html><body><time datetime="2020-01-01T00:00:00Z"></time><p class="_1HzXw">Body.</p></body></html>`,
			field: "title",
		},
		{
			name:  "no body",
			html:  `<html><head><title>T</title></head><body><time datetime="2020-01-01T00:00:00Z"></time><p>loose</p></body></html>`,
			field: "body_text",
		},
		{
			name:  "no parseable date",
			html:  `<html><head><title>T</title></head><body><span class="timestamp">last Tuesday</span><p class="_1HzXw">Body.</p></body></html>`,
			field: "posted_date",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := extract(t, tc.html)
			require.Error(t, err)
			assert.True(t, errors.Is(err, crawler.ErrMandatoryFieldMissing))
			var fieldErr *crawler.FieldError
			require.True(t, errors.As(err, &fieldErr))
			assert.Equal(t, tc.field, fieldErr.Field)
		})
	}
}

func TestTimeAttributeMustParse(t *testing.T) {
	t.Parallel()

	// An unparseable attribute falls through to the single timestamp strategy.
	html := `<html><head><title>T</title></head><body>
<time datetime="soon"></time>
<span class="timestamp">Jul 3, 2012 at 09:00:00</span>
<p class="_1HzXw">Body.</p></body></html>`
	f, err := extract(t, html)
	require.NoError(t, err)
	assert.Equal(t, "2012-07-02T23:00:00.000000Z", f.PostedDate)
	assert.Equal(t, "single_timestamp", f.Strategies["posted_date"])
}

func TestScreenReaderTrustCheck(t *testing.T) {
	t.Parallel()

	html := `<html><head><title>T</title></head><body>
<time data-component="ScreenReaderOnly" datetime="2020-02-01T10:00:00Z">Saturday 1 Feb 2020 at 9:00pm</time>
<time data-component="ScreenReaderOnly" datetime="2020-02-05T10:00:00Z">Updated recently</time>
<p class="_1HzXw">Body.</p></body></html>`
	f, err := extract(t, html)
	require.NoError(t, err)
	assert.Empty(t, f.UpdatedDate)
}

func TestBylineStrategies(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		html string
		want []string
		ok   bool
	}{
		{
			name: "programs anchor first",
			html: `<div class="byline"><a href="/programs/foo">Programme</a><a href="/news/b">Second Author</a></div>`,
			want: []string{"Second Author"},
			ok:   true,
		},
		{
			name: "only programs anchors",
			html: `<div class="byline"><a href="/programs/foo">A</a><a href="/programs/bar">B</a></div>`,
			ok:   false,
		},
		{
			name: "component with prefixed text only",
			html: `<div data-component="Byline"><span data-component="Text">By Lee Writer</span></div>`,
			want: []string{"Lee Writer"},
			ok:   true,
		},
		{
			name: "links nested in a text wrapper",
			html: `<div data-component="Byline"><span data-component="Text">By <a data-component="Link">Jane Citizen</a> and <a data-component="Link">Sam Writer</a></span></div>`,
			want: []string{"Jane Citizen", "Sam Writer"},
			ok:   true,
		},
		{
			name: "repeated link",
			html: `<div data-component="Byline"><a data-component="ContentLink">Jane Citizen</a><a data-component="Link">Jane Citizen</a></div>`,
			want: []string{"Jane Citizen"},
			ok:   true,
		},
		{
			name: "absent",
			html: `<p>nobody</p>`,
			ok:   false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(tc.html))
			require.NoError(t, err)
			got, _, ok := firstMatch(doc, bylineChain)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFirstMatchStopsAtFirstSuccess(t *testing.T) {
	t.Parallel()

	var calls []string
	chain := []strategy[string]{
		{name: "a", apply: func(*goquery.Document) (string, bool) { calls = append(calls, "a"); return "", false }},
		{name: "b", apply: func(*goquery.Document) (string, bool) { calls = append(calls, "b"); return "b-value", true }},
		{name: "c", apply: func(*goquery.Document) (string, bool) { calls = append(calls, "c"); return "c-value", true }},
	}
	got, name, ok := firstMatch[string](nil, chain)
	require.True(t, ok)
	assert.Equal(t, "b-value", got)
	assert.Equal(t, "b", name)
	assert.Equal(t, []string{"a", "b"}, calls)
}
