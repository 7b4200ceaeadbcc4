package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	// Generated style classes of the 2020-era article template.
	styledBodyClass = regexp.MustCompile(`_1HzXw|_1EAJU hMmqO SYcM3 zwVFG _1BqKa _3AExf _3HiTE x9R1x pDrMR hmFfs _390V1`)
	// Paragraphs inside legacy sections that carry metadata rather than prose.
	sectionNoiseClass = regexp.MustCompile(`published|topics|button`)
)

var titleChain = []strategy[string]{
	{name: "title_element", apply: func(doc *goquery.Document) (string, bool) {
		return nonBlank(clean(doc.Find("title").First().Text()))
	}},
	{name: "first_heading", apply: headline},
}

var headlineChain = []strategy[string]{
	{name: "first_heading", apply: headline},
}

func headline(doc *goquery.Document) (string, bool) {
	return nonBlank(clean(doc.Find("h1").First().Text()))
}

var bodyChain = []strategy[string]{
	{name: "styled_paragraphs", apply: styledParagraphs},
	{name: "body_span", apply: func(doc *goquery.Document) (string, bool) {
		return nonBlank(cleanNFKC(doc.Find("div#body span").First().Text()))
	}},
	{name: "article_section", apply: articleSection},
	{name: "rich_text", apply: func(doc *goquery.Document) (string, bool) {
		container := doc.Find("div.comp-rich-text.article-text.clearfix").First()
		return nonBlank(cleanNFKC(strings.Join(texts(container.Find("p"), clean), " ")))
	}},
}

func styledParagraphs(doc *goquery.Document) (string, bool) {
	matched := doc.Find("p, h2").FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, ok := s.Attr("class")
		return ok && styledBodyClass.MatchString(class)
	})
	return nonBlank(cleanNFKC(strings.Join(texts(matched, clean), " ")))
}

// articleSection reads the legacy section layout, skipping metadata paragraphs and repeated text.
func articleSection(doc *goquery.Document) (string, bool) {
	section := doc.Find("div.article.section").First()
	if section.Length() == 0 {
		return "", false
	}
	seen := make(map[string]struct{})
	var parts []string
	section.Find("p, h2, blockquote").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "p" {
			if class, ok := s.Attr("class"); ok && sectionNoiseClass.MatchString(class) {
				return
			}
		}
		text := clean(s.Text())
		if text == "" {
			return
		}
		if _, dup := seen[text]; dup {
			return
		}
		seen[text] = struct{}{}
		parts = append(parts, text)
	})
	return nonBlank(cleanNFKC(strings.Join(parts, " ")))
}

var bylineChain = []strategy[[]string]{
	{name: "byline_component", apply: bylineComponent},
	{name: "byline_block", apply: bylineBlock},
}

func hasComponent(kinds ...string) func(int, *goquery.Selection) bool {
	return func(_ int, s *goquery.Selection) bool {
		c := s.AttrOr("data-component", "")
		for _, k := range kinds {
			if c == k {
				return true
			}
		}
		return false
	}
}

var (
	isAuthorLink = hasComponent("Link", "ContentLink")
	isAuthorText = hasComponent("Text")
)

// bylineComponent reads the author links inside the Byline component, at any depth.
// Plain Text components are used only when the byline carries no links.
func bylineComponent(doc *goquery.Document) ([]string, bool) {
	byline := doc.Find(`[data-component="Byline"]`).First()
	if byline.Length() == 0 {
		return nil, false
	}
	if names, ok := outermostNames(byline, isAuthorLink); ok {
		return names, true
	}
	return outermostNames(byline, isAuthorText)
}

// outermostNames collects the distinct names of matching components that have no matching ancestor below root.
func outermostNames(root *goquery.Selection, match func(int, *goquery.Selection) bool) ([]string, bool) {
	var names []string
	seen := make(map[string]struct{})
	root.Find("[data-component]").FilterFunction(match).Each(func(_ int, s *goquery.Selection) {
		if s.ParentsUntilSelection(root).FilterFunction(match).Length() > 0 {
			return
		}
		name := stripBy(s.Text())
		if name == "" {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	})
	return nonEmpty(names)
}

// bylineBlock reads the legacy byline: a sole anchor, or the first one that is not a programme page.
func bylineBlock(doc *goquery.Document) ([]string, bool) {
	anchors := doc.Find("div.byline").First().Find("a")
	switch anchors.Length() {
	case 0:
		return nil, false
	case 1:
		return nonEmpty(texts(anchors, stripBy))
	}
	author := anchors.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return !strings.Contains(s.AttrOr("href", ""), "/programs/")
	}).First()
	return nonEmpty(texts(author, stripBy))
}

var keywordsChain = []strategy[[]string]{
	{name: "related_topics", apply: listOf(`div[data-component="RelatedTopics"] a`, clean)},
	{name: "topics_paragraph", apply: listOf("p.topics a", clean)},
	{name: "topic_subjects", apply: listOf("li.topic-subject", clean)},
}

var keyPointsChain = []strategy[[]string]{
	{name: "key_points_component", apply: listOf(`[data-component="KeyPoints"] li`, cleanNFKC)},
	{name: "inline_content", apply: listOf("div.inline-content.wysiwyg.right li", clean)},
}

func listOf(selector string, fn func(string) string) func(*goquery.Document) ([]string, bool) {
	return func(doc *goquery.Document) ([]string, bool) {
		return nonEmpty(texts(doc.Find(selector), fn))
	}
}

var infoSourceChain = []strategy[string]{
	{name: "info_source_component", apply: func(doc *goquery.Document) (string, bool) {
		var source string
		doc.Find(`[data-component="InfoSource"]`).First().Children().EachWithBreak(func(_ int, s *goquery.Selection) bool {
			source = clean(s.Text())
			return source == ""
		})
		return nonBlank(source)
	}},
}
