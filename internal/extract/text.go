package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

// clean collapses every whitespace run, newlines included, into one space.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanNFKC applies compatibility composition before collapsing whitespace.
func cleanNFKC(s string) string {
	return clean(norm.NFKC.String(s))
}

// texts returns the cleaned, non-empty text of every node in sel.
func texts(sel *goquery.Selection, fn func(string) string) []string {
	var out []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if t := fn(s.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}

// nonEmpty turns an empty list into an absent result.
func nonEmpty(items []string) ([]string, bool) {
	if len(items) == 0 {
		return nil, false
	}
	return items, true
}

// nonBlank turns an empty string into an absent result.
func nonBlank(s string) (string, bool) {
	return s, s != ""
}

// stripBy removes the literal "By " prefix from a byline name.
func stripBy(name string) string {
	name = clean(name)
	if name == "By" {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(name, "By "))
}
