package extract

import "github.com/PuerkitoBio/goquery"

// strategy is one deterministic way of reading a field from a document.
// ok is false when the markup generation it targets is absent or yields nothing usable.
type strategy[T any] struct {
	name  string
	apply func(doc *goquery.Document) (T, bool)
}

// firstMatch runs chain in order and returns the first successful result with its strategy name.
func firstMatch[T any](doc *goquery.Document, chain []strategy[T]) (T, string, bool) {
	for _, s := range chain {
		if v, ok := s.apply(doc); ok {
			return v, s.name, true
		}
	}
	var zero T
	return zero, "", false
}
