// Package extract turns stored article pages into field maps. Every field is read by an ordered
// chain of strategies, one per markup generation the site has used, and the first usable result wins.
package extract

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/topic-harvester/internal/crawler"
	"github.com/JakeFAU/topic-harvester/internal/timestamp"
)

// Engine extracts Fields from raw documents. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	norm   *timestamp.Normalizer
	logger *zap.Logger
}

// New builds an Engine on top of the given normalizer.
func New(norm *timestamp.Normalizer, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{norm: norm, logger: logger}
}

// Extract reads every field from doc. A *crawler.FieldError is returned when title, body text
// or posted date cannot be obtained by any strategy.
func (e *Engine) Extract(doc crawler.RawDocument) (crawler.Fields, error) {
	parsed, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Content))
	if err != nil {
		return crawler.Fields{}, fmt.Errorf("parse html %s: %w", doc.Key, err)
	}
	return e.ExtractDocument(parsed)
}

// ExtractDocument runs the strategy chains against an already parsed document.
func (e *Engine) ExtractDocument(doc *goquery.Document) (crawler.Fields, error) {
	f := crawler.Fields{Strategies: make(map[string]string)}
	var ok bool
	var name string

	if f.Title, name, ok = firstMatch(doc, titleChain); !ok {
		return crawler.Fields{}, &crawler.FieldError{Field: "title"}
	}
	f.Strategies["title"] = name

	posted, name, ok := firstMatch(doc, e.postedChain())
	if !ok {
		return crawler.Fields{}, &crawler.FieldError{Field: "posted_date"}
	}
	f.PostedDate = timestamp.Format(posted.posted)
	f.Strategies["posted_date"] = name

	if f.BodyText, name, ok = firstMatch(doc, bodyChain); !ok {
		return crawler.Fields{}, &crawler.FieldError{Field: "body_text"}
	}
	f.Strategies["body_text"] = name

	if updated, name, ok := firstMatch(doc, e.updatedChain(posted)); ok {
		f.UpdatedDate = timestamp.Format(updated)
		f.Strategies["updated_date"] = name
	}
	if f.Headline, name, ok = firstMatch(doc, headlineChain); ok {
		f.Strategies["h1"] = name
	}
	if f.Byline, name, ok = firstMatch(doc, bylineChain); ok {
		f.Strategies["byline"] = name
	}
	if f.RelatedKeywords, name, ok = firstMatch(doc, keywordsChain); ok {
		f.Strategies["related_keywords"] = name
	}
	if f.KeyPoints, name, ok = firstMatch(doc, keyPointsChain); ok {
		f.Strategies["key_points"] = name
	}
	if f.InfoSource, name, ok = firstMatch(doc, infoSourceChain); ok {
		f.Strategies["info_source"] = name
	}

	e.logger.Debug("fields extracted", zap.Any("strategies", f.Strategies))
	return f, nil
}
