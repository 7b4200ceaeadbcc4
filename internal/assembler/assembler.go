// Package assembler validates extracted fields and persists them as Records.
package assembler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/topic-harvester/internal/crawler"
)

// Assembler turns Fields into a Record and writes it exactly once.
type Assembler struct {
	records crawler.RecordStore
	keys    crawler.KeyScheme
	logger  *zap.Logger
}

// New creates an Assembler writing to records.
func New(records crawler.RecordStore, keys crawler.KeyScheme, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{records: records, keys: keys, logger: logger}
}

// Build maps fields onto a Record. The url is recovered by inverting the document key.
func (a *Assembler) Build(key string, fields crawler.Fields) crawler.Record {
	return crawler.Record{
		ID:              key,
		URL:             a.keys.URLForKey(key),
		Title:           fields.Title,
		Headline:        fields.Headline,
		PostedDate:      fields.PostedDate,
		UpdatedDate:     fields.UpdatedDate,
		BodyText:        fields.BodyText,
		Byline:          fields.Byline,
		RelatedKeywords: fields.RelatedKeywords,
		KeyPoints:       fields.KeyPoints,
		InfoSource:      fields.InfoSource,
	}
}

// Assemble validates and persists the Record for key. It returns 1 when the Record is
// stored (now or by an earlier run) and 0 with an error otherwise; nothing is written on failure.
func (a *Assembler) Assemble(ctx context.Context, key string, fields crawler.Fields) (int, error) {
	record := a.Build(key, fields)
	if err := record.Validate(); err != nil {
		return 0, err
	}

	exists, err := a.records.HasRecord(ctx, record.ID)
	if err != nil {
		return 0, fmt.Errorf("check record %s: %w", record.ID, err)
	}
	if exists {
		a.logger.Debug("record exists, leaving it untouched", zap.String("key", key))
		return 1, nil
	}

	if err := a.records.PutRecord(ctx, record); err != nil {
		if !errors.Is(err, crawler.ErrSerialization) {
			err = fmt.Errorf("%w: %v", crawler.ErrSerialization, err)
		}
		return 0, fmt.Errorf("write record %s: %w", record.ID, err)
	}
	return 1, nil
}
