package assembler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/topic-harvester/internal/crawler"
)

const recordContentType = "application/json"

// ObjectRecordStore keeps Records as JSON objects under json/<id>.json in an ObjectStore.
// Atomicity of each write is inherited from the ObjectStore's Put.
type ObjectRecordStore struct {
	store crawler.ObjectStore
}

// NewObjectRecordStore wraps store.
func NewObjectRecordStore(store crawler.ObjectStore) *ObjectRecordStore {
	return &ObjectRecordStore{store: store}
}

// HasRecord reports whether a Record with id was already written.
func (s *ObjectRecordStore) HasRecord(ctx context.Context, id string) (bool, error) {
	ok, err := s.store.Exists(ctx, crawler.RecordPath(id))
	if err != nil {
		return false, fmt.Errorf("stat record: %w", err)
	}
	return ok, nil
}

// PutRecord serializes record and writes it in a single Put.
func (s *ObjectRecordStore) PutRecord(ctx context.Context, record crawler.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal record: %v", crawler.ErrSerialization, err)
	}
	if _, err := s.store.Put(ctx, crawler.RecordPath(record.ID), recordContentType, data); err != nil {
		return fmt.Errorf("%w: put record: %v", crawler.ErrSerialization, err)
	}
	return nil
}
