package crawler

import (
	"context"
	"time"
)

// BrowserSession drives the rendered topic listing.
type BrowserSession interface {
	// Navigate loads url and blocks until the listing has rendered.
	Navigate(ctx context.Context, url string) error
	// DismissConsent clicks the consent banner identified by id, reporting whether it was present.
	DismissConsent(ctx context.Context, id string) bool
	// ListingLinks returns the absolute article links currently visible.
	ListingLinks(ctx context.Context, id string) ([]string, error)
	// OldestVisibleTimestamp returns the machine-readable date of the last visible item.
	OldestVisibleTimestamp(ctx context.Context, id string) (string, error)
	// LoadMore requests the next page of items. False means the listing is exhausted.
	LoadMore(ctx context.Context, id string) (bool, error)
	Close()
}

// Fetcher performs a plain GET for documents and images.
type Fetcher interface {
	Get(ctx context.Context, url string) (FetchResponse, error)
}

// ObjectStore is a keyed byte store shared by every component.
type ObjectStore interface {
	Put(ctx context.Context, key string, contentType string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// RecordStore persists Records. PutRecord performs one atomic write.
type RecordStore interface {
	HasRecord(ctx context.Context, id string) (bool, error)
	PutRecord(ctx context.Context, record Record) error
}

// Publisher pushes acquisition events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Politeness applies the fixed pre-request delay and any per-host rate limit.
type Politeness interface {
	Wait(ctx context.Context, url string, delay time.Duration) error
}

// RunLog receives one row per attempted document key.
type RunLog interface {
	Record(key string, code int) error
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time and pauses (useful for testing).
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
