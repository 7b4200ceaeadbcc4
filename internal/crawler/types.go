// Package crawler defines core types shared across the harvester subsystems.
package crawler

import (
	"strings"
	"time"
)

// Outcome is the result of acquiring one article.
type Outcome int

// Acquisition outcomes reported by the worker.
const (
	OutcomeFailed Outcome = iota
	OutcomeAcquired
	OutcomeSkippedExisting
)

// String returns the log label for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeAcquired:
		return "acquired"
	case OutcomeSkippedExisting:
		return "skipped_existing"
	default:
		return "failed"
	}
}

// Code is the 0/1 value written to the run log. Only a fresh acquisition counts.
func (o Outcome) Code() int {
	if o == OutcomeAcquired {
		return 1
	}
	return 0
}

// RawDocument is a fetched article page, stored with only image references rewritten.
type RawDocument struct {
	Key       string
	Content   []byte
	FetchedAt time.Time
}

// AcquireResult is returned by the acquisition worker for one URL.
type AcquireResult struct {
	URL          string
	Key          string
	Outcome      Outcome
	Images       int
	ImagesFailed int
	Err          error
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// OK reports whether the response carries a 2xx status.
func (r FetchResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Fields is the field map produced by the extraction engine for one document.
// Empty strings and nil slices mean the field is absent.
type Fields struct {
	Title           string
	Headline        string
	PostedDate      string
	UpdatedDate     string
	BodyText        string
	Byline          []string
	RelatedKeywords []string
	KeyPoints       []string
	InfoSource      string

	// Strategies maps each populated field to the name of the strategy that produced it.
	Strategies map[string]string
}

// Record is the validated structured output persisted for one article.
type Record struct {
	ID              string   `json:"id"`
	URL             string   `json:"url"`
	Title           string   `json:"title"`
	Headline        string   `json:"h1,omitempty"`
	PostedDate      string   `json:"posted_date"`
	UpdatedDate     string   `json:"updated_date,omitempty"`
	BodyText        string   `json:"body_text"`
	Byline          []string `json:"byline,omitempty"`
	RelatedKeywords []string `json:"related_keywords,omitempty"`
	KeyPoints       []string `json:"key_points,omitempty"`
	InfoSource      string   `json:"info_source,omitempty"`
}

// Validate enforces the mandatory-field invariant.
func (r Record) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"id", r.ID},
		{"url", r.URL},
		{"title", r.Title},
		{"posted_date", r.PostedDate},
		{"body_text", r.BodyText},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return &FieldError{Field: f.name}
		}
	}
	return nil
}

// CrawlSummary is reported when the crawl controller reaches DONE.
type CrawlSummary struct {
	RunID         string
	Discovered    int
	Acquired      int
	Skipped       int
	Failed        int
	CollectPasses int
	CheckPasses   int
	Paginations   int
	StopReason    string
	OldestSeen    time.Time
	Elapsed       time.Duration
}

// ExtractSummary is reported at the end of an extraction pass.
type ExtractSummary struct {
	RunID     string
	Documents int
	Converted int
	Failed    int
	Elapsed   time.Duration
}

// AcquiredEvent is published after a document has been persisted.
type AcquiredEvent struct {
	RunID       string    `json:"run_id"`
	URL         string    `json:"url"`
	Key         string    `json:"key"`
	URI         string    `json:"uri"`
	ContentHash string    `json:"content_hash"`
	Images      int       `json:"images"`
	FetchedAt   time.Time `json:"fetched_at"`
}
