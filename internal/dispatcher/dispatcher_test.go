package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/topic-harvester/internal/crawler"
)

// TestRunBatchPreservesOrder ensures each result lines up with its input URL.
func TestRunBatchPreservesOrder(t *testing.T) {
	t.Parallel()

	acq := &fakeAcquirer{delay: time.Millisecond}
	pool := New(acq, 3, zap.NewNop())

	urls := []string{"a", "b", "c", "d", "e", "f", "g"}
	results := pool.RunBatch(context.Background(), urls)
	require.Len(t, results, len(urls))
	for i, res := range results {
		assert.Equal(t, urls[i], res.URL)
	}
	assert.Equal(t, int32(len(urls)), acq.calls.Load())
}

// TestRunBatchBoundsConcurrency verifies no more than Size acquisitions overlap.
func TestRunBatchBoundsConcurrency(t *testing.T) {
	t.Parallel()

	acq := &fakeAcquirer{delay: 5 * time.Millisecond}
	pool := New(acq, 2, zap.NewNop())

	pool.RunBatch(context.Background(), []string{"1", "2", "3", "4", "5", "6"})
	assert.LessOrEqual(t, acq.maxInFlight(), 2)
	assert.Positive(t, acq.maxInFlight())
}

// TestRunBatchIncludesFailures confirms failed items are reported alongside successes.
func TestRunBatchIncludesFailures(t *testing.T) {
	t.Parallel()

	acq := &fakeAcquirer{fail: map[string]bool{"bad": true}}
	pool := New(acq, 4, zap.NewNop())

	results := pool.RunBatch(context.Background(), []string{"good", "bad"})
	assert.Equal(t, crawler.OutcomeAcquired, results[0].Outcome)
	assert.Equal(t, crawler.OutcomeFailed, results[1].Outcome)
}

func TestRunBatchEmpty(t *testing.T) {
	t.Parallel()

	pool := New(&fakeAcquirer{}, 1, nil)
	assert.Empty(t, pool.RunBatch(context.Background(), nil))
}

func TestNewDefaultsToCPUCount(t *testing.T) {
	t.Parallel()

	assert.Positive(t, New(&fakeAcquirer{}, 0, nil).Size())
	assert.Equal(t, 5, New(&fakeAcquirer{}, 5, nil).Size())
}

type fakeAcquirer struct {
	delay time.Duration
	fail  map[string]bool
	calls atomic.Int32

	mu       sync.Mutex
	inFlight int
	peak     int
}

func (f *fakeAcquirer) Acquire(_ context.Context, url string) crawler.AcquireResult {
	f.calls.Add(1)
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if f.fail[url] {
		return crawler.AcquireResult{URL: url, Outcome: crawler.OutcomeFailed}
	}
	return crawler.AcquireResult{URL: url, Outcome: crawler.OutcomeAcquired}
}

func (f *fakeAcquirer) maxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}
