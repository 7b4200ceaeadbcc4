package extractrun

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/JakeFAU/topic-harvester/internal/assembler"
	"github.com/JakeFAU/topic-harvester/internal/crawler"
	"github.com/JakeFAU/topic-harvester/internal/extract"
	"github.com/JakeFAU/topic-harvester/internal/storage/memory"
	"github.com/JakeFAU/topic-harvester/internal/timestamp"
)

const goodPage = `<html><head><title>Uni fees rise</title></head><body>
<h1>Uni fees rise</h1>
<div class="byline">By <a href="/news/jane">Jane Citizen</a></div>
<p class="published">Posted <span class="timestamp">January 12, 2012 03:15:00</span></p>
<div id="body"><span>Fees will rise next year.</span></div>
</body></html>`

const noTitlePage = `<html><body><p>No heading here</p></body></html>`

func TestRunConvertsStoredDocuments(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewBlobStore()
	put(t, store, "articles/news_2012-01-12_fees_1.html", goodPage)
	put(t, store, "articles/news_2012-01-12_broken_2.html", noTitlePage)
	put(t, store, "images/abc.jpg", "jpeg")

	runLog := &fakeRunLog{}
	runner := newRunner(t, store, runLog, 2)

	summary, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Documents)
	assert.Equal(t, 1, summary.Converted)
	assert.Equal(t, 1, summary.Failed)
	assert.ElementsMatch(t, []string{"news_2012-01-12_fees_1:1", "news_2012-01-12_broken_2:0"}, runLog.rows())

	data, err := store.Get(ctx, "json/news_2012-01-12_fees_1.json")
	require.NoError(t, err)
	var rec crawler.Record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "Uni fees rise", rec.Title)
	assert.Equal(t, "https://www.abc.net.au/news/2012-01-12/fees/1", rec.URL)
	assert.Equal(t, "2012-01-11T16:15:00.000000Z", rec.PostedDate)
	assert.Equal(t, "Fees will rise next year.", rec.BodyText)

	ok, err := store.Exists(ctx, "json/news_2012-01-12_broken_2.json")
	require.NoError(t, err)
	assert.False(t, ok, "failed documents must not produce a record")
}

func TestRunIsRepeatable(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	put(t, store, "articles/news_1.html", goodPage)
	runner := newRunner(t, store, nil, 1)

	first, err := runner.Run(context.Background())
	require.NoError(t, err)
	second, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Converted, second.Converted)
	assert.Equal(t, 2, store.Len())
}

func TestRunRecordsConversionSpans(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	store := memory.NewBlobStore()
	put(t, store, "articles/news_2012-01-12_fees_1.html", goodPage)
	put(t, store, "articles/news_2012-01-12_broken_2.html", noTitlePage)

	norm, err := timestamp.New("")
	require.NoError(t, err)
	runner := New(
		store,
		extract.New(norm, zap.NewNop()),
		assembler.New(assembler.NewObjectRecordStore(store), crawler.NewKeyScheme("https://www.abc.net.au/"), zap.NewNop()),
		nil,
		fixedClock{},
		Config{Concurrency: 1, Tracer: tp.Tracer("extractrun-test")},
		zap.NewNop(),
	)
	_, err = runner.Run(context.Background())
	require.NoError(t, err)

	status := map[string]codes.Code{}
	names := map[string]int{}
	for _, span := range recorder.Ended() {
		names[span.Name()]++
		if span.Name() != "extractrun.convert" {
			continue
		}
		for _, kv := range span.Attributes() {
			if kv.Key == "harvester.key" {
				status[kv.Value.AsString()] = span.Status().Code
			}
		}
	}
	assert.Equal(t, 2, names["extractrun.convert"])
	assert.Equal(t, 2, names["extractrun.extract"])
	assert.Equal(t, 1, names["extractrun.assemble"])
	assert.Equal(t, codes.Unset, status["news_2012-01-12_fees_1"])
	assert.Equal(t, codes.Error, status["news_2012-01-12_broken_2"])
}

func TestRunListFailure(t *testing.T) {
	t.Parallel()

	runner := New(failingStore{}, nil, nil, nil, fixedClock{}, Config{}, zap.NewNop())
	_, err := runner.Run(context.Background())
	require.Error(t, err)
}

func newRunner(t *testing.T, store crawler.ObjectStore, runLog crawler.RunLog, concurrency int) *Runner {
	t.Helper()
	norm, err := timestamp.New("")
	require.NoError(t, err)
	keys := crawler.NewKeyScheme("https://www.abc.net.au/")
	return New(
		store,
		extract.New(norm, zap.NewNop()),
		assembler.New(assembler.NewObjectRecordStore(store), keys, zap.NewNop()),
		runLog,
		fixedClock{},
		Config{Concurrency: concurrency, RunID: "run-1"},
		zap.NewNop(),
	)
}

func put(t *testing.T, store crawler.ObjectStore, key, body string) {
	t.Helper()
	_, err := store.Put(context.Background(), key, "text/html", []byte(body))
	require.NoError(t, err)
}

type fakeRunLog struct {
	mu   sync.Mutex
	data []string
}

func (l *fakeRunLog) Record(key string, code int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	suffix := ":0"
	if code == 1 {
		suffix = ":1"
	}
	l.data = append(l.data, key+suffix)
	return nil
}

func (l *fakeRunLog) rows() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.data...)
}

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Unix(1700000000, 0) }

func (fixedClock) Sleep(context.Context, time.Duration) error { return nil }

type failingStore struct{ crawler.ObjectStore }

func (failingStore) List(context.Context, string) ([]string, error) {
	return nil, errors.New("bucket gone")
}
