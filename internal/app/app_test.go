package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/JakeFAU/topic-harvester/internal/browser"
	"github.com/JakeFAU/topic-harvester/internal/config"
	"github.com/JakeFAU/topic-harvester/internal/controller"
	"github.com/JakeFAU/topic-harvester/internal/crawler"
	pubmemory "github.com/JakeFAU/topic-harvester/internal/publisher/memory"
	"github.com/JakeFAU/topic-harvester/internal/storage/memory"
)

// MockCloser mocks io.Closer for shutdown ordering tests.
type MockCloser struct {
	mock.Mock
}

// Close satisfies io.Closer.
func (m *MockCloser) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockSession mocks crawler.BrowserSession.
type MockSession struct {
	mock.Mock
}

func (m *MockSession) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockSession) DismissConsent(ctx context.Context, id string) bool {
	return m.Called(ctx, id).Bool(0)
}

func (m *MockSession) ListingLinks(ctx context.Context, id string) ([]string, error) {
	args := m.Called(ctx, id)
	links, _ := args.Get(0).([]string)
	return links, args.Error(1)
}

func (m *MockSession) OldestVisibleTimestamp(ctx context.Context, id string) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *MockSession) LoadMore(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockSession) Close() {
	m.Called()
}

type fixedID string

func (f fixedID) NewID() (string, error) { return string(f), nil }

type failingID struct{}

func (failingID) NewID() (string, error) { return "", errors.New("entropy exhausted") }

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage.Backend = config.BackendMemory
	cfg.RunLog.Dir = t.TempDir()
	cfg.Crawl.SettleDelay = 0
	return cfg
}

func TestNewBuildsLocalStorage(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Storage.Backend = config.BackendLocal
	cfg.Storage.BaseDir = filepath.Join(t.TempDir(), "data")

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.NotEmpty(t, a.RunID())
	_, err = a.Store().Put(context.Background(), "articles/x.html", "text/html", []byte("<html></html>"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(cfg.Storage.BaseDir, "articles", "x.html"))
	assert.NoError(t, err)
}

func TestNewRejectsUnknownBackends(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Storage.Backend = "s3"
	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)

	cfg = testConfig(t)
	cfg.Records.Backend = "mongo"
	_, err = New(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestNewCrawlerRunsController(t *testing.T) {
	t.Parallel()

	session := &MockSession{}
	session.On("Navigate", mock.Anything, "https://www.abc.net.au/news/topic/university").Return(nil)
	session.On("DismissConsent", mock.Anything, controller.DefaultConsentID).Return(false)
	session.On("ListingLinks", mock.Anything, controller.DefaultCardID).Return([]string{}, nil)
	session.On("Close").Return()

	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, zap.NewNop(),
		WithSessionFactory(func(browser.Config, *zap.Logger) (crawler.BrowserSession, error) {
			return session, nil
		}),
	)
	require.NoError(t, err)
	defer a.Close()

	ctrl, cleanup, err := a.NewCrawler()
	require.NoError(t, err)
	summary, err := ctrl.Run(context.Background())
	cleanup()
	require.NoError(t, err)

	assert.Equal(t, controller.StopNoItems, summary.StopReason)
	assert.Equal(t, a.RunID(), summary.RunID)
	session.AssertExpectations(t)
	_, err = os.Stat(filepath.Join(cfg.RunLog.Dir, "acquisition_log.csv"))
	assert.NoError(t, err)
}

func TestNewCrawlerUsesInjectedServices(t *testing.T) {
	t.Parallel()

	headers := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case headers <- r.Header.Clone():
		default:
		}
		_, _ = w.Write([]byte(`<html><head><title>Story</title></head><body><p>Text</p></body></html>`))
	}))
	defer srv.Close()
	articleURL := srv.URL + "/news/2020-01-01/story/1"

	session := &MockSession{}
	session.On("Navigate", mock.Anything, mock.Anything).Return(nil)
	session.On("DismissConsent", mock.Anything, mock.Anything).Return(true)
	session.On("ListingLinks", mock.Anything, mock.Anything).Return([]string{articleURL}, nil)
	session.On("OldestVisibleTimestamp", mock.Anything, mock.Anything).Return("2001-01-01T00:00:00.000Z", nil)
	session.On("Close").Return()

	cfg := testConfig(t)
	cfg.Crawl.SitePrefix = srv.URL + "/"
	cfg.Crawl.ListingURL = srv.URL + "/news/topic/university"
	cfg.Acquire.DocumentDelay = 0
	cfg.Acquire.ImageDelay = 0
	cfg.Acquire.Topic = "acquired"
	cfg.Acquire.Headers = map[string]string{"accept": "text/html", "referer": cfg.Crawl.ListingURL}

	publisher := pubmemory.New()
	recorder := tracetest.NewSpanRecorder()
	a, err := New(context.Background(), cfg, zap.NewNop(),
		WithIDGenerator(fixedID("run-fixed")),
		WithPublisher(publisher),
		WithTraceOptions(sdktrace.WithSpanProcessor(recorder)),
		WithSessionFactory(func(browser.Config, *zap.Logger) (crawler.BrowserSession, error) {
			return session, nil
		}),
	)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, "run-fixed", a.RunID())

	ctrl, cleanup, err := a.NewCrawler()
	require.NoError(t, err)
	summary, err := ctrl.Run(context.Background())
	cleanup()
	require.NoError(t, err)
	assert.Equal(t, controller.StopCutoff, summary.StopReason)
	assert.Equal(t, 1, summary.Acquired)

	got := <-headers
	assert.Equal(t, "text/html", got.Get("Accept"))
	assert.Equal(t, cfg.Crawl.ListingURL, got.Get("Referer"))

	msgs := publisher.Messages()
	require.Len(t, msgs, 1)
	var event crawler.AcquiredEvent
	require.NoError(t, json.Unmarshal(msgs[0].Data, &event))
	assert.Equal(t, "run-fixed", event.RunID)
	assert.Equal(t, "news_2020-01-01_story_1", event.Key)

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.Contains(t, names, "worker.acquire")
	assert.Contains(t, names, "worker.fetch_document")
}

func TestNewFailsWhenRunIDCannotBeGenerated(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), testConfig(t), nil, WithIDGenerator(failingID{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate run id")
}

func TestNewCrawlerBrowserFailureIsFatal(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), testConfig(t), nil,
		WithSessionFactory(func(browser.Config, *zap.Logger) (crawler.BrowserSession, error) {
			return nil, errors.New("chrome not found")
		}),
	)
	require.NoError(t, err)
	defer a.Close()

	_, _, err = a.NewCrawler()
	require.Error(t, err)
	assert.True(t, errors.Is(err, crawler.ErrControllerFatal))
}

func TestNewExtractorConvertsStoredDocuments(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	_, err := store.Put(context.Background(), "articles/news_2020-01-01_story_1.html", "text/html", []byte(
		`<html><head><title>Story</title></head><body>
<time datetime="2020-01-01T01:02:03.000Z"></time>
<div id="body"><span>Text.</span></div></body></html>`))
	require.NoError(t, err)

	a, err := New(context.Background(), testConfig(t), nil, WithObjectStore(store))
	require.NoError(t, err)
	defer a.Close()

	runner, cleanup, err := a.NewExtractor()
	require.NoError(t, err)
	defer cleanup()

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Converted)
	ok, err := store.Exists(context.Background(), "json/news_2020-01-01_story_1.json")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCloseRunsClosersInReverse(t *testing.T) {
	t.Parallel()

	var order []string
	first := &MockCloser{}
	first.On("Close").Run(func(mock.Arguments) { order = append(order, "first") }).Return(nil)
	second := &MockCloser{}
	second.On("Close").Run(func(mock.Arguments) { order = append(order, "second") }).Return(errors.New("ignored"))

	a := &App{logger: zap.NewNop(), closers: []io.Closer{first, second}}
	a.Close()

	assert.Equal(t, []string{"second", "first"}, order)
	first.AssertExpectations(t)
	second.AssertExpectations(t)
}
