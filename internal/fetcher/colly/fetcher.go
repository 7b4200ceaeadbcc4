// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/topic-harvester/internal/crawler"
)

const defaultTimeout = 30 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Headers are set on every request, replacing collector defaults.
	Headers   http.Header
}

// Fetcher implements crawler.Fetcher using the Colly collector.
// Non-2xx responses are returned with their status rather than as errors.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.IgnoreRobotsTxt = true
	c.ParseHTTPErrorResponse = true
	c.MaxBodySize = 0
	c.WithTransport(newHTTPTransport())
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Get executes a single HTTP GET using Colly.
// A canceled ctx aborts the request in flight.
func (f *Fetcher) Get(ctx context.Context, url string) (crawler.FetchResponse, error) {
	var (
		result   crawler.FetchResponse
		fetchErr error
	)
	collector := f.buildCollector(ctx)
	f.configureCollectorHooks(collector, time.Now(), &result, &fetchErr)

	finished, err := f.runCollector(ctx, collector, url, &fetchErr)
	if err != nil {
		if !finished {
			// the visit may still be running and owns result.
			return crawler.FetchResponse{URL: url}, err
		}
		return crawler.FetchResponse{URL: url, StatusCode: result.StatusCode}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(ctx context.Context) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = crawler.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.StatusCode = r.StatusCode
		}
		*fetchErr = err
	})
}

// runCollector reports finished=false when ctx ended before the visit returned.
func (f *Fetcher) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	url string,
	fetchErr *error,
) (bool, error) {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%w: colly fetch canceled: %w", crawler.ErrFetchFailed, ctx.Err())
	case err := <-done:
		if err != nil {
			return true, fmt.Errorf("%w: colly visit: %w", crawler.ErrFetchFailed, err)
		}
		if *fetchErr != nil {
			return true, fmt.Errorf("%w: colly response: %w", crawler.ErrFetchFailed, *fetchErr)
		}
		return true, nil
	}
}

// HeadersFromMap converts configured header pairs into canonical request headers.
func HeadersFromMap(m map[string]string) http.Header {
	if len(m) == 0 {
		return nil
	}
	h := make(http.Header, len(m))
	for k, v := range m {
		h.Set(k, v)
	}
	return h
}

func (f *Fetcher) copyHeaders(r *colly.Request) {
	for key, values := range f.cfg.Headers {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
