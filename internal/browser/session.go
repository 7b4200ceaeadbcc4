// Package browser drives the rendered topic listing with headless Chrome.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Config controls the Chrome instance behind a Session.
type Config struct {
	Headless          bool
	UserAgent         string
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
}

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultActionTimeout     = 30 * time.Second
)

// ErrNoTimestamps is returned when the listing shows no dated items.
var ErrNoTimestamps = errors.New("no listing timestamps visible")

// Session implements crawler.BrowserSession on a single Chrome tab.
// Calls are serialized; the controller never overlaps them anyway.
type Session struct {
	cfg         Config
	logger      *zap.Logger
	allocCancel context.CancelFunc
	tab         context.Context
	tabCancel   context.CancelFunc
	meta        *responseMeta
	mu          sync.Mutex
}

// NewSession starts Chrome and opens one tab.
func NewSession(cfg Config, logger *zap.Logger) (*Session, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = defaultActionTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	tab, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Sugar().Debugf))
	meta := newResponseMeta()
	chromedp.ListenTarget(tab, meta.captureEvent)

	// start the browser now so a missing Chrome fails at startup, not mid-run
	if err := chromedp.Run(tab); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	return &Session{
		cfg:         cfg,
		logger:      logger,
		allocCancel: allocCancel,
		tab:         tab,
		tabCancel:   tabCancel,
		meta:        meta,
	}, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	return opts
}

// Close shuts the tab and the browser.
func (s *Session) Close() {
	s.tabCancel()
	s.allocCancel()
}

// Navigate loads url and waits for the document body. A 4xx/5xx main document is an error.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.meta.reset()
	err := s.run(ctx, s.cfg.NavigationTimeout,
		s.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if status := s.meta.status(); status >= 400 {
		return fmt.Errorf("navigate %s: status %d", url, status)
	}
	return nil
}

// DismissConsent clicks the consent button if it is present.
func (s *Session) DismissConsent(ctx context.Context, id string) bool {
	var clicked bool
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(consentScript(id), &clicked)); err != nil {
		s.logger.Debug("consent dismissal failed", zap.String("id", id), zap.Error(err))
		return false
	}
	return clicked
}

// ListingLinks returns the absolute href of every visible card heading link.
func (s *Session) ListingLinks(ctx context.Context, id string) ([]string, error) {
	var links []string
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(linksScript(id), &links)); err != nil {
		return nil, fmt.Errorf("read listing links: %w", err)
	}
	return links, nil
}

// OldestVisibleTimestamp returns the datetime attribute of the last listing timestamp.
func (s *Session) OldestVisibleTimestamp(ctx context.Context, id string) (string, error) {
	var value string
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(oldestScript(id), &value)); err != nil {
		return "", fmt.Errorf("read oldest timestamp: %w", err)
	}
	if value == "" {
		return "", ErrNoTimestamps
	}
	return value, nil
}

// LoadMore scrolls to the bottom and clicks the pagination button.
// It reports false once the button announces there is nothing left.
func (s *Session) LoadMore(ctx context.Context, id string) (bool, error) {
	var state string
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(loadMoreScript(id), &state)); err != nil {
		return false, fmt.Errorf("load more: %w", err)
	}
	switch state {
	case loadMoreClicked:
		return true, nil
	case loadMoreExhausted:
		return false, nil
	default:
		return false, fmt.Errorf("load more: button %q not found", id)
	}
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	runCtx, cancel := context.WithTimeout(s.tab, timeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

// forwardCancel cancels the chromedp context when parent is done.
// The tab context descends from the allocator, not the caller, so this is the only link.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func (s *Session) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// responseMeta remembers the status of the last main document response.
type responseMeta struct {
	mu   sync.RWMutex
	code int
	url  string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	m.code = int(event.Response.Status)
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) reset() {
	m.mu.Lock()
	m.code = 0
	m.url = ""
	m.mu.Unlock()
}

func (m *responseMeta) status() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.code
}
