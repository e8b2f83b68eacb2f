package agentmock

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"pkt.systems/pslog"
)

const browserActionTimeout = 30 * time.Second

// browserSession owns one headless Chrome tab for live-browser mode.
type browserSession struct {
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	log         pslog.Logger

	mu sync.Mutex
}

func newBrowserSession(logger pslog.Logger) (*browserSession, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	startCtx, cancel := context.WithTimeout(tabCtx, browserActionTimeout)
	defer cancel()
	if err := chromedp.Run(startCtx, chromedp.Navigate("about:blank")); err != nil {
		tabCancel()
		allocCancel()
		return nil, err
	}
	if logger != nil {
		logger.Info("live browser started")
	}
	return &browserSession{
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		log:         logger,
	}, nil
}

// Navigate opens the URL in the shared tab and returns the page title.
func (b *browserSession) Navigate(_ context.Context, url string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	runCtx, cancel := context.WithTimeout(b.tabCtx, browserActionTimeout)
	defer cancel()
	var title string
	if err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.Title(&title),
	); err != nil {
		if b.log != nil {
			b.log.Warn("live browser navigate failed", "url", url, "err", err)
		}
		return "", err
	}
	if b.log != nil {
		b.log.Debug("live browser navigate ok", "url", url, "title", title)
	}
	return title, nil
}

// Screenshot captures the current tab as PNG.
func (b *browserSession) Screenshot(_ context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	runCtx, cancel := context.WithTimeout(b.tabCtx, browserActionTimeout)
	defer cancel()
	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		if b.log != nil {
			b.log.Warn("live browser screenshot failed", "err", err)
		}
		return nil, err
	}
	return buf, nil
}

func (b *browserSession) Close() {
	b.tabCancel()
	b.allocCancel()
	if b.log != nil {
		b.log.Info("live browser closed")
	}
}
