package listing

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	defaultRenderTimeout = 45 * time.Second
	defaultCardWait      = 5 * time.Second
)

// BrowserSource renders the SGS market page in headless Chrome before
// parsing it. The page builds its listing client side, so a plain GET only
// returns the application shell.
type BrowserSource struct {
	URL       string
	UserAgent string
	// ExecPath selects the Chrome binary; empty uses the chromedp lookup.
	ExecPath string
	// Timeout bounds browser start, navigation and rendering.
	Timeout time.Duration
	// CardWait is how long to wait for the first card once the list
	// container exists. An empty market never shows one.
	CardWait time.Duration
	Logger   *slog.Logger
}

func (s *BrowserSource) Fetch(ctx context.Context) ([]Listing, error) {
	rawURL := strings.TrimSpace(s.URL)
	if rawURL == "" {
		rawURL = DefaultSGSURL
	}
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("listing url %q: %w", rawURL, err)
	}
	ua := s.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultRenderTimeout
	}
	cardWait := s.CardWait
	if cardWait <= 0 {
		cardWait = defaultCardWait
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.UserAgent(ua))
	if s.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(s.ExecPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	runCtx, cancel := context.WithTimeout(browserCtx, timeout)
	defer cancel()

	var html string
	err = chromedp.Run(runCtx,
		chromedp.Navigate(base.String()),
		chromedp.WaitReady(marketListSelector, chromedp.ByQuery),
		waitForCards(marketCardSelector, cardWait),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", base.Redacted(), err)
	}
	return parsePage(strings.NewReader(html), base, s.Logger)
}

// waitForCards polls until at least one element matches sel or d elapsed.
// Running out of time is not an error.
func waitForCards(sel string, d time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		deadline := time.Now().Add(d)
		expr := fmt.Sprintf("document.querySelectorAll(%q).length", sel)
		for {
			var n int
			if err := chromedp.Evaluate(expr, &n).Do(ctx); err != nil {
				return err
			}
			if n > 0 || time.Now().After(deadline) {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(250 * time.Millisecond):
			}
		}
	})
}
