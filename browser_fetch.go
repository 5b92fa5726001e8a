package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/chromedp/chromedp"
)

const browserFetchTimeout = 90 * time.Second

// fetchRenderedPage loads a page in headless Chrome and returns the
// rendered HTML. Used when WIKI_FETCH_MODE=browser, for wiki mirrors that
// sit behind JavaScript challenges the plain client cannot pass.
func fetchRenderedPage(ctx context.Context, url string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(defaultUserAgent),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, browserFetchTimeout)
	defer cancelTimeout()

	log.Printf("[I] [Scraper/Browser] Rendering %s in headless browser...", url)

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("table.wikitable", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("browser fetch of %s failed: %w", url, err)
	}
	return html, nil
}
