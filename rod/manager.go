package rod

import (
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// DefaultMaxPages is the default number of pages a browser serves
// before it is recycled.
const DefaultMaxPages = 75

// BrowserManager owns a headless Chrome process and replaces it after a
// fixed number of pages. Chrome's resident memory grows with every page
// and does not return to baseline when pages close, so a long-lived
// browser eventually needs to be swapped for a fresh one.
//
// BrowserManager is safe for concurrent use.
type BrowserManager struct {
	maxPages int64

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	pages    int64
	closed   bool
}

// NewBrowserManager launches a headless Chrome browser. The browser is
// recycled once maxPages pages have been served; maxPages <= 0 selects
// DefaultMaxPages. Close must be called when the manager is no longer
// needed.
func NewBrowserManager(maxPages int64) (*BrowserManager, error) {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	bm := &BrowserManager{maxPages: maxPages}

	browser, lnchr, err := launchBrowser()
	if err != nil {
		return nil, err
	}
	bm.browser = browser
	bm.launcher = lnchr

	return bm, nil
}

// Browser returns the current browser, recycling first if the page
// count has reached the limit. Callers report served pages through
// IncrementPageCount.
func (bm *BrowserManager) Browser() *rod.Browser {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.pages >= bm.maxPages {
		bm.recycle()
	}
	return bm.browser
}

// IncrementPageCount records one served page toward the recycling
// threshold. Call it after a page has been fetched successfully.
func (bm *BrowserManager) IncrementPageCount() {
	bm.mu.Lock()
	bm.pages++
	bm.mu.Unlock()
}

// Close shuts down the browser and its launcher process. Close is safe
// to call multiple times.
func (bm *BrowserManager) Close() error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.closed {
		return nil
	}
	bm.closed = true

	var err error
	if bm.browser != nil {
		err = bm.browser.Close()
		bm.browser = nil
	}
	if bm.launcher != nil {
		bm.launcher.Kill()
		bm.launcher = nil
	}
	return err
}

// LauncherPID returns the process ID of the browser launcher, or zero
// when no browser is running.
func (bm *BrowserManager) LauncherPID() int {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	if bm.launcher == nil {
		return 0
	}
	return bm.launcher.PID()
}

// recycle swaps the current browser for a fresh one. If the fresh
// launch fails the old browser stays in service. Must be called with
// mu held.
func (bm *BrowserManager) recycle() {
	browser, lnchr, err := launchBrowser()
	if err != nil {
		return
	}

	if bm.browser != nil {
		_ = bm.browser.Close()
	}
	if bm.launcher != nil {
		bm.launcher.Kill()
	}

	bm.browser = browser
	bm.launcher = lnchr
	bm.pages = 0
}

// launchBrowser starts a headless Chrome with flags that keep
// background tabs from being throttled or deprioritized while the
// fetcher drives them.
func launchBrowser() (*rod.Browser, *launcher.Launcher, error) {
	lnchr := launcher.New().
		Set("disable-background-timer-throttling").
		Set("disable-backgrounding-occluded-windows").
		Set("disable-renderer-backgrounding").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("memory-pressure-off").
		Leakless(true).
		Headless(true)

	u, err := lnchr.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("launching browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		lnchr.Kill()
		return nil, nil, fmt.Errorf("connecting to browser: %w", err)
	}

	return browser, lnchr, nil
}
