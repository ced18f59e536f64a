package feed

import (
	"log"
	"net/url"
	"strings"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/webdevsk/linkedin-feed-job-scraper/internal/linkedin"
)

// MatchesFeedURL reports whether raw points at the target feed: https on
// linkedin.com (any subdomain) with a /feed/ path prefix.
func MatchesFeedURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "https" {
		return false
	}
	host := u.Hostname()
	if host != "linkedin.com" && !strings.HasSuffix(host, ".linkedin.com") {
		return false
	}
	return strings.HasPrefix(u.Path, "/feed/")
}

// Gate watches page navigations and fires OnReady at most once per armed
// period: each stretch where the location matches the feed pattern and the
// feed root has rendered. OnInvalidated fires when the page navigates away
// (or the gate is torn down) after a ready period, always before any
// subsequent OnReady.
type Gate struct {
	page          playwright.Page
	onReady       func()
	onInvalidated func()

	mu         sync.Mutex
	armed      bool
	period     int
	readyFired bool
}

func NewGate(page playwright.Page, onReady, onInvalidated func()) *Gate {
	return &Gate{page: page, onReady: onReady, onInvalidated: onInvalidated}
}

// Start begins watching. The current location is evaluated immediately, then
// every main-frame navigation (LinkedIn is an SPA; same-document navigations
// still emit framenavigated).
func (g *Gate) Start() {
	g.page.On("framenavigated", func(frame playwright.Frame) {
		if frame.ParentFrame() != nil {
			return
		}
		g.handleLocation(frame.URL())
	})
	g.handleLocation(g.page.URL())
}

// Close tears the gate down, firing OnInvalidated if a ready period is open.
func (g *Gate) Close() {
	g.leaveArmedPeriod()
}

func (g *Gate) handleLocation(raw string) {
	if MatchesFeedURL(raw) {
		g.enterArmedPeriod()
		return
	}
	g.leaveArmedPeriod()
}

func (g *Gate) enterArmedPeriod() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.armed {
		// Navigation within the feed: same armed period, no re-fire.
		return
	}
	g.armed = true
	g.period++
	go g.waitForRoot(g.period)
}

func (g *Gate) leaveArmedPeriod() {
	g.mu.Lock()
	if !g.armed {
		g.mu.Unlock()
		return
	}
	g.armed = false
	g.period++
	fired := g.readyFired
	g.readyFired = false
	g.mu.Unlock()

	if fired {
		g.onInvalidated()
	}
}

// waitForRoot waits for the feed root selector to appear, however long that
// takes: the wait is bounded by the armed period, not a timeout, so a feed
// that renders late (slow login redirect, throttled connection) still fires
// OnReady. WaitForSelector rides the page's own lifecycle: navigating away
// aborts it with an error, which is absence, not failure. The period check
// discards a wait that resolves after its armed period ended.
func (g *Gate) waitForRoot(period int) {
	_, err := g.page.WaitForSelector(linkedin.SelFeedRoot, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(0),
	})
	if err != nil {
		log.Printf("⏳ Feed root did not appear this period: %v", err)
		return
	}

	g.mu.Lock()
	if !g.armed || g.period != period || g.readyFired {
		g.mu.Unlock()
		return
	}
	g.readyFired = true
	g.mu.Unlock()

	g.onReady()
}
