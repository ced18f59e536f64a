package feed

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/webdevsk/linkedin-feed-job-scraper/internal/linkedin"
)

// snapshotJS enumerates the currently-present posts under the feed root in
// document order.
const snapshotJS = `([rootSel, postSel]) => {
	const root = document.querySelector(rootSel)
	if (!root) throw new Error("feed root not found")
	return Array.from(root.querySelectorAll(postSel)).map((el) => ({
		key: el.getAttribute("data-id"),
		html: el.outerHTML,
	}))
}`

// installJS arms a MutationObserver on the feed root. Only added nodes that
// directly match the post selector are reported (descendants of added
// containers are LinkedIn chrome, not posts). One binding call per mutation
// batch preserves recorded order.
const installJS = `([rootSel, postSel, bindingName]) => {
	const root = document.querySelector(rootSel)
	if (!root) throw new Error("feed root not found")
	const observer = new MutationObserver((mutationList) => {
		const batch = []
		for (const mutation of mutationList) {
			for (const node of mutation.addedNodes) {
				if (node.nodeType === Node.ELEMENT_NODE && node.matches(postSel)) {
					batch.push({ key: node.getAttribute("data-id"), html: node.outerHTML })
				}
			}
		}
		if (batch.length) window[bindingName](batch)
	})
	observer.observe(root, { childList: true, subtree: true })
	window.__feedObserverStops = window.__feedObserverStops || {}
	window.__feedObserverStops[bindingName] = () => observer.disconnect()
}`

// Observer watches the live feed for post elements: an initial snapshot of
// everything already rendered, then incremental discovery as the scroll loop
// makes the feed grow. Element HTML is lifted out of the page so extraction
// runs on a stable snapshot, not a node the virtual scroller may recycle.
type Observer struct {
	page    playwright.Page
	binding string
	d       *dispatcher
	stop    sync.Once
}

// StartObserver arms observation and synchronously delivers the initial
// snapshot before returning. An error here (feed root vanished between
// readiness and start) means nothing stays armed.
func StartObserver(page playwright.Page, onElement OnElement) (*Observer, error) {
	o := &Observer{
		page: page,
		// Unique per observer: playwright bindings can't be unregistered, so
		// restarted sessions on the same page need fresh names.
		binding: "__feedEmit_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		d:       newDispatcher(onElement),
	}

	if err := page.ExposeFunction(o.binding, o.onBatch); err != nil {
		return nil, fmt.Errorf("expose observer binding: %w", err)
	}

	// Install before snapshotting. A post rendered between the two calls then
	// shows up twice instead of never; repeats are absorbed by the idempotent
	// upsert.
	if _, err := page.Evaluate(installJS, []string{linkedin.SelFeedRoot, linkedin.SelPost, o.binding}); err != nil {
		return nil, fmt.Errorf("install mutation observer: %w", err)
	}
	raw, err := page.Evaluate(snapshotJS, []string{linkedin.SelFeedRoot, linkedin.SelPost})
	if err != nil {
		o.Stop()
		return nil, fmt.Errorf("snapshot feed posts: %w", err)
	}

	o.d.batch(decodeBatch(raw))
	return o, nil
}

// onBatch receives one mutation batch from the page binding.
func (o *Observer) onBatch(args ...interface{}) interface{} {
	if len(args) == 0 {
		return nil
	}
	o.d.batch(decodeBatch(args[0]))
	return nil
}

// Stop disconnects the page-side observer and discards anything still
// queued. Idempotent; safe when the page is already gone.
func (o *Observer) Stop() {
	o.stop.Do(func() {
		o.d.stop()
		_, _ = o.page.Evaluate(
			`(name) => { window.__feedObserverStops?.[name]?.(); delete window.__feedObserverStops?.[name] }`,
			o.binding)
	})
}

func decodeBatch(raw interface{}) []Added {
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	batch := make([]Added, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		key, _ := m["key"].(string)
		html, _ := m["html"].(string)
		if html == "" {
			continue
		}
		batch = append(batch, Added{Key: key, HTML: html})
	}
	return batch
}
