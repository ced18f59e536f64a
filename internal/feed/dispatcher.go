package feed

import (
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/webdevsk/linkedin-feed-job-scraper/internal/linkedin"
)

// Element is one discovered post handed to the observer callback. Sel is the
// parsed subtree of the post's HTML snapshot; Key identifies the physical
// node it came from.
type Element struct {
	Key      string
	Sel      *goquery.Selection
	Reshared bool
}

// OnElement handles one discovered element. Returning false asks the
// observer to stop; the observer itself holds no limit policy.
type OnElement func(Element) bool

// Added is one feed node reported by the page: its stable key and outer-HTML
// snapshot, in the order the DOM delivered it.
type Added struct {
	Key  string
	HTML string
}

// dispatcher turns raw added-node batches into ordered OnElement calls. It
// owns the semantics the page glue can't: per-batch double-invocation
// protection, the one-level reshare recursion (nested sub-post emitted
// immediately after its parent), and the stop guarantee that queued batches
// observed after stop are discarded, not processed.
type dispatcher struct {
	onElement OnElement

	// runMu serializes whole batches: the initial snapshot arrives on the
	// arming goroutine while mutation batches come in on binding dispatch
	// goroutines, and interleaved batches would split reshare pairs and
	// reorder deliveries.
	runMu sync.Mutex

	mu      sync.Mutex
	stopped bool
}

func newDispatcher(onElement OnElement) *dispatcher {
	return &dispatcher{onElement: onElement}
}

// batch processes one batch of added nodes in recorded order. Used for both
// the initial snapshot and incremental mutation batches: the callback
// contract is identical. Batches never interleave; onElement always sees one
// batch to completion before the next begins.
func (d *dispatcher) batch(added []Added) {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	if d.isStopped() {
		return
	}
	seen := mapset.NewThreadUnsafeSet[string]()
	for _, a := range added {
		if d.isStopped() {
			return
		}
		if !seen.Add(a.Key) {
			// Same physical node reported twice within this batch.
			continue
		}
		if !d.emit(a) {
			d.stop()
			return
		}
	}
}

// emit calls the callback for the post and then for its nested reshared
// sub-post, if any. Exactly one level: reshares don't nest further.
func (d *dispatcher) emit(a Added) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(a.HTML))
	if err != nil {
		return true
	}
	sel := doc.Find("body").Children().First()
	if sel.Length() == 0 {
		return true
	}
	if !d.onElement(Element{Key: a.Key, Sel: sel}) {
		return false
	}
	shared := sel.Find(linkedin.SelSharedPost).First()
	if shared.Length() > 0 {
		if !d.onElement(Element{Key: a.Key + "#reshared", Sel: shared, Reshared: true}) {
			return false
		}
	}
	return true
}

func (d *dispatcher) stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
}

func (d *dispatcher) isStopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}
