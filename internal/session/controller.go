package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/webdevsk/linkedin-feed-job-scraper/internal/control"
	"github.com/webdevsk/linkedin-feed-job-scraper/internal/feed"
	"github.com/webdevsk/linkedin-feed-job-scraper/internal/linkedin"
	"github.com/webdevsk/linkedin-feed-job-scraper/internal/notify"
	"github.com/webdevsk/linkedin-feed-job-scraper/internal/store"
)

// State of the controller's lifecycle.
type State int

const (
	// StateIdle: not on a ready feed page.
	StateIdle State = iota
	// StateReady: feed present, no active scrape.
	StateReady
	// StateRunning: observer armed, auto-scroll advancing.
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	}
	return "unknown"
}

// ObserverStarter arms feed observation with the given callback and returns
// an idempotent stop. An error means nothing was armed.
type ObserverStarter func(onElement feed.OnElement) (stop func(), err error)

// Deps wires the controller's collaborators. Advance performs one scroll
// step; Pause idles between steps and must honor context cancellation.
type Deps struct {
	Messenger     control.Messenger
	Posts         *store.PostStore
	Classifier    *linkedin.Classifier
	Notifier      *notify.Notifier
	StartObserver ObserverStarter
	Advance       func() error
	Pause         func(context.Context)
	MaxAccepted   int
}

// Controller is the scrape-session state machine. It binds the readiness
// gate, the feed observer, extraction, classification and the post store,
// reacts to start/stop commands from other contexts, and reports progress.
//
// Every asynchronous continuation is guarded by a per-start generation
// token: once a session stops (or the page invalidates), late callbacks and
// late storage results are discarded rather than acted on.
type Controller struct {
	ctx  context.Context
	deps Deps

	mu           sync.Mutex
	state        State
	sessionID    string
	generation   string
	scanned      int
	accepted     int
	misses       *linkedin.BodyMissCounter
	stopObserver func()
	cancelScroll context.CancelFunc
	unregister   []func()
}

// NewController creates a controller bound to the daemon lifetime ctx.
func NewController(ctx context.Context, deps Deps) *Controller {
	return &Controller{ctx: ctx, deps: deps, state: StateIdle}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Counters returns the live session counters.
func (c *Controller) Counters() (scanned, accepted int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scanned, c.accepted
}

// HandleReady is the readiness gate's onReady hook: Idle → Ready. Announces
// readiness and subscribes to start/stop commands for this ready period.
func (c *Controller) HandleReady() {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return
	}
	c.state = StateReady
	c.sessionID = uuid.NewString()
	sessionID := c.sessionID
	c.mu.Unlock()

	log.Println("✅ Feed ready for scraping")
	if err := c.deps.Messenger.AnnounceReadyState(c.ctx, sessionID, true); err != nil {
		log.Printf("⚠️ Failed to announce ready state: %v", err)
	}

	unreg := c.deps.Messenger.RegisterCommands(c.requestStart, c.requestStop)
	c.mu.Lock()
	c.unregister = append(c.unregister, unreg)
	c.mu.Unlock()
}

// HandleInvalidated is the gate's teardown hook: any state → Idle. Performs
// the full stop cleanup, removes command subscriptions and announces
// non-ready and non-running.
func (c *Controller) HandleInvalidated() {
	c.mu.Lock()
	gen := c.generation
	running := c.state == StateRunning
	c.mu.Unlock()
	if running {
		c.stopSession(gen, "")
	}

	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	c.state = StateIdle
	c.generation = ""
	sessionID := c.sessionID
	c.sessionID = ""
	unregs := c.unregister
	c.unregister = nil
	c.mu.Unlock()

	log.Println("🛑 Scrape context invalidated, shutting down session")
	for _, u := range unregs {
		u()
	}
	if err := c.deps.Messenger.AnnounceRunningState(c.ctx, sessionID, false); err != nil {
		log.Printf("⚠️ Failed to announce running state: %v", err)
	}
	if err := c.deps.Messenger.AnnounceReadyState(c.ctx, sessionID, false); err != nil {
		log.Printf("⚠️ Failed to announce ready state: %v", err)
	}
}

func (c *Controller) requestStart() {
	if err := c.Start(); err != nil {
		msg := fmt.Sprintf("Could not start scraping: %v", err)
		c.deps.Messenger.Notice(msg)
		if nerr := c.deps.Notifier.Failure(msg); nerr != nil {
			log.Printf("⚠️ Failed to send failure notice: %v", nerr)
		}
	}
}

func (c *Controller) requestStop() {
	if err := c.Stop(); err != nil {
		c.deps.Messenger.Notice(fmt.Sprintf("Could not stop scraping: %v", err))
	}
}

// Start transitions Ready → Running: resets the session counters, announces
// the running state (which must be acknowledged), arms the observer and
// kicks off the scroll-advance loop. An arming failure aborts only this
// attempt and leaves the controller Ready.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.state != StateReady {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot start while %s", state)
	}
	gen := uuid.NewString()
	c.generation = gen
	c.scanned = 0
	c.accepted = 0
	c.misses = linkedin.NewBodyMissCounter()
	sessionID := c.sessionID
	c.mu.Unlock()

	if err := c.deps.Messenger.AnnounceRunningState(c.ctx, sessionID, true); err != nil {
		c.mu.Lock()
		if c.generation == gen {
			c.generation = ""
		}
		c.mu.Unlock()
		return fmt.Errorf("announce running state: %w", err)
	}

	stop, err := c.deps.StartObserver(func(el feed.Element) bool {
		return c.handleElement(gen, el)
	})
	if err != nil {
		c.mu.Lock()
		if c.generation == gen {
			c.generation = ""
		}
		c.mu.Unlock()
		if aerr := c.deps.Messenger.AnnounceRunningState(c.ctx, sessionID, false); aerr != nil {
			log.Printf("⚠️ Failed to revert running state: %v", aerr)
		}
		return fmt.Errorf("arm feed observer: %w", err)
	}

	scrollCtx, cancel := context.WithCancel(c.ctx)
	c.mu.Lock()
	if c.generation != gen {
		// Invalidated (or failed fatally) while arming.
		c.mu.Unlock()
		stop()
		cancel()
		return fmt.Errorf("session ended during start")
	}
	c.state = StateRunning
	c.stopObserver = stop
	c.cancelScroll = cancel
	c.mu.Unlock()

	log.Println("▶️ Scrape session started")
	go c.scrollLoop(scrollCtx, gen)
	return nil
}

// Stop transitions Running → Ready on user request.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state != StateRunning {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("no active session while %s", state)
	}
	gen := c.generation
	c.mu.Unlock()
	c.stopSession(gen, "")
	return nil
}

// stopSession performs the Running → Ready cleanup: stop the observer, stop
// the scroll loop, announce non-running. A non-empty reason marks a failure
// stop and is surfaced to the user. No-op when gen is no longer current.
func (c *Controller) stopSession(gen, reason string) {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}
	c.generation = ""
	if c.state == StateRunning {
		c.state = StateReady
	}
	stop := c.stopObserver
	c.stopObserver = nil
	cancel := c.cancelScroll
	c.cancelScroll = nil
	scanned, accepted := c.scanned, c.accepted
	sessionID := c.sessionID
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	if cancel != nil {
		cancel()
	}
	if err := c.deps.Messenger.AnnounceRunningState(c.ctx, sessionID, false); err != nil {
		log.Printf("⚠️ Failed to announce running state: %v", err)
	}

	if reason != "" {
		log.Printf("❌ Session stopped: %s", reason)
		c.deps.Messenger.Notice(reason)
		if err := c.deps.Notifier.Failure(reason); err != nil {
			log.Printf("⚠️ Failed to send failure notice: %v", err)
		}
		return
	}
	log.Printf("⏹️ Session stopped: scanned %d, accepted %d", scanned, accepted)
	if err := c.deps.Notifier.SessionSummary(scanned, accepted); err != nil {
		log.Printf("⚠️ Failed to send session summary: %v", err)
	}
}

// handleElement runs the per-element pipeline: count, extract, classify,
// persist, push progress. Errors local to one element never end the
// session; stale selectors and storage failures do. Returns false to tell
// the observer to stop delivering.
func (c *Controller) handleElement(gen string, el feed.Element) bool {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return false
	}
	c.scanned++
	misses := c.misses
	c.mu.Unlock()

	post := linkedin.NewPost(el.Sel, el.Reshared, misses)
	defer post.Dispose()

	cand, err := post.Extract()
	switch {
	case errors.Is(err, linkedin.ErrStaleSelectors):
		go c.stopSession(gen, "Scraping appears broken: the post body selector keeps failing, selectors may be outdated.")
		return false
	case errors.Is(err, linkedin.ErrNoPostID) || errors.Is(err, linkedin.ErrNoBody):
		log.Printf("⏭️ Skipping post %s: %v", el.Key, err)
	case err != nil:
		log.Printf("⚠️ Extraction failed for post %s: %v", el.Key, err)
	default:
		if c.deps.Classifier.IsHiring(cand.PostBody) {
			if !c.persist(gen, cand) {
				return false
			}
		}
	}

	c.pushProgress(gen)

	if c.deps.MaxAccepted > 0 {
		c.mu.Lock()
		reached := c.generation == gen && c.accepted >= c.deps.MaxAccepted
		c.mu.Unlock()
		if reached {
			log.Printf("🏁 Session cap of %d posts reached", c.deps.MaxAccepted)
			go c.stopSession(gen, "")
			return false
		}
	}

	c.mu.Lock()
	live := c.generation == gen
	c.mu.Unlock()
	return live
}

// persist upserts one accepted candidate. Returns false when the session
// must stop. The generation is checked before the write and again after it:
// a result resolving after a stop must not count or push.
func (c *Controller) persist(gen string, cand *linkedin.Candidate) bool {
	c.mu.Lock()
	live := c.generation == gen
	c.mu.Unlock()
	if !live {
		return false
	}

	if _, err := c.deps.Posts.Upsert(c.ctx, []linkedin.Candidate{*cand}); err != nil {
		var verr *store.ValidationError
		if errors.As(err, &verr) {
			// One bad record doesn't end the session.
			log.Printf("⚠️ Rejected post %s: %v", cand.PostID, verr)
			c.deps.Messenger.Notice(fmt.Sprintf("Rejected a scraped post: %v", verr))
			return true
		}
		go c.stopSession(gen, fmt.Sprintf("Failed to write scraped posts to storage: %v", err))
		return false
	}

	c.mu.Lock()
	if c.generation == gen {
		c.accepted++
	}
	c.mu.Unlock()
	return true
}

// pushProgress sends the counters after one element, never coalesced.
func (c *Controller) pushProgress(gen string) {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}
	p := control.Progress{ScrapedPostCount: c.accepted, ScannedPostCount: c.scanned}
	c.mu.Unlock()
	c.deps.Messenger.PushProgress(p)
}

// scrollLoop keeps the feed growing while the session runs.
func (c *Controller) scrollLoop(ctx context.Context, gen string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		c.mu.Lock()
		live := c.generation == gen
		c.mu.Unlock()
		if !live {
			return
		}
		if err := c.deps.Advance(); err != nil {
			log.Printf("⚠️ Scroll advance failed: %v", err)
		}
		c.deps.Pause(ctx)
	}
}
