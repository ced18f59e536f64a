package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webdevsk/linkedin-feed-job-scraper/internal/control"
	"github.com/webdevsk/linkedin-feed-job-scraper/internal/feed"
	"github.com/webdevsk/linkedin-feed-job-scraper/internal/linkedin"
	"github.com/webdevsk/linkedin-feed-job-scraper/internal/store"
)

type announcement struct {
	sessionID string
	flag      bool
}

// fakeMessenger records every announcement and hands the registered command
// hooks back to the test.
type fakeMessenger struct {
	mu           sync.Mutex
	ready        []announcement
	running      []announcement
	progress     []control.Progress
	notices      []string
	onStart      func()
	onStop       func()
	unregistered int
	runningErr   error
}

func (m *fakeMessenger) RegisterCommands(onStart, onStop func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStart = onStart
	m.onStop = onStop
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.unregistered++
	}
}

func (m *fakeMessenger) AnnounceReadyState(_ context.Context, sessionID string, ready bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = append(m.ready, announcement{sessionID, ready})
	return nil
}

func (m *fakeMessenger) AnnounceRunningState(_ context.Context, sessionID string, running bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if running && m.runningErr != nil {
		return m.runningErr
	}
	m.running = append(m.running, announcement{sessionID, running})
	return nil
}

func (m *fakeMessenger) PushProgress(p control.Progress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress = append(m.progress, p)
}

func (m *fakeMessenger) Notice(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, msg)
}

func (m *fakeMessenger) runningStates() []announcement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]announcement(nil), m.running...)
}

func (m *fakeMessenger) progressPushes() []control.Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]control.Progress(nil), m.progress...)
}

func (m *fakeMessenger) noticeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notices)
}

// fakeObserver captures the armed callback so tests can feed elements in by
// hand.
type fakeObserver struct {
	mu        sync.Mutex
	onElement feed.OnElement
	stops     int
	startErr  error
}

func (o *fakeObserver) start(onElement feed.OnElement) (func(), error) {
	if o.startErr != nil {
		return nil, o.startErr
	}
	o.mu.Lock()
	o.onElement = onElement
	o.mu.Unlock()
	return func() {
		o.mu.Lock()
		o.stops++
		o.mu.Unlock()
	}, nil
}

func (o *fakeObserver) deliver(t *testing.T, el feed.Element) bool {
	t.Helper()
	o.mu.Lock()
	onElement := o.onElement
	o.mu.Unlock()
	require.NotNil(t, onElement, "observer was never armed")
	return onElement(el)
}

func (o *fakeObserver) stopCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stops
}

type harness struct {
	ctrl      *Controller
	messenger *fakeMessenger
	observer  *fakeObserver
	posts     *store.PostStore
}

func newHarness(t *testing.T, maxAccepted int) *harness {
	t.Helper()

	kv, err := store.OpenKV(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	posts := store.NewPostStore(kv)

	classifier, err := linkedin.NewClassifier(
		[]string{"(is|are|am|'re) #?hiring"}, []string{"you", "they"})
	require.NoError(t, err)

	messenger := &fakeMessenger{}
	observer := &fakeObserver{}
	ctrl := NewController(context.Background(), Deps{
		Messenger:     messenger,
		Posts:         posts,
		Classifier:    classifier,
		StartObserver: observer.start,
		Advance:       func() error { return nil },
		Pause:         func(ctx context.Context) { <-ctx.Done() },
		MaxAccepted:   maxAccepted,
	})
	return &harness{ctrl: ctrl, messenger: messenger, observer: observer, posts: posts}
}

func feedElement(t *testing.T, id, body string) feed.Element {
	t.Helper()
	html := fmt.Sprintf(
		`<div data-id="urn:li:activity:%s"><div class="feed-shared-update-v2__description">%s</div></div>`,
		id, body)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return feed.Element{Key: "node-" + id, Sel: doc.Find("body").Children().First()}
}

func bodylessElement(t *testing.T, id string) feed.Element {
	t.Helper()
	html := fmt.Sprintf(`<div data-id="urn:li:activity:%s"><span>nothing</span></div>`, id)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return feed.Element{Key: "node-" + id, Sel: doc.Find("body").Children().First()}
}

func TestHandleReadyTransitionsToReady(t *testing.T) {
	h := newHarness(t, 0)

	h.ctrl.HandleReady()

	assert.Equal(t, StateReady, h.ctrl.State())
	require.Len(t, h.messenger.ready, 1)
	assert.True(t, h.messenger.ready[0].flag)
	assert.NotEmpty(t, h.messenger.ready[0].sessionID)
	assert.NotNil(t, h.messenger.onStart)
	assert.NotNil(t, h.messenger.onStop)

	// A second ready while already ready is ignored.
	h.ctrl.HandleReady()
	assert.Len(t, h.messenger.ready, 1)
}

func TestStartRequiresReady(t *testing.T) {
	h := newHarness(t, 0)
	err := h.ctrl.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "idle")
}

func TestSessionScansClassifiesAndPersists(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	h.ctrl.HandleReady()
	require.NoError(t, h.ctrl.Start())
	assert.Equal(t, StateRunning, h.ctrl.State())

	running := h.messenger.runningStates()
	require.Len(t, running, 1)
	assert.True(t, running[0].flag)

	assert.True(t, h.observer.deliver(t, feedElement(t, "101", "We are hiring engineers")))
	assert.True(t, h.observer.deliver(t, feedElement(t, "102", "Look at my cat")))

	scanned, accepted := h.ctrl.Counters()
	assert.Equal(t, 2, scanned)
	assert.Equal(t, 1, accepted)

	records, err := h.posts.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "101", records[0].PostID)

	// One progress push per element, counters as of that element.
	pushes := h.messenger.progressPushes()
	require.Len(t, pushes, 2)
	assert.Equal(t, control.Progress{ScrapedPostCount: 1, ScannedPostCount: 1}, pushes[0])
	assert.Equal(t, control.Progress{ScrapedPostCount: 1, ScannedPostCount: 2}, pushes[1])

	require.NoError(t, h.ctrl.Stop())
	assert.Equal(t, StateReady, h.ctrl.State())
	assert.Equal(t, 1, h.observer.stopCount())

	running = h.messenger.runningStates()
	require.Len(t, running, 2)
	assert.False(t, running[1].flag)
}

func TestSkippedElementsStillCountAsScanned(t *testing.T) {
	h := newHarness(t, 0)

	h.ctrl.HandleReady()
	require.NoError(t, h.ctrl.Start())

	noID := feedElement(t, "", "We are hiring")
	noID.Key = "node-anon"
	assert.True(t, h.observer.deliver(t, noID))
	assert.True(t, h.observer.deliver(t, bodylessElement(t, "103")))

	scanned, accepted := h.ctrl.Counters()
	assert.Equal(t, 2, scanned)
	assert.Zero(t, accepted)
	assert.Len(t, h.messenger.progressPushes(), 2)
}

func TestLateElementsAfterStopAreDiscarded(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	h.ctrl.HandleReady()
	require.NoError(t, h.ctrl.Start())
	require.NoError(t, h.ctrl.Stop())

	pushesBefore := len(h.messenger.progressPushes())

	// The callback captured at arm time resolves after the stop. It must be
	// inert: no counting, no writes, no pushes.
	assert.False(t, h.observer.deliver(t, feedElement(t, "104", "We are hiring")))

	scanned, accepted := h.ctrl.Counters()
	assert.Zero(t, scanned)
	assert.Zero(t, accepted)
	assert.Len(t, h.messenger.progressPushes(), pushesBefore)

	count, err := h.posts.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStopRequiresRunning(t *testing.T) {
	h := newHarness(t, 0)
	h.ctrl.HandleReady()
	err := h.ctrl.Stop()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ready")
}

func TestAnnounceFailureAbortsStart(t *testing.T) {
	h := newHarness(t, 0)
	h.messenger.runningErr = errors.New("no ack")

	h.ctrl.HandleReady()
	err := h.ctrl.Start()
	require.Error(t, err)
	assert.Equal(t, StateReady, h.ctrl.State())
	// Observer must never have been armed.
	assert.Nil(t, h.observer.onElement)

	// The failed attempt doesn't poison later ones.
	h.messenger.runningErr = nil
	require.NoError(t, h.ctrl.Start())
	assert.Equal(t, StateRunning, h.ctrl.State())
}

func TestObserverArmFailureRevertsAnnouncement(t *testing.T) {
	h := newHarness(t, 0)
	h.observer.startErr = errors.New("page gone")

	h.ctrl.HandleReady()
	err := h.ctrl.Start()
	require.Error(t, err)
	assert.Equal(t, StateReady, h.ctrl.State())

	running := h.messenger.runningStates()
	require.Len(t, running, 2)
	assert.True(t, running[0].flag)
	assert.False(t, running[1].flag)
}

func TestMaxAcceptedStopsSession(t *testing.T) {
	h := newHarness(t, 1)

	h.ctrl.HandleReady()
	require.NoError(t, h.ctrl.Start())

	assert.False(t, h.observer.deliver(t, feedElement(t, "105", "We are hiring")))

	assert.Eventually(t, func() bool {
		return h.ctrl.State() == StateReady
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.observer.stopCount())

	_, accepted := h.ctrl.Counters()
	assert.Equal(t, 1, accepted)
}

func TestStaleSelectorsEndSessionFatally(t *testing.T) {
	h := newHarness(t, 0)

	h.ctrl.HandleReady()
	require.NoError(t, h.ctrl.Start())

	for i := 0; i < 5; i++ {
		assert.True(t, h.observer.deliver(t, bodylessElement(t, fmt.Sprintf("20%d", i))))
	}
	// Sixth consecutive miss escalates and asks the observer to stop.
	assert.False(t, h.observer.deliver(t, bodylessElement(t, "206")))

	assert.Eventually(t, func() bool {
		return h.ctrl.State() == StateReady && h.messenger.noticeCount() > 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.observer.stopCount())
}

func TestHandleInvalidatedWhileRunning(t *testing.T) {
	h := newHarness(t, 0)

	h.ctrl.HandleReady()
	require.NoError(t, h.ctrl.Start())
	h.ctrl.HandleInvalidated()

	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.Equal(t, 1, h.observer.stopCount())
	assert.Equal(t, 1, h.messenger.unregistered)

	running := h.messenger.runningStates()
	require.NotEmpty(t, running)
	assert.False(t, running[len(running)-1].flag)

	// Final ready announcement retracts readiness.
	last := h.messenger.ready[len(h.messenger.ready)-1]
	assert.False(t, last.flag)

	// Armed callback from the dead session stays inert.
	assert.False(t, h.observer.deliver(t, feedElement(t, "107", "We are hiring")))
	scanned, _ := h.ctrl.Counters()
	assert.Zero(t, scanned)
}

func TestCommandsDriveController(t *testing.T) {
	h := newHarness(t, 0)

	h.ctrl.HandleReady()
	h.messenger.onStart()
	assert.Equal(t, StateRunning, h.ctrl.State())
	h.messenger.onStop()
	assert.Equal(t, StateReady, h.ctrl.State())

	// Starting twice surfaces a notice instead of an error return.
	h.messenger.onStart()
	h.messenger.onStart()
	assert.Equal(t, StateRunning, h.ctrl.State())
	assert.Equal(t, 1, h.messenger.noticeCount())
}
