package control

import "context"

// Progress is the live counter push for the UI. Best effort: not persisted,
// dropped when no client is listening.
type Progress struct {
	ScrapedPostCount int `json:"scrapedPostCount"`
	ScannedPostCount int `json:"scannedPostCount"`
}

// Messenger is the cross-context channel as the session controller sees it.
// Ready/running state changes go out to every connected client, start/stop
// commands come back in.
type Messenger interface {
	// RegisterCommands subscribes to start/stop requests from other contexts.
	// The returned handle removes exactly this subscription.
	RegisterCommands(onStart, onStop func()) (unregister func())

	// AnnounceReadyState reports feed readiness. sessionID marks which
	// session owns the ready page ("" on not-ready).
	AnnounceReadyState(ctx context.Context, sessionID string, ready bool) error

	// AnnounceRunningState reports the running flag. The call must be
	// acknowledged: a returned error aborts the start it belongs to.
	AnnounceRunningState(ctx context.Context, sessionID string, running bool) error

	// PushProgress forwards live counters to the UI, if one is connected.
	PushProgress(p Progress)

	// Notice surfaces a user-visible message (non-fatal failures included).
	Notice(msg string)
}
