package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/webdevsk/linkedin-feed-job-scraper/internal/store"
)

// Message kinds on the websocket channel.
const (
	msgReadyState   = "triggerReadyState"
	msgRunningState = "triggerRunningState"
	msgStart        = "triggerStart"
	msgStop         = "triggerStop"
	msgProgress     = "progress"
	msgNotice       = "notice"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type commandSub struct {
	onStart, onStop func()
}

// Server is the websocket control channel. Dashboard clients connect to /ws
// to send start/stop and receive state changes, progress pushes and notices;
// /jobs serves the stored collection for the UI and export collaborators.
//
// State announcements also land in the store (active/running session
// markers), so late-joining clients can recover the current state.
type Server struct {
	posts    *store.PostStore
	upgrader websocket.Upgrader
	httpSrv  *http.Server

	mu       sync.Mutex
	conns    map[*websocket.Conn]*sync.Mutex
	commands map[int]*commandSub
	nextSub  int
}

func NewServer(addr string, posts *store.PostStore) *Server {
	s := &Server{
		posts:    posts,
		conns:    make(map[*websocket.Conn]*sync.Mutex),
		commands: make(map[int]*commandSub),
		upgrader: websocket.Upgrader{
			// Local control channel only.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/jobs", s.handleJobs)
	s.httpSrv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// ListenAndServe blocks serving the control channel.
func (s *Server) ListenAndServe() error {
	log.Printf("🎛️ Control channel listening on %s", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.conns = make(map[*websocket.Conn]*sync.Mutex)
	s.mu.Unlock()
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("⚠️ Websocket upgrade failed: %v", err)
		return
	}
	s.mu.Lock()
	s.conns[conn] = &sync.Mutex{}
	s.mu.Unlock()
	log.Printf("🔌 UI client connected (%s)", conn.RemoteAddr())

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
		log.Printf("🔌 UI client disconnected (%s)", conn.RemoteAddr())
	}()

	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		switch env.Type {
		case msgStart:
			for _, sub := range s.snapshotCommands() {
				sub.onStart()
			}
		case msgStop:
			for _, sub := range s.snapshotCommands() {
				sub.onStop()
			}
		default:
			log.Printf("⚠️ Unknown control message %q", env.Type)
		}
	}
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	records, err := s.posts.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(records); err != nil {
		log.Printf("⚠️ Failed to encode jobs listing: %v", err)
	}
}

// RegisterCommands implements Messenger.
func (s *Server) RegisterCommands(onStart, onStop func()) (unregister func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.commands[id] = &commandSub{onStart: onStart, onStop: onStop}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.commands, id)
			s.mu.Unlock()
		})
	}
}

// AnnounceReadyState implements Messenger. The store write is the
// acknowledgment; client pushes are best effort.
func (s *Server) AnnounceReadyState(ctx context.Context, sessionID string, ready bool) error {
	marker := sessionID
	if !ready {
		marker = ""
	}
	if err := s.posts.SetActiveSession(ctx, marker); err != nil {
		return fmt.Errorf("persist ready state: %w", err)
	}
	s.broadcast(msgReadyState, ready)
	return nil
}

// AnnounceRunningState implements Messenger.
func (s *Server) AnnounceRunningState(ctx context.Context, sessionID string, running bool) error {
	marker := sessionID
	if !running {
		marker = ""
	}
	if err := s.posts.SetRunningSession(ctx, marker); err != nil {
		return fmt.Errorf("persist running state: %w", err)
	}
	s.broadcast(msgRunningState, running)
	return nil
}

// PushProgress implements Messenger.
func (s *Server) PushProgress(p Progress) {
	s.broadcast(msgProgress, p)
}

// Notice implements Messenger.
func (s *Server) Notice(msg string) {
	log.Printf("📢 %s", msg)
	s.broadcast(msgNotice, msg)
}

// broadcast sends to every connected client, dropping the ones that fail.
// A disconnected consumer never blocks the producer.
func (s *Server) broadcast(kind string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Printf("⚠️ Failed to encode %s payload: %v", kind, err)
		return
	}
	env := envelope{Type: kind, Data: payload}

	s.mu.Lock()
	conns := make(map[*websocket.Conn]*sync.Mutex, len(s.conns))
	for conn, mu := range s.conns {
		conns[conn] = mu
	}
	s.mu.Unlock()

	for conn, mu := range conns {
		mu.Lock()
		err := conn.WriteJSON(env)
		mu.Unlock()
		if err != nil {
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
			conn.Close()
		}
	}
}

func (s *Server) snapshotCommands() []*commandSub {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := make([]*commandSub, 0, len(s.commands))
	for i := 0; i < s.nextSub; i++ {
		if sub, ok := s.commands[i]; ok {
			subs = append(subs, sub)
		}
	}
	return subs
}
