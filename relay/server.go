package relay

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"mchat/logger"
)

type Config struct {
	Addr           string
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendQueue      int
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":3001"
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 64 * 1024
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
}

// Server forwards chat events between connected users and acknowledges
// sends. It keeps no history; a user who is offline simply misses events.
type Server struct {
	cfg      Config
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*Session

	httpMu  sync.Mutex
	httpSrv *http.Server
}

// Stats is served on /stats.
type Stats struct {
	Connections int      `json:"connections"`
	Users       []string `json:"users"`
}

func New(cfg Config, log zerolog.Logger) *Server {
	cfg.setDefaults()
	return &Server{
		cfg:    cfg,
		logger: log.With().Str(logger.FieldComponent, "relay").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sessions: make(map[string]*Session),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/stats", s.handleStats)
	return mux
}

// Run serves on cfg.Addr until ctx is cancelled, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", s.cfg.Addr)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpMu.Lock()
	s.httpSrv = srv
	s.httpMu.Unlock()

	served := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(served)
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("Relay started")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serve")
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-served:
			return nil
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown stops accepting connections and closes every session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.httpMu.Lock()
	srv := s.httpSrv
	s.httpMu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}

	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	for _, sess := range sessions {
		sess.close(websocket.CloseGoingAway, "relay shutting down")
	}
	s.logger.Info().Int("sessions", len(sessions)).Msg("Relay stopped")
	return err
}

func (s *Server) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		users = append(users, id)
	}
	sort.Strings(users)
	return Stats{Connections: len(s.sessions), Users: users}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Stats()); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write stats")
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "user query parameter required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str(logger.FieldUserID, userID).Msg("WebSocket upgrade failed")
		return
	}

	sess := newSession(s, userID, conn)
	s.register(sess)

	go sess.writePump()
	sess.readPump()
}

// register adds sess, replacing any older session of the same user.
func (s *Server) register(sess *Session) {
	s.mu.Lock()
	old := s.sessions[sess.UserID]
	s.sessions[sess.UserID] = sess
	s.mu.Unlock()

	if old != nil {
		s.logger.Info().
			Str(logger.FieldUserID, sess.UserID).
			Str(logger.FieldSessionID, old.ID).
			Msg("Replacing older session")
		old.close(websocket.ClosePolicyViolation, "replaced by a newer session")
		// Others already see this user online; only the new session needs
		// the current roster.
		s.sendPresence(sess)
		return
	}

	sess.logger.Info().Msg("Client connected")
	s.sendPresence(sess)
	s.notifyOnline(sess.UserID)
}

// unregister removes sess unless it was already replaced.
func (s *Server) unregister(sess *Session) {
	s.mu.Lock()
	current, ok := s.sessions[sess.UserID]
	if !ok || current != sess {
		s.mu.Unlock()
		return
	}
	delete(s.sessions, sess.UserID)
	s.mu.Unlock()

	sess.logger.Info().Msg("Client disconnected")
	s.notifyOffline(sess.UserID, time.Now().UTC())
}

// others returns every session not belonging to userID.
func (s *Server) others(userID string) []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		if id != userID {
			out = append(out, sess)
		}
	}
	return out
}
