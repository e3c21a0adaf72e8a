package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/GriffinCanCode/voicerelay/internal/metrics"
	"github.com/GriffinCanCode/voicerelay/internal/orchestrator"
	"github.com/GriffinCanCode/voicerelay/internal/syncx"
	"github.com/GriffinCanCode/voicerelay/internal/trace"
	"github.com/GriffinCanCode/voicerelay/web"
)

// Config tunes the transport. Zero fields take the package defaults.
type Config struct {
	MaxMessageBytes   int64
	QueueSize         int
	RateLimitMessages int // negative disables limiting
	RateLimitWindow   time.Duration
	Metrics           *metrics.Metrics
}

func (c Config) withDefaults() Config {
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.RateLimitMessages == 0 {
		c.RateLimitMessages = DefaultRateLimitMessages
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = DefaultRateLimitWindow
	}
	if c.Metrics == nil {
		c.Metrics = metrics.New(prometheus.NewRegistry())
	}
	return c
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	orch  *orchestrator.Orchestrator
	cfg   Config
	conns *syncx.Map[string, *websocket.Conn]
}

// New creates a new server.
func New(orch *orchestrator.Orchestrator, cfg Config) *Server {
	return &Server{
		orch:  orch,
		cfg:   cfg.withDefaults(),
		conns: syncx.NewMap[string, *websocket.Conn](),
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	// Client page
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, web.Files, "index.html")
	})
	mux.Handle("GET /static/", http.FileServerFS(web.Files))

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

// Connections returns the number of open websocket connections.
func (s *Server) Connections() int { return s.conns.Len() }

// CloseAll asks every client to go away. Their in-flight turns still finish.
func (s *Server) CloseAll() {
	for id, conn := range s.conns.Snapshot() {
		if err := conn.Close(websocket.StatusGoingAway, "server shutting down"); err != nil {
			slog.Debug("websocket close", "session_id", id, "error", err)
		}
	}
}

// Drain waits until every connection handler has returned, so in-flight
// turns get to emit their reply.
func (s *Server) Drain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for s.conns.Len() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
	conn.SetReadLimit(s.cfg.MaxMessageBytes)

	ctx, _ := trace.EnsureContext(r.Context())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := &wsEmitter{conn: conn}
	sess := s.orch.NewSession(out)
	log := trace.Logger(ctx).With("session_id", sess.ID())

	s.conns.Store(sess.ID(), conn)
	defer s.conns.Delete(sess.ID())
	log.Info("websocket connected", "remote", r.RemoteAddr)

	in := make(chan orchestrator.Event, s.cfg.QueueSize)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.Run(ctx, in)
	}()

	s.readLoop(ctx, conn, in, log)

	// Stop the session: the in-flight turn completes, queued events drop.
	cancel()
	<-done
	log.Info("websocket disconnected")
}

// readLoop feeds inbound frames to in until the connection fails. A full
// queue blocks the loop, which back-pressures the client.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, in chan<- orchestrator.Event, log *slog.Logger) {
	limiter := newRateLimiter(s.cfg.RateLimitMessages, s.cfg.RateLimitWindow)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				log.Debug("websocket read error", "error", err)
			}
			return
		}

		ev, err := decodeFrame(typ, data)
		if err != nil {
			var unknown errUnknownEvent
			switch {
			case errors.As(err, &unknown):
				log.Debug("ignoring event", "event", string(unknown))
				continue
			case ev.Reject == "":
				log.Warn("dropping malformed frame", "error", err)
				continue
			default:
				log.Warn("malformed payload", "event", wireName(ev.Kind), "error", err)
			}
		}

		// Rejections travel through the queue so their answers keep
		// the order of the frames they answer.
		if !limiter.allow() {
			name := wireName(ev.Kind)
			log.Warn("rate limit exceeded", "event", name)
			s.cfg.Metrics.RecordRateLimited(name)
			ev = orchestrator.RejectedEvent(ev.Kind, MsgRateLimited)
		}

		select {
		case in <- ev:
		case <-ctx.Done():
			return
		}
	}
}
