package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"go.opentelemetry.io/otel/trace"

	"github.com/wfunc/crosskey/broadcast"
	"github.com/wfunc/crosskey/config"
	"github.com/wfunc/crosskey/logger"
	"github.com/wfunc/crosskey/models"
	"github.com/wfunc/crosskey/monitor"
	"github.com/wfunc/crosskey/network"
	"github.com/wfunc/crosskey/puzzle"
	"github.com/wfunc/crosskey/room"
	"github.com/wfunc/crosskey/services"
	"github.com/wfunc/crosskey/session"
	"github.com/wfunc/crosskey/timer"
	"github.com/wfunc/crosskey/tracing"
)

const (
	shutdownTimeout = 5 * time.Second
	gaugeInterval   = 5 * time.Second
	// outboxSize 每个连接的待发送队列长度, 超出即断开
	outboxSize = 64
)

// Options carries the collaborators main wires in. Zero values are usable.
type Options struct {
	Version string
	Monitor *monitor.Monitor
	Audit   services.Recorder
	// Clock is the server receive time used by time-sensitive puzzles.
	Clock func() time.Time
	// CodeGenerator overrides room.GenerateCode.
	CodeGenerator func() (string, error)
}

// Server 配对引擎: HTTP + WebSocket 入口, 房间网关与事件路由
type Server struct {
	cfg         *config.Config
	params      puzzle.Params
	registry    *room.Registry
	sessions    *session.Manager
	broadcaster *broadcast.RoomBroadcaster
	monitor     *monitor.Monitor
	audit       services.Recorder
	upgrader    websocket.Upgrader
	tracer      trace.Tracer
	now         func() time.Time
	genCode     func() (string, error)
	version     string
}

func NewServer(cfg *config.Config, opts Options) *Server {
	s := &Server{
		cfg:      cfg,
		registry: room.NewRegistry(),
		sessions: session.NewManager(),
		monitor:  opts.Monitor,
		audit:    opts.Audit,
		tracer:   tracing.Tracer("github.com/wfunc/crosskey/server"),
		now:      opts.Clock,
		genCode:  opts.CodeGenerator,
		version:  opts.Version,
		params: puzzle.Params{
			AudioThreshold:   cfg.Puzzle.AudioThreshold,
			ShakeThreshold:   cfg.Puzzle.ShakeThreshold,
			ShakeMinInterval: cfg.Puzzle.ShakeMinInterval,
			ShakeRequired:    cfg.Puzzle.ShakeRequired,
		},
	}
	if s.monitor == nil {
		s.monitor = monitor.NewMonitor(cfg.Monitor.Namespace)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.genCode == nil {
		s.genCode = room.GenerateCode
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.broadcaster = broadcast.NewRoomBroadcaster(s.registry, s.sessions)
	return s
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.HTTPAddress,
		Handler:           s.Handler(),
		IdleTimeout:       10 * time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
	}

	timers := timer.NewManager(100 * time.Millisecond)
	timers.Add("heartbeat", s.cfg.Server.Heartbeat, s.cfg.Server.Heartbeat, s.pingAll)
	timers.Add("gauges", 0, gaugeInterval, s.sampleGauges)
	defer timers.Stop()

	errs := make(chan error, 1)
	go func() {
		logger.Log.Infof("Pairing server listening on %s%s/ws", s.cfg.Server.HTTPAddress, s.cfg.Server.Prefix)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err, ok := <-errs:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.closeAll()
	return err
}

// Handler builds the HTTP routes.
func (s *Server) Handler() http.Handler {
	prefix := s.cfg.Server.Prefix
	mux := httprouter.New()
	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		logger.Log.Errorw("handler panic", "path", r.URL.Path, "panic", v)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}

	mux.GET(prefix+"/ws", s.handleWebSocket)
	mux.GET(prefix+"/healthz", s.serveHealthCheck)
	mux.GET(prefix+"/version", s.serveVersion)
	mux.GET(prefix+"/qr/:code", s.serveQR)
	mux.Handler(http.MethodGet, prefix+"/metrics", s.monitor.Handler())

	if s.cfg.Server.Profile {
		registerProfileHandlers(prefix, mux)
	}
	return mux
}

// checkOrigin allows requests without an Origin header and, when an
// allow-list is configured, only exact matches.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.Server.AllowOrigins) == 0 {
		return true
	}
	return slices.Contains(s.cfg.Server.AllowOrigins, origin)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Debugf("Failed to upgrade connection from %s: %v", realIP(r), err)
		return
	}
	s.handleConnection(network.NewWSConnection(conn), realIP(r))
}

// handleConnection owns one connection until it closes.
func (s *Server) handleConnection(conn network.Connection, remoteIP string) {
	sess := session.NewSession(uuid.New().String(), conn)
	sess.RemoteIP = remoteIP
	sess.Start(outboxSize)
	s.sessions.Add(sess)
	s.monitor.IncConnections()
	conn.SetHeartbeat(s.cfg.Server.Heartbeat)

	logger.Log.Infof("New connection from %s, session ID: %s", remoteIP, sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", remoteIP, sess.GetID())
		s.handleDisconnect(sess)
		s.sessions.Remove(sess.GetID())
		s.monitor.DecConnections()
		_ = sess.Close()
	}()

	ctx := context.Background()
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			if errors.Is(err, network.ErrMalformedFrame) {
				logger.Log.Debugf("Dropping frame from %s: %v", sess.GetID(), err)
				continue
			}
			return
		}
		sess.Touch()
		s.dispatch(ctx, sess, frame)
	}
}

func (s *Server) pingAll() {
	for _, sess := range s.sessions.All() {
		if err := sess.Ping(); err != nil {
			logger.Log.Debugf("Ping to %s failed: %v", sess.GetID(), err)
		}
	}
}

func (s *Server) sampleGauges() {
	s.monitor.SetActiveRooms(s.registry.Count())
}

// closeAll closes hijacked websocket connections, which http.Server.Shutdown
// does not track. Each reader then runs its normal leave handling.
func (s *Server) closeAll() {
	for _, sess := range s.sessions.All() {
		_ = sess.Close()
	}
}

func (s *Server) record(evt models.RoomEvent) {
	if s.audit == nil {
		return
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.now()
	}
	s.audit.Record(evt)
}
