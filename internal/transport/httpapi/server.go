// Package httpapi exposes the session orchestration operations over HTTP and
// the broadcast stream over websockets.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tepache/internal/config"
	"github.com/cory-johannsen/tepache/internal/game/capture"
	"github.com/cory-johannsen/tepache/internal/game/facade"
	"github.com/cory-johannsen/tepache/internal/game/session"
	"github.com/cory-johannsen/tepache/internal/identity"
)

// GameSessions is the game session lifecycle used by the API.
type GameSessions interface {
	Start(ctx context.Context, gameURN string) (session.GameSession, error)
	End(ctx context.Context, gameSessionURN string) (session.GameSession, error)
}

// PlayerSessions is the player session lifecycle used by the API.
type PlayerSessions interface {
	Join(ctx context.Context, gameSessionURN, uid, name string) (session.PlayerSession, error)
	Get(ctx context.Context, id string) (session.PlayerSession, error)
	GetByURN(ctx context.Context, playerSessionURN string) (session.PlayerSession, error)
	ListForUser(ctx context.Context, uid string) ([]session.PlayerSession, error)
	Rename(ctx context.Context, id, name string) (session.PlayerSession, error)
	Heartbeat(ctx context.Context, id string) (session.HeartbeatResult, error)
	View(ps session.PlayerSession) session.PlayerSessionView
	Views(list []session.PlayerSession) []session.PlayerSessionView
}

// Captures ingests captures from both channels.
type Captures interface {
	IngestDirect(ctx context.Context, req capture.DirectRequest) (capture.Result, error)
	IngestSMS(ctx context.Context, req capture.SMSRequest) (capture.Result, error)
}

// Hub registers socket clients with the broadcast coordinator.
type Hub interface {
	Connect(gameSessionURN, uid string) (*facade.Conn, error)
	Disconnect(ctx context.Context, conn *facade.Conn)
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Games    GameSessions
	Players  PlayerSessions
	Captures Captures
	Hub      Hub
	Resolver identity.Resolver
	Logger   *zap.Logger
}

const subscribePath = "/api/socket/subscribe"

// Server is the API HTTP server. It implements server.Service.
type Server struct {
	deps         Deps
	cfg          config.HTTPConfig
	socketWrite  time.Duration
	logger       *zap.Logger
	httpServer   *http.Server
	listenerAddr chan string
}

// NewServer creates a Server listening on cfg.Addr().
//
// Precondition: every field of deps must be non-nil.
// Postcondition: socketWriteTimeout <= 0 selects 10s.
func NewServer(cfg config.HTTPConfig, socketWriteTimeout time.Duration, deps Deps) *Server {
	if socketWriteTimeout <= 0 {
		socketWriteTimeout = 10 * time.Second
	}
	s := &Server{
		deps:         deps,
		cfg:          cfg,
		socketWrite:  socketWriteTimeout,
		logger:       deps.Logger,
		listenerAddr: make(chan string, 1),
	}
	s.httpServer = &http.Server{
		Addr:        cfg.Addr(),
		Handler:     s.Handler(),
		ReadTimeout: cfg.ReadTimeout,
	}
	return s
}

// Handler builds the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(identity.Middleware(s.deps.Resolver, s.logger))

	api := r.PathPrefix("/api").Subrouter()
	rest := func(path string, h http.HandlerFunc, method string) {
		api.Handle(path, s.withTimeout(h)).Methods(method)
	}

	rest("/tepache-game-sessions", s.handleStartGameSession, http.MethodPost)
	rest("/tepache-game-sessions/{gameSessionUrn}/end", s.handleEndGameSession, http.MethodPost)

	rest("/tepache-player-sessions", s.handleListPlayerSessions, http.MethodGet)
	rest("/tepache-player-sessions/{playerSessionUrn}", s.handleGetPlayerSession, http.MethodGet)
	rest("/tepache-player-sessions", s.handleJoin, http.MethodPost)
	rest("/tepache-player-sessions/{playerSessionDocumentId}", s.handleRename, http.MethodPatch)

	rest("/socket/heartbeat", s.handleHeartbeat, http.MethodPost)
	rest("/socket/tepache-session-captures", s.handleDirectCapture, http.MethodPost)
	rest("/sms/tepache-session-captures", s.handleSMSCapture, http.MethodPost)

	for _, path := range []string{"/tepache-games", "/tepache-session-captures", "/tepache-hardware-inputs", "/tepache-logs"} {
		rest(path, handleNotImplemented, http.MethodPost)
	}

	// The socket route manages its own deadlines.
	api.HandleFunc(strings.TrimPrefix(subscribePath, "/api"), s.handleSubscribe).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(handleNotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(handleNotFound)

	// mux only runs r.Use middleware on matched routes; preflights and 404s
	// still need these.
	base := s.recoverMiddleware(s.logMiddleware(corsMiddleware(s.cfg.CORSOrigins)(r)))

	// The socket route bypasses tracing so its connection can be hijacked.
	traced := otelhttp.NewHandler(base, "tepache-api")
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == subscribePath {
			base.ServeHTTP(w, req)
			return
		}
		traced.ServeHTTP(w, req)
	})
}

// Start listens and serves until Stop.
//
// Postcondition: Returns nil after Stop, or the listener error.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.listenerAddr <- ln.Addr().String()
	s.logger.Info("http api listening", zap.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down, waiting up to five seconds for in-flight requests.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}
}

// Addr blocks until Start is listening and returns the bound address.
func (s *Server) Addr(ctx context.Context) (string, error) {
	select {
	case addr := <-s.listenerAddr:
		s.listenerAddr <- addr
		return addr, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
