package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/greenfelt/casino/internal/blackjack"
	"github.com/greenfelt/casino/internal/poker"
	"github.com/greenfelt/casino/internal/protocol"
)

// Server is the WebSocket casino server: one poker table, one
// blackjack table, a session registry and the snapshot dispatcher.
type Server struct {
	cfg       *Config
	upgrader  websocket.Upgrader
	mux       *http.ServeMux
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	registry  *Registry
	poker     *PokerLobby
	blackjack *BlackjackLobby

	mu          sync.RWMutex
	connections map[*Connection]bool

	register   chan *Connection
	unregister chan *Connection
}

// NewServer wires the lobbies, registry and HTTP routes
func NewServer(cfg *Config, logger *log.Logger, clock quartz.Clock) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:      logger.WithPrefix("server"),
		ctx:         ctx,
		cancel:      cancel,
		connections: make(map[*Connection]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
	}

	s.registry = NewRegistry(cfg.Server.StartingBalance, logger, clock)
	s.poker = NewPokerLobby(cfg.PokerConfig(), s.registry, logger, clock)
	s.poker.SetNotify(s.broadcastPoker)
	s.blackjack = NewBlackjackLobby(cfg.BlackjackConfig(), s.registry, logger, clock)
	s.blackjack.SetNotify(s.broadcastBlackjack)

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	s.mux.HandleFunc("/health", s.handleHealth)
	return s
}

// Handler exposes the HTTP routes, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens on the configured address and serves until ctx ends
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}
	s.logger.Info("listening", "addr", ln.Addr().String())
	return s.Serve(ctx, ln)
}

// Serve runs the connection loop and HTTP server over a listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpSrv := &http.Server{Handler: s.mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.run(ctx)
		return nil
	})
	g.Go(func() error {
		err := httpSrv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		s.Stop()
		return httpSrv.Shutdown(context.Background())
	})
	return g.Wait()
}

// Stop closes every connection and halts the run loop
func (s *Server) Stop() {
	s.cancel()

	s.mu.Lock()
	for conn := range s.connections {
		_ = conn.Close()
	}
	s.mu.Unlock()
}

// run owns the connection set
func (s *Server) run(ctx context.Context) {
	for {
		select {
		case conn := <-s.register:
			s.mu.Lock()
			s.connections[conn] = true
			total := len(s.connections)
			s.mu.Unlock()
			s.logger.Info("client connected", "total", total)

		case conn := <-s.unregister:
			s.mu.Lock()
			_, known := s.connections[conn]
			delete(s.connections, conn)
			total := len(s.connections)
			s.mu.Unlock()
			if known {
				s.dropSession(conn)
			}
			_ = conn.Close()
			s.logger.Info("client disconnected", "total", total)

		case <-ctx.Done():
			return
		case <-s.ctx.Done():
			return
		}
	}
}

// dropSession cleans up after a closed connection: the seat default
// action fires immediately and everyone learns about the departure.
func (s *Server) dropSession(conn *Connection) {
	name := conn.Name()
	if name == "" {
		return
	}

	s.registry.Unbind(name)
	s.poker.Disconnect(name)
	s.blackjack.Disconnect(name)

	s.logger.Info("session ended", "user", name)
	if env, err := protocol.New(protocol.KeyDisconnect, protocol.DisconnectPayload{Name: name}); err == nil {
		s.broadcastAll(env)
	}
	s.broadcastPoker()
	s.broadcastBlackjack()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade connection", "error", err)
		return
	}

	conn := NewConnection(ws, s, s.logger)
	s.register <- conn
	conn.Start()

	if env, err := protocol.New(protocol.KeyWelcome, protocol.WelcomePayload{
		Server:  "casino",
		Message: "welcome, send JOIN to identify yourself",
	}); err == nil {
		_ = conn.Send(env)
	}

	go func() {
		<-conn.ctx.Done()
		s.unregister <- conn
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

// dispatch routes one decoded envelope from a connection
func (s *Server) dispatch(c *Connection, env *protocol.Envelope) {
	s.logger.Debug("received message", "key", env.Key, "user", c.Name())

	if env.Key == protocol.KeyJoin {
		s.handleJoin(c, env)
		return
	}

	user := c.Name()
	if user == "" {
		c.sendError(env.RequestID, "not_identified", "Send JOIN with a name first")
		return
	}

	switch env.Key {
	case protocol.KeyMove:
		s.handleMove(c, env, user)

	case protocol.KeyJoinPoker:
		s.lobbyCall(c, env, s.broadcastPoker, s.poker.Join(user))
	case protocol.KeyLeavePoker:
		s.lobbyCall(c, env, s.broadcastPoker, s.poker.Leave(user))
	case protocol.KeyStartPoker:
		s.lobbyCall(c, env, s.broadcastPoker, s.poker.StartHand(user))
	case protocol.KeyEndPoker:
		s.lobbyCall(c, env, s.broadcastPoker, s.poker.EndGame(user))
	case protocol.KeyPokerAction:
		var p protocol.PokerActionPayload
		if err := env.DecodePayload(&p); err != nil {
			s.logger.Warn("dropping invalid payload", "key", env.Key, "error", err)
			return
		}
		s.lobbyCall(c, env, s.broadcastPoker, s.poker.Act(user, poker.Action(p.Action), p.Amount))

	case protocol.KeyJoinBlackjack:
		var p protocol.JoinBlackjackPayload
		if len(env.Payload) > 0 {
			if err := env.DecodePayload(&p); err != nil {
				s.logger.Warn("dropping invalid payload", "key", env.Key, "error", err)
				return
			}
		}
		s.lobbyCall(c, env, s.broadcastBlackjack, s.blackjack.Join(user, p.SeatID))
	case protocol.KeyLeaveBlackjack:
		s.lobbyCall(c, env, s.broadcastBlackjack, s.blackjack.Leave(user))
	case protocol.KeyBlackjackAction:
		var p protocol.BlackjackActionPayload
		if err := env.DecodePayload(&p); err != nil {
			s.logger.Warn("dropping invalid payload", "key", env.Key, "error", err)
			return
		}
		s.lobbyCall(c, env, s.broadcastBlackjack, s.blackjack.Act(user, blackjack.Action(p.Action), p.Amount))

	default:
		// Server-to-client keys arriving inbound are ignored
		s.logger.Debug("ignoring inbound server key", "key", env.Key)
	}
}

// lobbyCall reports a rejection to the actor only, or broadcasts the
// new state to everyone on success.
func (s *Server) lobbyCall(c *Connection, env *protocol.Envelope, broadcast func(), err error) {
	if err != nil {
		c.sendError(env.RequestID, "illegal_action", err.Error())
		return
	}
	broadcast()
}

func (s *Server) handleJoin(c *Connection, env *protocol.Envelope) {
	var p protocol.JoinPayload
	if err := env.DecodePayload(&p); err != nil {
		s.logger.Warn("dropping invalid payload", "key", env.Key, "error", err)
		return
	}

	if existing := c.Name(); existing != "" {
		c.sendError(env.RequestID, "already_identified", "Session is already bound to "+existing)
		return
	}
	if err := s.registry.Bind(p.Name, c); err != nil {
		c.sendError(env.RequestID, "name_taken", err.Error())
		return
	}
	c.SetName(p.Name)
	s.logger.Info("session identified", "user", p.Name)

	// New sessions get the current picture of both tables
	s.sendPokerState(c)
	s.sendBlackjackState(c)
}

func (s *Server) handleMove(c *Connection, env *protocol.Envelope, user string) {
	var p protocol.MovePayload
	if err := env.DecodePayload(&p); err != nil {
		s.logger.Warn("dropping invalid payload", "key", env.Key, "error", err)
		return
	}
	p.Name = user
	if out, err := protocol.New(protocol.KeyMove, p); err == nil {
		s.broadcastAll(out)
	}
}

// broadcastAll delivers one envelope to every connection
func (s *Server) broadcastAll(env *protocol.Envelope) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.connections {
		if err := conn.Send(env); err != nil {
			s.logger.Error("broadcast delivery failed", "user", conn.Name(), "error", err)
		}
	}
}

// broadcastPoker sends the lobby roster to everyone and a per-viewer
// game snapshot, so hole cards reach only their owner.
func (s *Server) broadcastPoker() {
	lobbyEnv, err := protocol.New(protocol.KeyPokerLobbyState, s.poker.LobbyState())
	if err != nil {
		s.logger.Error("failed to build lobby state", "error", err)
		return
	}

	s.mu.RLock()
	conns := make([]*Connection, 0, len(s.connections))
	for conn := range s.connections {
		conns = append(conns, conn)
	}
	s.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.Send(lobbyEnv)
		gameEnv, err := protocol.New(protocol.KeyPokerGameState, s.poker.StateFor(conn.Name()))
		if err != nil {
			s.logger.Error("failed to build game state", "error", err)
			continue
		}
		gameEnv.LobbyID = "poker"
		_ = conn.Send(gameEnv)
	}
}

// broadcastBlackjack sends the lobby roster and the public table state
func (s *Server) broadcastBlackjack() {
	lobbyEnv, err := protocol.New(protocol.KeyBlackjackLobbyState, s.blackjack.LobbyState())
	if err != nil {
		s.logger.Error("failed to build lobby state", "error", err)
		return
	}
	gameEnv, err := protocol.New(protocol.KeyBlackjackGameState, s.blackjack.State())
	if err != nil {
		s.logger.Error("failed to build game state", "error", err)
		return
	}
	gameEnv.LobbyID = "blackjack"

	s.broadcastAll(lobbyEnv)
	s.broadcastAll(gameEnv)
}

func (s *Server) sendPokerState(c *Connection) {
	if env, err := protocol.New(protocol.KeyPokerLobbyState, s.poker.LobbyState()); err == nil {
		_ = c.Send(env)
	}
	if env, err := protocol.New(protocol.KeyPokerGameState, s.poker.StateFor(c.Name())); err == nil {
		env.LobbyID = "poker"
		_ = c.Send(env)
	}
}

func (s *Server) sendBlackjackState(c *Connection) {
	if env, err := protocol.New(protocol.KeyBlackjackLobbyState, s.blackjack.LobbyState()); err == nil {
		_ = c.Send(env)
	}
	if env, err := protocol.New(protocol.KeyBlackjackGameState, s.blackjack.State()); err == nil {
		env.LobbyID = "blackjack"
		_ = c.Send(env)
	}
}
