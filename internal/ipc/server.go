package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"feedbreakd/internal/engine"
	"feedbreakd/internal/logging"
)

// Handler processes IPC messages
type Handler interface {
	// HandleMessage processes a message and returns a response
	HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error)
}

// HandlerFunc is a function that implements Handler
type HandlerFunc func(ctx context.Context, client *Client, msg *Message) (*Message, error)

func (f HandlerFunc) HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	return f(ctx, client, msg)
}

// Server is the IPC server that manages client connections
type Server struct {
	mu          sync.RWMutex
	listener    net.Listener
	socketPath  string
	handler     Handler
	clients     map[string]*Client
	subscribers map[string]*subscription
	log         *logging.Logger

	readTimeout    time.Duration
	writeTimeout   time.Duration
	maxConnections int

	// Shutdown coordination
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	// Request ID counter for server-initiated messages
	nextRequestID atomic.Uint32

	// Unix nanos of the last snapshot broadcast
	lastSnapshotNs atomic.Int64

	// Event channel for broadcasting. Never closed; the broadcaster
	// exits through ctx.
	eventChan chan *Event
}

// Client represents a connected client
type Client struct {
	mu           sync.Mutex
	ID           string
	conn         net.Conn
	Creds        *PeerCredentials // nil when the platform cannot report them
	ConnectedAt  time.Time
	LastActivity time.Time

	// Write serialization
	writeMu sync.Mutex
}

// subscription tracks event subscriptions
type subscription struct {
	clientID string
	events   map[EventType]bool
}

// ServerConfig configures the IPC server
type ServerConfig struct {
	SocketPath     string // Unix socket path
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxConnections int
}

// DefaultServerConfig returns sensible defaults
func DefaultServerConfig(runtimeDir string) ServerConfig {
	return ServerConfig{
		SocketPath:     filepath.Join(runtimeDir, "feedbreakd.sock"),
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxConnections: 32,
	}
}

// NewServer creates a new IPC server
func NewServer(cfg ServerConfig, handler Handler) (*Server, error) {
	if cfg.SocketPath == "" {
		return nil, errors.New("socket path required")
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 32
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		socketPath:     cfg.SocketPath,
		handler:        handler,
		readTimeout:    cfg.ReadTimeout,
		writeTimeout:   cfg.WriteTimeout,
		maxConnections: cfg.MaxConnections,
		clients:        make(map[string]*Client),
		subscribers:    make(map[string]*subscription),
		log:            logging.Default().WithComponent("ipc"),
		ctx:            ctx,
		cancel:         cancel,
		eventChan:      make(chan *Event, 100),
	}, nil
}

// Start begins listening for connections
func (s *Server) Start() error {
	socketDir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(socketDir, 0700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	// Remove stale socket file
	if err := CleanupSocket(s.socketPath); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}

	// Owner only; the socket is the whole control surface
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("set socket permissions: %w", err)
	}

	s.listener = listener
	s.running.Store(true)

	s.wg.Add(1)
	go s.eventBroadcaster()

	s.wg.Add(1)
	go s.acceptLoop()

	s.log.Info("control socket listening", "path", s.socketPath)
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil // Already stopped
	}

	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for _, client := range s.clients {
		client.conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.log.Warn("timed out waiting for connection handlers")
	}

	os.Remove(s.socketPath)
	s.log.Info("control socket closed")

	return nil
}

// Running reports whether the server is accepting connections.
func (s *Server) Running() bool {
	return s.running.Load()
}

// SocketPath returns the socket path
func (s *Server) SocketPath() string {
	return s.socketPath
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast sends an event to all subscribed clients. Never blocks;
// events are dropped when the broadcast queue is full.
func (s *Server) Broadcast(event *Event) {
	if !s.running.Load() {
		return
	}
	select {
	case s.eventChan <- event:
	default:
	}
}

// snapshotInterval thins the snapshot stream for subscribers. The
// engine publishes one snapshot per processed event, which during a
// swipe burst is far more than a monitoring client needs.
const snapshotInterval = 200 * time.Millisecond

// Update implements engine.DiagnosticsSink, forwarding engine state
// snapshots to snapshot subscribers at most every snapshotInterval.
func (s *Server) Update(snapshot engine.StateSnapshot) {
	now := snapshot.Time.UnixNano()
	last := s.lastSnapshotNs.Load()
	if now-last < int64(snapshotInterval) {
		return
	}
	if !s.lastSnapshotNs.CompareAndSwap(last, now) {
		return
	}

	s.Broadcast(&Event{
		Type:      EventStateSnapshot,
		Timestamp: snapshot.Time,
		Data:      snapshot,
	})
}

// PublishDecision broadcasts a block decision to subscribers.
func (s *Server) PublishDecision(ev engine.BlockEvent) {
	s.Broadcast(&Event{
		Type:      EventDecision,
		Timestamp: ev.Time,
		Data:      ev,
	})
}

// PublishConfigReloaded broadcasts a config-reload notification.
func (s *Server) PublishConfigReloaded() {
	s.Broadcast(&Event{
		Type:      EventConfigReloaded,
		Timestamp: time.Now(),
	})
}

// PublishShutdown broadcasts a shutdown notification. Best-effort; call
// before Stop.
func (s *Server) PublishShutdown() {
	s.Broadcast(&Event{
		Type:      EventDaemonShutdown,
		Timestamp: time.Now(),
	})
}

// acceptLoop accepts new connections
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				if !errors.Is(err, net.ErrClosed) {
					s.log.Warn("accept failed", "err", err)
				}
				continue
			}
		}

		if !s.admit(conn) {
			conn.Close()
			continue
		}

		client := &Client{
			ID:           generateClientID(),
			conn:         conn,
			ConnectedAt:  time.Now(),
			LastActivity: time.Now(),
		}
		if creds, err := GetPeerCredentials(conn); err == nil {
			client.Creds = creds
		}

		s.mu.Lock()
		s.clients[client.ID] = client
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(client)
	}
}

// admit decides whether a freshly accepted connection may proceed. The
// socket mode already restricts access to the owner; the peer
// credential check catches sockets exposed through permissive parent
// directories or inherited descriptors.
func (s *Server) admit(conn net.Conn) bool {
	s.mu.RLock()
	count := len(s.clients)
	s.mu.RUnlock()

	if count >= s.maxConnections {
		s.log.Warn("connection limit reached", "max", s.maxConnections)
		return false
	}

	same, err := VerifyPeerIsCurrentUser(conn)
	if err != nil {
		// Platform cannot report peer credentials; the socket mode is
		// the remaining gate.
		s.log.Debug("peer credentials unavailable", "err", err)
		return true
	}
	if !same {
		s.log.Warn("rejected connection from different user")
		return false
	}

	return true
}

// handleConnection handles a single client connection
func (s *Server) handleConnection(client *Client) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.clients, client.ID)
		delete(s.subscribers, client.ID)
		s.mu.Unlock()
		client.conn.Close()
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		client.conn.SetReadDeadline(time.Now().Add(s.readTimeout))

		msg, err := ReadMessage(client.conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			// Idle timeout: ping to keep the connection alive
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				s.sendPing(client)
				continue
			}
			s.log.Debug("read failed", "client", client.ID, "err", err)
			return
		}

		client.mu.Lock()
		client.LastActivity = time.Now()
		client.mu.Unlock()

		response, err := s.processMessage(client, msg)
		if err != nil {
			response = NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error())
		}

		if response != nil {
			if err := s.sendMessage(client, response); err != nil {
				return
			}
		}
	}
}

// processMessage processes a single message
func (s *Server) processMessage(client *Client, msg *Message) (*Message, error) {
	switch msg.Header.Type {
	case MsgPing:
		return NewMessage(MsgPong, msg.Header.RequestID, nil), nil

	case MsgPong:
		// Reply to a keep-alive ping; nothing to do
		return nil, nil

	case MsgSubscribe:
		return s.handleSubscribe(client, msg)

	case MsgUnsubscribe:
		return s.handleUnsubscribe(client, msg)

	default:
		if s.handler != nil {
			return s.handler.HandleMessage(s.ctx, client, msg)
		}
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "no handler"), nil
	}
}

// handleSubscribe processes event subscription
func (s *Server) handleSubscribe(client *Client, msg *Message) (*Message, error) {
	var req SubscribeRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid subscribe request"), nil
	}

	s.mu.Lock()
	sub := &subscription{
		clientID: client.ID,
		events:   make(map[EventType]bool),
	}
	if len(req.Events) == 0 {
		// Subscribe to all events
		sub.events[EventDecision] = true
		sub.events[EventStateSnapshot] = true
		sub.events[EventConfigReloaded] = true
		sub.events[EventDaemonShutdown] = true
	} else {
		for _, et := range req.Events {
			sub.events[et] = true
		}
	}
	s.subscribers[client.ID] = sub
	s.mu.Unlock()

	resp := &SubscribeResponse{
		Success:        true,
		SubscriptionID: client.ID,
	}

	return NewResponse(MsgSubscribeResp, msg.Header.RequestID, resp)
}

// handleUnsubscribe processes event unsubscription
func (s *Server) handleUnsubscribe(client *Client, msg *Message) (*Message, error) {
	s.mu.Lock()
	delete(s.subscribers, client.ID)
	s.mu.Unlock()

	return NewResponse(MsgUnsubscribeResp, msg.Header.RequestID, &UnsubscribeResponse{Success: true})
}

// eventBroadcaster broadcasts events to subscribers
func (s *Server) eventBroadcaster() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case event := <-s.eventChan:
			s.mu.RLock()
			for clientID, sub := range s.subscribers {
				if sub.events[event.Type] {
					if client, ok := s.clients[clientID]; ok {
						go s.sendEvent(client, event)
					}
				}
			}
			s.mu.RUnlock()
		}
	}
}

// sendEvent sends an event to a client
func (s *Server) sendEvent(client *Client, event *Event) {
	payload, err := Encode(event)
	if err != nil {
		return
	}

	msg := NewMessage(MsgEvent, s.nextRequestID.Add(1), payload)
	s.sendMessage(client, msg)
}

// sendMessage sends a message to a client
func (s *Server) sendMessage(client *Client, msg *Message) error {
	client.writeMu.Lock()
	defer client.writeMu.Unlock()

	client.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return msg.Write(client.conn)
}

// sendPing sends a ping to keep connection alive
func (s *Server) sendPing(client *Client) {
	msg := NewMessage(MsgPing, s.nextRequestID.Add(1), nil)
	s.sendMessage(client, msg)
}

// generateClientID generates a unique client ID
func generateClientID() string {
	return fmt.Sprintf("client-%d-%d", time.Now().UnixNano(), os.Getpid())
}
