package ipc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"feedbreakd/internal/uievent"
)

// Common errors
var (
	ErrNotConnected     = errors.New("not connected to daemon")
	ErrConnectionLost   = errors.New("connection to daemon lost")
	ErrTimeout          = errors.New("request timeout")
	ErrDaemonNotRunning = errors.New("daemon is not running")
)

// IPCClient is the client for communicating with the feedbreakd daemon
type IPCClient struct {
	mu            sync.RWMutex
	conn          net.Conn
	socketPath    string
	subID         string
	readerStarted bool

	// Connection state
	connected    atomic.Bool
	reconnecting atomic.Bool

	// Request handling
	pending   map[uint32]chan *Message
	pendingMu sync.Mutex
	nextReqID atomic.Uint32

	// Event handling
	eventChan    chan *Event
	eventHandler EventHandler
	eventMu      sync.RWMutex

	// Reconnection
	autoReconnect bool
	reconnectWait time.Duration
	maxReconnect  int

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Configuration
	config ClientConfig
}

// ClientConfig configures the IPC client
type ClientConfig struct {
	SocketPath     string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	AutoReconnect  bool
	ReconnectWait  time.Duration
	MaxReconnect   int
}

// DefaultClientConfig returns sensible defaults
func DefaultClientConfig(runtimeDir string) ClientConfig {
	return ClientConfig{
		SocketPath:     filepath.Join(runtimeDir, "feedbreakd.sock"),
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 30 * time.Second,
		AutoReconnect:  true,
		ReconnectWait:  time.Second,
		MaxReconnect:   3,
	}
}

// EventHandler is called when events are received
type EventHandler func(event *Event)

// NewClient creates a new IPC client
func NewClient(cfg ClientConfig) *IPCClient {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &IPCClient{
		socketPath:    cfg.SocketPath,
		pending:       make(map[uint32]chan *Message),
		eventChan:     make(chan *Event, 100),
		autoReconnect: cfg.AutoReconnect,
		reconnectWait: cfg.ReconnectWait,
		maxReconnect:  cfg.MaxReconnect,
		ctx:           ctx,
		cancel:        cancel,
		config:        cfg,
	}
}

// Connect establishes a connection to the daemon
func (c *IPCClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected.Load() {
		return nil
	}

	if err := c.dialLocked(); err != nil {
		return err
	}

	// One reader for the client's lifetime; reconnects reuse it
	if !c.readerStarted {
		c.readerStarted = true
		c.wg.Add(1)
		go c.readLoop()
	}

	return nil
}

// dialLocked dials the daemon socket. Caller holds c.mu.
func (c *IPCClient) dialLocked() error {
	dialer := net.Dialer{
		Timeout: c.config.ConnectTimeout,
	}

	conn, err := dialer.Dial("unix", c.socketPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
			return ErrDaemonNotRunning
		}
		return fmt.Errorf("connect: %w", err)
	}

	c.conn = conn
	c.connected.Store(true)
	return nil
}

// Close closes the connection to the daemon
func (c *IPCClient) Close() error {
	c.cancel()
	c.close()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		close(c.eventChan)
	case <-time.After(2 * time.Second):
	}

	return nil
}

// close closes the connection without signaling shutdown
func (c *IPCClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected.Store(false)

	// Cancel all pending requests
	c.pendingMu.Lock()
	for _, ch := range c.pending {
		close(ch)
	}
	c.pending = make(map[uint32]chan *Message)
	c.pendingMu.Unlock()
}

// IsConnected returns whether the client is connected
func (c *IPCClient) IsConnected() bool {
	return c.connected.Load()
}

// SetEventHandler sets the handler for streamed events
func (c *IPCClient) SetEventHandler(handler EventHandler) {
	c.eventMu.Lock()
	defer c.eventMu.Unlock()
	c.eventHandler = handler
}

// Events returns the event channel for streaming events
func (c *IPCClient) Events() <-chan *Event {
	return c.eventChan
}

// request sends a request and waits for a response
func (c *IPCClient) request(msgType MessageType, payload any) (*Message, error) {
	return c.requestWithTimeout(msgType, payload, c.config.RequestTimeout)
}

// requestWithTimeout sends a request with a custom timeout
func (c *IPCClient) requestWithTimeout(msgType MessageType, payload any, timeout time.Duration) (*Message, error) {
	if !c.connected.Load() {
		return nil, ErrNotConnected
	}

	var data []byte
	if payload != nil {
		var err error
		data, err = Encode(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
	}

	reqID := c.nextReqID.Add(1)
	msg := NewMessage(msgType, reqID, data)

	respChan := make(chan *Message, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = respChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return nil, ErrNotConnected
	}

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := msg.Write(conn); err != nil {
		c.close()
		return nil, fmt.Errorf("write message: %w", err)
	}

	select {
	case resp, ok := <-respChan:
		if !ok {
			return nil, ErrConnectionLost
		}
		return resp, nil
	case <-time.After(timeout):
		return nil, ErrTimeout
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

// readLoop reads messages from the connection
func (c *IPCClient) readLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			if c.autoReconnect {
				c.tryReconnect()
				continue
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		msg, err := ReadMessage(conn)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}

			// Idle timeout: ping to keep the connection alive
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				c.sendPing()
				continue
			}

			c.close()
			if c.autoReconnect {
				c.tryReconnect()
				continue
			}
			return
		}

		c.handleMessage(msg)
	}
}

// handleMessage processes an incoming message
func (c *IPCClient) handleMessage(msg *Message) {
	switch msg.Header.Type {
	case MsgPong:
		// Response to a Ping request; keep-alive pongs have no
		// pending entry and are ignored.
		c.pendingMu.Lock()
		if ch, ok := c.pending[msg.Header.RequestID]; ok {
			select {
			case ch <- msg:
			default:
			}
		}
		c.pendingMu.Unlock()

	case MsgPing:
		// Respond to ping
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn != nil {
			pong := NewMessage(MsgPong, msg.Header.RequestID, nil)
			pong.Write(conn)
		}

	case MsgEvent:
		var event Event
		if err := Decode(msg.Payload, &event); err == nil {
			select {
			case c.eventChan <- &event:
			default:
				// Channel full, drop event
			}

			c.eventMu.RLock()
			handler := c.eventHandler
			c.eventMu.RUnlock()
			if handler != nil {
				go handler(&event)
			}
		}

	default:
		// Response to a request
		c.pendingMu.Lock()
		if ch, ok := c.pending[msg.Header.RequestID]; ok {
			select {
			case ch <- msg:
			default:
			}
		}
		c.pendingMu.Unlock()
	}
}

// sendPing sends a ping to keep connection alive
func (c *IPCClient) sendPing() {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn != nil {
		msg := NewMessage(MsgPing, c.nextReqID.Add(1), nil)
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		msg.Write(conn)
	}
}

// tryReconnect attempts to reconnect to the daemon
func (c *IPCClient) tryReconnect() {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return // Already reconnecting
	}
	defer c.reconnecting.Store(false)

	for i := 0; i < c.maxReconnect; i++ {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.reconnectWait):
		}

		c.mu.Lock()
		err := c.dialLocked()
		c.mu.Unlock()
		if err == nil {
			return
		}
	}
}

// expect validates a response message against the wanted type,
// converting daemon error responses into errors.
func (c *IPCClient) expect(resp *Message, want MessageType) error {
	if resp.Header.Type == MsgError {
		var errResp ErrorResponse
		Decode(resp.Payload, &errResp)
		if errResp.Message != "" {
			return errors.New(errResp.Message)
		}
		return errors.New("daemon error")
	}
	if resp.Header.Type != want {
		return fmt.Errorf("unexpected response type: %d", resp.Header.Type)
	}
	return nil
}

// High-level API methods

// Ping checks if the daemon is responsive
func (c *IPCClient) Ping() error {
	resp, err := c.requestWithTimeout(MsgPing, nil, 5*time.Second)
	if err != nil {
		return err
	}
	return c.expect(resp, MsgPong)
}

// Status requests the daemon status
func (c *IPCClient) Status(includeHealth, includeJournal bool) (*StatusResponse, error) {
	req := &StatusRequest{
		IncludeHealth:  includeHealth,
		IncludeJournal: includeJournal,
	}

	resp, err := c.request(MsgStatusRequest, req)
	if err != nil {
		return nil, err
	}
	if err := c.expect(resp, MsgStatusResponse); err != nil {
		return nil, err
	}

	var status StatusResponse
	if err := Decode(resp.Payload, &status); err != nil {
		return nil, err
	}

	return &status, nil
}

// Version requests the daemon version
func (c *IPCClient) Version() (*VersionResponse, error) {
	resp, err := c.request(MsgVersionRequest, nil)
	if err != nil {
		return nil, err
	}
	if err := c.expect(resp, MsgVersionResponse); err != nil {
		return nil, err
	}

	var version VersionResponse
	if err := Decode(resp.Payload, &version); err != nil {
		return nil, err
	}

	return &version, nil
}

// GetState requests the full engine state snapshot
func (c *IPCClient) GetState() (*StateResponse, error) {
	resp, err := c.request(MsgGetState, nil)
	if err != nil {
		return nil, err
	}
	if err := c.expect(resp, MsgStateResponse); err != nil {
		return nil, err
	}

	var state StateResponse
	if err := Decode(resp.Payload, &state); err != nil {
		return nil, err
	}

	return &state, nil
}

// GetForeground requests the current foreground app
func (c *IPCClient) GetForeground() (*ForegroundResponse, error) {
	resp, err := c.request(MsgGetForeground, nil)
	if err != nil {
		return nil, err
	}
	if err := c.expect(resp, MsgForegroundResponse); err != nil {
		return nil, err
	}

	var fg ForegroundResponse
	if err := Decode(resp.Payload, &fg); err != nil {
		return nil, err
	}

	return &fg, nil
}

// RecentBlocks requests recent block decisions. An empty app means all
// apps; a non-positive limit uses the daemon default.
func (c *IPCClient) RecentBlocks(app string, limit int) (*RecentBlocksResponse, error) {
	req := &RecentBlocksRequest{
		App:   app,
		Limit: limit,
	}

	resp, err := c.request(MsgRecentBlocks, req)
	if err != nil {
		return nil, err
	}
	if err := c.expect(resp, MsgRecentBlocksResp); err != nil {
		return nil, err
	}

	var blocks RecentBlocksResponse
	if err := Decode(resp.Payload, &blocks); err != nil {
		return nil, err
	}

	return &blocks, nil
}

// Pause suspends enforcement
func (c *IPCClient) Pause() error {
	resp, err := c.request(MsgPause, nil)
	if err != nil {
		return err
	}
	if err := c.expect(resp, MsgPauseResp); err != nil {
		return err
	}

	var result PauseResponse
	if err := Decode(resp.Payload, &result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("pause failed: %s", result.Error)
	}

	return nil
}

// Resume re-enables enforcement
func (c *IPCClient) Resume() error {
	resp, err := c.request(MsgResume, nil)
	if err != nil {
		return err
	}
	if err := c.expect(resp, MsgResumeResp); err != nil {
		return err
	}

	var result ResumeResponse
	if err := Decode(resp.Payload, &result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("resume failed: %s", result.Error)
	}

	return nil
}

// Reload asks the daemon to re-read its configuration file
func (c *IPCClient) Reload() error {
	resp, err := c.request(MsgReload, nil)
	if err != nil {
		return err
	}
	if err := c.expect(resp, MsgReloadResp); err != nil {
		return err
	}

	var result ReloadResponse
	if err := Decode(resp.Payload, &result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("reload failed: %s", result.Error)
	}

	return nil
}

// InjectEvent feeds one raw UI event into the daemon's detection
// pipeline
func (c *IPCClient) InjectEvent(raw uievent.Raw) (*InjectEventResponse, error) {
	req := &InjectEventRequest{Event: raw}

	resp, err := c.requestWithTimeout(MsgInjectEvent, req, 5*time.Second)
	if err != nil {
		return nil, err
	}
	if err := c.expect(resp, MsgInjectEventResp); err != nil {
		return nil, err
	}

	var result InjectEventResponse
	if err := Decode(resp.Payload, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// Subscribe subscribes to events. An empty list subscribes to all.
func (c *IPCClient) Subscribe(events []EventType) error {
	req := &SubscribeRequest{
		Events: events,
	}

	resp, err := c.request(MsgSubscribe, req)
	if err != nil {
		return err
	}
	if err := c.expect(resp, MsgSubscribeResp); err != nil {
		return err
	}

	var result SubscribeResponse
	if err := Decode(resp.Payload, &result); err != nil {
		return err
	}
	if !result.Success {
		return errors.New("subscription failed")
	}

	c.mu.Lock()
	c.subID = result.SubscriptionID
	c.mu.Unlock()

	return nil
}

// Unsubscribe cancels the event subscription
func (c *IPCClient) Unsubscribe() error {
	c.mu.RLock()
	subID := c.subID
	c.mu.RUnlock()

	req := &UnsubscribeRequest{SubscriptionID: subID}

	resp, err := c.request(MsgUnsubscribe, req)
	if err != nil {
		return err
	}
	return c.expect(resp, MsgUnsubscribeResp)
}
