// Package ipc provides inter-process communication between the feedbreakd
// daemon and client applications (CLI, status widgets, event bridges).
//
// The protocol is designed for:
// - Request/response pattern for commands
// - Event streaming for decisions and state snapshots
// - Fixed binary framing with JSON payloads
// - Protocol versioning for compatibility
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"feedbreakd/internal/engine"
	"feedbreakd/internal/health"
	"feedbreakd/internal/uievent"
)

// Protocol version for compatibility checking
const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x46495043 // "FIPC" - Feedbreak IPC
)

// MessageType identifies the type of IPC message
type MessageType uint16

const (
	// Control messages (0x00xx)
	MsgPing            MessageType = 0x0001
	MsgPong            MessageType = 0x0002
	MsgError           MessageType = 0x0003
	MsgStatusRequest   MessageType = 0x0004
	MsgStatusResponse  MessageType = 0x0005
	MsgVersionRequest  MessageType = 0x0006
	MsgVersionResponse MessageType = 0x0007

	// Observation (0x01xx)
	MsgGetState           MessageType = 0x0100
	MsgStateResponse      MessageType = 0x0101
	MsgGetForeground      MessageType = 0x0102
	MsgForegroundResponse MessageType = 0x0103
	MsgRecentBlocks       MessageType = 0x0104
	MsgRecentBlocksResp   MessageType = 0x0105

	// Engine control (0x02xx)
	MsgPause           MessageType = 0x0200
	MsgPauseResp       MessageType = 0x0201
	MsgResume          MessageType = 0x0202
	MsgResumeResp      MessageType = 0x0203
	MsgReload          MessageType = 0x0204
	MsgReloadResp      MessageType = 0x0205
	MsgInjectEvent     MessageType = 0x0206
	MsgInjectEventResp MessageType = 0x0207

	// Event streaming (0x03xx)
	MsgSubscribe       MessageType = 0x0300
	MsgSubscribeResp   MessageType = 0x0301
	MsgUnsubscribe     MessageType = 0x0302
	MsgUnsubscribeResp MessageType = 0x0303
	MsgEvent           MessageType = 0x0304
)

// EventType identifies the type of streamed event
type EventType uint16

const (
	EventDecision       EventType = 0x0001
	EventStateSnapshot  EventType = 0x0002
	EventConfigReloaded EventType = 0x0003
	EventDaemonShutdown EventType = 0x0004
)

// Header is the fixed-size message header (16 bytes)
type Header struct {
	Magic     uint32      // Protocol magic number
	Version   uint8       // Protocol version
	Flags     uint8       // Message flags
	Type      MessageType // Message type
	RequestID uint32      // Request ID for correlation
	Length    uint32      // Payload length (not including header)
}

// HeaderSize is the size of the header in bytes
const HeaderSize = 16

// MaxPayloadSize bounds a single message payload. Control traffic is
// small; the cap only exists to stop a misbehaving peer from forcing a
// huge allocation.
const MaxPayloadSize = 4 * 1024 * 1024

// Header flags
const (
	FlagJSON uint8 = 0x01
)

// Message wraps a header and payload
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Flags:     FlagJSON,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// Write writes the header to a writer
func (h *Header) Write(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads a header from a reader
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}

	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}

	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}

	return h, nil
}

// Write writes the message to a writer
func (m *Message) Write(w io.Writer) error {
	if err := m.Header.Write(w); err != nil {
		return err
	}
	if len(m.Payload) > 0 {
		_, err := w.Write(m.Payload)
		return err
	}
	return nil
}

// ReadMessage reads a complete message from a reader
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > MaxPayloadSize {
			return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Request/Response payloads

// ErrorResponse is sent when an operation fails
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error codes
const (
	ErrUnknown        = 1
	ErrInvalidRequest = 2
	ErrNotFound       = 3
	ErrUnavailable    = 4
	ErrInternalError  = 5
)

// StatusRequest requests daemon status
type StatusRequest struct {
	IncludeHealth  bool `json:"include_health,omitempty"`
	IncludeJournal bool `json:"include_journal,omitempty"`
}

// StatusResponse contains daemon status
type StatusResponse struct {
	Version    string                 `json:"version"`
	StartedAt  time.Time              `json:"started_at"`
	Uptime     time.Duration          `json:"uptime"`
	Running    bool                   `json:"running"`
	Paused     bool                   `json:"paused"`
	Foreground string                 `json:"foreground,omitempty"`
	EventsSeen uint64                 `json:"events_seen"`
	Journal    *JournalStatus         `json:"journal,omitempty"`
	Health     *health.HealthResponse `json:"health,omitempty"`
}

// JournalStatus summarizes the decision journal
type JournalStatus struct {
	Enabled bool      `json:"enabled"`
	Blocks  int64     `json:"blocks"`
	Dropped int64     `json:"dropped"`
	FirstAt time.Time `json:"first_at,omitempty"`
	LastAt  time.Time `json:"last_at,omitempty"`
}

// VersionResponse contains daemon version info
type VersionResponse struct {
	Version         string `json:"version"`
	ProtocolVersion uint8  `json:"protocol_version"`
}

// StateResponse is the engine state snapshot. The snapshot types carry
// their own JSON tags, so the engine's view is the wire view.
type StateResponse = engine.StateSnapshot

// ForegroundRequest requests the current foreground app
type ForegroundRequest struct{}

// ForegroundResponse describes the current foreground app
type ForegroundResponse struct {
	App         string    `json:"app,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Since       time.Time `json:"since,omitempty"`
	Phase       string    `json:"phase,omitempty"`
	SwipeCount  int       `json:"swipe_count,omitempty"`
}

// RecentBlocksRequest requests recent block decisions from the journal
type RecentBlocksRequest struct {
	App   string `json:"app,omitempty"` // Filter to one app
	Limit int    `json:"limit,omitempty"`
}

// BlockInfo describes one journaled decision
type BlockInfo struct {
	App         string    `json:"app"`
	DisplayName string    `json:"display_name,omitempty"`
	Reason      string    `json:"reason"`
	Detail      string    `json:"detail,omitempty"`
	Dropped     bool      `json:"dropped"`
	At          time.Time `json:"at"`
}

// RecentBlocksResponse contains recent block decisions
type RecentBlocksResponse struct {
	Total  int         `json:"total"`
	Blocks []BlockInfo `json:"blocks"`
}

// PauseRequest suspends enforcement
type PauseRequest struct{}

// PauseResponse acknowledges a pause
type PauseResponse struct {
	Success bool   `json:"success"`
	Paused  bool   `json:"paused"`
	Error   string `json:"error,omitempty"`
}

// ResumeRequest resumes enforcement
type ResumeRequest struct{}

// ResumeResponse acknowledges a resume
type ResumeResponse struct {
	Success bool   `json:"success"`
	Paused  bool   `json:"paused"`
	Error   string `json:"error,omitempty"`
}

// ReloadRequest asks the daemon to reload its configuration file
type ReloadRequest struct{}

// ReloadResponse acknowledges a reload
type ReloadResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// InjectEventRequest feeds one raw UI event into the detection pipeline.
// Used by event bridges and for calibration replay.
type InjectEventRequest struct {
	Event uievent.Raw `json:"event"`
}

// InjectEventResponse acknowledges an injected event
type InjectEventResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// SubscribeRequest requests event subscription
type SubscribeRequest struct {
	Events []EventType `json:"events"` // Empty means all events
}

// SubscribeResponse acknowledges subscription
type SubscribeResponse struct {
	Success        bool   `json:"success"`
	SubscriptionID string `json:"subscription_id"`
}

// UnsubscribeRequest requests event unsubscription
type UnsubscribeRequest struct {
	SubscriptionID string `json:"subscription_id"`
}

// UnsubscribeResponse acknowledges unsubscription
type UnsubscribeResponse struct {
	Success bool `json:"success"`
}

// Event is a streamed event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Encode encodes a payload to JSON bytes
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes JSON bytes to a payload
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewErrorMessage creates an error message
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	payload, _ := Encode(&ErrorResponse{
		Code:    code,
		Message: message,
	})
	return NewMessage(MsgError, requestID, payload)
}

// NewResponse creates a response message
func NewResponse(msgType MessageType, requestID uint32, v any) (*Message, error) {
	payload, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return NewMessage(msgType, requestID, payload), nil
}
