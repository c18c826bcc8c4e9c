package ipc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"feedbreakd/internal/classify"
	"feedbreakd/internal/engine"
	"feedbreakd/internal/health"
	"feedbreakd/internal/store"
	"feedbreakd/internal/uievent"
)

// EngineHandler implements the Handler interface for the feedbreakd
// daemon, translating control messages into engine, journal, and health
// operations.
type EngineHandler struct {
	version   string
	startedAt time.Time

	engine   *engine.Engine
	registry *classify.Registry
	journal  *store.Store    // nil when journaling is disabled
	checker  *health.Checker // nil when health checks are disabled

	// reload re-reads and applies the daemon config; nil when the
	// daemon was started without a config file.
	reload func() error

	// Injected events go through a handler-owned normalizer so replay
	// traffic cannot disturb the host adapter's app-entry tracking.
	injectMu   sync.Mutex
	normalizer *uievent.Normalizer
}

// EngineHandlerConfig configures the daemon handler. Engine is
// required; everything else degrades to an error response when absent.
type EngineHandlerConfig struct {
	Version    string
	Engine     *engine.Engine
	Registry   *classify.Registry
	Journal    *store.Store
	Health     *health.Checker
	Normalizer *uievent.Normalizer
	Reload     func() error
}

// NewEngineHandler creates a new daemon handler
func NewEngineHandler(cfg EngineHandlerConfig) *EngineHandler {
	norm := cfg.Normalizer
	if norm == nil {
		norm = uievent.NewNormalizer("", nil)
	}
	return &EngineHandler{
		version:    cfg.Version,
		startedAt:  time.Now(),
		engine:     cfg.Engine,
		registry:   cfg.Registry,
		journal:    cfg.Journal,
		checker:    cfg.Health,
		normalizer: norm,
		reload:     cfg.Reload,
	}
}

// HandleMessage processes an IPC message
func (h *EngineHandler) HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	switch msg.Header.Type {
	case MsgStatusRequest:
		return h.handleStatus(ctx, msg)

	case MsgVersionRequest:
		return h.handleVersion(msg)

	case MsgGetState:
		return h.handleGetState(msg)

	case MsgGetForeground:
		return h.handleGetForeground(msg)

	case MsgRecentBlocks:
		return h.handleRecentBlocks(msg)

	case MsgPause:
		return h.handlePause(msg)

	case MsgResume:
		return h.handleResume(msg)

	case MsgReload:
		return h.handleReload(msg)

	case MsgInjectEvent:
		return h.handleInjectEvent(msg)

	default:
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest,
			fmt.Sprintf("unknown message type: %d", msg.Header.Type)), nil
	}
}

// handleStatus handles status requests
func (h *EngineHandler) handleStatus(ctx context.Context, msg *Message) (*Message, error) {
	var req StatusRequest
	if len(msg.Payload) > 0 {
		if err := Decode(msg.Payload, &req); err != nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid request"), nil
		}
	}

	snap := h.engine.Status()

	resp := &StatusResponse{
		Version:    h.version,
		StartedAt:  h.startedAt,
		Uptime:     time.Since(h.startedAt),
		Running:    h.engine.Running(),
		Paused:     h.engine.Paused(),
		Foreground: snap.Foreground,
		EventsSeen: snap.EventsSeen,
	}

	if req.IncludeJournal {
		resp.Journal = &JournalStatus{}
		if h.journal != nil {
			if stats, err := h.journal.Stats(); err == nil {
				resp.Journal.Enabled = true
				resp.Journal.Blocks = stats.Blocks
				resp.Journal.Dropped = stats.Dropped
				resp.Journal.FirstAt = stats.FirstAt
				resp.Journal.LastAt = stats.LastAt
			}
		}
	}

	if req.IncludeHealth && h.checker != nil {
		hr := h.checker.HealthResponse(ctx, true)
		resp.Health = &hr
	}

	return NewResponse(MsgStatusResponse, msg.Header.RequestID, resp)
}

// handleVersion handles version requests
func (h *EngineHandler) handleVersion(msg *Message) (*Message, error) {
	resp := &VersionResponse{
		Version:         h.version,
		ProtocolVersion: ProtocolVersion,
	}
	return NewResponse(MsgVersionResponse, msg.Header.RequestID, resp)
}

// handleGetState handles state snapshot requests
func (h *EngineHandler) handleGetState(msg *Message) (*Message, error) {
	snap := h.engine.Status()
	return NewResponse(MsgStateResponse, msg.Header.RequestID, snap)
}

// handleGetForeground handles foreground app requests
func (h *EngineHandler) handleGetForeground(msg *Message) (*Message, error) {
	snap := h.engine.Status()

	resp := &ForegroundResponse{}
	if snap.Foreground != "" {
		resp.App = snap.Foreground
		resp.Since = snap.ForegroundSince
		if h.registry != nil {
			resp.DisplayName = h.registry.DisplayName(snap.Foreground)
		}
		for _, app := range snap.Apps {
			if app.App == snap.Foreground {
				resp.Phase = app.Phase
				resp.SwipeCount = app.SwipeCount
				break
			}
		}
	}

	return NewResponse(MsgForegroundResponse, msg.Header.RequestID, resp)
}

// handleRecentBlocks handles journal queries
func (h *EngineHandler) handleRecentBlocks(msg *Message) (*Message, error) {
	var req RecentBlocksRequest
	if len(msg.Payload) > 0 {
		if err := Decode(msg.Payload, &req); err != nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid request"), nil
		}
	}

	if h.journal == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrUnavailable, "journal disabled"), nil
	}

	var (
		records []store.BlockRecord
		err     error
	)
	if req.App != "" {
		records, err = h.journal.RecentBlocksForApp(req.App, req.Limit)
	} else {
		records, err = h.journal.RecentBlocks(req.Limit)
	}
	if err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error()), nil
	}

	blocks := make([]BlockInfo, 0, len(records))
	for _, r := range records {
		info := BlockInfo{
			App:     r.App,
			Reason:  r.Reason,
			Detail:  r.Detail,
			Dropped: r.Dropped,
			At:      r.At,
		}
		if h.registry != nil {
			info.DisplayName = h.registry.DisplayName(r.App)
		}
		blocks = append(blocks, info)
	}

	resp := &RecentBlocksResponse{
		Total:  len(blocks),
		Blocks: blocks,
	}
	return NewResponse(MsgRecentBlocksResp, msg.Header.RequestID, resp)
}

// handlePause suspends enforcement
func (h *EngineHandler) handlePause(msg *Message) (*Message, error) {
	h.engine.Pause()
	return NewResponse(MsgPauseResp, msg.Header.RequestID, &PauseResponse{
		Success: true,
		Paused:  true,
	})
}

// handleResume resumes enforcement
func (h *EngineHandler) handleResume(msg *Message) (*Message, error) {
	h.engine.Resume()
	return NewResponse(MsgResumeResp, msg.Header.RequestID, &ResumeResponse{
		Success: true,
		Paused:  false,
	})
}

// handleReload re-reads and applies the daemon configuration
func (h *EngineHandler) handleReload(msg *Message) (*Message, error) {
	if h.reload == nil {
		return NewResponse(MsgReloadResp, msg.Header.RequestID, &ReloadResponse{
			Success: false,
			Error:   "reload not supported",
		})
	}

	resp := &ReloadResponse{Success: true}
	if err := h.reload(); err != nil {
		resp.Success = false
		resp.Error = err.Error()
	}
	return NewResponse(MsgReloadResp, msg.Header.RequestID, resp)
}

// handleInjectEvent feeds one raw UI event into the detection pipeline
func (h *EngineHandler) handleInjectEvent(msg *Message) (*Message, error) {
	var req InjectEventRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid event"), nil
	}

	if req.Event.Time.IsZero() {
		req.Event.Time = time.Now()
	}

	h.injectMu.Lock()
	ev, ok := h.normalizer.Normalize(req.Event)
	h.injectMu.Unlock()

	resp := &InjectEventResponse{}
	switch {
	case !ok:
		resp.Reason = "event filtered"
	case !h.engine.Running():
		resp.Reason = "engine not running"
	case !h.engine.Submit(ev):
		resp.Reason = "event queue full"
	default:
		resp.Accepted = true
	}

	return NewResponse(MsgInjectEventResp, msg.Header.RequestID, resp)
}
