package ipc

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedbreakd/internal/classify"
	"feedbreakd/internal/engine"
	"feedbreakd/internal/store"
	"feedbreakd/internal/uievent"
)

func startTestEngine(t *testing.T) *engine.Engine {
	t.Helper()

	eng := engine.New(engine.DefaultConfig(), engine.Deps{})
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(func() { eng.Stop() })
	return eng
}

func startTestServer(t *testing.T, hc EngineHandlerConfig) (*Server, *IPCClient) {
	t.Helper()

	sockPath := filepath.Join(t.TempDir(), "feedbreakd.sock")
	srv, err := NewServer(ServerConfig{
		SocketPath:     sockPath,
		ReadTimeout:    2 * time.Second,
		WriteTimeout:   2 * time.Second,
		MaxConnections: 4,
	}, NewEngineHandler(hc))
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })

	client := NewClient(ClientConfig{
		SocketPath:     sockPath,
		ConnectTimeout: 2 * time.Second,
		RequestTimeout: 2 * time.Second,
	})
	require.NoError(t, client.Connect())
	t.Cleanup(func() { client.Close() })

	// One round trip so the server has registered the connection
	require.NoError(t, client.Ping())

	return srv, client
}

// ============================================================
// Lifecycle
// ============================================================

func TestServerStartStop(t *testing.T) {
	eng := startTestEngine(t)
	srv, _ := startTestServer(t, EngineHandlerConfig{Version: "test", Engine: eng})

	assert.True(t, srv.Running())
	assert.Equal(t, 1, srv.ClientCount())
	assert.True(t, IsSocketListening(srv.SocketPath()))

	require.NoError(t, srv.Stop())
	assert.False(t, srv.Running())

	// Stop is idempotent
	require.NoError(t, srv.Stop())
}

func TestServerRefusesMissingSocketPath(t *testing.T) {
	_, err := NewServer(ServerConfig{}, nil)
	require.Error(t, err)
}

func TestClientConnectNoDaemon(t *testing.T) {
	client := NewClient(ClientConfig{
		SocketPath:     filepath.Join(t.TempDir(), "absent.sock"),
		ConnectTimeout: time.Second,
	})
	err := client.Connect()
	require.ErrorIs(t, err, ErrDaemonNotRunning)
}

// ============================================================
// Request handling
// ============================================================

func TestStatusRoundTrip(t *testing.T) {
	eng := startTestEngine(t)
	_, client := startTestServer(t, EngineHandlerConfig{Version: "1.2.3", Engine: eng})

	status, err := client.Status(false, false)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", status.Version)
	assert.True(t, status.Running)
	assert.False(t, status.Paused)
	assert.Nil(t, status.Journal)
	assert.Nil(t, status.Health)
}

func TestStatusIncludesJournal(t *testing.T) {
	eng := startTestEngine(t)

	journal, err := store.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	at := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	require.NoError(t, journal.RecordDecision("app.a", "swipe_threshold", "", false, at))
	require.NoError(t, journal.RecordDecision("app.a", "scroll_burst", "", true, at.Add(time.Minute)))

	_, client := startTestServer(t, EngineHandlerConfig{Version: "test", Engine: eng, Journal: journal})

	status, err := client.Status(false, true)
	require.NoError(t, err)
	require.NotNil(t, status.Journal)
	assert.True(t, status.Journal.Enabled)
	assert.Equal(t, int64(1), status.Journal.Blocks)
	assert.Equal(t, int64(1), status.Journal.Dropped)
}

func TestVersionRoundTrip(t *testing.T) {
	eng := startTestEngine(t)
	_, client := startTestServer(t, EngineHandlerConfig{Version: "2.0.0", Engine: eng})

	v, err := client.Version()
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", v.Version)
	assert.Equal(t, uint8(ProtocolVersion), v.ProtocolVersion)
}

func TestUnknownTypeGetsErrorResponse(t *testing.T) {
	eng := startTestEngine(t)
	_, client := startTestServer(t, EngineHandlerConfig{Version: "test", Engine: eng})

	resp, err := client.request(MessageType(0x7777), nil)
	require.NoError(t, err)
	assert.Equal(t, MsgError, resp.Header.Type)

	var errResp ErrorResponse
	require.NoError(t, Decode(resp.Payload, &errResp))
	assert.Equal(t, ErrInvalidRequest, errResp.Code)
	assert.Contains(t, errResp.Message, "unknown message type")
}

func TestPauseResume(t *testing.T) {
	eng := startTestEngine(t)
	_, client := startTestServer(t, EngineHandlerConfig{Version: "test", Engine: eng})

	require.NoError(t, client.Pause())
	assert.True(t, eng.Paused())

	require.NoError(t, client.Resume())
	assert.False(t, eng.Paused())
}

func TestReloadWithoutCallback(t *testing.T) {
	eng := startTestEngine(t)
	_, client := startTestServer(t, EngineHandlerConfig{Version: "test", Engine: eng})

	err := client.Reload()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reload not supported")
}

func TestReloadInvokesCallback(t *testing.T) {
	eng := startTestEngine(t)

	called := make(chan struct{}, 1)
	_, client := startTestServer(t, EngineHandlerConfig{
		Version: "test",
		Engine:  eng,
		Reload: func() error {
			called <- struct{}{}
			return nil
		},
	})

	require.NoError(t, client.Reload())
	select {
	case <-called:
	default:
		t.Fatal("reload callback not invoked")
	}
}

func TestRecentBlocksWithoutJournal(t *testing.T) {
	eng := startTestEngine(t)
	_, client := startTestServer(t, EngineHandlerConfig{Version: "test", Engine: eng})

	_, err := client.RecentBlocks("", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal disabled")
}

func TestRecentBlocksRoundTrip(t *testing.T) {
	eng := startTestEngine(t)

	journal, err := store.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	at := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	require.NoError(t, journal.RecordDecision("com.zhiliaoapp.musically", "swipe_threshold", "markers", false, at))
	require.NoError(t, journal.RecordDecision("com.instagram.android", "scroll_burst", "burst=3", false, at.Add(time.Second)))

	_, client := startTestServer(t, EngineHandlerConfig{
		Version:  "test",
		Engine:   eng,
		Journal:  journal,
		Registry: classify.NewRegistry(),
	})

	blocks, err := client.RecentBlocks("", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, blocks.Total)
	assert.Equal(t, "com.instagram.android", blocks.Blocks[0].App)
	assert.NotEmpty(t, blocks.Blocks[0].DisplayName)

	onlyTikTok, err := client.RecentBlocks("com.zhiliaoapp.musically", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, onlyTikTok.Total)
	assert.Equal(t, "swipe_threshold", onlyTikTok.Blocks[0].Reason)
}

func TestInjectEvent(t *testing.T) {
	eng := startTestEngine(t)
	_, client := startTestServer(t, EngineHandlerConfig{Version: "test", Engine: eng})

	resp, err := client.InjectEvent(uievent.Raw{
		Package: "com.zhiliaoapp.musically",
		Type:    uievent.RawWindowStateChanged,
	})
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
	assert.Empty(t, resp.Reason)
}

func TestInjectEventFiltered(t *testing.T) {
	eng := startTestEngine(t)
	_, client := startTestServer(t, EngineHandlerConfig{Version: "test", Engine: eng})

	resp, err := client.InjectEvent(uievent.Raw{
		Package: "",
		Type:    uievent.RawWindowStateChanged,
	})
	require.NoError(t, err)
	assert.False(t, resp.Accepted)
	assert.Equal(t, "event filtered", resp.Reason)
}

// ============================================================
// Event streaming
// ============================================================

func TestSubscriptionDelivery(t *testing.T) {
	eng := startTestEngine(t)
	srv, client := startTestServer(t, EngineHandlerConfig{Version: "test", Engine: eng})

	require.NoError(t, client.Subscribe(nil))

	srv.PublishDecision(engine.BlockEvent{
		App:    "com.zhiliaoapp.musically",
		Reason: engine.ReasonSwipeThreshold,
		Time:   time.Now(),
	})

	select {
	case ev := <-client.Events():
		assert.Equal(t, EventDecision, ev.Type)
		data, ok := ev.Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "com.zhiliaoapp.musically", data["app"])
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestSubscriptionFiltering(t *testing.T) {
	eng := startTestEngine(t)
	srv, client := startTestServer(t, EngineHandlerConfig{Version: "test", Engine: eng})

	// Only decisions; snapshots must not be delivered
	require.NoError(t, client.Subscribe([]EventType{EventDecision}))

	srv.Update(engine.StateSnapshot{Time: time.Now()})
	srv.PublishDecision(engine.BlockEvent{App: "app.a", Time: time.Now()})

	select {
	case ev := <-client.Events():
		assert.Equal(t, EventDecision, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}

	select {
	case ev := <-client.Events():
		t.Fatalf("unexpected extra event: type=%d", ev.Type)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	eng := startTestEngine(t)
	srv, client := startTestServer(t, EngineHandlerConfig{Version: "test", Engine: eng})

	require.NoError(t, client.Subscribe(nil))
	require.NoError(t, client.Unsubscribe())

	srv.PublishDecision(engine.BlockEvent{App: "app.a", Time: time.Now()})

	select {
	case ev := <-client.Events():
		t.Fatalf("event delivered after unsubscribe: type=%d", ev.Type)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestSnapshotThinning(t *testing.T) {
	eng := startTestEngine(t)
	srv, client := startTestServer(t, EngineHandlerConfig{Version: "test", Engine: eng})

	require.NoError(t, client.Subscribe([]EventType{EventStateSnapshot}))

	// A burst of snapshots inside one interval collapses to one event
	base := time.Now()
	for i := 0; i < 10; i++ {
		srv.Update(engine.StateSnapshot{Time: base.Add(time.Duration(i) * time.Millisecond)})
	}

	got := 0
	deadline := time.After(500 * time.Millisecond)
	for {
		select {
		case <-client.Events():
			got++
		case <-deadline:
			assert.Equal(t, 1, got, "snapshot burst should collapse to one event")
			return
		}
	}
}
