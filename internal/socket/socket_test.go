package socket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unigo-labs/unigo-chat/internal/identity"
	"github.com/unigo-labs/unigo-chat/internal/onboarding"
	"github.com/unigo-labs/unigo-chat/internal/render"
	"github.com/unigo-labs/unigo-chat/internal/session"
	"github.com/unigo-labs/unigo-chat/internal/store"
	"github.com/unigo-labs/unigo-chat/internal/upstream"
	"github.com/unigo-labs/unigo-chat/internal/upstream/upstreamtest"
)

const testDevice = "0b6f3a52-8d1e-4f7c-a2b9-5e4d3c2b1a09"

func TestRegistry_RegisterUnregister(t *testing.T) {
	r := NewRegistry()
	conn := &websocket.Conn{}
	key := session.Key{Device: testDevice, Tab: "tab-1"}

	r.Register(key, conn)
	assert.Same(t, conn, r.Active(key))
	assert.Equal(t, 1, r.Len())

	r.Unregister(key, conn)
	assert.Nil(t, r.Active(key))
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_UnregisterStale(t *testing.T) {
	r := NewRegistry()
	conn1 := &websocket.Conn{}
	conn2 := &websocket.Conn{}
	tab1 := session.Key{Device: testDevice, Tab: "tab-1"}
	tab2 := session.Key{Device: testDevice, Tab: "tab-2"}

	r.Register(tab1, conn1)
	r.Register(tab2, conn2)
	r.Unregister(tab1, conn2)

	assert.Same(t, conn1, r.Active(tab1))
	assert.Same(t, conn2, r.Active(tab2))
}

type socketEnv struct {
	up  *upstreamtest.Server
	srv *httptest.Server
	reg *Registry
}

func newSocketEnv(t *testing.T, autostart bool) *socketEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	up := upstreamtest.New(t)
	client, err := upstream.NewClient(upstream.ClientConfig{BaseURL: up.URL}, logger)
	require.NoError(t, err)
	set, err := onboarding.Builtin("short")
	require.NoError(t, err)

	mgr := session.NewManager(store.NewMemory(time.Hour), client, session.Options{Questions: set, Autostart: autostart}, nil, logger)
	reg := NewRegistry()
	r := chi.NewRouter()
	r.Use(identity.Middleware(true))
	r.Handle("/ws/widget", NewHandler(mgr, reg, []string{"*"}, false, true, logger))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &socketEnv{up: up, srv: srv, reg: reg}
}

func (e *socketEnv) dial(t *testing.T, tab string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := http.Header{}
	header.Set("Cookie", identity.DeviceCookieName+"="+testDevice)
	if tab != "" {
		header.Set(identity.TabHeaderName, tab)
	}
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/widget"
	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg clientFrame) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, msg))
}

// readUntil reads frames until one of type want arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want render.FrameType) []render.Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var frames []render.Frame
	for {
		var f render.Frame
		require.NoError(t, wsjson.Read(ctx, conn, &f))
		frames = append(frames, f)
		if f.Type == want || f.Type == render.FrameError {
			return frames
		}
	}
}

func snapshotOf(t *testing.T, frames []render.Frame) session.Snapshot {
	t.Helper()
	last := frames[len(frames)-1]
	require.Equal(t, render.FrameDone, last.Type, "last frame: %+v", last)
	raw, err := json.Marshal(last.Data)
	require.NoError(t, err)
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	return snap
}

func finalReveals(frames []render.Frame) []string {
	var out []string
	for _, f := range frames {
		if f.Type == render.FrameReveal && f.Final {
			out = append(out, f.Text)
		}
	}
	return out
}

func TestPingPong(t *testing.T) {
	env := newSocketEnv(t, true)
	conn := env.dial(t, "tab-a")

	send(t, conn, clientFrame{Type: clientPing})
	frames := readUntil(t, conn, render.FramePong)
	assert.Equal(t, render.FramePong, frames[len(frames)-1].Type)
}

func TestBootstrapMintsTab(t *testing.T) {
	env := newSocketEnv(t, true)
	conn := env.dial(t, "")

	send(t, conn, clientFrame{Type: clientBootstrap})
	frames := readUntil(t, conn, render.FrameDone)
	snap := snapshotOf(t, frames)

	require.NotEmpty(t, snap.TabID)
	require.NotNil(t, snap.Question)
	assert.Equal(t, []string{snap.Question.Prompt}, finalReveals(frames))
	assert.NotNil(t, env.reg.Active(session.Key{Device: testDevice, Tab: snap.TabID}))
}

func TestSubmitBeforeBootstrapWithoutTab(t *testing.T) {
	env := newSocketEnv(t, true)
	conn := env.dial(t, "")

	send(t, conn, clientFrame{Type: clientSubmit, Text: "hi"})
	frames := readUntil(t, conn, render.FrameDone)
	assert.Equal(t, render.FrameError, frames[len(frames)-1].Type)
}

func TestChatOverSocket(t *testing.T) {
	env := newSocketEnv(t, false)
	conn := env.dial(t, "tab-a")

	send(t, conn, clientFrame{Type: clientBootstrap})
	readUntil(t, conn, render.FrameDone)

	send(t, conn, clientFrame{Type: clientSubmit, Text: "안녕"})
	frames := readUntil(t, conn, render.FrameDone)
	assert.Equal(t, render.FrameUser, frames[0].Type)
	assert.Equal(t, []string{"echo: 안녕"}, finalReveals(frames))

	snap := snapshotOf(t, frames)
	assert.Equal(t, "101", snap.ConversationID)
	assert.Len(t, snap.History, 2)

	send(t, conn, clientFrame{Type: clientReset})
	snap = snapshotOf(t, readUntil(t, conn, render.FrameDone))
	assert.Empty(t, snap.History)
	assert.Empty(t, snap.ConversationID)
}

func TestOperationsRunInOrder(t *testing.T) {
	env := newSocketEnv(t, true)
	conn := env.dial(t, "tab-a")

	send(t, conn, clientFrame{Type: clientBootstrap})
	send(t, conn, clientFrame{Type: clientSubmit, Text: "수학"})
	send(t, conn, clientFrame{Type: clientSubmit, Text: "코딩"})

	readUntil(t, conn, render.FrameDone)
	readUntil(t, conn, render.FrameDone)
	snap := snapshotOf(t, readUntil(t, conn, render.FrameDone))

	assert.Equal(t, 2, snap.Onboarding.Step)
	assert.Equal(t, "수학", snap.Onboarding.Answers["subjects"])
	assert.Equal(t, "코딩", snap.Onboarding.Answers["interests"])
}

func TestReconnectReplacesSocket(t *testing.T) {
	env := newSocketEnv(t, false)
	first := env.dial(t, "tab-a")
	send(t, first, clientFrame{Type: clientPing})
	readUntil(t, first, render.FramePong)

	second := env.dial(t, "tab-a")
	send(t, second, clientFrame{Type: clientPing})
	readUntil(t, second, render.FramePong)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := first.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestCheckOrigin(t *testing.T) {
	h := NewHandler(nil, NewRegistry(), []string{"https://unigo.example"}, false, false, nil)

	r := httptest.NewRequest(http.MethodGet, "/ws/widget", nil)
	assert.True(t, h.checkOrigin(r))

	r.Header.Set("Origin", "https://unigo.example")
	assert.True(t, h.checkOrigin(r))

	r.Header.Set("Origin", "https://evil.example")
	assert.False(t, h.checkOrigin(r))
}
