package monitor

import (
	"context"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/armctl/pkg/console"
	"github.com/gwillem/armctl/pkg/link/linktest"
	"github.com/gwillem/armctl/pkg/motion"
)

func newConsole(t *testing.T) *console.Console {
	t.Helper()
	c, err := console.New(linktest.NewRecorder(), console.Config{StepDelay: -1})
	require.NoError(t, err)
	return c
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func read(t *testing.T, ws *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, ws.ReadJSON(&msg))
	return msg
}

func TestHub_ReplaysHistoryThenStreams(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newConsole(t)
	require.NoError(t, c.OpenConnection("COM3", 115200))

	hub := NewHub(nil)
	hub.Attach(ctx, c)

	srv := httptest.NewServer(hub.Handler(c.History))
	defer srv.Close()
	ws := dial(t, srv.URL)

	msg := read(t, ws)
	assert.Equal(t, "entry", msg.Type)
	require.NotNil(t, msg.Entry)
	assert.Equal(t, "port opened: COM3 @ 115200", msg.Entry.Text)

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, c.StartRamp(motion.Vector{X: 2}, 0, 10, 2))
	c.Wait()

	var progress []motion.Progress
	var texts []string
	for len(texts) < 1 || len(progress) < 2 {
		msg := read(t, ws)
		switch msg.Type {
		case "progress":
			require.NotNil(t, msg.Progress)
			progress = append(progress, *msg.Progress)
		case "entry":
			require.NotNil(t, msg.Entry)
			texts = append(texts, msg.Entry.Text)
		}
	}
	assert.Equal(t, 0, progress[0].Step)
	assert.Equal(t, 2, progress[1].Total)
	assert.Equal(t, []string{"ramp complete: 2 steps"}, texts)
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub.Handler(nil))
	defer srv.Close()

	ws := dial(t, srv.URL)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, time.Millisecond)

	ws.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, time.Millisecond)

	// Nothing left to write to.
	hub.Broadcast(Message{Type: "entry", Entry: &console.Entry{Text: "x"}})
}

func TestHub_Serve(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := newConsole(t)
	hub := NewHub(nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx, ln, c) }()

	ws := dial(t, "http://"+ln.Addr().String()+"/ws")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, time.Millisecond)
	_ = ws

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, 0, hub.Clients())
}
