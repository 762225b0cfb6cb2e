package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenfelt/casino/internal/poker"
	"github.com/greenfelt/casino/internal/protocol"
)

// startTestServer runs a full server on a random port and returns the
// ws:// URL for it.
func startTestServer(t *testing.T) string {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Server.StartingBalance = 5000

	srv := NewServer(cfg, log.New(io.Discard), quartz.NewReal())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	})

	return "ws://" + ln.Addr().String() + "/ws"
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readEnvelope reads frames until one matches the wanted key
func readEnvelope(t *testing.T, conn *websocket.Conn, key protocol.Key) *protocol.Envelope {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))

	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", key)

		env, err := protocol.Decode(data)
		require.NoError(t, err)
		if env.Key == key {
			return env
		}
	}
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, key protocol.Key, payload any) {
	t.Helper()
	env, err := protocol.New(key, payload)
	require.NoError(t, err)
	data, err := env.Encode()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func join(t *testing.T, conn *websocket.Conn, name string) {
	t.Helper()
	readEnvelope(t, conn, protocol.KeyWelcome)
	sendEnvelope(t, conn, protocol.KeyJoin, protocol.JoinPayload{Name: name})
	readEnvelope(t, conn, protocol.KeyPokerLobbyState)
	readEnvelope(t, conn, protocol.KeyBlackjackGameState)
}

func TestServerWelcomeAndJoin(t *testing.T) {
	url := startTestServer(t)
	conn := dialWS(t, url)

	env := readEnvelope(t, conn, protocol.KeyWelcome)
	var welcome protocol.WelcomePayload
	require.NoError(t, env.DecodePayload(&welcome))
	assert.Equal(t, "casino", welcome.Server)

	sendEnvelope(t, conn, protocol.KeyJoin, protocol.JoinPayload{Name: "alice"})

	env = readEnvelope(t, conn, protocol.KeyPokerLobbyState)
	var lobby protocol.LobbyStatePayload
	require.NoError(t, env.DecodePayload(&lobby))
	assert.Equal(t, "poker", lobby.LobbyID)
	assert.False(t, lobby.InGame)
}

func TestServerDuplicateNameRejected(t *testing.T) {
	url := startTestServer(t)

	first := dialWS(t, url)
	join(t, first, "alice")

	second := dialWS(t, url)
	readEnvelope(t, second, protocol.KeyWelcome)
	sendEnvelope(t, second, protocol.KeyJoin, protocol.JoinPayload{Name: "alice"})

	env := readEnvelope(t, second, protocol.KeyError)
	var errPayload protocol.ErrorPayload
	require.NoError(t, env.DecodePayload(&errPayload))
	assert.Equal(t, "name_taken", errPayload.Code)
}

func TestServerUnknownKeyIgnored(t *testing.T) {
	url := startTestServer(t)
	conn := dialWS(t, url)
	readEnvelope(t, conn, protocol.KeyWelcome)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"key":"TELEPORT","v":1,"payload":{}}`)))

	// The session is still healthy afterwards
	sendEnvelope(t, conn, protocol.KeyJoin, protocol.JoinPayload{Name: "alice"})
	readEnvelope(t, conn, protocol.KeyPokerLobbyState)
}

func TestServerActionBeforeJoinRejected(t *testing.T) {
	url := startTestServer(t)
	conn := dialWS(t, url)
	readEnvelope(t, conn, protocol.KeyWelcome)

	sendEnvelope(t, conn, protocol.KeyJoinPoker, nil)

	env := readEnvelope(t, conn, protocol.KeyError)
	var errPayload protocol.ErrorPayload
	require.NoError(t, env.DecodePayload(&errPayload))
	assert.Equal(t, "not_identified", errPayload.Code)
}

func TestServerErrorEchoesRequestID(t *testing.T) {
	url := startTestServer(t)
	conn := dialWS(t, url)
	readEnvelope(t, conn, protocol.KeyWelcome)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"key":"JOIN_POKER","v":1,"requestId":"req-42"}`)))

	env := readEnvelope(t, conn, protocol.KeyError)
	assert.Equal(t, "req-42", env.RequestID, "error reply correlates to the request")

	var errPayload protocol.ErrorPayload
	require.NoError(t, env.DecodePayload(&errPayload))
	assert.Equal(t, "not_identified", errPayload.Code)
}

func TestServerPokerHandOverWire(t *testing.T) {
	url := startTestServer(t)

	alice := dialWS(t, url)
	join(t, alice, "alice")
	bob := dialWS(t, url)
	join(t, bob, "bob")

	sendEnvelope(t, alice, protocol.KeyJoinPoker, nil)
	sendEnvelope(t, bob, protocol.KeyJoinPoker, nil)

	// Wait until bob's seat shows up, then start the hand
	waitForRoster(t, alice, 2)
	sendEnvelope(t, alice, protocol.KeyStartPoker, nil)

	aliceState := waitForHand(t, alice)
	bobState := waitForHand(t, bob)

	assert.Equal(t, aliceState.HandID, bobState.HandID)
	assertHoleVisibility(t, aliceState, "alice")
	assertHoleVisibility(t, bobState, "bob")
}

func waitForRoster(t *testing.T, conn *websocket.Conn, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		env := readEnvelope(t, conn, protocol.KeyPokerLobbyState)
		var lobby protocol.LobbyStatePayload
		require.NoError(t, env.DecodePayload(&lobby))
		if len(lobby.Players) == n {
			return
		}
	}
	t.Fatalf("roster never reached %d players", n)
}

func waitForHand(t *testing.T, conn *websocket.Conn) poker.State {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		env := readEnvelope(t, conn, protocol.KeyPokerGameState)
		var st poker.State
		require.NoError(t, json.Unmarshal(env.Payload, &st))
		if st.InHand {
			return st
		}
	}
	t.Fatal("hand never started")
	return poker.State{}
}

// assertHoleVisibility checks that only the viewer's own hole cards
// are present in their snapshot.
func assertHoleVisibility(t *testing.T, st poker.State, viewer string) {
	t.Helper()
	for _, p := range st.Players {
		if p.User == viewer {
			assert.Len(t, p.HoleCards, 2, "%s sees their own cards", viewer)
		} else {
			assert.Empty(t, p.HoleCards, "%s must not see %s's cards", viewer, p.User)
		}
	}
}

func TestServerDisconnectBroadcast(t *testing.T) {
	url := startTestServer(t)

	alice := dialWS(t, url)
	join(t, alice, "alice")
	bob := dialWS(t, url)
	join(t, bob, "bob")

	require.NoError(t, bob.Close())

	env := readEnvelope(t, alice, protocol.KeyDisconnect)
	var dc protocol.DisconnectPayload
	require.NoError(t, env.DecodePayload(&dc))
	assert.Equal(t, "bob", dc.Name)
}

func TestServerHealthEndpoint(t *testing.T) {
	url := startTestServer(t)

	// Reuse the ws URL host for a plain HTTP request
	httpURL := "http://" + url[len("ws://"):len(url)-len("/ws")] + "/health"
	resp, err := http.Get(httpURL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, 200, resp.StatusCode)
}
