package relay_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"net/http/httptest"

	"github.com/aerosense-io/aerosense-core/internal/auth"
	"github.com/aerosense-io/aerosense-core/internal/infrastructure/config"
	"github.com/aerosense-io/aerosense-core/internal/infrastructure/logging"
	"github.com/aerosense-io/aerosense-core/internal/relay"
)

type publishedCommand struct {
	deviceID string
	payload  []byte
}

type fakePublisher struct {
	mu       sync.Mutex
	commands []publishedCommand
}

func (f *fakePublisher) PublishCommand(deviceID string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, publishedCommand{deviceID, payload})
	return nil
}

func (f *fakePublisher) last() (publishedCommand, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.commands) == 0 {
		return publishedCommand{}, false
	}
	return f.commands[len(f.commands)-1], true
}

type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, token string) (auth.Account, error) {
	if token == "good-token" {
		return auth.Account{ID: "alice"}, nil
	}
	return auth.Account{}, auth.ErrInvalidToken
}

type fakeAccess struct{}

func (fakeAccess) HasLink(_ context.Context, deviceID string, account string) (bool, error) {
	return account == "alice" && deviceID == "devX", nil
}

func testRelayConfig(requireAuth bool) config.RelayConfig {
	return config.RelayConfig{
		WebSocket: config.WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    60,
		},
		RequireAuth: requireAuth,
	}
}

type relayFixture struct {
	hub       *relay.Hub
	publisher *fakePublisher
	ts        *httptest.Server
}

func setupRelay(t *testing.T, requireAuth bool) *relayFixture {
	t.Helper()

	hub := relay.NewHub(logging.Default())
	publisher := &fakePublisher{}
	server := relay.NewServer(testRelayConfig(requireAuth), hub, publisher, fakeVerifier{}, fakeAccess{}, logging.Default())

	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	return &relayFixture{hub: hub, publisher: publisher, ts: ts}
}

func (f *relayFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg relay.ClientMessage) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("writing message: %v", err)
	}
}

// subscribeSettle is how long tests wait for a subscribe frame to be
// processed. Subscribes carry no acknowledgement, so forwarding straight
// after writing one would race the registration.
const subscribeSettle = 200 * time.Millisecond

// awaitForward forwards payload for deviceID and reads it back from conn.
func awaitForward(t *testing.T, hub *relay.Hub, conn *websocket.Conn, deviceID string, payload []byte) []byte {
	t.Helper()

	time.Sleep(subscribeSettle)
	hub.Forward(deviceID, "res", payload)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading forwarded payload for %s: %v", deviceID, err)
	}
	return data
}

// expectSilence asserts conn receives nothing for a short window.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, data, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected no message, got %s", data)
	}
}

func TestRelayForwardsToSubscribedClientOnly(t *testing.T) {
	f := setupRelay(t, false)

	connX := f.dial(t)
	connY := f.dial(t)

	send(t, connX, relay.ClientMessage{Action: relay.ActionSubscribe, DeviceID: "devX"})
	send(t, connY, relay.ClientMessage{Action: relay.ActionSubscribe, DeviceID: "devY"})

	payload := []byte(`{"status":"ok","fan":1}`)
	got := awaitForward(t, f.hub, connX, "devX", payload)
	if string(got) != string(payload) {
		t.Errorf("client received %s, want exact payload %s", got, payload)
	}

	// The same traffic never reaches the client watching another device.
	expectSilence(t, connY)
}

func TestRelayLastSubscribeWins(t *testing.T) {
	f := setupRelay(t, false)
	conn := f.dial(t)

	send(t, conn, relay.ClientMessage{Action: relay.ActionSubscribe, DeviceID: "devA"})
	send(t, conn, relay.ClientMessage{Action: relay.ActionSubscribe, DeviceID: "devB"})

	payload := []byte(`{"v":1}`)
	awaitForward(t, f.hub, conn, "devB", payload)

	// The earlier registration is gone.
	f.hub.Forward("devA", "res", payload)
	expectSilence(t, conn)
}

func TestRelayPublish(t *testing.T) {
	f := setupRelay(t, false)
	conn := f.dial(t)

	send(t, conn, relay.ClientMessage{
		Action:   relay.ActionPublish,
		DeviceID: "devX",
		Payload:  json.RawMessage(`{"cmd":"buzzer_off"}`),
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cmd, ok := f.publisher.last(); ok {
			if cmd.deviceID != "devX" {
				t.Errorf("published to %s, want devX", cmd.deviceID)
			}
			if string(cmd.payload) != `{"cmd":"buzzer_off"}` {
				t.Errorf("payload = %s", cmd.payload)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("command never published")
}

func TestRelayRejectsMalformedFrames(t *testing.T) {
	f := setupRelay(t, false)
	conn := f.dial(t)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("writing frame: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var errMsg relay.ErrorMessage
	if err := conn.ReadJSON(&errMsg); err != nil {
		t.Fatalf("reading error frame: %v", err)
	}
	if errMsg.Error == "" {
		t.Error("error frame has empty message")
	}
}

func TestRelayRequireAuth(t *testing.T) {
	f := setupRelay(t, true)

	t.Run("missing token", func(t *testing.T) {
		conn := f.dial(t)
		send(t, conn, relay.ClientMessage{Action: relay.ActionSubscribe, DeviceID: "devX"})

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var errMsg relay.ErrorMessage
		if err := conn.ReadJSON(&errMsg); err != nil {
			t.Fatalf("reading error frame: %v", err)
		}
		if errMsg.Error != "unauthorized" {
			t.Errorf("error = %q, want unauthorized", errMsg.Error)
		}
	})

	t.Run("token without link", func(t *testing.T) {
		conn := f.dial(t)
		send(t, conn, relay.ClientMessage{Action: relay.ActionSubscribe, DeviceID: "devZ", Token: "good-token"})

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var errMsg relay.ErrorMessage
		if err := conn.ReadJSON(&errMsg); err != nil {
			t.Fatalf("reading error frame: %v", err)
		}
		if errMsg.Error != "not linked to device" {
			t.Errorf("error = %q, want not linked to device", errMsg.Error)
		}
	})

	t.Run("linked account", func(t *testing.T) {
		conn := f.dial(t)
		send(t, conn, relay.ClientMessage{Action: relay.ActionSubscribe, DeviceID: "devX", Token: "good-token"})

		payload := []byte(`{"ok":true}`)
		got := awaitForward(t, f.hub, conn, "devX", payload)
		if string(got) != string(payload) {
			t.Errorf("received %s, want %s", got, payload)
		}
	})
}
