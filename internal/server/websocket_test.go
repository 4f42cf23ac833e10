package server_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/meetchat/internal/chat"
	"github.com/Tyrowin/meetchat/internal/server"
)

const testOrigin = "http://localhost:8080"

// wsClient reads envelopes from a connection. Frames may carry several
// newline separated envelopes.
type wsClient struct {
	t       *testing.T
	conn    *websocket.Conn
	id      string
	pending []server.Envelope
}

func startTestServer(t *testing.T, customize func(cfg *server.Config)) (*server.Hub, *httptest.Server) {
	t.Helper()
	hub := newTestHub(t, customize)
	ts := httptest.NewServer(newTestRouter(t, hub))
	t.Cleanup(ts.Close)
	return hub, ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, ts *httptest.Server) *wsClient {
	t.Helper()
	header := http.Header{}
	header.Set("Origin", testOrigin)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	c := &wsClient{t: t, conn: conn}
	var connected chat.Connected
	c.decode(c.expect(chat.EventConnected), &connected)
	c.id = connected.ID
	c.expect(chat.EventExistingGroups)
	c.expect(chat.EventConfigChanged)
	return c
}

func (c *wsClient) send(event string, payload any) {
	c.t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		c.t.Fatal(err)
	}
	frame, err := json.Marshal(server.Envelope{Event: event, Data: data})
	if err != nil {
		c.t.Fatal(err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.t.Fatalf("Failed to send %s: %v", event, err)
	}
}

func (c *wsClient) read(timeout time.Duration) (server.Envelope, error) {
	if len(c.pending) == 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return server.Envelope{}, err
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return server.Envelope{}, err
		}
		for _, line := range bytes.Split(data, []byte{'\n'}) {
			var env server.Envelope
			if err := json.Unmarshal(line, &env); err != nil {
				return server.Envelope{}, err
			}
			c.pending = append(c.pending, env)
		}
	}
	env := c.pending[0]
	c.pending = c.pending[1:]
	return env, nil
}

// expect skips unrelated events until event arrives.
func (c *wsClient) expect(event string) server.Envelope {
	c.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		env, err := c.read(time.Until(deadline))
		if err != nil {
			c.t.Fatalf("waiting for %s: %v", event, err)
		}
		if env.Event == event {
			return env
		}
	}
	c.t.Fatalf("timed out waiting for %s", event)
	return server.Envelope{}
}

// expectNone fails if event arrives within timeout.
func (c *wsClient) expectNone(event string, timeout time.Duration) {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		env, err := c.read(time.Until(deadline))
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return
			}
			c.t.Fatalf("waiting for absence of %s: %v", event, err)
		}
		if env.Event == event {
			c.t.Fatalf("unexpected %s: %s", event, env.Data)
		}
	}
}

func (c *wsClient) decode(env server.Envelope, v any) {
	c.t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		c.t.Fatalf("Failed to decode %s: %v", env.Event, err)
	}
}

// TestWebSocketGeneralAndPrivateMessages tests that general messages reach
// everyone and private messages reach only the two participants.
func TestWebSocketGeneralAndPrivateMessages(t *testing.T) {
	_, ts := startTestServer(t, nil)
	alice := dial(t, ts)
	bob := dial(t, ts)
	carol := dial(t, ts)

	alice.send(chat.EventRegister, "alice")
	for _, c := range []*wsClient{alice, bob, carol} {
		var users map[string]string
		c.decode(c.expect(chat.EventUpdateUsers), &users)
		if users[alice.id] != "alice" {
			t.Errorf("user table %v lacks alice", users)
		}
	}

	alice.send(chat.EventSendMessage, chat.SendMessageRequest{ID: "g1", To: chat.GeneralRoom, Message: "hello all"})
	for _, c := range []*wsClient{alice, bob, carol} {
		var msg chat.ChatMessage
		c.decode(c.expect(chat.EventReceiveGeneralMessage), &msg)
		if msg.From != "alice" || msg.Message != "hello all" {
			t.Errorf("unexpected general message %+v", msg)
		}
	}

	alice.send(chat.EventSendMessage, chat.SendMessageRequest{ID: "p1", To: bob.id, Message: "psst"})

	var received chat.ChatMessage
	bob.decode(bob.expect(chat.EventReceivePrivateMessage), &received)
	if received.FromSocketID != alice.id || received.To != bob.id {
		t.Errorf("unexpected private message %+v", received)
	}
	alice.expect(chat.EventPrivateMessageSent)
	carol.expectNone(chat.EventReceivePrivateMessage, 150*time.Millisecond)
}

// TestWebSocketEditAndDeleteRequireAuthor tests that only the author can
// edit or delete a message.
func TestWebSocketEditAndDeleteRequireAuthor(t *testing.T) {
	_, ts := startTestServer(t, nil)
	alice := dial(t, ts)
	bob := dial(t, ts)

	alice.send(chat.EventSendMessage, chat.SendMessageRequest{ID: "m1", To: chat.GeneralRoom, Message: "first"})
	bob.expect(chat.EventReceiveGeneralMessage)

	bob.send(chat.EventEditMessage, chat.EditMessageRequest{ID: "m1", To: chat.GeneralRoom, NewMessage: "hijacked"})
	alice.expectNone(chat.EventMessageEdited, 150*time.Millisecond)

	alice.send(chat.EventEditMessage, chat.EditMessageRequest{ID: "m1", To: chat.GeneralRoom, NewMessage: "second"})
	var edited chat.MessageEdited
	bob.decode(bob.expect(chat.EventMessageEdited), &edited)
	if edited.NewMessage != "second" || !edited.Edited {
		t.Errorf("unexpected edit %+v", edited)
	}

	alice.send(chat.EventDeleteMessage, chat.DeleteMessageRequest{ID: "m1", To: chat.GeneralRoom})
	var deleted chat.MessageDeleted
	bob.decode(bob.expect(chat.EventMessageDeleted), &deleted)
	if deleted.ID != "m1" || deleted.Chat != chat.GeneralRoom {
		t.Errorf("unexpected delete %+v", deleted)
	}
}

// TestWebSocketGroupLifecycle tests creating, joining, messaging and the
// deletion of a group when its host leaves.
func TestWebSocketGroupLifecycle(t *testing.T) {
	_, ts := startTestServer(t, nil)
	host := dial(t, ts)
	guest := dial(t, ts)

	host.send(chat.EventCreateGroup, chat.CreateGroupRequest{GroupName: "team", Open: true})
	var group chat.Group
	guest.decode(guest.expect(chat.EventGroupCreated), &group)
	if group.Host != host.id || group.Name != "team" || !group.Open {
		t.Fatalf("unexpected group %+v", group)
	}

	guest.send(chat.EventRequestJoinGroup, chat.RequestJoinGroupRequest{GroupID: group.ID})
	guest.expect(chat.EventJoinedGroup)
	var updated chat.Group
	host.decode(host.expect(chat.EventGroupUpdated), &updated)
	if !updated.HasMember(guest.id) {
		t.Errorf("guest missing from %+v", updated)
	}

	guest.send(chat.EventSendGroupMessage, chat.SendGroupMessageRequest{ID: "gm1", GroupID: group.ID, Message: "hey team"})
	for _, c := range []*wsClient{host, guest} {
		var msg chat.ChatMessage
		c.decode(c.expect(chat.EventReceiveGroupMessage), &msg)
		if msg.GroupID != group.ID || msg.Message != "hey team" {
			t.Errorf("unexpected group message %+v", msg)
		}
	}

	if err := host.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
		t.Fatalf("Failed to send close message: %v", err)
	}
	var gone chat.GroupDeleted
	guest.decode(guest.expect(chat.EventGroupDeleted), &gone)
	if gone.GroupID != group.ID {
		t.Errorf("deleted %q, want %q", gone.GroupID, group.ID)
	}
}

// TestWebSocketChatToggle tests that the admin toggle reaches connected
// clients and blocks sending.
func TestWebSocketChatToggle(t *testing.T) {
	_, ts := startTestServer(t, nil)
	alice := dial(t, ts)
	bob := dial(t, ts)

	resp, err := http.Post(ts.URL+"/update-chat-toggle", "application/json", strings.NewReader(`{"disabled":true}`))
	if err != nil {
		t.Fatalf("Failed to toggle chat: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("toggle returned %d", resp.StatusCode)
	}

	var settings chat.Settings
	bob.decode(bob.expect(chat.EventConfigChanged), &settings)
	if settings.ChatEnabled {
		t.Error("expected chat to be disabled")
	}
	alice.expect(chat.EventConfigChanged)

	alice.send(chat.EventSendMessage, chat.SendMessageRequest{ID: "m1", To: chat.GeneralRoom, Message: "anyone?"})
	bob.expectNone(chat.EventReceiveGeneralMessage, 150*time.Millisecond)
}

// TestWebSocketOriginValidation tests that disallowed origins are refused.
func TestWebSocketOriginValidation(t *testing.T) {
	_, ts := startTestServer(t, func(cfg *server.Config) {
		cfg.AllowedOrigins = []string{testOrigin}
	})

	tests := []struct {
		name    string
		origin  string
		allowed bool
	}{
		{"allowed origin", testOrigin, true},
		{"disallowed origin", "http://evil.example", false},
		{"missing origin", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
			if resp != nil {
				_ = resp.Body.Close()
			}
			if tt.allowed {
				if err != nil {
					t.Fatalf("expected connection, got %v", err)
				}
				_ = conn.Close()
				return
			}
			if err == nil {
				_ = conn.Close()
				t.Fatal("expected the handshake to fail")
			}
			if resp == nil || resp.StatusCode != http.StatusForbidden {
				t.Errorf("expected 403, got %v", resp)
			}
		})
	}
}

// TestWebSocketMessageSizeLimit tests that oversized frames close the
// connection.
func TestWebSocketMessageSizeLimit(t *testing.T) {
	_, ts := startTestServer(t, func(cfg *server.Config) {
		cfg.MaxMessageSize = 512
	})
	c := dial(t, ts)

	c.send(chat.EventSendMessage, chat.SendMessageRequest{To: chat.GeneralRoom, Message: strings.Repeat("a", 1024)})

	for {
		_, err := c.read(2 * time.Second)
		if err == nil {
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			t.Fatal("expected the connection to be closed")
		}
		return
	}
}

// TestWebSocketRateLimiting tests that events beyond the burst are dropped.
func TestWebSocketRateLimiting(t *testing.T) {
	_, ts := startTestServer(t, func(cfg *server.Config) {
		cfg.RateLimit = server.RateLimitConfig{Burst: 3, RefillInterval: time.Hour}
	})
	sender := dial(t, ts)
	listener := dial(t, ts)

	for i := 0; i < 6; i++ {
		sender.send(chat.EventSendMessage, chat.SendMessageRequest{To: chat.GeneralRoom, Message: "spam"})
	}

	for i := 0; i < 3; i++ {
		listener.expect(chat.EventReceiveGeneralMessage)
	}
	listener.expectNone(chat.EventReceiveGeneralMessage, 200*time.Millisecond)
}

// TestGracefulShutdownWithClients tests that hub shutdown closes live
// connections and that the status endpoint tracks them.
func TestGracefulShutdownWithClients(t *testing.T) {
	hub, ts := startTestServer(t, nil)
	clients := []*wsClient{dial(t, ts), dial(t, ts)}

	if hub.ClientCount() != len(clients) {
		t.Errorf("ClientCount() = %d, want %d", hub.ClientCount(), len(clients))
	}

	if err := hub.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	for i, c := range clients {
		for {
			_, err := c.read(2 * time.Second)
			if err == nil {
				continue
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				t.Errorf("client %d was not disconnected", i)
			}
			break
		}
	}
}
