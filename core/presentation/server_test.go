package presentation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avrelja/sidecoach/core/conversation"
)

func dialViewer(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to connect viewer: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var message Message
	if err := conn.ReadJSON(&message); err != nil {
		t.Fatalf("failed to read viewer message: %v", err)
	}
	return message
}

func waitForConnections(t *testing.T, server *Server, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for server.Connections() != want {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d connections, have %d", want, server.Connections())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcastReachesAllViewers(t *testing.T) {
	server := NewServer()
	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()

	first := dialViewer(t, httpServer)
	second := dialViewer(t, httpServer)
	waitForConnections(t, server, 2)

	server.Broadcast(Message{Type: MessageTypeChunk, AnswerID: "a1", Text: "hello"})

	for _, conn := range []*websocket.Conn{first, second} {
		message := readMessage(t, conn)
		if message.Type != MessageTypeChunk || message.Text != "hello" || message.AnswerID != "a1" {
			t.Fatalf("unexpected message: %+v", message)
		}
	}
}

func TestLateViewerReceivesSnapshotFirst(t *testing.T) {
	store := conversation.NewStore()
	store.AppendTurn(conversation.SpeakerOther, "what is the plan?")
	store.SetScreenContext("roadmap slide")
	store.AppendAnswerChunk("a-7", "we ship in")

	server := NewServer(WithSnapshotProvider(store))
	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()

	conn := dialViewer(t, httpServer)
	message := readMessage(t, conn)

	if message.Type != MessageTypeSnapshot {
		t.Fatalf("expected snapshot first, got %q", message.Type)
	}
	if message.ScreenContext != "roadmap slide" {
		t.Fatalf("expected screen context in snapshot, got %q", message.ScreenContext)
	}
	if len(message.Turns) != 1 || message.Turns[0].Text != "what is the plan?" {
		t.Fatalf("expected history in snapshot, got %v", message.Turns)
	}
	if got := message.PendingAnswers["a-7"]; got != "we ship in" {
		t.Fatalf("expected in-progress answer in snapshot, got %q", got)
	}
}

func TestHealthReportsConnectionCount(t *testing.T) {
	server := NewServer()
	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()

	dialViewer(t, httpServer)
	waitForConnections(t, server, 1)

	resp, err := http.Get(httpServer.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	var health struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if health.Status != "ok" || health.Connections != 1 {
		t.Fatalf("unexpected health response: %+v", health)
	}
}

func TestDisconnectedViewerIsRemoved(t *testing.T) {
	server := NewServer()
	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()

	conn := dialViewer(t, httpServer)
	waitForConnections(t, server, 1)

	conn.Close()
	waitForConnections(t, server, 0)

	// A broadcast after the disconnect must not panic or block.
	server.Broadcast(Message{Type: MessageTypeDone, AnswerID: "a1"})
}
