package handler_test

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Event       string `json:"event"`
	Code        string `json:"code"`
	Persistence *struct {
		Status string `json:"status"`
	} `json:"persistence"`
}

// readUntil reads messages until one with the wanted event arrives.
func readUntil(t *testing.T, conn *websocket.Conn, event string) wsMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %q: %v", event, err)
		}
		if msg.Event == event {
			return msg
		}
	}
}

func TestSessionWebSocket(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	id := env.createSession(t, "")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/sessions/" + id + "/stream"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readUntil(t, conn, "state")

	send := func(msg string) {
		t.Helper()
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatal(err)
		}
	}

	send(`{"action":"start"}`)
	readUntil(t, conn, "started")

	send(`{"action":"answer","index":0,"option":1}`)
	readUntil(t, conn, "updated")

	send(`{"action":"answer","index":42,"option":0}`)
	if msg := readUntil(t, conn, "error"); msg.Code != "INDEX_OUT_OF_RANGE" {
		t.Fatalf("expected INDEX_OUT_OF_RANGE, got %s", msg.Code)
	}

	send(`{"action":"flag"}`)
	if msg := readUntil(t, conn, "error"); msg.Code != "INVALID_PAYLOAD" {
		t.Fatalf("expected INVALID_PAYLOAD, got %s", msg.Code)
	}

	send(`{"action":"ping"}`)
	readUntil(t, conn, "pong")

	send(`{"action":"submit"}`)
	readUntil(t, conn, "submitted")
	if msg := readUntil(t, conn, "persisted"); msg.Persistence == nil || msg.Persistence.Status != "saved" {
		t.Fatalf("expected saved persistence, got %+v", msg.Persistence)
	}

	send(`{"action":"start"}`)
	if msg := readUntil(t, conn, "error"); msg.Code != "INVALID_TRANSITION" {
		t.Fatalf("expected INVALID_TRANSITION, got %s", msg.Code)
	}
}

func TestSessionWebSocketRejectsUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/sessions/00000000-0000-0000-0000-000000000001/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 handshake response, got %v", resp)
	}
}

func TestSessionEventStream(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	id := env.createSession(t, "")
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/sessions/"+id+"/events", nil)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("unexpected content type %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	lines.Buffer(make([]byte, 0, 64*1024), 1<<20)
	next := func(want string) {
		t.Helper()
		for lines.Scan() {
			if lines.Text() == "event:"+want {
				return
			}
		}
		t.Fatalf("stream ended before %q: %v", want, lines.Err())
	}

	next("state")
	env.do(http.MethodPost, "/api/v1/sessions/"+id+"/start", "", "")
	next("started")
	env.do(http.MethodDelete, "/api/v1/sessions/"+id, "", "")
	next("abandoned")
	next("closed")
}
