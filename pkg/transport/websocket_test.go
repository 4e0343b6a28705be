// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWebSocketLinkRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotAuth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Text messages are ignored by the link
		conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		conn.WriteMessage(websocket.BinaryMessage, []byte{'P', 4})
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.BinaryMessage, data)
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	d := &WebSocketDialer{
		URL:      "ws" + strings.TrimPrefix(srv.URL, "http"),
		Username: "pin",
		Password: "ball",
	}
	link, info, err := d.Dial()
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer link.Close()
	if !strings.HasPrefix(info, "WebSocket:") {
		t.Errorf("info = %q", info)
	}
	if auth := <-gotAuth; !strings.HasPrefix(auth, "Basic ") {
		t.Errorf("Authorization = %q", auth)
	}

	if got := pollUntil(t, link, 2); !bytes.Equal(got, []byte{'P', 4}) {
		t.Errorf("first poll = % X", got)
	}
	if _, err := link.Write([]byte{'A', 1, 0, 0, 0, 2}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := pollUntil(t, link, 6); !bytes.Equal(got, []byte{'A', 1, 0, 0, 0, 2}) {
		t.Errorf("echo = % X", got)
	}
}

func TestWebSocketDialerRejectsScheme(t *testing.T) {
	d := &WebSocketDialer{URL: "http://example.com"}
	if _, _, err := d.Dial(); err == nil {
		t.Error("expected error for http:// URL")
	}
}

func pollUntil(t *testing.T, link Link, n int) []byte {
	t.Helper()
	var got []byte
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < n && time.Now().Before(deadline) {
		data, err := link.Poll()
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		got = append(got, data...)
		time.Sleep(5 * time.Millisecond)
	}
	return got
}
