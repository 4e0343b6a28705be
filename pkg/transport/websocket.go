// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketDialer connects to a network bridge that forwards controller bytes as
// binary WebSocket messages.
type WebSocketDialer struct {
	URL           string
	Username      string
	Password      string
	SkipSSLVerify bool
}

// Dial implements Dialer.
func (d *WebSocketDialer) Dial() (Link, string, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, "", fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: d.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if d.Username != "" && d.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(d.Username + ":" + d.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, d.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, "", fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, "", fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return newWebSocketLink(conn), fmt.Sprintf("WebSocket: %s", d.URL), nil
}

// WebSocketLink turns blocking message reads into a pollable byte stream.
type WebSocketLink struct {
	conn *websocket.Conn
	msgs chan []byte
	errs chan error
	done chan struct{}
}

func newWebSocketLink(conn *websocket.Conn) *WebSocketLink {
	w := &WebSocketLink{
		conn: conn,
		msgs: make(chan []byte, 256),
		errs: make(chan error, 1),
		done: make(chan struct{}),
	}
	go w.readLoop()
	return w
}

func (w *WebSocketLink) readLoop() {
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.errs <- err
			return
		}
		// Only binary messages carry controller bytes
		if messageType != websocket.BinaryMessage {
			continue
		}
		select {
		case w.msgs <- data:
		case <-w.done:
			return
		}
	}
}

func (w *WebSocketLink) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Poll drains queued messages without blocking.
func (w *WebSocketLink) Poll() ([]byte, error) {
	var out []byte
	for {
		select {
		case data := <-w.msgs:
			out = append(out, data...)
		default:
			if len(out) > 0 {
				return out, nil
			}
			select {
			case err := <-w.errs:
				return nil, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
			default:
				return nil, nil
			}
		}
	}
}

func (w *WebSocketLink) Close() error {
	close(w.done)
	return w.conn.Close()
}
