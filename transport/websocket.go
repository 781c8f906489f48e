// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/rendezvous/lib/netutil"
)

var _ Dialer = (*WebSocketDialer)(nil)

const (
	// DefaultTokenParameter is the query parameter that carries the
	// access token on the websocket URL.
	DefaultTokenParameter = "token"

	// maxFrameSize bounds a single inbound frame. Signaling SDP and
	// chat messages are a few kilobytes; file bodies never travel on
	// the socket.
	maxFrameSize = 1 << 20

	writeWait = 10 * time.Second
)

// WebSocketDialer dials websocket endpoints with gorilla/websocket. The
// access token is appended to the endpoint as a query parameter.
type WebSocketDialer struct {
	// TokenParameter names the query parameter. Empty means
	// DefaultTokenParameter.
	TokenParameter string

	// Header is sent with the handshake request.
	Header http.Header

	dialer *websocket.Dialer
}

// NewWebSocketDialer returns a dialer whose handshake is bounded by
// handshakeTimeout (zero means the gorilla default).
func NewWebSocketDialer(handshakeTimeout time.Duration) *WebSocketDialer {
	dialer := *websocket.DefaultDialer
	if handshakeTimeout > 0 {
		dialer.HandshakeTimeout = handshakeTimeout
	}
	return &WebSocketDialer{dialer: &dialer}
}

func (d *WebSocketDialer) Dial(ctx context.Context, endpoint, token string) (Conn, error) {
	target, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}
	if target.Scheme != "ws" && target.Scheme != "wss" {
		return nil, fmt.Errorf("endpoint %q: scheme must be ws or wss", redact(target))
	}
	parameter := d.TokenParameter
	if parameter == "" {
		parameter = DefaultTokenParameter
	}
	query := target.Query()
	query.Set(parameter, token)
	target.RawQuery = query.Encode()

	dialer := d.dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, response, err := dialer.DialContext(ctx, target.String(), d.Header)
	if err != nil {
		if response != nil {
			response.Body.Close()
			return nil, fmt.Errorf("websocket handshake with %s: %s: %w", redact(target), response.Status, err)
		}
		return nil, fmt.Errorf("dialing %s: %w", redact(target), err)
	}
	conn.SetReadLimit(maxFrameSize)
	return &webSocketConn{conn: conn}, nil
}

// redact drops the query string so tokens stay out of errors and logs.
func redact(target *url.URL) string {
	clean := *target
	clean.RawQuery = ""
	return clean.String()
}

type webSocketConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

func (c *webSocketConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err == nil {
		return data, nil
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return nil, &CloseError{Code: closeErr.Code, Reason: closeErr.Text}
	}
	if netutil.IsExpectedCloseError(err) {
		return nil, &CloseError{Code: CloseAbnormal, Reason: "connection lost"}
	}
	return nil, err
}

func (c *webSocketConn) WriteMessage(data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal close frame, then closes the socket.
func (c *webSocketConn) Close() error {
	c.closeOnce.Do(func() {
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
