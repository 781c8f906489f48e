// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"io"
	"net"
	"sync"
)

// Compile-time interface checks.
var (
	_ Dialer = (*MemoryDialer)(nil)
	_ Conn   = (*memoryConn)(nil)
)

// memoryQueueSize bounds frames buffered in each direction of a memory
// connection.
const memoryQueueSize = 64

// MemoryDialer is an in-process Dialer for tests. Every successful Dial
// produces a MemoryPeer, the server side of the connection, published on
// Peers(). Two channels dialing through one MemoryDialer do not see each
// other; the test plays the server by driving the peers.
type MemoryDialer struct {
	mu       sync.Mutex
	failures []error
	dials    []MemoryDial
	peers    chan *MemoryPeer
}

// MemoryDial records one Dial call.
type MemoryDial struct {
	Endpoint string
	Token    string
}

// NewMemoryDialer creates a dialer that accepts every dial until told
// otherwise with FailNext.
func NewMemoryDialer() *MemoryDialer {
	return &MemoryDialer{peers: make(chan *MemoryPeer, memoryQueueSize)}
}

// FailNext makes the next Dial return err. Calls queue: N calls fail
// the next N dials in order.
func (d *MemoryDialer) FailNext(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, err)
}

// Dials returns every Dial call so far, including failed ones.
func (d *MemoryDialer) Dials() []MemoryDial {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]MemoryDial(nil), d.dials...)
}

// Peers delivers the server side of each established connection.
func (d *MemoryDialer) Peers() <-chan *MemoryPeer {
	return d.peers
}

func (d *MemoryDialer) Dial(ctx context.Context, endpoint, token string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.dials = append(d.dials, MemoryDial{Endpoint: endpoint, Token: token})
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		d.mu.Unlock()
		return nil, err
	}
	d.mu.Unlock()

	conn := &memoryConn{
		inbound:  make(chan memoryFrame, memoryQueueSize),
		outbound: make(chan []byte, memoryQueueSize),
		done:     make(chan struct{}),
	}
	peer := &MemoryPeer{Endpoint: endpoint, Token: token, conn: conn}
	select {
	case d.peers <- peer:
	default:
		// Tests that never read Peers() still get a working connection.
	}
	return conn, nil
}

// MemoryPeer is the server side of a memory connection.
type MemoryPeer struct {
	Endpoint string
	Token    string

	conn *memoryConn
}

// Send delivers a frame to the client.
func (p *MemoryPeer) Send(data []byte) {
	p.conn.deliver(memoryFrame{data: data})
}

// CloseWith ends the connection with a close frame carrying code and
// reason.
func (p *MemoryPeer) CloseWith(code int, reason string) {
	p.conn.deliver(memoryFrame{err: &CloseError{Code: code, Reason: reason}})
}

// Drop ends the connection without a close frame.
func (p *MemoryPeer) Drop() {
	p.conn.deliver(memoryFrame{err: io.ErrUnexpectedEOF})
}

// Received delivers frames the client wrote.
func (p *MemoryPeer) Received() <-chan []byte {
	return p.conn.outbound
}

// Closed is closed once the client side calls Close.
func (p *MemoryPeer) Closed() <-chan struct{} {
	return p.conn.done
}

type memoryFrame struct {
	data []byte
	err  error
}

type memoryConn struct {
	inbound  chan memoryFrame
	outbound chan []byte
	done     chan struct{}
	once     sync.Once
}

func (c *memoryConn) deliver(frame memoryFrame) {
	select {
	case c.inbound <- frame:
	case <-c.done:
	}
}

func (c *memoryConn) ReadMessage() ([]byte, error) {
	select {
	case frame := <-c.inbound:
		return frame.data, frame.err
	case <-c.done:
		return nil, net.ErrClosed
	}
}

func (c *memoryConn) WriteMessage(data []byte) error {
	select {
	case <-c.done:
		return net.ErrClosed
	default:
	}
	select {
	case c.outbound <- append([]byte(nil), data...):
		return nil
	case <-c.done:
		return net.ErrClosed
	}
}

func (c *memoryConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}
