// Copyright 2026 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package rpc

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/ethereum/go-ethereum/log"
)

// retiredDrainTimeout bounds how long a replaced connection is kept open for the
// responses to requests that were sent on it.
const retiredDrainTimeout = 30 * time.Second

// connHandler receives the events of every connection created by a connManager,
// tagged with the connection they belong to.
type connHandler interface {
	handleOpen(c *socketConn)
	handleFrame(c *socketConn, data []byte)
	handleError(c *socketConn, err error)
	handleClose(c *socketConn, code int, reason string)
	handleStall(c *socketConn, fragment string)
}

// socketConn is one socket together with its generation number and dechunker.
type socketConn struct {
	gen     uint64
	dechunk *dechunker
	done    atomic.Bool // close already handled

	mu    sync.Mutex
	sock  Socket
	drain mclock.Timer
}

func (c *socketConn) socket() Socket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sock
}

// state returns the socket state. A connection whose socket is still being created
// is connecting.
func (c *socketConn) state() ConnState {
	if c == nil {
		return StateClosed
	}
	if c.done.Load() {
		return StateClosed
	}
	sock := c.socket()
	if sock == nil {
		return StateConnecting
	}
	return sock.State()
}

func (c *socketConn) send(ctx context.Context, data []byte) error {
	sock := c.socket()
	if sock == nil {
		return &SendRejectedError{State: StateConnecting}
	}
	return sock.Send(ctx, data)
}

func (c *socketConn) close() {
	c.mu.Lock()
	sock := c.sock
	if c.drain != nil {
		c.drain.Stop()
		c.drain = nil
	}
	c.mu.Unlock()

	if sock != nil {
		sock.Close()
	}
}

// finish marks the connection closed. It reports false if it was closed before.
func (c *socketConn) finish() bool {
	if !c.done.CompareAndSwap(false, true) {
		return false
	}
	c.dechunk.reset()
	return true
}

// socketEvents forwards the events of one socket to the handler.
type socketEvents struct {
	conn    *socketConn
	handler connHandler
}

func (e *socketEvents) OnOpen()                         { e.handler.handleOpen(e.conn) }
func (e *socketEvents) OnMessage(data []byte)           { e.handler.handleFrame(e.conn, data) }
func (e *socketEvents) OnError(err error)               { e.handler.handleError(e.conn, err) }
func (e *socketEvents) OnClose(code int, reason string) { e.handler.handleClose(e.conn, code, reason) }

// connManager owns the socket of a provider. There is one current connection that
// takes new sends; connections replaced by recreate are retired and closed once the
// requests sent on them are answered.
type connManager struct {
	endpoint   string
	protocol   string
	factory    SocketFactory
	clock      mclock.Clock
	handler    connHandler
	pendingFor func(gen uint64) int
	log        log.Logger

	mu      sync.Mutex
	header  http.Header
	gen     uint64
	cur     *socketConn
	retired map[uint64]*socketConn
}

func newConnManager(endpoint, protocol string, header http.Header, factory SocketFactory, clock mclock.Clock, handler connHandler, pendingFor func(uint64) int, logger log.Logger) *connManager {
	return &connManager{
		endpoint:   endpoint,
		protocol:   protocol,
		factory:    factory,
		clock:      clock,
		handler:    handler,
		pendingFor: pendingFor,
		log:        logger,
		header:     header,
		retired:    make(map[uint64]*socketConn),
	}
}

// open creates a new socket and makes it the current connection. It returns the new
// connection and the one it replaced, if any.
func (m *connManager) open() (cur, prev *socketConn) {
	m.mu.Lock()
	m.gen++
	c := &socketConn{gen: m.gen}
	c.dechunk = newDechunker(m.clock, dechunkTimeout, func(fragment string) {
		m.handler.handleStall(c, fragment)
	})
	prev, m.cur = m.cur, c
	header := m.header.Clone()
	m.mu.Unlock()

	m.log.Debug("Opening connection", "gen", c.gen)
	sock := m.factory(m.endpoint, header, m.protocol, &socketEvents{conn: c, handler: m.handler})
	c.mu.Lock()
	c.sock = sock
	c.mu.Unlock()
	return c, prev
}

// recreate opens a new connection with the current headers and retires the old one.
func (m *connManager) recreate() *socketConn {
	cur, prev := m.open()
	if prev != nil {
		m.retire(prev)
	}
	return cur
}

// retire keeps prev open until its pending requests are answered, or until the drain
// timeout expires.
func (m *connManager) retire(prev *socketConn) {
	if prev.state() == StateClosed {
		return
	}
	m.mu.Lock()
	m.retired[prev.gen] = prev
	m.mu.Unlock()

	prev.mu.Lock()
	prev.drain = m.clock.AfterFunc(retiredDrainTimeout, func() { m.expire(prev) })
	prev.mu.Unlock()

	m.log.Debug("Retired connection", "gen", prev.gen, "pending", m.pendingFor(prev.gen))
	m.reap(prev.gen)
}

// reap closes the retired connection gen if nothing is pending on it anymore.
func (m *connManager) reap(gen uint64) {
	m.mu.Lock()
	c := m.retired[gen]
	if c == nil || m.pendingFor(gen) > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.retired, gen)
	m.mu.Unlock()

	m.log.Debug("Closing drained connection", "gen", gen)
	c.close()
}

func (m *connManager) expire(c *socketConn) {
	if !m.dropRetired(c) {
		return
	}
	m.log.Debug("Retired connection drain timeout", "gen", c.gen, "pending", m.pendingFor(c.gen))
	c.close()
	m.handler.handleClose(c, 0, "drain timeout")
}

// dropRetired removes c from the retired set. It reports whether c was retired.
func (m *connManager) dropRetired(c *socketConn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.retired[c.gen] != c {
		return false
	}
	delete(m.retired, c.gen)
	return true
}

func (m *connManager) setHeader(key, value string) {
	m.mu.Lock()
	m.header.Set(key, value)
	m.mu.Unlock()
}

func (m *connManager) current() *socketConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

func (m *connManager) isCurrent(c *socketConn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur == c
}

func (m *connManager) retiredCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.retired)
}

func (m *connManager) connected() bool {
	return m.current().state() == StateOpen
}

// closeAll closes the current and all retired connections and returns them.
func (m *connManager) closeAll() []*socketConn {
	m.mu.Lock()
	var conns []*socketConn
	if m.cur != nil {
		conns = append(conns, m.cur)
	}
	for gen, c := range m.retired {
		conns = append(conns, c)
		delete(m.retired, gen)
	}
	m.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
	return conns
}
