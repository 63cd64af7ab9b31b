// Copyright 2015 The go-ethereum Authors
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
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"
)

const (
	wsReadBuffer        = 1024
	wsWriteBuffer       = 1024
	wsPingInterval      = 30 * time.Second
	wsPingWriteTimeout  = 5 * time.Second
	wsPongTimeout       = 30 * time.Second
	wsCloseWriteTimeout = time.Second
	wsDefaultReadLimit  = 32 * 1024 * 1024

	defaultWriteTimeout = 10 * time.Second // used if context has no deadline
)

var wsBufferPool = new(sync.Pool)

type wsHandshakeError struct {
	err    error
	status string
}

func (e wsHandshakeError) Error() string {
	s := e.err.Error()
	if e.status != "" {
		s += " (HTTP status " + e.status + ")"
	}
	return s
}

func (e wsHandshakeError) Unwrap() error {
	return e.err
}

// wsClientHeaders strips the credentials from endpoint and turns them into a basic
// authorization header.
func wsClientHeaders(endpoint, origin string) (string, http.Header, error) {
	endpointURL, err := url.Parse(endpoint)
	if err != nil {
		return endpoint, nil, err
	}
	header := make(http.Header)
	if origin != "" {
		header.Add("origin", origin)
	}
	if endpointURL.User != nil {
		b64auth := base64.StdEncoding.EncodeToString([]byte(endpointURL.User.String()))
		header.Add("authorization", "Basic "+b64auth)
		endpointURL.User = nil
	}
	return endpointURL.String(), header, nil
}

// newWebsocketFactory returns the default SocketFactory, which dials with gorilla
// websocket using the dialer and read limit from cfg.
func newWebsocketFactory(cfg *providerConfig) SocketFactory {
	base := cfg.wsDialer
	if base == nil {
		base = &websocket.Dialer{
			ReadBufferSize:   wsReadBuffer,
			WriteBufferSize:  wsWriteBuffer,
			WriteBufferPool:  wsBufferPool,
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
		}
	}
	readLimit := int64(wsDefaultReadLimit)
	if cfg.wsMessageSizeLimit != nil && *cfg.wsMessageSizeLimit >= 0 {
		readLimit = *cfg.wsMessageSizeLimit
	}
	return func(endpoint string, header http.Header, protocol string, events SocketEvents) Socket {
		dialer := *base
		if protocol != "" {
			dialer.Subprotocols = []string{protocol}
		}
		return dialWebsocket(&dialer, endpoint, header, readLimit, events)
	}
}

// wsSocket is a Socket on top of a gorilla websocket connection. Dialing happens in the
// background; the socket is CONNECTING until the handshake completes.
type wsSocket struct {
	dialer    *websocket.Dialer
	url       string
	header    http.Header
	readLimit int64
	events    SocketEvents
	log       log.Logger

	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex // guards conn writes
	conn    *websocket.Conn

	wg           sync.WaitGroup
	closeOnce    sync.Once
	closed       chan struct{}
	pingReset    chan struct{}
	pongReceived chan struct{}
}

func dialWebsocket(dialer *websocket.Dialer, endpoint string, header http.Header, readLimit int64, events SocketEvents) *wsSocket {
	ws := &wsSocket{
		dialer:       dialer,
		url:          endpoint,
		header:       header,
		readLimit:    readLimit,
		events:       events,
		log:          log.New("endpoint", endpoint),
		closed:       make(chan struct{}),
		pingReset:    make(chan struct{}, 1),
		pongReceived: make(chan struct{}),
	}
	ws.state.Store(int32(StateConnecting))
	ws.ctx, ws.cancel = context.WithCancel(context.Background())
	go ws.run()
	return ws
}

func (ws *wsSocket) State() ConnState {
	return ConnState(ws.state.Load())
}

func (ws *wsSocket) run() {
	defer ws.cancel()

	conn, resp, err := ws.dialer.DialContext(ws.ctx, ws.url, ws.header)
	if err != nil {
		hErr := wsHandshakeError{err: err}
		if resp != nil {
			hErr.status = resp.Status
		}
		aborted := ws.State() == StateClosing
		ws.state.Store(int32(StateClosed))
		if !aborted {
			ws.events.OnError(hErr)
		}
		ws.events.OnClose(websocket.CloseAbnormalClosure, hErr.Error())
		return
	}
	conn.SetReadLimit(ws.readLimit)

	ws.writeMu.Lock()
	ws.conn = conn
	ws.writeMu.Unlock()

	// Close may have been called while the handshake was in flight.
	if !ws.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		conn.Close()
		ws.state.Store(int32(StateClosed))
		ws.events.OnClose(websocket.CloseNormalClosure, "closed during handshake")
		return
	}
	conn.SetPongHandler(func(appData string) error {
		select {
		case ws.pongReceived <- struct{}{}:
		case <-ws.closed:
		}
		return nil
	})
	ws.wg.Add(1)
	go ws.pingLoop()

	ws.events.OnOpen()
	ws.readLoop(conn)
}

func (ws *wsSocket) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err == nil {
			ws.events.OnMessage(data)
			continue
		}
		closedByUs := ws.State() == StateClosing
		code, reason := websocket.CloseAbnormalClosure, err.Error()
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			code, reason = ce.Code, ce.Text
		} else if closedByUs {
			code, reason = websocket.CloseNormalClosure, "closed by client"
		}
		ws.state.Store(int32(StateClosed))
		ws.closeOnce.Do(func() { close(ws.closed) })
		conn.Close()
		ws.wg.Wait()

		if !closedByUs && code != websocket.CloseNormalClosure && code != websocket.CloseGoingAway {
			ws.events.OnError(err)
		}
		ws.events.OnClose(code, reason)
		return
	}
}

func (ws *wsSocket) Send(ctx context.Context, data []byte) error {
	if state := ws.State(); state != StateOpen {
		return &SendRejectedError{State: state}
	}
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteTimeout)
	}
	ws.conn.SetWriteDeadline(deadline)
	err := ws.conn.WriteMessage(websocket.TextMessage, data)
	if err == nil {
		// Notify pingLoop to delay the next idle ping.
		select {
		case ws.pingReset <- struct{}{}:
		default:
		}
	}
	return err
}

func (ws *wsSocket) Close() error {
	for {
		switch state := ws.State(); state {
		case StateConnecting:
			if ws.state.CompareAndSwap(int32(state), int32(StateClosing)) {
				ws.cancel()
				return nil
			}
		case StateOpen:
			if ws.state.CompareAndSwap(int32(state), int32(StateClosing)) {
				ws.writeMu.Lock()
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				err := ws.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsCloseWriteTimeout))
				ws.writeMu.Unlock()
				if err != nil {
					ws.log.Debug("Failed to write websocket close frame", "err", err)
				}
				return ws.conn.Close()
			}
		default:
			return nil
		}
	}
}

// pingLoop sends periodic ping frames when the connection is idle.
func (ws *wsSocket) pingLoop() {
	var pingTimer = time.NewTimer(wsPingInterval)
	defer ws.wg.Done()
	defer pingTimer.Stop()

	for {
		select {
		case <-ws.closed:
			return

		case <-ws.pingReset:
			if !pingTimer.Stop() {
				<-pingTimer.C
			}
			pingTimer.Reset(wsPingInterval)

		case <-pingTimer.C:
			ws.writeMu.Lock()
			ws.conn.SetWriteDeadline(time.Now().Add(wsPingWriteTimeout))
			if err := ws.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				ws.log.Trace("Websocket ping failed", "err", err)
			}
			ws.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
			ws.writeMu.Unlock()
			pingTimer.Reset(wsPingInterval)

		case <-ws.pongReceived:
			ws.conn.SetReadDeadline(time.Time{})
		}
	}
}
