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
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"
)

// sendRetryDelay is the delay between attempts of a send issued while the
// connection is still connecting.
const sendRetryDelay = 10 * time.Millisecond

var errNilPayload = errors.New("nil payload")

// BatchElem is an element in a batch request.
type BatchElem struct {
	Method string
	Args   []interface{}
	// The result is unmarshaled into this field. Result must be set to a
	// non-nil pointer value of the desired type, otherwise the response will be
	// discarded.
	Result interface{}
	// Error is set if the server returns an error for this request, or if
	// unmarshalling into Result fails. It is not set for I/O errors.
	Error error
}

// Provider is a persistent JSON-RPC connection over a websocket. It correlates
// responses with requests, delivers subscription notifications to listeners and keeps
// a bearer token fresh by reconnecting with new credentials.
//
// A Provider is inert until Open is called. Listeners registered with On belong to
// the Provider and stay registered when the underlying connection is replaced.
type Provider struct {
	endpoint string
	cfg      *providerConfig
	clock    mclock.Clock
	log      log.Logger

	conns    *connManager
	registry *callbackRegistry
	buses    map[EventType]*listenerBus
	feed     event.FeedOf[*Message]

	idCounter atomic.Uint32

	openMu sync.Mutex // serializes Open

	mu   sync.Mutex
	auth *authRefresher
}

// NewProvider creates a provider for the given ws:// or wss:// endpoint. Credentials
// in the URL are sent as a basic authorization header. No connection is made until
// Open is called.
func NewProvider(endpoint string, opts ...ProviderOption) (*Provider, error) {
	cfg := defaultProviderConfig()
	for _, opt := range opts {
		opt.applyOption(cfg)
	}
	dialURL, header, err := wsClientHeaders(endpoint, "")
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(dialURL)
	if err != nil {
		return nil, err
	}
	if cfg.factory == nil {
		switch u.Scheme {
		case "ws", "wss":
		default:
			return nil, fmt.Errorf("no known transport for URL scheme %q", u.Scheme)
		}
		cfg.factory = newWebsocketFactory(cfg)
	}
	for k, vs := range cfg.headers {
		header[k] = vs
	}

	p := &Provider{
		endpoint: dialURL,
		cfg:      cfg,
		clock:    cfg.clock,
		log:      log.New("endpoint", dialURL),
		registry: newCallbackRegistry(cfg.clock),
		buses: map[EventType]*listenerBus{
			EventData:    new(listenerBus),
			EventConnect: new(listenerBus),
			EventEnd:     new(listenerBus),
			EventError:   new(listenerBus),
		},
	}
	p.conns = newConnManager(dialURL, cfg.protocol, header, cfg.factory, cfg.clock, p, p.registry.pendingFor, p.log)
	return p, nil
}

// Open connects the provider. If an access token source is configured, the first
// token is fetched before connecting; when that fails the connection is opened
// without a token and the refresh is retried in the background. Open may be called
// again to reconnect after the connection was closed.
//
// Open does not wait for the websocket handshake. Sends issued while the handshake is
// in progress are delayed until it completes.
func (p *Provider) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.openMu.Lock()
	defer p.openMu.Unlock()

	if p.cfg.tokenSource != nil && p.authRefresher() == nil {
		a := newAuthRefresher(p.cfg.tokenSource, p.cfg.syncInterval, p.clock, nil, p.authFailed, p.log)
		a.install = func(token string) { p.installToken(a, token) }
		p.mu.Lock()
		p.auth = a
		p.mu.Unlock()
		a.start(ctx)
	}
	switch p.conns.current().state() {
	case StateClosing, StateClosed:
		p.conns.recreate()
	}
	return nil
}

func (p *Provider) authRefresher() *authRefresher {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.auth
}

// installToken puts a fresh token on the handshake headers and reconnects with it.
func (p *Provider) installToken(a *authRefresher, token string) {
	if p.authRefresher() != a {
		return
	}
	p.conns.setHeader("Authorization", "Bearer "+token)
	reconnectCounter.Inc(1)
	p.conns.recreate()
}

func (p *Provider) authFailed(err error) {
	p.emit(Event{Type: EventError, Err: err})
}

// Send transmits payload and invokes cb exactly once with the response, or with the
// error that ended the request: a timeout, the loss of the connection, or a local
// rejection when the connection is not open. A payload without ids is only
// transmitted; cb then receives the result of the write.
//
// The callback runs on the connection's read goroutine or on a timer goroutine and
// may call Send again.
func (p *Provider) Send(ctx context.Context, payload *Payload, cb Callback) {
	p.send(ctx, payload, cb, nil)
}

func (p *Provider) send(ctx context.Context, payload *Payload, cb Callback, reg *atomic.Pointer[pendingRequest]) {
	if payload == nil {
		cb(nil, errNilPayload)
		return
	}
	if a := p.authRefresher(); a != nil {
		a.ensureFresh(ctx)
	}

	c := p.conns.current()
	switch state := c.state(); state {
	case StateOpen:
	case StateConnecting:
		if err := ctx.Err(); err != nil {
			cb(nil, err)
			return
		}
		p.clock.AfterFunc(sendRetryDelay, func() {
			if err := ctx.Err(); err != nil {
				cb(nil, err)
				return
			}
			p.send(ctx, payload, cb, reg)
		})
		return
	default:
		err := &SendRejectedError{State: state}
		rejectCounter.Inc(1)
		p.log.Debug("Rejected send", "method", payload.method(), "state", state)
		p.emit(Event{Type: EventError, Err: err})
		cb(nil, err)
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		cb(nil, err)
		return
	}
	ids := payload.IDs()
	if len(ids) == 0 {
		cb(nil, c.send(ctx, data))
		return
	}

	method := payload.method()
	start := p.clock.Now()
	op := &pendingRequest{
		ids:    ids,
		method: method,
		gen:    c.gen,
	}
	op.callback = func(resp *Payload, err error) {
		p.record(method, start, err)
		cb(resp, err)
		// A retired connection may have just lost its last request.
		if err != nil {
			p.conns.reap(op.gen)
		}
	}
	// The caller may have given up while the send waited for a token or the connection.
	if err := ctx.Err(); err != nil {
		cb(nil, err)
		return
	}
	if reg != nil {
		reg.Store(op)
	}
	if err := p.registry.register(op, p.cfg.timeout); err != nil {
		cb(nil, err)
		return
	}
	requestCounter.Inc(1)
	p.log.Trace("Sending request", "method", method, "ids", ids, "gen", c.gen)
	if err := c.send(ctx, data); err != nil {
		if p.registry.forget(op) {
			op.callback(nil, err)
		}
	}
}

func (p *Provider) record(method string, start mclock.AbsTime, err error) {
	elapsed := p.clock.Now().Sub(start)
	if err != nil {
		failureCounter.Inc(1)
	} else {
		successCounter.Inc(1)
		requestTimer.Update(elapsed)
	}
	updateRoundTripHistogram(method, err == nil, elapsed)
}

// roundTrip sends payload and waits for its outcome. If ctx is canceled first, the
// request is dropped from the registry.
func (p *Provider) roundTrip(ctx context.Context, payload *Payload) (*Payload, error) {
	type outcome struct {
		resp *Payload
		err  error
	}
	var (
		ch  = make(chan outcome, 1)
		reg atomic.Pointer[pendingRequest]
	)
	p.send(ctx, payload, func(resp *Payload, err error) { ch <- outcome{resp, err} }, &reg)

	select {
	case o := <-ch:
		return o.resp, o.err
	case <-ctx.Done():
		if op := reg.Load(); op != nil && p.registry.forget(op) {
			p.conns.reap(op.gen)
		}
		return nil, ctx.Err()
	}
}

func (p *Provider) nextID() uint32 {
	return p.idCounter.Add(1)
}

// Call performs a JSON-RPC call with the given arguments and unmarshals into
// result if no error occurred.
//
// The result must be a pointer so that package json can unmarshal into it. You
// can also pass nil, in which case the result is ignored.
func (p *Provider) Call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	if result != nil && reflect.TypeOf(result).Kind() != reflect.Ptr {
		return fmt.Errorf("call result parameter must be pointer or nil interface: %v", result)
	}
	msg, err := NewRequest(p.nextID(), method, args...)
	if err != nil {
		return err
	}
	resp, err := p.roundTrip(ctx, Single(msg))
	if err != nil {
		return err
	}
	var answer *Message
	for _, m := range resp.Messages {
		if m.idKey() == msg.idKey() {
			answer = m
			break
		}
	}
	switch {
	case answer == nil:
		return ErrNoResult
	case answer.Error != nil:
		return answer.Error
	case len(answer.Result) == 0:
		return ErrNoResult
	case result == nil:
		return nil
	default:
		return json.Unmarshal(answer.Result, result)
	}
}

// BatchCall sends all given requests as a single batch and waits for the server
// to return a response for all of them.
//
// In contrast to Call, BatchCall only returns I/O errors. Any error specific to
// a request is reported through the Error field of the corresponding BatchElem.
//
// Note that batch calls may not be executed atomically on the server side.
func (p *Provider) BatchCall(ctx context.Context, b []BatchElem) error {
	if len(b) == 0 {
		return nil
	}
	var (
		msgs = make([]*Message, len(b))
		byID = make(map[string]int, len(b))
	)
	for i, elem := range b {
		msg, err := NewRequest(p.nextID(), elem.Method, elem.Args...)
		if err != nil {
			return err
		}
		msgs[i] = msg
		byID[msg.idKey()] = i
	}
	resp, err := p.roundTrip(ctx, Batch(msgs...))
	if err != nil {
		return err
	}
	for _, m := range resp.Messages {
		i, ok := byID[m.idKey()]
		if !ok {
			continue
		}
		delete(byID, m.idKey())

		elem := &b[i]
		switch {
		case m.Error != nil:
			elem.Error = m.Error
		case elem.Result == nil:
		case len(m.Result) == 0:
			elem.Error = ErrNoResult
		default:
			elem.Error = json.Unmarshal(m.Result, elem.Result)
		}
	}
	for _, i := range byID {
		b[i].Error = ErrMissingBatchResponse
	}
	return nil
}

// On registers a listener for the given event type. Listeners of one type run in
// registration order.
func (p *Provider) On(typ EventType, fn Listener) ListenerID {
	return p.bus(typ).add(fn)
}

// RemoveListener unregisters a listener. It reports whether the listener was found.
func (p *Provider) RemoveListener(typ EventType, id ListenerID) bool {
	return p.bus(typ).remove(id)
}

// RemoveAllListeners unregisters every listener of the given type.
func (p *Provider) RemoveAllListeners(typ EventType) {
	p.bus(typ).clear()
}

func (p *Provider) bus(typ EventType) *listenerBus {
	b := p.buses[typ]
	if b == nil {
		panic(fmt.Sprintf("rpc: unknown event type %q", typ))
	}
	return b
}

// SubscribeNotifications delivers every subscription notification on ch in addition
// to the data listeners. The channel must keep being drained, the connection's read
// loop blocks until every subscriber received the message.
func (p *Provider) SubscribeNotifications(ch chan<- *Message) event.Subscription {
	return p.feed.Subscribe(ch)
}

func (p *Provider) emit(ev Event) {
	p.buses[ev.Type].dispatch(ev)
}

// Reconnect replaces the connection with a new one using the current headers.
// Requests in flight on the old connection still receive their responses.
func (p *Provider) Reconnect() {
	reconnectCounter.Inc(1)
	p.conns.recreate()
}

// Disconnect stops token refreshes and closes the connection. Pending requests fail
// with an InvalidConnectionError.
func (p *Provider) Disconnect() {
	p.mu.Lock()
	a := p.auth
	p.auth = nil
	p.mu.Unlock()
	if a != nil {
		a.stop()
	}
	for _, c := range p.conns.closeAll() {
		p.handleClose(c, websocket.CloseNormalClosure, "disconnected")
	}
}

// SupportsSubscriptions reports whether the transport can receive server pushes.
func (p *Provider) SupportsSubscriptions() bool {
	return true
}

// Connected reports whether the current connection is open.
func (p *Provider) Connected() bool {
	return p.conns.connected()
}

func (p *Provider) handleOpen(c *socketConn) {
	if !p.conns.isCurrent(c) {
		return
	}
	p.log.Debug("Connection established", "gen", c.gen)
	p.emit(Event{Type: EventConnect})
}

func (p *Provider) handleFrame(c *socketConn, data []byte) {
	var answered bool
	for _, raw := range c.dechunk.ingest(string(data)) {
		payload, err := parsePayload(raw)
		if err != nil {
			p.log.Debug("Dropping unparsable message", "err", err)
			continue
		}
		if len(p.registry.resolve(payload)) > 0 {
			answered = true
			continue
		}
		for _, msg := range payload.Messages {
			if !msg.isPush(p.cfg.pushSuffix) {
				p.log.Debug("Dropping unsolicited message", "msg", msg)
				continue
			}
			p.log.Trace("Received notification", "method", msg.Method)
			notificationMeter.Mark(1)
			p.emit(Event{Type: EventData, Message: msg})
			p.feed.Send(msg)
		}
	}
	if answered && !p.conns.isCurrent(c) {
		p.conns.reap(c.gen)
	}
}

func (p *Provider) handleError(c *socketConn, err error) {
	current := p.conns.isCurrent(c)
	p.log.Debug("Connection error", "gen", c.gen, "current", current, "err", err)
	n := p.invalidate(c, &InvalidConnectionError{Endpoint: p.endpoint, Err: err})
	if n > 0 {
		p.log.Warn("Invalidated pending requests after connection error", "gen", c.gen, "count", n)
	}
	if current {
		p.emit(Event{Type: EventError, Err: err})
	} else if p.conns.dropRetired(c) {
		c.close()
	}
}

func (p *Provider) handleClose(c *socketConn, code int, reason string) {
	if !c.finish() {
		return
	}
	connErr := &InvalidConnectionError{Endpoint: p.endpoint, Code: code, Reason: reason}
	n := p.invalidate(c, connErr)
	if !p.conns.isCurrent(c) {
		p.conns.dropRetired(c)
		p.log.Debug("Retired connection closed", "gen", c.gen, "invalidated", n)
		return
	}
	p.log.Debug("Connection closed", "gen", c.gen, "code", code, "reason", reason, "invalidated", n)
	ev := Event{Type: EventEnd}
	if code != websocket.CloseNormalClosure {
		ev.Err = connErr
	}
	p.emit(ev)
}

func (p *Provider) handleStall(c *socketConn, fragment string) {
	stallCounter.Inc(1)
	err := &InvalidResponseError{Fragment: fragment}
	n := p.registry.resolveAll(err, nil)
	invalidatedCounter.Inc(int64(n))
	p.log.Warn("Incomplete message timed out", "gen", c.gen, "size", len(fragment), "invalidated", n)
	p.emit(Event{Type: EventError, Err: err})
}

// invalidate fails every request pending on connection c.
func (p *Provider) invalidate(c *socketConn, err error) int {
	n := p.registry.resolveAll(err, func(op *pendingRequest) bool { return op.gen == c.gen })
	invalidatedCounter.Inc(int64(n))
	return n
}
