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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pushFrame(id, result string) string {
	return `{"jsonrpc":"2.0","method":"test_subscription","params":{"subscription":"` + id + `","result":` + result + `}}`
}

// subscribeResponder creates subscription "0x9" for test_subscribe and sends its
// first notification ahead of the response. bad_subscribe fails.
func subscribeResponder(s *fakeSocket, data []byte) {
	req, err := parsePayload(data)
	if err != nil {
		panic(err)
	}
	msg := req.Messages[0]
	switch msg.Method {
	case "test_subscribe":
		s.deliver(pushFrame("0x9", "1") + `{"jsonrpc":"2.0","id":` + string(msg.ID) + `,"result":"0x9"}`)
	case "bad_subscribe":
		s.deliver(`{"jsonrpc":"2.0","id":` + string(msg.ID) + `,"error":{"code":-32601,"message":"no such namespace"}}`)
	default:
		echoResponder(s, data)
	}
}

func newSubscribeTestProvider(t *testing.T) (*Provider, *fakeNetwork) {
	p, net, _ := newTestProvider(t)
	net.respond = subscribeResponder
	require.NoError(t, p.Open(context.Background()))
	return p, net
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for value")
	}
	panic("unreachable")
}

func TestSubscribe(t *testing.T) {
	p, net := newSubscribeTestProvider(t)
	sock := net.socket(0)

	ch := make(chan int, 10)
	sub, err := p.Subscribe(context.Background(), "test", ch, "events")
	require.NoError(t, err)
	assert.Equal(t, "0x9", sub.ID())

	sock.deliver(pushFrame("0x9", "2"))
	sock.deliver(pushFrame("0x8", "100"))
	sock.deliver(pushFrame("0x9", "3"))
	assert.Equal(t, 1, receive(t, ch))
	assert.Equal(t, 2, receive(t, ch))
	assert.Equal(t, 3, receive(t, ch))

	sub.Unsubscribe()
	sub.Unsubscribe()
	_, ok := <-sub.Err()
	assert.False(t, ok)

	sock.mu.Lock()
	last := sock.sent[len(sock.sent)-1]
	sock.mu.Unlock()
	var req Message
	require.NoError(t, json.Unmarshal(last, &req))
	assert.Equal(t, "test_unsubscribe", req.Method)
	assert.JSONEq(t, `["0x9"]`, string(req.Params))
	assert.Equal(t, 0, p.bus(EventData).len())
	assert.Equal(t, 0, p.bus(EventEnd).len())
}

func TestSubscribeFailure(t *testing.T) {
	p, _ := newSubscribeTestProvider(t)

	_, err := p.Subscribe(context.Background(), "bad", make(chan int))
	var jsonErr *JSONError
	require.ErrorAs(t, err, &jsonErr)
	assert.Equal(t, -32601, jsonErr.Code)
	assert.Equal(t, 0, p.bus(EventData).len())
	assert.Equal(t, 0, p.bus(EventConnect).len())
}

func TestSubscribeResetOnReconnect(t *testing.T) {
	p, net := newSubscribeTestProvider(t)
	sub, err := p.Subscribe(context.Background(), "test", make(chan int, 1))
	require.NoError(t, err)

	p.Reconnect()
	require.Equal(t, 2, net.count())
	assert.ErrorIs(t, receive(t, sub.Err()), ErrSubscriptionReset)
	sub.Unsubscribe()
}

func TestSubscribeConnectionEnd(t *testing.T) {
	p, net := newSubscribeTestProvider(t)
	sub, err := p.Subscribe(context.Background(), "test", make(chan int, 1))
	require.NoError(t, err)

	net.socket(0).drop(1006, "")
	err = receive(t, sub.Err())
	assert.ErrorIs(t, err, ErrInvalidConnection)

	// A normal close ends the subscription without error.
	require.NoError(t, p.Open(context.Background()))
	sub, err = p.Subscribe(context.Background(), "test", make(chan int, 1))
	require.NoError(t, err)
	p.Disconnect()
	err, ok := <-sub.Err()
	assert.True(t, ok)
	assert.NoError(t, err)
}

func TestSubscribeDecodeError(t *testing.T) {
	p, net := newSubscribeTestProvider(t)
	ch := make(chan int, 1)
	sub, err := p.Subscribe(context.Background(), "test", ch)
	require.NoError(t, err)
	assert.Equal(t, 1, receive(t, ch))

	net.socket(0).deliver(pushFrame("0x9", `"not a number"`))
	var typeErr *json.UnmarshalTypeError
	assert.ErrorAs(t, receive(t, sub.Err()), &typeErr)
	assert.Eventually(t, func() bool { return net.socket(0).sentCount() == 2 }, 5*time.Second, time.Millisecond)
}

func TestSubscribeChannelCheck(t *testing.T) {
	p, _ := newSubscribeTestProvider(t)
	assert.Panics(t, func() { p.Subscribe(context.Background(), "test", 1) })
	assert.Panics(t, func() { p.Subscribe(context.Background(), "test", make(<-chan int)) })
	var nilChan chan int
	assert.Panics(t, func() { p.Subscribe(context.Background(), "test", nilChan) })
}
