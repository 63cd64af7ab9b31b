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

/*
Package rpc implements a persistent JSON-RPC 2.0 client transport over a websocket.

A Provider keeps one long-lived connection to a node. Requests are correlated with
their responses by id, and messages without an id whose method ends in
"_subscription" are delivered as notifications to listeners.

	p, err := rpc.NewProvider("wss://node.example.org/ws", rpc.WithTimeout(30*time.Second))
	if err != nil {
		return err
	}
	if err := p.Open(ctx); err != nil {
		return err
	}
	defer p.Disconnect()

	var block string
	err = p.Call(ctx, &block, "eth_blockNumber")

# Framing

Servers and proxies do not always put exactly one JSON value into a websocket frame. A
frame may carry several concatenated values, or only part of one. The provider cuts
frames at the places where two values touch and buffers incomplete values until their
remainder arrives. A fragment that is not completed within 15 seconds fails all pending
requests with an InvalidResponseError.

# Callbacks

Send invokes its callback exactly once: with the response, with a
ConnectionTimeoutError when the configured timeout elapses, with an
InvalidConnectionError when the connection closes, or with a SendRejectedError when
the connection is not open. Sends issued while the connection is still connecting are
retried every 10 milliseconds.

# Events

Listeners registered with On receive "data" (notifications), "connect", "end" and
"error" events. They are owned by the provider and survive reconnects.
SubscribeNotifications offers the notifications on a channel instead.

Subscribe creates a server-side subscription and decodes its notifications into a typed
channel:

	heads := make(chan map[string]interface{})
	sub, err := p.Subscribe(ctx, "eth", heads, "newHeads")
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

A subscription ends when the provider switches to a new connection, since the server
forgets it. Err reports ErrSubscriptionReset in that case.

# Authentication

WithAccessToken configures a token source. The token is sent as a bearer authorization
header during the handshake. It is refreshed every sync interval, and before a send
whenever the JWT exp claim says it has expired. Each refresh opens a new connection
with the new header. The old connection is closed once the requests sent on it have
been answered, or after 30 seconds.
*/
package rpc
