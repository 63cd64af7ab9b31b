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
)

// ConnState is the ready state of a socket.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Socket is a message-oriented connection handle. Implementations must be safe for
// concurrent use.
type Socket interface {
	// State returns the current ready state.
	State() ConnState

	// Send transmits one text frame.
	Send(ctx context.Context, data []byte) error

	// Close starts closing the connection. OnClose is delivered once it is closed.
	Close() error
}

// SocketEvents receives the lifecycle and message events of one socket. A socket
// delivers its events sequentially, never concurrently.
type SocketEvents interface {
	OnOpen()
	OnMessage(data []byte)
	OnError(err error)
	OnClose(code int, reason string)
}

// SocketFactory creates a socket in the CONNECTING state and starts connecting it. The
// header is owned by the socket. The factory must not deliver events before it returns
// unless the caller tolerates it; the provider does.
type SocketFactory func(endpoint string, header http.Header, protocol string, events SocketEvents) Socket
