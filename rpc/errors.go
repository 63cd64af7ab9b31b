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
	"errors"
	"fmt"
	"time"
)

// Error wraps RPC errors, which contain an error code in addition to the message.
type Error interface {
	Error() string  // returns the message
	ErrorCode() int // returns the code
}

// A DataError contains some data in addition to the error message.
type DataError interface {
	Error() string          // returns the message
	ErrorData() interface{} // returns the error data
}

// Sentinel values for the transport failure classes. Use errors.Is to test for them,
// the concrete error types carry the details.
var (
	ErrInvalidResponse   = errors.New("invalid JSON-RPC response")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrInvalidConnection = errors.New("invalid connection")
	ErrSendRejected      = errors.New("connection not open")
	ErrAuthRefresh       = errors.New("access token refresh failed")
	ErrDuplicateID       = errors.New("request id already pending")

	ErrNoResult             = errors.New("JSON-RPC response has no result")
	ErrMissingBatchResponse = errors.New("response batch did not contain a response to this call")
)

var (
	_ Error = new(InvalidResponseError)
	_ Error = new(ConnectionTimeoutError)
	_ Error = new(InvalidConnectionError)
	_ Error = new(SendRejectedError)
	_ Error = new(JSONError)
)

const (
	errcodeDefault = -32000
	errcodeTimeout = -32002
	errcodeParse   = -32700
)

// maxFragmentInError bounds the part of a stalled fragment quoted in error messages.
const maxFragmentInError = 256

// InvalidResponseError is delivered to all pending requests when a fragment of an
// inbound frame could not be completed into a JSON value within the dechunk window.
type InvalidResponseError struct {
	Fragment string
}

func (e *InvalidResponseError) Error() string {
	frag := e.Fragment
	if len(frag) > maxFragmentInError {
		frag = frag[:maxFragmentInError] + "..."
	}
	return fmt.Sprintf("invalid JSON-RPC response: %q", frag)
}

func (e *InvalidResponseError) ErrorCode() int { return errcodeParse }

func (e *InvalidResponseError) Is(target error) bool { return target == ErrInvalidResponse }

// ConnectionTimeoutError is delivered to a request whose per-request timeout elapsed
// before a matching response arrived.
type ConnectionTimeoutError struct {
	Method  string
	Timeout time.Duration
}

func (e *ConnectionTimeoutError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("connection timeout: no response within %v", e.Timeout)
	}
	return fmt.Sprintf("connection timeout: no response to %s within %v", e.Method, e.Timeout)
}

func (e *ConnectionTimeoutError) ErrorCode() int { return errcodeTimeout }

func (e *ConnectionTimeoutError) Is(target error) bool { return target == ErrConnectionTimeout }

// InvalidConnectionError is delivered to every request pending on a connection that
// closed or failed.
type InvalidConnectionError struct {
	Endpoint string
	Code     int    // websocket close code, zero if unknown
	Reason   string // close reason or description of the local action
	Err      error  // underlying socket error, if any
}

func (e *InvalidConnectionError) Error() string {
	s := "connection error on " + e.Endpoint
	if e.Code != 0 {
		s += fmt.Sprintf(" (close %d)", e.Code)
	}
	if e.Reason != "" {
		s += ": " + e.Reason
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *InvalidConnectionError) ErrorCode() int { return errcodeDefault }

func (e *InvalidConnectionError) Is(target error) bool { return target == ErrInvalidConnection }

func (e *InvalidConnectionError) Unwrap() error { return e.Err }

// SendRejectedError is returned through the callback of a send attempted while the
// connection is not open.
type SendRejectedError struct {
	State ConnState
}

func (e *SendRejectedError) Error() string {
	return fmt.Sprintf("connection not open (state %v)", e.State)
}

func (e *SendRejectedError) ErrorCode() int { return errcodeDefault }

func (e *SendRejectedError) Is(target error) bool { return target == ErrSendRejected }

// AuthRefreshError reports a failed access token refresh. It is emitted as an error
// event only; requests never see it.
type AuthRefreshError struct {
	Err error
}

func (e *AuthRefreshError) Error() string {
	return "access token refresh failed: " + e.Err.Error()
}

func (e *AuthRefreshError) Is(target error) bool { return target == ErrAuthRefresh }

func (e *AuthRefreshError) Unwrap() error { return e.Err }
