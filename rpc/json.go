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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	vsn                      = "2.0"
	notificationMethodSuffix = "_subscription"
)

var null = json.RawMessage("null")

// subscriptionResult is the params object of a subscription push.
type subscriptionResult struct {
	ID     string          `json:"subscription"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Message is a single JSON-RPC 2.0 envelope. A value of this type can be a request,
// notification, successful response or error response. Which one it is depends on the
// fields.
type Message struct {
	Version string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Error   *JSONError      `json:"error,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// NewRequest creates a call message. The id may be any JSON scalar, usually a number
// or a string.
func NewRequest(id any, method string, params ...any) (*Message, error) {
	msg := &Message{Version: vsn, Method: method}
	if id != nil {
		enc, err := json.Marshal(id)
		if err != nil {
			return nil, fmt.Errorf("invalid request id: %w", err)
		}
		msg.ID = enc
	}
	if params == nil {
		params = []any{}
	}
	enc, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	msg.Params = enc
	return msg, nil
}

func (msg *Message) hasValidID() bool {
	return len(msg.ID) > 0 && !bytes.Equal(msg.ID, null) && msg.ID[0] != '{' && msg.ID[0] != '['
}

// idKey is the registry key of the message id. Ids are compared by their JSON
// encoding, so "42" and 42 are different ids.
func (msg *Message) idKey() string {
	return string(bytes.TrimSpace(msg.ID))
}

// isPush reports whether msg is a subscription notification, i.e. it carries no id
// and its method ends in the given suffix.
func (msg *Message) isPush(suffix string) bool {
	return !msg.hasValidID() && msg.Method != "" && strings.HasSuffix(msg.Method, suffix)
}

// Subscription decodes the params of a subscription push.
func (msg *Message) Subscription() (id string, result json.RawMessage, err error) {
	var sr subscriptionResult
	if err := json.Unmarshal(msg.Params, &sr); err != nil {
		return "", nil, err
	}
	return sr.ID, sr.Result, nil
}

func (msg *Message) String() string {
	b, _ := json.Marshal(msg)
	return string(b)
}

// JSONError is the error object of a JSON-RPC error response.
type JSONError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (err *JSONError) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("json-rpc error %d", err.Code)
	}
	return err.Message
}

func (err *JSONError) ErrorCode() int {
	return err.Code
}

func (err *JSONError) ErrorData() interface{} {
	return err.Data
}

// Payload is what travels over the socket in one JSON value: either a single message
// or a batch of messages.
type Payload struct {
	Messages []*Message
	IsBatch  bool
}

// Single wraps one message.
func Single(msg *Message) *Payload {
	return &Payload{Messages: []*Message{msg}}
}

// Batch wraps several messages into a batch. An empty batch is valid on the wire but
// carries no ids, so it is never correlated with a response.
func Batch(msgs ...*Message) *Payload {
	return &Payload{Messages: msgs, IsBatch: true}
}

// IDs returns the registry keys of all messages carrying an id, in order.
func (p *Payload) IDs() []string {
	var ids []string
	for _, msg := range p.Messages {
		if msg != nil && msg.hasValidID() {
			ids = append(ids, msg.idKey())
		}
	}
	return ids
}

// method returns the method of the first message, used for logs and metrics.
func (p *Payload) method() string {
	for _, msg := range p.Messages {
		if msg != nil && msg.Method != "" {
			return msg.Method
		}
	}
	return ""
}

func (p *Payload) MarshalJSON() ([]byte, error) {
	if p.IsBatch {
		if p.Messages == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(p.Messages)
	}
	if len(p.Messages) != 1 {
		return nil, errors.New("single payload must hold exactly one message")
	}
	return json.Marshal(p.Messages[0])
}

func (p *Payload) UnmarshalJSON(raw []byte) error {
	parsed, err := parsePayload(raw)
	if err != nil {
		return err
	}
	*p = *parsed
	return nil
}

// parsePayload parses a complete JSON value as a (batch of) JSON-RPC message(s).
// Elements of a batch that are not objects are replaced by empty messages so they are
// treated like any other unroutable message.
func parsePayload(raw json.RawMessage) (*Payload, error) {
	if !isBatch(raw) {
		msg := new(Message)
		if err := json.Unmarshal(raw, msg); err != nil {
			return nil, err
		}
		return Single(msg), nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, err
	}
	p := &Payload{Messages: make([]*Message, len(elems)), IsBatch: true}
	for i, elem := range elems {
		msg := new(Message)
		if err := json.Unmarshal(elem, msg); err != nil {
			msg = new(Message)
		}
		p.Messages[i] = msg
	}
	return p, nil
}

// isBatch returns true when the first non-whitespace characters is '['
func isBatch(raw json.RawMessage) bool {
	for _, c := range raw {
		// skip insignificant whitespace (http://www.ietf.org/rfc/rfc4627.txt)
		if c == 0x20 || c == 0x09 || c == 0x0a || c == 0x0d {
			continue
		}
		return c == '['
	}
	return false
}
