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
	"fmt"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common/mclock"
)

// Callback receives the outcome of a send: the response payload, or an error.
// It is invoked exactly once.
type Callback func(resp *Payload, err error)

// pendingRequest represents a request that is waiting for its response. Batches are
// registered under all of their ids but resolve only once.
type pendingRequest struct {
	ids      []string
	method   string
	callback Callback
	gen      uint64 // connection generation the request was sent on
	sent     mclock.AbsTime
	timer    mclock.Timer
}

// callbackRegistry correlates responses with pending requests.
//
// An entry is removed under the lock before its callback runs outside the lock, so
// whichever of response, timeout or invalidation removes it first is the only one
// that invokes it, and callbacks may freely send again.
type callbackRegistry struct {
	clock mclock.Clock

	mu      sync.Mutex
	pending map[string]*pendingRequest
}

func newCallbackRegistry(clock mclock.Clock) *callbackRegistry {
	return &callbackRegistry{clock: clock, pending: make(map[string]*pendingRequest)}
}

// register stores op under all of its ids. If timeout is positive, op is resolved
// with a ConnectionTimeoutError when it is still registered after timeout.
func (r *callbackRegistry) register(op *pendingRequest, timeout time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range op.ids {
		if _, ok := r.pending[id]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
	}
	op.sent = r.clock.Now()
	for _, id := range op.ids {
		r.pending[id] = op
	}
	if timeout > 0 {
		op.timer = r.clock.AfterFunc(timeout, func() { r.expire(op, timeout) })
	}
	return nil
}

func (r *callbackRegistry) expire(op *pendingRequest, timeout time.Duration) {
	if !r.forget(op) {
		return
	}
	timeoutCounter.Inc(1)
	op.callback(nil, &ConnectionTimeoutError{Method: op.method, Timeout: timeout})
}

// removeLocked deletes op from the map and stops its timer. It reports false if op
// was not registered anymore.
func (r *callbackRegistry) removeLocked(op *pendingRequest) bool {
	if len(op.ids) == 0 || r.pending[op.ids[0]] != op {
		return false
	}
	for _, id := range op.ids {
		delete(r.pending, id)
	}
	if op.timer != nil {
		op.timer.Stop()
	}
	return true
}

// forget removes op without invoking its callback.
func (r *callbackRegistry) forget(op *pendingRequest) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(op)
}

// resolve delivers resp to the pending requests it answers and returns them. For a
// batch, every element id is considered, so a reordered batch response is still
// matched. An empty result means resp did not answer anything.
func (r *callbackRegistry) resolve(resp *Payload) []*pendingRequest {
	var resolved []*pendingRequest
	r.mu.Lock()
	seen := mapset.NewThreadUnsafeSet[*pendingRequest]()
	for _, id := range resp.IDs() {
		op := r.pending[id]
		if op == nil || seen.Contains(op) {
			continue
		}
		seen.Add(op)
		r.removeLocked(op)
		resolved = append(resolved, op)
	}
	r.mu.Unlock()

	for _, op := range resolved {
		op.callback(resp, nil)
	}
	return resolved
}

// resolveAll removes every pending request accepted by filter (all of them if filter
// is nil) and invokes each one with err. It returns the number of requests resolved.
func (r *callbackRegistry) resolveAll(err error, filter func(*pendingRequest) bool) int {
	var ops []*pendingRequest
	r.mu.Lock()
	didClose := mapset.NewThreadUnsafeSet[*pendingRequest]()
	for _, op := range r.pending {
		if didClose.Contains(op) || (filter != nil && !filter(op)) {
			continue
		}
		didClose.Add(op)
		ops = append(ops, op)
	}
	for _, op := range ops {
		r.removeLocked(op)
	}
	r.mu.Unlock()

	for _, op := range ops {
		op.callback(nil, err)
	}
	return len(ops)
}

// pendingFor counts the requests sent on the given connection generation.
func (r *callbackRegistry) pendingFor(gen uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	ops := mapset.NewThreadUnsafeSet[*pendingRequest]()
	for _, op := range r.pending {
		if op.gen == gen {
			ops.Add(op)
		}
	}
	return ops.Cardinality()
}

// len returns the number of pending requests.
func (r *callbackRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	ops := mapset.NewThreadUnsafeSet[*pendingRequest]()
	for _, op := range r.pending {
		ops.Add(op)
	}
	return ops.Cardinality()
}
