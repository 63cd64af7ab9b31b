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

import "sync"

// EventType names the provider events listeners can register for.
type EventType string

const (
	EventData    EventType = "data"    // subscription notification received
	EventConnect EventType = "connect" // connection opened
	EventEnd     EventType = "end"     // connection closed
	EventError   EventType = "error"   // transport or auth failure
)

// Event is passed to listeners. Message is set for EventData, Err for EventError and
// for EventEnd when the close was abnormal.
type Event struct {
	Type    EventType
	Message *Message
	Err     error
}

// Listener is a provider event callback.
type Listener func(ev Event)

// ListenerID identifies a registered listener for removal.
type ListenerID uint64

type busEntry struct {
	id ListenerID
	fn Listener
}

// listenerBus is an ordered list of listeners. Listeners run in registration order
// on the goroutine calling dispatch, and may add or remove listeners while running.
type listenerBus struct {
	mu      sync.Mutex
	next    ListenerID
	entries []busEntry
}

func (b *listenerBus) add(fn Listener) ListenerID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	b.entries = append(b.entries, busEntry{id: b.next, fn: fn})
	return b.next
}

func (b *listenerBus) remove(id ListenerID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, e := range b.entries {
		if e.id == id {
			b.entries = append(b.entries[:i:i], b.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (b *listenerBus) clear() {
	b.mu.Lock()
	b.entries = nil
	b.mu.Unlock()
}

func (b *listenerBus) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// dispatch calls every listener registered at the time of the call with ev.
// Panics in listeners are not recovered.
func (b *listenerBus) dispatch(ev Event) {
	b.mu.Lock()
	entries := b.entries
	b.mu.Unlock()

	for _, e := range entries {
		e.fn(ev)
	}
}
