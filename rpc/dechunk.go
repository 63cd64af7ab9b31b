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
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
)

// dechunkTimeout is how long an incomplete fragment may wait for its remainder.
const dechunkTimeout = 15 * time.Second

// valueBoundary matches the places where two JSON values touch: }{ }][{ }[{ }]{,
// optionally separated by a single line break. Submatch 1 starts the right-hand value.
var valueBoundary = regexp.MustCompile(`\}\]?[\n\r]?(\[?\{)`)

// dechunker reconstructs JSON values from socket frames that may carry several
// concatenated values or only part of one. It holds at most one incomplete fragment.
type dechunker struct {
	clock   mclock.Clock
	timeout time.Duration
	onStall func(fragment string)

	mu     sync.Mutex
	buf    string
	hasBuf bool
	timer  mclock.Timer
	seq    uint64 // invalidates timers that fired after being superseded
}

func newDechunker(clock mclock.Clock, timeout time.Duration, onStall func(string)) *dechunker {
	return &dechunker{clock: clock, timeout: timeout, onStall: onStall}
}

// splitValues cuts chunk at every value boundary. Concatenating the result gives back
// chunk unchanged.
func splitValues(chunk string) []string {
	var (
		parts []string
		start int
	)
	for _, m := range valueBoundary.FindAllStringSubmatchIndex(chunk, -1) {
		cut := m[2]
		parts = append(parts, chunk[start:cut])
		start = cut
	}
	return append(parts, chunk[start:])
}

// ingest feeds one frame into the dechunker and returns the complete values it
// finished, in the order they appear.
func (d *dechunker) ingest(chunk string) []json.RawMessage {
	d.mu.Lock()
	defer d.mu.Unlock()

	var values []json.RawMessage
	for _, part := range splitValues(chunk) {
		if d.hasBuf {
			part = d.buf + part
		} else if strings.TrimSpace(part) == "" {
			continue
		}
		if !json.Valid([]byte(part)) {
			d.buf, d.hasBuf = part, true
			d.armLocked()
			continue
		}
		d.clearLocked()
		raw := json.RawMessage(part)
		if bytes.Equal(bytes.TrimSpace(raw), null) {
			continue
		}
		values = append(values, raw)
	}
	return values
}

// pending returns the buffered fragment, if any.
func (d *dechunker) pending() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buf, d.hasBuf
}

// reset drops the buffered fragment without reporting a stall.
func (d *dechunker) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearLocked()
}

func (d *dechunker) armLocked() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.timer = d.clock.AfterFunc(d.timeout, func() { d.expire(seq) })
}

func (d *dechunker) clearLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
	d.buf, d.hasBuf = "", false
}

func (d *dechunker) expire(seq uint64) {
	d.mu.Lock()
	if seq != d.seq || !d.hasBuf {
		d.mu.Unlock()
		return
	}
	fragment := d.buf
	d.buf, d.hasBuf, d.timer = "", false, nil
	d.seq++
	d.mu.Unlock()

	if d.onStall != nil {
		d.onStall(fragment)
	}
}
