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
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dechunkValues = []string{
	`{"jsonrpc":"2.0","id":1,"result":"0x1"}`,
	`{"jsonrpc":"2.0","id":"42","result":{"number":"0x10","hash":"0xab"}}`,
	`[{"jsonrpc":"2.0","id":2,"result":true},{"jsonrpc":"2.0","id":3,"error":{"code":-32000,"message":"boom"}}]`,
	`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0x9","result":{"logs":[{"a":1},{"b":2}]}}}`,
	`{}`,
}

func newTestDechunker(clock mclock.Clock) (*dechunker, *[]string) {
	var stalls []string
	d := newDechunker(clock, dechunkTimeout, func(fragment string) {
		stalls = append(stalls, fragment)
	})
	return d, &stalls
}

func requireValues(t *testing.T, want []string, got []json.RawMessage) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.JSONEq(t, want[i], string(got[i]), "value %d", i)
	}
}

func TestSplitValuesKeepsInput(t *testing.T) {
	inputs := []string{
		`{"a":1}{"b":2}`,
		`[{"a":1}][{"b":2}]`,
		`{"a":1}[{"b":2}]`,
		`[{"a":1}]{"b":2}`,
		"{\"a\":1}\n{\"b\":2}\r[{\"c\":3}]",
		`{"a":{"b":{}}}{"c":[]}`,
		`no json at all`,
	}
	for _, in := range inputs {
		parts := splitValues(in)
		assert.Equal(t, in, strings.Join(parts, ""), "input %q", in)
	}
	assert.Len(t, splitValues(`{"a":1}{"b":2}[{"c":3}]`), 3)
}

func TestDechunkSingleValue(t *testing.T) {
	var clock mclock.Simulated
	for _, v := range dechunkValues {
		d, _ := newTestDechunker(&clock)
		requireValues(t, []string{v}, d.ingest(v))
		_, ok := d.pending()
		assert.False(t, ok)
	}
}

func TestDechunkConcatenated(t *testing.T) {
	var clock mclock.Simulated
	for i, v1 := range dechunkValues {
		for j, v2 := range dechunkValues {
			d, _ := newTestDechunker(&clock)
			got := d.ingest(v1 + v2)
			requireValues(t, []string{v1, v2}, got)
			if t.Failed() {
				t.Fatalf("pair %d/%d", i, j)
			}
		}
	}
}

func TestDechunkLineSeparated(t *testing.T) {
	var clock mclock.Simulated
	d, _ := newTestDechunker(&clock)
	in := dechunkValues[0] + "\n" + dechunkValues[2] + "\r" + dechunkValues[1]
	requireValues(t, []string{dechunkValues[0], dechunkValues[2], dechunkValues[1]}, d.ingest(in))
}

func TestDechunkFragments(t *testing.T) {
	var clock mclock.Simulated
	for _, v := range dechunkValues {
		for cut := 1; cut < len(v); cut++ {
			d, stalls := newTestDechunker(&clock)
			f1, f2 := v[:cut], v[cut:]
			require.Empty(t, d.ingest(f1), "fragment %q", f1)
			requireValues(t, []string{v}, d.ingest(f2))
			clock.Run(dechunkTimeout)
			require.Empty(t, *stalls)
		}
	}
}

func TestDechunkFragmentThenNext(t *testing.T) {
	var clock mclock.Simulated
	d, _ := newTestDechunker(&clock)
	v1, v2 := dechunkValues[0], dechunkValues[1]

	require.Empty(t, d.ingest(v1[:10]))
	requireValues(t, []string{v1, v2}, d.ingest(v1[10:]+v2))
}

func TestDechunkSkipsNullAndBlank(t *testing.T) {
	var clock mclock.Simulated
	d, _ := newTestDechunker(&clock)
	assert.Empty(t, d.ingest("null"))
	assert.Empty(t, d.ingest("  \n"))
	assert.Empty(t, d.ingest(""))
}

func TestDechunkBlankFrameInsideFragment(t *testing.T) {
	var clock mclock.Simulated
	d, _ := newTestDechunker(&clock)

	require.Empty(t, d.ingest(`{"jsonrpc":"2.0","id":1,"result":"a`))
	require.Empty(t, d.ingest(" "))
	buf, ok := d.pending()
	require.True(t, ok)
	assert.Equal(t, `{"jsonrpc":"2.0","id":1,"result":"a `, buf)

	requireValues(t, []string{`{"jsonrpc":"2.0","id":1,"result":"a b"}`}, d.ingest(`b"}`))
}

func TestDechunkStall(t *testing.T) {
	var clock mclock.Simulated
	d, stalls := newTestDechunker(&clock)

	fragment := `{"jsonrpc":"2.0","id":1,`
	require.Empty(t, d.ingest(fragment))
	buf, ok := d.pending()
	require.True(t, ok)
	require.Equal(t, fragment, buf)

	clock.Run(dechunkTimeout - time.Millisecond)
	require.Empty(t, *stalls)
	clock.Run(time.Millisecond)
	require.Equal(t, []string{fragment}, *stalls)

	// The buffer is gone and the stall is reported once.
	_, ok = d.pending()
	require.False(t, ok)
	clock.Run(2 * dechunkTimeout)
	require.Len(t, *stalls, 1)

	// Later input is parsed from scratch.
	requireValues(t, []string{dechunkValues[0]}, d.ingest(dechunkValues[0]))
}

func TestDechunkStallTimerRearmed(t *testing.T) {
	var clock mclock.Simulated
	d, stalls := newTestDechunker(&clock)

	require.Empty(t, d.ingest(`{"a":`))
	clock.Run(10 * time.Second)
	require.Empty(t, d.ingest(`1`))
	clock.Run(10 * time.Second)
	require.Empty(t, *stalls, "timer should restart with each fragment")
	clock.Run(5 * time.Second)
	require.Equal(t, []string{`{"a":1`}, *stalls)
}

func TestDechunkReset(t *testing.T) {
	var clock mclock.Simulated
	d, stalls := newTestDechunker(&clock)

	require.Empty(t, d.ingest(`{"a":`))
	d.reset()
	clock.Run(dechunkTimeout)
	require.Empty(t, *stalls)
	require.Equal(t, 0, clock.ActiveTimers())
}
