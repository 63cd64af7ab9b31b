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

package debug

import (
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestNewHandler(t *testing.T) {
	for _, format := range []string{"", "terminal", "json", "logfmt"} {
		var buf bytes.Buffer
		h, err := newHandler(format, &buf, false)
		require.NoError(t, err, "format %q", format)
		log.NewLogger(h).Info("connected", "endpoint", "ws://127.0.0.1:8546")
		assert.Contains(t, buf.String(), "ws://127.0.0.1:8546", "format %q", format)
	}
	var buf bytes.Buffer
	h, err := newHandler("json", &buf, false)
	require.NoError(t, err)
	log.NewLogger(h).Info("connected")
	assert.Contains(t, buf.String(), `"msg":"connected"`)

	_, err = newHandler("xml", &buf, false)
	assert.ErrorContains(t, err, "unknown log format")
}

func newTestContext(t *testing.T, args ...string) *cli.Context {
	t.Cleanup(func() { logFileFlag.Value = "" })
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range Flags {
		require.NoError(t, f.Apply(set))
	}
	require.NoError(t, set.Parse(args))
	return cli.NewContext(nil, set, nil)
}

func TestSetupLogFile(t *testing.T) {
	defer log.SetDefault(log.Root())
	file := filepath.Join(t.TempDir(), "logs", "wsrpc.log")

	ctx := newTestContext(t, "--log.file", file, "--log.format", "logfmt", "--verbosity", "4")
	require.NoError(t, Setup(ctx))
	log.Debug("written", "target", "file")
	Exit()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "target=file")
	assert.True(t, glogger.Enabled(context.Background(), log.LevelDebug))
	assert.False(t, glogger.Enabled(context.Background(), log.LevelTrace))
}

func TestSetupRejectsUnknownFormat(t *testing.T) {
	ctx := newTestContext(t, "--log.format", "xml")
	assert.ErrorContains(t, Setup(ctx), "unknown log format")
}
