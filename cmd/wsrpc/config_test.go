// Copyright 2026 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"encoding/hex"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func newTestContext(t *testing.T, args ...string) *cli.Context {
	// Path flags keep their value between runs.
	t.Cleanup(func() {
		configFileFlag.Value = ""
		jwtSecretFlag.Value = ""
	})
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range providerFlags {
		require.NoError(t, f.Apply(set))
	}
	require.NoError(t, set.Parse(args))
	return cli.NewContext(nil, set, nil)
}

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	file := writeFile(t, "wsrpc.toml", `
Endpoint = "wss://node.example.org/ws"
Protocol = "jsonrpc"
Timeout = 2500
SyncInterval = 30000
SubscriptionSuffix = "_notify"

[Headers]
X-Client = "wsrpc"
`)
	cfg := defaultConfig()
	require.NoError(t, loadConfig(file, &cfg))
	assert.Equal(t, "wss://node.example.org/ws", cfg.Endpoint)
	assert.Equal(t, "jsonrpc", cfg.Protocol)
	assert.Equal(t, uint64(2500), cfg.Timeout)
	assert.Equal(t, uint64(30000), cfg.SyncInterval)
	assert.Equal(t, "_notify", cfg.SubscriptionSuffix)
	assert.Equal(t, map[string]string{"X-Client": "wsrpc"}, cfg.Headers)
	// Unset fields keep their defaults.
	assert.Equal(t, uint64(2*time.Minute/time.Millisecond), cfg.JWTLifetime)
}

func TestLoadConfigUnknownField(t *testing.T) {
	file := writeFile(t, "bad.toml", "Endpoint = \"ws://a\"\nRetries = 3\n")
	cfg := defaultConfig()
	err := loadConfig(file, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Retries")
	assert.Contains(t, err.Error(), file)
}

func TestMakeConfigFlagsOverrideFile(t *testing.T) {
	file := writeFile(t, "wsrpc.toml", "Endpoint = \"ws://from-file:8546\"\nTimeout = 100\n")
	ctx := newTestContext(t,
		"--config", file,
		"--timeout", "3s",
		"--header", "X-Client: cli",
		"--header", "X-Trace:1",
	)
	cfg, err := makeConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ws://from-file:8546", cfg.Endpoint)
	assert.Equal(t, uint64(3000), cfg.Timeout)
	assert.Equal(t, map[string]string{"X-Client": "cli", "X-Trace": "1"}, cfg.Headers)

	ctx = newTestContext(t, "--header", "no-colon")
	_, err = makeConfig(ctx)
	assert.ErrorContains(t, err, "invalid header")
}

func TestConfigOptions(t *testing.T) {
	secret := make([]byte, 32)
	secret[0] = 0xaa
	path := writeFile(t, "jwt.hex", hex.EncodeToString(secret))

	cfg := defaultConfig()
	cfg.JWTSecret = path
	cfg.Headers = map[string]string{"X-Client": "wsrpc"}
	opts, err := cfg.options()
	require.NoError(t, err)
	assert.Len(t, opts, 5)

	cfg.JWTSecret = writeFile(t, "short.hex", "0x1234")
	_, err = cfg.options()
	assert.Error(t, err)
}
