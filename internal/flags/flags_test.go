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

package flags

import (
	"flag"
	"os"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestPathExpansion(t *testing.T) {
	home := HomeDir()
	var tests map[string]string

	if runtime.GOOS == "windows" {
		tests = map[string]string{
			`C:\home\someuser\tmp`: `C:\home\someuser\tmp`,
			`~\tmp`:                home + `\tmp`,
			`$DDDXXX\a\b`:          `C:\tmp\a\b`,
		}
	} else {
		tests = map[string]string{
			"/home/someuser/tmp": "/home/someuser/tmp",
			"~/tmp":              home + "/tmp",
			"~thisOtherUser/b/":  "~thisOtherUser/b",
			"$DDDXXX/a/b":        "/tmp/a/b",
			"/a/b/":              "/a/b",
			"":                   "",
		}
	}
	os.Setenv(`DDDXXX`, `/tmp`)
	if runtime.GOOS == "windows" {
		os.Setenv(`DDDXXX`, `C:\tmp`)
	}
	for test, expected := range tests {
		assert.Equal(t, expected, expandPath(test), "input %q", test)
	}
}

func TestPathFlag(t *testing.T) {
	t.Setenv("WSRPC_TEST_SECRET", "/tmp/../etc/jwt.hex")
	f := &PathFlag{Name: "jwtsecret", EnvVars: []string{"WSRPC_TEST_SECRET"}}

	set := flag.NewFlagSet("test", flag.ContinueOnError)
	require.NoError(t, f.Apply(set))
	assert.True(t, f.IsSet())
	assert.Equal(t, "/etc/jwt.hex", f.GetValue())

	ctx := cli.NewContext(nil, set, nil)
	require.NoError(t, set.Parse([]string{"--jwtsecret", "/var/./jwt.hex"}))
	assert.Equal(t, "/var/jwt.hex", Path(ctx, "jwtsecret"))
}
