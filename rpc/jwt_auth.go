// Copyright 2022 The go-ethereum Authors
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
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v4"
)

// NewJWTTokenSource creates a token source that signs HS256 tokens with the given
// secret. The secret MUST be 32 bytes (256 bits) as defined by the Engine-API
// authentication spec. Each token carries an iat claim and, if lifetime is positive,
// an exp claim lifetime after it, so the provider refreshes it in time.
//
// See https://github.com/ethereum/execution-apis/blob/main/src/engine/authentication.md
// for more details about this authentication scheme.
func NewJWTTokenSource(jwtsecret [32]byte, lifetime time.Duration) TokenSource {
	return func(ctx context.Context) (string, error) {
		now := time.Now()
		claims := jwt.MapClaims{
			"iat": &jwt.NumericDate{Time: now},
		}
		if lifetime > 0 {
			claims["exp"] = &jwt.NumericDate{Time: now.Add(lifetime)}
		}
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtsecret[:])
		if err != nil {
			return "", fmt.Errorf("failed to create JWT token: %w", err)
		}
		return s, nil
	}
}

// ReadJWTSecret loads a hex encoded 32 byte secret from a file.
func ReadJWTSecret(path string) ([32]byte, error) {
	var secret [32]byte
	data, err := os.ReadFile(path)
	if err != nil {
		return secret, err
	}
	raw := common.FromHex(strings.TrimSpace(string(data)))
	if len(raw) != len(secret) {
		return secret, errors.New("invalid JWT secret: expected 32 hex encoded bytes")
	}
	copy(secret[:], raw)
	return secret, nil
}
