// Package idgen mints the short ids that tag websocket connections in logs.
package idgen

import (
	"fmt"
	"strconv"
	"sync/atomic"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// ConnPrefix starts every connection id.
const ConnPrefix = "ws-"

// Alphabet is the character set of the random part. Lower case only, so ids
// read the same in any log viewer.
const Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Length is the number of random characters after the prefix.
const Length = 8

var fallback atomic.Uint64

// New returns prefix followed by n random characters from Alphabet.
func New(prefix string, n int) (string, error) {
	id, err := nanoid.Generate(Alphabet, n)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// ConnectionID returns a fresh connection id. If the random source fails it
// falls back to a process-local sequence number rather than an error.
func ConnectionID() string {
	id, err := New(ConnPrefix, Length)
	if err != nil {
		return ConnPrefix + "seq" + strconv.FormatUint(fallback.Add(1), 10)
	}
	return id
}
