package mcpclient

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator produces unique, monotonic request ids of the form
// "<prefix><counter>", per spec §4.2. The counter increments atomically from
// 1 and is safe for concurrent callers. Uniqueness is only required within a
// single connection's lifetime; a fresh IDGenerator per Connection already
// gives that, and the optional prefix helps correlate ids across connections
// in logs.
type IDGenerator struct {
	prefix  string
	counter atomic.Uint64
}

// NewIDGenerator builds an IDGenerator with the given log-correlation
// prefix. An empty prefix is valid and is the default.
func NewIDGenerator(prefix string) *IDGenerator {
	return &IDGenerator{prefix: prefix}
}

// Next returns the next id in sequence.
func (g *IDGenerator) Next() RequestID {
	n := g.counter.Add(1)
	return NewStringID(fmt.Sprintf("%s%d", g.prefix, n))
}

// NextUUID returns a globally unique id instead of the monotonic counter.
// Used for the handshake's initialize request, matching the teacher's use of
// a fresh uuid per connect attempt so a late reply from an abandoned attempt
// can never collide with a subsequent one.
func (g *IDGenerator) NextUUID() RequestID {
	return NewStringID(uuid.New().String())
}
