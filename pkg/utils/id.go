package utils

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"sync/atomic"
	"time"
)

var idCounter uint32

// GenerateID generates a 12-byte ObjectID-like string (24 hex characters).
// Used for conversation and turn identifiers in the in-memory store.
func GenerateID() string {
	var b [12]byte
	binary.BigEndian.PutUint32(b[0:4], uint32(time.Now().Unix()))
	_, _ = rand.Read(b[4:9])
	c := atomic.AddUint32(&idCounter, 1) % 0xFFFFFF
	b[9] = byte(c >> 16)
	b[10] = byte(c >> 8)
	b[11] = byte(c)
	return hex.EncodeToString(b[:])
}

// GenerateTimestampPrefix returns an 8-char hex timestamp followed by an underscore.
// Upload object names start with this so they sort by creation time.
// Example: "65cfda3f_"
func GenerateTimestampPrefix() string {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(time.Now().Unix()))
	return hex.EncodeToString(b) + "_"
}
