// Package id provides unique identifier generation for injection events.
//
// Injection events are time-ordered by nature, so the canonical event ID is
// a ULID: 26 characters, lexicographically sortable by creation time, and
// collision-free. Short hex IDs are available for user-facing contexts
// where brevity matters. All randomness comes from crypto/rand.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Short generates a short random hex ID (16 characters).
func Short() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// ulidEncoding uses Crockford's Base32 (excludes I, L, O, U to avoid ambiguity).
const ulidEncoding = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var (
	ulidMu      sync.Mutex
	ulidLastMs  int64
	ulidCounter uint16
)

// Event generates a ULID for an injection event.
// Format: TTTTTTTTTT RRRRRRRRRRRRRRRR (10 chars timestamp + 16 chars randomness),
// 26 characters total, naturally sorted by creation time.
func Event() string {
	ulidMu.Lock()
	defer ulidMu.Unlock()

	now := time.Now().UnixMilli()

	if now == ulidLastMs {
		ulidCounter++
		if ulidCounter == 0 {
			// Counter overflow within one millisecond; wait it out.
			for now == ulidLastMs {
				time.Sleep(time.Millisecond)
				now = time.Now().UnixMilli()
			}
		}
	} else {
		ulidLastMs = now
		ulidCounter = 0
	}

	return encodeULID(now, ulidCounter)
}

func encodeULID(ms int64, counter uint16) string {
	ulid := make([]byte, 26)

	// Timestamp: first 10 characters, 48 bits.
	for i := 9; i >= 0; i-- {
		ulid[i] = ulidEncoding[ms&0x1F]
		ms >>= 5
	}

	// Randomness: last 16 characters, 80 bits, with the per-millisecond
	// counter mixed into the leading bytes.
	randomBytes := make([]byte, 10)
	_, _ = rand.Read(randomBytes)
	randomBytes[0] ^= byte(counter >> 8)
	randomBytes[1] ^= byte(counter)

	var acc uint32
	bits := 0
	pos := 10
	for _, b := range randomBytes {
		acc = acc<<8 | uint32(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			ulid[pos] = ulidEncoding[(acc>>uint(bits))&0x1F]
			pos++
		}
	}

	return string(ulid)
}

// IsValidEvent reports whether s is a well-formed event ULID.
func IsValidEvent(s string) bool {
	if len(s) != 26 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if decodeULIDChar(s[i]) < 0 {
			return false
		}
	}
	return true
}

// EventTime extracts the creation timestamp from an event ID.
func EventTime(eventID string) (time.Time, error) {
	if !IsValidEvent(eventID) {
		return time.Time{}, fmt.Errorf("invalid event ID: %s", eventID)
	}

	var ms int64
	for i := 0; i < 10; i++ {
		ms = (ms << 5) | int64(decodeULIDChar(eventID[i]))
	}
	return time.UnixMilli(ms), nil
}

func decodeULIDChar(c byte) int {
	for i := 0; i < len(ulidEncoding); i++ {
		if ulidEncoding[i] == c {
			return i
		}
	}
	return -1
}
