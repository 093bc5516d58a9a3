package pipeline

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"
)

// Job IDs are ULIDs: 26-character Crockford Base32 strings with a
// millisecond timestamp prefix, so IDs sort by creation time.

var (
	ulidMu  sync.Mutex
	lastTS  uint64
	lastSeq uint16
)

const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// NewJobID returns a fresh ULID.
func NewJobID() string {
	ulidMu.Lock()
	defer ulidMu.Unlock()

	ts := uint64(time.Now().UnixMilli())
	if ts == lastTS {
		lastSeq++
	} else {
		lastTS = ts
		lastSeq = 0
	}

	var b [16]byte
	// Timestamp in the first 6 bytes (big-endian 48-bit).
	b[0] = byte(ts >> 40)
	b[1] = byte(ts >> 32)
	b[2] = byte(ts >> 24)
	b[3] = byte(ts >> 16)
	b[4] = byte(ts >> 8)
	b[5] = byte(ts)
	// Random in the remaining 10 bytes.
	rand.Read(b[6:])
	// Sequence in bytes 6-7 keeps IDs unique within the same millisecond.
	binary.BigEndian.PutUint16(b[6:8], lastSeq)

	return encodeBase32(b)
}

// encodeBase32 renders 128 bits as 26 Crockford Base32 characters. The
// first character carries only the top 3 bits, so it stays in 0-7.
func encodeBase32(b [16]byte) string {
	var out [26]byte
	bitPos := -2
	for i := range out {
		var v byte
		for j := range 5 {
			v <<= 1
			p := bitPos + j
			if p >= 0 && b[p/8]&(1<<(7-p%8)) != 0 {
				v |= 1
			}
		}
		out[i] = crockford[v]
		bitPos += 5
	}
	return string(out[:])
}
