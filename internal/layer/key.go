package layer

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"strconv"

	"github.com/opencontainers/go-digest"

	"github.com/imgforge/imgforge/internal/version"
)

type CacheKey string

// Key deterministically computes a cache key for a step applied on top of a
// parent layer. The parent digest and each identity line are prefixed with
// their length (8-byte big-endian) before hashing to avoid collisions
// between sequences like ["ab", "c"] and ["a", "bc"]. The layer schema
// version participates so format changes invalidate every cached layer.
func Key(parent digest.Digest, identity []string) CacheKey {
	h := sha256.New()
	var lenBuf [8]byte

	write := func(s string) {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(s)))
		h.Write(lenBuf[:])
		io.WriteString(h, s)
	}

	write(version.LayerSchemaVersionLabel + "=" + strconv.Itoa(version.LayerSchemaVersion))
	write(string(parent))
	for _, line := range identity {
		write(line)
	}

	return CacheKey(hex.EncodeToString(h.Sum(nil)))
}
