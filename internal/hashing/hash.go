// Package hashing implements the deterministic hash primitives used for
// traffic allocation, segment membership and client payload name hashing.
//
// All bucketing decisions across SDKs in different languages must agree, so
// the algorithms here are contractual: the 64-bit prefix of SHA-256 is read
// as a BIG-ENDIAN unsigned integer, and all modulo arithmetic stays in
// unsigned 64-bit space. Do not "optimize" any of this with a faster
// non-cryptographic hash; it would silently reshuffle every rollout.
package hashing

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"unicode/utf16"

	"github.com/maypok86/otter"
)

// LookupCacheCapacity bounds the sha256 memoization cache.
// Evaluation re-hashes the same (salt, rule, unit id) strings on every
// request, so memoization pays for itself quickly, but the cache must never
// grow with user cardinality unbounded.
const LookupCacheCapacity = 100_000

// lookupCache memoizes Sha256ToUint64 results for the lifetime of the
// process. The otter builder enforces the hard capacity cap (S3-FIFO
// eviction), which keeps the invariant "never more than 100k entries"
// without a manual clear-on-overflow path.
var lookupCache otter.Cache[string, uint64]

func init() {
	cache, err := otter.MustBuilder[string, uint64](LookupCacheCapacity).Build()
	if err != nil {
		// Only reachable with an invalid capacity constant.
		panic("hashing: failed to build lookup cache: " + err.Error())
	}
	lookupCache = cache
}

// Sha256ToUint64 hashes the input and returns the first 8 bytes of the
// digest as a big-endian unsigned integer.
func Sha256ToUint64(value string) uint64 {
	if cached, ok := lookupCache.Get(value); ok {
		return cached
	}

	sum := sha256.Sum256([]byte(value))
	result := binary.BigEndian.Uint64(sum[:8])

	lookupCache.Set(value, result)
	return result
}

// Sha256ToBase64 returns the full SHA-256 digest encoded as standard base64.
// This is the default name hash in client bootstrap payloads.
func Sha256ToBase64(value string) string {
	sum := sha256.Sum256([]byte(value))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// SegmentHash returns the first 8 hex characters of the SHA-256 digest.
// Segment (ID list) files store member ids in this form, so membership
// checks hash the unit id the same way before the set lookup.
func SegmentHash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:8]
}

// Djb2 computes the djb2 variant used by client SDKs for name hashing and
// returns it as the decimal string of the unsigned 32-bit result.
//
// The reference implementation operates on UTF-16 code units with 32-bit
// wrapping arithmetic, so we mirror that exactly rather than ranging over
// bytes or runes.
func Djb2(value string) string {
	var hash int32
	for _, unit := range utf16.Encode([]rune(value)) {
		hash = (hash << 5) - hash + int32(unit)
	}
	return strconv.FormatUint(uint64(uint32(hash)), 10)
}

// Algorithm names accepted by HashName.
const (
	AlgorithmSha256 = "sha256"
	AlgorithmDjb2   = "djb2"
	AlgorithmNone   = "none"
)

// HashName applies the requested name-hashing algorithm. Unknown algorithm
// names fall back to sha256, the default the clients expect.
func HashName(name, algorithm string) string {
	switch algorithm {
	case AlgorithmNone:
		return name
	case AlgorithmDjb2:
		return Djb2(name)
	default:
		return Sha256ToBase64(name)
	}
}
