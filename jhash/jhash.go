// Package jhash implements the jhash64 primitive used to key tree nodes
// and progress records by path. It is treated as a primitive by the
// propagator: callers never need anything beyond Sum64.
package jhash

// Sum64 computes a 64-bit hash of b using Jenkins' one-at-a-time mixing,
// extended to 64 bits. It is not cryptographic; it only needs to be cheap
// and have a low collision rate over filesystem paths.
func Sum64(b []byte) uint64 {
	var h uint64
	for _, c := range b {
		h += uint64(c)
		h += h << 10
		h ^= h >> 6
	}
	h += h << 3
	h ^= h >> 11
	h += h << 15
	return h
}

// Sum64String is a convenience wrapper for Sum64([]byte(s)) that avoids an
// allocation on most escape-analysis-friendly call sites.
func Sum64String(s string) uint64 {
	var h uint64
	for i := 0; i < len(s); i++ {
		c := s[i]
		h += uint64(c)
		h += h << 10
		h ^= h >> 6
	}
	h += h << 3
	h ^= h >> 11
	h += h << 15
	return h
}
