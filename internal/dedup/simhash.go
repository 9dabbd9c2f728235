package dedup

import (
	"hash/fnv"
	"math/bits"
	"strings"
)

// Simhash computes a 64-bit locality-sensitive hash over whitespace tokens:
// each token votes its FNV-1a bits up or down, and the sign of each column
// becomes the output bit. Similar documents land within a small Hamming
// distance of each other.
func Simhash(text string) uint64 {
	var votes [64]int
	for _, token := range strings.Fields(text) {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()
		for i := 0; i < 64; i++ {
			if sum&(1<<uint(i)) != 0 {
				votes[i]++
			} else {
				votes[i]--
			}
		}
	}
	var out uint64
	for i := 0; i < 64; i++ {
		if votes[i] > 0 {
			out |= 1 << uint(i)
		}
	}
	return out
}

// HammingDistance counts differing bits between two hashes.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
