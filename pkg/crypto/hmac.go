package crypto

import (
	"crypto/hmac"
	"hash"
)

// MAC computes the HMAC of data with an already keyed hash.
// The hash is reset before use so a keyed instance can be reused.
func MAC(h hash.Hash, data []byte) []byte {
	h.Reset()
	h.Write(data)
	return h.Sum(nil)
}

// HMACEqual compares two MACs for equality in constant time.
func HMACEqual(mac1, mac2 []byte) bool {
	return hmac.Equal(mac1, mac2)
}
