// Package crypto provides the cryptographic services used by an OPC UA
// Secure Channel: a policy-parameterised Service for asymmetric and
// symmetric encryption, signatures and size queries, AES-CBC, the P_SHA
// pseudo-random function used to derive symmetric keys, and certificate
// thumbprints.
package crypto

import (
	"crypto/sha1"
)

// ThumbprintSize is the length of a certificate thumbprint (SHA-1).
const ThumbprintSize = sha1.Size

// Thumbprint computes the SHA-1 thumbprint of a DER encoded certificate.
// OPC 10000-6 identifies receiver certificates by this digest.
func Thumbprint(der []byte) [ThumbprintSize]byte {
	return sha1.Sum(der)
}

// ThumbprintSlice returns the thumbprint as a slice.
func ThumbprintSlice(der []byte) []byte {
	h := sha1.Sum(der)
	return h[:]
}
