package crypto

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"hash"

	"github.com/awcullen/opcua/ua"
)

// PSHA computes the P_hash pseudo-random function of RFC 5246 Section 5
// (P_SHA1 or P_SHA256 depending on newHash) and returns length bytes.
func PSHA(newHash func() hash.Hash, secret, seed []byte, length int) []byte {
	mac := hmac.New(newHash, secret)
	out := make([]byte, 0, length+mac.Size())

	// A(0) = seed, A(i) = HMAC(secret, A(i-1))
	a := seed
	for len(out) < length {
		mac.Reset()
		mac.Write(a)
		a = mac.Sum(nil)

		mac.Reset()
		mac.Write(a)
		mac.Write(seed)
		out = mac.Sum(out)
	}
	return out[:length]
}

// prfHash returns the hash used by the key derivation of a policy.
// Basic128Rsa15 and Basic256 use P_SHA1, later policies P_SHA256.
func prfHash(policyURI string) func() hash.Hash {
	switch policyURI {
	case ua.SecurityPolicyURIBasic128Rsa15, ua.SecurityPolicyURIBasic256:
		return sha1.New
	default:
		return sha256.New
	}
}

// DeriveKeySets derives the symmetric keys of a channel token from the
// nonces exchanged in OPN (OPC 10000-6, 6.7.5).
//
// The client's sending keys are P(serverNonce, clientNonce) and the server's
// sending keys are P(clientNonce, serverNonce). isClient selects which of the
// two becomes Sender in the returned KeySets.
func DeriveKeySets(s Service, clientNonce, serverNonce []byte, isClient bool) (KeySets, error) {
	if s.IsNone() {
		return KeySets{}, nil
	}
	if len(clientNonce) != s.NonceLength() || len(serverNonce) != s.NonceLength() {
		return KeySets{}, ErrInvalidNonce
	}

	sigLen, encLen, ivLen := s.SymmetricKeyLengths()
	total := sigLen + encLen + ivLen
	newHash := prfHash(s.PolicyURI())

	split := func(material []byte) KeySet {
		return KeySet{
			SigningKey:           material[:sigLen],
			EncryptingKey:        material[sigLen : sigLen+encLen],
			InitializationVector: material[sigLen+encLen : total],
		}
	}

	client := split(PSHA(newHash, serverNonce, clientNonce, total))
	server := split(PSHA(newHash, clientNonce, serverNonce, total))

	if isClient {
		return KeySets{Sender: client, Receiver: server}, nil
	}
	return KeySets{Sender: server, Receiver: client}, nil
}
