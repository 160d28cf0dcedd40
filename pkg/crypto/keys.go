package crypto

import (
	"crypto/rsa"
	"crypto/x509"
)

// KeySet is the symmetric key material for one direction of a channel token.
type KeySet struct {
	SigningKey           []byte
	EncryptingKey        []byte
	InitializationVector []byte
}

// IsEmpty returns true if no key material has been installed.
func (k *KeySet) IsEmpty() bool {
	return len(k.SigningKey) == 0 && len(k.EncryptingKey) == 0 && len(k.InitializationVector) == 0
}

// KeySets holds the keys used to protect sent chunks and to check received ones.
type KeySets struct {
	Sender   KeySet
	Receiver KeySet
}

// PublicKeySource tells where the RSA public key of a PublicKey lives.
type PublicKeySource uint8

const (
	// PublicKeyOwned marks a key held directly by the PublicKey.
	PublicKeyOwned PublicKeySource = iota

	// PublicKeyBorrowedFromCertificate marks a key read from a certificate
	// that stays referenced for as long as the key is in use.
	PublicKeyBorrowedFromCertificate
)

// String returns a human-readable name for the key source.
func (s PublicKeySource) String() string {
	switch s {
	case PublicKeyOwned:
		return "Owned"
	case PublicKeyBorrowedFromCertificate:
		return "BorrowedFromCertificate"
	default:
		return "Unknown"
	}
}

// PublicKey is an RSA public key that is either owned or borrowed from the
// certificate it was extracted from.
type PublicKey struct {
	source PublicKeySource
	owned  *rsa.PublicKey
	cert   *x509.Certificate
}

// OwnedPublicKey wraps a standalone RSA public key.
func OwnedPublicKey(key *rsa.PublicKey) PublicKey {
	return PublicKey{source: PublicKeyOwned, owned: key}
}

// PublicKeyFromCertificate borrows the RSA public key of cert.
func PublicKeyFromCertificate(cert *x509.Certificate) (PublicKey, error) {
	if cert == nil {
		return PublicKey{}, ErrNoCertificate
	}
	if _, ok := cert.PublicKey.(*rsa.PublicKey); !ok {
		return PublicKey{}, ErrUnsupportedKey
	}
	return PublicKey{source: PublicKeyBorrowedFromCertificate, cert: cert}, nil
}

// Source reports whether the key is owned or borrowed.
func (k PublicKey) Source() PublicKeySource {
	return k.source
}

// Certificate returns the certificate a borrowed key belongs to, or nil.
func (k PublicKey) Certificate() *x509.Certificate {
	return k.cert
}

// RSA returns the underlying RSA key, or nil for the zero PublicKey.
func (k PublicKey) RSA() *rsa.PublicKey {
	switch k.source {
	case PublicKeyOwned:
		return k.owned
	case PublicKeyBorrowedFromCertificate:
		if k.cert == nil {
			return nil
		}
		pub, _ := k.cert.PublicKey.(*rsa.PublicKey)
		return pub
	default:
		return nil
	}
}
