package crypto

import (
	"crypto/rsa"
	"errors"
)

// Crypto service errors.
var (
	ErrUnsupportedPolicy = errors.New("crypto: unsupported security policy")
	ErrUnsupportedKey    = errors.New("crypto: certificate does not carry an RSA key")
	ErrNoCertificate     = errors.New("crypto: no certificate")
	ErrNoKey             = errors.New("crypto: key not available")
	ErrInvalidLength     = errors.New("crypto: length is not a multiple of the block size")
	ErrInvalidNonce      = errors.New("crypto: nonce length does not match policy")
	ErrInvalidKeySet     = errors.New("crypto: key set does not match policy")
	ErrSignatureInvalid  = errors.New("crypto: signature verification failed")
	ErrPolicyNone        = errors.New("crypto: operation not available with security policy None")
)

// Service performs the cryptographic operations of one security policy.
//
// Asymmetric operations use RSA keys and protect OPN messages. Symmetric
// operations use the KeySet derived for a channel token and protect MSG and
// CLO messages. Lengths are in bytes.
type Service interface {
	// PolicyURI returns the security policy URI implemented by the service.
	PolicyURI() string

	// IsNone reports whether this is the None policy.
	IsNone() bool

	// AsymmetricBlockSizes returns the RSA ciphertext block size and the
	// largest plaintext block that fits it for key.
	AsymmetricBlockSizes(key *rsa.PublicKey) (cipherBlock, plainBlock uint32, err error)

	// AsymmetricSignatureLength returns the length of a signature made with
	// the private key matching key.
	AsymmetricSignatureLength(key *rsa.PublicKey) (uint32, error)

	// AsymmetricEncryptedLength returns the ciphertext length of plainLen bytes.
	AsymmetricEncryptedLength(key *rsa.PublicKey, plainLen uint32) (uint32, error)

	// AsymmetricDecryptedLength returns the largest plaintext cipherLen bytes
	// decrypt to.
	AsymmetricDecryptedLength(key *rsa.PublicKey, cipherLen uint32) (uint32, error)

	AsymmetricEncrypt(key *rsa.PublicKey, plaintext []byte) ([]byte, error)
	AsymmetricDecrypt(key *rsa.PrivateKey, ciphertext []byte) ([]byte, error)
	AsymmetricSign(key *rsa.PrivateKey, data []byte) ([]byte, error)
	AsymmetricVerify(key *rsa.PublicKey, data, signature []byte) error

	// SymmetricBlockSizes returns the cipher and plaintext block sizes.
	SymmetricBlockSizes() (cipherBlock, plainBlock uint32)

	// SymmetricSignatureLength returns the HMAC length.
	SymmetricSignatureLength() uint32

	SymmetricEncryptedLength(plainLen uint32) (uint32, error)
	SymmetricDecryptedLength(cipherLen uint32) (uint32, error)
	SymmetricEncrypt(keys *KeySet, plaintext []byte) ([]byte, error)
	SymmetricDecrypt(keys *KeySet, ciphertext []byte) ([]byte, error)
	SymmetricSign(keys *KeySet, data []byte) ([]byte, error)
	SymmetricVerify(keys *KeySet, data, signature []byte) error

	// SymmetricKeyLengths returns the lengths of the derived signing key,
	// encrypting key and initialization vector.
	SymmetricKeyLengths() (signing, encrypting, iv int)

	// NonceLength returns the length of the nonces exchanged in OPN.
	NonceLength() int

	// ThumbprintLength returns the certificate thumbprint length.
	ThumbprintLength() uint32

	// Thumbprint computes the thumbprint of a DER encoded certificate.
	Thumbprint(der []byte) []byte
}
