// AES-CBC implementation for symmetric Secure Channel encryption.
// OPC UA security policies encrypt MSG and CLO chunks with AES in CBC mode
// using the initialization vector derived for the current token; plaintext
// is padded by the sender so no block padding scheme is applied here.

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

// AES-CBC constants.
const (
	// AESBlockSize is the AES block and IV size in bytes.
	AESBlockSize = aes.BlockSize
)

// Errors for AES-CBC operations.
var (
	ErrAESCBCInvalidKeySize = errors.New("aescbc: invalid key size, must be 16 or 32 bytes")
	ErrAESCBCInvalidIVSize  = errors.New("aescbc: invalid IV size, must be 16 bytes")
	ErrAESCBCNotAligned     = errors.New("aescbc: data is not a multiple of the block size")
)

// AESCBC is an AES-128 or AES-256 cipher used in CBC mode.
type AESCBC struct {
	block cipher.Block
}

// NewAESCBC creates a CBC cipher for a 16 or 32 byte key.
func NewAESCBC(key []byte) (*AESCBC, error) {
	if len(key) != 16 && len(key) != 32 {
		return nil, ErrAESCBCInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	return &AESCBC{block: block}, nil
}

// Encrypt encrypts plaintext, which must be block aligned.
// Returns a new slice of the same length.
func (c *AESCBC) Encrypt(iv, plaintext []byte) ([]byte, error) {
	if len(iv) != AESBlockSize {
		return nil, ErrAESCBCInvalidIVSize
	}
	if len(plaintext)%AESBlockSize != 0 {
		return nil, ErrAESCBCNotAligned
	}

	out := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out, plaintext)
	return out, nil
}

// Decrypt decrypts block aligned ciphertext into a new slice.
func (c *AESCBC) Decrypt(iv, ciphertext []byte) ([]byte, error) {
	if len(iv) != AESBlockSize {
		return nil, ErrAESCBCInvalidIVSize
	}
	if len(ciphertext)%AESBlockSize != 0 {
		return nil, ErrAESCBCNotAligned
	}

	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(out, ciphertext)
	return out, nil
}

// AESCBCEncrypt is a convenience function for one-shot AES-CBC encryption.
func AESCBCEncrypt(key, iv, plaintext []byte) ([]byte, error) {
	c, err := NewAESCBC(key)
	if err != nil {
		return nil, err
	}
	return c.Encrypt(iv, plaintext)
}

// AESCBCDecrypt is a convenience function for one-shot AES-CBC decryption.
func AESCBCDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	c, err := NewAESCBC(key)
	if err != nil {
		return nil, err
	}
	return c.Decrypt(iv, ciphertext)
}
