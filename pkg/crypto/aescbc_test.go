package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

// NIST SP 800-38A Appendix F.2 CBC test vectors.
var cbcTestVectors = []struct {
	name       string
	key        string
	iv         string
	plaintext  string
	ciphertext string
}{
	{
		name:       "F.2.1_CBC-AES128",
		key:        "2b7e151628aed2a6abf7158809cf4f3c",
		iv:         "000102030405060708090a0b0c0d0e0f",
		plaintext:  "6bc1bee22e409f96e93d7e117393172aae2d8a571e03ac9c9eb76fac45af8e51",
		ciphertext: "7649abac8119b246cee98e9b12e9197d5086cb9b507219ee95db113a917678b2",
	},
	{
		name:       "F.2.5_CBC-AES256",
		key:        "603deb1015ca71be2b73aef0857d77811f352c073b6108d72d9810a30914dff4",
		iv:         "000102030405060708090a0b0c0d0e0f",
		plaintext:  "6bc1bee22e409f96e93d7e117393172a",
		ciphertext: "f58c4c04d6e5f1ba779eabfb5f7bfbd6",
	},
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("hex.DecodeString(%q) error = %v", s, err)
	}
	return b
}

func TestAESCBCVectors(t *testing.T) {
	for _, tv := range cbcTestVectors {
		t.Run(tv.name, func(t *testing.T) {
			key := mustHex(t, tv.key)
			iv := mustHex(t, tv.iv)
			plaintext := mustHex(t, tv.plaintext)
			ciphertext := mustHex(t, tv.ciphertext)

			got, err := AESCBCEncrypt(key, iv, plaintext)
			if err != nil {
				t.Fatalf("AESCBCEncrypt() error = %v", err)
			}
			if !bytes.Equal(got, ciphertext) {
				t.Errorf("AESCBCEncrypt() = %x, want %x", got, ciphertext)
			}

			back, err := AESCBCDecrypt(key, iv, ciphertext)
			if err != nil {
				t.Fatalf("AESCBCDecrypt() error = %v", err)
			}
			if !bytes.Equal(back, plaintext) {
				t.Errorf("AESCBCDecrypt() = %x, want %x", back, plaintext)
			}
		})
	}
}

func TestAESCBCErrors(t *testing.T) {
	key := make([]byte, 16)
	iv := make([]byte, 16)

	if _, err := NewAESCBC(make([]byte, 24)); err != ErrAESCBCInvalidKeySize {
		t.Errorf("NewAESCBC(24 bytes) error = %v, want %v", err, ErrAESCBCInvalidKeySize)
	}
	if _, err := AESCBCEncrypt(key, iv[:8], make([]byte, 16)); err != ErrAESCBCInvalidIVSize {
		t.Errorf("AESCBCEncrypt(short IV) error = %v, want %v", err, ErrAESCBCInvalidIVSize)
	}
	if _, err := AESCBCEncrypt(key, iv, make([]byte, 15)); err != ErrAESCBCNotAligned {
		t.Errorf("AESCBCEncrypt(15 bytes) error = %v, want %v", err, ErrAESCBCNotAligned)
	}
	if _, err := AESCBCDecrypt(key, iv, make([]byte, 17)); err != ErrAESCBCNotAligned {
		t.Errorf("AESCBCDecrypt(17 bytes) error = %v, want %v", err, ErrAESCBCNotAligned)
	}
}

func TestThumbprint(t *testing.T) {
	// SHA-1("abc") from FIPS 180-2 Appendix A.1.
	want := mustHex(t, "a9993e364706816aba3e25717850c26c9cd0d89d")
	got := Thumbprint([]byte("abc"))
	if !bytes.Equal(got[:], want) {
		t.Errorf("Thumbprint() = %x, want %x", got, want)
	}
	if len(ThumbprintSlice([]byte("abc"))) != ThumbprintSize {
		t.Errorf("ThumbprintSlice() length != %d", ThumbprintSize)
	}
}
