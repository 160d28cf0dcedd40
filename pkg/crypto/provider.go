package crypto

import (
	"crypto/rsa"

	"github.com/awcullen/opcua/ua"
)

// Provider implements Service on top of the security policies of
// github.com/awcullen/opcua/ua. The policy supplies RSA padding schemes,
// signature algorithms, HMAC construction and key sizes; Provider adds
// block-wise RSA, AES-CBC and the length arithmetic.
type Provider struct {
	policy ua.SecurityPolicy
}

var _ Service = (*Provider)(nil)

// NewProvider creates the service for a security policy URI.
func NewProvider(policyURI string) (*Provider, error) {
	var policy ua.SecurityPolicy
	switch policyURI {
	case ua.SecurityPolicyURINone:
		policy = &ua.SecurityPolicyNone{}
	case ua.SecurityPolicyURIBasic128Rsa15:
		policy = &ua.SecurityPolicyBasic128Rsa15{}
	case ua.SecurityPolicyURIBasic256:
		policy = &ua.SecurityPolicyBasic256{}
	case ua.SecurityPolicyURIBasic256Sha256:
		policy = &ua.SecurityPolicyBasic256Sha256{}
	case ua.SecurityPolicyURIAes128Sha256RsaOaep:
		policy = &ua.SecurityPolicyAes128Sha256RsaOaep{}
	case ua.SecurityPolicyURIAes256Sha256RsaPss:
		policy = &ua.SecurityPolicyAes256Sha256RsaPss{}
	default:
		return nil, ErrUnsupportedPolicy
	}
	return &Provider{policy: policy}, nil
}

// SupportedPolicies lists the security policy URIs NewProvider accepts.
func SupportedPolicies() []string {
	return []string{
		ua.SecurityPolicyURINone,
		ua.SecurityPolicyURIBasic128Rsa15,
		ua.SecurityPolicyURIBasic256,
		ua.SecurityPolicyURIBasic256Sha256,
		ua.SecurityPolicyURIAes128Sha256RsaOaep,
		ua.SecurityPolicyURIAes256Sha256RsaPss,
	}
}

// PolicyURI returns the security policy URI.
func (p *Provider) PolicyURI() string {
	return p.policy.PolicyURI()
}

// IsNone reports whether this is the None policy.
func (p *Provider) IsNone() bool {
	return p.policy.PolicyURI() == ua.SecurityPolicyURINone
}

// AsymmetricBlockSizes returns the RSA block sizes for key.
func (p *Provider) AsymmetricBlockSizes(key *rsa.PublicKey) (uint32, uint32, error) {
	if p.IsNone() {
		return 0, 0, ErrPolicyNone
	}
	if key == nil {
		return 0, 0, ErrNoKey
	}
	cipherBlock := key.Size()
	plainBlock := cipherBlock - p.policy.RSAPaddingSize()
	if plainBlock <= 0 {
		return 0, 0, ErrUnsupportedKey
	}
	return uint32(cipherBlock), uint32(plainBlock), nil
}

// AsymmetricSignatureLength returns the RSA signature length for key.
func (p *Provider) AsymmetricSignatureLength(key *rsa.PublicKey) (uint32, error) {
	if p.IsNone() {
		return 0, nil
	}
	if key == nil {
		return 0, ErrNoKey
	}
	return uint32(key.Size()), nil
}

// AsymmetricEncryptedLength rounds plainLen up to whole RSA blocks.
func (p *Provider) AsymmetricEncryptedLength(key *rsa.PublicKey, plainLen uint32) (uint32, error) {
	cipherBlock, plainBlock, err := p.AsymmetricBlockSizes(key)
	if err != nil {
		return 0, err
	}
	blocks := plainLen / plainBlock
	if plainLen%plainBlock != 0 {
		blocks++
	}
	return blocks * cipherBlock, nil
}

// AsymmetricDecryptedLength returns the largest plaintext of cipherLen bytes.
func (p *Provider) AsymmetricDecryptedLength(key *rsa.PublicKey, cipherLen uint32) (uint32, error) {
	cipherBlock, plainBlock, err := p.AsymmetricBlockSizes(key)
	if err != nil {
		return 0, err
	}
	if cipherLen%cipherBlock != 0 {
		return 0, ErrInvalidLength
	}
	return (cipherLen / cipherBlock) * plainBlock, nil
}

// AsymmetricEncrypt encrypts plaintext block by block with key.
func (p *Provider) AsymmetricEncrypt(key *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	cipherLen, err := p.AsymmetricEncryptedLength(key, uint32(len(plaintext)))
	if err != nil {
		return nil, err
	}
	_, plainBlock, _ := p.AsymmetricBlockSizes(key)

	out := make([]byte, 0, cipherLen)
	for off := 0; off < len(plaintext); off += int(plainBlock) {
		end := off + int(plainBlock)
		if end > len(plaintext) {
			end = len(plaintext)
		}
		block, err := p.policy.RSAEncrypt(key, plaintext[off:end])
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
	}
	return out, nil
}

// AsymmetricDecrypt decrypts ciphertext block by block with key.
func (p *Provider) AsymmetricDecrypt(key *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	if key == nil {
		return nil, ErrNoKey
	}
	maxLen, err := p.AsymmetricDecryptedLength(&key.PublicKey, uint32(len(ciphertext)))
	if err != nil {
		return nil, err
	}
	cipherBlock := key.Size()

	out := make([]byte, 0, maxLen)
	for off := 0; off < len(ciphertext); off += cipherBlock {
		block, err := p.policy.RSADecrypt(key, ciphertext[off:off+cipherBlock])
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
	}
	return out, nil
}

// AsymmetricSign signs data with key.
func (p *Provider) AsymmetricSign(key *rsa.PrivateKey, data []byte) ([]byte, error) {
	if p.IsNone() {
		return nil, ErrPolicyNone
	}
	if key == nil {
		return nil, ErrNoKey
	}
	return p.policy.RSASign(key, data)
}

// AsymmetricVerify checks an RSA signature over data.
func (p *Provider) AsymmetricVerify(key *rsa.PublicKey, data, signature []byte) error {
	if p.IsNone() {
		return ErrPolicyNone
	}
	if key == nil {
		return ErrNoKey
	}
	if err := p.policy.RSAVerify(key, data, signature); err != nil {
		return ErrSignatureInvalid
	}
	return nil
}

// SymmetricBlockSizes returns the AES block size, or 1 for None.
func (p *Provider) SymmetricBlockSizes() (uint32, uint32) {
	block := uint32(p.policy.SymEncryptionBlockSize())
	return block, block
}

// SymmetricSignatureLength returns the HMAC length.
func (p *Provider) SymmetricSignatureLength() uint32 {
	return uint32(p.policy.SymSignatureSize())
}

// SymmetricEncryptedLength returns plainLen, which must be block aligned.
func (p *Provider) SymmetricEncryptedLength(plainLen uint32) (uint32, error) {
	_, block := p.SymmetricBlockSizes()
	if plainLen%block != 0 {
		return 0, ErrInvalidLength
	}
	return plainLen, nil
}

// SymmetricDecryptedLength returns cipherLen, which must be block aligned.
func (p *Provider) SymmetricDecryptedLength(cipherLen uint32) (uint32, error) {
	block, _ := p.SymmetricBlockSizes()
	if cipherLen%block != 0 {
		return 0, ErrInvalidLength
	}
	return cipherLen, nil
}

// SymmetricEncrypt encrypts plaintext with the encrypting key and IV of keys.
func (p *Provider) SymmetricEncrypt(keys *KeySet, plaintext []byte) ([]byte, error) {
	if err := p.checkKeySet(keys); err != nil {
		return nil, err
	}
	return AESCBCEncrypt(keys.EncryptingKey, keys.InitializationVector, plaintext)
}

// SymmetricDecrypt decrypts ciphertext with the encrypting key and IV of keys.
func (p *Provider) SymmetricDecrypt(keys *KeySet, ciphertext []byte) ([]byte, error) {
	if err := p.checkKeySet(keys); err != nil {
		return nil, err
	}
	return AESCBCDecrypt(keys.EncryptingKey, keys.InitializationVector, ciphertext)
}

// SymmetricSign computes the HMAC of data with the signing key of keys.
func (p *Provider) SymmetricSign(keys *KeySet, data []byte) ([]byte, error) {
	if err := p.checkKeySet(keys); err != nil {
		return nil, err
	}
	return MAC(p.policy.SymHMACFactory(keys.SigningKey), data), nil
}

// SymmetricVerify checks the HMAC of data.
func (p *Provider) SymmetricVerify(keys *KeySet, data, signature []byte) error {
	expected, err := p.SymmetricSign(keys, data)
	if err != nil {
		return err
	}
	if !HMACEqual(expected, signature) {
		return ErrSignatureInvalid
	}
	return nil
}

// SymmetricKeyLengths returns the derived key lengths of the policy.
func (p *Provider) SymmetricKeyLengths() (int, int, int) {
	if p.IsNone() {
		return 0, 0, 0
	}
	return p.policy.SymSignatureKeySize(), p.policy.SymEncryptionKeySize(), p.policy.SymEncryptionBlockSize()
}

// NonceLength returns the OPN nonce length of the policy.
func (p *Provider) NonceLength() int {
	return p.policy.NonceSize()
}

// ThumbprintLength returns the SHA-1 digest length.
func (p *Provider) ThumbprintLength() uint32 {
	return ThumbprintSize
}

// Thumbprint returns the SHA-1 thumbprint of der.
func (p *Provider) Thumbprint(der []byte) []byte {
	return ThumbprintSlice(der)
}

func (p *Provider) checkKeySet(keys *KeySet) error {
	if p.IsNone() {
		return ErrPolicyNone
	}
	if keys == nil {
		return ErrNoKey
	}
	sig, enc, iv := p.SymmetricKeyLengths()
	if len(keys.SigningKey) != sig || len(keys.EncryptingKey) != enc || len(keys.InitializationVector) != iv {
		return ErrInvalidKeySet
	}
	return nil
}
