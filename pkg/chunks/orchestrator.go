package chunks

import (
	"crypto/rsa"
	"crypto/x509"

	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"

	"github.com/backkem/uasc/pkg/crypto"
	"github.com/backkem/uasc/pkg/message"
)

// extraPaddingThreshold is the plaintext block size above which the padding
// size needs a second byte.
const extraPaddingThreshold = 256

// IsEncrypted reports whether a message is encrypted in mode. OPN is
// encrypted whenever security is active.
func IsEncrypted(mode ua.MessageSecurityMode, opening bool) bool {
	if opening {
		return mode == ua.MessageSecurityModeSign || mode == ua.MessageSecurityModeSignAndEncrypt
	}
	return mode == ua.MessageSecurityModeSignAndEncrypt
}

// IsSigned reports whether messages are signed in mode.
func IsSigned(mode ua.MessageSecurityMode) bool {
	return mode == ua.MessageSecurityModeSign || mode == ua.MessageSecurityModeSignAndEncrypt
}

// usesExtraPadding reports whether the padding size is written on two bytes.
func usesExtraPadding(plainBlock uint32) bool {
	return plainBlock > extraPaddingThreshold
}

// MaxBodySize returns the largest body that fits one chunk of chunkSize
// bytes after headerSize bytes of headers. It returns 0 when nothing fits.
func MaxBodySize(chunkSize, headerSize uint32, encrypt, sign bool, cipherBlock, plainBlock, signatureSize uint32) uint32 {
	paddingFields := uint32(0)
	if encrypt {
		paddingFields = 1
		if usesExtraPadding(plainBlock) {
			paddingFields = 2
		}
	} else {
		cipherBlock, plainBlock = 1, 1
	}
	if !sign {
		signatureSize = 0
	}
	if cipherBlock == 0 {
		return 0
	}

	reserved := uint64(headerSize) + uint64(signatureSize) + uint64(paddingFields)
	if uint64(chunkSize) <= reserved {
		return 0
	}
	body := uint64(plainBlock) * ((uint64(chunkSize) - reserved) / uint64(cipherBlock))
	if body <= message.SequenceHeaderSize {
		return 0
	}
	return uint32(body - message.SequenceHeaderSize)
}

// PaddingSize returns the number of padding bytes that make toEncrypt bytes,
// the padding size field(s) and the signature a multiple of plainBlock.
func PaddingSize(toEncrypt, plainBlock, signatureSize uint32) uint16 {
	if plainBlock == 0 {
		return 0
	}
	fields := uint32(1)
	if usesExtraPadding(plainBlock) {
		fields = 2
	}
	rem := (toEncrypt + signatureSize + fields) % plainBlock
	if rem == 0 {
		return 0
	}
	return uint16(plainBlock - rem)
}

// writePadding appends the padding size byte, padding bytes equal to it and,
// for large blocks, the high byte of the size.
func writePadding(b *message.Buffer, padding uint16, extra bool) error {
	low := byte(padding)
	if err := b.WriteByte(low); err != nil {
		return err
	}
	for i := uint16(0); i < padding; i++ {
		if err := b.WriteByte(low); err != nil {
			return err
		}
	}
	if extra {
		return b.WriteByte(byte(padding >> 8))
	}
	return nil
}

// removePadding strips the padding of a decrypted message whose signature
// was already removed. The body must stay at or after the cursor.
func removePadding(b *message.Buffer, extra bool) error {
	data := b.Bytes()
	end := len(data)

	padding := 0
	if extra {
		if end == 0 {
			return statusErrorf(message.BadDecodingError, "no room for extra padding byte")
		}
		padding = int(data[end-1]) << 8
		end--
	}
	if end == 0 {
		return statusErrorf(message.BadDecodingError, "no room for padding size")
	}
	padding += int(data[end-1]) + 1

	if end-padding < b.Position() {
		return statusErrorf(message.BadDecodingError, "padding %d exceeds body", padding)
	}
	return b.Truncate(end - padding)
}

// publicKey borrows the RSA key of cert.
func publicKey(cert *x509.Certificate) (*rsa.PublicKey, error) {
	pk, err := crypto.PublicKeyFromCertificate(cert)
	if err != nil {
		return nil, err
	}
	return pk.RSA(), nil
}

// cryptoSizes are the block and signature sizes used for one message.
type cryptoSizes struct {
	encrypt, sign bool

	cipherBlock, plainBlock uint32
	signature               uint32
}

// sendingSizes computes the sizes for a message about to be sent.
//
// Asymmetric blocks come from the receiver's key and the signature from the
// sender's own key.
func (c *Connection) sendingSizes(symmetric bool) (cryptoSizes, error) {
	mode := c.config.SecurityMode
	s := cryptoSizes{
		encrypt: IsEncrypted(mode, !symmetric),
		sign:    IsSigned(mode),
	}
	if !s.sign && !s.encrypt {
		return s, nil
	}
	if c.crypto == nil {
		return s, statusError(message.BadTCPInternalError, ErrNoCrypto)
	}

	if symmetric {
		if s.encrypt {
			s.cipherBlock, s.plainBlock = c.crypto.SymmetricBlockSizes()
		}
		s.signature = c.crypto.SymmetricSignatureLength()
		return s, nil
	}

	peer := c.config.PeerCertificate
	own := c.config.Certificate
	if peer == nil || own == nil {
		return s, statusErrorf(message.BadTCPInternalError, "missing certificate for asymmetric security")
	}
	peerKey, err := publicKey(peer)
	if err != nil {
		return s, statusError(message.BadTCPInternalError, err)
	}
	ownKey, err := publicKey(own)
	if err != nil {
		return s, statusError(message.BadTCPInternalError, err)
	}

	if s.cipherBlock, s.plainBlock, err = c.crypto.AsymmetricBlockSizes(peerKey); err != nil {
		return s, statusError(message.BadTCPInternalError, err)
	}
	if s.signature, err = c.crypto.AsymmetricSignatureLength(ownKey); err != nil {
		return s, statusError(message.BadTCPInternalError, err)
	}
	return s, nil
}

// computeMaxBodySizes fills the cached body limits of the connection.
// asymHeaderSize is the length of everything before the sequence header of
// an OPN. Only the symmetric limit is computed when it is 0.
func (c *Connection) computeMaxBodySizes(asymHeaderSize uint32) error {
	chunk := c.sendBufferSize

	if asymHeaderSize > 0 {
		asym, err := c.sendingSizes(false)
		if err != nil {
			return err
		}
		c.security.AsymMaxBodySize = MaxBodySize(chunk, asymHeaderSize, asym.encrypt, asym.sign,
			asym.cipherBlock, asym.plainBlock, asym.signature)
	}

	sym, err := c.sendingSizes(true)
	if err != nil {
		return err
	}
	c.security.SymMaxBodySize = MaxBodySize(chunk, message.SymmetricHeadersSize, sym.encrypt, sym.sign,
		sym.cipherBlock, sym.plainBlock, sym.signature)

	if (asymHeaderSize > 0 && c.security.AsymMaxBodySize == 0) || c.security.SymMaxBodySize == 0 {
		return statusErrorf(message.BadTCPInternalError, "send buffer of %d bytes holds no body", chunk)
	}
	return nil
}

// encryptedLength returns the length plainLen bytes take once encrypted.
func (c *Connection) encryptedLength(symmetric bool, plainLen uint32) (uint32, error) {
	if symmetric {
		return c.crypto.SymmetricEncryptedLength(plainLen)
	}
	key, err := publicKey(c.config.PeerCertificate)
	if err != nil {
		return 0, err
	}
	return c.crypto.AsymmetricEncryptedLength(key, plainLen)
}

// signAndEncrypt appends the signature to b and encrypts everything from
// seqPos on. It returns the buffer to put on the wire.
func (c *Connection) signAndEncrypt(b *message.Buffer, symmetric bool, seqPos int, sizes cryptoSizes) (*message.Buffer, error) {
	if sizes.sign {
		var sig []byte
		var err error
		if symmetric {
			_, ks := c.security.SendingToken()
			sig, err = c.crypto.SymmetricSign(&ks.Sender, b.Bytes())
		} else {
			sig, err = c.crypto.AsymmetricSign(c.config.PrivateKey, b.Bytes())
		}
		if err != nil {
			return nil, statusError(message.BadTCPInternalError, errors.Wrap(err, "sign"))
		}
		if err := b.Write(sig); err != nil {
			return nil, statusError(message.BadTCPInternalError, err)
		}
	}

	if !sizes.encrypt {
		return b, nil
	}

	var ciphertext []byte
	var err error
	plaintext := b.Bytes()[seqPos:]
	if symmetric {
		_, ks := c.security.SendingToken()
		ciphertext, err = c.crypto.SymmetricEncrypt(&ks.Sender, plaintext)
	} else {
		key, kerr := publicKey(c.config.PeerCertificate)
		if kerr != nil {
			return nil, statusError(message.BadTCPInternalError, kerr)
		}
		ciphertext, err = c.crypto.AsymmetricEncrypt(key, plaintext)
	}
	if err != nil {
		return nil, statusError(message.BadTCPInternalError, errors.Wrap(err, "encrypt"))
	}

	out := message.NewBuffer(int(c.sendBufferSize))
	if err := out.Write(b.Bytes()[:seqPos]); err != nil {
		return nil, statusError(message.BadTCPInternalError, err)
	}
	if err := out.Write(ciphertext); err != nil {
		return nil, statusError(message.BadTCPInternalError, err)
	}
	return out, nil
}

// decryptAndVerify decrypts the received chunk from the cursor on and checks
// its signature, leaving the cursor on the sequence header.
func (c *Connection) decryptAndVerify(symmetric, usePrevious, decrypt, verify bool) error {
	b := c.chunk.buffer
	seqPos := b.Position()

	if decrypt {
		ciphertext := b.Bytes()[seqPos:]
		var plaintext []byte
		var err error
		if symmetric {
			keys := c.security.ReceivingKeys(usePrevious)
			var plainLen uint32
			if plainLen, err = c.crypto.SymmetricDecryptedLength(uint32(len(ciphertext))); err == nil {
				if plainLen > c.receiveBufferSize {
					return statusErrorf(message.BadSecurityChecksFailed, "decrypted length %d exceeds buffer", plainLen)
				}
				plaintext, err = c.crypto.SymmetricDecrypt(&keys.Receiver, ciphertext)
			}
		} else {
			key := c.ownPrivateKey()
			if key == nil {
				return statusError(message.BadSecurityChecksFailed, ErrNotConfigured)
			}
			var plainLen uint32
			if plainLen, err = c.crypto.AsymmetricDecryptedLength(&key.PublicKey, uint32(len(ciphertext))); err == nil {
				if plainLen > c.receiveBufferSize {
					return statusErrorf(message.BadSecurityChecksFailed, "decrypted length %d exceeds buffer", plainLen)
				}
				plaintext, err = c.crypto.AsymmetricDecrypt(key, ciphertext)
			}
		}
		if err != nil {
			return statusError(message.BadSecurityChecksFailed, errors.Wrap(err, "decrypt"))
		}

		plain := message.NewBuffer(seqPos + len(plaintext))
		if err := plain.Write(b.Bytes()[:seqPos]); err != nil {
			return statusError(message.BadSecurityChecksFailed, err)
		}
		if err := plain.Write(plaintext); err != nil {
			return statusError(message.BadSecurityChecksFailed, err)
		}
		if err := plain.SetPosition(seqPos); err != nil {
			return statusError(message.BadSecurityChecksFailed, err)
		}
		c.chunk.buffer = plain
		b = plain
	}

	if !verify {
		return nil
	}

	var sigLen uint32
	if symmetric {
		sigLen = c.crypto.SymmetricSignatureLength()
	} else {
		peer := c.peerCertificate()
		if peer == nil {
			return statusErrorf(message.BadSecurityChecksFailed, "no peer certificate to verify with")
		}
		key, err := publicKey(peer)
		if err != nil {
			return statusError(message.BadSecurityChecksFailed, err)
		}
		if sigLen, err = c.crypto.AsymmetricSignatureLength(key); err != nil {
			return statusError(message.BadSecurityChecksFailed, err)
		}
	}

	if b.Len()-seqPos < int(sigLen) {
		return statusErrorf(message.BadSecurityChecksFailed, "message shorter than signature")
	}
	sigPos := b.Len() - int(sigLen)
	data, sig := b.Bytes()[:sigPos], b.Bytes()[sigPos:]

	var err error
	if symmetric {
		keys := c.security.ReceivingKeys(usePrevious)
		err = c.crypto.SymmetricVerify(&keys.Receiver, data, sig)
	} else {
		key, kerr := publicKey(c.peerCertificate())
		if kerr != nil {
			return statusError(message.BadSecurityChecksFailed, kerr)
		}
		err = c.crypto.AsymmetricVerify(key, data, sig)
	}
	if err != nil {
		return statusError(message.BadSecurityChecksFailed, errors.Wrap(err, "verify"))
	}
	return b.Truncate(sigPos)
}

// receivingExtraPadding reports whether a received message carries the extra
// padding byte. Only asymmetric blocks of the own key can be large enough.
func (c *Connection) receivingExtraPadding(symmetric bool) (bool, error) {
	if symmetric {
		_, plain := c.crypto.SymmetricBlockSizes()
		return usesExtraPadding(plain), nil
	}
	key := c.ownPrivateKey()
	if key == nil {
		return false, ErrNotConfigured
	}
	_, plain, err := c.crypto.AsymmetricBlockSizes(&key.PublicKey)
	if err != nil {
		return false, err
	}
	return usesExtraPadding(plain), nil
}
