package pki

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/url"
	"os"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/pkcs12"
)

// ParseCertificate parses a DER or PEM encoded certificate.
func ParseCertificate(data []byte) (*x509.Certificate, error) {
	if block, _ := pem.Decode(data); block != nil {
		data = block.Bytes
	}
	cert, err := x509.ParseCertificate(data)
	if err != nil {
		return nil, errors.Wrap(err, "pki: parse certificate")
	}
	return cert, nil
}

// LoadCertificate reads a DER or PEM encoded certificate file.
func LoadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "pki: read certificate %s", path)
	}
	cert, err := ParseCertificate(data)
	if err != nil {
		return nil, errors.Wrapf(err, "pki: %s", path)
	}
	return cert, nil
}

// LoadCertificates reads every certificate file in paths.
func LoadCertificates(paths []string) ([]*x509.Certificate, error) {
	certs := make([]*x509.Certificate, 0, len(paths))
	for _, p := range paths {
		cert, err := LoadCertificate(p)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// ParsePrivateKey parses a PKCS#1 or PKCS#8 RSA key, PEM or DER encoded.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	if block, _ := pem.Decode(data); block != nil {
		data = block.Bytes
	}
	if key, err := x509.ParsePKCS1PrivateKey(data); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(data)
	if err != nil {
		return nil, errors.Wrap(err, "pki: parse private key")
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("pki: private key is not RSA")
	}
	return key, nil
}

// LoadPrivateKey reads an RSA private key file.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "pki: read private key %s", path)
	}
	key, err := ParsePrivateKey(data)
	if err != nil {
		return nil, errors.Wrapf(err, "pki: %s", path)
	}
	return key, nil
}

// LoadPKCS12 reads a certificate and its RSA key from a PKCS#12 bundle.
func LoadPKCS12(path, password string) (*x509.Certificate, *rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "pki: read %s", path)
	}
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "pki: decode %s", path)
	}
	key, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, errors.Errorf("pki: %s does not hold an RSA key", path)
	}
	return cert, key, nil
}

// GenerateSelfSigned creates a self-signed application instance certificate
// carrying applicationURI as its URI subject alternative name.
func GenerateSelfSigned(commonName, applicationURI string, bits int, validity time.Duration) (*x509.Certificate, *rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, errors.Wrap(err, "pki: generate key")
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, nil, errors.Wrap(err, "pki: serial number")
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.Add(validity),
		KeyUsage: x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment |
			x509.KeyUsageKeyEncipherment | x509.KeyUsageDataEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}
	if applicationURI != "" {
		u, err := url.Parse(applicationURI)
		if err != nil {
			return nil, nil, errors.Wrap(err, "pki: application URI")
		}
		template.URIs = []*url.URL{u}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, errors.Wrap(err, "pki: create certificate")
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, errors.Wrap(err, "pki: parse generated certificate")
	}
	return cert, key, nil
}

// WritePEM writes cert and key as PEM files.
func WritePEM(certPath, keyPath string, cert *x509.Certificate, key *rsa.PrivateKey) error {
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	if err := os.WriteFile(certPath, certPEM, 0o644); err != nil {
		return errors.Wrapf(err, "pki: write %s", certPath)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		return errors.Wrapf(err, "pki: write %s", keyPath)
	}
	return nil
}
