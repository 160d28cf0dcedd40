// Package pki loads application instance certificates and keys and decides
// whether a peer certificate presented in an OPN message is trusted.
package pki

import (
	"crypto/x509"
	"encoding/hex"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pkg/errors"

	"github.com/backkem/uasc/pkg/crypto"
)

// Validation errors.
var (
	ErrNotTrusted     = errors.New("pki: certificate is not trusted")
	ErrNotValidYet    = errors.New("pki: certificate is not valid yet")
	ErrExpired        = errors.New("pki: certificate has expired")
	ErrNoPublicKey    = errors.New("pki: certificate carries no RSA public key")
	ErrNilCertificate = errors.New("pki: nil certificate")
)

// DefaultCacheTTL is how long a successful validation is remembered.
const DefaultCacheTTL = 5 * time.Minute

// StoreConfig configures a Store.
type StoreConfig struct {
	// Trusted certificates. Self-signed application certificates are trusted
	// by exact match; CA certificates anchor chain verification.
	Trusted []*x509.Certificate

	// CacheTTL bounds how long a successful validation is reused.
	// Zero uses DefaultCacheTTL; a negative value disables the cache.
	CacheTTL time.Duration

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Store validates peer certificates against a set of trusted certificates.
// Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	roots   *x509.CertPool
	trusted map[[crypto.ThumbprintSize]byte]struct{}

	cache *ttlcache.Cache[string, struct{}]
	clock func() time.Time
}

// NewStore creates a Store.
func NewStore(config StoreConfig) *Store {
	s := &Store{
		roots:   x509.NewCertPool(),
		trusted: make(map[[crypto.ThumbprintSize]byte]struct{}),
		clock:   config.Clock,
	}
	if s.clock == nil {
		s.clock = time.Now
	}

	ttl := config.CacheTTL
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	if ttl > 0 {
		s.cache = ttlcache.New[string, struct{}](
			ttlcache.WithTTL[string, struct{}](ttl),
		)
	}

	for _, cert := range config.Trusted {
		s.AddTrusted(cert)
	}
	return s
}

// AddTrusted adds a certificate to the trust list.
func (s *Store) AddTrusted(cert *x509.Certificate) {
	if cert == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trusted[crypto.Thumbprint(cert.Raw)] = struct{}{}
	if cert.IsCA {
		s.roots.AddCert(cert)
	}
}

// Validate checks the validity period of cert and that it is either trusted
// directly or chains to a trusted CA.
func (s *Store) Validate(cert *x509.Certificate) error {
	if cert == nil {
		return ErrNilCertificate
	}

	thumb := crypto.Thumbprint(cert.Raw)
	key := hex.EncodeToString(thumb[:])
	if s.cache != nil && s.cache.Get(key) != nil {
		return nil
	}

	now := s.clock()
	if now.Before(cert.NotBefore) {
		return ErrNotValidYet
	}
	if now.After(cert.NotAfter) {
		return ErrExpired
	}
	if _, err := crypto.PublicKeyFromCertificate(cert); err != nil {
		return ErrNoPublicKey
	}

	s.mu.RLock()
	_, direct := s.trusted[thumb]
	roots := s.roots
	s.mu.RUnlock()

	if !direct {
		_, err := cert.Verify(x509.VerifyOptions{
			Roots:       roots,
			CurrentTime: now,
			KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		})
		if err != nil {
			return errors.Wrap(ErrNotTrusted, err.Error())
		}
	}

	if s.cache != nil {
		s.cache.Set(key, struct{}{}, ttlcache.DefaultTTL)
	}
	return nil
}

// Forget drops any cached validation result for cert.
func (s *Store) Forget(cert *x509.Certificate) {
	if s.cache == nil || cert == nil {
		return
	}
	thumb := crypto.Thumbprint(cert.Raw)
	s.cache.Delete(hex.EncodeToString(thumb[:]))
}

// CachedValidations returns the number of cached validation results.
func (s *Store) CachedValidations() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.Len()
}
