// Package config loads the configuration of a secure channel endpoint from
// a YAML file.
package config

import (
	"crypto/rsa"
	"crypto/x509"
	"os"
	"strings"
	"time"

	"github.com/awcullen/opcua/ua"
	"github.com/pion/logging"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/backkem/uasc/pkg/channel"
	"github.com/backkem/uasc/pkg/chunks"
	"github.com/backkem/uasc/pkg/crypto"
	"github.com/backkem/uasc/pkg/pki"
)

const (
	// DefaultListen is the standard opc.tcp port on all interfaces.
	DefaultListen = "0.0.0.0:4840"

	// DefaultMaxConnections bounds concurrent connections.
	DefaultMaxConnections = 64

	// EnvPrefix prefixes environment overrides, e.g. UASC_LISTEN.
	EnvPrefix = "UASC"
)

// Policy is one offered security policy with its allowed modes.
type Policy struct {
	URI   string
	Modes []ua.MessageSecurityMode
}

// Config is the endpoint configuration.
type Config struct {
	LogLevel logging.LogLevel

	Listen            string
	MetricsListen     string
	ReceiveBufferSize uint32
	SendBufferSize    uint32
	MaxConnections    int

	// Certificate and PrivateKey are PEM or DER files. PKCS12 is an
	// alternative holding both.
	Certificate    string
	PrivateKey     string
	PKCS12         string
	PKCS12Password string

	Trusted            []string
	ValidationCacheTTL time.Duration

	Policies []Policy
}

// policyEntry is the file layout of a policy.
type policyEntry struct {
	URI   string   `mapstructure:"uri"`
	Modes []string `mapstructure:"modes"`
}

// NewDefaultConfig returns a Config offering only security None.
func NewDefaultConfig() *Config {
	return &Config{
		LogLevel:           logging.LogLevelInfo,
		Listen:             DefaultListen,
		ReceiveBufferSize:  chunks.DefaultReceiveBufferSize,
		SendBufferSize:     chunks.DefaultSendBufferSize,
		MaxConnections:     DefaultMaxConnections,
		ValidationCacheTTL: pki.DefaultCacheTTL,
		Policies: []Policy{{
			URI:   ua.SecurityPolicyURINone,
			Modes: []ua.MessageSecurityMode{ua.MessageSecurityModeNone},
		}},
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	d := NewDefaultConfig()
	v.SetDefault("log.level", "info")
	v.SetDefault("listen", d.Listen)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("buffers.receive", d.ReceiveBufferSize)
	v.SetDefault("buffers.send", d.SendBufferSize)
	v.SetDefault("max_connections", d.MaxConnections)
	v.SetDefault("validation_cache_ttl", d.ValidationCacheTTL.String())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configFile. A missing file, or an empty name, yields the
// defaults with environment overrides applied.
func Load(configFile string) (*Config, error) {
	v := newViper()
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, errors.Wrapf(err, "config: read %s", configFile)
			}
		}
	}
	return parse(v)
}

func parse(v *viper.Viper) (*Config, error) {
	config := NewDefaultConfig()

	level, err := ParseLogLevel(v.GetString("log.level"))
	if err != nil {
		return nil, err
	}
	config.LogLevel = level

	config.Listen = v.GetString("listen")
	config.MetricsListen = v.GetString("metrics.listen")
	config.ReceiveBufferSize = v.GetUint32("buffers.receive")
	config.SendBufferSize = v.GetUint32("buffers.send")
	if config.ReceiveBufferSize < chunks.MinBufferSize || config.SendBufferSize < chunks.MinBufferSize {
		return nil, errors.Errorf("config: buffers must be at least %d bytes", chunks.MinBufferSize)
	}
	config.MaxConnections = v.GetInt("max_connections")

	config.Certificate = v.GetString("certificate")
	config.PrivateKey = v.GetString("private_key")
	config.PKCS12 = v.GetString("pkcs12")
	config.PKCS12Password = v.GetString("pkcs12_password")
	if v.IsSet("trusted") {
		config.Trusted = v.GetStringSlice("trusted")
	}

	ttl, err := time.ParseDuration(v.GetString("validation_cache_ttl"))
	if err != nil {
		return nil, errors.Wrap(err, "config: validation_cache_ttl")
	}
	config.ValidationCacheTTL = ttl

	if v.IsSet("policies") {
		var entries []policyEntry
		if err := v.UnmarshalKey("policies", &entries); err != nil {
			return nil, errors.Wrap(err, "config: policies")
		}
		config.Policies = config.Policies[:0]
		for i, entry := range entries {
			p, err := parsePolicy(entry)
			if err != nil {
				return nil, errors.Wrapf(err, "config: policies[%d]", i)
			}
			config.Policies = append(config.Policies, p)
		}
	}
	if len(config.Policies) == 0 {
		return nil, errors.New("config: no security policy offered")
	}
	return config, nil
}

func parsePolicy(entry policyEntry) (Policy, error) {
	uri, err := ParsePolicyURI(entry.URI)
	if err != nil {
		return Policy{}, err
	}
	if len(entry.Modes) == 0 {
		return Policy{}, errors.Errorf("%s: no modes", uri)
	}

	p := Policy{URI: uri}
	for _, s := range entry.Modes {
		mode, err := ParseSecurityMode(s)
		if err != nil {
			return Policy{}, err
		}
		if (uri == ua.SecurityPolicyURINone) != (mode == ua.MessageSecurityModeNone) {
			return Policy{}, errors.Errorf("%s: mode %s not applicable", uri, s)
		}
		p.Modes = append(p.Modes, mode)
	}
	return p, nil
}

// ParseLogLevel converts a level name to a logging.LogLevel.
func ParseLogLevel(level string) (logging.LogLevel, error) {
	switch strings.ToLower(level) {
	case "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "info", "":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	}
	return 0, errors.Errorf("config: invalid log.level %q", level)
}

// ParseSecurityMode converts a mode name to a ua.MessageSecurityMode.
func ParseSecurityMode(mode string) (ua.MessageSecurityMode, error) {
	switch strings.ToLower(mode) {
	case "none":
		return ua.MessageSecurityModeNone, nil
	case "sign":
		return ua.MessageSecurityModeSign, nil
	case "signandencrypt", "sign_and_encrypt":
		return ua.MessageSecurityModeSignAndEncrypt, nil
	}
	return 0, errors.Errorf("config: invalid security mode %q", mode)
}

// ParsePolicyURI accepts a full security policy URI or its short name
// such as "Basic256Sha256".
func ParsePolicyURI(name string) (string, error) {
	for _, uri := range crypto.SupportedPolicies() {
		if name == uri || strings.EqualFold(name, uri[strings.LastIndex(uri, "#")+1:]) {
			return uri, nil
		}
	}
	return "", errors.Errorf("config: unsupported security policy %q", name)
}

// LoggerFactory returns a pion logger factory at the configured level.
func (c *Config) LoggerFactory() logging.LoggerFactory {
	lf := logging.NewDefaultLoggerFactory()
	lf.DefaultLogLevel = c.LogLevel
	return lf
}

// Credentials loads the application instance certificate and key. Both are
// nil when none are configured.
func (c *Config) Credentials() (*x509.Certificate, *rsa.PrivateKey, error) {
	if c.PKCS12 != "" {
		return pki.LoadPKCS12(c.PKCS12, c.PKCS12Password)
	}
	if c.Certificate == "" && c.PrivateKey == "" {
		return nil, nil, nil
	}
	if c.Certificate == "" || c.PrivateKey == "" {
		return nil, nil, errors.New("config: certificate and private_key must be set together")
	}
	cert, err := pki.LoadCertificate(c.Certificate)
	if err != nil {
		return nil, nil, err
	}
	key, err := pki.LoadPrivateKey(c.PrivateKey)
	if err != nil {
		return nil, nil, err
	}
	return cert, key, nil
}

// Endpoint builds the server endpoint configuration, loading credentials
// and trusted certificates from disk.
func (c *Config) Endpoint() (*channel.EndpointConfig, error) {
	cert, key, err := c.Credentials()
	if err != nil {
		return nil, err
	}
	trusted, err := pki.LoadCertificates(c.Trusted)
	if err != nil {
		return nil, err
	}

	e := &channel.EndpointConfig{
		Certificate: cert,
		PrivateKey:  key,
	}
	ttl := c.ValidationCacheTTL
	if ttl == 0 {
		ttl = -1
	}
	e.PKI = pki.NewStore(pki.StoreConfig{Trusted: trusted, CacheTTL: ttl})

	for _, p := range c.Policies {
		sp := channel.SecurityPolicy{URI: p.URI, Modes: p.Modes}
		if sp.AllowsSecurity() && cert == nil {
			return nil, errors.Errorf("config: policy %s needs a certificate", p.URI)
		}
		e.SecurityPolicies = append(e.SecurityPolicies, sp)
	}
	return e, nil
}
