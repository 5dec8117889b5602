package certauth

import (
	"fmt"
	"time"
)

// IssuerEntry maps a trusted issuer CN to the certificate files the
// OCSP query needs.
type IssuerEntry struct {
	CommonName   string `mapstructure:"cn"`
	CACertFile   string `mapstructure:"ca_cert"`
	OCSPCertFile string `mapstructure:"ocsp_cert"`
}

// RegistryConfig is unmarshalled from the auth section of config.yaml.
type RegistryConfig struct {
	TrustedIssuers []IssuerEntry `mapstructure:"trusted_issuers"`
	OCSPURL        string        `mapstructure:"ocsp_url"`
	OCSPTimeout    time.Duration `mapstructure:"ocsp_timeout"`
	TempDir        string        `mapstructure:"temp_dir"`
}

// Registry is the static trust table: which issuer CNs are acceptable
// and where their CA and OCSP responder certificates live. Built once
// at startup, read-only afterwards.
type Registry struct {
	entries     map[string]IssuerEntry
	ocspURL     string
	ocspTimeout time.Duration
	tempDir     string
}

func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if len(cfg.TrustedIssuers) == 0 {
		return nil, fmt.Errorf("registry: no trusted issuers configured")
	}
	if cfg.OCSPURL == "" {
		return nil, fmt.Errorf("registry: ocsp_url not configured")
	}
	entries := make(map[string]IssuerEntry, len(cfg.TrustedIssuers))
	for _, e := range cfg.TrustedIssuers {
		if e.CommonName == "" || e.CACertFile == "" || e.OCSPCertFile == "" {
			return nil, fmt.Errorf("registry: incomplete issuer entry %q", e.CommonName)
		}
		entries[e.CommonName] = e
	}
	timeout := cfg.OCSPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = "certs/temp"
	}
	return &Registry{
		entries:     entries,
		ocspURL:     cfg.OCSPURL,
		ocspTimeout: timeout,
		tempDir:     tempDir,
	}, nil
}

// Trusted reports whether issuerCN is on the allow-list.
func (r *Registry) Trusted(issuerCN string) bool {
	_, ok := r.entries[issuerCN]
	return ok
}

// Entry returns the trust entry for issuerCN.
func (r *Registry) Entry(issuerCN string) (IssuerEntry, bool) {
	e, ok := r.entries[issuerCN]
	return e, ok
}

func (r *Registry) OCSPURL() string            { return r.ocspURL }
func (r *Registry) OCSPTimeout() time.Duration { return r.ocspTimeout }
func (r *Registry) TempDir() string            { return r.tempDir }
