package certauth

import (
	"crypto/x509"
	"encoding/pem"
	"log/slog"
	"net/mail"
	"strings"
)

// Verifier extracts and normalizes the identity fields of an incoming
// certificate and enforces the issuer allow-list. It performs no
// filesystem or network work, so rejection here is cheap.
type Verifier struct {
	registry *Registry
	log      *slog.Logger
}

func NewVerifier(registry *Registry, log *slog.Logger) *Verifier {
	return &Verifier{registry: registry, log: log}
}

// Verify checks the trust policy and returns the normalized identity.
// Structured subject/issuer fields win; proxy-forwarded DN headers are
// the fallback. Certificate contents beyond the DN fields are never
// logged.
func (v *Verifier) Verify(cert ClientCertificate) (*VerifiedIdentity, error) {
	if cert.Subject == nil && cert.Headers.SubjectCN == "" &&
		cert.Headers.GivenName == "" && cert.Headers.Surname == "" {
		v.log.Error("client certificate subject missing, check proxy DN header configuration")
		return nil, ErrInvalidSubject
	}

	subjectCN := cert.Headers.SubjectCN
	givenName := cert.Headers.GivenName
	surname := cert.Headers.Surname
	if cert.Subject != nil {
		if cert.Subject.CommonName != "" {
			subjectCN = cert.Subject.CommonName
		}
		if cert.Subject.GivenName != "" {
			givenName = cert.Subject.GivenName
		}
		if cert.Subject.Surname != "" {
			surname = cert.Subject.Surname
		}
	}
	if subjectCN == "" {
		v.log.Error("client certificate subject CN missing")
		return nil, ErrMissingCommonName
	}

	issuerCN := cert.Headers.IssuerCN
	if cert.Issuer != nil && cert.Issuer.CommonName != "" {
		issuerCN = cert.Issuer.CommonName
	}
	if !v.registry.Trusted(issuerCN) {
		v.log.Error("client certificate issuer CN not trusted",
			"issuer_cn", issuerCN,
			"subject_cn", subjectCN)
		return nil, ErrUntrustedIssuer
	}

	return &VerifiedIdentity{
		SubjectCN: subjectCN,
		GivenName: givenName,
		Surname:   surname,
		IssuerCN:  issuerCN,
		Email:     extractEmail(cert),
		RawPEM:    cert.RawPEM,
	}, nil
}

// extractEmail recovers the rfc822Name entry from the SAN extension.
// With a PEM in hand the parsed EmailAddresses field is authoritative;
// in proxy mode the forwarded SAN display string is tokenized and each
// email candidate validated, instead of the old split-on-substring.
func extractEmail(cert ClientCertificate) string {
	if len(cert.RawPEM) > 0 {
		if block, _ := pem.Decode(cert.RawPEM); block != nil {
			if parsed, err := x509.ParseCertificate(block.Bytes); err == nil && len(parsed.EmailAddresses) > 0 {
				return parsed.EmailAddresses[0]
			}
		}
	}
	for _, part := range strings.Split(cert.SubjectAltName, ",") {
		part = strings.TrimSpace(part)
		value, ok := strings.CutPrefix(part, "email:")
		if !ok {
			continue
		}
		if addr, err := mail.ParseAddress(strings.TrimSpace(value)); err == nil {
			return addr.Address
		}
	}
	return ""
}
