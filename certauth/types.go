package certauth

import "errors"

// Provider identity, shown on the association page.
const (
	ProviderName = "client-cert"
	ProviderIcon = "icon-client-cert-auth"
)

// SubjectDN carries the subject fields of a parsed client certificate.
// Given name and surname are optional on some card profiles.
type SubjectDN struct {
	CommonName string
	GivenName  string
	Surname    string
}

// IssuerDN carries the issuer fields of a parsed client certificate.
type IssuerDN struct {
	CommonName string
}

// DNHeaders holds the DN components a TLS-terminating proxy forwards
// when the application never sees the handshake itself.
type DNHeaders struct {
	SubjectCN string
	GivenName string
	Surname   string
	IssuerCN  string
}

// ClientCertificate is the per-attempt input to the pipeline: either a
// parsed peer certificate (Subject/Issuer set) or proxy-forwarded DN
// headers, plus the raw PEM when available.
type ClientCertificate struct {
	Subject        *SubjectDN
	Issuer         *IssuerDN
	SubjectAltName string
	RawPEM         []byte
	Headers        DNHeaders
}

// VerifiedIdentity is the output of the trust-policy check, handed to
// the revocation checker and the identity binder.
type VerifiedIdentity struct {
	SubjectCN string
	GivenName string
	Surname   string
	IssuerCN  string
	Email     string
	RawPEM    []byte
}

// Status is the revocation state reported for a certificate. A failed
// or unverifiable check is reported as an error, never as a Status.
type Status int

const (
	StatusGood Status = iota
	StatusRevoked
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusGood:
		return "good"
	case StatusRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// Denial reasons carried on a denied Outcome. The middleware redirects
// to a generic error page either way; the reason is for the audit log.
const (
	ReasonInvalidSubject    = "invalid_subject"
	ReasonMissingCommonName = "missing_common_name"
	ReasonUntrustedIssuer   = "untrusted_issuer"
	ReasonCheckFailed       = "check_failed"
	ReasonRevoked           = "revoked"
	ReasonUnknown           = "unknown_status"
	ReasonIdentityConflict  = "identity_conflict"
)

// Outcome is the result of one authentication attempt. Policy and
// revocation denials land here; storage failures are returned as
// errors instead and surface as server errors.
type Outcome struct {
	Accepted bool
	UID      int64
	Reason   string
}

var (
	ErrInvalidSubject    = errors.New("certauth: client certificate subject missing")
	ErrMissingCommonName = errors.New("certauth: client certificate subject CN missing")
	ErrUntrustedIssuer   = errors.New("certauth: client certificate issuer CN not trusted")

	// ErrIdentityConflict means a CN resolved to two different uids, or
	// a uid already bound to another CN. Fail closed, never pick one.
	ErrIdentityConflict = errors.New("certauth: certificate identity conflict")
)
