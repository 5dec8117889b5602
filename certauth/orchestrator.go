package certauth

import (
	"context"
	"errors"
	"log/slog"
)

// Authenticator sequences one authentication attempt: trust policy,
// revocation, identity binding. Linear, no retries; the first failing
// stage decides the outcome.
type Authenticator struct {
	verifier   *Verifier
	revocation *RevocationChecker
	binder     *Binder
	log        *slog.Logger
}

func NewAuthenticator(verifier *Verifier, revocation *RevocationChecker, binder *Binder, log *slog.Logger) *Authenticator {
	return &Authenticator{
		verifier:   verifier,
		revocation: revocation,
		binder:     binder,
		log:        log,
	}
}

// Authenticate runs the pipeline once for cert. sessionUID is the
// already-authenticated account of the surrounding session, or 0.
// Denials come back as a rejected Outcome with a nil error; a non-nil
// error means directory or binding-store failure and must surface as a
// server error, not a login rejection.
func (a *Authenticator) Authenticate(ctx context.Context, cert ClientCertificate, sessionUID int64) (Outcome, error) {
	id, err := a.verifier.Verify(cert)
	if err != nil {
		return Outcome{Reason: denyReason(err)}, nil
	}

	status, err := a.revocation.Check(ctx, id)
	if err != nil {
		a.log.Error("ocsp check failed", "subject_cn", id.SubjectCN, "error", err)
		return Outcome{Reason: ReasonCheckFailed}, nil
	}
	switch status {
	case StatusRevoked:
		return Outcome{Reason: ReasonRevoked}, nil
	case StatusUnknown:
		return Outcome{Reason: ReasonUnknown}, nil
	}

	uid, err := a.binder.Login(ctx, id, sessionUID)
	if err != nil {
		if errors.Is(err, ErrIdentityConflict) {
			return Outcome{Reason: ReasonIdentityConflict}, nil
		}
		return Outcome{}, err
	}

	a.log.Info("client certificate accepted", "subject_cn", id.SubjectCN, "uid", uid)
	return Outcome{Accepted: true, UID: uid}, nil
}

func denyReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidSubject):
		return ReasonInvalidSubject
	case errors.Is(err, ErrMissingCommonName):
		return ReasonMissingCommonName
	case errors.Is(err, ErrUntrustedIssuer):
		return ReasonUntrustedIssuer
	default:
		return ReasonCheckFailed
	}
}
