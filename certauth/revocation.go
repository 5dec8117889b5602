package certauth

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/ocsp"
)

// verifyMarker is printed by openssl when the OCSP response signature
// checked out against the responder certificate. A response without it
// must never be trusted, whatever status it claims.
const verifyMarker = "Response verify OK"

// OCSPTool runs one OCSP query against the responder and returns the
// tool's combined stdout/stderr text. The verified DER response is
// written to respOutFile.
type OCSPTool interface {
	Query(ctx context.Context, url, caCertFile, ocspCertFile, certFile, respOutFile string) (string, error)
}

// OpenSSLTool shells out to the openssl ocsp subcommand.
type OpenSSLTool struct{}

func (OpenSSLTool) Query(ctx context.Context, url, caCertFile, ocspCertFile, certFile, respOutFile string) (string, error) {
	cmd := exec.CommandContext(ctx, "openssl", "ocsp",
		"-url", url,
		"-issuer", caCertFile,
		"-VAfile", ocspCertFile,
		"-cert", certFile,
		"-respout", respOutFile)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// RevocationChecker determines a certificate's current revocation
// status through the external OCSP tool.
type RevocationChecker struct {
	registry *Registry
	tool     OCSPTool
	log      *slog.Logger
}

func NewRevocationChecker(registry *Registry, tool OCSPTool, log *slog.Logger) *RevocationChecker {
	return &RevocationChecker{registry: registry, tool: tool, log: log}
}

// Check writes the certificate to a private temp file, queries the
// responder for the identity's issuer, and classifies the verified
// response. A non-nil error means the check itself failed (tool error,
// timeout, unverifiable response) and the attempt must be denied.
func (c *RevocationChecker) Check(ctx context.Context, id *VerifiedIdentity) (Status, error) {
	entry, ok := c.registry.Entry(id.IssuerCN)
	if !ok {
		return StatusUnknown, fmt.Errorf("no trust entry for issuer %q", id.IssuerCN)
	}
	if len(id.RawPEM) == 0 {
		return StatusUnknown, fmt.Errorf("no certificate bytes available for OCSP check")
	}

	if err := os.MkdirAll(c.registry.TempDir(), 0o700); err != nil {
		return StatusUnknown, fmt.Errorf("create temp dir: %w", err)
	}

	// The name is unique per attempt, never derived from the subject
	// CN: two concurrent logins for the same identity would otherwise
	// race on one path.
	certFile := filepath.Join(c.registry.TempDir(), uuid.NewString()+".crt")
	respOutFile := certFile + ".resp"

	if err := os.WriteFile(certFile, id.RawPEM, 0o600); err != nil {
		return StatusUnknown, fmt.Errorf("write temp certificate: %w", err)
	}
	defer c.removeTemp(certFile)
	defer c.removeTemp(respOutFile)

	ctx, cancel := context.WithTimeout(ctx, c.registry.OCSPTimeout())
	defer cancel()

	output, toolErr := c.tool.Query(ctx, c.registry.OCSPURL(), entry.CACertFile, entry.OCSPCertFile, certFile, respOutFile)
	if ctx.Err() == context.DeadlineExceeded {
		return StatusUnknown, fmt.Errorf("ocsp query timed out after %s: %w", c.registry.OCSPTimeout(), ctx.Err())
	}

	// The tool exits non-zero for revoked certificates too, so the
	// verify marker decides whether the response is usable at all.
	if !strings.Contains(output, verifyMarker) {
		if toolErr != nil {
			return StatusUnknown, fmt.Errorf("ocsp response not verified: %w", toolErr)
		}
		return StatusUnknown, fmt.Errorf("ocsp response not verified")
	}

	der, err := os.ReadFile(respOutFile)
	if err != nil {
		return StatusUnknown, fmt.Errorf("read ocsp response: %w", err)
	}
	resp, err := ocsp.ParseResponse(der, nil)
	if err != nil {
		return StatusUnknown, fmt.Errorf("parse ocsp response: %w", err)
	}

	switch resp.Status {
	case ocsp.Good:
		return StatusGood, nil
	case ocsp.Revoked:
		c.log.Error("client certificate revoked",
			"subject_cn", id.SubjectCN,
			"revoked_at", resp.RevokedAt)
		return StatusRevoked, nil
	default:
		c.log.Error("client certificate status unknown to responder",
			"subject_cn", id.SubjectCN)
		return StatusUnknown, nil
	}
}

// removeTemp deletes a per-attempt file. Cleanup failure is logged and
// swallowed; it must never turn a finished check into a denial.
func (c *RevocationChecker) removeTemp(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		c.log.Warn("failed to remove temp file", "path", path, "error", err)
	}
}
