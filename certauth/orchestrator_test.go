package certauth

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ocsp"
)

func testAuthenticator(t *testing.T, tool OCSPTool) (*Authenticator, *fakeDirectory, *fakeBindingStore, *Registry) {
	t.Helper()
	reg := testRegistry(t)
	dir := newFakeDirectory()
	bindings := newFakeBindingStore()
	binder := NewBinder(dir, bindings, fakeSite{url: "http://localhost:3000"}, testLogger())
	auth := NewAuthenticator(
		NewVerifier(reg, testLogger()),
		NewRevocationChecker(reg, tool, testLogger()),
		binder,
		testLogger(),
	)
	return auth, dir, bindings, reg
}

func TestAuthenticateFirstLogin(t *testing.T) {
	pki := newTestPKI(t, "37101010021", "mari-liis.mannik@eesti.ee")
	tool := &fakeOCSPTool{
		output:  "Response verify OK\n",
		respDER: pki.ocspResponse(t, ocsp.Good),
	}
	auth, dir, bindings, reg := testAuthenticator(t, tool)

	cert := ClientCertificate{
		Subject: &SubjectDN{CommonName: "37101010021", GivenName: "MARI-LIIS", Surname: "MÄNNIK"},
		Issuer:  &IssuerDN{CommonName: "ESTEID-SK 2011"},
		RawPEM:  pki.leafPEM,
	}

	outcome, err := auth.Authenticate(context.Background(), cert, 0)
	require.NoError(t, err)
	require.True(t, outcome.Accepted)
	require.Greater(t, outcome.UID, int64(0))

	assert.Equal(t, 1, dir.createCalls)
	assert.Equal(t, outcome.UID, bindings.bindings["37101010021"])
	assert.Equal(t, "mari-liis.mannik@eesti.ee", dir.fields[outcome.UID]["email"])
	assertTempDirEmpty(t, reg.TempDir())

	// Same certificate again: same uid, no further directory writes.
	writes := dir.setFieldCalls
	again, err := auth.Authenticate(context.Background(), cert, 0)
	require.NoError(t, err)
	assert.True(t, again.Accepted)
	assert.Equal(t, outcome.UID, again.UID)
	assert.Equal(t, 1, dir.createCalls)
	assert.Equal(t, writes, dir.setFieldCalls)
}

func TestAuthenticateUntrustedIssuerSkipsOCSP(t *testing.T) {
	tool := &fakeOCSPTool{}
	auth, _, bindings, reg := testAuthenticator(t, tool)

	outcome, err := auth.Authenticate(context.Background(), ClientCertificate{
		Subject: &SubjectDN{CommonName: "37101010021"},
		Issuer:  &IssuerDN{CommonName: "Unknown CA"},
	}, 0)
	require.NoError(t, err)
	assert.False(t, outcome.Accepted)
	assert.Equal(t, ReasonUntrustedIssuer, outcome.Reason)
	assert.Equal(t, 0, tool.callCount(), "revocation must not run for untrusted issuers")
	assert.Empty(t, bindings.bindings)
	assertTempDirEmpty(t, reg.TempDir())
}

func TestAuthenticateMissingCommonName(t *testing.T) {
	tool := &fakeOCSPTool{}
	auth, _, _, _ := testAuthenticator(t, tool)

	outcome, err := auth.Authenticate(context.Background(), ClientCertificate{
		Subject: &SubjectDN{GivenName: "MARI-LIIS"},
		Issuer:  &IssuerDN{CommonName: "ESTEID-SK 2011"},
	}, 0)
	require.NoError(t, err)
	assert.False(t, outcome.Accepted)
	assert.Equal(t, ReasonMissingCommonName, outcome.Reason)
	assert.Equal(t, 0, tool.callCount())
}

func TestAuthenticateRevokedCertificate(t *testing.T) {
	pki := newTestPKI(t, "37101010021", "")
	tool := &fakeOCSPTool{
		output:  "Response verify OK\n",
		respDER: pki.ocspResponse(t, ocsp.Revoked),
	}
	auth, dir, bindings, reg := testAuthenticator(t, tool)

	outcome, err := auth.Authenticate(context.Background(), ClientCertificate{
		Subject: &SubjectDN{CommonName: "37101010021"},
		Issuer:  &IssuerDN{CommonName: "ESTEID-SK 2011"},
		RawPEM:  pki.leafPEM,
	}, 0)
	require.NoError(t, err)
	assert.False(t, outcome.Accepted)
	assert.Equal(t, ReasonRevoked, outcome.Reason)
	assert.Empty(t, bindings.bindings, "no binding mutation for a revoked certificate")
	assert.Equal(t, 0, dir.createCalls)
	assertTempDirEmpty(t, reg.TempDir())
}

func TestAuthenticateUnverifiedResponse(t *testing.T) {
	pki := newTestPKI(t, "37101010021", "")
	tool := &fakeOCSPTool{output: "Responder Error: unauthorized (6)\n"}
	auth, _, bindings, _ := testAuthenticator(t, tool)

	outcome, err := auth.Authenticate(context.Background(), ClientCertificate{
		Subject: &SubjectDN{CommonName: "37101010021"},
		Issuer:  &IssuerDN{CommonName: "ESTEID-SK 2011"},
		RawPEM:  pki.leafPEM,
	}, 0)
	require.NoError(t, err)
	assert.False(t, outcome.Accepted)
	assert.Equal(t, ReasonCheckFailed, outcome.Reason)
	assert.Empty(t, bindings.bindings)
}

func TestAuthenticateStorageErrorIsNotADenial(t *testing.T) {
	pki := newTestPKI(t, "37101010021", "")
	tool := &fakeOCSPTool{
		output:  "Response verify OK\n",
		respDER: pki.ocspResponse(t, ocsp.Good),
	}
	auth, _, bindings, _ := testAuthenticator(t, tool)
	bindings.getErr = fmt.Errorf("connection refused")

	outcome, err := auth.Authenticate(context.Background(), ClientCertificate{
		Subject: &SubjectDN{CommonName: "37101010021"},
		Issuer:  &IssuerDN{CommonName: "ESTEID-SK 2011"},
		RawPEM:  pki.leafPEM,
	}, 0)
	assert.Error(t, err)
	assert.False(t, outcome.Accepted)
	assert.Empty(t, outcome.Reason)
}

func TestAuthenticateIdentityConflictFailsClosed(t *testing.T) {
	pki := newTestPKI(t, "37101010021", "")
	tool := &fakeOCSPTool{
		output:  "Response verify OK\n",
		respDER: pki.ocspResponse(t, ocsp.Good),
	}
	auth, dir, bindings, _ := testAuthenticator(t, tool)

	other, err := dir.Create(context.Background(), "Other", "other@example.com")
	require.NoError(t, err)
	require.NoError(t, bindings.SetField(context.Background(), "37101010021", other))

	sessionUID, err := dir.Create(context.Background(), "Me", "me@example.com")
	require.NoError(t, err)

	outcome, err := auth.Authenticate(context.Background(), ClientCertificate{
		Subject: &SubjectDN{CommonName: "37101010021"},
		Issuer:  &IssuerDN{CommonName: "ESTEID-SK 2011"},
		RawPEM:  pki.leafPEM,
	}, sessionUID)
	require.NoError(t, err)
	assert.False(t, outcome.Accepted)
	assert.Equal(t, ReasonIdentityConflict, outcome.Reason)
	assert.Equal(t, other, bindings.bindings["37101010021"])
}
