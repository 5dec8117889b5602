package middleware

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"path/filepath"

	"github.com/addspin/certgate/certauth"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/session"
)

// Session store
var Store = session.NewStore()

// Public routes that don't require authentication
var publicRoutes = []string{
	"/",
	"/index",
	"/auth/client-cert",
	"/auth/client-cert/error",
}

// Static file extensions served to everyone
var staticExtensions = []string{
	".css", ".js", ".jpg", ".jpeg", ".png", ".gif", ".svg", ".ico", ".woff", ".woff2", ".ttf", ".eot",
}

// Proxy DN headers set by the TLS-terminating frontend when the
// handshake never reaches this process.
const (
	HeaderSubjectCN = "ssl_client_s_dn_cn"
	HeaderGivenName = "ssl_client_s_dn_g"
	HeaderSurname   = "ssl_client_s_dn_s"
	HeaderIssuerCN  = "ssl_client_i_dn_cn"
	HeaderCertPEM   = "ssl_client_cert"
	HeaderSAN       = "ssl_client_san"
)

var (
	oidGivenName = asn1.ObjectIdentifier{2, 5, 4, 42}
	oidSurname   = asn1.ObjectIdentifier{2, 5, 4, 4}
)

// AuthMiddleware checks if the user is authenticated
func AuthMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		path := c.Path()

		// Allow access to static files by extension
		ext := filepath.Ext(path)
		for _, staticExt := range staticExtensions {
			if ext == staticExt {
				return c.Next()
			}
		}

		// Check if the path is in the public routes list
		for _, route := range publicRoutes {
			if path == route {
				return c.Next()
			}
		}

		if SessionUID(c) == 0 {
			c.Set("Location", "/auth/client-cert/error")
			return c.SendStatus(fiber.StatusFound)
		}

		return c.Next()
	}
}

// SessionUID returns the authenticated account of the current session,
// or 0 when the session is anonymous.
func SessionUID(c fiber.Ctx) int64 {
	sess, err := Store.Get(c)
	if err != nil {
		return 0
	}
	auth := sess.Get("authenticated")
	if auth == nil || !auth.(bool) {
		return 0
	}
	uid, ok := sess.Get("uid").(int64)
	if !ok {
		return 0
	}
	return uid
}

// CertFromRequest builds the per-attempt certificate representation:
// the TLS peer certificate when the handshake terminated here, the
// proxy DN headers otherwise.
func CertFromRequest(c fiber.Ctx) certauth.ClientCertificate {
	cert := certauth.ClientCertificate{
		SubjectAltName: c.Get(HeaderSAN),
		Headers: certauth.DNHeaders{
			SubjectCN: c.Get(HeaderSubjectCN),
			GivenName: c.Get(HeaderGivenName),
			Surname:   c.Get(HeaderSurname),
			IssuerCN:  c.Get(HeaderIssuerCN),
		},
	}

	if state := c.RequestCtx().TLSConnectionState(); state != nil && len(state.PeerCertificates) > 0 {
		peer := state.PeerCertificates[0]
		cert.Subject = &certauth.SubjectDN{
			CommonName: peer.Subject.CommonName,
			GivenName:  dnAttribute(peer.Subject, oidGivenName),
			Surname:    dnAttribute(peer.Subject, oidSurname),
		}
		cert.Issuer = &certauth.IssuerDN{CommonName: peer.Issuer.CommonName}
		cert.RawPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: peer.Raw})
		return cert
	}

	if v := c.Get(HeaderCertPEM); v != "" {
		cert.RawPEM = []byte(v)
	}
	return cert
}

// dnAttribute pulls a non-standard DN attribute (given name, surname)
// out of the parsed name by OID.
func dnAttribute(name pkix.Name, oid asn1.ObjectIdentifier) string {
	for _, atv := range name.Names {
		if !atv.Type.Equal(oid) {
			continue
		}
		if s, ok := atv.Value.(string); ok {
			return s
		}
	}
	return ""
}
