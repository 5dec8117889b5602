package controllers

import (
	"log/slog"

	"github.com/addspin/certgate/certauth"
	"github.com/addspin/certgate/middleware"
	"github.com/gofiber/fiber/v3"
)

// ClientCertController handles certificate login, the association page
// and account-data removal.
type ClientCertController struct {
	auth   *certauth.Authenticator
	binder *certauth.Binder
	log    *slog.Logger
}

func NewClientCertController(auth *certauth.Authenticator, binder *certauth.Binder, log *slog.Logger) *ClientCertController {
	return &ClientCertController{auth: auth, binder: binder, log: log}
}

// Authenticate runs the certificate pipeline for the current request.
// Denials redirect to the generic error page without revealing which
// check failed; storage failures surface as server errors.
func (cc *ClientCertController) Authenticate(c fiber.Ctx) error {
	cert := middleware.CertFromRequest(c)
	sessionUID := middleware.SessionUID(c)

	outcome, err := cc.auth.Authenticate(c.Context(), cert, sessionUID)
	if err != nil {
		cc.log.Error("certificate authentication failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":  "error",
			"message": "Authentication backend error",
		})
	}

	if !outcome.Accepted {
		c.Set("Location", "/auth/client-cert/error")
		return c.SendStatus(fiber.StatusFound)
	}

	sess, err := middleware.Store.Get(c)
	if err != nil {
		cc.log.Error("session error", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":  "error",
			"message": "Session error",
		})
	}
	sess.Set("authenticated", true)
	sess.Set("uid", outcome.UID)
	if err := sess.Save(); err != nil {
		cc.log.Error("session save error", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":  "error",
			"message": "Session save error",
		})
	}

	c.Set("Location", "/")
	return c.SendStatus(fiber.StatusFound)
}

// Association renders the binding state of the logged-in account.
func (cc *ClientCertController) Association(c fiber.Ctx) error {
	uid := middleware.SessionUID(c)
	if uid == 0 {
		c.Set("Location", "/auth/client-cert/error")
		return c.SendStatus(fiber.StatusFound)
	}

	status, err := cc.binder.GetAssociation(c.Context(), uid)
	if err != nil {
		cc.log.Error("association lookup failed", "uid", uid, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":  "error",
			"message": "Association lookup failed",
		})
	}

	return c.Render("association/association", fiber.Map{
		"Title":      "Linked accounts",
		"Associated": status.Associated,
		"Name":       status.Name,
		"Icon":       status.Icon,
		"BindURL":    status.BindURL,
	})
}

// AuthError renders the generic authentication failure page.
func (cc *ClientCertController) AuthError(c fiber.Ctx) error {
	return c.Render("auth_error/auth_error", fiber.Map{
		"Title": "Authentication failed",
	})
}

// DeleteUserData removes the certificate binding when an account is
// deleted. Accounts without a binding succeed as a no-op.
func (cc *ClientCertController) DeleteUserData(c fiber.Ctx) error {
	uid := middleware.SessionUID(c)
	if uid == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"status":  "error",
			"message": "Not authenticated",
		})
	}

	if _, err := cc.binder.DeleteUserData(c.Context(), uid); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":  "error",
			"message": "Could not remove certificate binding",
		})
	}

	return c.JSON(fiber.Map{
		"status": "success",
		"uid":    uid,
	})
}
