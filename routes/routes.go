package routes

import (
	Controllers "github.com/addspin/certgate/controllers"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/static"
)

func Setup(app *fiber.App, clientCert *Controllers.ClientCertController) {

	app.Get("/*", static.New("./static"))
	app.Get("/", Controllers.Index)
	app.Get("/index", Controllers.Index)
	app.Get("/logout", Controllers.LogoutController)

	app.Get("/auth/client-cert", clientCert.Authenticate)
	app.Post("/auth/client-cert", clientCert.Authenticate)
	app.Get("/auth/client-cert/error", clientCert.AuthError)
	app.Get("/auth/client-cert/association", clientCert.Association)

	app.Post("/api/v1/account/delete", clientCert.DeleteUserData)
}
