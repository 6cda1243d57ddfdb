package gateway

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	"github.com/pharmacare/go-session"
)

//go:embed views
var viewsFS embed.FS

// NewViewEngine returns the django engine over the embedded views.
func NewViewEngine() (*django.Engine, error) {
	sub, err := fs.Sub(viewsFS, "views")
	if err != nil {
		return nil, err
	}
	registerTemplateHelpers()
	return django.NewFileSystem(http.FS(sub), ".html"), nil
}

// NewApp returns a fiber app serving the controller routes.
func NewApp(controller *Controller) (*fiber.App, error) {
	engine, err := NewViewEngine()
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		Views:                 engine,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			controller.Logger.Error("%s %s: %v", c.Method(), c.Path(), err)
			return c.Status(code).JSON(session.ErrorBody{
				Status:  code,
				Message: err.Error(),
			})
		},
	})

	controller.Register(app)
	return app, nil
}
