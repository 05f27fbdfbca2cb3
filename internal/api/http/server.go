package http

import "github.com/gofiber/fiber/v2"

// NewApp returns a fiber app that renders escaped errors in the response
// envelope.
func NewApp(name string) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:               name,
		ErrorHandler:          ErrorHandler,
		DisableStartupMessage: true,
	})
}
