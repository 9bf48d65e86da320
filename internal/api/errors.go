package api

import (
	"github.com/ermrest-eu/ermrestd/internal/apierr"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// writeError renders err as the JSON error body spec.md §7 assigns its
// apierr.Kind, logging server-side failures (5xx, and anything without a
// recognized Kind) the way the teacher's customErrorHandler does.
func writeError(c *fiber.Ctx, err error) error {
	kind, ok := apierr.KindOf(err)
	if !ok {
		log.Error().Err(err).Str("path", c.Path()).Msg("unhandled internal error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal Server Error",
			"code":  fiber.StatusInternalServerError,
		})
	}

	status := kind.HTTPStatus()
	var apiErr *apierr.Error
	if e, matches := err.(*apierr.Error); matches {
		apiErr = e
	}

	if status >= 500 {
		log.Error().Err(err).Str("path", c.Path()).Str("kind", string(kind)).Msg("server error")
	}

	message := err.Error()
	if apiErr != nil {
		message = apiErr.Message
	}

	if status == fiber.StatusNotModified {
		return c.SendStatus(status)
	}

	return c.Status(status).JSON(fiber.Map{
		"error": message,
		"code":  status,
		"kind":  string(kind),
	})
}

// customErrorHandler is Fiber's global ErrorHandler; every error a handler
// returns ends up here. Errors carrying an apierr kind are rendered by
// writeError; anything else (a panic recovered by the recover middleware, a
// raw Fiber routing error) gets a generic JSON body with its Fiber status or 500.
func customErrorHandler(c *fiber.Ctx, err error) error {
	if _, ok := apierr.KindOf(err); ok {
		return writeError(c, err)
	}

	code := fiber.StatusInternalServerError
	message := "Internal Server Error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	if code >= 500 {
		log.Error().Err(err).Str("path", c.Path()).Msg("server error")
	}

	return c.Status(code).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}
