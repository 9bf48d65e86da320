package api

import (
	"strings"

	"github.com/ermrest-eu/ermrestd/internal/codec"
	"github.com/gofiber/fiber/v2"
)

// negotiateOutput resolves the response representation from the request's
// Accept header, falling back to its Content-Type only when Accept is
// absent or the wildcard "*/*" (spec.md §6.1's resolved PUT/POST output
// open question: output negotiation is independent of the input type).
func negotiateOutput(c *fiber.Ctx) codec.ContentType {
	accept := c.Get(fiber.HeaderAccept)
	if ct, ok := matchContentType(accept); ok {
		return ct
	}

	if accept == "" || strings.Contains(accept, "*/*") {
		if ct, ok := matchContentType(c.Get(fiber.HeaderContentType)); ok {
			return ct
		}
	}

	return codec.JSON
}

// inputContentType resolves the request body's representation from
// Content-Type, defaulting to JSON when absent.
func inputContentType(c *fiber.Ctx) codec.ContentType {
	if ct, ok := matchContentType(c.Get(fiber.HeaderContentType)); ok {
		return ct
	}
	return codec.JSON
}

func matchContentType(header string) (codec.ContentType, bool) {
	for _, part := range strings.Split(header, ",") {
		mt := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		switch mt {
		case string(codec.CSV):
			return codec.CSV, true
		case string(codec.JSON):
			return codec.JSON, true
		}
	}
	return "", false
}
