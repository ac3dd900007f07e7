package main

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/flightcache"
	"github.com/p-blackswan/flightcache/internal/ratelimit"
	"github.com/p-blackswan/flightcache/internal/requestid"
	promexp "github.com/p-blackswan/flightcache/metrics"
)

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func problemResponse(c *fiber.Ctx, status int, kind, title, detail string) error {
	return c.Status(status).JSON(problem{Type: kind, Title: title, Detail: detail})
}

func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		logger.Error().
			Err(err).
			Str("request_id", requestid.FromFiber(c)).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("unhandled error")

		detail := err.Error()
		if code == fiber.StatusInternalServerError {
			detail = "an internal error occurred"
		}
		return problemResponse(c, code, "about:blank", fiber.NewError(code).Message, detail)
	}
}

// newServer wires the fiber app exposing the quote cache over HTTP,
// grounded on the teacher's mgmt.NewServer wiring (recover, request-id,
// rate limiting, structured error responses).
func newServer(cache *flightcache.Cache[quote], invalidation *flightcache.InvalidationSupport[quote], storage flightcache.Storage[quote], metrics *promexp.Metrics, cfg serverConfig, logger zerolog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(requestid.Middleware())
	if cfg.rateLimitRPS > 0 {
		app.Use("/invalidate", ratelimit.Middleware(ratelimit.Config{RPS: cfg.rateLimitRPS, Burst: cfg.rateLimitBurst}))
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/value", func(c *fiber.Ctx) error {
		symbol := c.Query("symbol")
		if symbol == "" {
			return problemResponse(c, fiber.StatusBadRequest, "missing_symbol", "Bad Request", "query parameter \"symbol\" is required")
		}

		force := c.QueryBool("force_refresh", false)

		var (
			q   quote
			err error
		)
		if force {
			q, err = cache.ForceRefresh(c.Context(), symbol)
		} else {
			q, err = cache.Call(c.Context(), symbol)
		}
		if err != nil {
			return problemResponse(c, fiber.StatusServiceUnavailable, "refresh_failed", "Service Unavailable", err.Error())
		}
		return c.JSON(q)
	})

	app.Post("/invalidate", func(c *fiber.Ctx) error {
		symbol := c.Query("symbol")
		if symbol == "" {
			return problemResponse(c, fiber.StatusBadRequest, "missing_symbol", "Bad Request", "query parameter \"symbol\" is required")
		}
		if err := invalidation.InvalidateForArguments(c.Context(), symbol); err != nil {
			return problemResponse(c, fiber.StatusConflict, "invalidate_failed", "Conflict", err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Get("/stats", func(c *fiber.Ctx) error {
		stats := fiber.Map{}
		// Len is an optional capability: the in-memory Storage exposes it
		// directly, a persistent back-end like sqlitestore does not.
		if counter, ok := storage.(interface{ Len() int }); ok {
			stats["entries"] = counter.Len()
		}
		return c.JSON(stats)
	})

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	return app
}
