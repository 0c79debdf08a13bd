package main

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"clienttabs/internal/auth"
	"clienttabs/internal/config"
)

func initSentry(cfg config.SentryConfig) error {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		AttachStacktrace: true,
	})
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}
	return nil
}

func flushSentry() {
	sentry.Flush(5 * time.Second)
}

// captureError reports an unexpected error with the request it failed on.
func captureError(c *fiber.Ctx, err error) {
	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("method", c.Method())
		scope.SetTag("route", c.Route().Path)
		if op := auth.GetOperator(c); op != nil {
			scope.SetUser(sentry.User{ID: op.ID})
		}
	})
	hub.CaptureException(err)
}
