// Package sentry provides error-tracking setup and data scrubbing so MQTT
// credentials and minted tokens are never transmitted to Sentry.
package sentry

import (
	"log/slog"

	"github.com/getsentry/sentry-go"
)

// sensitiveHeaders are HTTP headers that should be redacted from Sentry events.
var sensitiveHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
	"Set-Cookie":    true,
}

// sensitiveKeys are field names that may contain sensitive data in tags or breadcrumb metadata.
var sensitiveKeys = map[string]bool{
	"password":      true,
	"token":         true,
	"secret":        true,
	"mqttPassword":  true,
	"mqttUsername":  true,
	"jwt":           true,
	"authorization": true,
	"cookie":        true,
}

// Init configures the Sentry client when a DSN is set. With an empty DSN it
// is a no-op, so local development never phones home.
func Init(dsn, environment string) {
	if dsn == "" {
		return
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		BeforeSend:  ScrubEvent,
	})
	if err != nil {
		slog.Error("sentry initialization failed", slog.Any("error", err))
		return
	}
	slog.Info("sentry enabled", slog.String("environment", environment))
}

// ScrubEvent removes sensitive data from a Sentry event before it is sent.
// It redacts sensitive headers, strips request bodies, and scrubs tags.
func ScrubEvent(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	// Scrub request data
	if event.Request != nil {
		// Redact sensitive headers
		for header := range event.Request.Headers {
			if sensitiveHeaders[header] {
				event.Request.Headers[header] = "[Filtered]"
			}
		}
		// Strip request bodies entirely; telling harmless command payloads
		// apart from token responses is not worth the risk.
		event.Request.Data = ""
	}

	// Scrub sensitive keys in tags
	for key := range event.Tags {
		if sensitiveKeys[key] {
			event.Tags[key] = "[Filtered]"
		}
	}

	// Scrub breadcrumb data
	for i := range event.Breadcrumbs {
		for key := range event.Breadcrumbs[i].Data {
			if sensitiveKeys[key] {
				event.Breadcrumbs[i].Data[key] = "[Filtered]"
			}
		}
	}

	return event
}
