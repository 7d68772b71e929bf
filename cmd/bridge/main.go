package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fitfighter/rigbridge/internal/command"
	"github.com/fitfighter/rigbridge/internal/config"
	"github.com/fitfighter/rigbridge/internal/logging"
	"github.com/fitfighter/rigbridge/internal/rig"
	"github.com/fitfighter/rigbridge/internal/router"
	"github.com/fitfighter/rigbridge/internal/sentry"
	"github.com/fitfighter/rigbridge/internal/services"
	"github.com/fitfighter/rigbridge/internal/store"
	"github.com/fitfighter/rigbridge/internal/transport"
)

func main() {
	// Initialize structured logging (reads LOGGING_LEVEL env var)
	logging.Initialize()

	// Load configuration
	cfg := config.Load()

	// Error tracking (no-op without SENTRY_DSN)
	sentry.Init(cfg.SentryDSN, cfg.SentryEnvironment)

	// Session-result store
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		slog.Error("failed to open result store", slog.Any("error", err))
		os.Exit(1)
	}
	defer st.Close()

	recorder := store.NewRecorder(st)

	// Input pipeline for this rig
	pipeline := rig.NewPipeline(rig.PipelineConfig{
		Dedupe: rig.DeduperConfig{
			Window:        cfg.DedupeWindow,
			SeenTTL:       cfg.DedupeTTL,
			DispatchTTL:   cfg.DispatchCacheTTL,
			SweepInterval: cfg.SweepInterval,
		},
		OnSessionEnd: recorder.HandleSessionEnd,
		OnStatus: func(kind rig.Kind, info rig.TopicInfo, payload []byte) {
			slog.Debug("rig status update",
				slog.String("kind", kind.String()),
				slog.String("rig_id", info.RigID),
				slog.String("device_id", info.DeviceID))
		},
		OnFallback: func(topic string, payload []byte) {
			slog.Debug("unclassified message", slog.String("topic", topic))
		},
	})
	defer pipeline.Close()

	// Broker session: the bridge connects with its own account
	session := transport.New(transport.Config{
		BrokerURL:    cfg.BrokerURL,
		RigID:        cfg.RigID,
		ClientID:     fmt.Sprintf("bridge-%s", cfg.RigID),
		KeepAlive:    cfg.KeepAlive,
		ReconnectMax: cfg.ReconnectMax,
		Credentials: transport.StaticCredentials{
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
		},
		OnMessage: pipeline.HandleMessage,
	})
	defer session.Close()

	subscriptions := []string{
		fmt.Sprintf("rig/%s/events", cfg.RigID),
		fmt.Sprintf("rig/%s/status", cfg.RigID),
		fmt.Sprintf("rig/%s/command/response", cfg.RigID),
		"device/+/btn",
		"device/+/status",
		"session/+/result",
	}
	for _, pattern := range subscriptions {
		if err := session.Subscribe(pattern); err != nil {
			slog.Error("subscribe failed", slog.String("pattern", pattern), slog.Any("error", err))
		}
	}

	// The broker may not be up yet when the bridge boots; keep trying in
	// the background while the HTTP API serves (health reports MQTT down).
	go connectWithBackoff(session, cfg.BrokerURL)

	publisher := command.New(session, cfg.CommandWait)
	tokens := services.NewTokenService(cfg.TokenSecret, cfg.TokenTTL)

	// Create router
	r := router.New(cfg, session, publisher, tokens, st)

	// Start server
	addr := ":" + cfg.Port
	slog.Info("starting bridge", slog.String("addr", addr), slog.String("rig_id", cfg.RigID))

	if err := http.ListenAndServe(addr, r); err != nil {
		slog.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// connectWithBackoff opens the broker session, retrying with exponential
// backoff for as long as it takes. Once Open succeeds the session's own
// reconnect logic takes over.
func connectWithBackoff(session *transport.Session, brokerURL string) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0 // retry until it works

	err := backoff.RetryNotify(
		func() error {
			err := session.Open(context.Background())
			// A credential failure is terminal for the attempt and will not
			// fix itself by waiting; bail out instead of hammering.
			var credErr *transport.CredentialError
			if errors.As(err, &credErr) {
				return backoff.Permanent(err)
			}
			return err
		},
		policy,
		func(err error, next time.Duration) {
			slog.Warn("broker connect failed",
				slog.String("broker", brokerURL),
				slog.Duration("retry_in", next),
				slog.Any("error", err))
		},
	)
	if err != nil {
		slog.Error("broker connect abandoned", slog.Any("error", err))
	}
}
