// Package command builds and sends outbound rig commands (start/stop with
// game parameters) through the transport session.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fitfighter/rigbridge/internal/transport"
)

// ErrInvalidArgument is returned when a required command field is missing.
// Invalid commands never reach the transport.
var ErrInvalidArgument = errors.New("command: missing required argument")

// Transport is the slice of the session API the publisher needs.
type Transport interface {
	State() transport.ConnState
	Publish(topic string, payload []byte, requireAck bool) error
}

// envelope is the wire-exact outbound command body.
type envelope struct {
	Cmd     string         `json:"cmd"`
	Payload map[string]any `json:"payload"`
	TS      float64        `json:"ts"`
}

// Publisher sends validated commands to rig/{rigId}/command, refusing to
// send unless the transport reports Connected. It waits a bounded time for
// the connection (so a UI caller gets a timely failure instead of a hang)
// and never retries on its own; the caller decides whether to prompt the
// player to retry.
type Publisher struct {
	tr       Transport
	wait     time.Duration
	interval time.Duration
}

// DefaultWait bounds how long Send polls for a Connected transport.
const DefaultWait = 2500 * time.Millisecond

// New creates a Publisher over tr. A non-positive wait takes DefaultWait.
func New(tr Transport, wait time.Duration) *Publisher {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &Publisher{tr: tr, wait: wait, interval: 100 * time.Millisecond}
}

// Send publishes {cmd, payload, ts} to the rig's command topic with an
// acknowledged publish. It returns ErrInvalidArgument for a missing rig ID
// or command name, and transport.ErrNotConnected when the session did not
// reach Connected within the bounded wait.
func (p *Publisher) Send(ctx context.Context, rigID, cmd string, params map[string]any) error {
	if rigID == "" || cmd == "" {
		return fmt.Errorf("%w: rigID and cmd are required", ErrInvalidArgument)
	}

	if err := p.awaitConnected(ctx); err != nil {
		return err
	}

	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(envelope{
		Cmd:     cmd,
		Payload: params,
		TS:      float64(time.Now().UnixNano()) / float64(time.Second),
	})
	if err != nil {
		return fmt.Errorf("command: encode %s: %w", cmd, err)
	}

	topic := fmt.Sprintf("rig/%s/command", rigID)
	return p.tr.Publish(topic, body, true)
}

func (p *Publisher) awaitConnected(ctx context.Context) error {
	if p.tr.State() == transport.Connected {
		return nil
	}

	deadline := time.Now().Add(p.wait)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if p.tr.State() == transport.Connected {
				return nil
			}
			if time.Now().After(deadline) {
				return transport.ErrNotConnected
			}
		}
	}
}
