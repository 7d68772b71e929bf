package rig

import (
	"errors"
	"log/slog"
	"sync"
)

// StatusHandler receives rig-status and command-response payloads. These
// feed the surrounding application (status badges, bridge diagnostics), not
// gameplay.
type StatusHandler func(kind Kind, info TopicInfo, payload []byte)

// SessionEndHandler receives end-of-game result payloads.
type SessionEndHandler func(info TopicInfo, payload []byte)

// FallbackHandler receives messages whose topic matched no known pattern.
// Unknown traffic is handed over rather than dropped so it stays
// observable.
type FallbackHandler func(topic string, payload []byte)

// PipelineConfig wires a Pipeline's tunables and out-of-band consumers.
// All handler fields are optional.
type PipelineConfig struct {
	Dedupe       DeduperConfig
	OnStatus     StatusHandler
	OnSessionEnd SessionEndHandler
	OnFallback   FallbackHandler
}

// Pipeline is the ingestion path for one rig session:
//
//	transport → Classify → Normalize → Deduper → Registry → listeners
//
// Everything inside it fails closed: a malformed or duplicate message is
// dropped (and logged) instead of interrupting the stream for the other
// listeners. HandleMessage is the transport's message callback; the
// transport delivers messages one at a time, so the dedup decision for
// event N is recorded before event N+1 is examined.
type Pipeline struct {
	cfg      PipelineConfig
	dedupe   *Deduper
	registry *Registry

	mu     sync.Mutex
	closed bool
}

// NewPipeline creates a pipeline bound to one rig session. Close it when
// the session's transport is torn down.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		dedupe:   NewDeduper(cfg.Dedupe),
		registry: NewRegistry(),
	}
}

// AddListener registers a gameplay consumer for accepted pad events and
// returns its removal function.
func (p *Pipeline) AddListener(fn Listener) func() {
	return p.registry.AddListener(fn)
}

// HandleMessage ingests one transport message. It never returns an error
// and never panics outward: the ingestion path drops what it cannot use.
func (p *Pipeline) HandleMessage(topic string, payload []byte) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	kind, info := Classify(topic)

	switch kind {
	case KindPadEvent:
		p.handlePadEvent(topic, payload)

	case KindSessionEnd:
		if p.cfg.OnSessionEnd != nil {
			p.cfg.OnSessionEnd(info, payload)
		}

	case KindRigStatus, KindCommandResponse:
		if p.cfg.OnStatus != nil {
			p.cfg.OnStatus(kind, info, payload)
		}

	default:
		if p.cfg.OnFallback != nil {
			p.cfg.OnFallback(topic, payload)
		}
	}
}

func (p *Pipeline) handlePadEvent(topic string, payload []byte) {
	ev, err := Normalize(payload)
	if err != nil {
		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) {
			slog.Warn("discarded malformed pad event",
				slog.String("topic", topic),
				slog.Any("error", err))
		} else {
			slog.Warn("rejected pad event",
				slog.String("topic", topic),
				slog.Any("error", err))
		}
		return
	}

	if !p.dedupe.Accept(ev) {
		slog.Debug("suppressed duplicate pad event",
			slog.Int("pad", ev.Pad),
			slog.String("origin", ev.Origin))
		return
	}

	p.registry.Dispatch(*ev)
}

// Close stops the pipeline's eviction sweep and detaches it from further
// message delivery. Idempotent; after Close returns no listener is invoked
// again.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.dedupe.Close()
}
