package rig

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// Dedup defaults. The transport is at-least-once and events can arrive
// through more than one relay path, so both values are tunable via config
// and should be validated against the real hardware's retransmission
// behavior rather than trusted blindly.
const (
	DefaultDedupeWindow     = 80 * time.Millisecond
	DefaultDedupeTTL        = 10 * time.Second
	DefaultDispatchCacheTTL = 5 * time.Second
	DefaultSweepInterval    = 2 * time.Second
)

// DeduperConfig tunes the duplicate-suppression caches. Zero values take
// the package defaults.
type DeduperConfig struct {
	// Window is the time-bucket heuristic for sequence-less events: two
	// events on the same pad inside one window count as one press.
	Window time.Duration

	// SeenTTL bounds how long first-seen records are retained.
	SeenTTL time.Duration

	// DispatchTTL bounds the second-line dispatch cache. It should exceed
	// any plausible retained-message republish delay.
	DispatchTTL time.Duration

	// SweepInterval is how often expired records are evicted.
	SweepInterval time.Duration
}

func (c DeduperConfig) withDefaults() DeduperConfig {
	if c.Window <= 0 {
		c.Window = DefaultDedupeWindow
	}
	if c.SeenTTL <= 0 {
		c.SeenTTL = DefaultDedupeTTL
	}
	if c.DispatchTTL <= 0 {
		c.DispatchTTL = DefaultDispatchCacheTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	return c
}

// dispatchKey identifies one physically distinct event for the dispatch
// cache: the sequence number when present, otherwise the pad plus a coarse
// time bucket derived from the event timestamp.
type dispatchKey struct {
	hasSeq bool
	seq    int64
	pad    int
	bucket int64
}

// Deduper decides, per normalized event, whether it is a first-seen
// occurrence. Two independent caches back the decision: a first-seen cache
// (by sequence number, or by pad for sequence-less events) and a dispatch
// cache with its own, longer retention. A retained message republished
// after the first-seen record expired is still caught by the second cache,
// so the single-delivery guarantee holds across a wider range of replay
// timings than either cache gives alone.
//
// The caches belong to one rig session and are discarded with it.
type Deduper struct {
	cfg DeduperConfig

	mu         sync.Mutex
	seenSeq    map[int64]time.Time
	seenPad    map[int]time.Time
	dispatched map[dispatchKey]time.Time // value is the entry's expiry

	stop     chan struct{}
	stopOnce sync.Once
}

// NewDeduper creates a Deduper and starts its eviction sweep. Callers must
// Close it when the owning session is torn down.
func NewDeduper(cfg DeduperConfig) *Deduper {
	d := &Deduper{
		cfg:        cfg.withDefaults(),
		seenSeq:    make(map[int64]time.Time),
		seenPad:    make(map[int]time.Time),
		dispatched: make(map[dispatchKey]time.Time),
		stop:       make(chan struct{}),
	}
	go d.sweep()
	return d
}

// Accept reports whether ev is a first-seen occurrence and should be
// dispatched. It returns true exactly once per physically distinct event;
// retransmissions, relay duplicates and republished retained messages all
// come back false. Decisions are made and recorded atomically, so the
// outcome for event N is settled before event N+1 is examined.
func (d *Deduper) Accept(ev *InputEvent) bool {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if ev.Seq != nil {
		// The deduper is scoped to one rig session, so the sequence number
		// alone is the key.
		if _, dup := d.seenSeq[*ev.Seq]; dup {
			return false
		}
		d.seenSeq[*ev.Seq] = now
	} else {
		if last, ok := d.seenPad[ev.Pad]; ok && now.Sub(last) < d.cfg.Window {
			return false
		}
		d.seenPad[ev.Pad] = now
	}

	key := d.keyFor(ev)
	if expiry, ok := d.dispatched[key]; ok && now.Before(expiry) {
		return false
	}
	d.dispatched[key] = now.Add(d.cfg.DispatchTTL)
	return true
}

func (d *Deduper) keyFor(ev *InputEvent) dispatchKey {
	if ev.Seq != nil {
		return dispatchKey{hasSeq: true, seq: *ev.Seq}
	}
	bucket := int64(math.Floor(ev.Timestamp / d.cfg.Window.Seconds()))
	return dispatchKey{pad: ev.Pad, bucket: bucket}
}

// Close stops the eviction sweep. Idempotent.
func (d *Deduper) Close() {
	d.stopOnce.Do(func() { close(d.stop) })
}

// sweep evicts expired records on a fixed interval. Retention is bounded by
// time, not event volume, so a runaway producer cannot grow the caches past
// one retention window.
func (d *Deduper) sweep() {
	ticker := time.NewTicker(d.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case now := <-ticker.C:
			d.evict(now)
		}
	}
}

func (d *Deduper) evict(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	evicted := 0
	for seq, seen := range d.seenSeq {
		if now.Sub(seen) > d.cfg.SeenTTL {
			delete(d.seenSeq, seq)
			evicted++
		}
	}
	for pad, seen := range d.seenPad {
		if now.Sub(seen) > d.cfg.SeenTTL {
			delete(d.seenPad, pad)
			evicted++
		}
	}
	for key, expiry := range d.dispatched {
		if now.After(expiry) {
			delete(d.dispatched, key)
			evicted++
		}
	}

	if evicted > 0 {
		slog.Debug("dedupe sweep", slog.Int("evicted", evicted))
	}
}
