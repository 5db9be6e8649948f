package host

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/smazurov/ezvizbridge/internal/events"
	"github.com/smazurov/ezvizbridge/internal/executor"
	"github.com/smazurov/ezvizbridge/internal/metrics"
)

// DefaultScanInterval is used when the poller is given no interval.
const DefaultScanInterval = 30 * time.Second

// Pollable is an entity the poller can refresh.
type Pollable interface {
	EntityID() string
	Serial() string
	ShouldPoll() bool
	Available() bool
	Attributes() map[string]any
	Update(ctx context.Context) error
}

// Poller refreshes entities on an interval using the executor pool.
type Poller struct {
	source   func() []Pollable
	pool     *executor.Pool
	bus      *events.Bus
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	inflight map[string]bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewPoller creates a poller over the entities returned by source.
func NewPoller(source func() []Pollable, pool *executor.Pool, bus *events.Bus, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		source:   source,
		pool:     pool,
		bus:      bus,
		interval: interval,
		logger:   logger,
		inflight: make(map[string]bool),
	}
}

// Start polls once immediately and then every interval until Stop.
func (p *Poller) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.PollAll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.PollAll(ctx)
			}
		}
	}()
	p.logger.Info("Poller started", "interval", p.interval)
}

// Stop ends the poll loop and waits for in-flight polls.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

// PollAll submits one poll per pollable entity. Entities still being polled
// from a previous round are skipped.
func (p *Poller) PollAll(ctx context.Context) {
	for _, e := range p.source() {
		if !e.ShouldPoll() {
			continue
		}
		id := e.EntityID()

		p.mu.Lock()
		if p.inflight[id] {
			p.mu.Unlock()
			p.logger.Debug("Previous poll still running, skipping", "entity_id", id)
			continue
		}
		p.inflight[id] = true
		p.mu.Unlock()

		p.wg.Add(1)
		err := p.pool.Submit(ctx, func(ctx context.Context) {
			defer p.done(id)
			if ctx.Err() != nil {
				return
			}
			p.poll(ctx, e)
		})
		if err != nil {
			p.done(id)
			p.logger.Debug("Poll not scheduled", "entity_id", id, "error", err)
		}
	}
}

func (p *Poller) done(id string) {
	p.mu.Lock()
	delete(p.inflight, id)
	p.mu.Unlock()
	p.wg.Done()
}

func (p *Poller) poll(ctx context.Context, e Pollable) {
	beforeAvail := e.Available()
	beforeAttrs := e.Attributes()

	err := e.Update(ctx)
	metrics.RecordPoll(e.EntityID(), e.Available(), err)
	if err != nil {
		p.logger.Warn("Camera poll failed", "entity_id", e.EntityID(), "serial", e.Serial(), "error", err)
		return
	}

	avail := e.Available()
	attrs := e.Attributes()
	if avail == beforeAvail && reflect.DeepEqual(attrs, beforeAttrs) {
		return
	}

	p.logger.Debug("Camera state changed", "entity_id", e.EntityID(), "available", avail)
	if p.bus != nil {
		p.bus.Publish(events.CameraStateChangedEvent{
			EntityID:   e.EntityID(),
			Serial:     e.Serial(),
			Available:  avail,
			Attributes: attrs,
			Timestamp:  time.Now().Format(time.RFC3339),
		})
	}
}
