// Package ingest turns inbound visit events into persisted records and
// broadcast messages.
//
// Callers fire and forget: Ingest enqueues onto a buffered channel and a
// single run goroutine executes classify -> append -> broadcast for each
// event. Running the steps on one goroutine keeps ingestions atomic with
// respect to each other and guarantees that broadcasts happen in
// persistence order.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/waio/crawlwatch/internal/classifier"
	"github.com/waio/crawlwatch/internal/metrics"
	"github.com/waio/crawlwatch/internal/storage"
	"github.com/waio/crawlwatch/internal/visit"
)

const (
	defaultBufferSize = 1024
	dropLogInterval   = 5 * time.Second
)

// Clock supplies event timestamps; swappable for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Broadcaster receives every successfully persisted record. The registry
// implements it; broadcast must not block ingestion for long.
type Broadcaster interface {
	Broadcast(rec visit.Record)
}

// Config controls pipeline behavior.
//   - BufferSize: size of the event channel (default 1024).
//   - PersistUnknown: when false, visits classified as unknown are dropped
//     instead of logged. Defaults off; the service config enables it.
//   - BaseContext: parent context for store calls (defaults to Background).
type Config struct {
	BufferSize     int
	PersistUnknown bool
	BaseContext    context.Context
	Logger         *zap.Logger
	Clock          Clock
}

// Pipeline orchestrates classification, persistence, and fan-out. It is safe
// for concurrent use and Ingest never blocks callers.
type Pipeline struct {
	cfg        Config
	classifier *classifier.Classifier
	store      storage.Store
	feed       Broadcaster
	logger     *zap.Logger

	events chan visit.Event
	stopCh chan struct{}
	doneCh chan struct{}

	dropped   atomic.Int64
	lastWarn  atomic.Int64
	closed    atomic.Bool
	closeOnce sync.Once
}

// New constructs a Pipeline and starts its run goroutine. The returned
// pipeline accepts events immediately.
func New(cl *classifier.Classifier, store storage.Store, feed Broadcaster, cfg Config) *Pipeline {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = utcClock{}
	}
	p := &Pipeline{
		cfg:        cfg,
		classifier: cl,
		store:      store,
		feed:       feed,
		logger:     cfg.Logger,
		events:     make(chan visit.Event, cfg.BufferSize),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	go p.run()
	return p
}

// Ingest enqueues one inbound visit. It never blocks; when the buffer is
// full the event is dropped with a rate-limited warning. Persistence
// failures are handled inside the pipeline and never reach the caller.
func (p *Pipeline) Ingest(evt visit.Event) {
	if p == nil || p.closed.Load() {
		return
	}
	select {
	case p.events <- evt:
	default:
		metrics.ObserveIngestDrop()
		p.dropped.Add(1)
		now := time.Now().UnixNano()
		last := p.lastWarn.Load()
		if now-last >= dropLogInterval.Nanoseconds() && p.lastWarn.CompareAndSwap(last, now) {
			p.logger.Warn("visit events dropped due to backpressure",
				zap.Int64("dropped", p.dropped.Swap(0)))
		}
	}
}

// Close stops intake, drains buffered events, and blocks until the run
// goroutine exits. Safe to call multiple times.
func (p *Pipeline) Close(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.stopCh)
	})
	select {
	case <-p.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ingest pipeline close wait: %w", ctx.Err())
	}
}

func (p *Pipeline) run() {
	defer close(p.doneCh)
	for {
		select {
		case evt := <-p.events:
			p.process(evt)
		case <-p.stopCh:
			for {
				select {
				case evt := <-p.events:
					p.process(evt)
				default:
					return
				}
			}
		}
	}
}

// process executes the classify -> persist -> broadcast sequence for one
// event. A record that failed to persist is never broadcast.
func (p *Pipeline) process(evt visit.Event) {
	identity := p.classifier.Identify(evt.UserAgent)
	if !p.cfg.PersistUnknown && !identity.Automated() {
		return
	}

	rec := visit.Record{
		Timestamp:      p.cfg.Clock.Now().UTC(),
		URL:            evt.URL,
		UserAgent:      evt.UserAgent,
		SourceAddress:  evt.SourceAddress,
		BotName:        identity.Name,
		BotCategory:    identity.Category,
		BotCompany:     identity.Company,
		ResponseTimeMs: evt.ResponseTimeMs,
	}

	id, err := p.store.Append(p.cfg.BaseContext, rec)
	if err != nil {
		// Losing one analytics record must not affect the thing being
		// measured: log, count, and move on.
		metrics.ObserveAppendFailure()
		p.logger.Error("visit append failed",
			zap.String("url", rec.URL),
			zap.String("bot", rec.BotName),
			zap.Error(err))
		return
	}
	rec.ID = id

	metrics.ObserveVisit(string(rec.BotCategory), rec.BotName)
	p.logger.Info("visit",
		zap.Int64("id", rec.ID),
		zap.String("url", rec.URL),
		zap.String("bot", rec.BotName),
		zap.String("category", string(rec.BotCategory)),
		zap.String("source", rec.SourceAddress))

	if p.feed != nil {
		p.feed.Broadcast(rec)
	}
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }
