// Package publisher buffers security events in memory and flushes them to a
// sink in batches, diverting to a fallback sink while the primary is failing.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	audit "tollgate/pkg/platform/audit"
	"tollgate/pkg/platform/circuit"
	"tollgate/pkg/requestcontext"

	"github.com/google/uuid"
)

const (
	defaultBufferSize    = 10000
	defaultBatchSize     = 100
	defaultFlushInterval = time.Second
	closeTimeout         = 5 * time.Second
)

// Publisher is a non-blocking audit.SecurityAuditor.
type Publisher struct {
	primary  audit.Sink
	fallback audit.Sink
	buf      *ring[audit.SecurityEvent]
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *Metrics

	batchSize int
	interval  time.Duration

	wake      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

// WithFallback sets the sink used while the primary breaker is open.
// Defaults to a LogSink on the publisher's logger.
func WithFallback(s audit.Sink) Option {
	return func(p *Publisher) { p.fallback = s }
}

func WithBufferSize(n int) Option {
	return func(p *Publisher) { p.buf = newRing[audit.SecurityEvent](n) }
}

func WithBatchSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(p *Publisher) { p.breaker = b }
}

// New starts the flush loop. Callers must Close the publisher to drain it.
func New(primary audit.Sink, opts ...Option) *Publisher {
	p := &Publisher{
		primary:   primary,
		logger:    slog.Default(),
		batchSize: defaultBatchSize,
		interval:  defaultFlushInterval,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.buf == nil {
		p.buf = newRing[audit.SecurityEvent](defaultBufferSize)
	}
	if p.breaker == nil {
		p.breaker = circuit.New("audit-security-sink")
	}
	if p.fallback == nil {
		p.fallback = NewLogSink(p.logger)
	}
	go p.run()
	return p
}

// Emit enqueues the event, evicting the oldest buffered event when full.
func (p *Publisher) Emit(ctx context.Context, event audit.SecurityEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.Severity == "" {
		event.Severity = event.Action.DefaultSeverity()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	if p.buf.push(event) {
		p.metrics.incDropped()
	}
	p.metrics.incEmitted(event.Action)

	if p.buf.len() >= p.batchSize {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
}

// Pending reports the number of buffered events.
func (p *Publisher) Pending() int { return p.buf.len() }

// Dropped reports how many events were evicted by buffer overflow.
func (p *Publisher) Dropped() int64 { return p.buf.droppedCount() }

// Close stops the flush loop after draining the buffer.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		close(p.stop)
		<-p.done
	})
}

func (p *Publisher) run() {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.flush(context.Background(), false)
		case <-p.wake:
			p.flush(context.Background(), false)
		case <-p.stop:
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			p.flush(ctx, true)
			cancel()
			return
		}
	}
}

// flush delivers buffered events batch by batch. When final is set, a batch
// the primary rejects goes straight to the fallback instead of being retried.
func (p *Publisher) flush(ctx context.Context, final bool) {
	for {
		batch := p.buf.pop(p.batchSize)
		if len(batch) == 0 {
			return
		}
		if !p.deliver(ctx, batch, final) {
			return
		}
	}
}

// deliver reports whether flushing should continue with the next batch.
func (p *Publisher) deliver(ctx context.Context, batch []audit.SecurityEvent, final bool) bool {
	err := p.primary.Write(ctx, batch)
	if err == nil {
		p.metrics.addPublished(len(batch))
		if _, change := p.breaker.RecordSuccess(); change.Closed {
			p.metrics.setBreakerOpen(false)
			p.logger.InfoContext(ctx, "audit sink recovered", "breaker", p.breaker.Name())
		}
		return true
	}

	p.metrics.incSinkFailure()
	useFallback, change := p.breaker.RecordFailure()
	if change.Opened {
		p.metrics.setBreakerOpen(true)
		p.logger.WarnContext(ctx, "audit sink failing, diverting to fallback",
			"breaker", p.breaker.Name(),
			"error", err,
		)
	}
	if !useFallback && !final {
		for _, ev := range batch {
			if p.buf.push(ev) {
				p.metrics.incDropped()
			}
		}
		return false
	}
	if ferr := p.fallback.Write(ctx, batch); ferr != nil {
		p.logger.ErrorContext(ctx, "audit fallback sink failed", "error", ferr, "events", len(batch))
	}
	return true
}
