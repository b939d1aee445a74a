// Package publisher delivers audit events to a Store, synchronously by
// default or through a buffered channel when async mode is enabled.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	id "fusionledger/pkg/domain"
	audit "fusionledger/pkg/platform/audit"
)

// Publisher fans audit events out to its store. In async mode events are
// queued on a buffered channel and drained by a single worker goroutine;
// Close drains the queue before returning.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	breaker *CircuitBreaker

	inbox     chan audit.Event
	closeOnce sync.Once
	done      chan struct{}

	// mu guards closed. Sends on inbox happen only under the read lock, so
	// Close can flip closed and shut the channel without racing a send.
	mu     sync.RWMutex
	closed bool
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAsyncBuffer enables async delivery with the given channel capacity.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan audit.Event, size)
		}
	}
}

// WithLogger sets the logger used for delivery failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithCircuitBreaker guards store appends; while open, events are dropped
// with a log line instead of piling up behind a failing store.
func WithCircuitBreaker(breaker *CircuitBreaker) Option {
	return func(p *Publisher) {
		p.breaker = breaker
	}
}

// NewPublisher constructs a publisher over the given store.
func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		go p.drain()
	}
	return p
}

// Emit delivers an audit event. Sync mode appends directly and returns the
// store error; async mode enqueues and falls back to a synchronous append
// when the buffer is full, so no event is silently lost.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	if p.inbox == nil {
		return p.append(ctx, event)
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return p.append(ctx, event)
	}
	select {
	case p.inbox <- event:
		p.mu.RUnlock()
		return nil
	default:
		p.mu.RUnlock()
		return p.append(ctx, event)
	}
}

// List returns events for a subject, for callers that hold only the publisher.
func (p *Publisher) List(ctx context.Context, subjectID id.SubjectID) ([]audit.Event, error) {
	return p.store.ListBySubject(ctx, subjectID)
}

// Close stops the worker after draining queued events. Safe to call twice;
// Emit after (or racing) Close degrades to a synchronous append instead of
// panicking on the shut channel.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		if p.inbox == nil {
			close(p.done)
			return
		}
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.inbox)
		<-p.done
	})
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.inbox {
		if err := p.append(context.Background(), event); err != nil {
			p.logger.Error("audit event delivery failed",
				"action", event.Action,
				"subject_id", event.SubjectID,
				"error", err,
			)
		}
	}
}

func (p *Publisher) append(ctx context.Context, event audit.Event) error {
	if p.breaker != nil && !p.breaker.Allow() {
		p.logger.Warn("audit circuit open, dropping event",
			"action", event.Action,
			"subject_id", event.SubjectID,
		)
		return nil
	}
	err := p.store.Append(ctx, event)
	if p.breaker != nil {
		if err != nil {
			p.breaker.RecordFailure()
		} else {
			p.breaker.RecordSuccess()
		}
	}
	return err
}
