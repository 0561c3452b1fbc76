package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"sovren/internal/platform/metrics"
)

var (
	// ErrBufferFull is returned by Emit when the async buffer has no room.
	ErrBufferFull = errors.New("audit buffer full")
	// ErrClosed is returned by Emit after Close.
	ErrClosed = errors.New("audit publisher closed")
)

// Publisher stamps and forwards audit events. By default Emit appends
// synchronously; WithAsyncBuffer hands events to a background worker and drops
// them when the buffer is full.
type Publisher struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	bufferSize int
	inbox      chan Event
	done       chan struct{}
	stop       context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

type PublisherOption func(*Publisher)

// WithAsyncBuffer enables background delivery with a buffer of size n.
func WithAsyncBuffer(n int) PublisherOption {
	return func(p *Publisher) { p.bufferSize = n }
}

func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = logger }
}

func WithPublisherMetrics(m *metrics.Metrics) PublisherOption {
	return func(p *Publisher) { p.metrics = m }
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.inbox = make(chan Event, p.bufferSize)
		p.done = make(chan struct{})
		worker := NewWorker(store, p.inbox, p.logger)
		ctx, stop := context.WithCancel(context.Background())
		p.stop = stop
		go func() {
			defer close(p.done)
			_ = worker.Run(ctx)
		}()
	}
	return p
}

// Emit assigns an ID and timestamp when missing, describes the client from
// its User-Agent and delivers the event.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if event.Client == (Client{}) {
		event.Client = ParseClient(event.UserAgent)
	}

	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.inbox <- event:
		return nil
	default:
		if p.metrics != nil {
			p.metrics.IncrementEventsDropped()
		}
		p.logger.WarnContext(ctx, "audit buffer full, dropping event",
			"action", string(event.Action),
			"did", event.DID,
		)
		return ErrBufferFull
	}
}

// Close stops accepting events and waits for buffered ones to be delivered.
// When ctx ends first, the in-flight append is cancelled, whatever is still
// buffered is abandoned and ctx.Err() is returned.
func (p *Publisher) Close(ctx context.Context) error {
	if p.inbox == nil {
		return nil
	}
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.inbox)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		p.stop()
		return nil
	case <-ctx.Done():
		p.stop()
		p.logger.WarnContext(ctx, "audit publisher closed before draining", "pending", len(p.inbox))
		return ctx.Err()
	}
}
