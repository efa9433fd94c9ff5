package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tOgg1/msgindex/internal/actions"
	"github.com/tOgg1/msgindex/internal/events"
	"github.com/tOgg1/msgindex/internal/logging"
)

// Dispatcher errors.
var (
	ErrDispatcherClosed         = errors.New("dispatcher closed")
	ErrDispatcherAlreadyRunning = errors.New("dispatcher already running")
)

// DispatcherConfig contains configuration for the Dispatcher.
type DispatcherConfig struct {
	// QueueSize bounds the number of actions waiting to be applied.
	// Default: 256
	QueueSize int

	// SelfUserID fills NewMessage.OwnUserID when the producer left it zero
	// and strips self from direct narrows.
	SelfUserID int64
}

// DefaultDispatcherConfig returns sensible defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{QueueSize: 256}
}

// Sink receives every state that differs from its predecessor, typically
// a debounced snapshot writer. SaveSoon must not block.
type Sink interface {
	SaveSoon(State)
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSink registers a sink for changed states.
func WithSink(sink Sink) DispatcherOption {
	return func(d *Dispatcher) {
		d.sink = sink
	}
}

// WithPublisher replaces the default in-memory publisher.
func WithPublisher(p *events.InMemoryPublisher) DispatcherOption {
	return func(d *Dispatcher) {
		d.publisher = p
	}
}

type request struct {
	action actions.Action
	done   chan error
}

// Dispatcher is the single in-order queue in front of Apply. Producers
// may call Dispatch from any goroutine; one goroutine applies actions in
// arrival order and swaps the state atomically, then notifies
// subscribers. State is safe to call at any time.
type Dispatcher struct {
	config    DispatcherConfig
	publisher *events.InMemoryPublisher
	sink      Sink
	logger    zerolog.Logger

	state atomic.Pointer[State]
	seq   atomic.Uint64
	queue chan request

	mu      sync.Mutex
	running bool
	closed  chan struct{}
	// stopped is closed once nothing will apply queued requests any more.
	stopped chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher starting from initial.
func NewDispatcher(config DispatcherConfig, initial State, opts ...DispatcherOption) *Dispatcher {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultDispatcherConfig().QueueSize
	}

	d := &Dispatcher{
		config:    config,
		publisher: events.NewInMemoryPublisher(),
		logger:    logging.Component("dispatcher"),
		queue:     make(chan request, config.QueueSize),
		closed:    make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.state.Store(&initial)
	return d
}

// Start begins applying queued actions.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	select {
	case <-d.closed:
		return ErrDispatcherClosed
	default:
	}
	if d.running {
		return ErrDispatcherAlreadyRunning
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.running = true

	d.logger.Debug().Int("queue_size", d.config.QueueSize).Msg("dispatcher starting")

	d.wg.Add(1)
	go d.runLoop()
	return nil
}

// Stop applies whatever is already queued, then halts. Later Dispatch
// calls fail with ErrDispatcherClosed.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	select {
	case <-d.closed:
		d.mu.Unlock()
		d.wg.Wait()
		return ErrDispatcherClosed
	default:
	}
	close(d.closed)
	wasRunning := d.running
	d.running = false
	d.mu.Unlock()

	if wasRunning {
		d.wg.Wait()
		d.cancel()
	} else {
		close(d.stopped)
		d.rejectQueued()
	}
	d.logger.Debug().Uint64("seq", d.seq.Load()).Msg("dispatcher stopped")
	return nil
}

// Dispatch queues an action. It blocks only while the queue is full.
func (d *Dispatcher) Dispatch(ctx context.Context, a actions.Action) error {
	return d.enqueue(ctx, request{action: a})
}

// DispatchSync queues an action and waits until it has been applied and
// subscribers have been notified. It returns the validation error for a
// malformed action. Do not call it from a subscriber.
func (d *Dispatcher) DispatchSync(ctx context.Context, a actions.Action) error {
	req := request{action: a, done: make(chan error, 1)}
	if err := d.enqueue(ctx, req); err != nil {
		return err
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) enqueue(ctx context.Context, req request) error {
	select {
	case <-d.closed:
		return ErrDispatcherClosed
	default:
	}
	select {
	case d.queue <- req:
	case <-d.closed:
		return ErrDispatcherClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-d.stopped:
		// Sent after the loop exited: nothing will apply it.
		d.rejectQueued()
		return ErrDispatcherClosed
	default:
		return nil
	}
}

// State returns the current state. The value is immutable.
func (d *Dispatcher) State() State {
	return *d.state.Load()
}

// Seq returns the number of actions applied so far.
func (d *Dispatcher) Seq() uint64 {
	return d.seq.Load()
}

// Subscribe registers handler for changes matching filter and returns the
// subscription id. Handlers run on the dispatcher goroutine after the new
// state is visible.
func (d *Dispatcher) Subscribe(filter events.Filter, handler events.ChangeHandler) (string, error) {
	id := uuid.NewString()
	if err := d.publisher.Subscribe(id, filter, handler); err != nil {
		return "", err
	}
	return id, nil
}

// Unsubscribe removes a subscription.
func (d *Dispatcher) Unsubscribe(id string) error {
	return d.publisher.Unsubscribe(id)
}

func (d *Dispatcher) runLoop() {
	defer d.wg.Done()

	for {
		if d.ctx.Err() != nil {
			d.abandon()
			return
		}
		select {
		case req := <-d.queue:
			d.handle(req)
		case <-d.closed:
			d.drain()
			close(d.stopped)
			d.drain()
			return
		case <-d.ctx.Done():
			d.abandon()
			return
		}
	}
}

// abandon closes the dispatcher after its context ended. Queued requests
// fail with ErrDispatcherClosed instead of being applied.
func (d *Dispatcher) abandon() {
	d.mu.Lock()
	select {
	case <-d.closed:
	default:
		close(d.closed)
	}
	d.running = false
	d.mu.Unlock()

	close(d.stopped)
	d.rejectQueued()
	d.cancel()
	d.logger.Warn().Err(context.Cause(d.ctx)).Uint64("seq", d.seq.Load()).Msg("dispatcher context done, rejecting queued actions")
}

func (d *Dispatcher) rejectQueued() {
	for {
		select {
		case req := <-d.queue:
			if req.done != nil {
				req.done <- ErrDispatcherClosed
			}
		default:
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case req := <-d.queue:
			d.handle(req)
		default:
			return
		}
	}
}

func (d *Dispatcher) handle(req request) {
	err := d.apply(req.action)
	if req.done != nil {
		req.done <- err
	}
}

func (d *Dispatcher) apply(a actions.Action) error {
	if err := actions.Validate(a); err != nil {
		event := d.logger.Warn().Err(err)
		if a != nil {
			event = event.Str("action", string(a.Type()))
		}
		event.Msg("skipping malformed action")
		return err
	}

	a = actions.ForSelf(a, d.config.SelfUserID)

	prev := d.State()
	next := Apply(prev, a)
	d.state.Store(&next)
	seq := d.seq.Add(1)

	noop := Unchanged(prev, next)
	if d.sink != nil && !PersistentUnchanged(prev, next) {
		d.sink.SaveSoon(next)
	}

	d.logger.Trace().Uint64("seq", seq).Str("action", string(a.Type())).Bool("noop", noop).Msg("applied")
	if start, ok := a.(actions.OutboxSendStart); ok {
		d.logger.Debug().
			Int64("local_id", start.Entry.LocalID).
			Str("narrow", start.Entry.Narrow.String()).
			Str("content", logging.Preview(start.Entry.Content, 40)).
			Bool("queued", !noop).
			Msg("outbox send started")
	}

	d.publisher.Publish(d.ctx, &events.Change{
		Seq:        seq,
		ActionType: a.Type(),
		Narrows:    ChangedNarrows(prev, next),
		Noop:       noop,
		At:         time.Now().UTC(),
	})
	return nil
}
