// Package notify publishes task assignment events to RabbitMQ on a best-effort basis.
//
// The broker is optional: a failed startup connection leaves the Publisher in
// StateFailed for the life of the process and every Publish becomes a no-op.
// Publish never blocks on the network and never reports an error to the caller;
// the Outcome it returns is informational.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/and161185/taskhub/internal/model"
)

// State is the broker connection lifecycle.
type State int32

const (
	StateUninitialized State = iota
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Outcome describes what happened to one Publish call.
type Outcome int

const (
	// OutcomeQueued means the event was handed to the background sender.
	OutcomeQueued Outcome = iota
	// OutcomeSkipped means the broker was unavailable; nothing was sent.
	OutcomeSkipped
	// OutcomeDropped means the send buffer was full.
	OutcomeDropped
	// OutcomeFailed means the event could not be built or encoded.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeQueued:
		return "queued"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDropped:
		return "dropped"
	case OutcomeFailed:
		return "failed"
	default:
		return "outcome(" + strconv.Itoa(int(o)) + ")"
	}
}

// Recorder receives one call per notification outcome. Sender results use
// "sent" and "send_failed" in addition to Outcome names.
type Recorder interface {
	RecordNotification(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordNotification(string) {}

// Config describes the broker endpoint and sender limits.
type Config struct {
	Host           string
	Port           int
	Username       string
	Password       string
	Queue          string
	PublishTimeout time.Duration
	Buffer         int
}

// DefaultConfig returns the local development broker settings.
func DefaultConfig() Config {
	return Config{
		Host:           "localhost",
		Port:           5672,
		Username:       "guest",
		Password:       "guest",
		Queue:          "task_notifications",
		PublishTimeout: 5 * time.Second,
		Buffer:         256,
	}
}

// URL renders the AMQP URL for cfg.
func (c Config) URL() string {
	return amqp.URI{
		Scheme:   "amqp",
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		Vhost:    "/",
	}.String()
}

// Option customizes a Publisher.
type Option func(*Publisher)

// WithDialer replaces the AMQP dialer.
func WithDialer(d Dialer) Option { return func(p *Publisher) { p.dial = d } }

// WithRecorder installs an outcome recorder (metrics).
func WithRecorder(r Recorder) Option { return func(p *Publisher) { p.rec = r } }

// Publisher owns the broker connection and channel for the life of the process.
// It is safe for concurrent use.
type Publisher struct {
	cfg  Config
	log  *zap.Logger
	dial Dialer
	rec  Recorder
	now  func() time.Time

	state atomic.Int32
	conn  Connection
	ch    Channel

	mu      sync.RWMutex // guards queue sends against close
	closed  bool
	queue   chan []byte
	started bool
	done    chan struct{}
}

// NewPublisher constructs an uninitialized Publisher.
func NewPublisher(cfg Config, log *zap.Logger, opts ...Option) *Publisher {
	def := DefaultConfig()
	if cfg.Queue == "" {
		cfg.Queue = def.Queue
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}
	p := &Publisher{
		cfg:   cfg,
		log:   log.Named("notify"),
		dial:  DialAMQP(10 * time.Second),
		rec:   nopRecorder{},
		now:   time.Now,
		queue: make(chan []byte, cfg.Buffer),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// State reports the lifecycle state.
func (p *Publisher) State() State { return State(p.state.Load()) }

// Available reports whether a publish attempted now would reach the broker.
func (p *Publisher) Available() bool {
	return p.State() == StateConnected && !p.conn.IsClosed() && !p.ch.IsClosed()
}

// Init connects and declares the durable notification queue. Failures are
// logged and leave the Publisher in StateFailed; they are never returned.
// Only the first call has an effect.
func (p *Publisher) Init(ctx context.Context) State {
	if !p.state.CompareAndSwap(int32(StateUninitialized), int32(StateFailed)) {
		return p.State()
	}
	if err := ctx.Err(); err != nil {
		p.log.Warn("broker init cancelled; notifications disabled", zap.Error(err))
		return StateFailed
	}

	conn, err := p.dial(p.cfg.URL())
	if err != nil {
		p.log.Warn("broker unavailable; notifications disabled",
			zap.String("host", p.cfg.Host), zap.Int("port", p.cfg.Port), zap.Error(err))
		return StateFailed
	}
	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn("broker channel open failed; notifications disabled", zap.Error(err))
		p.closeQuietly("connection", conn.Close)
		return StateFailed
	}
	// durable, non-auto-delete, non-exclusive
	if _, err := ch.QueueDeclare(p.cfg.Queue, true, false, false, false, nil); err != nil {
		p.log.Warn("queue declare failed; notifications disabled", zap.String("queue", p.cfg.Queue), zap.Error(err))
		p.closeQuietly("channel", ch.Close)
		p.closeQuietly("connection", conn.Close)
		return StateFailed
	}

	p.conn, p.ch = conn, ch
	p.mu.Lock()
	p.started = true
	p.mu.Unlock()
	go p.run()

	p.state.Store(int32(StateConnected))
	p.log.Info("broker connected", zap.String("host", p.cfg.Host), zap.String("queue", p.cfg.Queue))
	return StateConnected
}

// Publish announces that taskID was assigned to userID. It never blocks on
// the broker and never fails from the caller's point of view.
func (p *Publisher) Publish(userID, taskID uuid.UUID, title string) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("publish panicked", zap.Any("reason", r))
			out = OutcomeFailed
		}
		p.rec.RecordNotification(out.String())
	}()

	if !p.Available() {
		p.log.Info("broker not available; notification not sent",
			zap.Stringer("state", p.State()), zap.Stringer("task_id", taskID))
		return OutcomeSkipped
	}

	body, err := json.Marshal(model.NewAssignmentEvent(userID, taskID, title, p.now()))
	if err != nil {
		p.log.Error("encode notification", zap.Error(err))
		return OutcomeFailed
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return OutcomeSkipped
	}
	select {
	case p.queue <- body:
		return OutcomeQueued
	default:
		p.log.Warn("notification buffer full; dropping", zap.Stringer("task_id", taskID))
		return OutcomeDropped
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for body := range p.queue {
		if err := p.send(body); err != nil {
			p.log.Warn("publish notification failed", zap.Error(err))
			p.rec.RecordNotification("send_failed")
			continue
		}
		p.rec.RecordNotification("sent")
	}
}

func (p *Publisher) send(body []byte) error {
	if p.ch.IsClosed() {
		return amqp.ErrClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.PublishTimeout)
	defer cancel()
	return p.ch.PublishWithContext(ctx, "", p.cfg.Queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   p.now().UTC(),
		Body:        body,
	})
}

// Close stops accepting events, drains the buffer until ctx expires, then
// releases the channel and connection. Safe to call more than once.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	started := p.started
	close(p.queue)
	p.mu.Unlock()

	if !started {
		return nil
	}

	var drainErr error
	select {
	case <-p.done:
	case <-ctx.Done():
		drainErr = fmt.Errorf("drain notifications: %w", ctx.Err())
	}

	p.closeQuietly("channel", p.ch.Close)
	p.closeQuietly("connection", p.conn.Close)
	p.log.Info("broker connection closed")
	return drainErr
}

// closeQuietly runs a close function. "Already closed" is not an error here,
// and a panic from a half torn-down client is logged rather than propagated.
func (p *Publisher) closeQuietly(what string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Debug("close panicked", zap.String("resource", what), zap.Any("reason", r))
		}
	}()
	if err := fn(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		p.log.Debug("close failed", zap.String("resource", what), zap.Error(err))
	}
}
