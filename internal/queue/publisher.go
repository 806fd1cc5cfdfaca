package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/membership-ledger/internal/metrics"
	"github.com/iliyamo/membership-ledger/internal/model"
)

const (
	defaultBuffer         = 256
	defaultDialTimeout    = 3 * time.Second
	defaultPublishTimeout = 5 * time.Second
	redialBackoff         = 5 * time.Second
)

// dial connects with a bounded TCP and AMQP handshake so a silent broker
// cannot hold the caller for the library's 30s default.
func dial(url string, timeout time.Duration) (*amqp.Connection, error) {
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
}

// PublisherOption tunes a Publisher.
type PublisherOption func(*Publisher)

// WithBuffer sets how many notifications may wait for the broker before
// new ones are dropped.
func WithBuffer(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 {
			p.buffer = n
		}
	}
}

// WithTimeouts bounds the broker handshake and each publish.
func WithTimeouts(dialTimeout, publishTimeout time.Duration) PublisherOption {
	return func(p *Publisher) {
		if dialTimeout > 0 {
			p.dialTimeout = dialTimeout
		}
		if publishTimeout > 0 {
			p.publishTimeout = publishTimeout
		}
	}
}

// Publisher sends notifications to EventsQueue.  It implements
// service.Notifier without ever blocking the caller: Notify only enqueues,
// and one background goroutine owns the broker connection.  When the
// buffer is full the notification is dropped and counted.  Failures are
// logged and counted, never returned, so a broker outage cannot fail or
// stall a committed operation.
type Publisher struct {
	url    string
	logger *zap.Logger

	buffer         int
	dialTimeout    time.Duration
	publishTimeout time.Duration

	mu     sync.RWMutex // guards closed and sends on queue
	closed bool
	queue  chan model.Notification

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// owned by the run goroutine
	conn     *amqp.Connection
	ch       *amqp.Channel
	nextDial time.Time
}

// NewPublisher starts a Publisher for the broker at url.  The connection
// is opened by the background goroutine on the first notification.
func NewPublisher(url string, logger *zap.Logger, opts ...PublisherOption) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Publisher{
		url:            url,
		logger:         logger.Named("publisher"),
		buffer:         defaultBuffer,
		dialTimeout:    defaultDialTimeout,
		publishTimeout: defaultPublishTimeout,
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.queue = make(chan model.Notification, p.buffer)
	p.ctx, p.cancel = context.WithCancel(context.Background())
	go p.run()
	return p
}

// Notify queues n for publishing and returns immediately.
func (p *Publisher) Notify(_ context.Context, n model.Notification) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		metrics.NotificationsPublished.WithLabelValues("dropped").Inc()
		return
	}
	select {
	case p.queue <- n:
	default:
		metrics.NotificationsPublished.WithLabelValues("dropped").Inc()
		p.logger.Warn("publish buffer full, notification dropped", zap.String("kind", n.Kind), zap.String("id", n.ID))
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	defer p.reset()
	for n := range p.queue {
		if err := p.publish(n); err != nil {
			metrics.NotificationsPublished.WithLabelValues("error").Inc()
			p.logger.Warn("publish failed", zap.String("kind", n.Kind), zap.String("id", n.ID), zap.Error(err))
			continue
		}
		metrics.NotificationsPublished.WithLabelValues("ok").Inc()
	}
}

func (p *Publisher) publish(n model.Notification) error {
	if err := p.ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	msgID := n.ID
	if msgID == "" {
		msgID = uuid.NewString()
	}

	ch, err := p.channel()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(p.ctx, p.publishTimeout)
	defer cancel()
	err = ch.PublishWithContext(ctx,
		"",          // default exchange
		EventsQueue, // routing key = queue name
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msgID,
			Type:         n.Kind,
			Timestamp:    n.OccurredAt,
			Body:         body,
		})
	if err != nil {
		// Drop the channel so the next message reconnects.
		p.reset()
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// channel returns an open channel, dialing when needed.  After a failed
// dial it refuses to redial until redialBackoff has passed, so a dead
// broker costs one handshake timeout per backoff period, not per message.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	if now := time.Now(); now.Before(p.nextDial) {
		return nil, fmt.Errorf("broker unavailable, next attempt in %s", p.nextDial.Sub(now).Round(time.Millisecond))
	}

	conn, err := dial(p.url, p.dialTimeout)
	if err != nil {
		p.nextDial = time.Now().Add(redialBackoff)
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		p.nextDial = time.Now().Add(redialBackoff)
		return nil, fmt.Errorf("open channel: %w", err)
	}
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(EventsQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	p.conn, p.ch = conn, ch
	p.logger.Info("connected to broker", zap.String("queue", EventsQueue))
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

// Close stops accepting notifications, gives queued ones one publish
// timeout to drain and then abandons the rest.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	t := time.NewTimer(p.publishTimeout)
	defer t.Stop()
	select {
	case <-p.done:
	case <-t.C:
		p.cancel()
		<-p.done
	}
	p.cancel()
	return nil
}
