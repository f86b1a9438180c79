// Package service holds the infrastructure adapters the booking engine
// talks to: the RabbitMQ notification publisher and the Redis lock.
package service

import (
    "context"
    "encoding/json"
    "log"
    "sync"
    "time"

    "github.com/oklog/ulid/v2"
    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/event-booking/internal/booking"
    q "github.com/iliyamo/event-booking/internal/queue"
)

// QueueNotifier publishes booking notification intents to a durable
// RabbitMQ queue.  The connection is opened lazily and dropped after any
// failure so the next publish redials.  Errors are logged and returned;
// the booking dispatcher never lets them reach a request.
type QueueNotifier struct {
    url   string
    queue string
    now   func() time.Time

    mu   sync.Mutex
    conn *amqp.Connection
    ch   *amqp.Channel
}

func NewQueueNotifier(url, queue string) *QueueNotifier {
    return &QueueNotifier{url: url, queue: queue, now: func() time.Time { return time.Now().UTC() }}
}

// Notify implements booking.Notifier.
func (n *QueueNotifier) Notify(ctx context.Context, in booking.Intent) error {
    msg := NewMessage(in, n.now())
    body, err := json.Marshal(msg)
    if err != nil {
        log.Printf("rabbitmq: marshal %s failed: %v", in.Kind, err)
        return err
    }

    n.mu.Lock()
    defer n.mu.Unlock()
    ch, err := n.channel()
    if err != nil {
        log.Printf("rabbitmq: connect failed: %v", err)
        return err
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent, // store on disk
        MessageId:    msg.ID,
        Type:         msg.Kind,
        Timestamp:    n.now(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx,
        "",      // default exchange
        n.queue, // routing key = queue name
        false,   // mandatory
        false,   // immediate
        pub,
    ); err != nil {
        log.Printf("rabbitmq: publish %s failed: %v", msg.Kind, err)
        n.reset()
        return err
    }
    return nil
}

// channel returns an open channel, dialing when needed.  Callers hold mu.
func (n *QueueNotifier) channel() (*amqp.Channel, error) {
    if n.ch != nil && !n.ch.IsClosed() {
        return n.ch, nil
    }
    n.reset()
    conn, err := amqp.Dial(n.url)
    if err != nil {
        return nil, err
    }
    ch, err := conn.Channel()
    if err != nil {
        _ = conn.Close()
        return nil, err
    }
    // Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(n.queue, true, false, false, false, nil); err != nil {
        _ = ch.Close()
        _ = conn.Close()
        return nil, err
    }
    n.conn, n.ch = conn, ch
    return ch, nil
}

func (n *QueueNotifier) reset() {
    if n.ch != nil {
        _ = n.ch.Close()
    }
    if n.conn != nil {
        _ = n.conn.Close()
    }
    n.conn, n.ch = nil, nil
}

// Close releases the broker connection.
func (n *QueueNotifier) Close() {
    n.mu.Lock()
    defer n.mu.Unlock()
    n.reset()
}

// NewMessage converts an intent into its wire form with a fresh ULID.
func NewMessage(in booking.Intent, at time.Time) q.NotificationMessage {
    return q.NotificationMessage{
        ID:        ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String(),
        Audience:  string(in.Audience),
        Kind:      in.Kind,
        UserID:    in.UserID,
        Email:     in.Email,
        EventID:   in.EventID,
        BookingID: in.BookingID,
        Payload:   in.Payload,
        CreatedAt: at.UTC().Format(time.RFC3339),
    }
}
