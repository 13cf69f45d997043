package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPDispatcher publishes messages to a topic exchange with routing key
// "email.<template>". The connection is opened on first use and reopened
// after a failure; Close releases it on shutdown.
type AMQPDispatcher struct {
	url      string
	exchange string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAMQPDispatcher(amqpURL, exchange string) (*AMQPDispatcher, error) {
	clean, err := sanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}
	return &AMQPDispatcher{url: clean, exchange: exchange}, nil
}

func (d *AMQPDispatcher) connect() (*amqp.Channel, error) {
	if d.channel != nil && !d.channel.IsClosed() {
		return d.channel, nil
	}
	d.closeLocked()

	conn, err := amqp.DialConfig(d.url, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := channel.ExchangeDeclare(d.exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", d.exchange, err)
	}

	d.conn, d.channel = conn, channel
	return channel, nil
}

func (d *AMQPDispatcher) Dispatch(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	channel, err := d.connect()
	if err != nil {
		return err
	}

	routingKey := RoutingKey(msg.Template)
	if err := channel.PublishWithContext(ctx, d.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	}); err != nil {
		d.closeLocked()
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	log.Printf("[NOTIFY] Published %s for company %s", routingKey, msg.CompanyID)
	return nil
}

// Close releases channel and connection resources.
func (d *AMQPDispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeLocked()
	return nil
}

func (d *AMQPDispatcher) closeLocked() {
	if d.channel != nil {
		d.channel.Close()
		d.channel = nil
	}
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
}

func RoutingKey(template string) string {
	return "email." + template
}

func sanitizeURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	parsed, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// LogDispatcher writes messages to the process log. Used when no broker is
// configured.
type LogDispatcher struct{}

func (LogDispatcher) Dispatch(_ context.Context, msg Message) error {
	log.Printf("[NOTIFY] %s to %s (company %s): %s", msg.Template, msg.To, msg.CompanyID, msg.Subject)
	return nil
}
