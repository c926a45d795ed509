package messaging

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// Publisher is the narrow surface the rotator needs from a broker.
type Publisher interface {
	Publish(exchange, routingKey string, message interface{}) error
}

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	url     string
	logger  *logrus.Logger
	mu      sync.Mutex
	stopCh  chan struct{}
	once    sync.Once
}

func NewRabbitMQ(url string, log *logrus.Logger) (*RabbitMQ, error) {
	conn, ch, err := dial(url)
	if err != nil {
		return nil, err
	}

	log.Info("Connected to RabbitMQ")

	r := &RabbitMQ{
		conn:    conn,
		channel: ch,
		url:     url,
		logger:  log,
		stopCh:  make(chan struct{}),
	}

	go r.monitorConnection()

	return r, nil
}

func dial(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return conn, ch, nil
}

func (r *RabbitMQ) Close() error {
	var closeErr error
	r.once.Do(func() {
		close(r.stopCh)

		r.mu.Lock()
		defer r.mu.Unlock()

		if err := r.channel.Close(); err != nil {
			closeErr = fmt.Errorf("failed to close channel: %w", err)
			return
		}
		if err := r.conn.Close(); err != nil {
			closeErr = fmt.Errorf("failed to close connection: %w", err)
		}
	})
	return closeErr
}

func (r *RabbitMQ) DeclareExchange(name, kind string, durable, autoDelete bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.channel.ExchangeDeclare(
		name,
		kind,
		durable,
		autoDelete,
		false,
		false,
		nil,
	)
}

func (r *RabbitMQ) Publish(exchange, routingKey string, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.channel.Publish(
		exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   time.Now(),
		},
	)
}

func (r *RabbitMQ) reconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil && !r.conn.IsClosed() {
		r.conn.Close()
	}

	conn, ch, err := dial(r.url)
	if err != nil {
		return err
	}

	r.conn = conn
	r.channel = ch
	r.logger.Info("Reconnected to RabbitMQ")
	return nil
}

func (r *RabbitMQ) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn == nil || r.conn.IsClosed()
}

func (r *RabbitMQ) monitorConnection() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			if !r.isClosed() {
				continue
			}
			r.logger.Warn("RabbitMQ connection lost, attempting to reconnect...")
			for i := 0; i < 5; i++ {
				if err := r.reconnect(); err != nil {
					r.logger.WithError(err).WithField("attempt", i+1).Error("Failed to reconnect to RabbitMQ")
					time.Sleep(time.Duration(i+1) * time.Second)
					continue
				}
				break
			}
		}
	}
}

// Message is the envelope every published event travels in.
type Message struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func NewMessage(msgType string, data interface{}) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
		Metadata:  make(map[string]interface{}),
	}
}
