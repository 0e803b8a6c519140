package outbound

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const publishTimeout = 3 * time.Second

// AMQPSink publishes failures as persistent JSON messages to a topic
// exchange so another service can alert or re-drive them. A connection the
// broker dropped is redialled on the next report.
type AMQPSink struct {
	url        string
	exchange   string
	routingKey string
	log        *zerolog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPSink(url, exchange, routingKey string, log *zerolog.Logger) (*AMQPSink, error) {
	s := &AMQPSink{url: url, exchange: exchange, routingKey: routingKey, log: log}
	if err := s.connect(); err != nil {
		return nil, err
	}
	return s, nil
}

// connect dials the broker and declares the exchange. Callers hold mu or
// own s exclusively.
func (s *AMQPSink) connect() error {
	conn, err := amqp.Dial(s.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(s.exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("amqp exchange declare: %w", err)
	}
	s.conn, s.ch = conn, ch
	return nil
}

func (s *AMQPSink) Report(ctx context.Context, f Failure) {
	body, err := json.Marshal(f)
	if err != nil {
		s.log.Error().Err(err).Msg("encode outbound failure")
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.publish(ctx, f, body); err != nil {
		s.log.Error().Err(err).Str("action_id", f.Action.ID).Msg("publish outbound failure")
	}
}

func (s *AMQPSink) publish(ctx context.Context, f Failure, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.conn == nil || s.conn.IsClosed():
		s.log.Warn().Msg("amqp connection lost, redialling")
		if err := s.connect(); err != nil {
			return err
		}
	case s.ch == nil || s.ch.IsClosed():
		ch, err := s.conn.Channel()
		if err != nil {
			return err
		}
		s.ch = ch
	}
	return s.ch.PublishWithContext(ctx, s.exchange, s.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    f.Action.ID,
		Timestamp:    f.At,
		Type:         "outbound." + f.Reason,
		Body:         body,
	})
}

func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn == nil || s.conn.IsClosed() {
		return nil
	}
	return s.conn.Close()
}
