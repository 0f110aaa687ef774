// Package amqpsink publishes audit events to a RabbitMQ queue so that
// downstream consumers (SIEM, analytics) can process them off the hot path.
package amqpsink

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/credentive/go-credential-service/audit"
)

const queueName = "audit.events"

var _ audit.Sink = (*Sink)(nil)

type Sink struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// New dials the broker and declares the audit queue. The queue is durable so
// events survive broker restarts.
func New(url string) (*Sink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "[amqpsink.New] dial")
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "[amqpsink.New] channel")
	}
	if _, err := channel.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, errors.Wrap(err, "[amqpsink.New] queue declare")
	}
	return &Sink{conn: conn, channel: channel}, nil
}

func (s *Sink) Write(ctx context.Context, event audit.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "[Sink.Write] marshal")
	}
	return errors.Wrap(s.channel.PublishWithContext(ctx,
		"",        // default exchange
		queueName, // routing key = queue name
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.At,
			Body:         body,
		},
	), "[Sink.Write] publish")
}

func (s *Sink) Close() error {
	if err := s.channel.Close(); err != nil {
		_ = s.conn.Close()
		return err
	}
	return s.conn.Close()
}
