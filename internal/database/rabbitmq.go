package database

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/config"
)

// NewRabbitMQ dials the broker and declares the notification topic exchange.
// Returns (nil, nil, nil) when RABBITMQ_URL is not configured.
func NewRabbitMQ(cfg *config.Config, log zerolog.Logger) (*amqp.Connection, *amqp.Channel, error) {
	if cfg.RabbitMQURL == "" {
		log.Warn().Msg("RABBITMQ_URL not set, notifications will not be published")
		return nil, nil, nil
	}

	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.NotifyExchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange: %w", err)
	}

	log.Info().Str("exchange", cfg.NotifyExchange).Msg("RabbitMQ connected")

	return conn, ch, nil
}
