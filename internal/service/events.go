package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/model"
)

// EventPublisher fans lifecycle events out to live monitors over Redis
// pub/sub. Publishing is best effort and never fails the calling operation.
type EventPublisher struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewEventPublisher creates a new EventPublisher. A nil client disables publishing.
func NewEventPublisher(rdb *redis.Client, log zerolog.Logger) *EventPublisher {
	return &EventPublisher{
		rdb: rdb,
		log: log.With().Str("component", "event_publisher").Logger(),
	}
}

// Publish sends ev on its exam's monitor channel.
func (p *EventPublisher) Publish(ctx context.Context, ev model.MonitorEvent) {
	if p == nil || p.rdb == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn().Err(err).Str("type", string(ev.Type)).Msg("Failed to encode monitor event")
		return
	}
	channel := config.CacheKey.ExamMonitorChannel(ev.ExamID.String())
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		p.log.Warn().Err(err).
			Str("exam_id", ev.ExamID.String()).
			Str("type", string(ev.Type)).
			Msg("Failed to publish monitor event")
	}
}
