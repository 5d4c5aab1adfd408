package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/models"
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
	"github.com/BlowhardChen/diyue-geoengine/pkg/logger"
	wrap "github.com/BlowhardChen/diyue-geoengine/pkg/logger/wrapper"
	"github.com/BlowhardChen/diyue-geoengine/pkg/metrics"
)

const (
	ExchangeLocationFanout = "location_fanout"

	defaultBuffer  = 64
	publishTimeout = 5 * time.Second
	serviceName    = "geoengine"
)

// Broker is the part of pkg/rabbit the publisher needs.
type Broker interface {
	EnsureConnection(ctx context.Context) error
	DeclareExchange(ctx context.Context, name, kind string) error
	Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error
}

type PositionConfig struct {
	Exchange  string
	DeviceID  string
	SessionID string
	Buffer    int
}

// PositionPublisher fans canonical placements out to other services. Place
// never blocks: when the buffer is full the placement is dropped.
type PositionPublisher struct {
	cfg    PositionConfig
	broker Broker
	queue  chan models.PositionUpdate
	l      logger.Logger

	declared bool // exchange declared on the broker; touched only by Run
}

func NewPositionPublisher(cfg PositionConfig, broker Broker, l logger.Logger) *PositionPublisher {
	if cfg.Exchange == "" {
		cfg.Exchange = ExchangeLocationFanout
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	return &PositionPublisher{
		cfg:    cfg,
		broker: broker,
		queue:  make(chan models.PositionUpdate, cfg.Buffer),
		l:      l,
	}
}

// Place implements arbiter.Sink.
func (p *PositionPublisher) Place(ctx context.Context, pl models.Placement) {
	msg := models.PositionUpdate{
		DeviceID:       p.cfg.DeviceID,
		SessionID:      p.cfg.SessionID,
		Source:         pl.Sample.Source,
		Kind:           pl.Kind.String(),
		Timestamp:      pl.Sample.Timestamp,
		Location:       pl.Sample.Coordinate,
		AccuracyMeters: pl.Sample.AccuracyMeters,
	}

	select {
	case p.queue <- msg:
	default:
		metrics.RecordRabbitMQPublish(serviceName, p.cfg.Exchange, types.ErrPublishQueueFull)
		p.l.Warn(wrap.WithAction(ctx, types.ActionPositionPublish), "position fan-out queue full, dropping update")
	}
}

// Run publishes queued updates until ctx is done.
func (p *PositionPublisher) Run(ctx context.Context) error {
	ctx = wrap.WithSessionID(wrap.WithDeviceID(wrap.WithAction(ctx, types.ActionPositionPublish), p.cfg.DeviceID), p.cfg.SessionID)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-p.queue:
			err := p.publish(ctx, msg)
			metrics.RecordRabbitMQPublish(serviceName, p.cfg.Exchange, err)
			if err != nil {
				p.l.Error(ctx, "failed to publish position update", err)
			}
		}
	}
}

func (p *PositionPublisher) publish(ctx context.Context, msg models.PositionUpdate) error {
	const op = "PositionPublisher.publish"

	body, err := json.Marshal(msg)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: failed to marshal message: %w", op, err))
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.broker.EnsureConnection(ctx); err != nil {
		metrics.CollaboratorUnavailableTotal.WithLabelValues("rabbitmq").Inc()
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if !p.declared {
		if err := p.broker.DeclareExchange(ctx, p.cfg.Exchange, "fanout"); err != nil {
			return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
		}
		p.declared = true
	}

	if err := p.broker.Publish(ctx, p.cfg.Exchange, "", amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   msg.Timestamp,
		MessageId:   fmt.Sprintf("%s-%d", msg.DeviceID, msg.Timestamp.UnixNano()),
	}); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: failed to publish with context: %w", op, err))
	}
	return nil
}
