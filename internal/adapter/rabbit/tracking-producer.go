package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/models"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/types"
	wrap "github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger/wrapper"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/metrics"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/rabbit"
	"github.com/rabbitmq/amqp091-go"
)

// TrackingExchange is the fanout every accepted tracking event goes to.
// Consumers outside this core (notifications, analytics) bind their own
// queues; the hub never knows who listens.
const TrackingExchange = "tracking_fanout"

type TrackingProducer struct {
	client *rabbit.RabbitMQ
}

func NewTrackingProducer(client *rabbit.RabbitMQ) (*TrackingProducer, error) {
	if err := client.Channel.ExchangeDeclare(
		TrackingExchange,
		"fanout",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return nil, fmt.Errorf("tracking producer: declare exchange: %w", err)
	}

	return &TrackingProducer{client: client}, nil
}

// PublishLocationUpdate re-publishes an accepted fix to the fanout.
func (r *TrackingProducer) PublishLocationUpdate(ctx context.Context, msg models.TrackingLocationMessage) error {
	const op = "TrackingProducer.PublishLocationUpdate"

	body, err := json.Marshal(msg)
	if err != nil {
		ctx = wrap.WithAction(ctx, "marshal_location")
		return wrap.Error(ctx, fmt.Errorf("%s: failed to marshal message: %w", op, err))
	}

	err = r.publish(ctx, types.EventPositionUpdated.String(), body)
	metrics.RecordRabbitMQPublish(types.HubService.String(), TrackingExchange, err)
	if err != nil {
		ctx = wrap.WithAction(ctx, "publish_message")
		return wrap.Error(ctx, fmt.Errorf("%s: failed to publish with context: %w", op, err))
	}

	return nil
}

// PublishTripLifecycle announces a trip start or end to the fanout.
func (r *TrackingProducer) PublishTripLifecycle(ctx context.Context, eventType string, event models.TripLifecycleEvent) error {
	const op = "TrackingProducer.PublishTripLifecycle"

	body, err := json.Marshal(event)
	if err != nil {
		ctx = wrap.WithAction(ctx, "marshal_lifecycle")
		return wrap.Error(ctx, fmt.Errorf("%s: failed to marshal event: %w", op, err))
	}

	err = r.publish(ctx, eventType, body)
	metrics.RecordRabbitMQPublish(types.HubService.String(), TrackingExchange, err)
	if err != nil {
		ctx = wrap.WithAction(ctx, "publish_message")
		return wrap.Error(ctx, fmt.Errorf("%s: failed to publish with context: %w", op, err))
	}

	return nil
}

func (r *TrackingProducer) publish(ctx context.Context, eventType string, body []byte) error {
	return r.client.Channel.PublishWithContext(
		ctx,
		TrackingExchange,
		"",    // routing key, ignored by fanout
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Type:        eventType,
			Body:        body,
			Timestamp:   time.Now(),
		},
	)
}
