package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/sirupsen/logrus"

	"github.com/forgeci/forgeci/pkg/config"
)

// Task message metadata keys.
const (
	MetaProvider   = "provider"
	MetaEventType  = "event_type"
	MetaDeliveryID = "delivery_id"
)

// Task is the unit of work handed off to the worker queue. Payload is the
// full original webhook body; workers parse it themselves.
type Task struct {
	ID         string          `json:"id"`
	Provider   string          `json:"provider"`
	EventType  string          `json:"event_type"`
	DeliveryID string          `json:"delivery_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// Publisher hands accepted webhook events to the dispatch queue.
// Publishing is fire-and-forget: the gateway does not wait for a worker.
type Publisher interface {
	Publish(ctx context.Context, task *Task) error
	Close() error
}

// Compile-time interface check.
var _ Publisher = (*publisher)(nil)

type publisher struct {
	log   logrus.FieldLogger
	topic string
	pub   message.Publisher
}

// NewPublisher creates a Publisher backed by the configured queue driver.
// The kafka driver publishes to the configured brokers; the channel driver
// uses an in-process pub/sub and is meant for local setups and tests.
func NewPublisher(
	log logrus.FieldLogger, cfg *config.QueueConfig,
) (Publisher, error) {
	wmLog := newWatermillLogger(log)

	var (
		pub message.Publisher
		err error
	)

	switch cfg.Driver {
	case config.QueueKafka:
		pub, err = kafka.NewPublisher(
			kafka.PublisherConfig{
				Brokers:   cfg.Kafka.Brokers,
				Marshaler: kafka.DefaultMarshaler{},
			},
			wmLog,
		)
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
	case config.QueueChannel:
		pub = gochannel.NewGoChannel(gochannel.Config{}, wmLog)
	default:
		return nil, fmt.Errorf("unsupported queue driver: %s", cfg.Driver)
	}

	return &publisher{
		log:   log.WithField("component", "dispatch"),
		topic: cfg.Topic,
		pub:   pub,
	}, nil
}

// NewChannelPublisher wraps an existing in-process pub/sub. Tests use this
// to subscribe to the same channel the gateway publishes on.
func NewChannelPublisher(
	log logrus.FieldLogger, topic string, ch *gochannel.GoChannel,
) Publisher {
	return &publisher{
		log:   log.WithField("component", "dispatch"),
		topic: topic,
		pub:   ch,
	}
}

func (p *publisher) Publish(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshaling task: %w", err)
	}

	msg := message.NewMessage(task.ID, payload)
	msg.Metadata.Set(MetaProvider, task.Provider)
	msg.Metadata.Set(MetaEventType, task.EventType)

	if task.DeliveryID != "" {
		msg.Metadata.Set(MetaDeliveryID, task.DeliveryID)
	}

	msg.SetContext(ctx)

	if err := p.pub.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("publishing task: %w", err)
	}

	p.log.WithField("task_id", task.ID).
		WithField("provider", task.Provider).
		WithField("event_type", task.EventType).
		Debug("Task dispatched")

	return nil
}

func (p *publisher) Close() error {
	return p.pub.Close()
}
