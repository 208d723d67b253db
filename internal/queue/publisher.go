// Package queue carries grade-passback jobs between the submit path and the
// delivery worker. Kafka is the transport in production; tests swap in an
// in-memory pub/sub.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

const (
	// TopicGradePassback receives one job per attempt whose grade should be
	// delivered to the LMS.
	TopicGradePassback = "grade-passback"

	// TopicGradePassbackPoison collects jobs that exhausted their retries.
	TopicGradePassbackPoison = "grade-passback.poison"
)

// GradeSyncJob is the wire payload of one passback job.
type GradeSyncJob struct {
	AttemptID uint `json:"attemptId"`
}

// Publisher enqueues grade sync jobs.
type Publisher struct {
	publisher message.Publisher
}

func NewPublisher(publisher message.Publisher) *Publisher {
	return &Publisher{publisher: publisher}
}

// EnqueueGradeSync publishes one job for the attempt.
func (p *Publisher) EnqueueGradeSync(attemptID uint) error {
	payload, err := json.Marshal(GradeSyncJob{AttemptID: attemptID})
	if err != nil {
		return fmt.Errorf("failed to marshal grade sync job: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	if err := p.publisher.Publish(TopicGradePassback, msg); err != nil {
		return fmt.Errorf("failed to publish grade sync job: %w", err)
	}
	return nil
}

// Close releases the underlying transport.
func (p *Publisher) Close() error {
	return p.publisher.Close()
}

// NewKafkaPublisher connects a watermill publisher to the configured brokers.
func NewKafkaPublisher(brokers []string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:   brokers,
			Marshaler: kafka.DefaultMarshaler{},
		},
		logger,
	)
}

// NewKafkaSubscriber connects a watermill subscriber with the given consumer
// group to the configured brokers.
func NewKafkaSubscriber(brokers []string, consumerGroup string, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:       brokers,
			Unmarshaler:   kafka.DefaultMarshaler{},
			ConsumerGroup: consumerGroup,
		},
		logger,
	)
}
