package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

// JobFunc processes one grade sync job. A returned error triggers a retry
// until the retry budget is exhausted, after which the message moves to the
// poison topic.
type JobFunc func(ctx context.Context, job GradeSyncJob) error

// WorkerConfig tunes retry and concurrency behavior of the delivery worker.
type WorkerConfig struct {
	// MaxAttempts is the total number of delivery attempts per job,
	// the first try included.
	MaxAttempts int

	// InitialDelay is the backoff before the first retry; each further
	// retry doubles it.
	InitialDelay time.Duration

	// Concurrency bounds the number of jobs processed at once.
	Concurrency int
}

// Worker consumes grade passback jobs and hands them to a JobFunc.
type Worker struct {
	router *message.Router
}

// NewWorker wires a watermill router: retry middleware with exponential
// backoff, a poison queue for exhausted jobs and a semaphore bounding
// concurrent handlers.
func NewWorker(
	subscriber message.Subscriber,
	publisher message.Publisher,
	cfg WorkerConfig,
	handler JobFunc,
	logger watermill.LoggerAdapter,
) (*Worker, error) {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 2 * time.Second
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	poison, err := middleware.PoisonQueue(publisher, TopicGradePassbackPoison)
	if err != nil {
		return nil, fmt.Errorf("failed to create poison queue: %w", err)
	}

	retry := middleware.Retry{
		MaxRetries:      cfg.MaxAttempts - 1,
		InitialInterval: cfg.InitialDelay,
		Multiplier:      2.0,
		Logger:          logger,
	}

	// Poison wraps retry so only exhausted messages are parked
	router.AddMiddleware(
		middleware.Recoverer,
		poison,
		retry.Middleware,
		semaphoreMiddleware(cfg.Concurrency),
	)

	router.AddNoPublisherHandler(
		"grade_passback_worker",
		TopicGradePassback,
		subscriber,
		func(msg *message.Message) error {
			var job GradeSyncJob
			if err := json.Unmarshal(msg.Payload, &job); err != nil {
				// Malformed payloads can never succeed; retries will park them
				return fmt.Errorf("malformed grade sync job: %w", err)
			}
			return handler(msg.Context(), job)
		},
	)

	return &Worker{router: router}, nil
}

// semaphoreMiddleware bounds how many handlers run at once.
func semaphoreMiddleware(n int) message.HandlerMiddleware {
	sem := make(chan struct{}, n)
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			select {
			case sem <- struct{}{}:
			case <-msg.Context().Done():
				return nil, msg.Context().Err()
			}
			defer func() { <-sem }()
			return h(msg)
		}
	}
}

// Run blocks consuming jobs until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	return w.router.Run(ctx)
}

// Running returns a channel closed once the router is up; tests use it to
// avoid publishing before subscription.
func (w *Worker) Running() <-chan struct{} {
	return w.router.Running()
}

// Close stops the router and its subscriptions.
func (w *Worker) Close() error {
	return w.router.Close()
}
