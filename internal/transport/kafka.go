package transport

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"rustok/internal/config"
	"rustok/internal/constants"
	"rustok/internal/event"
	"rustok/internal/logger"
	"rustok/pkg/errors"
	"rustok/pkg/metrics"
	"rustok/pkg/retry"
	"rustok/pkg/tracing"
)

// Kafka publishes envelopes to an external broker, at-least-once. The
// message key is tenant_id:event_type so one tenant's events of a type
// land on one partition and keep their order.
type Kafka struct {
	writer      *kafka.Writer
	brokers     []string
	retryPolicy retry.Policy
	log         logger.Logger
}

// NewKafka dials the first broker before returning so a misconfigured
// broker is a boot failure, not a runtime surprise.
func NewKafka(cfg config.KafkaConfig, log logger.Logger) (*Kafka, error) {
	dialCtx, cancel := context.WithTimeout(context.Background(), constants.KafkaDialTimeout)
	defer cancel()

	conn, err := kafka.DialContext(dialCtx, "tcp", cfg.Brokers[0])
	if err != nil {
		return nil, errors.ErrTransport.
			WithMessage("failed to reach kafka broker").
			WithCause(err).
			WithDetail("broker", cfg.Brokers[0])
	}
	conn.Close()

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		RequiredAcks: kafka.RequireAll,
	}

	policy := retry.DefaultPolicy()
	policy.InitialInterval = constants.KafkaRetryInitialInterval
	policy.MaxInterval = constants.KafkaRetryMaxInterval
	policy.MaxElapsedTime = 0

	return &Kafka{writer: writer, brokers: cfg.Brokers, retryPolicy: policy, log: log}, nil
}

// Send writes one envelope, absorbing transient broker hiccups with a
// short in-call backoff; the send context still bounds the whole call,
// and anything that survives the backoff goes back to the relay's
// coarser retry schedule.
func (t *Kafka) Send(ctx context.Context, env event.Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return errors.ErrTransport.WithMessage("failed to serialize envelope").WithCause(err)
	}

	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(env.EventType)},
		{Key: "correlation_id", Value: []byte(env.CorrelationID)},
	}
	headers = tracing.InjectTraceContext(ctx, headers)

	start := time.Now()
	err = retry.DoWithCallback(ctx, t.retryPolicy, func() error {
		return t.writer.WriteMessages(ctx, kafka.Message{
			Key:     []byte(env.PartitionKey()),
			Value:   value,
			Headers: headers,
		})
	}, func(attempt int, retryErr error, nextDelay time.Duration) {
		t.log.WarnwCtx(ctx, "kafka write failed, retrying",
			"attempt", attempt,
			"next_delay", nextDelay.String(),
			"event_type", env.EventType,
			"error", retryErr,
		)
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ObserveTransportSend(t.Name(), status, time.Since(start))

	if err != nil {
		return errors.ErrTransport.WithCause(err).WithDetail("event_type", env.EventType)
	}
	return nil
}

func (t *Kafka) IsConnected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), constants.KafkaDialTimeout)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", t.brokers[0])
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (t *Kafka) Shutdown(ctx context.Context) error {
	return t.writer.Close()
}

func (t *Kafka) Name() string { return config.TransportExternalBroker }
