package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Ramsey-B/aster/pkg/tracing"
)

// Config holds Kafka configuration
type Config struct {
	Brokers     []string
	ChangeTopic string
	ErrorTopic  string
}

// ParseConfig parses a comma-separated broker string
func ParseConfig(brokers string, changeTopic string, errorTopic string) Config {
	brokerList := strings.Split(brokers, ",")
	for i := range brokerList {
		brokerList[i] = strings.TrimSpace(brokerList[i])
	}

	return Config{
		Brokers:     brokerList,
		ChangeTopic: changeTopic,
		ErrorTopic:  errorTopic,
	}
}

// Producer handles producing messages to Kafka
type Producer struct {
	writer      *kafka.Writer
	errorWriter *kafka.Writer
	logger      ectologger.Logger
	topic       string
	errorTopic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg Config, logger ectologger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.ChangeTopic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		// Allow Kafka to auto-create the topic in dev environments when it doesn't exist yet.
		// Without this, a first publish may fail with "Unknown Topic Or Partition".
		AllowAutoTopicCreation: true,
	}

	errorWriter := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.ErrorTopic,
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer:      writer,
		errorWriter: errorWriter,
		logger:      logger,
		topic:       cfg.ChangeTopic,
		errorTopic:  cfg.ErrorTopic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	var firstErr error
	if err := p.writer.Close(); err != nil {
		firstErr = err
	}
	if p.errorWriter != nil {
		if err := p.errorWriter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// OrderChangeEventMessage is a lifecycle event for an order-change saga.
// Downstream consumers (reporting, the re-sync worker) react to terminal
// events; a committed event is the trigger for re-pulling the order from
// the ERP.
type OrderChangeEventMessage struct {
	Type      string    `json:"type"` // "order_change.committed" | "order_change.failed"
	SoNo      string    `json:"so_no"`
	SagaID    string    `json:"saga_id"`
	State     string    `json:"state"`
	Success   bool      `json:"success"`
	ErrorType string    `json:"error_type,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Tracing
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// PublishOrderChangeEvent publishes a saga lifecycle event. Failed sagas go
// to the error topic, everything else to the change topic.
func (p *Producer) PublishOrderChangeEvent(ctx context.Context, evt *OrderChangeEventMessage) error {
	if evt == nil {
		return fmt.Errorf("order change event is nil")
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	ctx, span := tracing.StartSpan(ctx, "Kafka.PublishOrderChangeEvent")
	defer span.End()

	writer := p.writer
	topic := p.topic
	if !evt.Success && p.errorWriter != nil {
		writer = p.errorWriter
		topic = p.errorTopic
	}

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", topic),
		attribute.String("messaging.operation", "publish"),
		attribute.String("so_no", evt.SoNo),
		attribute.String("saga_id", evt.SagaID),
	)

	evt.TraceID = tracing.GetTraceID(ctx)
	evt.SpanID = tracing.GetSpanID(ctx)

	data, err := json.Marshal(evt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal event")
		return fmt.Errorf("failed to marshal order change event: %w", err)
	}

	// Key by sales order so all events for an order land on one partition.
	headers := []kafka.Header{
		{Key: "so_no", Value: []byte(evt.SoNo)},
		{Key: "saga_id", Value: []byte(evt.SagaID)},
		{Key: "type", Value: []byte(evt.Type)},
	}
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}

	if err := writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(evt.SoNo),
		Value:   data,
		Headers: headers,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish event")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish order change event to Kafka topic %s", topic)
		return err
	}

	span.SetStatus(codes.Ok, "event published")
	p.logger.WithContext(ctx).Debugf("Published order change event: so_no=%s saga=%s state=%s", evt.SoNo, evt.SagaID, evt.State)
	return nil
}

// Stats returns producer statistics
func (p *Producer) Stats() kafka.WriterStats {
	return p.writer.Stats()
}
