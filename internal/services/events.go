package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"reftrack/pkg/utils"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventReferralClicked   EventType = "referral.clicked"
	EventReferralConverted EventType = "referral.converted"
	EventReferralCancelled EventType = "referral.cancelled"
	EventReferralExpired   EventType = "referral.expired"
	EventReferralRejected  EventType = "referral.rejected"
	EventCommissionCreated EventType = "commission.created"
	EventCommissionUpdated EventType = "commission.updated"
)

// Event is a lifecycle notification emitted after the change is committed.
type Event struct {
	ID           string           `json:"id"`
	Type         EventType        `json:"type"`
	OccurredAt   time.Time        `json:"occurred_at"`
	AffiliateID  uint             `json:"affiliate_id"`
	ReferralID   *uint            `json:"referral_id,omitempty"`
	CommissionID *uint            `json:"commission_id,omitempty"`
	Status       string           `json:"status,omitempty"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
}

func newEvent(t EventType, affiliateID uint, at time.Time) Event {
	return Event{ID: utils.NewEventID(), Type: t, OccurredAt: at, AffiliateID: affiliateID}
}

// EventPublisher delivers events on a best-effort basis. Delivery problems are
// the publisher's to log; callers never see them.
type EventPublisher interface {
	Publish(ctx context.Context, evt Event)
}

type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, evt Event) {
	p.logger.Info("Event published", "type", evt.Type, "event_id", evt.ID, "affiliate_id", evt.AffiliateID)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher queues events and writes them to Kafka from a single worker
// goroutine, so request paths never wait on the broker.
type KafkaPublisher struct {
	writer  messageWriter
	logger  *slog.Logger
	metrics *Metrics
	events  chan Event
	timeout time.Duration
}

func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger, metrics *Metrics) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
	}
	return newKafkaPublisher(writer, logger, metrics), nil
}

func newKafkaPublisher(writer messageWriter, logger *slog.Logger, metrics *Metrics) *KafkaPublisher {
	return &KafkaPublisher{
		writer:  writer,
		logger:  logger,
		metrics: metrics,
		events:  make(chan Event, 1000),
		timeout: 5 * time.Second,
	}
}

func (p *KafkaPublisher) Publish(_ context.Context, evt Event) {
	select {
	case p.events <- evt:
	default:
		p.metrics.EventDropped()
		p.logger.Warn("Event channel full, dropping event", "type", evt.Type, "event_id", evt.ID)
	}
}

// Start drains the queue until ctx is cancelled, then flushes what is left and
// closes the writer.
func (p *KafkaPublisher) Start(ctx context.Context) {
	p.logger.Info("Event publisher starting")
	for {
		select {
		case evt := <-p.events:
			p.write(evt)
		case <-ctx.Done():
			p.flush()
			if err := p.writer.Close(); err != nil {
				p.logger.Error("Failed to close kafka writer", "error", err)
			}
			p.logger.Info("Event publisher stopping")
			return
		}
	}
}

func (p *KafkaPublisher) flush() {
	for {
		select {
		case evt := <-p.events:
			p.write(evt)
		default:
			return
		}
	}
}

func (p *KafkaPublisher) write(evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		p.logger.Error("Failed to encode event", "event_id", evt.ID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(evt.AffiliateID), 10)),
		Value: payload,
		Time:  evt.OccurredAt.UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
		},
	})
	if err != nil {
		p.metrics.EventDropped()
		p.logger.Error("Failed to publish event", "type", evt.Type, "event_id", evt.ID, "error", err)
	}
}
