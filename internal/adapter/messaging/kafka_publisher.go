package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/brickparty/brick-party/internal/core/domain"
)

const (
	EventTypeOwnedChanged = "owned.changed"
	publishTimeout        = 5 * time.Second
)

// OwnedChangedEvent is the payload other devices consume.
type OwnedChangedEvent struct {
	ChangeID  string    `json:"changeId"`
	UserID    string    `json:"userId"`
	SetNumber string    `json:"setNumber"`
	Key       string    `json:"key"`
	Quantity  int       `json:"quantity"`
	ChangedAt time.Time `json:"changedAt"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Snappy,
	}
	return &KafkaPublisher{writer: writer}
}

// PublishOwnedChanged keys messages by user and set so one set's changes
// stay ordered on a single partition.
func (p *KafkaPublisher) PublishOwnedChanged(ctx context.Context, change domain.OwnedChange) error {
	payload, err := json.Marshal(OwnedChangedEvent{
		ChangeID:  change.ID,
		UserID:    change.UserID,
		SetNumber: change.SetNumber,
		Key:       change.Key,
		Quantity:  change.Quantity,
		ChangedAt: change.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal owned change event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(change.UserID + ":" + change.SetNumber),
		Value: payload,
		Time:  change.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(EventTypeOwnedChanged)},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write owned change event to kafka: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
