package mq

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Notification is the message delivered to the outbound notification
// worker, which owns the actual transport.
type Notification struct {
	BuyerID int64  `json:"buyer_id"`
	Text    string `json:"text"`
}

// KafkaNotifier hands buyer notifications to the notification topic.
// Best-effort: delivery failure never rolls back the business
// transaction that triggered it.
type KafkaNotifier struct {
	writer *kafka.Writer
	log    zerolog.Logger
}

func NewKafkaNotifier(writer *kafka.Writer, log zerolog.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		writer: writer,
		log:    log.With().Str("component", "notifier").Logger(),
	}
}

func (n *KafkaNotifier) Notify(ctx context.Context, buyerID int64, text string) bool {
	payload, err := json.Marshal(Notification{BuyerID: buyerID, Text: text})
	if err != nil {
		n.log.Warn().Err(err).Msg("failed to marshal notification")
		return false
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := ProduceMessage(sendCtx, n.writer, []byte(strconv.FormatInt(buyerID, 10)), payload); err != nil {
		n.log.Warn().Err(err).Int64("buyer_id", buyerID).Msg("failed to publish notification")
		return false
	}
	return true
}

// NoopNotifier drops notifications; used when kafka is not configured.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, int64, string) bool { return true }
