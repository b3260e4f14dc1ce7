package mq

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"fulfillment/internal/inventory"
)

// AuditPublisher forwards stock events to the audit topic. Publishing
// happens off the caller's goroutine and failures are only logged, so
// the sink can never block or fail a core transaction.
type AuditPublisher struct {
	writer *kafka.Writer
	log    zerolog.Logger
}

func NewAuditPublisher(writer *kafka.Writer, log zerolog.Logger) *AuditPublisher {
	return &AuditPublisher{
		writer: writer,
		log:    log.With().Str("component", "audit-publisher").Logger(),
	}
}

func (p *AuditPublisher) Publish(ctx context.Context, event inventory.StockEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Msg("failed to marshal stock event")
		return
	}

	ctx = context.WithoutCancel(ctx)
	go func() {
		sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := ProduceMessage(sendCtx, p.writer, []byte(event.ItemName), payload); err != nil {
			p.log.Warn().Err(err).Str("item", event.ItemName).Msg("failed to publish stock event")
		}
	}()
}

// NoopSink discards stock events; used when kafka is not configured.
type NoopSink struct{}

func (NoopSink) Publish(context.Context, inventory.StockEvent) {}
