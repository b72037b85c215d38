package kafka

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/IBM/sarama"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/bibekshah220/app-server/internal/domain"
	"github.com/bibekshah220/app-server/internal/service"
	"github.com/bibekshah220/app-server/pkg/kafka"
	"github.com/bibekshah220/app-server/pkg/mylogger"
	"github.com/bibekshah220/app-server/pkg/outbox/utils"
)

// Consumer processes payment gateway events arriving on Kafka. Settlement
// guards make the handlers idempotent, and processed_events dedup keeps
// redelivered messages from re-running them at all.
type Consumer struct {
	settlement service.SettlementService
	pool       *pgxpool.Pool
	logger     *zap.Logger
	groupID    string
	topics     []string
}

func NewConsumer(
	settlement service.SettlementService,
	pool *pgxpool.Pool,
	logger *zap.Logger,
	groupID string,
	topics []string,
) *Consumer {
	return &Consumer{
		settlement: settlement,
		pool:       pool,
		logger:     logger,
		groupID:    groupID,
		topics:     topics,
	}
}

func (c *Consumer) Start(ctx context.Context, brokers []string) {
	consumerGroup := kafka.NewConsumerGroup(
		brokers,
		c.groupID,
		c.topics,
		c.processMessage,
		c.logger,
	)

	consumerGroup.Run(ctx)
}

func (c *Consumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	mylogger.Info(
		ctx,
		c.logger,
		"Processing message",
		zap.String("topic", msg.Topic),
	)

	type EventWrapper struct {
		Event   string          `json:"event"`
		EventID int64           `json:"event_id"`
		Payload json.RawMessage `json:"payload"`
	}

	var wrapper EventWrapper
	if err := json.Unmarshal(msg.Value, &wrapper); err != nil {
		mylogger.Error(ctx, c.logger, "Error unmarshalling wrapper", zap.Error(err))
		return err
	}

	switch wrapper.Event {
	case "PaymentSucceeded":
		var event domain.PaymentSucceededEvent
		if err := json.Unmarshal(wrapper.Payload, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Failed to unmarshal payload", zap.Error(err))
			return err
		}

		return utils.ProcessWithDeduplication(ctx, c.pool, c.logger, wrapper.EventID, func() error {
			err := c.settlement.HoldFunds(ctx, event.OrderID, event.PaymentRef)
			if errors.Is(err, domain.ErrOrderCancelled) {
				// Retrying cannot help here; the buyer needs a refund.
				mylogger.Warn(
					ctx,
					c.logger,
					"Payment captured for cancelled order, refund required",
					zap.Int64("order_id", event.OrderID),
					zap.String("payment_ref", event.PaymentRef),
				)

				return nil
			}
			if errors.Is(err, domain.ErrAlreadyHeld) || errors.Is(err, domain.ErrOrderNotFound) {
				mylogger.Warn(
					ctx,
					c.logger,
					"Skipping payment succeeded event",
					zap.Int64("order_id", event.OrderID),
					zap.Error(err),
				)

				return nil
			}

			return err
		})
	case "PaymentFailed":
		var event domain.PaymentFailedEvent
		if err := json.Unmarshal(wrapper.Payload, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Failed to unmarshal payload", zap.Error(err))
			return err
		}

		return utils.ProcessWithDeduplication(ctx, c.pool, c.logger, wrapper.EventID, func() error {
			err := c.settlement.CancelOrder(ctx, event.OrderID)
			if errors.Is(err, domain.ErrOrderNotCancellable) || errors.Is(err, domain.ErrOrderNotFound) {
				mylogger.Warn(
					ctx,
					c.logger,
					"Skipping payment failed event",
					zap.Int64("order_id", event.OrderID),
					zap.Error(err),
				)

				return nil
			}

			return err
		})
	default:
		mylogger.Warn(ctx, c.logger, "Ignored event type", zap.String("event_type", wrapper.Event))
	}

	return nil
}
