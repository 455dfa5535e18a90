package mqhandler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	mqcontracts "casedesk/contracts/mq"
	"casedesk/internal/model"
	"casedesk/pkg/logger"
	"casedesk/pkg/mq"
	"casedesk/pkg/util"

	"go.uber.org/zap"
)

const (
	handlerCreated     = "notification_created"
	handlerBulkCreated = "notification_bulk_created"

	defaultMaxRetries = 5
)

// NotificationCreator is the creation side of the notification service.
type NotificationCreator interface {
	CreateNotification(ctx context.Context, in model.NotificationInput) (*model.Notification, error)
	CreateBulkNotifications(ctx context.Context, ins []model.NotificationInput) ([]*model.Notification, error)
}

// Deduper suppresses redelivered events; satisfied by *util.Deduper.
type Deduper interface {
	AcquireOnce(ctx context.Context, handler, eventID string) bool
	Release(ctx context.Context, handler, eventID string)
}

// RetryCounter counts failed attempts per event; satisfied by *util.RetryCounter.
type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// NotificationCreatedHandler turns producer events into stored notifications.
// deduper and retryCounter may be nil when Redis is disabled.
type NotificationCreatedHandler struct {
	creator      NotificationCreator
	deduper      Deduper
	retryCounter RetryCounter
	maxRetries   int64
	logger       *zap.Logger
}

func NewNotificationCreatedHandler(
	creator NotificationCreator,
	deduper Deduper,
	retryCounter RetryCounter,
	maxRetries int64,
	logger *zap.Logger,
) *NotificationCreatedHandler {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &NotificationCreatedHandler{
		creator:      creator,
		deduper:      deduper,
		retryCounter: retryCounter,
		maxRetries:   maxRetries,
		logger:       logger,
	}
}

// HandleCreated consumes notification.created.
func (h *NotificationCreatedHandler) HandleCreated(ctx context.Context, msg mq.Message) error {
	log := logger.WithTrace(ctx, h.logger)

	var p mqcontracts.NotificationCreatedPayload
	if err := json.Unmarshal(msg.Body, &p); err != nil {
		log.Error("Invalid NotificationCreatedPayload, sending to DLQ",
			zap.String("raw", string(msg.Body)),
			zap.Error(err),
		)
		return mq.DeadLetter(fmt.Errorf("bad_payload: %w", err))
	}

	eventID := eventKey(p.EventID, msg)
	return h.run(ctx, log, handlerCreated, eventID, func(ctx context.Context) error {
		n, err := h.creator.CreateNotification(ctx, toInput(p))
		if err != nil {
			return err
		}
		log.Info("Notification created from event",
			zap.String("event_id", eventID),
			zap.String("id", n.ID),
			zap.String("owner", n.Owner),
		)
		return nil
	})
}

// HandleBulkCreated consumes notification.bulk_created. The batch is stored
// all-or-nothing.
func (h *NotificationCreatedHandler) HandleBulkCreated(ctx context.Context, msg mq.Message) error {
	log := logger.WithTrace(ctx, h.logger)

	var p mqcontracts.NotificationBulkCreatedPayload
	if err := json.Unmarshal(msg.Body, &p); err != nil {
		log.Error("Invalid NotificationBulkCreatedPayload, sending to DLQ",
			zap.String("raw", string(msg.Body)),
			zap.Error(err),
		)
		return mq.DeadLetter(fmt.Errorf("bad_payload: %w", err))
	}

	ins := make([]model.NotificationInput, 0, len(p.Notifications))
	for _, n := range p.Notifications {
		ins = append(ins, toInput(n))
	}

	eventID := eventKey(p.EventID, msg)
	return h.run(ctx, log, handlerBulkCreated, eventID, func(ctx context.Context) error {
		out, err := h.creator.CreateBulkNotifications(ctx, ins)
		if err != nil {
			return err
		}
		log.Info("Notifications bulk created from event",
			zap.String("event_id", eventID),
			zap.Int("count", len(out)),
		)
		return nil
	})
}

// run wraps fn with deduplication and the retry budget.
func (h *NotificationCreatedHandler) run(ctx context.Context, log *zap.Logger, handler, eventID string, fn func(context.Context) error) error {
	if h.deduper != nil && !h.deduper.AcquireOnce(ctx, handler, eventID) {
		log.Info("Duplicated event, skip",
			zap.String("handler", handler),
			zap.String("event_id", eventID),
		)
		return nil
	}

	retryKey := util.FormatRetryKey(handler, eventID)
	err := fn(ctx)
	if err == nil {
		if h.retryCounter != nil {
			_ = h.retryCounter.Reset(ctx, retryKey)
		}
		return nil
	}

	// Let a redelivery or a DLQ replay of this event through again.
	if h.deduper != nil {
		h.deduper.Release(ctx, handler, eventID)
	}

	retryable, errType := classify(err)
	log.Error("Failed to handle notification event",
		zap.String("handler", handler),
		zap.String("event_id", eventID),
		zap.String("error_type", errType),
		zap.Bool("retryable", retryable),
		zap.Error(err),
	)
	if !retryable {
		return mq.DeadLetter(err)
	}

	if h.retryCounter == nil {
		return err
	}
	count, cerr := h.retryCounter.IncrementAndGet(ctx, retryKey)
	if cerr != nil {
		log.Warn("Retry counter unavailable, requeueing", zap.Error(cerr))
		return err
	}
	if !util.ShouldRetry(count, h.maxRetries, true) {
		_ = h.retryCounter.Reset(ctx, retryKey)
		return mq.DeadLetter(fmt.Errorf("retries exhausted after %d attempts: %w", count, err))
	}
	return err
}

func classify(err error) (bool, string) {
	switch {
	case errors.Is(err, model.ErrValidation):
		return false, "validation_error"
	case errors.Is(err, model.ErrStoreUnavailable):
		return true, "store_unavailable"
	default:
		return util.IsRetryableError(err)
	}
}

func toInput(p mqcontracts.NotificationCreatedPayload) model.NotificationInput {
	return model.NotificationInput{
		Owner:    p.Owner,
		Title:    p.Title,
		Message:  p.Message,
		Type:     p.Type,
		Link:     p.Link,
		Priority: p.Priority,
		Metadata: p.Metadata,
	}
}

// eventKey prefers the producer's event id, then the AMQP message id, then a
// digest of the body.
func eventKey(eventID string, msg mq.Message) string {
	if eventID != "" {
		return eventID
	}
	if msg.ID != "" {
		return msg.ID
	}
	sum := sha256.Sum256(msg.Body)
	return hex.EncodeToString(sum[:16])
}
