package events

import (
	"context"
	"fmt"
	"time"

	"contractit/metrics"
	"contractit/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Dispatcher reads pending outbox events and publishes them. The publisher
// (the broker) is retried with backoff; the notifier (websocket clients) is
// told at most once per event.
type Dispatcher struct {
	db         *gorm.DB
	publisher  Publisher
	notifier   Publisher
	logger     *zap.Logger
	maxRetries int
	interval   time.Duration
	batchSize  int
	now        func() time.Time
}

// NewDispatcher builds a dispatcher. publisher may be nil, in which case
// events are marked sent once the notifier has seen them.
func NewDispatcher(db *gorm.DB, publisher Publisher, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		db:         db,
		publisher:  publisher,
		logger:     logger.Named("outbox"),
		maxRetries: 5,
		interval:   time.Second,
		batchSize:  100,
		now:        time.Now,
	}
}

func (d *Dispatcher) WithNotifier(notifier Publisher) *Dispatcher {
	d.notifier = notifier
	return d
}

func (d *Dispatcher) WithMaxRetries(maxRetries int) *Dispatcher {
	d.maxRetries = maxRetries
	return d
}

func (d *Dispatcher) WithInterval(interval time.Duration) *Dispatcher {
	d.interval = interval
	return d
}

func (d *Dispatcher) WithBatchSize(batchSize int) *Dispatcher {
	d.batchSize = batchSize
	return d
}

// Start blocks until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("starting outbox dispatcher",
		zap.Int("max_retries", d.maxRetries),
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := d.ProcessPending(ctx); err != nil {
				d.logger.Error("failed to process outbox", zap.Error(err))
			}
		}
	}
}

// ProcessPending publishes one batch of due events and returns how many were
// sent.
func (d *Dispatcher) ProcessPending(ctx context.Context) (int, error) {
	now := d.now()
	var pending []models.OutboxEvent
	err := d.db.WithContext(ctx).
		Where("status = ?", models.OutboxPending).
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
		Order("created_at ASC, id ASC").
		Limit(d.batchSize).
		Find(&pending).Error
	if err != nil {
		return 0, fmt.Errorf("query pending events: %w", err)
	}
	metrics.OutboxPending.Set(float64(len(pending)))

	sent := 0
	for i := range pending {
		event := &pending[i]
		d.notify(ctx, event)
		if d.publisher != nil {
			if err := d.publisher.Publish(ctx, event.RoutingKey, event.Payload); err != nil {
				d.logger.Error("failed to publish event",
					zap.Uint("event_id", event.ID),
					zap.String("routing_key", event.RoutingKey),
					zap.Error(err),
				)
				if err := d.markFailed(ctx, event, now); err != nil {
					d.logger.Error("failed to mark event as failed", zap.Uint("event_id", event.ID), zap.Error(err))
				}
				continue
			}
		}

		err := d.db.WithContext(ctx).Model(&models.OutboxEvent{}).
			Where("id = ?", event.ID).
			Update("status", models.OutboxSent).Error
		if err != nil {
			d.logger.Error("failed to mark event as sent", zap.Uint("event_id", event.ID), zap.Error(err))
			continue
		}
		sent++
		metrics.OutboxPublished.WithLabelValues(event.RoutingKey, "sent").Inc()
		d.logger.Debug("event published", zap.Uint("event_id", event.ID), zap.String("routing_key", event.RoutingKey))
	}
	return sent, nil
}

// notify hands the event to the notifier unless it already has it. The
// notified flag outlives broker retries and replays.
func (d *Dispatcher) notify(ctx context.Context, event *models.OutboxEvent) {
	if d.notifier == nil || event.Notified {
		return
	}
	if err := d.notifier.Publish(ctx, event.RoutingKey, event.Payload); err != nil {
		d.logger.Warn("failed to notify clients", zap.Uint("event_id", event.ID), zap.Error(err))
		return
	}
	err := d.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", event.ID).
		Update("notified", true).Error
	if err != nil {
		d.logger.Error("failed to mark event as notified", zap.Uint("event_id", event.ID), zap.Error(err))
		return
	}
	event.Notified = true
}

// markFailed schedules a retry with linear backoff (5s, 10s, 15s...) or gives
// up once maxRetries is reached.
func (d *Dispatcher) markFailed(ctx context.Context, event *models.OutboxEvent, now time.Time) error {
	retryCount := event.RetryCount + 1
	updates := map[string]interface{}{"retry_count": retryCount}
	if retryCount >= d.maxRetries {
		updates["status"] = models.OutboxFailed
		updates["next_retry_at"] = nil
		metrics.OutboxPublished.WithLabelValues(event.RoutingKey, "failed").Inc()
	} else {
		next := now.Add(time.Duration(retryCount) * 5 * time.Second)
		updates["next_retry_at"] = next
		metrics.OutboxPublished.WithLabelValues(event.RoutingKey, "retry").Inc()
	}
	return d.db.WithContext(ctx).Model(&models.OutboxEvent{}).Where("id = ?", event.ID).Updates(updates).Error
}

// Replay resets a failed event so the next poll publishes it again.
func (d *Dispatcher) Replay(ctx context.Context, eventID uint) error {
	res := d.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", eventID).
		Updates(map[string]interface{}{"status": models.OutboxPending, "retry_count": 0, "next_retry_at": nil})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("event %d not found", eventID)
	}
	return nil
}
