package events

import (
	"encoding/json"
	"fmt"

	"contractit/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Enqueue stores an event in the outbox. tx must be the transaction that
// performs the state change the event describes.
func Enqueue(tx *gorm.DB, aggregateType string, aggregateID uint, routingKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", routingKey, err)
	}
	event := &models.OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		RoutingKey:    routingKey,
		Payload:       datatypes.JSON(body),
		Status:        models.OutboxPending,
	}
	if err := tx.Create(event).Error; err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}
