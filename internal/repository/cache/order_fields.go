package cache

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nastyazhadan/matching-engine/internal/domain/models"
)

func orderFields(o models.Order) map[string]interface{} {
	return map[string]interface{}{
		"order_id":        o.ID,
		"user_id":         o.UserID.String(),
		"symbol":          o.Symbol,
		"side":            int(o.Side),
		"type":            int(o.Type),
		"price":           o.Price.String(),
		"quantity":        o.Quantity.String(),
		"filled_quantity": o.FilledQuantity.String(),
		"status":          int(o.Status),
		"created_at":      o.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":      o.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func orderFromFields(fields map[string]string) (models.Order, error) {
	id, err := strconv.ParseInt(fields["order_id"], 10, 64)
	if err != nil {
		return models.Order{}, fmt.Errorf("parse order_id: %w", err)
	}
	userID, err := uuid.Parse(fields["user_id"])
	if err != nil {
		return models.Order{}, fmt.Errorf("parse user_id: %w", err)
	}
	side, err := strconv.Atoi(fields["side"])
	if err != nil {
		return models.Order{}, fmt.Errorf("parse side: %w", err)
	}
	orderType, err := strconv.Atoi(fields["type"])
	if err != nil {
		return models.Order{}, fmt.Errorf("parse type: %w", err)
	}
	price, err := decimal.NewFromString(fields["price"])
	if err != nil {
		return models.Order{}, fmt.Errorf("parse price: %w", err)
	}
	quantity, err := decimal.NewFromString(fields["quantity"])
	if err != nil {
		return models.Order{}, fmt.Errorf("parse quantity: %w", err)
	}
	filled, err := decimal.NewFromString(fields["filled_quantity"])
	if err != nil {
		return models.Order{}, fmt.Errorf("parse filled_quantity: %w", err)
	}
	status, err := strconv.Atoi(fields["status"])
	if err != nil {
		return models.Order{}, fmt.Errorf("parse status: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return models.Order{}, fmt.Errorf("parse created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, fields["updated_at"])
	if err != nil {
		return models.Order{}, fmt.Errorf("parse updated_at: %w", err)
	}

	return models.Order{
		ID:             id,
		UserID:         userID,
		Symbol:         fields["symbol"],
		Side:           models.Side(side),
		Type:           models.OrderType(orderType),
		Price:          price,
		Quantity:       quantity,
		FilledQuantity: filled,
		Status:         models.OrderStatus(status),
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}, nil
}
