package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-core/pkg/enums"
)

// CheckoutAttempt is one submission through the checkout pipeline. Card data and document
// numbers are never stored.
type CheckoutAttempt struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	SessionID     string                `gorm:"column:session_id;not null"`
	CustomerID    *string               `gorm:"column:customer_id"`
	PaymentMethod enums.PaymentMethod   `gorm:"column:payment_method;not null"`
	Outcome       enums.CheckoutOutcome `gorm:"column:outcome;not null"`
	ErrorCode     *string               `gorm:"column:error_code"`
	OrderID       *string               `gorm:"column:order_id"`
	TransactionID *string               `gorm:"column:transaction_id"`
	Amount        decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null;default:0"`
	Installments  int                   `gorm:"column:installments;not null;default:1"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
}

