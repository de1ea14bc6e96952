package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentStatusPaid     = "Paid"
	PaymentStatusRefunded = "Refunded"
)

// Payment one per order, stored with the orders
type Payment struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   int64           `gorm:"uniqueIndex;not null" json:"order_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Method    string          `gorm:"size:50" json:"method"`
	Status    string          `gorm:"size:20" json:"status"`
	PaidAt    time.Time       `json:"paid_at"`
	CreatedAt time.Time       `json:"created_at"`
}

// TableName Specify table name
func (Payment) TableName() string {
	return "payments"
}
