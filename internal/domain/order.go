package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusCompleted OrderStatus = "Completed"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

var OrderStatuses = []OrderStatus{OrderStatusPending, OrderStatusCompleted, OrderStatusCancelled}

// ParseOrderStatus accepts only the exact status names
func ParseOrderStatus(s string) (OrderStatus, error) {
	v := OrderStatus(strings.TrimSpace(s))
	for _, st := range OrderStatuses {
		if v == st {
			return st, nil
		}
	}
	if v == "" {
		return "", NewValidationError("status cannot be empty")
	}
	return "", NewValidationError("invalid status value %q", s)
}

// CanTransition reports whether an order in status s may move to next.
// Only Pending orders move, and only to Completed or Cancelled.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	return s == OrderStatusPending && (next == OrderStatusCompleted || next == OrderStatusCancelled)
}

type Order struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64           `gorm:"index;not null" json:"user_id"`
	Status      OrderStatus     `gorm:"size:20;not null;index" json:"status"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total_amount"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Items       []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	Payment     *Payment        `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"payment,omitempty"`
}

// TableName Specify table name
func (Order) TableName() string {
	return "orders"
}

// ItemsTotal sums the line totals of the loaded items
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineTotal)
	}
	return total
}

// OrderItem price is frozen at placement time. ProductID carries no foreign key
// because the catalog may live on a different resource than the orders.
type OrderItem struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   int64           `gorm:"index;not null" json:"order_id"`
	ProductID int64           `gorm:"index;not null" json:"product_id"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	LineTotal decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"line_total"`
}

// TableName Specify table name
func (OrderItem) TableName() string {
	return "order_items"
}

// ItemRequest one requested line of a placement
type ItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// LineTotal price multiplied by quantity, exact
func LineTotal(price decimal.Decimal, qty int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(qty)))
}
