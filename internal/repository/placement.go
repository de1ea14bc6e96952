package repository

import (
	"context"

	"github.com/flasheng/flasheng/internal/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PlaceAtomic creates the header with a zero total, prices every item from the
// same transaction, inserts the items and patches the total. Any failure aborts
// the whole transaction, so nothing of a failed placement is ever visible.
func (r *GormOrderRepository) PlaceAtomic(ctx context.Context, userID int64, items []domain.ItemRequest) (int64, error) {
	var orderID int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders := NewGormOrderRepository(tx)
		products := NewGormProductRepository(tx)

		order := &domain.Order{
			UserID:      userID,
			Status:      domain.OrderStatusPending,
			TotalAmount: decimal.Zero,
		}
		if err := orders.CreateHeader(ctx, order); err != nil {
			return err
		}

		total := decimal.Zero
		for _, req := range items {
			p, err := products.GetByID(ctx, req.ProductID)
			if err != nil {
				return err
			}
			if !p.Available {
				return domain.NewConflictError("product %s not available", p.Name)
			}
			line := domain.LineTotal(p.Price, req.Quantity)
			if err := orders.CreateItem(ctx, &domain.OrderItem{
				OrderID:   order.ID,
				ProductID: p.ID,
				Quantity:  req.Quantity,
				UnitPrice: p.Price,
				LineTotal: line,
			}); err != nil {
				return err
			}
			total = total.Add(line)
		}

		if err := orders.UpdateTotal(ctx, order.ID, total); err != nil {
			return err
		}
		orderID = order.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return orderID, nil
}
