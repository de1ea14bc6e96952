package repository

import (
	"context"

	"github.com/flasheng/flasheng/internal/domain"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderRepository handles order, item and payment rows. All writes run on the
// session the repository was built with, so inside a unit of work they share its transaction.
type OrderRepository interface {
	// GetByID loads the order with its items (insertion order) and payment
	GetByID(ctx context.Context, id int64) (*domain.Order, error)

	// ListByUser returns the user's orders, newest first
	ListByUser(ctx context.Context, userID int64) ([]domain.Order, error)

	List(ctx context.Context) ([]domain.Order, error)

	// CreateHeader inserts the order row only, never its associations
	CreateHeader(ctx context.Context, order *domain.Order) error

	CreateItem(ctx context.Context, item *domain.OrderItem) error

	UpdateTotal(ctx context.Context, orderID int64, total decimal.Decimal) error

	UpdateStatus(ctx context.Context, orderID int64, status domain.OrderStatus) error

	// Delete removes payment, items and header
	Delete(ctx context.Context, orderID int64) error

	// CountItemsByProduct number of order items referencing a product
	CountItemsByProduct(ctx context.Context, productID int64) (int64, error)

	CreatePayment(ctx context.Context, payment *domain.Payment) error

	Count(ctx context.Context) (int64, error)

	// PlaceAtomic prices and inserts a whole order in one native transaction.
	// Needs the products table on the same database as the orders.
	PlaceAtomic(ctx context.Context, userID int64, items []domain.ItemRequest) (int64, error)
}

type GormOrderRepository struct {
	db *gorm.DB
}

var _ OrderRepository = (*GormOrderRepository)(nil)

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) withItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("order_items.id")
	}).Preload("Payment")
}

func (r *GormOrderRepository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	var order domain.Order
	if err := r.withItems(r.db.WithContext(ctx)).First(&order, id).Error; err != nil {
		return nil, translate(err, "Order", id)
	}
	return &order, nil
}

func (r *GormOrderRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	var orders []domain.Order
	err := r.withItems(r.db.WithContext(ctx)).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc").
		Find(&orders).Error
	return orders, errors.Wrapf(err, "list orders of user %d", userID)
}

func (r *GormOrderRepository) List(ctx context.Context) ([]domain.Order, error) {
	var orders []domain.Order
	err := r.withItems(r.db.WithContext(ctx)).Order("id").Find(&orders).Error
	return orders, errors.Wrap(err, "list orders")
}

func (r *GormOrderRepository) CreateHeader(ctx context.Context, order *domain.Order) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error
	return errors.Wrap(err, "insert order header")
}

func (r *GormOrderRepository) CreateItem(ctx context.Context, item *domain.OrderItem) error {
	err := r.db.WithContext(ctx).Create(item).Error
	return errors.Wrapf(err, "insert item of order %d", item.OrderID)
}

func (r *GormOrderRepository) UpdateTotal(ctx context.Context, orderID int64, total decimal.Decimal) error {
	return r.updateColumn(ctx, orderID, "total_amount", total)
}

func (r *GormOrderRepository) UpdateStatus(ctx context.Context, orderID int64, status domain.OrderStatus) error {
	return r.updateColumn(ctx, orderID, "status", string(status))
}

func (r *GormOrderRepository) updateColumn(ctx context.Context, orderID int64, column string, value interface{}) error {
	result := r.db.WithContext(ctx).Model(&domain.Order{}).Where("id = ?", orderID).Update(column, value)
	if result.Error != nil {
		return errors.Wrapf(result.Error, "update %s of order %d", column, orderID)
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("Order", orderID)
	}
	return nil
}

func (r *GormOrderRepository) Delete(ctx context.Context, orderID int64) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("order_id = ?", orderID).Delete(&domain.Payment{}).Error; err != nil {
		return errors.Wrapf(err, "delete payment of order %d", orderID)
	}
	if err := db.Where("order_id = ?", orderID).Delete(&domain.OrderItem{}).Error; err != nil {
		return errors.Wrapf(err, "delete items of order %d", orderID)
	}
	result := db.Delete(&domain.Order{}, orderID)
	if result.Error != nil {
		return errors.Wrapf(result.Error, "delete order %d", orderID)
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("Order", orderID)
	}
	return nil
}

func (r *GormOrderRepository) CountItemsByProduct(ctx context.Context, productID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.OrderItem{}).Where("product_id = ?", productID).Count(&count).Error
	return count, errors.Wrapf(err, "count items of product %d", productID)
}

func (r *GormOrderRepository) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	return errors.Wrapf(r.db.WithContext(ctx).Create(payment).Error, "insert payment of order %d", payment.OrderID)
}

func (r *GormOrderRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Order{}).Count(&count).Error
	return count, errors.Wrap(err, "count orders")
}
