package repository

import (
	"context"

	"github.com/flasheng/flasheng/internal/domain"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ProductRepository handles catalog rows
type ProductRepository interface {
	// GetByID returns NotFoundError when the product does not exist
	GetByID(ctx context.Context, id int64) (*domain.Product, error)

	// ListAvailable returns orderable products ordered by name
	ListAvailable(ctx context.Context) ([]domain.Product, error)

	// List returns every product ordered by id
	List(ctx context.Context) ([]domain.Product, error)

	Create(ctx context.Context, p *domain.Product) error

	// Update saves name, price and availability
	Update(ctx context.Context, p *domain.Product) error

	SetAvailable(ctx context.Context, id int64, available bool) error

	Delete(ctx context.Context, id int64) error

	Count(ctx context.Context) (int64, error)
}

type GormProductRepository struct {
	db *gorm.DB
}

var _ ProductRepository = (*GormProductRepository)(nil)

func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

func (r *GormProductRepository) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, translate(err, "Product", id)
	}
	return &p, nil
}

func (r *GormProductRepository) ListAvailable(ctx context.Context) ([]domain.Product, error) {
	var rows []domain.Product
	err := r.db.WithContext(ctx).Where("available = ?", true).Order("name").Find(&rows).Error
	return rows, errors.Wrap(err, "list available products")
}

func (r *GormProductRepository) List(ctx context.Context) ([]domain.Product, error) {
	var rows []domain.Product
	err := r.db.WithContext(ctx).Order("id").Find(&rows).Error
	return rows, errors.Wrap(err, "list products")
}

func (r *GormProductRepository) Create(ctx context.Context, p *domain.Product) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(p).Error, "create product")
}

func (r *GormProductRepository) Update(ctx context.Context, p *domain.Product) error {
	result := r.db.WithContext(ctx).Model(&domain.Product{}).Where("id = ?", p.ID).
		Select("name", "price", "available", "updated_at").
		Updates(p)
	if result.Error != nil {
		return errors.Wrapf(result.Error, "update product %d", p.ID)
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("Product", p.ID)
	}
	return nil
}

func (r *GormProductRepository) SetAvailable(ctx context.Context, id int64, available bool) error {
	result := r.db.WithContext(ctx).Model(&domain.Product{}).Where("id = ?", id).Update("available", available)
	if result.Error != nil {
		return errors.Wrapf(result.Error, "update product %d", id)
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("Product", id)
	}
	return nil
}

func (r *GormProductRepository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&domain.Product{}, id)
	if result.Error != nil {
		return errors.Wrapf(result.Error, "delete product %d", id)
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("Product", id)
	}
	return nil
}

func (r *GormProductRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Product{}).Count(&count).Error
	return count, errors.Wrap(err, "count products")
}
