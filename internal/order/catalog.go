package order

import (
	"context"
	"strings"

	"github.com/flasheng/flasheng/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductInput fields an operator may set on a product
type ProductInput struct {
	Name      string
	Price     decimal.Decimal
	Available bool
}

func validateProduct(in *ProductInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return domain.NewValidationError("product name required")
	}
	if len(in.Name) > 200 {
		return domain.NewValidationError("product name too long")
	}
	if in.Price.IsNegative() {
		return domain.NewValidationError("price cannot be negative")
	}
	if !in.Price.Equal(in.Price.Round(2)) {
		return domain.NewValidationError("price must have at most 2 decimal places")
	}
	return nil
}

// ListProducts orderable products by name
func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	repos, err := s.plainRepos(ctx)
	if err != nil {
		return nil, cancelled(ctx, err)
	}
	rows, err := repos.Products.ListAvailable(ctx)
	return rows, cancelled(ctx, err)
}

// ListAllProducts every product including unavailable ones
func (s *Service) ListAllProducts(ctx context.Context) ([]domain.Product, error) {
	repos, err := s.plainRepos(ctx)
	if err != nil {
		return nil, cancelled(ctx, err)
	}
	rows, err := repos.Products.List(ctx)
	return rows, cancelled(ctx, err)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	if err := validateID("product", id); err != nil {
		return nil, err
	}
	repos, err := s.plainRepos(ctx)
	if err != nil {
		return nil, cancelled(ctx, err)
	}
	p, err := repos.Products.GetByID(ctx, id)
	return p, cancelled(ctx, err)
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*domain.Product, error) {
	if err := validateProduct(&in); err != nil {
		return nil, err
	}
	repos, err := s.plainRepos(ctx)
	if err != nil {
		return nil, cancelled(ctx, err)
	}
	p := &domain.Product{Name: in.Name, Price: in.Price, Available: in.Available}
	if err := repos.Products.Create(ctx, p); err != nil {
		return nil, cancelled(ctx, err)
	}
	zap.L().Info("product created",
		zap.String("namespace", "catalog"),
		zap.Int64("product_id", p.ID),
		zap.String("price", p.Price.StringFixed(2)))
	return p, nil
}

// UpdateProduct changes catalog data only, prices already captured by order items stay as they are
func (s *Service) UpdateProduct(ctx context.Context, id int64, in ProductInput) (*domain.Product, error) {
	if err := validateID("product", id); err != nil {
		return nil, err
	}
	if err := validateProduct(&in); err != nil {
		return nil, err
	}
	repos, err := s.plainRepos(ctx)
	if err != nil {
		return nil, cancelled(ctx, err)
	}
	p, err := repos.Products.GetByID(ctx, id)
	if err != nil {
		return nil, cancelled(ctx, err)
	}
	p.Name = in.Name
	p.Price = in.Price
	p.Available = in.Available
	if err := repos.Products.Update(ctx, p); err != nil {
		return nil, cancelled(ctx, err)
	}
	return p, nil
}

func (s *Service) SetProductAvailability(ctx context.Context, id int64, available bool) error {
	if err := validateID("product", id); err != nil {
		return err
	}
	repos, err := s.plainRepos(ctx)
	if err != nil {
		return cancelled(ctx, err)
	}
	return cancelled(ctx, repos.Products.SetAvailable(ctx, id, available))
}

// DeleteProduct is refused while any order item references the product
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := validateID("product", id); err != nil {
		return err
	}
	u, err := s.factory.New(domain.ResourceCatalog, domain.ResourceOrders)
	if err != nil {
		return err
	}
	defer u.Close()
	if err := u.Begin(ctx); err != nil {
		return err
	}

	repos := u.Repos()
	p, err := repos.Products.GetByID(ctx, id)
	if err != nil {
		return abort(ctx, u, err)
	}
	refs, err := repos.Orders.CountItemsByProduct(ctx, id)
	if err != nil {
		return abort(ctx, u, err)
	}
	if refs > 0 {
		return abort(ctx, u, domain.NewConflictError("product %s is referenced by %d order items", p.Name, refs))
	}
	if err := repos.Products.Delete(ctx, id); err != nil {
		return abort(ctx, u, err)
	}
	if err := u.Commit(ctx); err != nil {
		return err
	}
	zap.L().Info("product deleted",
		zap.String("namespace", "catalog"),
		zap.Int64("product_id", id))
	return nil
}
