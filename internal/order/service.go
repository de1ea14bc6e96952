package order

import (
	"context"
	"errors"
	"time"

	"github.com/flasheng/flasheng/internal/domain"
	"github.com/flasheng/flasheng/internal/events"
	"github.com/flasheng/flasheng/internal/reconcile"
	"github.com/flasheng/flasheng/internal/repository"
	"github.com/flasheng/flasheng/internal/uow"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Journal records placements that need manual reconciliation
type Journal interface {
	Record(ctx context.Context, e *reconcile.Entry) error
}

type Publisher interface {
	Publish(topic string, event interface{})
}

type PlaceOrderRequest struct {
	UserID int64                `json:"user_id"`
	Items  []domain.ItemRequest `json:"items"`
}

// Service order placement and the order lifecycle rules
type Service struct {
	factory *uow.Factory
	journal Journal
	events  Publisher
}

// NewService journal and publisher may be nil
func NewService(factory *uow.Factory, journal Journal, publisher Publisher) *Service {
	return &Service{
		factory: factory,
		journal: journal,
		events:  publisher,
	}
}

func (s *Service) publish(topic string, event interface{}) {
	if s.events != nil {
		s.events.Publish(topic, event)
	}
}

func validatePlacement(req PlaceOrderRequest) error {
	if len(req.Items) == 0 {
		return domain.NewValidationError("at least one item required")
	}
	if req.UserID <= 0 {
		return domain.NewValidationError("user id must be positive")
	}
	for i, item := range req.Items {
		if item.ProductID <= 0 {
			return domain.NewValidationError("item %d: product id must be positive", i+1)
		}
		if item.Quantity < 1 {
			return domain.NewValidationError("item %d: quantity must be at least 1", i+1)
		}
	}
	return nil
}

func validateID(name string, id int64) error {
	if id <= 0 {
		return domain.NewValidationError("%s id must be positive", name)
	}
	return nil
}

// cancelled turns an error raised while ctx ended into a CancelledError
func cancelled(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	ctxErr := ctx.Err()
	if ctxErr == nil {
		return err
	}
	var c *domain.CancelledError
	if errors.As(err, &c) {
		return err
	}
	return &domain.CancelledError{Err: ctxErr, Cause: err}
}

// abort rolls the unit back and returns the triggering error. A failed rollback
// is merged in as a RollbackError that still unwraps to the cause.
func abort(ctx context.Context, u *uow.UnitOfWork, cause error) error {
	out := cause
	var rb *domain.RollbackError
	if errors.As(u.Rollback(), &rb) {
		out = &domain.RollbackError{Cause: cause, Failures: rb.Failures}
	}
	return cancelled(ctx, out)
}

func (s *Service) plainRepos(ctx context.Context) (*repository.Repositories, error) {
	repos, err := s.factory.Repos()
	if err != nil {
		return nil, err
	}
	return repos, ctx.Err()
}

// checkUser runs outside any transaction
func (s *Service) checkUser(ctx context.Context, userID int64) error {
	repos, err := s.plainRepos(ctx)
	if err != nil {
		return cancelled(ctx, err)
	}
	_, err = repos.Users.GetByID(ctx, userID)
	return cancelled(ctx, err)
}

// PlaceOrder places an order across the catalog and orders resources. The header
// is written first with a zero total, then each item in caller order priced
// from the catalog at this instant, then the total. On a partial commit the
// order is journaled for reconciliation and the PartialCommitError is returned.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (int64, error) {
	if err := validatePlacement(req); err != nil {
		return 0, err
	}
	if err := s.checkUser(ctx, req.UserID); err != nil {
		return 0, s.failed(req, false, err)
	}

	u, err := s.factory.New(domain.ResourceCatalog, domain.ResourceOrders)
	if err != nil {
		return 0, s.failed(req, false, err)
	}
	defer u.Close()
	if err := u.Begin(ctx); err != nil {
		return 0, s.failed(req, false, err)
	}

	order, err := placeItems(ctx, u.Repos(), req)
	if err != nil {
		return 0, s.failed(req, false, abort(ctx, u, err))
	}

	if err := u.Commit(ctx); err != nil {
		s.flagPartial(ctx, reconcile.OperationPlaceOrder, order, err)
		return 0, err
	}

	zap.L().Info("order placed",
		zap.String("namespace", "order"),
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", order.UserID),
		zap.String("total", order.TotalAmount.StringFixed(2)),
		zap.Int("items", len(order.Items)))
	s.publish(events.TopicOrderPlaced, events.OrderPlaced{
		OrderID: order.ID,
		UserID:  order.UserID,
		Total:   order.TotalAmount,
		Items:   len(order.Items),
	})
	return order.ID, nil
}

func placeItems(ctx context.Context, repos *repository.Repositories, req PlaceOrderRequest) (*domain.Order, error) {
	order := &domain.Order{
		UserID:      req.UserID,
		Status:      domain.OrderStatusPending,
		TotalAmount: decimal.Zero,
	}
	if err := repos.Orders.CreateHeader(ctx, order); err != nil {
		return order, err
	}

	total := decimal.Zero
	for _, line := range req.Items {
		p, err := repos.Products.GetByID(ctx, line.ProductID)
		if err != nil {
			return order, err
		}
		if !p.Available {
			return order, domain.NewConflictError("product %s not available", p.Name)
		}
		item := domain.OrderItem{
			OrderID:   order.ID,
			ProductID: p.ID,
			Quantity:  line.Quantity,
			UnitPrice: p.Price,
			LineTotal: domain.LineTotal(p.Price, line.Quantity),
		}
		if err := repos.Orders.CreateItem(ctx, &item); err != nil {
			return order, err
		}
		order.Items = append(order.Items, item)
		total = total.Add(item.LineTotal)
	}

	if err := repos.Orders.UpdateTotal(ctx, order.ID, total); err != nil {
		return order, err
	}
	order.TotalAmount = total
	return order, nil
}

// flagPartial journals a failed commit of operation. The journal write must not
// depend on the request context, which may be the reason the commit stopped.
func (s *Service) flagPartial(ctx context.Context, operation string, order *domain.Order, err error) {
	var partial *domain.PartialCommitError
	if !errors.As(err, &partial) {
		return
	}
	entry := &reconcile.Entry{
		Operation:   operation,
		OrderID:     order.ID,
		UserID:      order.UserID,
		Committed:   partial.Committed,
		Uncommitted: partial.Uncommitted,
		Reason:      partial.Err.Error(),
	}
	if s.journal != nil {
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if jerr := s.journal.Record(recordCtx, entry); jerr != nil {
			zap.L().Error("failed to journal partial commit",
				zap.String("namespace", "order"),
				zap.Int64("order_id", order.ID),
				zap.NamedError("commit_error", err),
				zap.Error(jerr))
		}
	}
	zap.L().Error("order requires reconciliation",
		zap.String("namespace", "order"),
		zap.String("operation", operation),
		zap.Int64("order_id", order.ID),
		zap.Int64("entry_id", entry.ID),
		zap.Strings("committed", partial.Committed),
		zap.Strings("uncommitted", partial.Uncommitted),
		zap.Error(partial.Err))
	s.publish(events.TopicReconcileRequired, events.ReconcileRequired{
		EntryID:     entry.ID,
		OrderID:     order.ID,
		UserID:      order.UserID,
		Committed:   partial.Committed,
		Uncommitted: partial.Uncommitted,
		Reason:      entry.Reason,
	})
}

func (s *Service) failed(req PlaceOrderRequest, atomic bool, err error) error {
	zap.L().Warn("order placement failed",
		zap.String("namespace", "order"),
		zap.Int64("user_id", req.UserID),
		zap.Bool("atomic", atomic),
		zap.Error(err))
	s.publish(events.TopicOrderFailed, events.OrderFailed{UserID: req.UserID, Atomic: atomic, Err: err})
	return err
}

// PlaceOrderAtomic places the whole order in one native transaction of the
// orders store. Refused unless the catalog shares that store.
func (s *Service) PlaceOrderAtomic(ctx context.Context, req PlaceOrderRequest) (int64, error) {
	if err := validatePlacement(req); err != nil {
		return 0, err
	}
	if !s.factory.Colocated(domain.ResourceCatalog, domain.ResourceOrders) {
		return 0, domain.NewConflictError("atomic placement requires catalog and orders on the same store")
	}
	if err := s.checkUser(ctx, req.UserID); err != nil {
		return 0, s.failed(req, true, err)
	}

	repos, err := s.plainRepos(ctx)
	if err != nil {
		return 0, s.failed(req, true, cancelled(ctx, err))
	}
	id, err := repos.Orders.PlaceAtomic(ctx, req.UserID, req.Items)
	if err != nil {
		return 0, s.failed(req, true, cancelled(ctx, err))
	}

	event := events.OrderPlaced{OrderID: id, UserID: req.UserID, Items: len(req.Items), Atomic: true}
	if order, err := repos.Orders.GetByID(ctx, id); err == nil {
		event.Total = order.TotalAmount
	}
	zap.L().Info("order placed",
		zap.String("namespace", "order"),
		zap.Int64("order_id", id),
		zap.Int64("user_id", req.UserID),
		zap.Bool("atomic", true))
	s.publish(events.TopicOrderPlaced, event)
	return id, nil
}

// UpdateStatus moves a Pending order to Completed or Cancelled. Re-applying the
// current status is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, status string) (*domain.Order, error) {
	if err := validateID("order", orderID); err != nil {
		return nil, err
	}
	next, err := domain.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}

	u, err := s.factory.New(domain.ResourceOrders)
	if err != nil {
		return nil, err
	}
	defer u.Close()
	if err := u.Begin(ctx); err != nil {
		return nil, err
	}

	order, err := u.Repos().Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, abort(ctx, u, err)
	}
	from := order.Status
	if from == next {
		return order, nil
	}
	if !from.CanTransition(next) {
		return nil, abort(ctx, u, domain.NewConflictError("cannot change order status from %s to %s", from, next))
	}
	if err := u.Repos().Orders.UpdateStatus(ctx, orderID, next); err != nil {
		return nil, abort(ctx, u, err)
	}
	if err := u.Commit(ctx); err != nil {
		s.flagPartial(ctx, reconcile.OperationUpdateStatus, order, err)
		return nil, err
	}

	order.Status = next
	zap.L().Info("order status changed",
		zap.String("namespace", "order"),
		zap.Int64("order_id", orderID),
		zap.String("from", string(from)),
		zap.String("to", string(next)))
	s.publish(events.TopicOrderStatus, events.StatusChanged{OrderID: orderID, From: from, To: next})
	return order, nil
}

// DeleteOrder removes an order with its items and payment. Completed orders are immutable.
func (s *Service) DeleteOrder(ctx context.Context, orderID int64) error {
	if err := validateID("order", orderID); err != nil {
		return err
	}
	u, err := s.factory.New(domain.ResourceOrders)
	if err != nil {
		return err
	}
	defer u.Close()
	if err := u.Begin(ctx); err != nil {
		return err
	}

	order, err := u.Repos().Orders.GetByID(ctx, orderID)
	if err != nil {
		return abort(ctx, u, err)
	}
	if order.Status == domain.OrderStatusCompleted {
		return abort(ctx, u, domain.NewConflictError("cannot delete completed order"))
	}
	if err := u.Repos().Orders.Delete(ctx, orderID); err != nil {
		return abort(ctx, u, err)
	}
	if err := u.Commit(ctx); err != nil {
		s.flagPartial(ctx, reconcile.OperationDeleteOrder, order, err)
		return err
	}

	zap.L().Info("order deleted",
		zap.String("namespace", "order"),
		zap.Int64("order_id", orderID),
		zap.String("status", string(order.Status)))
	s.publish(events.TopicOrderDeleted, events.OrderDeleted{OrderID: orderID, Status: order.Status})
	return nil
}

// RecordPayment stores the payment of a Pending order and completes it
func (s *Service) RecordPayment(ctx context.Context, orderID int64, method string) (*domain.Order, error) {
	if err := validateID("order", orderID); err != nil {
		return nil, err
	}
	if method == "" {
		return nil, domain.NewValidationError("payment method required")
	}
	u, err := s.factory.New(domain.ResourceOrders)
	if err != nil {
		return nil, err
	}
	defer u.Close()
	if err := u.Begin(ctx); err != nil {
		return nil, err
	}

	repos := u.Repos()
	order, err := repos.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, abort(ctx, u, err)
	}
	if !order.Status.CanTransition(domain.OrderStatusCompleted) {
		return nil, abort(ctx, u, domain.NewConflictError("cannot pay order in status %s", order.Status))
	}
	payment := &domain.Payment{
		OrderID: orderID,
		Amount:  order.TotalAmount,
		Method:  method,
		Status:  domain.PaymentStatusPaid,
		PaidAt:  time.Now(),
	}
	if err := repos.Orders.CreatePayment(ctx, payment); err != nil {
		return nil, abort(ctx, u, err)
	}
	if err := repos.Orders.UpdateStatus(ctx, orderID, domain.OrderStatusCompleted); err != nil {
		return nil, abort(ctx, u, err)
	}
	if err := u.Commit(ctx); err != nil {
		s.flagPartial(ctx, reconcile.OperationRecordPayment, order, err)
		return nil, err
	}

	from := order.Status
	order.Status = domain.OrderStatusCompleted
	order.Payment = payment
	s.publish(events.TopicOrderStatus, events.StatusChanged{OrderID: orderID, From: from, To: order.Status})
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	if err := validateID("order", orderID); err != nil {
		return nil, err
	}
	repos, err := s.plainRepos(ctx)
	if err != nil {
		return nil, cancelled(ctx, err)
	}
	order, err := repos.Orders.GetByID(ctx, orderID)
	return order, cancelled(ctx, err)
}

// GetUserOrders newest first
func (s *Service) GetUserOrders(ctx context.Context, userID int64) ([]domain.Order, error) {
	if err := validateID("user", userID); err != nil {
		return nil, err
	}
	repos, err := s.plainRepos(ctx)
	if err != nil {
		return nil, cancelled(ctx, err)
	}
	orders, err := repos.Orders.ListByUser(ctx, userID)
	return orders, cancelled(ctx, err)
}

func (s *Service) ListOrders(ctx context.Context) ([]domain.Order, error) {
	repos, err := s.plainRepos(ctx)
	if err != nil {
		return nil, cancelled(ctx, err)
	}
	orders, err := repos.Orders.List(ctx)
	return orders, cancelled(ctx, err)
}
