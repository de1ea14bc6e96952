package order

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/flasheng/flasheng/internal/domain"
	"github.com/flasheng/flasheng/internal/events"
	"github.com/flasheng/flasheng/internal/reconcile"
	"github.com/flasheng/flasheng/internal/repository"
	"github.com/flasheng/flasheng/internal/storage"
	"github.com/flasheng/flasheng/internal/storage/storagetest"
	"github.com/flasheng/flasheng/internal/uow"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected failure")

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type env struct {
	svc     *Service
	reg     *storage.Registry
	journal *reconcile.Journal
	bus     *events.Bus
	repos   *repository.Repositories
}

// newEnv seeds user 1 and products 1..5, product 5 unavailable
func newEnv(t *testing.T, reg *storage.Registry) *env {
	t.Helper()
	journal, err := reconcile.Open(filepath.Join(t.TempDir(), "reconcile.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = journal.Close() })

	factory := uow.NewFactory(reg)
	repos, err := factory.Repos()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, repos.Users.Create(ctx, &domain.User{Email: "john@example.com", DisplayName: "John Doe", Role: domain.RoleUser, Active: true}))
	for _, p := range []domain.Product{
		{Name: "Business English Course", Price: money("29.99"), Available: true},
		{Name: "Travel Phrases Pack", Price: money("19.99"), Available: true},
		{Name: "Advanced Grammar", Price: money("39.99"), Available: true},
		{Name: "IELTS Preparation", Price: money("49.99"), Available: true},
		{Name: "Retired Idioms", Price: money("10.00"), Available: false},
	} {
		p := p
		require.NoError(t, repos.Products.Create(ctx, &p))
	}

	bus := events.NewBus()
	return &env{
		svc:     NewService(factory, journal, bus),
		reg:     reg,
		journal: journal,
		bus:     bus,
		repos:   repos,
	}
}

func (e *env) orderCounts(t *testing.T) (orders, items int64) {
	store, err := e.reg.Resolve(domain.ResourceOrders)
	require.NoError(t, err)
	require.NoError(t, store.DB().Model(&domain.Order{}).Count(&orders).Error)
	require.NoError(t, store.DB().Model(&domain.OrderItem{}).Count(&items).Error)
	return orders, items
}

func req(items ...domain.ItemRequest) PlaceOrderRequest {
	return PlaceOrderRequest{UserID: 1, Items: items}
}

func item(productID int64, qty int) domain.ItemRequest {
	return domain.ItemRequest{ProductID: productID, Quantity: qty}
}

// partitionedWithFlakyCatalog binds orders ahead of the catalog so orders commits first
func partitionedWithFlakyCatalog(t *testing.T) (*storage.Registry, *storagetest.FlakyStore) {
	return flakyRegistry(t, storagetest.OpenStore)
}

func flakyRegistry(t *testing.T, open func(testing.TB, string, ...string) *storage.GormStore) (*storage.Registry, *storagetest.FlakyStore) {
	reg := storage.NewRegistry()
	reg.Bind(domain.ResourceUsers, open(t, "users", domain.ResourceUsers))
	reg.Bind(domain.ResourceFlashcards, open(t, "flashcards", domain.ResourceFlashcards))
	reg.Bind(domain.ResourceOrders, open(t, "orders", domain.ResourceOrders))
	catalog := storagetest.NewFlaky(open(t, "catalog", domain.ResourceCatalog))
	reg.Bind(domain.ResourceCatalog, catalog)
	return reg, catalog
}

func TestPlaceOrderTotals(t *testing.T) {
	e := newEnv(t, storagetest.Partitioned(t))
	ctx := context.Background()

	var placed events.OrderPlaced
	require.NoError(t, e.bus.Subscribe(events.TopicOrderPlaced, func(ev events.OrderPlaced) { placed = ev }))

	id, err := e.svc.PlaceOrder(ctx, req(item(3, 1), item(1, 2), item(2, 3)))
	require.NoError(t, err)
	require.NotZero(t, id)

	order, err := e.svc.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	require.Len(t, order.Items, 3)

	// caller order is kept
	assert.Equal(t, []int64{3, 1, 2}, []int64{order.Items[0].ProductID, order.Items[1].ProductID, order.Items[2].ProductID})
	for _, it := range order.Items {
		assert.True(t, it.LineTotal.Equal(domain.LineTotal(it.UnitPrice, it.Quantity)))
	}
	assert.Equal(t, "59.98", order.Items[1].LineTotal.StringFixed(2))
	assert.Equal(t, "159.94", order.TotalAmount.StringFixed(2))
	assert.True(t, order.TotalAmount.Equal(order.ItemsTotal()))

	assert.Equal(t, id, placed.OrderID)
	assert.Equal(t, 3, placed.Items)
	assert.Equal(t, "159.94", placed.Total.StringFixed(2))
}

func TestPlaceOrderValidation(t *testing.T) {
	e := newEnv(t, storagetest.Partitioned(t))
	cases := []struct {
		name string
		req  PlaceOrderRequest
		msg  string
	}{
		{"empty items", PlaceOrderRequest{UserID: 1}, "at least one item required"},
		{"empty items before user", PlaceOrderRequest{UserID: 0}, "at least one item required"},
		{"user id", PlaceOrderRequest{UserID: -1, Items: []domain.ItemRequest{item(1, 1)}}, "user id must be positive"},
		{"product id", req(item(1, 1), item(0, 1)), "item 2: product id must be positive"},
		{"quantity", req(item(1, 0)), "item 1: quantity must be at least 1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, place := range []func(context.Context, PlaceOrderRequest) (int64, error){e.svc.PlaceOrder, e.svc.PlaceOrderAtomic} {
				_, err := place(context.Background(), tc.req)
				var verr *domain.ValidationError
				require.True(t, errors.As(err, &verr), err)
				assert.Equal(t, tc.msg, verr.Message)
			}
		})
	}
	orders, items := e.orderCounts(t)
	assert.Zero(t, orders)
	assert.Zero(t, items)
}

func TestPlaceOrderUnknownUser(t *testing.T) {
	e := newEnv(t, storagetest.Partitioned(t))
	_, err := e.svc.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: 42, Items: []domain.ItemRequest{item(1, 1)}})
	var nf *domain.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "User", nf.Entity)
	assert.Equal(t, int64(42), nf.ID)
}

func TestPlaceOrderMissingProductLeavesNoRows(t *testing.T) {
	e := newEnv(t, storagetest.Partitioned(t))
	ctx := context.Background()

	var failed events.OrderFailed
	require.NoError(t, e.bus.Subscribe(events.TopicOrderFailed, func(ev events.OrderFailed) { failed = ev }))

	for _, items := range [][]domain.ItemRequest{
		{item(999, 1)},
		{item(1, 2), item(999, 1)},
	} {
		_, err := e.svc.PlaceOrder(ctx, req(items...))
		var nf *domain.NotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, "Product", nf.Entity)
		assert.Equal(t, int64(999), nf.ID)
	}

	orders, err := e.svc.GetUserOrders(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, orders)
	n, items := e.orderCounts(t)
	assert.Zero(t, n)
	assert.Zero(t, items)
	assert.Equal(t, int64(1), failed.UserID)
}

func TestPlaceOrderUnavailableProductLeavesNoRows(t *testing.T) {
	e := newEnv(t, storagetest.Partitioned(t))
	_, err := e.svc.PlaceOrder(context.Background(), req(item(2, 1), item(5, 2)))
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "product Retired Idioms not available", conflict.Message)
	orders, items := e.orderCounts(t)
	assert.Zero(t, orders)
	assert.Zero(t, items)
}

func TestPriceFrozenAtPlacement(t *testing.T) {
	e := newEnv(t, storagetest.Partitioned(t))
	ctx := context.Background()

	p, err := e.svc.CreateProduct(ctx, ProductInput{Name: "Phrasal Verbs", Price: money("10.00"), Available: true})
	require.NoError(t, err)
	id, err := e.svc.PlaceOrder(ctx, req(item(p.ID, 2)))
	require.NoError(t, err)

	_, err = e.svc.UpdateProduct(ctx, p.ID, ProductInput{Name: p.Name, Price: money("20.00"), Available: true})
	require.NoError(t, err)
	current, err := e.svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "20.00", current.Price.StringFixed(2))

	order, err := e.svc.GetOrder(ctx, id)
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "10.00", order.Items[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "20.00", order.Items[0].LineTotal.StringFixed(2))
	assert.Equal(t, "20.00", order.TotalAmount.StringFixed(2))
}

func TestRetryAfterCleanRollback(t *testing.T) {
	e := newEnv(t, storagetest.Partitioned(t))
	ctx := context.Background()
	request := req(item(1, 1), item(5, 1))

	_, err := e.svc.PlaceOrder(ctx, request)
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))

	require.NoError(t, e.svc.SetProductAvailability(ctx, 5, true))
	id, err := e.svc.PlaceOrder(ctx, request)
	require.NoError(t, err)

	orders, err := e.svc.GetUserOrders(ctx, 1)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, id, orders[0].ID)
	assert.Len(t, orders[0].Items, 2)
}

func TestPartialCommitIsJournaled(t *testing.T) {
	reg, catalog := partitionedWithFlakyCatalog(t)
	e := newEnv(t, reg)
	ctx := context.Background()

	var flagged events.ReconcileRequired
	require.NoError(t, e.bus.Subscribe(events.TopicReconcileRequired, func(ev events.ReconcileRequired) { flagged = ev }))

	catalog.CommitErr = errInjected
	_, err := e.svc.PlaceOrder(ctx, req(item(1, 1), item(2, 2)))
	var partial *domain.PartialCommitError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, []string{"orders"}, partial.Committed)
	assert.Equal(t, []string{"catalog"}, partial.Uncommitted)

	// the orders store is durable and must now be reconciled
	orders, err := e.svc.GetUserOrders(ctx, 1)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	pending, err := e.journal.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, orders[0].ID, pending[0].OrderID)
	assert.Equal(t, int64(1), pending[0].UserID)
	assert.Equal(t, []string{"orders"}, pending[0].Committed)
	assert.Contains(t, pending[0].Reason, "injected failure")

	assert.Equal(t, pending[0].ID, flagged.EntryID)
	assert.Equal(t, orders[0].ID, flagged.OrderID)
}

func TestFailedOrderCommitsAreJournaled(t *testing.T) {
	reg := storage.NewRegistry()
	reg.Bind(domain.ResourceUsers, storagetest.OpenStore(t, "users", domain.ResourceUsers))
	reg.Bind(domain.ResourceFlashcards, storagetest.OpenStore(t, "flashcards", domain.ResourceFlashcards))
	reg.Bind(domain.ResourceCatalog, storagetest.OpenStore(t, "catalog", domain.ResourceCatalog))
	orders := storagetest.NewFlaky(storagetest.OpenStore(t, "orders", domain.ResourceOrders))
	reg.Bind(domain.ResourceOrders, orders)
	e := newEnv(t, reg)
	ctx := context.Background()

	id, err := e.svc.PlaceOrder(ctx, req(item(1, 1)))
	require.NoError(t, err)

	orders.CommitErr = errInjected
	var partial *domain.PartialCommitError
	_, err = e.svc.UpdateStatus(ctx, id, "Cancelled")
	require.True(t, errors.As(err, &partial))
	assert.Empty(t, partial.Committed)
	assert.Equal(t, []string{"orders"}, partial.Uncommitted)
	_, err = e.svc.RecordPayment(ctx, id, "Card")
	require.True(t, errors.As(err, &partial))
	require.True(t, errors.As(e.svc.DeleteOrder(ctx, id), &partial))

	pending, err := e.journal.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	ops := make([]string, 0, len(pending))
	for _, entry := range pending {
		assert.Equal(t, id, entry.OrderID)
		ops = append(ops, entry.Operation)
	}
	assert.ElementsMatch(t, []string{
		reconcile.OperationUpdateStatus,
		reconcile.OperationRecordPayment,
		reconcile.OperationDeleteOrder,
	}, ops)

	// nothing reached the orders store
	orders.CommitErr = nil
	stored, err := e.svc.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, stored.Status)
	assert.Nil(t, stored.Payment)
}

func TestRollbackFailureKeepsCause(t *testing.T) {
	reg, catalog := partitionedWithFlakyCatalog(t)
	e := newEnv(t, reg)

	catalog.RollbackErr = errInjected
	_, err := e.svc.PlaceOrder(context.Background(), req(item(1, 1), item(999, 1)))

	var rbErr *domain.RollbackError
	require.True(t, errors.As(err, &rbErr))
	require.Len(t, rbErr.Failures, 1)
	assert.Equal(t, "catalog", rbErr.Failures[0].Resource)

	var nf *domain.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, int64(999), nf.ID)

	orders, items := e.orderCounts(t)
	assert.Zero(t, orders)
	assert.Zero(t, items)
}

func TestCancelledMidPlacementRollsBack(t *testing.T) {
	reg, catalog := flakyRegistry(t, storagetest.OpenFileStore)
	e := newEnv(t, reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	catalog.AfterBegin = cancel

	_, err := e.svc.PlaceOrder(ctx, req(item(1, 1)))
	var cancelledErr *domain.CancelledError
	require.True(t, errors.As(err, &cancelledErr))
	assert.ErrorIs(t, err, context.Canceled)

	orders, items := e.orderCounts(t)
	assert.Zero(t, orders)
	assert.Zero(t, items)
}

func TestBeginFailureIsUnavailable(t *testing.T) {
	reg, catalog := partitionedWithFlakyCatalog(t)
	e := newEnv(t, reg)
	catalog.BeginErr = errInjected

	_, err := e.svc.PlaceOrder(context.Background(), req(item(1, 1)))
	var unavailable *domain.UnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, "catalog", unavailable.Resource)
}

func TestUpdateStatus(t *testing.T) {
	e := newEnv(t, storagetest.Partitioned(t))
	ctx := context.Background()
	id, err := e.svc.PlaceOrder(ctx, req(item(1, 1)))
	require.NoError(t, err)

	var changes []events.StatusChanged
	require.NoError(t, e.bus.Subscribe(events.TopicOrderStatus, func(ev events.StatusChanged) { changes = append(changes, ev) }))

	var verr *domain.ValidationError
	for _, bad := range []string{"", "Shipped", "completed"} {
		_, err = e.svc.UpdateStatus(ctx, id, bad)
		require.True(t, errors.As(err, &verr), bad)
	}
	_, err = e.svc.UpdateStatus(ctx, 0, "Completed")
	require.True(t, errors.As(err, &verr))

	_, err = e.svc.UpdateStatus(ctx, 12345, "Completed")
	var nf *domain.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "Order", nf.Entity)

	order, err := e.svc.UpdateStatus(ctx, id, "Pending")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Empty(t, changes)

	order, err = e.svc.UpdateStatus(ctx, id, "Completed")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, order.Status)
	require.Len(t, changes, 1)
	assert.Equal(t, domain.OrderStatusPending, changes[0].From)

	_, err = e.svc.UpdateStatus(ctx, id, "Cancelled")
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))

	stored, err := e.svc.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, stored.Status)
}

func TestDeleteOrderGuards(t *testing.T) {
	e := newEnv(t, storagetest.Partitioned(t))
	ctx := context.Background()

	completed, err := e.svc.PlaceOrder(ctx, req(item(1, 1)))
	require.NoError(t, err)
	paid, err := e.svc.RecordPayment(ctx, completed, "Card")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, paid.Status)
	require.NotNil(t, paid.Payment)
	assert.Equal(t, "29.99", paid.Payment.Amount.StringFixed(2))

	err = e.svc.DeleteOrder(ctx, completed)
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "cannot delete completed order", conflict.Message)

	_, err = e.svc.RecordPayment(ctx, completed, "Card")
	require.True(t, errors.As(err, &conflict))

	pending, err := e.svc.PlaceOrder(ctx, req(item(2, 1)))
	require.NoError(t, err)
	cancelledID, err := e.svc.PlaceOrder(ctx, req(item(3, 1)))
	require.NoError(t, err)
	_, err = e.svc.UpdateStatus(ctx, cancelledID, "Cancelled")
	require.NoError(t, err)

	require.NoError(t, e.svc.DeleteOrder(ctx, pending))
	require.NoError(t, e.svc.DeleteOrder(ctx, cancelledID))

	var nf *domain.NotFoundError
	require.True(t, errors.As(e.svc.DeleteOrder(ctx, pending), &nf))
	var verr *domain.ValidationError
	require.True(t, errors.As(e.svc.DeleteOrder(ctx, 0), &verr))

	orders, items := e.orderCounts(t)
	assert.Equal(t, int64(1), orders)
	assert.Equal(t, int64(1), items)
}

func TestPlaceOrderAtomic(t *testing.T) {
	e := newEnv(t, storagetest.Colocated(t))
	ctx := context.Background()

	id, err := e.svc.PlaceOrderAtomic(ctx, req(item(4, 1), item(2, 2)))
	require.NoError(t, err)
	order, err := e.svc.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "89.97", order.TotalAmount.StringFixed(2))
	assert.True(t, order.TotalAmount.Equal(order.ItemsTotal()))

	_, err = e.svc.PlaceOrderAtomic(ctx, req(item(1, 1), item(999, 1)))
	var nf *domain.NotFoundError
	require.True(t, errors.As(err, &nf))

	_, err = e.svc.PlaceOrderAtomic(ctx, req(item(1, 1), item(5, 1)))
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))

	_, err = e.svc.PlaceOrderAtomic(ctx, PlaceOrderRequest{UserID: 77, Items: []domain.ItemRequest{item(1, 1)}})
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "User", nf.Entity)

	orders, items := e.orderCounts(t)
	assert.Equal(t, int64(1), orders)
	assert.Equal(t, int64(2), items)
}

func TestPlaceOrderAtomicRefusedWhenPartitioned(t *testing.T) {
	e := newEnv(t, storagetest.Partitioned(t))
	_, err := e.svc.PlaceOrderAtomic(context.Background(), req(item(1, 1)))
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))
	orders, _ := e.orderCounts(t)
	assert.Zero(t, orders)
}

func TestSequentialPathOnColocatedStore(t *testing.T) {
	e := newEnv(t, storagetest.Colocated(t))
	ctx := context.Background()
	id, err := e.svc.PlaceOrder(ctx, req(item(1, 1)))
	require.NoError(t, err)
	_, err = e.svc.PlaceOrder(ctx, req(item(1, 1), item(999, 1)))
	require.Error(t, err)

	orders, err := e.svc.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, id, orders[0].ID)
}

func TestConcurrentPlacements(t *testing.T) {
	for name, reg := range map[string]*storage.Registry{
		"partitioned": storagetest.Partitioned(t),
		"colocated":   storagetest.Colocated(t),
	} {
		t.Run(name, func(t *testing.T) {
			e := newEnv(t, reg)
			const n = 8
			var wg sync.WaitGroup
			errs := make([]error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					place := e.svc.PlaceOrder
					if name == "colocated" && i%2 == 0 {
						place = e.svc.PlaceOrderAtomic
					}
					_, errs[i] = place(context.Background(), req(item(2, 1), item(3, 2)))
				}(i)
			}
			wg.Wait()
			for _, err := range errs {
				require.NoError(t, err)
			}

			orders, err := e.svc.ListOrders(context.Background())
			require.NoError(t, err)
			require.Len(t, orders, n)
			for _, o := range orders {
				assert.Equal(t, "99.97", o.TotalAmount.StringFixed(2))
				assert.True(t, o.TotalAmount.Equal(o.ItemsTotal()))
			}
		})
	}
}
