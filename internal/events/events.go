package events

import (
	"github.com/asaskevich/EventBus"
	"github.com/flasheng/flasheng/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	TopicOrderPlaced       = "order:placed"
	TopicOrderStatus       = "order:status"
	TopicOrderDeleted      = "order:deleted"
	TopicOrderFailed       = "order:failed"
	TopicReconcileRequired = "order:reconcile"
)

type OrderPlaced struct {
	OrderID int64
	UserID  int64
	Total   decimal.Decimal
	Items   int
	Atomic  bool
}

type StatusChanged struct {
	OrderID int64
	From    domain.OrderStatus
	To      domain.OrderStatus
}

type OrderDeleted struct {
	OrderID int64
	Status  domain.OrderStatus
}

type OrderFailed struct {
	UserID int64
	Atomic bool
	Err    error
}

// ReconcileRequired a placement left committed and uncommitted stores behind
type ReconcileRequired struct {
	EntryID     int64
	OrderID     int64
	UserID      int64
	Committed   []string
	Uncommitted []string
	Reason      string
}

// Bus in-process event bus. Handlers take the event struct as their only argument.
type Bus struct {
	bus EventBus.Bus
}

func NewBus() *Bus {
	return &Bus{bus: EventBus.New()}
}

func (b *Bus) Publish(topic string, event interface{}) {
	defer func() {
		if err := recover(); err != nil {
			zap.L().Error("event handler panic",
				zap.String("namespace", "events"),
				zap.String("topic", topic),
				zap.Any("error", err))
		}
	}()
	b.bus.Publish(topic, event)
}

func (b *Bus) Subscribe(topic string, fn interface{}) error {
	return b.bus.Subscribe(topic, fn)
}

// SubscribeAsync runs fn on its own goroutine, events of one topic serialized
func (b *Bus) SubscribeAsync(topic string, fn interface{}) error {
	return b.bus.SubscribeAsync(topic, fn, true)
}

func (b *Bus) Unsubscribe(topic string, fn interface{}) error {
	return b.bus.Unsubscribe(topic, fn)
}

func (b *Bus) HasSubscribers(topic string) bool {
	return b.bus.HasCallback(topic)
}

// WaitAsync blocks until async handlers finish
func (b *Bus) WaitAsync() {
	b.bus.WaitAsync()
}
