package metrics

import (
	"os"
	"path"
	"sync"
	"time"

	"github.com/nakabonne/tstorage"
	"github.com/pkg/errors"
)

const (
	OrdersPlaced          = "flasheng_orders_placed"
	OrdersPlacedAtomic    = "flasheng_orders_placed_atomic"
	OrdersFailed          = "flasheng_orders_failed"
	OrdersPartialCommit   = "flasheng_orders_partial_commit"
	OrdersStatusChanged   = "flasheng_orders_status_changed"
	ReconcilePending      = "flasheng_reconcile_pending"
	RevenueCentsPlaced    = "flasheng_revenue_cents_placed"
	ProcessCPU            = "flasheng_cpuuse"
	ProcessMem            = "flasheng_memuse"
	defaultRetentionHours = 24 * 7
)

var (
	mu      sync.Mutex
	store   tstorage.Storage
	current = make(map[string]int64)
	// lastTS keeps recorded timestamps strictly increasing
	lastTS int64
)

// InitMetrics opens the time series store under workdir/data/metrics
func InitMetrics(workdir string) error {
	dir := path.Join(workdir, "data", "metrics")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create metrics dir")
	}
	s, err := tstorage.NewStorage(
		tstorage.WithDataPath(dir),
		tstorage.WithTimestampPrecision(tstorage.Nanoseconds),
		tstorage.WithRetention(defaultRetentionHours*time.Hour),
	)
	if err != nil {
		return errors.Wrap(err, "open metrics storage")
	}
	mu.Lock()
	defer mu.Unlock()
	if store != nil {
		_ = store.Close()
	}
	store = s
	return nil
}

func insert(name string, value int64) {
	if store == nil {
		return
	}
	ts := time.Now().UnixNano()
	if ts <= lastTS {
		ts = lastTS + 1
	}
	lastTS = ts
	_ = store.InsertRows([]tstorage.Row{{
		Metric:    name,
		DataPoint: tstorage.DataPoint{Timestamp: ts, Value: float64(value)},
	}})
}

// SetGauge records an absolute value
func SetGauge(name string, value int64) {
	mu.Lock()
	defer mu.Unlock()
	current[name] = value
	insert(name, value)
}

// Incr adds delta to a counter and records the new total
func Incr(name string, delta int64) {
	mu.Lock()
	defer mu.Unlock()
	current[name] += delta
	insert(name, current[name])
}

func Get(name string) int64 {
	mu.Lock()
	defer mu.Unlock()
	return current[name]
}

// Snapshot copy of every current value
func Snapshot() map[string]int64 {
	mu.Lock()
	defer mu.Unlock()
	out := make(map[string]int64, len(current))
	for k, v := range current {
		out[k] = v
	}
	return out
}

// Query recorded points of a metric within [start, end). Timestamps are unix nanoseconds.
func Query(name string, start, end time.Time) ([]*tstorage.DataPoint, error) {
	mu.Lock()
	s := store
	mu.Unlock()
	if s == nil {
		return nil, errors.New("metrics not initialized")
	}
	points, err := s.Select(name, nil, start.UnixNano(), end.UnixNano())
	if errors.Is(err, tstorage.ErrNoDataPoints) {
		return nil, nil
	}
	return points, err
}

// Reset clears in-memory values
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	current = make(map[string]int64)
}

func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if store == nil {
		return nil
	}
	err := store.Close()
	store = nil
	return err
}
