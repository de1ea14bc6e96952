package app

import (
	"github.com/flasheng/flasheng/config"
	"github.com/flasheng/flasheng/internal/events"
	"github.com/flasheng/flasheng/internal/order"
	"github.com/flasheng/flasheng/internal/reconcile"
	"github.com/flasheng/flasheng/internal/storage"
	"github.com/robfig/cron/v3"
)

// ConfigProvider provides application configuration
type ConfigProvider interface {
	Config() *config.AppConfig
}

// RegistryProvider provides the resource to store bindings
type RegistryProvider interface {
	Registry() *storage.Registry
}

// OrderProvider provides the order service
type OrderProvider interface {
	OrderService() *order.Service
}

// JournalProvider provides the reconciliation journal
type JournalProvider interface {
	Journal() *reconcile.Journal
}

// EventsProvider provides the in-process event bus
type EventsProvider interface {
	Events() *events.Bus
}

// SchedulerProvider provides task scheduling capability
type SchedulerProvider interface {
	Scheduler() *cron.Cron
}

// AppContext combines all provider interfaces for full application context
// Handlers should depend on specific providers or this combined interface
type AppContext interface {
	ConfigProvider
	RegistryProvider
	OrderProvider
	JournalProvider
	EventsProvider
	SchedulerProvider

	// Application lifecycle methods
	MigrateDB(track bool) error
	InitDb() error
	DropAll() error
}
