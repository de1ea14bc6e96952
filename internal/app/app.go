package app

import (
	"context"
	"os"
	"path"
	"runtime/debug"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/flasheng/flasheng/config"
	"github.com/flasheng/flasheng/internal/domain"
	"github.com/flasheng/flasheng/internal/events"
	"github.com/flasheng/flasheng/internal/order"
	"github.com/flasheng/flasheng/internal/reconcile"
	"github.com/flasheng/flasheng/internal/storage"
	"github.com/flasheng/flasheng/internal/uow"
	"github.com/flasheng/flasheng/pkg/metrics"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Application struct {
	appConfig *config.AppConfig
	registry  *storage.Registry
	factory   *uow.Factory
	journal   *reconcile.Journal
	bus       *events.Bus
	orders    *order.Service
	sched     *cron.Cron
}

// Ensure Application implements all interfaces
var (
	_ ConfigProvider    = (*Application)(nil)
	_ RegistryProvider  = (*Application)(nil)
	_ OrderProvider     = (*Application)(nil)
	_ JournalProvider   = (*Application)(nil)
	_ EventsProvider    = (*Application)(nil)
	_ SchedulerProvider = (*Application)(nil)
	_ AppContext        = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) Registry() *storage.Registry {
	return a.registry
}

func (a *Application) OrderService() *order.Service {
	return a.orders
}

func (a *Application) Journal() *reconcile.Journal {
	return a.journal
}

func (a *Application) Events() *events.Bus {
	return a.bus
}

// Scheduler returns the cron scheduler
func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}

func initLogger(cfg *config.AppConfig) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.Logger.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.OutputPaths = []string{"stdout"}

	if !cfg.Logger.FileEnable {
		return zapConfig.Build(zap.AddCaller())
	}

	filename := cfg.Logger.Filename
	if filename == "" {
		filename = path.Join(cfg.GetLogDir(), "flasheng.log")
	}
	lumberJackLogger := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    64,
		MaxBackups: 7,
		MaxAge:     7,
		Compress:   false,
	}
	core := zapcore.NewTee(
		zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(lumberJackLogger),
			zapConfig.Level,
		),
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.AddSync(os.Stdout),
			zapConfig.Level,
		),
	)
	return zap.New(core, zap.AddCaller()), nil
}

// Init wires logging, metrics, the partitioned stores, the reconciliation
// journal, the event bus, the order service and the background jobs.
func (a *Application) Init(cfg *config.AppConfig) error {
	a.appConfig = cfg
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return errors.Wrap(err, "init logger")
	}
	zap.ReplaceGlobals(logger)

	if err := cfg.InitDirs(); err != nil {
		return err
	}

	if err := metrics.InitMetrics(cfg.System.Workdir); err != nil {
		zap.S().Warn("Failed to initialize metrics:", err)
	}

	if err := a.openStores(cfg); err != nil {
		return err
	}
	if err := a.MigrateDB(false); err != nil {
		return err
	}

	a.factory = uow.NewFactory(a.registry)
	if cfg.System.Fixtures {
		if err := a.checkFixtures(context.Background()); err != nil {
			zap.L().Error("fixture loading failed", zap.String("namespace", "app"), zap.Error(err))
		}
	}

	a.journal, err = reconcile.Open(cfg.JournalPath())
	if err != nil {
		return err
	}

	a.bus = events.NewBus()
	a.subscribeMetrics()

	a.orders = order.NewService(a.factory, a.journal, a.bus)
	zap.L().Info("order service ready",
		zap.String("namespace", "app"),
		zap.Bool("atomic_placement", a.factory.Colocated(domain.ResourceCatalog, domain.ResourceOrders)))

	return a.initJob()
}

// storePlan one physical store and the resources it serves
type storePlan struct {
	cfg       config.DBConfig
	resources []string
}

func (p *storePlan) name() string {
	return strings.Join(p.resources, "+")
}

func resourceConfig(cfg *config.AppConfig, resource string) config.DBConfig {
	switch resource {
	case domain.ResourceUsers:
		return cfg.Database.Users
	case domain.ResourceFlashcards:
		return cfg.Database.Flashcards
	case domain.ResourceCatalog:
		return cfg.Database.Catalog
	default:
		return cfg.Database.Orders
	}
}

// resolveDsn places relative sqlite files under the data dir
func resolveDsn(cfg *config.AppConfig, db config.DBConfig) string {
	dsn := strings.TrimSpace(db.Dsn)
	if db.Type != "sqlite" || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") || path.IsAbs(dsn) {
		return dsn
	}
	return path.Join(cfg.GetDataDir(), dsn)
}

// planStores groups resources by connection. An empty catalog dsn and any two
// resources with the same type and dsn share one store.
func planStores(cfg *config.AppConfig) ([]*storePlan, error) {
	var plans []*storePlan
	byKey := make(map[string]*storePlan)
	for _, res := range domain.Resources {
		db := resourceConfig(cfg, res)
		if res == domain.ResourceCatalog && strings.TrimSpace(db.Dsn) == "" {
			db = cfg.Database.Orders
		}
		db.Type = strings.ToLower(strings.TrimSpace(db.Type))
		if db.Type == "" {
			db.Type = "postgres"
		}
		if strings.TrimSpace(db.Dsn) == "" {
			return nil, errors.Errorf("database.%s.dsn is required", res)
		}
		db.Dsn = resolveDsn(cfg, db)

		key := db.Type + "|" + db.Dsn
		if p, ok := byKey[key]; ok {
			p.resources = append(p.resources, res)
			continue
		}
		p := &storePlan{cfg: db, resources: []string{res}}
		byKey[key] = p
		plans = append(plans, p)
	}
	return plans, nil
}

func (a *Application) openStores(cfg *config.AppConfig) error {
	plans, err := planStores(cfg)
	if err != nil {
		return err
	}

	stores := make([]*storage.GormStore, len(plans))
	var g errgroup.Group
	for i, p := range plans {
		i, p := i, p
		g.Go(func() error {
			s, err := storage.Open(p.name(), p.cfg)
			if err != nil {
				return err
			}
			stores[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, s := range stores {
			if s != nil {
				_ = s.Close()
			}
		}
		return err
	}

	reg := storage.NewRegistry()
	for _, res := range domain.Resources {
		for i, p := range plans {
			if contains(p.resources, res) {
				reg.Bind(res, stores[i])
			}
		}
	}
	a.registry = reg
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// storeTables tables owned by each distinct store
func (a *Application) storeTables() (map[storage.Store][]interface{}, error) {
	parts, err := a.registry.Participants()
	if err != nil {
		return nil, err
	}
	out := make(map[storage.Store][]interface{}, len(parts))
	for _, p := range parts {
		out[p.Store] = domain.TablesFor(p.Resources...)
	}
	return out, nil
}

func (a *Application) MigrateDB(track bool) (err error) {
	defer func() {
		if err1 := recover(); err1 != nil {
			if os.Getenv("GO_DEGUB_TRACE") != "" {
				debug.PrintStack()
			}
			if err2, ok := err1.(error); ok {
				err = err2
				zap.S().Error(err2.Error())
			}
		}
	}()
	stores, err := a.storeTables()
	if err != nil {
		return err
	}
	var g errgroup.Group
	for s, tables := range stores {
		s, tables := s, tables
		g.Go(func() error {
			if track {
				return errors.Wrapf(s.DB().Debug().Migrator().AutoMigrate(tables...), "migrate %s", s.Name())
			}
			return s.Migrate(tables...)
		})
	}
	return g.Wait()
}

// DropAll removes every table of every store
func (a *Application) DropAll() error {
	stores, err := a.storeTables()
	if err != nil {
		return err
	}
	for s, tables := range stores {
		if err := s.DB().Migrator().DropTable(tables...); err != nil {
			return errors.Wrapf(err, "drop %s", s.Name())
		}
	}
	return nil
}

// InitDb drops and recreates every table
func (a *Application) InitDb() error {
	if err := a.DropAll(); err != nil {
		return err
	}
	return a.MigrateDB(false)
}

// subscribeMetrics keeps the order counters current
func (a *Application) subscribeMetrics() {
	subs := map[string]interface{}{
		events.TopicOrderPlaced: func(ev events.OrderPlaced) {
			if ev.Atomic {
				metrics.Incr(metrics.OrdersPlacedAtomic, 1)
			} else {
				metrics.Incr(metrics.OrdersPlaced, 1)
			}
			metrics.Incr(metrics.RevenueCentsPlaced, ev.Total.Shift(2).IntPart())
		},
		events.TopicOrderFailed: func(ev events.OrderFailed) {
			metrics.Incr(metrics.OrdersFailed, 1)
		},
		events.TopicOrderStatus: func(ev events.StatusChanged) {
			metrics.Incr(metrics.OrdersStatusChanged, 1)
		},
		events.TopicReconcileRequired: func(ev events.ReconcileRequired) {
			metrics.Incr(metrics.OrdersPartialCommit, 1)
			a.SchedReconcileSweep()
		},
	}
	for topic, fn := range subs {
		if err := a.bus.Subscribe(topic, fn); err != nil {
			zap.L().Error("event subscribe failed", zap.String("topic", topic), zap.Error(err))
		}
	}
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		<-a.sched.Stop().Done()
	}
	if a.bus != nil {
		a.bus.WaitAsync()
	}
	if a.journal != nil {
		_ = a.journal.Close()
	}
	if a.registry != nil {
		if err := a.registry.Close(); err != nil {
			zap.L().Warn("store close failed", zap.Error(err))
		}
	}
	_ = metrics.Close()
	_ = zap.L().Sync()
}
