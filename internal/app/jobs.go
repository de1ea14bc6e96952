package app

import (
	"os"
	"time"

	"github.com/flasheng/flasheng/pkg/metrics"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/process"
	"go.uber.org/zap"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() error {
	loc, err := time.LoadLocation(a.appConfig.System.Location)
	if err != nil {
		loc = time.Local
	}
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	sweep := a.appConfig.Reconcile.Sweep
	if sweep == "" {
		sweep = "@every 1m"
	}
	if _, err := a.sched.AddFunc(sweep, a.SchedReconcileSweep); err != nil {
		return errors.Wrapf(err, "schedule reconcile sweep %q", sweep)
	}

	if _, err := a.sched.AddFunc("@every 30s", func() {
		go a.SchedProcessMonitorTask()
	}); err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	a.sched.Start()
	// first sweep right away so the gauge is correct after a restart
	go a.SchedReconcileSweep()
	return nil
}

// SchedReconcileSweep publishes the number of placements still awaiting reconciliation
func (a *Application) SchedReconcileSweep() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()
	if a.journal == nil {
		return
	}
	n, err := a.journal.Count()
	if err != nil {
		zap.L().Error("reconcile sweep failed", zap.String("namespace", "reconcile"), zap.Error(err))
		return
	}
	metrics.SetGauge(metrics.ReconcilePending, int64(n))
	if n > 0 {
		zap.L().Warn("orders awaiting reconciliation",
			zap.String("namespace", "reconcile"),
			zap.Int("pending", n))
	}
}

// SchedProcessMonitorTask app process monitor
func (a *Application) SchedProcessMonitorTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	p, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // G115: PID is always within int32 range
	if err != nil {
		return
	}

	cpuuse, err := p.CPUPercent()
	if err == nil {
		metrics.SetGauge(metrics.ProcessCPU, int64(cpuuse*100)) // Store as percentage * 100
	}

	meminfo, err := p.MemoryInfo()
	if err == nil {
		metrics.SetGauge(metrics.ProcessMem, int64(meminfo.RSS/1024/1024)) //nolint:gosec // G115: memory MB value fits in int64
	}
}
