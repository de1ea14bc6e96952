package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/flasheng/flasheng/config"
	"github.com/flasheng/flasheng/internal/adminapi"
	"github.com/flasheng/flasheng/internal/app"
	"github.com/flasheng/flasheng/internal/webserver"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

var (
	h        = flag.Bool("h", false, "help usage")
	showVer  = flag.Bool("v", false, "show version")
	conffile = flag.String("c", "", "config yaml file")
	initdb   = flag.Bool("initdb", false, "drop and recreate every table, then exit")
)

func main() {
	flag.Parse()

	if *h {
		flag.Usage()
		return
	}
	if *showVer {
		fmt.Println(version)
		return
	}

	cfg, err := config.LoadConfig(*conffile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	application := app.NewApplication(cfg)
	if err := application.Init(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer application.Release()

	if *initdb {
		if err := application.InitDb(); err != nil {
			zap.L().Error("init database failed", zap.Error(err))
			return
		}
		zap.L().Info("database initialized")
		return
	}

	adminapi.Init()
	server := webserver.NewAdminServer(cfg, application)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down admin server")
		return server.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		zap.L().Error("flasheng exited", zap.Error(err))
	}
}
