package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/mistifyio/kelpie"
	"github.com/mistifyio/kelpie/pkg/deferer"
	"github.com/mistifyio/kelpie/pkg/kv"
	_ "github.com/mistifyio/kelpie/pkg/kv/badger"
	_ "github.com/mistifyio/kelpie/pkg/kv/consul"
	"github.com/mistifyio/kelpie/pkg/logx"
	"github.com/mistifyio/kelpie/pkg/sd"
	log "github.com/sirupsen/logrus"
)

func main() {
	d := deferer.New()
	defer d.Run()

	conf, err := loadConfig(os.Args[1:])
	if err != nil {
		d.Fatal(log.Fields{"error": err}, "unable to load configuration")
	}

	if err := logx.DefaultSetup(conf.LogLevel); err != nil {
		d.Fatal(log.Fields{
			"error": err,
			"func":  "logx.DefaultSetup",
			"level": conf.LogLevel,
		}, "unable to set up logrus")
	}

	var store kv.KV
	if conf.KV != "" {
		store, err = kv.New(conf.KV)
		if err != nil {
			d.Fatal(log.Fields{
				"addr":  conf.KV,
				"error": err,
				"func":  "kv.New",
			}, "unable to connect to kv")
		}
		d.DeferClose("kv", store.Close)
	}

	ctrl := kelpie.NewController(store)
	d.DeferClose("controller", ctrl.Close)

	for _, cc := range conf.Computes {
		compute, err := kelpie.NewHTTPCompute(cc)
		if err == nil {
			err = ctrl.AddCompute(compute)
		}
		if err != nil {
			d.Fatal(log.Fields{
				"error":   err,
				"compute": cc.ID,
			}, "unable to register compute")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.Defer(cancel)

	if store != nil {
		if err := ctrl.LoadComputes(ctx); err != nil {
			log.WithFields(log.Fields{
				"error": err,
				"func":  "kelpie.Controller.LoadComputes",
			}).Error("some computes could not be loaded")
		}
		go watchComputes(ctx, ctrl)
	}

	m, err := newMetricsContext("kelpied", conf.Statsd)
	if err != nil {
		d.Fatal(log.Fields{
			"error":  err,
			"statsd": conf.Statsd,
		}, "unable to set up metrics")
	}

	server := Run(conf.Port, conf.ShutdownTimeout, NewHandler(ctrl, m, conf.ComputeTimeout))
	log.WithField("port", conf.Port).Info("kelpied listening")
	notify(daemon.SdNotifyReady)
	go func() {
		if err := sd.Watchdog(ctx); err != nil {
			log.WithField("error", err).Error("watchdog setup failed")
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigs:
		log.WithField("signal", sig).Info("shutting down")
	case <-server.StopChan():
	}

	notify(daemon.SdNotifyStopping)
	cancel()
	server.Stop(conf.ShutdownTimeout)
	<-server.StopChan()
}

func watchComputes(ctx context.Context, ctrl *kelpie.Controller) {
	report := func(err error) {
		log.WithField("error", err).Warn("unable to apply compute record")
	}
	if err := ctrl.WatchComputes(ctx, report); err != nil && !errors.Is(err, context.Canceled) {
		log.WithFields(log.Fields{
			"error": err,
			"func":  "kelpie.Controller.WatchComputes",
		}).Error("compute watch stopped")
	}
}

func notify(state string) {
	if err := sd.Notify(state); err != nil && !errors.Is(err, sd.ErrNotifyNoSocket) {
		log.WithFields(log.Fields{
			"error": err,
			"state": state,
		}).Warn("unable to notify systemd")
	}
}
