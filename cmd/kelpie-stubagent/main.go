package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/mistifyio/kelpie"
	"github.com/mistifyio/kelpie/internal/cli"
	"github.com/mistifyio/kelpie/pkg/logx"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"github.com/tylerb/graceful"
)

func newHandler(stub *kelpie.StubCompute) http.Handler {
	accessLog := log.StandardLogger().WriterLevel(log.DebugLevel)
	return handlers.CombinedLoggingHandler(accessLog, stub)
}

// register announces the agent to a kelpied at controller
func register(controller string, config kelpie.ComputeConfig) error {
	c := cli.NewClient(controller, 10*time.Second)
	_, err := c.Post("computes", config)
	return err
}

func main() {
	var port, failPercent uint
	var id, logLevel, controller, advertise string
	var shutdownTimeout time.Duration

	flag.UintVarP(&port, "port", "p", kelpie.DefaultComputePort, "listen port")
	flag.StringVarP(&id, "id", "i", "", "compute id (default the hostname)")
	flag.UintVarP(&failPercent, "fail-percent", "f", 0, "percentage of requests to fail as unreachable")
	flag.StringVarP(&logLevel, "log-level", "l", "warn", "log level")
	flag.StringVarP(&controller, "controller", "c", "", "kelpied address to register with")
	flag.StringVarP(&advertise, "advertise", "a", "", "address kelpied reaches this agent at (default <hostname>:<port>)")
	flag.DurationVar(&shutdownTimeout, "shutdown-timeout", 5*time.Second, "time allowed for in-flight requests on shutdown")
	flag.Parse()

	if err := logx.DefaultSetup(logLevel); err != nil {
		log.WithFields(log.Fields{
			"error": err,
			"func":  "logx.DefaultSetup",
			"level": logLevel,
		}).Fatal("unable to set up logrus")
	}
	if failPercent > 100 {
		log.WithField("fail-percent", failPercent).Fatal("fail percent must be at most 100")
	}

	hostname, err := os.Hostname()
	if err != nil {
		log.WithField("error", err).Fatal("unable to get hostname")
	}
	if id == "" {
		id = hostname
	}
	if advertise == "" {
		advertise = fmt.Sprintf("%s:%d", hostname, port)
	}

	stub := kelpie.NewStubCompute(id, int(failPercent))
	server := &graceful.Server{
		Timeout:          shutdownTimeout,
		NoSignalHandling: true,
		Server: &http.Server{
			Addr:           fmt.Sprintf(":%d", port),
			Handler:        newHandler(stub),
			MaxHeaderBytes: 1 << 20,
		},
	}
	go func() {
		if err := server.ListenAndServe(); err != nil {
			log.WithField("error", err).Fatal("server error")
		}
	}()
	log.WithFields(log.Fields{
		"id":           id,
		"port":         port,
		"fail-percent": failPercent,
	}).Info("stub agent listening")

	if controller != "" {
		config := kelpie.ComputeConfig{ID: id, Address: advertise}
		if err := register(controller, config); err != nil {
			log.WithFields(log.Fields{
				"error":      err,
				"controller": controller,
			}).Error("unable to register with controller")
		}
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigs:
		log.WithField("signal", sig).Info("shutting down")
	case <-server.StopChan():
	}
	server.Stop(shutdownTimeout)
	<-server.StopChan()
}
