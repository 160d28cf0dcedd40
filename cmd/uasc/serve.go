package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/logging"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"

	"github.com/backkem/uasc/pkg/chunks"
	"github.com/backkem/uasc/pkg/config"
	"github.com/backkem/uasc/pkg/endpoint"
	"github.com/backkem/uasc/pkg/events"
)

func serveCommand() cli.Command {
	return cli.Command{
		Name:  "serve",
		Usage: "accept connections and log every decoded message",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "config, c",
				Usage: "load configuration from `FILE`",
			},
			cli.StringFlag{
				Name:  "listen, l",
				Usage: "listen on `ADDR` instead of the configured address",
			},
			cli.StringFlag{
				Name:  "level",
				Usage: "logging level [trace|debug|info|warn|error|disabled]",
			},
		},
		Action: serve,
	}
}

func serve(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if addr := c.String("listen"); addr != "" {
		cfg.Listen = addr
	}
	if level := c.String("level"); level != "" {
		if cfg.LogLevel, err = config.ParseLogLevel(level); err != nil {
			return err
		}
	}

	lf := cfg.LoggerFactory()
	log := lf.NewLogger("uasc")

	ep, err := cfg.Endpoint()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics, err := chunks.NewMetrics(reg)
	if err != nil {
		return err
	}

	server, err := endpoint.New(endpoint.Config{
		ListenAddr:        cfg.Listen,
		Endpoint:          ep,
		ReceiveBufferSize: cfg.ReceiveBufferSize,
		SendBufferSize:    cfg.SendBufferSize,
		ChunksConfig: chunks.Config{
			Metrics:        metrics,
			MaxConnections: cfg.MaxConnections,
		},
		LoggerFactory: lf,
	})
	if err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return err
	}

	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(cfg.MetricsListen, mux); err != nil {
				log.Errorf("metrics server: %v", err)
			}
		}()
		log.Infof("metrics on http://%s/metrics", cfg.MetricsListen)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go stopOnDone(ctx, server.Stop, log)

	logEvent := events.HandlerFunc(func(e events.Event) error {
		if e.Kind.IsFailure() {
			log.Warnf("%s: %v", e, e.Err)
		} else {
			log.Infof("%s", e)
		}
		return nil
	})
	err = server.Run(ctx, &events.Router{Transport: logEvent, Channel: logEvent})
	if errors.Is(err, events.ErrQueueClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// stopOnDone calls stop once ctx is done and logs its failure.
func stopOnDone(ctx context.Context, stop func() error, log logging.LeveledLogger) {
	<-ctx.Done()
	if err := stop(); err != nil {
		log.Warnf("stop: %v", err)
	}
}
