// SML reader decodes the meter's serial stream, publishes readings and serves
// the diagnostics API and live feed.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NotCoffee418/sml_smart_meter/pkg/config"
	"github.com/NotCoffee418/sml_smart_meter/pkg/diagnostics"
	"github.com/NotCoffee418/sml_smart_meter/pkg/port_reader"
	"github.com/NotCoffee418/sml_smart_meter/pkg/publisher"
	"github.com/NotCoffee418/sml_smart_meter/pkg/sampler"
	"github.com/NotCoffee418/sml_smart_meter/pkg/types"
	"github.com/sirupsen/logrus"
)

const programName = "SML Smart Meter"

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Load config
	if err := config.LoadReaderConfig(); err != nil {
		logrus.Fatalf("Failed to load reader config: %v", err)
	}
	cfg := config.ActiveReaderConfig
	logrus.SetLevel(config.ParseLogLevel(cfg.LogLevel))
	logger := logrus.NewEntry(logrus.StandardLogger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fanout := publisher.NewFanout(logger, 10*time.Second, buildPublishers(cfg, logger)...)
	defer fanout.Close()

	var server *diagnostics.Server
	smp, err := sampler.New(sampler.Config{
		FrameCapacity:  cfg.FrameCapacity,
		VerifyChecksum: cfg.VerifyCRC,
		PublishEvery:   cfg.PublishEveryFrames,
	}, func(reading types.MeterReading) {
		// Runs on the byte loop, hand off everything that may block.
		at := time.Now()
		go server.Broadcast(reading, at)
		if fanout.Len() == 0 {
			return
		}
		go func() {
			if err := fanout.Publish(ctx, reading, at); err == nil {
				server.MarkPosted(at)
			}
		}()
	}, logger)
	if err != nil {
		logrus.Fatalf("Failed to set up decoder: %v", err)
	}
	if logger.Logger.IsLevelEnabled(logrus.DebugLevel) {
		smp.SetTracer(sampler.LogTracer(logger.WithField("component", "sml")))
	}

	server = diagnostics.NewServer(smp, diagnostics.Meta{
		Device:  cfg.DeviceName,
		Program: programName,
		Version: version,
		Started: time.Now(),
	}, logger)

	// Start reading the meter
	reader := port_reader.NewSmlReader(cfg.SerialDevice, cfg.Baudrate, smp, cfg.InactivityTimeout(), logger)
	smp.OnActivity(reader.MarkActivity)
	reader.StartReading(func(err error) {
		logger.WithError(err).Error("Serial reader stopped")
		stop()
	})
	go reader.Watch(ctx)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("Starting %s %s on %s", programName, version, cfg.ListenAddr())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	reader.StopReading()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Hub().CloseAll()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP server shutdown")
	}
}

func buildPublishers(cfg *config.ReaderConfig, logger *logrus.Entry) []publisher.Publisher {
	var sinks []publisher.Publisher

	if influx := cfg.Influx(); influx.Enabled() {
		logger.Infof("Publishing readings to InfluxDB bucket %s at %s", influx.Bucket, influx.URL)
		sinks = append(sinks, publisher.NewInfluxPublisher(influx))
	}

	if mqttCfg := cfg.MQTT(); mqttCfg.Enabled() {
		client := publisher.NewMQTTPublisher(mqttCfg, logger)
		if err := client.Connect(10 * time.Second); err != nil {
			// keeps retrying in the background
			logger.WithError(err).Warn("MQTT broker not reachable yet")
		}
		sinks = append(sinks, client)
	}

	if len(sinks) == 0 {
		logger.Info("No telemetry sink configured, readings are only served locally")
	}
	return sinks
}
