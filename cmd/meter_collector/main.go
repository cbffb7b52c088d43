// Meter collector follows the reader's live feed and prints every reading as
// a JSON line. Depends on the SML reader being online.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/NotCoffee418/sml_smart_meter/pkg/config"
	"github.com/NotCoffee418/sml_smart_meter/pkg/livefeed"
	"github.com/NotCoffee418/sml_smart_meter/pkg/types"
	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if err := config.LoadMeterCollectorConfig(); err != nil {
		logrus.Fatalf("Failed to load meter collector config: %v", err)
	}
	cfg := config.ActiveMeterCollectorConfig
	logrus.SetLevel(config.ParseLogLevel(cfg.LogLevel))

	// Env var overrides the config file
	host := os.Getenv("SML_READER_API_HOST")
	if host == "" {
		host = cfg.ReaderAPIHost
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Subscribe to websocket with revive
	err := livefeed.StartListener(ctx, host, handleMeterReading, logrus.NewEntry(logrus.StandardLogger()))
	if err != nil {
		logrus.Fatal(err)
	}
}

// Handle meter reading data
func handleMeterReading(report *types.ReadingReport) {
	fmt.Println(string(report.ToJsonBytes()))
}
