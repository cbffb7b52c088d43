package publisher

import (
	"context"
	"time"

	"github.com/NotCoffee418/sml_smart_meter/pkg/types"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"
)

// Publisher is a telemetry sink for complete readings.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, reading types.MeterReading, at time.Time) error
	Close()
}

type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

func (c InfluxConfig) Enabled() bool {
	return c.URL != "" && c.Bucket != ""
}

type MQTTConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	BaseTopic string
}

func (c MQTTConfig) Enabled() bool {
	return c.Host != ""
}
