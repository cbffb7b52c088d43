package publisher

import (
	"context"
	"time"

	"github.com/NotCoffee418/sml_smart_meter/pkg/esmutils"
	"github.com/NotCoffee418/sml_smart_meter/pkg/types"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const influxMeasurement = "energy"

// InfluxPublisher writes one point per reading.
type InfluxPublisher struct {
	client influxdb2.Client
	writer api.WriteAPIBlocking
}

func NewInfluxPublisher(cfg InfluxConfig) *InfluxPublisher {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxPublisher{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}
}

func (p *InfluxPublisher) Name() string {
	return "influx"
}

func (p *InfluxPublisher) Publish(ctx context.Context, reading types.MeterReading, at time.Time) error {
	return p.writer.WritePoint(ctx, ReadingPoint(reading, at))
}

func (p *InfluxPublisher) Close() {
	p.client.Close()
}

// ReadingPoint tags the point with the meter serial and stores both
// registers in Wh.
func ReadingPoint(reading types.MeterReading, at time.Time) *write.Point {
	return influxdb2.NewPoint(
		influxMeasurement,
		map[string]string{"meter": reading.SerialHex()},
		map[string]interface{}{
			"watt":     esmutils.DeciWhToWh(reading.EnergyImported),
			"watt_out": esmutils.DeciWhToWh(reading.EnergyExported),
		},
		at,
	)
}
