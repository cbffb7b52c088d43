package publisher

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/NotCoffee418/sml_smart_meter/pkg/types"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

func MQTTOptsFromConfig(cfg MQTTConfig) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(fmt.Sprintf("sml_meter_%d", rand.Intn(1000)))
	if cfg.Username != "" && cfg.Password != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.WillEnabled = true
	opts.WillPayload = []byte(MQTT_PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = BridgeStateTopic(cfg.BaseTopic)
	opts.WillQos = 0

	return opts
}

func BridgeStateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/bridge/state", baseTopic)
}

func ReadingTopic(baseTopic string) string {
	return fmt.Sprintf("%s/reading", baseTopic)
}

// MQTTPublisher posts readings as JSON reports.
type MQTTPublisher struct {
	client    mqtt.Client
	baseTopic string
	logger    *logrus.Entry
}

func NewMQTTPublisher(cfg MQTTConfig, logger *logrus.Entry) *MQTTPublisher {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	p := &MQTTPublisher{
		baseTopic: cfg.BaseTopic,
		logger:    logger.WithField("component", "mqtt"),
	}
	opts := MQTTOptsFromConfig(cfg)
	opts.OnConnect = func(c mqtt.Client) {
		p.logger.Info("Connected to MQTT broker")
		c.Publish(BridgeStateTopic(p.baseTopic), 0, true, MQTT_PAYLOAD_ONLINE)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		p.logger.WithError(err).Warn("MQTT connection lost")
	}
	p.client = mqtt.NewClient(opts)
	return p
}

// Connect waits up to timeout for the first connection.
func (p *MQTTPublisher) Connect(timeout time.Duration) error {
	token := p.client.Connect()
	if !token.WaitTimeout(timeout) {
		return errors.New("MQTT connect timed out")
	}
	return token.Error()
}

func (p *MQTTPublisher) Name() string {
	return "mqtt"
}

func (p *MQTTPublisher) Publish(ctx context.Context, reading types.MeterReading, at time.Time) error {
	token := p.client.Publish(ReadingTopic(p.baseTopic), 0, false, readingPayload(reading, at))
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return fmt.Errorf("MQTT publish: %w", ctx.Err())
	}
}

func (p *MQTTPublisher) Close() {
	if !p.client.IsConnected() {
		return
	}
	p.client.Publish(BridgeStateTopic(p.baseTopic), 0, true, MQTT_PAYLOAD_OFFLINE).WaitTimeout(500 * time.Millisecond)
	p.client.Disconnect(250)
}

func readingPayload(reading types.MeterReading, at time.Time) []byte {
	return types.NewReadingReport(reading, at.UTC().Format(time.RFC3339)).ToJsonBytes()
}
