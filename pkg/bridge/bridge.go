// Package bridge publishes inverter telemetry over MQTT and forwards
// setpoint writes received from the broker to the session.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"inverter/pkg/inverter"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

const clientID = "inverter-server"

var ErrNotConnected = errors.New("MQTT client is not connected")

type BrokerConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// NewClient connects to the MQTT broker.
func NewClient(cfg BrokerConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.SetClientID(clientID)
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %v", token.Error())
	}
	return client, nil
}

// telemetryMsg is published under <root>/<device>/telemetry.
type telemetryMsg struct {
	Timestamp string                      `json:"timestamp"`
	Device    string                      `json:"device"`
	Channels  map[string]inverter.Reading `json:"channels"`
}

// Bridge connects a session to an MQTT broker.
type Bridge struct {
	client   mqtt.Client
	session  *inverter.Session
	root     string
	interval time.Duration
	logger   log.FieldLogger
}

func New(client mqtt.Client, session *inverter.Session, topicRoot string, interval time.Duration, logger log.FieldLogger) *Bridge {
	return &Bridge{
		client:   client,
		session:  session,
		root:     strings.TrimSuffix(topicRoot, "/"),
		interval: interval,
		logger:   logger.WithField("component", "bridge"),
	}
}

// Run subscribes to the set topics and publishes telemetry every interval
// until the context is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	if !b.client.IsConnected() {
		return ErrNotConnected
	}

	setTopic := b.root + "/+/set/+"
	if token := b.client.Subscribe(setTopic, 1, b.setHandler); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %v", setTopic, token.Error())
	}
	defer b.client.Unsubscribe(setTopic)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.publishTelemetry()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.publishTelemetry()
		}
	}
}

func (b *Bridge) publish(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.logger.Errorf("Failed to marshal message for %s: %v", topic, err)
		return
	}

	if token := b.client.Publish(topic, 0, false, payload); token.Wait() && token.Error() != nil {
		b.logger.Errorf("Failed to publish to %s: %v", topic, token.Error())
	}
}

func (b *Bridge) publishTelemetry() {
	devices, err := b.session.ListDevices()
	if err != nil {
		b.logger.Debugf("Skipping telemetry: %v", err)
		return
	}

	for _, dev := range devices {
		data, err := b.session.FetchDeviceData(dev.Handle)
		if err != nil {
			b.logger.Warnf("Failed to fetch data of device %s: %v", dev.Name, err)
			continue
		}

		b.publish(fmt.Sprintf("%s/%d/telemetry", b.root, dev.Handle), telemetryMsg{
			Timestamp: time.Now().Format(time.RFC3339),
			Device:    dev.Name,
			Channels:  data,
		})
	}
}

// parseSetTopic splits <root>/<device>/set/<channel>.
func (b *Bridge) parseSetTopic(topic string) (inverter.DeviceHandle, string, error) {
	rest, ok := strings.CutPrefix(topic, b.root+"/")
	if !ok {
		return 0, "", fmt.Errorf("unexpected topic %s", topic)
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != "set" || parts[2] == "" {
		return 0, "", fmt.Errorf("unexpected topic %s", topic)
	}

	dev, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, "", fmt.Errorf("invalid device handle %q", parts[0])
	}
	return inverter.DeviceHandle(dev), parts[2], nil
}

// setHandler writes the payload of a set message to the channel and
// publishes the outcome under <root>/<device>/result/<channel>.
func (b *Bridge) setHandler(client mqtt.Client, msg mqtt.Message) {
	dev, channel, err := b.parseSetTopic(msg.Topic())
	if err != nil {
		b.logger.Warn(err)
		return
	}
	resultTopic := fmt.Sprintf("%s/%d/result/%s", b.root, dev, channel)

	payload := strings.TrimSpace(string(msg.Payload()))
	value, err := strconv.ParseFloat(payload, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		b.publish(resultTopic, inverter.WriteOutcome{
			Code:    inverter.KindValueNotValid,
			Message: fmt.Sprintf("invalid value %q", payload),
		})
		return
	}

	outcome, err := b.session.SetChannelValue(dev, channel, value)
	if err != nil {
		outcome = inverter.WriteOutcome{Code: inverter.KindUnknown, Message: err.Error()}
	}

	b.logger.Debugf("Set %d/%s to %v: %+v", dev, channel, value, outcome)
	b.publish(resultTopic, outcome)
}
