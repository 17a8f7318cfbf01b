// Package publish forwards each tick's move log to an MQTT broker.
package publish

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/cxd309/transit-engine/internal/config"
	"github.com/cxd309/transit-engine/internal/engine"
)

// MovesTopic is appended to the configured prefix.
const MovesTopic = "moves"

const publishTimeout = 5 * time.Second

// Publisher receives the log of every completed tick.
type Publisher interface {
	Publish(tick engine.TickLog) error
	Close()
}

// Discard is the Publisher used when MQTT is disabled.
type Discard struct{}

func (Discard) Publish(engine.TickLog) error { return nil }
func (Discard) Close()                       {}

// MQTT publishes tick logs as JSON with QoS 0, not retained.
type MQTT struct {
	topic string
	send  func(topic string, payload []byte) error
	close func()
	log   *log.Entry
}

// New returns Discard when MQTT is disabled, otherwise a connected MQTT
// publisher.
func New(cfg config.MQTTConfig) (Publisher, error) {
	if !cfg.Enabled {
		return Discard{}, nil
	}
	return Connect(cfg)
}

// Connect dials the broker and returns a publisher on <prefix>/moves.
func Connect(cfg config.MQTTConfig) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(publishTimeout)

	entry := log.WithFields(log.Fields{"component": "mqtt", "broker": cfg.Broker})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		entry.WithError(err).Warn("connection to broker lost")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", cfg.Broker, token.Error())
	}
	entry.Info("connected to MQTT broker")

	send := func(topic string, payload []byte) error {
		token := client.Publish(topic, 0, false, payload)
		if !token.WaitTimeout(publishTimeout) {
			return fmt.Errorf("publishing to %s: timed out after %s", topic, publishTimeout)
		}
		return token.Error()
	}
	return newMQTT(cfg.TopicPrefix, send, func() { client.Disconnect(250) }, entry), nil
}

func newMQTT(prefix string, send func(string, []byte) error, closeFn func(), entry *log.Entry) *MQTT {
	return &MQTT{
		topic: Topic(prefix),
		send:  send,
		close: closeFn,
		log:   entry,
	}
}

// Topic returns the moves topic under prefix.
func Topic(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return MovesTopic
	}
	return prefix + "/" + MovesTopic
}

// Topic returns the topic messages are published on.
func (m *MQTT) Topic() string { return m.topic }

// Publish sends one tick.
func (m *MQTT) Publish(tick engine.TickLog) error {
	payload, err := json.Marshal(tick)
	if err != nil {
		return fmt.Errorf("encoding tick %d: %w", tick.Tick, err)
	}
	if err := m.send(m.topic, payload); err != nil {
		return err
	}
	m.log.WithFields(log.Fields{"tick": tick.Tick, "vehicles": len(tick.Vehicles)}).Debug("tick published")
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() {
	if m.close != nil {
		m.close()
	}
}
