// Package bridge mirrors the shutdown watch onto an MQTT broker: retained state,
// availability with a last will, and a command topic for toggling the watch.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"printer_shutdown/internal/logger"
	"printer_shutdown/internal/models"
	"printer_shutdown/internal/service"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"

	qosAtLeastOnce  = 1
	publishTimeout  = 5 * time.Second
	disconnectQuiet = 250 // ms
	defaultRate     = time.Second
)

// Client is the part of mqtt.Client the bridge needs.
type Client interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// Options configures the broker connection and topics.
type Options struct {
	Broker      string
	ClientID    string
	User        string
	Password    string
	TopicPrefix string
	PublishRate time.Duration
}

type Bridge struct {
	client Client
	watch  service.Watch
	mon    service.Monitoring
	log    *logger.Logger
	rate   time.Duration

	stateTopic  string
	statusTopic string
	setTopic    string

	mu   sync.Mutex
	last []byte
}

// New returns a bridge over an existing client. NewPaho is the usual entry point.
func New(client Client, watch service.Watch, mon service.Monitoring, opts Options, log *logger.Logger) *Bridge {
	if log == nil {
		log = logger.Nop()
	}
	rate := opts.PublishRate
	if rate <= 0 {
		rate = defaultRate
	}
	prefix := strings.TrimRight(opts.TopicPrefix, "/")
	return &Bridge{
		client:      client,
		watch:       watch,
		mon:         mon,
		log:         log,
		rate:        rate,
		stateTopic:  prefix + "/state",
		statusTopic: prefix + "/status",
		setTopic:    prefix + "/watch/set",
	}
}

// NewPaho builds a paho client whose connect handler re-announces availability,
// re-subscribes and republishes state on every (re)connect.
func NewPaho(watch service.Watch, mon service.Monitoring, opts Options, log *logger.Logger) *Bridge {
	b := New(nil, watch, mon, opts, log)
	b.client = mqtt.NewClient(b.clientOptions(opts))
	return b
}

func (b *Bridge) clientOptions(opts Options) *mqtt.ClientOptions {
	o := mqtt.NewClientOptions()
	o.AddBroker(opts.Broker)
	o.SetClientID(opts.ClientID)
	o.SetUsername(opts.User)
	o.SetPassword(opts.Password)
	o.SetAutoReconnect(true)
	o.SetConnectRetry(true)
	o.SetWill(b.statusTopic, payloadOffline, qosAtLeastOnce, true)
	o.SetOnConnectHandler(func(mqtt.Client) { b.onConnect() })
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.log.Warnw("mqtt_connection_lost", "err", err)
	})
	return o
}

func (b *Bridge) onConnect() {
	b.log.Infow("mqtt_connected", "status_topic", b.statusTopic)

	if err := wait(b.client.Publish(b.statusTopic, qosAtLeastOnce, true, payloadOnline)); err != nil {
		b.log.Errorw("mqtt_publish_failed", "topic", b.statusTopic, "err", err)
	}
	if err := wait(b.client.Subscribe(b.setTopic, qosAtLeastOnce, b.handleCommand)); err != nil {
		b.log.Errorw("mqtt_subscribe_failed", "topic", b.setTopic, "err", err)
	}

	// A fresh session may have lost the retained state.
	b.mu.Lock()
	b.last = nil
	b.mu.Unlock()
	b.publishState(context.Background())
}

// Run connects and publishes state changes until ctx is done, then marks
// the bridge offline and disconnects.
func (b *Bridge) Run(ctx context.Context) error {
	tok := b.client.Connect()
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
	case <-ctx.Done():
		b.client.Disconnect(0)
		return nil
	}

	ticker := time.NewTicker(b.rate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := wait(b.client.Publish(b.statusTopic, qosAtLeastOnce, true, payloadOffline)); err != nil {
				b.log.Warnw("mqtt_publish_failed", "topic", b.statusTopic, "err", err)
			}
			b.client.Disconnect(disconnectQuiet)
			b.log.Infow("mqtt_disconnected")
			return nil
		case <-ticker.C:
			b.publishState(ctx)
		}
	}
}

// publishState sends the retained state when it differs from the last one sent.
func (b *Bridge) publishState(ctx context.Context) {
	st, err := b.mon.GetState(ctx)
	if err != nil {
		b.log.Warnw("mqtt_state_unavailable", "err", err)
		return
	}
	key, payload, err := encodeState(st)
	if err != nil {
		b.log.Errorw("mqtt_encode_state_failed", "err", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last != nil && bytes.Equal(b.last, key) {
		return
	}
	if err := wait(b.client.Publish(b.stateTopic, qosAtLeastOnce, true, payload)); err != nil {
		b.log.Errorw("mqtt_publish_failed", "topic", b.stateTopic, "err", err)
		return
	}
	b.last = key
}

// encodeState returns the payload and a comparison key that ignores UpdatedAt,
// which moves every tick.
func encodeState(st models.WatchState) (key, payload []byte, err error) {
	if payload, err = json.Marshal(st); err != nil {
		return nil, nil, err
	}
	st.UpdatedAt = time.Time{}
	key, err = json.Marshal(st)
	return key, payload, err
}

func (b *Bridge) handleCommand(_ mqtt.Client, msg mqtt.Message) {
	// Retained commands would replay a stale toggle on every reconnect.
	if msg.Retained() {
		b.log.Debugw("mqtt_retained_command_ignored", "topic", msg.Topic())
		return
	}
	kind, err := parseCommand(msg.Payload())
	if err != nil {
		b.log.Warnw("mqtt_bad_command", "payload", string(msg.Payload()), "err", err)
		return
	}
	if err := b.watch.Submit(context.Background(), kind, service.SourceMQTT); err != nil {
		b.log.Errorw("mqtt_command_rejected", "command", kind, "err", err)
		return
	}
	b.log.Infow("mqtt_command_queued", "command", kind)
}

// parseCommand accepts TOGGLE, ON and OFF (plus ARM/DISARM) in any case.
func parseCommand(payload []byte) (string, error) {
	s := strings.TrimSpace(string(payload))
	if s == "" {
		return "", errors.New("empty command")
	}
	return service.ParseCommandKind(s)
}

func wait(t mqtt.Token) error {
	if !t.WaitTimeout(publishTimeout) {
		return errors.New("mqtt: timed out waiting for broker")
	}
	return t.Error()
}
