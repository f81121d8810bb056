// Package mqtttransport implements ports.Transport over MQTT pub/sub, bridging
// Paho's callback-based delivery into the coordinator's blocking Receive contract.
package mqtttransport

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqttlib "github.com/eclipse/paho.mqtt.golang"
	"github.com/ibs-source/workers-coordinator/internal/config"
	"github.com/ibs-source/workers-coordinator/internal/ports"
)

// Transport implements ports.Transport using a single Paho client. Subscribed
// messages are funneled into an internal channel that Receive drains.
type Transport struct {
	client mqttlib.Client
	cfg    *config.MQTTConfig
	logger ports.Logger

	isConnected atomic.Bool
	inbox       chan mqttMsg

	// handlers is the set of subscribed topics, replaced copy-on-write;
	// onConnect re-subscribes to every topic in it.
	handlers atomic.Pointer[map[string]struct{}]
}

type mqttMsg struct {
	topic   string
	payload []byte
}

// New builds a Transport from cfg without connecting.
func New(cfg *config.MQTTConfig, logger ports.Logger) *Transport {
	t := &Transport{
		cfg:    cfg,
		logger: logger.WithFields(ports.Field{Key: "component", Value: "mqtt-transport"}),
		inbox:  make(chan mqttMsg, 256),
	}
	empty := make(map[string]struct{})
	t.handlers.Store(&empty)

	opts := mqttlib.NewClientOptions()
	for _, broker := range cfg.Brokers {
		opts.AddBroker(broker)
	}
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(t.onConnect)
	opts.SetConnectionLostHandler(t.onConnectionLost)

	t.client = mqttlib.NewClient(opts)
	return t
}

func (t *Transport) onConnect(cli mqttlib.Client) {
	t.isConnected.Store(true)
	t.logger.Info("mqtt connected")
	current := t.handlers.Load()
	if current == nil {
		return
	}
	for topic := range *current {
		token := cli.Subscribe(topic, t.cfg.QoS, t.onMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			t.logger.Error("mqtt re-subscribe failed", ports.Field{Key: "topic", Value: topic}, ports.Field{Key: "error", Value: err})
		}
	}
}

func (t *Transport) onConnectionLost(_ mqttlib.Client, err error) {
	t.isConnected.Store(false)
	t.logger.Warn("mqtt connection lost", ports.Field{Key: "error", Value: err})
}

func (t *Transport) onMessage(_ mqttlib.Client, msg mqttlib.Message) {
	select {
	case t.inbox <- mqttMsg{topic: msg.Topic(), payload: msg.Payload()}:
	default:
		t.logger.Warn("mqtt inbox full, dropping message", ports.Field{Key: "topic", Value: msg.Topic()})
	}
}

// Connect dials the configured brokers and subscribes to SubscribeTopic.
func (t *Transport) Connect(ctx context.Context) error {
	token := t.client.Connect()
	if !t.waitToken(ctx, token, t.cfg.ConnectTimeout) {
		return fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return err
	}
	t.isConnected.Store(true)
	return t.subscribe(ctx, t.cfg.SubscribeTopic)
}

func (t *Transport) subscribe(ctx context.Context, topic string) error {
	t.addHandler(topic)
	token := t.client.Subscribe(topic, t.cfg.QoS, t.onMessage)
	if !t.waitToken(ctx, token, t.cfg.ConnectTimeout) {
		return fmt.Errorf("mqtt subscribe timeout: %s", topic)
	}
	return token.Error()
}

func (t *Transport) waitToken(ctx context.Context, token mqttlib.Token, wait time.Duration) bool {
	deadline := time.Now().Add(wait)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	for {
		if token.WaitTimeout(50 * time.Millisecond) {
			return true
		}
		if ctx.Err() != nil || time.Now().After(deadline) {
			return false
		}
	}
}

func (t *Transport) addHandler(topic string) {
	for {
		old := t.handlers.Load()
		snapshot := map[string]struct{}{}
		if old != nil {
			for k := range *old {
				snapshot[k] = struct{}{}
			}
		}
		snapshot[topic] = struct{}{}
		if t.handlers.CompareAndSwap(old, &snapshot) {
			return
		}
	}
}

// Disconnect tears down the MQTT connection.
func (t *Transport) Disconnect(timeout time.Duration) {
	t.client.Disconnect(uint(timeout.Milliseconds()))
	t.isConnected.Store(false)
}

// Address returns the subscribe topic this transport drains.
func (t *Transport) Address() string {
	return t.cfg.SubscribeTopic
}

// CreateQueue is a no-op for MQTT: subscriptions are established at Connect.
func (t *Transport) CreateQueue(_ context.Context, _ string) error {
	return nil
}

// Send publishes message to destAddr.
func (t *Transport) Send(ctx context.Context, destAddr string, message *ports.Message, tx ports.TxContext) error {
	if !t.isConnected.Load() {
		if tx != nil {
			tx.Abort()
		}
		return fmt.Errorf("mqtt not connected")
	}
	topic := t.fullTopic(destAddr)
	token := t.client.Publish(topic, t.cfg.QoS, false, message.Body)
	if !t.waitToken(ctx, token, 5*time.Second) {
		if tx != nil {
			tx.Abort()
		}
		return fmt.Errorf("mqtt publish timeout")
	}
	if err := token.Error(); err != nil {
		if tx != nil {
			tx.Abort()
		}
		return err
	}
	if tx != nil {
		tx.Commit()
	}
	return nil
}

// Receive blocks until a subscribed message arrives or ctx is cancelled.
func (t *Transport) Receive(ctx context.Context) (*ports.Message, ports.TxContext, error) {
	select {
	case m := <-t.inbox:
		msg := &ports.Message{ID: m.topic, Body: m.payload}
		return msg, newTx(), nil
	case <-ctx.Done():
		return nil, nil, nil
	}
}

// GetProperties reports connection identity for diagnostics.
func (t *Transport) GetProperties(_ context.Context) map[string]interface{} {
	return map[string]interface{}{
		"client_id":   t.cfg.ClientID,
		"connected":   t.isConnected.Load(),
		"inbox_depth": len(t.inbox),
	}
}

func (t *Transport) fullTopic(base string) string {
	if base == "" {
		return t.cfg.PublishTopic
	}
	return strings.TrimPrefix(base, "/")
}

// tx is MQTT's at-most-once delivery: nothing to acknowledge, only callbacks to run.
type tx struct {
	onCommit []func()
	onAbort  []func()
}

func newTx() *tx { return &tx{} }

func (x *tx) OnCommitted(fn func()) { x.onCommit = append(x.onCommit, fn) }
func (x *tx) OnAborted(fn func())   { x.onAbort = append(x.onAbort, fn) }
func (x *tx) Commit() {
	for _, fn := range x.onCommit {
		fn()
	}
}
func (x *tx) Abort() {
	for _, fn := range x.onAbort {
		fn()
	}
}
