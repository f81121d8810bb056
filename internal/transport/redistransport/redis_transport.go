// Package redistransport implements ports.Transport over Redis Streams consumer groups.
package redistransport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ibs-source/workers-coordinator/internal/config"
	"github.com/ibs-source/workers-coordinator/internal/ports"
	goredis "github.com/redis/go-redis/v9"
)

// Transport implements ports.Transport using go-redis v9 Streams.
type Transport struct {
	client        goredis.UniversalClient
	cfg           *config.RedisConfig
	logger        ports.Logger
	consumerName  string
	stream        string
	consumerGroup string
}

// New creates a Transport bound to the stream and consumer group named in cfg.
func New(cfg *config.RedisConfig, logger ports.Logger) *Transport {
	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:    cfg.Addresses,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Transport{
		client:        client,
		cfg:           cfg,
		logger:        logger.WithFields(ports.Field{Key: "component", Value: "redis-transport"}),
		consumerName:  fmt.Sprintf("consumer-%s", uuid.New().String()),
		stream:        cfg.StreamName,
		consumerGroup: cfg.ConsumerGroup,
	}
}

// Address returns the stream name this transport reads from.
func (t *Transport) Address() string {
	return t.stream
}

// CreateQueue ensures the stream and consumer group exist.
func (t *Transport) CreateQueue(ctx context.Context, addr string) error {
	err := t.client.XGroupCreateMkStream(ctx, addr, t.consumerGroup, "0-0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Send appends message to destAddr as a stream entry.
func (t *Transport) Send(ctx context.Context, destAddr string, message *ports.Message, tx ports.TxContext) error {
	err := t.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: destAddr,
		Values: map[string]interface{}{"id": message.ID, "payload": message.Body},
	}).Err()
	if err != nil {
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

// Receive blocks for the next stream entry via XREADGROUP, or returns a nil
// message if ctx is cancelled first.
func (t *Transport) Receive(ctx context.Context) (*ports.Message, ports.TxContext, error) {
	block := t.cfg.BlockTime
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < block {
			block = remaining
		}
	}

	streams, err := t.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    t.consumerGroup,
		Consumer: t.consumerName,
		Streams:  []string{t.stream, ">"},
		Count:    t.cfg.BatchSize,
		Block:    block,
		NoAck:    false,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, nil, nil
		}
		if strings.Contains(err.Error(), "NOGROUP") {
			if cerr := t.CreateQueue(ctx, t.stream); cerr != nil {
				return nil, nil, cerr
			}
			return nil, nil, nil
		}
		return nil, nil, err
	}

	for _, stream := range streams {
		for _, entry := range stream.Messages {
			msg := &ports.Message{ID: entry.ID, Body: payloadOf(entry.Values)}
			tx := newTx(t, entry.ID)
			return msg, tx, nil
		}
	}
	return nil, nil, nil
}

// GetProperties reports stream/consumer identity for diagnostics.
func (t *Transport) GetProperties(_ context.Context) map[string]interface{} {
	return map[string]interface{}{
		"stream":         t.stream,
		"consumer_group": t.consumerGroup,
		"consumer_name":  t.consumerName,
	}
}

func payloadOf(values map[string]interface{}) []byte {
	raw, ok := values["payload"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return []byte(fmt.Sprintf("%v", v))
	}
}

// tx acknowledges and deletes the stream entry on Commit; leaves it pending
// (eligible for a future XCLAIM) on Abort.
type tx struct {
	t        *Transport
	id       string
	onCommit []func()
	onAbort  []func()
}

func newTx(t *Transport, id string) *tx {
	return &tx{t: t, id: id}
}

func (x *tx) OnCommitted(fn func()) { x.onCommit = append(x.onCommit, fn) }
func (x *tx) OnAborted(fn func())   { x.onAbort = append(x.onAbort, fn) }

func (x *tx) Commit() {
	ctx := context.Background()
	pipe := x.t.client.Pipeline()
	pipe.XAck(ctx, x.t.stream, x.t.consumerGroup, x.id)
	pipe.XDel(ctx, x.t.stream, x.id)
	if _, err := pipe.Exec(ctx); err != nil {
		x.t.logger.Warn("redis commit failed", ports.Field{Key: "error", Value: err}, ports.Field{Key: "id", Value: x.id})
	}
	for _, fn := range x.onCommit {
		fn()
	}
}

func (x *tx) Abort() {
	for _, fn := range x.onAbort {
		fn()
	}
}
