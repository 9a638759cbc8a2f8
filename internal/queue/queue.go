// Package queue implements a durable named work queue over Redis, with
// per-message visibility timeout and delayed re-delivery: a sorted set
// scored by "ready at" unix-millis timestamp, plus a hash holding each
// message's payload, so a single Redis instance can serve many queues.
// A message not deleted within its visibility window becomes visible
// again, which is what retry-later semantics are built on.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/synnergy-network/zkbob-cloud/internal/apperr"
)

// Queue is one named durable queue.
type Queue struct {
	name       string
	delay      time.Duration
	visibility time.Duration
	client     *redis.Client
	addr       string
}

// Handle identifies one received, currently-invisible message.
type Handle string

func zsetKey(name string) string { return "queue:{" + name + "}:zset" }
func hashKey(name string) string { return "queue:{" + name + "}:data" }

// New connects to redisURL and declares (or re-declares) a queue named
// name with the given delay and visibility timeout; an existing
// queue's attributes are simply replaced.
func New(ctx context.Context, redisURL, name string, delay, visibility time.Duration) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeConfigError, err, "queue: parse redis url")
	}
	q := &Queue{
		name:       name,
		delay:      delay,
		visibility: visibility,
		client:     redis.NewClient(opts),
		addr:       redisURL,
	}
	if err := q.client.Ping(ctx).Err(); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "queue: connect")
	}
	return q, nil
}

// Reconnect drops and re-establishes the Redis connection, used by the
// blocking receive helper after a connection error.
func (q *Queue) Reconnect(ctx context.Context) error {
	_ = q.client.Close()
	opts, err := redis.ParseURL(q.addr)
	if err != nil {
		return apperr.Wrap(apperr.CodeConfigError, err, "queue: reparse redis url")
	}
	q.client = redis.NewClient(opts)
	if err := q.client.Ping(ctx).Err(); err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "queue: reconnect")
	}
	return nil
}

// Enqueue makes payload visible after the queue's declared delay.
func (q *Queue) Enqueue(ctx context.Context, payload string) error {
	id := uuid.NewString()
	readyAt := time.Now().Add(q.delay).UnixMilli()
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, hashKey(q.name), id, payload)
	pipe.ZAdd(ctx, zsetKey(q.name), redis.Z{Score: float64(readyAt), Member: id})
	_, err := pipe.Exec(ctx)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "queue: enqueue")
	}
	return nil
}

// Message is one dequeued item along with the handle needed to Delete it.
type Message struct {
	Handle  Handle
	Payload string
}

// Receive pops the oldest ready message, if any, and hides it for the
// queue's visibility duration. ok is false when nothing is ready.
func (q *Queue) Receive(ctx context.Context) (msg Message, ok bool, err error) {
	now := float64(time.Now().UnixMilli())
	ids, err := q.client.ZRangeByScore(ctx, zsetKey(q.name), &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%f", now), Offset: 0, Count: 1,
	}).Result()
	if err != nil {
		return Message{}, false, apperr.Wrap(apperr.CodeInternal, err, "queue: receive")
	}
	if len(ids) == 0 {
		return Message{}, false, nil
	}
	id := ids[0]

	hideUntil := float64(time.Now().Add(q.visibility).UnixMilli())
	pipe := q.client.TxPipeline()
	removed := pipe.ZRem(ctx, zsetKey(q.name), id)
	pipe.ZAdd(ctx, zsetKey(q.name), redis.Z{Score: hideUntil, Member: id})
	payloadCmd := pipe.HGet(ctx, hashKey(q.name), id)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return Message{}, false, apperr.Wrap(apperr.CodeInternal, err, "queue: receive pipeline")
	}
	if removed.Val() == 0 {
		// Another receiver grabbed it between ZRangeByScore and ZRem.
		return Message{}, false, nil
	}
	payload, err := payloadCmd.Result()
	if err != nil {
		return Message{}, false, apperr.Wrap(apperr.CodeInternal, err, "queue: receive payload")
	}
	return Message{Handle: Handle(id), Payload: payload}, true, nil
}

// Delete acknowledges a message, removing it permanently.
func (q *Queue) Delete(ctx context.Context, h Handle) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, zsetKey(q.name), string(h))
	pipe.HDel(ctx, hashKey(q.name), string(h))
	_, err := pipe.Exec(ctx)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "queue: delete")
	}
	return nil
}

// Close releases the Redis client.
func (q *Queue) Close() error { return q.client.Close() }

// EncodePayload JSON-encodes an arbitrary typed payload for Enqueue.
func EncodePayload[T any](v T) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeInternal, err, "queue: encode payload")
	}
	return string(b), nil
}

// DecodePayload JSON-decodes a Message's Payload into a T.
func DecodePayload[T any](payload string) (T, error) {
	var v T
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return v, apperr.Wrap(apperr.CodeInternal, err, "queue: decode payload")
	}
	return v, nil
}

// ReceiveBlocking loops calling q.Receive until a message arrives or
// ctx is cancelled, backing off 500ms on an empty queue and 5s (plus
// jitter, and a Reconnect attempt) on a connection error.
func ReceiveBlocking(ctx context.Context, q *Queue) (Message, error) {
	for {
		msg, ok, err := q.Receive(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return Message{}, ctx.Err()
			case <-time.After(5*time.Second + jitter()):
			}
			_ = q.Reconnect(ctx)
			continue
		}
		if ok {
			return msg, nil
		}
		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func jitter() time.Duration {
	return time.Duration(rand.Intn(250)) * time.Millisecond
}
