// cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wfunc/mafiaserver/config"
	"github.com/wfunc/mafiaserver/logger"
)

const (
	DefaultQueueName = "mafia_events"
	publishTimeout   = 3 * time.Second
	bufferSize       = 1024
)

// EventRecord 房间事件日志中的一条
type EventRecord struct {
	Room      string          `json:"room"`
	Index     int             `json:"index"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// listPusher is the part of redis.Cmdable the publisher needs.
type listPusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// Connect opens a client and checks it answers.
func Connect(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// Publisher pushes room events onto a redis list from a background worker,
// so callers holding a room lock never wait on the network.
type Publisher struct {
	client listPusher
	queue  string
	ch     chan EventRecord
	wg     sync.WaitGroup

	mutex   sync.Mutex
	indexes map[string]int
	closed  bool
}

func NewPublisher(client listPusher, queue string) *Publisher {
	if queue == "" {
		queue = DefaultQueueName
	}
	p := &Publisher{
		client:  client,
		queue:   queue,
		ch:      make(chan EventRecord, bufferSize),
		indexes: make(map[string]int),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Publish queues one event. It drops the event when the buffer is full.
func (p *Publisher) Publish(room, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Log.Warnw("event log marshal failed", "room", room, "event", event, "error", err)
		return
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.closed {
		return
	}
	p.indexes[room]++
	rec := EventRecord{
		Room:      room,
		Index:     p.indexes[room],
		Event:     event,
		Payload:   data,
		Timestamp: time.Now().UnixMilli(),
	}
	select {
	case p.ch <- rec:
	default:
		logger.Log.Warnw("event log buffer full, dropping", "room", room, "event", event)
	}
}

// Forget drops the per-room counter once a room is gone.
func (p *Publisher) Forget(room string) {
	p.mutex.Lock()
	delete(p.indexes, room)
	p.mutex.Unlock()
}

// Close flushes queued events and stops the worker.
func (p *Publisher) Close() {
	p.mutex.Lock()
	if p.closed {
		p.mutex.Unlock()
		return
	}
	p.closed = true
	close(p.ch)
	p.mutex.Unlock()
	p.wg.Wait()
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for rec := range p.ch {
		data, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := p.client.RPush(ctx, p.queue, data).Err(); err != nil {
			logger.Log.Warnw("failed to RPush event", "queue", p.queue, "room", rec.Room, "error", err)
		}
		cancel()
	}
}
