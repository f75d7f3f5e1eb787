package beacon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ErrCoordinatorStopped is returned by any Coordinator method called after
// Run has returned.
var ErrCoordinatorStopped = errors.New("beacon: coordinator has stopped")

// opQueueSize bounds how many pending operations the coordinator will
// buffer before a producer blocks. The original has no such bound (an
// unbounded queue.Queue); a generous buffer keeps bursts of concurrent
// HTTP handlers from blocking on enqueue in the common case while still
// surfacing true overload as backpressure rather than unbounded memory
// growth.
const opQueueSize = 256

// notification is the envelope fanned out to subscribers: {key, operation,
// meta} per spec.md §4.1. Key is untyped because its JSON shape varies by
// operation — a string for update/delete, an integer for id, null for
// control/query.
type notification struct {
	Key       any    `json:"key"`
	Operation string `json:"operation"`
	Meta      any    `json:"meta"`
}

// operation is the closed set of messages the Coordinator's run loop
// accepts. Each variant knows how to apply itself, so the loop never needs
// an "unrecognized operation" branch.
type operation interface {
	apply(c *Coordinator)
}

type opAddConnection struct{ sub *Subscriber }
type opRemoveConnection struct{ addr string }
type opPost struct{ frame notification }
type opUpdate struct {
	key      string
	metadata *Metadata
	data     *[]byte
}
type opMsg struct {
	addr    string
	payload any
}
type opCleanQueries struct{}
type opStartQuery struct{ result chan<- *BroadcastQuery }

func (o opAddConnection) apply(c *Coordinator)    { c.addConnection(o.sub) }
func (o opRemoveConnection) apply(c *Coordinator) { c.removeConnection(o.addr) }
func (o opPost) apply(c *Coordinator)             { c.post(o.frame) }
func (o opUpdate) apply(c *Coordinator)           { c.update(o) }
func (o opMsg) apply(c *Coordinator)              { c.msg(o.addr, o.payload) }
func (o opCleanQueries) apply(c *Coordinator)     { c.cleanQueries() }
func (o opStartQuery) apply(c *Coordinator)       { o.result <- c.startQuery() }

// Coordinator is the object coordinator: the single serialized actor that
// owns the Store, the subscriber registry and the broadcast-query tracker.
// Every mutation is funneled through Run via the ops channel; nothing
// outside this file ever touches the registry or the tracker directly.
//
// This is the Go shape of the original's single background thread
// draining a queue.Queue with a 0.5s poll: Run's select blocks on the
// channel and ctx.Done() directly, so it reacts to shutdown immediately
// instead of on the next poll tick, with no loss of the "exactly one
// operation processed at a time" guarantee.
type Coordinator struct {
	store   *Store
	subs    *subscriberRegistry
	queries *queryTracker
	logger  *slog.Logger

	nextSubscriberID int64

	ops  chan operation
	done chan struct{}
}

func NewCoordinator(store *Store, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:            store,
		subs:             newSubscriberRegistry(),
		queries:          newQueryTracker(),
		logger:           logger,
		nextSubscriberID: 1,
		ops:              make(chan operation, opQueueSize),
		done:             make(chan struct{}),
	}
}

// Run drains the operation queue until ctx is cancelled. It is meant to be
// run in its own goroutine for the lifetime of the process (typically
// under an errgroup alongside the HTTP listener).
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.done)
	for {
		select {
		case op := <-c.ops:
			op.apply(c)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Coordinator) enqueue(ctx context.Context, op operation) error {
	select {
	case <-c.done:
		return ErrCoordinatorStopped
	default:
	}
	select {
	case c.ops <- op:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrCoordinatorStopped
	}
}

// AddConnection registers sub as a live subscriber and sends it its
// identity frame.
func (c *Coordinator) AddConnection(ctx context.Context, sub *Subscriber) error {
	return c.enqueue(ctx, opAddConnection{sub: sub})
}

// RemoveConnection drops the subscriber at addr, if any.
func (c *Coordinator) RemoveConnection(ctx context.Context, addr string) error {
	return c.enqueue(ctx, opRemoveConnection{addr: addr})
}

// Publish upserts key's metadata, leaving any existing data untouched.
// Passing a nil metadata still counts as "provided" — it replaces the
// object's metadata with an empty document, matching a POST /publish body
// of `{}`.
func (c *Coordinator) Publish(ctx context.Context, key string, metadata Metadata) error {
	if metadata == nil {
		metadata = Metadata{}
	}
	return c.enqueue(ctx, opUpdate{key: key, metadata: &metadata})
}

// PublishData upserts key's data, leaving any existing metadata untouched.
func (c *Coordinator) PublishData(ctx context.Context, key string, data []byte) error {
	return c.enqueue(ctx, opUpdate{key: key, data: &data})
}

// Delete removes key, emitting a delete notification even if key was
// already unknown (spec.md §4.1).
func (c *Coordinator) Delete(ctx context.Context, key string) error {
	return c.enqueue(ctx, opUpdate{key: key})
}

// Control broadcasts an arbitrary control message to every subscriber.
func (c *Coordinator) Control(ctx context.Context, meta any) error {
	return c.enqueue(ctx, opPost{frame: notification{Key: nil, Operation: "control", Meta: meta}})
}

// Reply delivers a subscriber's POST /state body to whichever in-flight
// broadcast query will accept it.
func (c *Coordinator) Reply(ctx context.Context, addr string, payload any) error {
	return c.enqueue(ctx, opMsg{addr: addr, payload: payload})
}

// StartQuery snapshots the current subscriber count, registers a new
// broadcast query, posts the query frame to every subscriber, and returns
// the query for the caller to wait on. The caller is expected to call
// BroadcastQuery.Wait itself — that block happens on the calling
// goroutine, not on the coordinator.
func (c *Coordinator) StartQuery(ctx context.Context) (*BroadcastQuery, error) {
	result := make(chan *BroadcastQuery, 1)
	if err := c.enqueue(ctx, opStartQuery{result: result}); err != nil {
		return nil, err
	}
	select {
	case q := <-result:
		return q, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// --- operation bodies, coordinator-goroutine-only below this line ---

func (c *Coordinator) addConnection(sub *Subscriber) {
	c.subs.add(sub)
	id := c.nextSubscriberID
	c.nextSubscriberID++
	c.sendTo(sub, notification{Key: id, Operation: "id", Meta: nil})
}

func (c *Coordinator) removeConnection(addr string) {
	c.subs.remove(addr)
	c.cleanQueries()
}

func (c *Coordinator) sendTo(sub *Subscriber, frame notification) {
	buf, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("failed to encode notification frame", slog.Any("error", err))
		return
	}
	if !sub.enqueue(string(buf)) {
		c.subs.remove(sub.Addr)
	}
}

// post fans frame out to every subscriber in registration order. Any
// subscriber whose backlog is full is treated as failed and removed once
// the fan-out completes, matching spec.md §4.1's "scheduled for removal
// at the end of the iteration".
func (c *Coordinator) post(frame notification) {
	buf, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("failed to encode notification frame", slog.Any("error", err))
		return
	}
	line := string(buf)

	var failed []string
	for _, sub := range c.subs.list() {
		if !sub.enqueue(line) {
			failed = append(failed, sub.Addr)
		}
	}
	for _, addr := range failed {
		c.subs.remove(addr)
	}
}

func (c *Coordinator) update(op opUpdate) {
	now := time.Now()

	if op.metadata == nil && op.data == nil {
		existing := c.store.delete(op.key)
		if existing != nil {
			if dir := c.store.PersistDir(); dir != "" {
				existing.purge(dir)
			}
		}
		c.store.publish()
		c.post(notification{Key: op.key, Operation: "delete", Meta: nil})
		return
	}

	existing := c.store.get(op.key)
	var next Object
	if existing != nil {
		next = *existing
	} else {
		next = Object{Key: op.key, ID: c.store.nextID()}
	}

	switch {
	case op.metadata != nil:
		next.Metadata = cloneMetadata(*op.metadata)
	case existing != nil:
		next.Metadata = cloneMetadata(existing.Metadata)
	default:
		next.Metadata = nil
	}

	if op.data != nil {
		next.Data = *op.data
		next.LastData = float64(now.UnixNano()) / 1e9
		next.dirty = true
	}

	next.touchMetadata(now)
	c.store.set(op.key, &next)

	if dir := c.store.PersistDir(); dir != "" {
		if err := next.persist(dir); err != nil {
			c.logger.Warn("failed to persist object", slog.String("key", op.key), slog.Any("error", err))
		}
	}
	c.store.publish()

	if next.Metadata != nil {
		c.post(notification{Key: op.key, Operation: "update", Meta: nil})
	}
}

func (c *Coordinator) msg(addr string, payload any) {
	accepted := false
	for _, q := range c.queries.list() {
		if q.addResponse(addr, payload) {
			accepted = true
			break
		}
	}
	if !accepted {
		c.logger.Debug("reply matched no in-flight query", slog.String("subscriber", addr))
	}
	c.cleanQueries()
}

func (c *Coordinator) cleanQueries() {
	c.queries.clean(time.Now())
}

func (c *Coordinator) startQuery() *BroadcastQuery {
	c.cleanQueries()
	expected := c.subs.count()
	q := newBroadcastQuery(uuid.NewString(), expected, time.Now())
	c.queries.add(q)
	c.post(notification{Key: nil, Operation: "query", Meta: nil})
	return q
}
