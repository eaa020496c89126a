// Package fabric implements room-scoped broadcast across server processes.
//
// Rooms are plain strings: "group:<id>" for group traffic and "user:<id>" for
// personal delivery. Every process keeps a local registry of which
// subscribers (connections) sit in which rooms. Emit delivers to local
// subscribers immediately and, when a Redis backbone is available, publishes
// the frame on a shared channel; every other process relays it to its own
// local subscribers. A process ignores frames it published itself.
//
// Backbone availability is probed once in Start. When the probe fails the
// fabric stays local-only for the lifetime of the process.
package fabric

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Room name prefixes.
const (
	GroupRoomPrefix = "group:"
	UserRoomPrefix  = "user:"
)

// GroupRoom returns the broadcast room of a group.
func GroupRoom(groupID string) string { return GroupRoomPrefix + groupID }

// UserRoom returns the personal room of a user.
func UserRoom(userID string) string { return UserRoomPrefix + userID }

// Subscriber receives frames for the rooms it has joined.
type Subscriber interface {
	// ID uniquely identifies the subscriber within this process.
	ID() string
	// Deliver hands a frame to the subscriber without blocking. It returns
	// false when the frame was dropped.
	Deliver(frame []byte) bool
}

// Options configures a Fabric.
type Options struct {
	// Redis is the pub/sub backbone. Nil means local-only.
	Redis redis.UniversalClient
	// Channel is the backbone channel shared by all processes.
	Channel string
	// NodeID identifies this process; generated when empty.
	NodeID string
	// ProbeTimeout bounds the startup availability check.
	ProbeTimeout time.Duration
}

// envelope is the backbone wire format.
type envelope struct {
	Node  string          `json:"node"`
	Room  string          `json:"room"`
	Frame json.RawMessage `json:"frame"`
}

// Fabric is safe for concurrent use.
type Fabric struct {
	opts Options

	mu    sync.RWMutex
	rooms map[string]map[string]Subscriber // room -> subscriber id -> subscriber
	subs  map[string]map[string]struct{}   // subscriber id -> rooms

	distributed atomic.Bool
	pubsub      *redis.PubSub
	done        chan struct{}
	wg          sync.WaitGroup
}

// New returns a local-only Fabric; call Start to attach the backbone.
func New(opts Options) *Fabric {
	if opts.NodeID == "" {
		opts.NodeID = uuid.NewString()
	}
	if opts.Channel == "" {
		opts.Channel = "realtime:fabric"
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 3 * time.Second
	}
	return &Fabric{
		opts:  opts,
		rooms: make(map[string]map[string]Subscriber),
		subs:  make(map[string]map[string]struct{}),
		done:  make(chan struct{}),
	}
}

// NodeID returns this process's identity on the backbone.
func (f *Fabric) NodeID() string { return f.opts.NodeID }

// Distributed reports whether frames are relayed through the backbone.
func (f *Fabric) Distributed() bool { return f.distributed.Load() }

// Start probes the backbone and, if it answers, subscribes to the shared
// channel and starts the relay loop. A missing or unreachable backbone is not
// an error: the fabric logs a warning and continues local-only.
func (f *Fabric) Start(ctx context.Context) {
	if f.opts.Redis == nil {
		log.Info().Str("node", f.opts.NodeID).Msg("fabric: no backbone configured, local-only delivery")
		return
	}

	pctx, cancel := context.WithTimeout(ctx, f.opts.ProbeTimeout)
	defer cancel()
	if err := f.opts.Redis.Ping(pctx).Err(); err != nil {
		log.Warn().Err(err).Str("node", f.opts.NodeID).Msg("fabric: backbone unavailable, local-only delivery")
		return
	}

	ps := f.opts.Redis.Subscribe(ctx, f.opts.Channel)
	if _, err := ps.Receive(pctx); err != nil {
		_ = ps.Close()
		log.Warn().Err(err).Str("channel", f.opts.Channel).Msg("fabric: subscribe failed, local-only delivery")
		return
	}
	f.pubsub = ps
	f.distributed.Store(true)

	f.wg.Add(1)
	go f.relay(ps.Channel())

	log.Info().
		Str("node", f.opts.NodeID).
		Str("channel", f.opts.Channel).
		Msg("fabric: backbone attached")
}

// relay delivers frames published by other nodes to local subscribers.
func (f *Fabric) relay(ch <-chan *redis.Message) {
	defer f.wg.Done()
	for {
		select {
		case <-f.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Warn().Err(err).Msg("fabric: dropping undecodable backbone frame")
				continue
			}
			// Skip events from our own node; they were delivered locally.
			if env.Node == f.opts.NodeID {
				continue
			}
			relayed.Inc()
			f.deliverLocal(env.Room, env.Frame)
		}
	}
}

// Join adds s to room. Joining twice is a no-op.
func (f *Fabric) Join(room string, s Subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	members, ok := f.rooms[room]
	if !ok {
		members = make(map[string]Subscriber)
		f.rooms[room] = members
		roomsGauge.Inc()
	}
	members[s.ID()] = s

	joined, ok := f.subs[s.ID()]
	if !ok {
		joined = make(map[string]struct{})
		f.subs[s.ID()] = joined
	}
	joined[room] = struct{}{}
}

// Leave removes s from room.
func (f *Fabric) Leave(room string, s Subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaveLocked(room, s.ID())
}

// LeaveAll removes s from every room it joined.
func (f *Fabric) LeaveAll(s Subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for room := range f.subs[s.ID()] {
		f.leaveLocked(room, s.ID())
	}
	delete(f.subs, s.ID())
}

func (f *Fabric) leaveLocked(room, id string) {
	if members, ok := f.rooms[room]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(f.rooms, room)
			roomsGauge.Dec()
		}
	}
	if joined, ok := f.subs[id]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(f.subs, id)
		}
	}
}

// Rooms returns the rooms s currently sits in.
func (f *Fabric) Rooms(s Subscriber) []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.subs[s.ID()]))
	for room := range f.subs[s.ID()] {
		out = append(out, room)
	}
	return out
}

// LocalCount returns how many local subscribers sit in room.
func (f *Fabric) LocalCount(room string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.rooms[room])
}

// Emit delivers frame to every subscriber of room on every process. Local
// delivery always happens; a backbone publish failure is logged and only
// costs remote delivery.
func (f *Fabric) Emit(ctx context.Context, room string, frame []byte) {
	f.deliverLocal(room, frame)

	if !f.distributed.Load() {
		return
	}
	payload, err := json.Marshal(envelope{Node: f.opts.NodeID, Room: room, Frame: frame})
	if err != nil {
		log.Warn().Err(err).Str("room", room).Msg("fabric: encode backbone frame")
		return
	}
	if err := f.opts.Redis.Publish(ctx, f.opts.Channel, payload).Err(); err != nil {
		publishErrors.Inc()
		log.Warn().Err(err).Str("room", room).Msg("fabric: publish failed, delivered locally only")
	}
}

func (f *Fabric) deliverLocal(room string, frame []byte) {
	f.mu.RLock()
	targets := make([]Subscriber, 0, len(f.rooms[room]))
	for _, s := range f.rooms[room] {
		targets = append(targets, s)
	}
	f.mu.RUnlock()

	for _, s := range targets {
		if s.Deliver(frame) {
			delivered.Inc()
			continue
		}
		dropped.Inc()
		log.Warn().Str("room", room).Str("subscriber", s.ID()).Msg("fabric: subscriber buffer full, frame dropped")
	}
}

// Close stops the relay loop and releases the backbone subscription.
func (f *Fabric) Close() error {
	select {
	case <-f.done:
		return nil
	default:
		close(f.done)
	}
	var err error
	if f.pubsub != nil {
		err = f.pubsub.Close()
	}
	f.wg.Wait()
	f.distributed.Store(false)
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}
