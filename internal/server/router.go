// Package server delivers encoded frames to room members and to single
// connections, evicting receivers that cannot keep up.
package server

import (
	"log/slog"

	"github.com/Tyrowin/kollab-chat/internal/rooms"
)

// FrameBuilder encodes the frame for one accepted room event. It runs inside
// the room's delivery lock, so every member sees the same sequence.
type FrameBuilder func(d rooms.Delivery) ([]byte, error)

// Router fans frames out to room members. It never blocks on a receiver.
type Router struct {
	store    *rooms.Store
	registry *rooms.Registry
	metrics  *Metrics
	log      *slog.Logger
}

// NewRouter creates a Router over store and registry.
func NewRouter(store *rooms.Store, registry *rooms.Registry, metrics *Metrics, logger *slog.Logger) *Router {
	return &Router{store: store, registry: registry, metrics: metrics, log: logger}
}

// BroadcastToRoom delivers the built frame to every member of room except
// exclude. It returns the number of members the frame was queued for.
func (r *Router) BroadcastToRoom(room *rooms.Room, build FrameBuilder, exclude string) int {
	return r.fanout(room, func(fn func(rooms.Delivery)) bool {
		return r.store.Fanout(room, fn)
	}, build, exclude, "", nil)
}

// AnnounceJoin makes a committed join visible. The joiner gets direct first
// and then every member, joiner included, gets the built notice, all in one
// delivery, so the joiner's descriptor precedes any room traffic it sees.
func (r *Router) AnnounceJoin(room *rooms.Room, joiner string, direct, build FrameBuilder) int {
	return r.fanout(room, func(fn func(rooms.Delivery)) bool {
		return r.store.Admit(room, joiner, fn)
	}, build, "", joiner, direct)
}

func (r *Router) fanout(room *rooms.Room, deliver func(func(rooms.Delivery)) bool, build FrameBuilder, exclude, leadTo string, lead FrameBuilder) int {
	var failed []rooms.Member
	delivered := 0

	active := deliver(func(d rooms.Delivery) {
		payload, err := build(d)
		if err != nil {
			r.log.Error("encode room frame", "room", d.Room, "err", err)
			return
		}
		var direct []byte
		if lead != nil {
			if direct, err = lead(d); err != nil {
				r.log.Error("encode direct frame", "room", d.Room, "conn", leadTo, "err", err)
				return
			}
		}
		for _, m := range d.Members {
			if m.ID == leadTo && direct != nil && !m.Sink.Send(direct) {
				failed = append(failed, m)
				continue
			}
			if m.ID == exclude {
				continue
			}
			if m.Sink.Send(payload) {
				delivered++
			} else {
				failed = append(failed, m)
			}
		}
	})
	if !active {
		r.log.Debug("room delivery skipped", "room", room.Name())
	}

	r.metrics.deliveries.Add(float64(delivered))
	r.evict(failed)
	return delivered
}

// SendTo queues payload for a single connection.
func (r *Router) SendTo(connID string, payload []byte) bool {
	sink, ok := r.registry.Sink(connID)
	if !ok {
		return false
	}
	if !sink.Send(payload) {
		r.evict([]rooms.Member{{ID: connID, Sink: sink}})
		return false
	}
	r.metrics.deliveries.Inc()
	return true
}

// evict runs outside the delivery lock because eviction ends in a disconnect
// that mutates the store.
func (r *Router) evict(failed []rooms.Member) {
	for _, m := range failed {
		r.metrics.dropped.Inc()
		r.log.Warn("send buffer full; evicting connection", "conn", m.ID)
		m.Sink.Evict()
	}
}
