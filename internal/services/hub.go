package services

import (
	"sync"

	"github.com/Bache94/ListeByBache/internal/models"
)

const subscriberBuffer = 32

// Subscriber receives notifications for one zone on C. C is closed by
// Hub.Unregister.
type Subscriber struct {
	Zone   string
	UserID string
	C      chan models.Notification

	once sync.Once
}

// Hub fans record change notifications out to connected event feeds.
type Hub struct {
	mu    sync.RWMutex
	zones map[string]map[*Subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{zones: map[string]map[*Subscriber]struct{}{}}
}

func (h *Hub) Register(zone, userID string) *Subscriber {
	s := &Subscriber{Zone: zone, UserID: userID, C: make(chan models.Notification, subscriberBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.zones[zone]
	if !ok {
		set = map[*Subscriber]struct{}{}
		h.zones[zone] = set
	}
	set[s] = struct{}{}
	return s
}

func (h *Hub) Unregister(s *Subscriber) {
	h.mu.Lock()
	if set, ok := h.zones[s.Zone]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.zones, s.Zone)
		}
	}
	h.mu.Unlock()
	s.once.Do(func() { close(s.C) })
}

// Publish delivers n to every subscriber of the zone whose user is in users.
// A full subscriber buffer drops the notification; clients also poll.
func (h *Hub) Publish(n models.Notification, users map[string]bool) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for s := range h.zones[n.Zone] {
		if !users[s.UserID] {
			continue
		}
		select {
		case s.C <- n:
			delivered++
		default:
		}
	}
	return delivered
}

func (h *Hub) Count(zone string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.zones[zone])
}
