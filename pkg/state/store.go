// Package state holds the latest presence and last-seen records shared
// between the detection loop (sole writer) and every reader: the status API,
// the command dispatcher and announcers.
//
// The two records are guarded independently. Each read or write of one
// record is atomic; there is no ordering between the two.
package state

import (
	"sync"
	"time"
)

// EventKind identifies which record changed.
type EventKind string

const (
	EventPresence EventKind = "presence"
	EventLastSeen EventKind = "last_seen"
)

// Event is delivered to subscribers after a write. Exactly one of Presence
// or LastSeen is set, matching Kind. Values are copies.
type Event struct {
	Kind     EventKind `json:"kind"`
	Presence *Presence `json:"presence,omitempty"`
	LastSeen *LastSeen `json:"last_seen,omitempty"`
}

// AnnounceRequest asks the detection loop to speak the item's location on
// its next qualifying sighting. It is consumed exactly once.
type AnnounceRequest struct {
	ID          string
	Item        string
	RequestedAt time.Time
}

// Store is safe for concurrent use.
type Store struct {
	presenceMu sync.RWMutex
	presence   *Presence

	lastSeenMu sync.RWMutex
	lastSeen   *LastSeen

	announceMu sync.Mutex
	announce   *AnnounceRequest

	subsMu sync.RWMutex
	subs   map[int]func(Event)
	nextID int
}

// New creates an empty store.
func New() *Store {
	return &Store{subs: make(map[int]func(Event))}
}

// ReadPresence returns a copy of the current presence record.
func (s *Store) ReadPresence() (Presence, bool) {
	s.presenceMu.RLock()
	defer s.presenceMu.RUnlock()
	if s.presence == nil {
		return Presence{}, false
	}
	return s.presence.Clone(), true
}

// WritePresence replaces the presence record. A timestamp older than the
// stored one is raised to it so record times never go backwards.
func (s *Store) WritePresence(p Presence) Presence {
	p = p.Clone()

	s.presenceMu.Lock()
	if s.presence != nil && p.Time.Before(s.presence.Time) {
		p.Time = s.presence.Time
	}
	s.presence = &p
	s.presenceMu.Unlock()

	out := p.Clone()
	s.publish(Event{Kind: EventPresence, Presence: &out})
	return p.Clone()
}

// ReadLastSeen returns a copy of the last-seen record.
func (s *Store) ReadLastSeen() (LastSeen, bool) {
	s.lastSeenMu.RLock()
	defer s.lastSeenMu.RUnlock()
	if s.lastSeen == nil {
		return LastSeen{}, false
	}
	return s.lastSeen.Clone(), true
}

// WriteLastSeen replaces the last-seen record.
func (s *Store) WriteLastSeen(l LastSeen) {
	l = l.Clone()

	s.lastSeenMu.Lock()
	s.lastSeen = &l
	s.lastSeenMu.Unlock()

	out := l.Clone()
	s.publish(Event{Kind: EventLastSeen, LastSeen: &out})
}

// RequestAnnounce places a one-shot announce request, replacing any pending one.
func (s *Store) RequestAnnounce(req AnnounceRequest) {
	s.announceMu.Lock()
	defer s.announceMu.Unlock()
	s.announce = &req
}

// TakeAnnounce removes and returns the pending request, if any.
func (s *Store) TakeAnnounce() (AnnounceRequest, bool) {
	s.announceMu.Lock()
	defer s.announceMu.Unlock()
	if s.announce == nil {
		return AnnounceRequest{}, false
	}
	req := *s.announce
	s.announce = nil
	return req, true
}

// AnnouncePending reports whether a request is waiting.
func (s *Store) AnnouncePending() bool {
	s.announceMu.Lock()
	defer s.announceMu.Unlock()
	return s.announce != nil
}

// Subscribe registers fn to be called after every write, on the writer's
// goroutine. fn must not block. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

func (s *Store) publish(ev Event) {
	s.subsMu.RLock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
