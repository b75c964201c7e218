package core

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// defaultSegmentSize is the number of events held per backing segment. A
// segmented (chunked) structure, rather than one growable slice, is what
// gives read_at its stable-pointer guarantee: once a segment is allocated at
// its full capacity, appending further events into later segments never
// reallocates, and therefore never moves, an already-returned event.
const defaultSegmentSize = 1024

// StoredEvent pairs an appended Event with its assigned offset and
// content-addressed id.
type StoredEvent struct {
	Offset EventOffset
	Id     EventId
	Event  Event
}

// SubscriptionId identifies a registered fan-out callback.
type SubscriptionId string

// Subscriber is a fan-out callback invoked once per appended event.
// Subscriber callbacks run synchronously inside the append critical section
// and therefore must be non-blocking, fast, and must not call back into
// Append.
type Subscriber func(StoredEvent)

type subscriberEntry struct {
	id SubscriptionId
	cb Subscriber
}

// EventStore is a thread-safe, append-only, stable-pointer event log.
// Its single synchronization point is Append,
// whose critical section assigns the offset, places the event, and invokes
// every currently registered subscriber in order. Readers never block
// against other readers; Len is lock-free.
type EventStore struct {
	mu          sync.RWMutex
	segments    [][]StoredEvent
	segmentSize int
	length      atomic.Uint64

	subs     []subscriberEntry
	asyncSub map[SubscriptionId]chan StoredEvent
	byId     map[EventId]EventOffset

	logger *logrus.Logger
}

// NewEventStore constructs an empty event store. A nil logger disables
// structured logging.
func NewEventStore(logger *logrus.Logger) *EventStore {
	return &EventStore{
		segmentSize: defaultSegmentSize,
		asyncSub:    make(map[SubscriptionId]chan StoredEvent),
		byId:        make(map[EventId]EventOffset),
		logger:      logger,
	}
}

// Append atomically assigns the next offset, places ev at that offset, and
// — under the append critical section — invokes every currently registered
// subscriber with (event, offset). The returned offset equals the log
// length observed immediately before this call.
func (s *EventStore) Append(ev Event) (EventOffset, error) {
	id, err := Id(ev)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	offset := s.length.Load()
	seg := int(offset / uint64(s.segmentSize))
	for len(s.segments) <= seg {
		s.segments = append(s.segments, make([]StoredEvent, 0, s.segmentSize))
	}
	stored := StoredEvent{Offset: offset, Id: id, Event: ev}
	s.segments[seg] = append(s.segments[seg], stored)
	if _, dup := s.byId[id]; !dup {
		// Secondary index for dedup lookups. A byte-identical event
		// appended twice keeps its first offset here; both copies still
		// occupy their own offsets in the primary log.
		s.byId[id] = offset
	}
	s.length.Store(offset + 1)

	for _, sub := range s.subs {
		s.notify(sub, stored)
	}
	for id, ch := range s.asyncSub {
		select {
		case ch <- stored:
		default:
			if s.logger != nil {
				s.logger.WithField("subscription", id).Warn("async subscriber queue full, dropping event")
			}
		}
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"offset": offset, "kind": ev.Kind(), "event_id": id.Hex()}).Debug("event appended")
	}
	return offset, nil
}

// notify invokes a synchronous subscriber, isolating any panic so one bad
// subscriber cannot prevent another from being called.
func (s *EventStore) notify(sub subscriberEntry, ev StoredEvent) {
	defer func() {
		if r := recover(); r != nil && s.logger != nil {
			s.logger.WithFields(logrus.Fields{"subscription": sub.id, "panic": r}).Error("subscriber callback panicked")
		}
	}()
	sub.cb(ev)
}

// Subscribe registers a synchronous fan-out callback, invoked in the append
// critical section for every subsequent Append. Callbacks registered before
// an append are guaranteed to observe it.
func (s *EventStore) Subscribe(cb Subscriber) SubscriptionId {
	id := SubscriptionId(uuid.NewString())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, subscriberEntry{id: id, cb: cb})
	return id
}

// SubscribeAsync registers a bounded-queue fan-out subscriber: Append
// pushes each event onto a channel of the given capacity (dropping, rather
// than blocking, if full) and a background goroutine drains it into cb.
// Use this when subscriber work is not trivial enough to run inside the
// append critical section.
func (s *EventStore) SubscribeAsync(cb Subscriber, bufSize int) SubscriptionId {
	if bufSize <= 0 {
		bufSize = 1
	}
	id := SubscriptionId(uuid.NewString())
	ch := make(chan StoredEvent, bufSize)
	s.mu.Lock()
	s.asyncSub[id] = ch
	s.mu.Unlock()

	go func() {
		for ev := range ch {
			func() {
				defer func() {
					if r := recover(); r != nil && s.logger != nil {
						s.logger.WithFields(logrus.Fields{"subscription": id, "panic": r}).Error("async subscriber callback panicked")
					}
				}()
				cb(ev)
			}()
		}
	}()
	return id
}

// Unsubscribe removes a previously registered subscriber (synchronous or
// async). Unsubscribing an async subscriber closes its channel, stopping
// its drain goroutine.
func (s *EventStore) Unsubscribe(id SubscriptionId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
	if ch, ok := s.asyncSub[id]; ok {
		delete(s.asyncSub, id)
		close(ch)
	}
}

// OffsetOf returns the offset of the first appended event with the given
// content-addressed id, letting callers deduplicate a redelivered event
// before appending it again.
func (s *EventStore) OffsetOf(id EventId) (EventOffset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	off, ok := s.byId[id]
	return off, ok
}

// Len returns the current log length via a lock-free atomic read.
func (s *EventStore) Len() EventOffset {
	return s.length.Load()
}

// ReadAt returns the event stored at offset. The returned pointer remains
// valid for the lifetime of the store: no subsequent Append ever reallocates
// the segment backing it.
func (s *EventStore) ReadAt(offset EventOffset) (*StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if offset >= s.length.Load() {
		return nil, newErr(ErrOffsetOutOfBounds, "", "offset %d out of bounds (len=%d)", offset, s.length.Load())
	}
	seg := int(offset / uint64(s.segmentSize))
	idx := int(offset % uint64(s.segmentSize))
	return &s.segments[seg][idx], nil
}

// ReadRange returns a copy of the events in [start, end).
func (s *EventStore) ReadRange(start, end EventOffset) ([]StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	length := s.length.Load()
	if start >= end || end > length {
		return nil, newErr(ErrInvalidRange, "", "invalid range [%d, %d) for log length %d", start, end, length)
	}
	out := make([]StoredEvent, 0, end-start)
	for off := start; off < end; off++ {
		seg := int(off / uint64(s.segmentSize))
		idx := int(off % uint64(s.segmentSize))
		out = append(out, s.segments[seg][idx])
	}
	return out, nil
}

// ReadAll returns a copy of every event in the log, in offset order.
func (s *EventStore) ReadAll() ([]StoredEvent, error) {
	length := s.Len()
	if length == 0 {
		return nil, nil
	}
	return s.ReadRange(0, length)
}
