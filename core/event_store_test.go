package core

import (
	"sync"
	"testing"
)

func sampleRejection(n int) ObjectiveRejected {
	return ObjectiveRejected{
		EventMeta:   EventMeta{EventVersion: 1, TimestampMs: uint64(n)},
		ObjectiveId: ObjId{byte(n)},
		Reason:      "test",
	}
}

// TestEventStoreConcurrentAppend checks that many goroutines appending
// concurrently all succeed with distinct, gapless offsets and the final
// length equals the total append count.
func TestEventStoreConcurrentAppend(t *testing.T) {
	store := NewEventStore(nil)
	const goroutines = 50
	const perGoroutine = 40

	var wg sync.WaitGroup
	offsets := make(chan EventOffset, goroutines*perGoroutine)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				off, err := store.Append(sampleRejection(g*perGoroutine + i))
				if err != nil {
					t.Errorf("append: %v", err)
					return
				}
				offsets <- off
			}
		}(g)
	}
	wg.Wait()
	close(offsets)

	seen := make(map[EventOffset]bool)
	for off := range offsets {
		if seen[off] {
			t.Fatalf("duplicate offset %d assigned to two appends", off)
		}
		seen[off] = true
	}
	if got, want := store.Len(), EventOffset(goroutines*perGoroutine); got != want {
		t.Fatalf("store length = %d, want %d", got, want)
	}
	for i := EventOffset(0); i < store.Len(); i++ {
		if !seen[i] {
			t.Fatalf("offset %d never assigned, offsets are not dense", i)
		}
	}
}

// TestEventStoreStablePointers verifies that a pointer returned by ReadAt
// remains valid and unchanged across many subsequent appends, even across a
// segment boundary.
func TestEventStoreStablePointers(t *testing.T) {
	store := NewEventStore(nil)
	if _, err := store.Append(sampleRejection(0)); err != nil {
		t.Fatalf("append: %v", err)
	}
	first, err := store.ReadAt(0)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	firstPtr := first

	for i := 1; i < defaultSegmentSize*2+5; i++ {
		if _, err := store.Append(sampleRejection(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	again, err := store.ReadAt(0)
	if err != nil {
		t.Fatalf("ReadAt after growth: %v", err)
	}
	if firstPtr != again {
		t.Fatalf("pointer for offset 0 changed after growth: %p vs %p", firstPtr, again)
	}
	if again.Id != firstPtr.Id {
		t.Fatalf("stored event content changed at offset 0")
	}
}

// TestEventStoreSubscriberFanOut verifies every synchronous subscriber
// observes every appended event, in append order.
func TestEventStoreSubscriberFanOut(t *testing.T) {
	store := NewEventStore(nil)
	var mu sync.Mutex
	var got []EventOffset
	store.Subscribe(func(se StoredEvent) {
		mu.Lock()
		got = append(got, se.Offset)
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		if _, err := store.Append(sampleRejection(i)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 5 {
		t.Fatalf("expected 5 notifications, got %d", len(got))
	}
	for i, off := range got {
		if off != EventOffset(i) {
			t.Fatalf("notification order broken: index %d had offset %d", i, off)
		}
	}
}

// TestEventStoreSubscriberPanicIsolated verifies a panicking subscriber does
// not prevent other subscribers from being invoked, nor does it fail
// Append.
func TestEventStoreSubscriberPanicIsolated(t *testing.T) {
	store := NewEventStore(nil)
	var secondCalled bool
	store.Subscribe(func(StoredEvent) { panic("boom") })
	store.Subscribe(func(StoredEvent) { secondCalled = true })

	if _, err := store.Append(sampleRejection(0)); err != nil {
		t.Fatalf("append should not fail due to subscriber panic: %v", err)
	}
	if !secondCalled {
		t.Fatalf("second subscriber was not invoked after first panicked")
	}
}

// TestEventStoreReadRangeBounds exercises invalid range rejection.
func TestEventStoreReadRangeBounds(t *testing.T) {
	store := NewEventStore(nil)
	for i := 0; i < 3; i++ {
		if _, err := store.Append(sampleRejection(i)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if _, err := store.ReadRange(0, 10); err == nil {
		t.Fatalf("expected error reading past log length")
	}
	if _, err := store.ReadRange(2, 1); err == nil {
		t.Fatalf("expected error for start >= end")
	}
	events, err := store.ReadRange(0, 3)
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
}

// TestEventStoreOffsetOf verifies the id index points at the first offset
// holding an event, including when the identical event is appended twice.
func TestEventStoreOffsetOf(t *testing.T) {
	store := NewEventStore(nil)
	ev := sampleRejection(1)
	id, err := Id(ev)
	if err != nil {
		t.Fatalf("Id: %v", err)
	}
	if _, ok := store.OffsetOf(id); ok {
		t.Fatalf("expected no offset for an event not yet appended")
	}
	if _, err := store.Append(sampleRejection(0)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := store.Append(ev); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := store.Append(ev); err != nil {
		t.Fatalf("duplicate append: %v", err)
	}
	off, ok := store.OffsetOf(id)
	if !ok {
		t.Fatalf("expected an offset for the appended event")
	}
	if off != 1 {
		t.Fatalf("expected the first occurrence's offset 1, got %d", off)
	}
}

// TestEventStoreUnsubscribe verifies a removed subscriber stops receiving
// notifications.
func TestEventStoreUnsubscribe(t *testing.T) {
	store := NewEventStore(nil)
	count := 0
	id := store.Subscribe(func(StoredEvent) { count++ })
	if _, err := store.Append(sampleRejection(0)); err != nil {
		t.Fatalf("append: %v", err)
	}
	store.Unsubscribe(id)
	if _, err := store.Append(sampleRejection(1)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 notification before unsubscribe, got %d", count)
	}
}
