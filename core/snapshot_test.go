package core

import "testing"

func TestSnapshotManagerShouldSnapshot(t *testing.T) {
	sm := NewSnapshotManager(100, nil)
	cases := map[EventOffset]bool{0: false, 50: false, 100: true, 150: false, 200: true}
	for off, want := range cases {
		if got := sm.ShouldSnapshot(off); got != want {
			t.Fatalf("ShouldSnapshot(%d) = %v, want %v", off, got, want)
		}
	}
}

func TestSnapshotManagerLatestBefore(t *testing.T) {
	sm := NewSnapshotManager(10, nil)
	sm.Create(10, 1000, []byte("a"))
	sm.Create(20, 2000, []byte("b"))
	sm.Create(30, 3000, []byte("c"))

	snap, ok := sm.LatestBefore(25)
	if !ok {
		t.Fatalf("expected a snapshot before offset 25")
	}
	if snap.Offset != 20 {
		t.Fatalf("expected latest-before offset 20, got %d", snap.Offset)
	}

	if _, ok := sm.LatestBefore(10); ok {
		t.Fatalf("expected no snapshot strictly before offset 10")
	}
}

func TestSnapshotManagerCreateIsCopyOnWrite(t *testing.T) {
	sm := NewSnapshotManager(10, nil)
	data := []byte("mutate-me")
	sm.Create(10, 0, data)
	data[0] = 'X'

	snap, ok := sm.Get(10)
	if !ok {
		t.Fatalf("expected snapshot at offset 10")
	}
	if snap.Data[0] == 'X' {
		t.Fatalf("snapshot data aliases caller's backing array")
	}
}

func TestSnapshotManagerPrune(t *testing.T) {
	sm := NewSnapshotManager(10, nil)
	for i := EventOffset(1); i <= 5; i++ {
		sm.Create(i*10, uint64(i), []byte("x"))
	}
	if got := sm.Count(); got != 5 {
		t.Fatalf("expected 5 snapshots before prune, got %d", got)
	}
	sm.Prune(2)
	if got := sm.Count(); got != 2 {
		t.Fatalf("expected 2 snapshots after prune, got %d", got)
	}
	if _, ok := sm.Get(50); !ok {
		t.Fatalf("expected newest snapshot (offset 50) to survive prune")
	}
	if _, ok := sm.Get(40); !ok {
		t.Fatalf("expected second-newest snapshot (offset 40) to survive prune")
	}
	if _, ok := sm.Get(10); ok {
		t.Fatalf("expected oldest snapshot (offset 10) to be evicted")
	}
}
