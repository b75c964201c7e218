package core

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

const defaultSnapshotInterval = 1000

// Snapshot is cached, derived state at an offset: never authoritative, and
// always safe to discard and rebuild by replay.
type Snapshot struct {
	Offset      EventOffset
	TimestampMs uint64
	Data        []byte
}

// SnapshotManager is an associative offset -> Snapshot map plus interval
// policy. It is oblivious to what Data encodes; the Reconstructor supplies
// both serialization and deserialization.
type SnapshotManager struct {
	mu       sync.RWMutex
	interval uint64
	byOffset map[EventOffset]Snapshot
	order    []EventOffset // offsets held, for Prune (which sorts it ascending)
	logger   *logrus.Logger
}

// NewSnapshotManager constructs a manager with the given interval (0 means
// "use the default of 1000").
func NewSnapshotManager(interval uint64, logger *logrus.Logger) *SnapshotManager {
	if interval == 0 {
		interval = defaultSnapshotInterval
	}
	return &SnapshotManager{
		interval: interval,
		byOffset: make(map[EventOffset]Snapshot),
		logger:   logger,
	}
}

// Create copies data and stores a snapshot at offset. If a snapshot for
// offset already exists, it is replaced.
func (m *SnapshotManager) Create(offset EventOffset, timestampMs uint64, data []byte) {
	cp := append([]byte(nil), data...)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byOffset[offset]; !exists {
		m.order = append(m.order, offset)
	}
	m.byOffset[offset] = Snapshot{Offset: offset, TimestampMs: timestampMs, Data: cp}
	if m.logger != nil {
		m.logger.WithFields(logrus.Fields{"offset": offset, "bytes": len(cp)}).Debug("snapshot created")
	}
}

// Get returns the snapshot at exactly offset, if any.
func (m *SnapshotManager) Get(offset EventOffset) (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byOffset[offset]
	return s, ok
}

// LatestBefore returns the snapshot with the greatest key strictly less
// than offset, or false if none exists.
func (m *SnapshotManager) LatestBefore(offset EventOffset) (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best EventOffset
	found := false
	for off := range m.byOffset {
		if off < offset && (!found || off > best) {
			best = off
			found = true
		}
	}
	if !found {
		return Snapshot{}, false
	}
	return m.byOffset[best], true
}

// ShouldSnapshot reports whether offset is a multiple of the configured
// interval (and not zero).
func (m *SnapshotManager) ShouldSnapshot(offset EventOffset) bool {
	m.mu.RLock()
	interval := m.interval
	m.mu.RUnlock()
	return offset > 0 && offset%interval == 0
}

// NextOffset returns the next multiple of the interval strictly greater
// than current.
func (m *SnapshotManager) NextOffset(current EventOffset) EventOffset {
	m.mu.RLock()
	interval := m.interval
	m.mu.RUnlock()
	return (current/interval + 1) * interval
}

// Prune keeps at most `keep` snapshots, evicting the lowest offsets first. A
// persistent backend's pruning policy (compaction, reference counting) is a
// separate concern left to that backend.
func (m *SnapshotManager) Prune(keep int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if keep < 0 || len(m.order) <= keep {
		return
	}
	sort.Slice(m.order, func(i, j int) bool { return m.order[i] < m.order[j] })
	toDrop := m.order[:len(m.order)-keep]
	for _, off := range toDrop {
		delete(m.byOffset, off)
	}
	m.order = m.order[len(m.order)-keep:]
}

// Count returns the number of snapshots currently held.
func (m *SnapshotManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byOffset)
}
