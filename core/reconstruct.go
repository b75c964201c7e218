package core

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
)

// Reconstructor folds the event log into per-entity state.
// It is a pure function of its input sequence: reconstructing twice from the
// same store content always yields the same result, regardless of whether a
// snapshot accelerated either call.
type Reconstructor struct {
	store    *EventStore
	interval uint64
	logger   *logrus.Logger

	objSnap map[ObjId]*SnapshotManager
	chSnap  map[Hash]*SnapshotManager
}

// NewReconstructor builds a reconstructor over store. snapshotInterval
// configures every lazily-created per-entity SnapshotManager (0 uses the
// default of 1000).
func NewReconstructor(store *EventStore, snapshotInterval uint64, logger *logrus.Logger) *Reconstructor {
	return &Reconstructor{
		store:    store,
		interval: snapshotInterval,
		logger:   logger,
		objSnap:  make(map[ObjId]*SnapshotManager),
		chSnap:   make(map[Hash]*SnapshotManager),
	}
}

func (r *Reconstructor) objectiveSnapshots(id ObjId) *SnapshotManager {
	sm, ok := r.objSnap[id]
	if !ok {
		sm = NewSnapshotManager(r.interval, r.logger)
		r.objSnap[id] = sm
	}
	return sm
}

func (r *Reconstructor) channelSnapshots(id Hash) *SnapshotManager {
	sm, ok := r.chSnap[id]
	if !ok {
		sm = NewSnapshotManager(r.interval, r.logger)
		r.chSnap[id] = sm
	}
	return sm
}

// ReconstructObjective folds every event mentioning id into an
// ObjectiveState, using the latest applicable snapshot if one exists.
func (r *Reconstructor) ReconstructObjective(id ObjId) (ObjectiveState, error) {
	length := r.store.Len()
	if length == 0 {
		return ObjectiveState{}, newErr(ErrNotFound, id.Hex(), "no events found for objective %s", id.Hex())
	}

	sm := r.objectiveSnapshots(id)
	var state ObjectiveState
	startOffset := EventOffset(0)
	found := false
	if snap, ok := sm.LatestBefore(length); ok {
		if err := json.Unmarshal(snap.Data, &state); err == nil {
			startOffset = snap.Offset
			found = true
		}
	}

	var events []StoredEvent
	if startOffset < length {
		var err error
		events, err = r.store.ReadRange(startOffset, length)
		if err != nil {
			return ObjectiveState{}, err
		}
	}

	for _, se := range events {
		oid, ok := se.Event.ObjectiveRef()
		if !ok || oid != id {
			continue
		}
		if !found {
			oc, isCreated := se.Event.(ObjectiveCreated)
			if !isCreated {
				return ObjectiveState{}, newErr(ErrInvalidFirstEvent, id.Hex(), "first event for objective %s is %s, not objective-created", id.Hex(), se.Event.Kind())
			}
			state = ObjectiveState{ObjectiveId: id, Status: ObjectiveCreatedStatus, CreatedAt: oc.Meta().TimestampMs, EventCount: 1}
			found = true
			continue
		}
		applyObjectiveEvent(&state, se.Event)
	}
	if !found {
		return ObjectiveState{}, newErr(ErrNotFound, id.Hex(), "no events found for objective %s", id.Hex())
	}
	return state, nil
}

func applyObjectiveEvent(state *ObjectiveState, ev Event) {
	state.EventCount++
	if state.Status.Terminal() {
		return
	}
	switch e := ev.(type) {
	case ObjectiveApproved:
		state.Status = ObjectiveApprovedStatus
	case ObjectiveRejected:
		state.Status = ObjectiveRejectedStatus
	case ObjectiveCranked:
		state.Status = ObjectiveCrankedStatus
	case ObjectiveCompleted:
		state.Status = ObjectiveCompletedStatus
		t := e.Meta().TimestampMs
		state.CompletedAt = &t
	}
}

// ReconstructChannel folds every event mentioning id into a ChannelState,
// using the latest applicable snapshot if one exists.
func (r *Reconstructor) ReconstructChannel(id Hash) (ChannelState, error) {
	length := r.store.Len()
	if length == 0 {
		return ChannelState{}, newErr(ErrNotFound, id.Hex(), "no events found for channel %s", id.Hex())
	}

	sm := r.channelSnapshots(id)
	var state ChannelState
	startOffset := EventOffset(0)
	found := false
	if snap, ok := sm.LatestBefore(length); ok {
		if err := json.Unmarshal(snap.Data, &state); err == nil {
			startOffset = snap.Offset
			found = true
		}
	}

	var events []StoredEvent
	if startOffset < length {
		var err error
		events, err = r.store.ReadRange(startOffset, length)
		if err != nil {
			return ChannelState{}, err
		}
	}

	for _, se := range events {
		cid, ok := se.Event.ChannelRef()
		if !ok || cid != id {
			continue
		}
		if !found {
			cc, isCreated := se.Event.(ChannelCreated)
			if !isCreated {
				return ChannelState{}, newErr(ErrInvalidFirstEvent, id.Hex(), "first event for channel %s is %s, not channel-created", id.Hex(), se.Event.Kind())
			}
			state = ChannelState{ChannelId: id, Status: ChannelCreatedStatus, CreatedAt: cc.Meta().TimestampMs, EventCount: 1}
			found = true
			continue
		}
		applyChannelEvent(&state, se.Event)
	}
	if !found {
		return ChannelState{}, newErr(ErrNotFound, id.Hex(), "no events found for channel %s", id.Hex())
	}
	return state, nil
}

func applyChannelEvent(state *ChannelState, ev Event) {
	state.EventCount++
	switch e := ev.(type) {
	case StateSigned:
		if e.TurnNum > state.LatestTurnNum {
			state.LatestTurnNum = e.TurnNum
		}
		if state.SignerTurns == nil {
			state.SignerTurns = make(map[string]uint64)
		}
		if prev, ok := state.SignerTurns[e.Signer.Hex()]; !ok || e.TurnNum > prev {
			state.SignerTurns[e.Signer.Hex()] = e.TurnNum
		}
		if state.Status == ChannelCreatedStatus {
			state.Status = ChannelOpenStatus
		}
	case StateReceived:
		if e.TurnNum > state.LatestTurnNum {
			state.LatestTurnNum = e.TurnNum
		}
		if state.Status == ChannelCreatedStatus {
			state.Status = ChannelOpenStatus
		}
	case StateSupportedUpdated:
		if e.SupportedTurn > state.LatestSupportedTurn {
			state.LatestSupportedTurn = e.SupportedTurn
		}
	case ChallengeRegistered:
		if state.ChallengeTurnRecord == nil || e.TurnNumRecord > *state.ChallengeTurnRecord {
			record := e.TurnNumRecord
			state.ChallengeTurnRecord = &record
		}
	case ChannelFinalized:
		state.Status = ChannelFinalizedStatus
		t := e.Meta().TimestampMs
		state.FinalizedAt = &t
	}
}

// MessageSentExists scans the log for a message-sent event carrying the
// given message id. The log is append-only, so a true result is stable and
// safe to cache; a false result can be flipped by a later append.
func (r *Reconstructor) MessageSentExists(id Hash) bool {
	length := r.store.Len()
	for off := EventOffset(0); off < length; off++ {
		se, err := r.store.ReadAt(off)
		if err != nil {
			return false
		}
		if ms, ok := se.Event.(MessageSent); ok && ms.MessageId == id {
			return true
		}
	}
	return false
}

// SnapshotObjectiveIfDue reconstructs and records a snapshot for id if the
// current log length is due for one per the objective's snapshot interval
// policy.
func (r *Reconstructor) SnapshotObjectiveIfDue(id ObjId) error {
	length := r.store.Len()
	sm := r.objectiveSnapshots(id)
	if !sm.ShouldSnapshot(length) {
		return nil
	}
	state, err := r.ReconstructObjective(id)
	if err != nil {
		return err
	}
	data, err := json.Marshal(state)
	if err != nil {
		return wrapErr(ErrAllocationFailed, id.Hex(), err, "marshal objective snapshot")
	}
	sm.Create(length, uint64(time.Now().UnixMilli()), data)
	return nil
}

// SnapshotChannelIfDue reconstructs and records a snapshot for id if the
// current log length is due for one per the channel's snapshot interval
// policy.
func (r *Reconstructor) SnapshotChannelIfDue(id Hash) error {
	length := r.store.Len()
	sm := r.channelSnapshots(id)
	if !sm.ShouldSnapshot(length) {
		return nil
	}
	state, err := r.ReconstructChannel(id)
	if err != nil {
		return err
	}
	data, err := json.Marshal(state)
	if err != nil {
		return wrapErr(ErrAllocationFailed, id.Hex(), err, "marshal channel snapshot")
	}
	sm.Create(length, uint64(time.Now().UnixMilli()), data)
	return nil
}

// ObjectiveSnapshots exposes the per-objective SnapshotManager so callers
// (tests, operators) can create/prune snapshots directly rather than only
// through the Due helpers.
func (r *Reconstructor) ObjectiveSnapshots(id ObjId) *SnapshotManager {
	return r.objectiveSnapshots(id)
}

// ChannelSnapshots exposes the per-channel SnapshotManager.
func (r *Reconstructor) ChannelSnapshots(id Hash) *SnapshotManager { return r.channelSnapshots(id) }
