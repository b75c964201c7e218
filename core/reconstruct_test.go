package core

import (
	"reflect"
	"testing"
)

func buildTestChannel(t *testing.T, store *EventStore) (FixedPart, Hash) {
	t.Helper()
	fixed := FixedPart{
		Participants:      []Address{{1}, {2}},
		ChannelNonce:      1,
		AppDefinition:     Address{9},
		ChallengeDuration: 100,
	}
	channelId := ComputeChannelId(fixed)
	_, err := store.Append(ChannelCreated{
		EventMeta:         EventMeta{EventVersion: 1, TimestampMs: 1},
		ChannelId:         channelId,
		Participants:      fixed.Participants,
		ChannelNonce:      fixed.ChannelNonce,
		AppDefinition:     fixed.AppDefinition,
		ChallengeDuration: fixed.ChallengeDuration,
	})
	if err != nil {
		t.Fatalf("append channel-created: %v", err)
	}
	return fixed, channelId
}

// TestReconstructChannelFoldsEvents checks that replaying a sequence of
// events from scratch reproduces the expected folded state.
func TestReconstructChannelFoldsEvents(t *testing.T) {
	store := NewEventStore(nil)
	_, channelId := buildTestChannel(t, store)

	if _, err := store.Append(StateSigned{
		EventMeta: EventMeta{EventVersion: 1, TimestampMs: 2},
		ChannelId: channelId,
		TurnNum:   1,
		StateHash: Hash{1},
		Signer:    Address{1},
		Signature: Signature{1},
	}); err != nil {
		t.Fatalf("append state-signed: %v", err)
	}
	if _, err := store.Append(StateSupportedUpdated{
		EventMeta:     EventMeta{EventVersion: 1, TimestampMs: 3},
		ChannelId:     channelId,
		SupportedTurn: 1,
		StateHash:     Hash{1},
		NumSignatures: 2,
	}); err != nil {
		t.Fatalf("append state-supported-updated: %v", err)
	}

	r := NewReconstructor(store, 0, nil)
	state, err := r.ReconstructChannel(channelId)
	if err != nil {
		t.Fatalf("ReconstructChannel: %v", err)
	}
	if state.Status != ChannelOpenStatus {
		t.Fatalf("expected Open status, got %s", state.Status)
	}
	if state.LatestTurnNum != 1 {
		t.Fatalf("expected latest turn 1, got %d", state.LatestTurnNum)
	}
	if state.LatestSupportedTurn != 1 {
		t.Fatalf("expected latest supported turn 1, got %d", state.LatestSupportedTurn)
	}
	if state.EventCount != 3 {
		t.Fatalf("expected event count 3, got %d", state.EventCount)
	}
}

// TestReconstructChannelSnapshotEquivalence checks that reconstructing
// with an intervening snapshot produces a result identical to
// reconstructing the same offset range from scratch.
func TestReconstructChannelSnapshotEquivalence(t *testing.T) {
	store := NewEventStore(nil)
	_, channelId := buildTestChannel(t, store)

	for turn := uint64(1); turn <= 10; turn++ {
		if _, err := store.Append(StateSigned{
			EventMeta: EventMeta{EventVersion: 1, TimestampMs: turn},
			ChannelId: channelId,
			TurnNum:   turn,
			StateHash: Hash{byte(turn)},
			Signer:    Address{1},
			Signature: Signature{byte(turn)},
		}); err != nil {
			t.Fatalf("append turn %d: %v", turn, err)
		}
	}

	baseline := NewReconstructor(store, 0, nil)
	want, err := baseline.ReconstructChannel(channelId)
	if err != nil {
		t.Fatalf("baseline ReconstructChannel: %v", err)
	}

	accelerated := NewReconstructor(store, 0, nil)
	if err := accelerated.SnapshotChannelIfDue(channelId); err != nil {
		t.Fatalf("SnapshotChannelIfDue: %v", err)
	}
	// Force a snapshot at the current length regardless of interval so the
	// acceleration path is actually exercised by this test.
	sm := accelerated.ChannelSnapshots(channelId)
	mid, err := accelerated.ReconstructChannel(channelId)
	if err != nil {
		t.Fatalf("ReconstructChannel for snapshot seed: %v", err)
	}
	midBytes, err := CanonicalBytes(mid)
	if err != nil {
		t.Fatalf("CanonicalBytes: %v", err)
	}
	sm.Create(store.Len(), 100, midBytes)

	for turn := uint64(11); turn <= 15; turn++ {
		if _, err := store.Append(StateSigned{
			EventMeta: EventMeta{EventVersion: 1, TimestampMs: turn},
			ChannelId: channelId,
			TurnNum:   turn,
			StateHash: Hash{byte(turn)},
			Signer:    Address{1},
			Signature: Signature{byte(turn)},
		}); err != nil {
			t.Fatalf("append turn %d: %v", turn, err)
		}
	}

	want, err = baseline.ReconstructChannel(channelId)
	if err != nil {
		t.Fatalf("baseline ReconstructChannel after growth: %v", err)
	}
	got, err := accelerated.ReconstructChannel(channelId)
	if err != nil {
		t.Fatalf("accelerated ReconstructChannel after growth: %v", err)
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("snapshot-accelerated reconstruction diverged: want %+v got %+v", want, got)
	}
}

// TestReconstructObjectiveLifecycle folds a full created → approved →
// cranked → completed sequence and checks the resulting state.
func TestReconstructObjectiveLifecycle(t *testing.T) {
	store := NewEventStore(nil)
	objId := ObjId{0xAA}
	events := []Event{
		ObjectiveCreated{
			EventMeta:     EventMeta{EventVersion: 1, TimestampMs: 1},
			ObjectiveId:   objId,
			ObjectiveType: ObjectiveDirectFund,
			ChannelId:     Hash{0xBB},
			Participants:  []Address{{1}, {2}},
		},
		ObjectiveApproved{EventMeta: EventMeta{EventVersion: 1, TimestampMs: 2}, ObjectiveId: objId},
		ObjectiveCranked{EventMeta: EventMeta{EventVersion: 1, TimestampMs: 3}, ObjectiveId: objId, SideEffectsCount: 1, Waiting: "complete_prefund"},
		ObjectiveCompleted{EventMeta: EventMeta{EventVersion: 1, TimestampMs: 4}, ObjectiveId: objId, Success: true},
	}
	for _, ev := range events {
		if _, err := store.Append(ev); err != nil {
			t.Fatalf("append %s: %v", ev.Kind(), err)
		}
	}

	r := NewReconstructor(store, 0, nil)
	state, err := r.ReconstructObjective(objId)
	if err != nil {
		t.Fatalf("ReconstructObjective: %v", err)
	}
	if state.Status != ObjectiveCompletedStatus {
		t.Fatalf("expected Completed status, got %s", state.Status)
	}
	if state.EventCount != 4 {
		t.Fatalf("expected event count 4, got %d", state.EventCount)
	}
	if state.CreatedAt != 1 {
		t.Fatalf("expected created_at 1, got %d", state.CreatedAt)
	}
	if state.CompletedAt == nil || *state.CompletedAt != 4 {
		t.Fatalf("expected completed_at 4, got %v", state.CompletedAt)
	}
}

// TestReconstructObjectiveRequiresCreatedFirst verifies the invariant that
// the first event referencing an objective id must be objective-created.
func TestReconstructObjectiveRequiresCreatedFirst(t *testing.T) {
	store := NewEventStore(nil)
	objId := ObjId{1}
	if _, err := store.Append(ObjectiveApproved{
		EventMeta:   EventMeta{EventVersion: 1, TimestampMs: 1},
		ObjectiveId: objId,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	r := NewReconstructor(store, 0, nil)
	if _, err := r.ReconstructObjective(objId); err == nil {
		t.Fatalf("expected error when first event is not objective-created")
	} else if kind, ok := KindOf(err); !ok || kind != ErrInvalidFirstEvent {
		t.Fatalf("expected ErrInvalidFirstEvent, got %v", err)
	}
}
