package core

import (
	"testing"
)

// buildValidationFixture appends a channel-created event for two real
// keyed participants and returns everything needed to validate further
// events against the resulting log.
func buildValidationFixture(t *testing.T) (*EventStore, ValidationContext, FixedPart, Hash, []participant) {
	t.Helper()
	p0 := newParticipant(t, 0xA1)
	p1 := newParticipant(t, 0xA2)
	fixed := FixedPart{
		Participants:      []Address{p0.addr, p1.addr},
		ChannelNonce:      3,
		AppDefinition:     Address{0xAB},
		ChallengeDuration: 100,
	}
	channelId := ComputeChannelId(fixed)

	store := NewEventStore(nil)
	recon := NewReconstructor(store, 0, nil)
	valCtx := NewValidationContext(recon, 0)

	if _, err := store.Append(ChannelCreated{
		EventMeta:         EventMeta{EventVersion: 1, TimestampMs: 1},
		ChannelId:         channelId,
		Participants:      fixed.Participants,
		ChannelNonce:      fixed.ChannelNonce,
		AppDefinition:     fixed.AppDefinition,
		ChallengeDuration: fixed.ChallengeDuration,
	}); err != nil {
		t.Fatalf("append channel-created: %v", err)
	}
	return store, valCtx, fixed, channelId, []participant{p0, p1}
}

func signedStateEvent(t *testing.T, p participant, channelId Hash, state State) StateSigned {
	t.Helper()
	hash := ComputeStateHash(state)
	sig, err := p.ctx.Sign(hash)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return StateSigned{
		EventMeta: EventMeta{EventVersion: 1, TimestampMs: 2},
		ChannelId: channelId,
		TurnNum:   state.TurnNum,
		StateHash: hash,
		Signer:    p.addr,
		Signature: sig,
		IsFinal:   state.IsFinal,
	}
}

// TestStateSignedTurnMonotonicPerSigner verifies the turn-number rule is
// per signer, not global: both participants may sign turn 0, but a signer
// repeating a turn it already signed is rejected.
func TestStateSignedTurnMonotonicPerSigner(t *testing.T) {
	store, valCtx, fixed, channelId, parts := buildValidationFixture(t)

	prefund := State{FixedPart: fixed, VariablePart: VariablePart{TurnNum: 0}}
	ev0 := signedStateEvent(t, parts[0], channelId, prefund)
	if err := ev0.Validate(valCtx); err != nil {
		t.Fatalf("first signer's turn-0 state should validate: %v", err)
	}
	if _, err := store.Append(ev0); err != nil {
		t.Fatalf("append: %v", err)
	}
	valCtx.Invalidate(channelId)

	ev1 := signedStateEvent(t, parts[1], channelId, prefund)
	if err := ev1.Validate(valCtx); err != nil {
		t.Fatalf("second signer's turn-0 state should validate even after the first: %v", err)
	}
	if _, err := store.Append(ev1); err != nil {
		t.Fatalf("append: %v", err)
	}
	valCtx.Invalidate(channelId)

	repeat := signedStateEvent(t, parts[0], channelId, prefund)
	err := repeat.Validate(valCtx)
	if err == nil {
		t.Fatalf("expected a signer repeating turn 0 to be rejected")
	}
	if kind, ok := KindOf(err); !ok || kind != ErrInvalidTurnProgression {
		t.Fatalf("expected ErrInvalidTurnProgression, got %v", err)
	}

	later := State{FixedPart: fixed, VariablePart: VariablePart{TurnNum: 3}}
	ev3 := signedStateEvent(t, parts[0], channelId, later)
	if err := ev3.Validate(valCtx); err != nil {
		t.Fatalf("a higher turn from the same signer should validate: %v", err)
	}
}

// TestChallengeClearedRequiresHigherTurnRecord verifies a challenge-cleared
// must carry a new turn record exceeding the registered challenge's.
func TestChallengeClearedRequiresHigherTurnRecord(t *testing.T) {
	store, valCtx, _, channelId, parts := buildValidationFixture(t)

	if _, err := store.Append(ChallengeRegistered{
		EventMeta:        EventMeta{EventVersion: 1, TimestampMs: 2},
		ChainRef:         ChainRef{ChannelId: channelId, BlockNum: 10, TxIndex: 0},
		TurnNumRecord:    5,
		FinalizationTime: 9999,
		Challenger:       parts[0].addr,
	}); err != nil {
		t.Fatalf("append challenge-registered: %v", err)
	}
	valCtx.Invalidate(channelId)

	stale := ChallengeCleared{
		EventMeta:        EventMeta{EventVersion: 1, TimestampMs: 3},
		ChainRef:         ChainRef{ChannelId: channelId, BlockNum: 11, TxIndex: 0},
		NewTurnNumRecord: 5,
	}
	err := stale.Validate(valCtx)
	if err == nil {
		t.Fatalf("expected a non-advancing turn record to be rejected")
	}
	if kind, ok := KindOf(err); !ok || kind != ErrInvalidTurnProgression {
		t.Fatalf("expected ErrInvalidTurnProgression, got %v", err)
	}

	cleared := stale
	cleared.NewTurnNumRecord = 6
	if err := cleared.Validate(valCtx); err != nil {
		t.Fatalf("an advancing turn record should validate: %v", err)
	}
}

// TestMessageAckedRequiresPriorSent verifies a message-acked referencing a
// message id with no prior message-sent is rejected.
func TestMessageAckedRequiresPriorSent(t *testing.T) {
	store := NewEventStore(nil)
	recon := NewReconstructor(store, 0, nil)
	valCtx := NewValidationContext(recon, 0)

	msgId := Hash{0x77}
	ack := MessageAcked{
		EventMeta:   EventMeta{EventVersion: 1, TimestampMs: 2},
		MessageId:   msgId,
		PeerId:      "peer-1",
		RoundtripMs: 40,
	}
	if err := ack.Validate(valCtx); err == nil {
		t.Fatalf("expected an ack with no prior message-sent to be rejected")
	}

	if _, err := store.Append(MessageSent{
		EventMeta:        EventMeta{EventVersion: 1, TimestampMs: 1},
		MessageId:        msgId,
		PeerId:           "peer-1",
		ObjectiveId:      ObjId{0x01},
		PayloadSizeBytes: 128,
	}); err != nil {
		t.Fatalf("append message-sent: %v", err)
	}
	if err := ack.Validate(valCtx); err != nil {
		t.Fatalf("an ack after its message-sent should validate: %v", err)
	}
}

// TestChannelCreatedRejectsMismatchedId verifies the derived-id consistency
// check on channel-created.
func TestChannelCreatedRejectsMismatchedId(t *testing.T) {
	store := NewEventStore(nil)
	recon := NewReconstructor(store, 0, nil)
	valCtx := NewValidationContext(recon, 0)

	fixed := FixedPart{
		Participants:      []Address{{1}, {2}},
		ChannelNonce:      1,
		AppDefinition:     Address{9},
		ChallengeDuration: 100,
	}
	ev := ChannelCreated{
		EventMeta:         EventMeta{EventVersion: 1, TimestampMs: 1},
		ChannelId:         Hash{0xBA, 0xD1},
		Participants:      fixed.Participants,
		ChannelNonce:      fixed.ChannelNonce,
		AppDefinition:     fixed.AppDefinition,
		ChallengeDuration: fixed.ChallengeDuration,
	}
	err := ev.Validate(valCtx)
	if err == nil {
		t.Fatalf("expected a mismatched channel id to be rejected")
	}
	if kind, ok := KindOf(err); !ok || kind != ErrChannelIdMismatch {
		t.Fatalf("expected ErrChannelIdMismatch, got %v", err)
	}

	ev.ChannelId = ComputeChannelId(fixed)
	if err := ev.Validate(valCtx); err != nil {
		t.Fatalf("the derived id should validate: %v", err)
	}
}
