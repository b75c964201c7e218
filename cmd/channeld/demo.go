package main

import (
	"fmt"
	"math/big"
	"time"

	"github.com/channelforge/engine/core"
)

// demoPrivateKey returns a fixed, deterministic 32-byte secp256k1 private
// key for demo participant n, so repeated runs of `channeld demo` are
// reproducible.
func demoPrivateKey(n byte) []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = n + 1
	}
	return k
}

func nowMs() uint64 { return uint64(time.Now().UnixMilli()) }

// appendValidated validates ev against the package's shared ValidationContext
// before appending it to store, mirroring FinalizationManager.appendValidated
// so this demo exercises the same "emitting component calls validate before
// append" rule the library enforces on its own callers.
func appendValidated(ev core.Event) error {
	if err := ev.Validate(valCtx); err != nil {
		return fmt.Errorf("validate %s: %w", ev.Kind(), err)
	}
	if _, err := store.Append(ev); err != nil {
		return err
	}
	if objId, ok := ev.ObjectiveRef(); ok {
		valCtx.Invalidate(objId)
	}
	if chId, ok := ev.ChannelRef(); ok {
		valCtx.Invalidate(chId)
	}
	return nil
}

// runDirectFundDemo drives the two-party DirectFund happy path to
// completion: A (index 0) and B (index 1) each approve,
// exchange prefund signatures, deposit in index order, exchange postfund
// signatures, and reach Complete. Every protocol step is also recorded to
// the process's in-memory event store; that store is not persisted, so a
// separate `channeld events list` invocation starts from an empty log.
func runDirectFundDemo() error {
	ctxA, addrA, err := core.NewLocalCrankContext(demoPrivateKey(0))
	if err != nil {
		return err
	}
	ctxB, addrB, err := core.NewLocalCrankContext(demoPrivateKey(1))
	if err != nil {
		return err
	}

	fixed := core.FixedPart{
		Participants:      []core.Address{addrA, addrB},
		ChannelNonce:      1,
		AppDefinition:     core.Address{},
		ChallengeDuration: 100,
	}
	channelId := core.ComputeChannelId(fixed)
	objId := core.Keccak256([]byte("channeld-demo-objective"), channelId[:])

	outcome := core.Outcome{
		Asset: core.Address{},
		Allocations: []core.Allocation{
			{Destination: core.AddressToDestination(addrA), Amount: big.NewInt(1000), Type: core.AllocationSimple},
			{Destination: core.AddressToDestination(addrB), Amount: big.NewInt(1000), Type: core.AllocationSimple},
		},
	}

	objA, err := core.NewDirectFundObjective(objId, fixed, 0, outcome)
	if err != nil {
		return err
	}
	objB, err := core.NewDirectFundObjective(objId, fixed, 1, outcome)
	if err != nil {
		return err
	}

	if err := appendValidated(core.ChannelCreated{
		EventMeta:         core.EventMeta{EventVersion: 1, TimestampMs: nowMs()},
		ChannelId:         channelId,
		Participants:      fixed.Participants,
		ChannelNonce:      fixed.ChannelNonce,
		AppDefinition:     fixed.AppDefinition,
		ChallengeDuration: fixed.ChallengeDuration,
	}); err != nil {
		return err
	}
	if err := appendValidated(core.ObjectiveCreated{
		EventMeta:     core.EventMeta{EventVersion: 1, TimestampMs: nowMs()},
		ObjectiveId:   objId,
		ObjectiveType: core.ObjectiveDirectFund,
		ChannelId:     channelId,
		Participants:  fixed.Participants,
	}); err != nil {
		return err
	}

	// logStep prints one crank step and records it as an objective-cranked
	// event, so the stored sequence matches the lifecycle the reconstructor
	// expects: created, approved, cranked repeated, completed.
	logStep := func(who string, res core.CrankResult) error {
		fmt.Printf("%s: waiting_for=%s side_effects=%d\n", who, res.WaitingFor, len(res.SideEffects))
		return appendValidated(core.ObjectiveCranked{
			EventMeta:        core.EventMeta{EventVersion: 1, TimestampMs: nowMs()},
			ObjectiveId:      objId,
			SideEffectsCount: len(res.SideEffects),
			Waiting:          string(res.WaitingFor),
		})
	}
	// dispatch records any emit_event side effects a crank returned (e.g. a
	// message-dropped event on a rejected state_received) atomically with the
	// rest of this demo's event trail, the same way FinalizationManager.Crank
	// does internally for a tracked objective.
	dispatch := func(res core.CrankResult) error {
		return core.DispatchSideEffects(store, valCtx, res.SideEffects)
	}
	recordStateSigned := func(from core.Address, turn uint64, state core.State, sig core.Signature) error {
		return appendValidated(core.StateSigned{
			EventMeta: core.EventMeta{EventVersion: 1, TimestampMs: nowMs()},
			ChannelId: channelId,
			TurnNum:   turn,
			StateHash: core.ComputeStateHash(state),
			Signer:    from,
			Signature: sig,
			IsFinal:   state.IsFinal,
		})
	}
	recordStateReceived := func(from core.Address, turn uint64, state core.State, sig core.Signature) error {
		return appendValidated(core.StateReceived{
			EventMeta: core.EventMeta{EventVersion: 1, TimestampMs: nowMs()},
			ChannelId: channelId,
			TurnNum:   turn,
			StateHash: core.ComputeStateHash(state),
			Signer:    from,
			Signature: sig,
			IsFinal:   state.IsFinal,
		})
	}
	appendDeposit := func() error {
		return appendValidated(core.DepositDetected{
			EventMeta:       core.EventMeta{EventVersion: 1, TimestampMs: nowMs()},
			ChainRef:        core.ChainRef{ChannelId: channelId},
			Asset:           outcome.Asset,
			AmountDeposited: "1000",
			NowHeld:         "1000",
		})
	}

	prefundState := core.State{FixedPart: fixed, VariablePart: core.VariablePart{TurnNum: 0}}
	postfundState := core.State{FixedPart: fixed, VariablePart: core.VariablePart{Outcome: outcome, TurnNum: 2*uint64(fixed.N()) - 1}}

	resA, err := objA.Crank(core.ApprovalGranted{}, ctxA)
	if err != nil {
		return err
	}
	if err := appendValidated(core.ObjectiveApproved{
		EventMeta:   core.EventMeta{EventVersion: 1, TimestampMs: nowMs()},
		ObjectiveId: objId,
		Approver:    &addrA,
	}); err != nil {
		return err
	}
	if err := logStep("A approves", resA); err != nil {
		return err
	}
	if err := dispatch(resA); err != nil {
		return err
	}
	sigA0 := resA.SideEffects[0].Message.Signature
	if err := recordStateSigned(addrA, 0, prefundState, sigA0); err != nil {
		return err
	}

	resB, err := objB.Crank(core.ApprovalGranted{}, ctxB)
	if err != nil {
		return err
	}
	if err := logStep("B approves", resB); err != nil {
		return err
	}
	if err := dispatch(resB); err != nil {
		return err
	}
	sigB0 := resB.SideEffects[0].Message.Signature
	if err := recordStateSigned(addrB, 0, prefundState, sigB0); err != nil {
		return err
	}

	resA, err = objA.Crank(core.StateReceivedEvent{ChannelId: channelId, TurnNum: 0, State: prefundState, Signature: sigB0, From: addrB}, ctxA)
	if err != nil {
		return err
	}
	if err := logStep("A receives B's prefund signature", resA); err != nil {
		return err
	}
	if err := dispatch(resA); err != nil {
		return err
	}
	if err := recordStateReceived(addrB, 0, prefundState, sigB0); err != nil {
		return err
	}

	resB, err = objB.Crank(core.StateReceivedEvent{ChannelId: channelId, TurnNum: 0, State: prefundState, Signature: sigA0, From: addrA}, ctxB)
	if err != nil {
		return err
	}
	if err := logStep("B receives A's prefund signature", resB); err != nil {
		return err
	}
	if err := dispatch(resB); err != nil {
		return err
	}
	if err := recordStateReceived(addrA, 0, prefundState, sigA0); err != nil {
		return err
	}

	// A deposits first (index order).
	if err := appendDeposit(); err != nil {
		return err
	}
	resA, err = objA.Crank(core.DepositDetectedEvent{ChannelId: channelId, Asset: outcome.Asset, Depositor: addrA}, ctxA)
	if err != nil {
		return err
	}
	if err := logStep("A observes its own deposit", resA); err != nil {
		return err
	}
	if err := dispatch(resA); err != nil {
		return err
	}
	resB, err = objB.Crank(core.DepositDetectedEvent{ChannelId: channelId, Asset: outcome.Asset, Depositor: addrA}, ctxB)
	if err != nil {
		return err
	}
	if err := logStep("B observes A's deposit", resB); err != nil {
		return err
	}
	if err := dispatch(resB); err != nil {
		return err
	}

	// B deposits second.
	if err := appendDeposit(); err != nil {
		return err
	}
	resA, err = objA.Crank(core.DepositDetectedEvent{ChannelId: channelId, Asset: outcome.Asset, Depositor: addrB}, ctxA)
	if err != nil {
		return err
	}
	if err := logStep("A observes B's deposit", resA); err != nil {
		return err
	}
	if err := dispatch(resA); err != nil {
		return err
	}
	var postfundSigA core.Signature
	for _, se := range resA.SideEffects {
		if se.Kind == core.SideEffectSendMessage {
			postfundSigA = se.Message.Signature
			if err := recordStateSigned(addrA, postfundState.TurnNum, postfundState, postfundSigA); err != nil {
				return err
			}
		}
	}

	resB, err = objB.Crank(core.DepositDetectedEvent{ChannelId: channelId, Asset: outcome.Asset, Depositor: addrB}, ctxB)
	if err != nil {
		return err
	}
	if err := logStep("B observes its own deposit", resB); err != nil {
		return err
	}
	if err := dispatch(resB); err != nil {
		return err
	}
	var postfundSigB core.Signature
	for _, se := range resB.SideEffects {
		if se.Kind == core.SideEffectSendMessage {
			postfundSigB = se.Message.Signature
			if err := recordStateSigned(addrB, postfundState.TurnNum, postfundState, postfundSigB); err != nil {
				return err
			}
		}
	}

	resA, err = objA.Crank(core.StateReceivedEvent{ChannelId: channelId, TurnNum: postfundState.TurnNum, State: postfundState, Signature: postfundSigB, From: addrB}, ctxA)
	if err != nil {
		return err
	}
	if err := logStep("A receives B's postfund signature", resA); err != nil {
		return err
	}
	if err := dispatch(resA); err != nil {
		return err
	}
	if err := recordStateReceived(addrB, postfundState.TurnNum, postfundState, postfundSigB); err != nil {
		return err
	}

	resB, err = objB.Crank(core.StateReceivedEvent{ChannelId: channelId, TurnNum: postfundState.TurnNum, State: postfundState, Signature: postfundSigA, From: addrA}, ctxB)
	if err != nil {
		return err
	}
	if err := logStep("B receives A's postfund signature", resB); err != nil {
		return err
	}
	if err := dispatch(resB); err != nil {
		return err
	}
	if err := recordStateReceived(addrA, postfundState.TurnNum, postfundState, postfundSigA); err != nil {
		return err
	}

	if err := appendValidated(core.ObjectiveCompleted{
		EventMeta:   core.EventMeta{EventVersion: 1, TimestampMs: nowMs()},
		ObjectiveId: objId,
		Success:     true,
	}); err != nil {
		return err
	}

	fmt.Printf("\nchannel %s funded; objective %s complete (A.Terminal=%v B.Terminal=%v)\n", channelId.Hex(), objId.Hex(), objA.Terminal(), objB.Terminal())

	chSt, err := recon.ReconstructChannel(channelId)
	if err != nil {
		return err
	}
	fmt.Printf("reconstructed channel state: status=%s latest_turn=%d event_count=%d\n", chSt.Status, chSt.LatestTurnNum, chSt.EventCount)
	return nil
}
