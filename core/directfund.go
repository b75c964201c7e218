package core

import (
	"fmt"
	"math/big"
)

// DirectFundStatus is the internal status of a DirectFundObjective. Unlike
// ObjectiveState.Status (folded from the event log), this is the engine's
// own in-memory state machine status, mutated directly by Crank.
type DirectFundStatus string

const (
	DFUnapproved DirectFundStatus = "Unapproved"
	DFApproved   DirectFundStatus = "Approved"
	DFComplete   DirectFundStatus = "Complete"
	DFRejected   DirectFundStatus = "Rejected"
)

// DirectFundObjective is the Crank state machine that funds a channel:
// every participant signs a prefund state, deposits land on chain in
// participant-index order, and every participant signs a postfund state.
type DirectFundObjective struct {
	id             ObjId
	fixed          FixedPart
	myIndex        int
	fundingOutcome Outcome
	status         DirectFundStatus

	prefundSignatures  []*Signature
	postfundSignatures []*Signature
	depositsDetected   []bool
}

// NewDirectFundObjective constructs a fresh DirectFundObjective for the
// local participant at myIndex. It satisfies the ObjectiveFactory contract.
func NewDirectFundObjective(id ObjId, fixed FixedPart, myIndex int, fundingOutcome Outcome) (Objective, error) {
	if err := fixed.Validate(); err != nil {
		return nil, err
	}
	n := fixed.N()
	if myIndex < 0 || myIndex >= n {
		return nil, fmt.Errorf("channelforge/engine: my_index %d out of range for %d participants", myIndex, n)
	}
	return &DirectFundObjective{
		id:                 id,
		fixed:              fixed,
		myIndex:            myIndex,
		fundingOutcome:     fundingOutcome.Clone(),
		status:             DFUnapproved,
		prefundSignatures:  make([]*Signature, n),
		postfundSignatures: make([]*Signature, n),
		depositsDetected:   make([]bool, n),
	}, nil
}

func (o *DirectFundObjective) Id() ObjId           { return o.id }
func (o *DirectFundObjective) ChannelId() Hash     { return ComputeChannelId(o.fixed) }
func (o *DirectFundObjective) Type() ObjectiveType { return ObjectiveDirectFund }
func (o *DirectFundObjective) Terminal() bool {
	return o.status == DFComplete || o.status == DFRejected
}
func (o *DirectFundObjective) Status() DirectFundStatus { return o.status }

// FinalizationThreshold is "all n" for DirectFund: postfund completion
// requires every participant's signature.
func (o *DirectFundObjective) FinalizationThreshold() int { return o.fixed.N() }

func (o *DirectFundObjective) allPrefundSigned() bool {
	for _, s := range o.prefundSignatures {
		if s == nil {
			return false
		}
	}
	return true
}

func (o *DirectFundObjective) allPostfundSigned() bool {
	for _, s := range o.postfundSignatures {
		if s == nil {
			return false
		}
	}
	return true
}

func (o *DirectFundObjective) allDepositsDetected() bool {
	for _, d := range o.depositsDetected {
		if !d {
			return false
		}
	}
	return true
}

// myTurnToDeposit gates deposit submission on participant index order:
// participant k deposits only after 0..k-1 have all had their deposits
// observed on chain.
func (o *DirectFundObjective) myTurnToDeposit() bool {
	for i := 0; i < o.myIndex; i++ {
		if !o.depositsDetected[i] {
			return false
		}
	}
	return !o.depositsDetected[o.myIndex]
}

// WaitingFor is always a pure function of the objective's current fields.
func (o *DirectFundObjective) WaitingFor() WaitingFor {
	switch o.status {
	case DFRejected, DFComplete:
		return WaitingNothing
	case DFUnapproved:
		return WaitingApproval
	case DFApproved:
		if !o.allPrefundSigned() {
			return WaitingCompletePrefund
		}
		if !o.allDepositsDetected() {
			if o.myTurnToDeposit() {
				return WaitingMyTurnToFund
			}
			return WaitingCompleteFunding
		}
		if !o.allPostfundSigned() {
			return WaitingCompletePostfund
		}
		return WaitingNothing
	default:
		return WaitingNothing
	}
}

func (o *DirectFundObjective) prefundState() State {
	return State{FixedPart: o.fixed, VariablePart: VariablePart{TurnNum: 0, IsFinal: false}}
}

func (o *DirectFundObjective) postfundState() State {
	n := uint64(o.fixed.N())
	return State{FixedPart: o.fixed, VariablePart: VariablePart{Outcome: o.fundingOutcome.Clone(), TurnNum: 2*n - 1, IsFinal: false}}
}

func otherParticipants(participants []Address, exclude int) []Address {
	out := make([]Address, 0, len(participants)-1)
	for i, p := range participants {
		if i != exclude {
			out = append(out, p)
		}
	}
	return out
}

// AddressToDestination left-pads a 20-byte address into the 32-byte
// allocation destination format used by Outcome.Allocations, matching the
// convention of the channel-state ABI (an address right-aligned in a
// bytes32 slot).
func AddressToDestination(a Address) Hash {
	var h Hash
	copy(h[12:], a[:])
	return h
}

func (o *DirectFundObjective) myAllocation() (Allocation, bool) {
	want := AddressToDestination(o.fixed.Participants[o.myIndex])
	for _, alloc := range o.fundingOutcome.Allocations {
		if alloc.Destination == want {
			return alloc, true
		}
	}
	return Allocation{}, false
}

func (o *DirectFundObjective) buildDepositTx() Transaction {
	amount := new(big.Int)
	if alloc, ok := o.myAllocation(); ok && alloc.Amount != nil {
		amount.Set(alloc.Amount)
	}
	data, err := EncodeDepositCalldata(o.ChannelId(), o.fundingOutcome.Asset, amount)
	if err != nil {
		// Calldata encoding over fixed, validated argument types cannot
		// fail in practice; fall back to an empty payload rather than
		// panicking a pure state-machine call.
		data = nil
	}
	return Transaction{To: o.fixed.AppDefinition, Data: data, Value: amount.Bytes()}
}

// Crank is the objective's pure transition function. It may mutate the
// receiver in place but never performs I/O or reads the clock.
func (o *DirectFundObjective) Crank(event ObjectiveEvent, ctx CrankContext) (CrankResult, error) {
	if o.Terminal() {
		return CrankResult{WaitingFor: o.WaitingFor()}, nil
	}

	switch e := event.(type) {
	case RejectionEvent:
		o.status = DFRejected
		return CrankResult{WaitingFor: WaitingNothing}, nil
	case ApprovalGranted:
		return o.crankApproval(ctx)
	case StateReceivedEvent:
		return o.crankStateReceived(e, ctx)
	case DepositDetectedEvent:
		return o.crankDepositDetected(e, ctx)
	default:
		return CrankResult{WaitingFor: o.WaitingFor()}, nil
	}
}

func (o *DirectFundObjective) crankApproval(ctx CrankContext) (CrankResult, error) {
	if o.status != DFUnapproved {
		return CrankResult{WaitingFor: o.WaitingFor()}, nil
	}
	state := o.prefundState()
	hash := ComputeStateHash(state)
	sig, err := ctx.Sign(hash)
	if err != nil {
		return CrankResult{}, fmt.Errorf("sign prefund state: %w", err)
	}
	o.prefundSignatures[o.myIndex] = &sig
	o.status = DFApproved

	msg := Message{
		To:          otherParticipants(o.fixed.Participants, o.myIndex),
		ObjectiveId: o.id,
		ChannelId:   o.ChannelId(),
		State:       state,
		Signature:   sig,
	}
	return CrankResult{SideEffects: []SideEffect{sendMessageEffect(msg)}, WaitingFor: o.WaitingFor()}, nil
}

// droppedStateReceived pairs a rejected state_received's error with an
// emit_event side effect recording a message-dropped event, so the
// rejection lands in the audit trail without mutating objective state.
// Crank never reads the clock, so TimestampMs is left at its zero value
// for the dispatching runtime to fill in if it cares.
func (o *DirectFundObjective) droppedStateReceived(e StateReceivedEvent, cause error) CrankResult {
	dropped := MessageDropped{
		EventMeta: EventMeta{EventVersion: 1},
		PeerId:    e.From.Hex(),
		Reason:    cause.Error(),
		ErrorCode: DropSignatureInvalid,
	}
	return CrankResult{SideEffects: []SideEffect{emitEventEffect(dropped)}, WaitingFor: o.WaitingFor()}
}

func (o *DirectFundObjective) crankStateReceived(e StateReceivedEvent, ctx CrankContext) (CrankResult, error) {
	j := o.fixed.IndexOf(e.From)
	if j < 0 {
		err := newErr(ErrSignerNotParticipant, o.id.Hex(), "state_received signer %s is not a channel participant", e.From.Hex())
		return o.droppedStateReceived(e, err), err
	}
	n := uint64(o.fixed.N())
	switch e.TurnNum {
	case 0:
		return o.receiveTurnSignature(j, e, ctx, o.prefundSignatures, o.prefundState(), true)
	case 2*n - 1:
		result, err := o.receiveTurnSignature(j, e, ctx, o.postfundSignatures, o.postfundState(), false)
		if err == nil && o.allPostfundSigned() {
			o.status = DFComplete
			result.WaitingFor = o.WaitingFor()
		}
		return result, err
	default:
		return CrankResult{}, newErr(ErrInvalidTurnProgression, o.id.Hex(), "state_received turn %d is neither prefund (0) nor postfund (%d)", e.TurnNum, 2*n-1)
	}
}

// receiveTurnSignature validates and stores a received signature against one
// of the two parallel signature arrays (prefund or postfund). Redelivery of
// an identical signature is a no-op; a differing signature at an occupied
// slot is a conflict.
func (o *DirectFundObjective) receiveTurnSignature(j int, e StateReceivedEvent, ctx CrankContext, slots []*Signature, expected State, isPrefund bool) (CrankResult, error) {
	if j == o.myIndex {
		return CrankResult{WaitingFor: o.WaitingFor()}, nil
	}
	expectedHash := ComputeStateHash(expected)
	gotHash := ComputeStateHash(e.State)
	if gotHash != expectedHash {
		return CrankResult{}, newErr(ErrStateHashMismatch, o.id.Hex(), "received state hash does not match the locally computed hash of the expected state")
	}
	signer, err := ctx.RecoverSigner(gotHash, e.Signature)
	if err != nil {
		wrapped := wrapErr(ErrSignatureInvalid, o.id.Hex(), err, "recover received signature")
		return o.droppedStateReceived(e, wrapped), wrapped
	}
	if signer != e.From {
		rejErr := newErr(ErrSignatureInvalid, o.id.Hex(), "signature recovers to %s, not claimed signer %s", signer.Hex(), e.From.Hex())
		return o.droppedStateReceived(e, rejErr), rejErr
	}

	if existing := slots[j]; existing != nil {
		if *existing == e.Signature {
			return CrankResult{WaitingFor: o.WaitingFor()}, nil // idempotent duplicate
		}
		return CrankResult{}, newErr(ErrSignatureConflict, o.id.Hex(), "participant %d already has a different signature for this turn", j)
	}
	sig := e.Signature
	slots[j] = &sig

	var effects []SideEffect
	if isPrefund && o.allPrefundSigned() && o.myTurnToDeposit() {
		effects = append(effects, submitTxEffect(o.buildDepositTx()))
	}
	return CrankResult{SideEffects: effects, WaitingFor: o.WaitingFor()}, nil
}

func (o *DirectFundObjective) crankDepositDetected(e DepositDetectedEvent, ctx CrankContext) (CrankResult, error) {
	idx := o.fixed.IndexOf(e.Depositor)
	if idx < 0 {
		return CrankResult{}, newErr(ErrSignerNotParticipant, o.id.Hex(), "deposit_detected depositor %s is not a channel participant", e.Depositor.Hex())
	}
	if o.depositsDetected[idx] {
		return CrankResult{WaitingFor: o.WaitingFor()}, nil // idempotent duplicate
	}
	o.depositsDetected[idx] = true

	var effects []SideEffect
	if o.allPrefundSigned() {
		if o.myTurnToDeposit() && !o.depositsDetected[o.myIndex] {
			effects = append(effects, submitTxEffect(o.buildDepositTx()))
		}
		if o.allDepositsDetected() && o.postfundSignatures[o.myIndex] == nil {
			state := o.postfundState()
			hash := ComputeStateHash(state)
			sig, err := ctx.Sign(hash)
			if err != nil {
				return CrankResult{}, fmt.Errorf("sign postfund state: %w", err)
			}
			o.postfundSignatures[o.myIndex] = &sig
			msg := Message{
				To:          otherParticipants(o.fixed.Participants, o.myIndex),
				ObjectiveId: o.id,
				ChannelId:   o.ChannelId(),
				State:       state,
				Signature:   sig,
			}
			effects = append(effects, sendMessageEffect(msg))
		}
	}
	return CrankResult{SideEffects: effects, WaitingFor: o.WaitingFor()}, nil
}
