package core

// EventKind is the kebab-case discriminator for one of the twenty event
// variants. It doubles as the "name" component of ComputeEventId.
type EventKind string

const (
	KindObjectiveCreated   EventKind = "objective-created"
	KindObjectiveApproved  EventKind = "objective-approved"
	KindObjectiveRejected  EventKind = "objective-rejected"
	KindObjectiveCranked   EventKind = "objective-cranked"
	KindObjectiveCompleted EventKind = "objective-completed"

	KindChannelCreated        EventKind = "channel-created"
	KindStateSigned           EventKind = "state-signed"
	KindStateReceived         EventKind = "state-received"
	KindStateSupportedUpdated EventKind = "state-supported-updated"
	KindChannelFinalized      EventKind = "channel-finalized"

	KindDepositDetected     EventKind = "deposit-detected"
	KindAllocationUpdated   EventKind = "allocation-updated"
	KindChallengeRegistered EventKind = "challenge-registered"
	KindChallengeCleared    EventKind = "challenge-cleared"
	KindChannelConcluded    EventKind = "channel-concluded"
	KindWithdrawCompleted   EventKind = "withdraw-completed"

	KindMessageSent     EventKind = "message-sent"
	KindMessageReceived EventKind = "message-received"
	KindMessageAcked    EventKind = "message-acked"
	KindMessageDropped  EventKind = "message-dropped"
)

// ObjectiveType enumerates the pluggable objective variants. Only
// DirectFund has a Crank implementation in this module; the others are
// registered by embedding applications.
type ObjectiveType string

const (
	ObjectiveDirectFund    ObjectiveType = "DirectFund"
	ObjectiveDirectDefund  ObjectiveType = "DirectDefund"
	ObjectiveVirtualFund   ObjectiveType = "VirtualFund"
	ObjectiveVirtualDefund ObjectiveType = "VirtualDefund"
)

// MessageDropReason enumerates why an inbound message was dropped rather
// than accepted.
type MessageDropReason string

const (
	DropDecodeFailed     MessageDropReason = "decode_failed"
	DropSignatureInvalid MessageDropReason = "signature_invalid"
	DropChannelUnknown   MessageDropReason = "channel_unknown"
	DropPayloadInvalid   MessageDropReason = "payload_invalid"
	DropReplayAttack     MessageDropReason = "replay_attack"
)

// EventMeta carries the two fields common to every event variant.
type EventMeta struct {
	EventVersion uint8  `json:"event_version"`
	TimestampMs  uint64 `json:"timestamp_ms"`
}

func (m EventMeta) Meta() EventMeta { return m }

// ValidationContext is the read-only view Validate predicates query to
// check preconditions (objective/channel existence and state) without
// introducing a dependency cycle back into the store. NewValidationContext
// builds the cached, Reconstructor-backed implementation.
type ValidationContext interface {
	Objective(id ObjId) (ObjectiveState, bool)
	Channel(id Hash) (ChannelState, bool)
	// MessageSent reports whether a message-sent event with the given
	// message id has already been recorded.
	MessageSent(id Hash) bool
	// Invalidate drops any cached lookup for id so the next Objective/Channel
	// call reflects an event just appended under that id.
	Invalidate(id Hash)
}

// Event is the common interface implemented by all twenty event variants.
// Validate is advisory: the store does not call it, the emitting component
// must.
type Event interface {
	Kind() EventKind
	Meta() EventMeta
	Validate(ctx ValidationContext) error
	// ObjectiveRef returns the objective this event references, if any.
	ObjectiveRef() (ObjId, bool)
	// ChannelRef returns the channel this event references, if any.
	ChannelRef() (Hash, bool)
}

// Id computes this event's content-addressed identifier.
func Id(e Event) (Hash, error) {
	return ComputeEventId(e.Kind(), e)
}

func noObjectiveRef() (ObjId, bool) { return ObjId{}, false }
func noChannelRef() (Hash, bool)    { return Hash{}, false }

// ---------------------------------------------------------------------
// Objective lifecycle (×5)
// ---------------------------------------------------------------------

type ObjectiveCreated struct {
	EventMeta
	ObjectiveId   ObjId         `json:"objective_id"`
	ObjectiveType ObjectiveType `json:"objective_type"`
	ChannelId     Hash          `json:"channel_id"`
	Participants  []Address     `json:"participants"`
}

func (e ObjectiveCreated) Kind() EventKind             { return KindObjectiveCreated }
func (e ObjectiveCreated) ObjectiveRef() (ObjId, bool) { return e.ObjectiveId, true }
func (e ObjectiveCreated) ChannelRef() (Hash, bool)    { return e.ChannelId, true }

func (e ObjectiveCreated) Validate(ctx ValidationContext) error {
	n := len(e.Participants)
	if n < 2 {
		return newErr(ErrInsufficientParticipants, e.ObjectiveId.Hex(), "objective-created needs >= 2 participants, got %d", n)
	}
	if n > 255 {
		return newErr(ErrTooManyParticipants, e.ObjectiveId.Hex(), "objective-created allows <= 255 participants, got %d", n)
	}
	return nil
}

type ObjectiveApproved struct {
	EventMeta
	ObjectiveId ObjId    `json:"objective_id"`
	Approver    *Address `json:"approver,omitempty"`
}

func (e ObjectiveApproved) Kind() EventKind             { return KindObjectiveApproved }
func (e ObjectiveApproved) ObjectiveRef() (ObjId, bool) { return e.ObjectiveId, true }
func (e ObjectiveApproved) ChannelRef() (Hash, bool)    { return noChannelRef() }

func (e ObjectiveApproved) Validate(ctx ValidationContext) error {
	st, ok := ctx.Objective(e.ObjectiveId)
	if !ok {
		return newErr(ErrObjectiveNotFound, e.ObjectiveId.Hex(), "objective-approved references unknown objective")
	}
	if st.Status.Terminal() {
		return newErr(ErrInvalidFirstEvent, e.ObjectiveId.Hex(), "objective-approved on terminal objective (status=%s)", st.Status)
	}
	return nil
}

type ObjectiveRejected struct {
	EventMeta
	ObjectiveId ObjId   `json:"objective_id"`
	Reason      string  `json:"reason"`
	ErrorCode   *string `json:"error_code,omitempty"`
}

func (e ObjectiveRejected) Kind() EventKind             { return KindObjectiveRejected }
func (e ObjectiveRejected) ObjectiveRef() (ObjId, bool) { return e.ObjectiveId, true }
func (e ObjectiveRejected) ChannelRef() (Hash, bool)    { return noChannelRef() }

func (e ObjectiveRejected) Validate(ctx ValidationContext) error {
	if _, ok := ctx.Objective(e.ObjectiveId); !ok {
		return newErr(ErrObjectiveNotFound, e.ObjectiveId.Hex(), "objective-rejected references unknown objective")
	}
	return nil
}

type ObjectiveCranked struct {
	EventMeta
	ObjectiveId      ObjId  `json:"objective_id"`
	SideEffectsCount int    `json:"side_effects_count"`
	Waiting          string `json:"waiting"`
}

func (e ObjectiveCranked) Kind() EventKind             { return KindObjectiveCranked }
func (e ObjectiveCranked) ObjectiveRef() (ObjId, bool) { return e.ObjectiveId, true }
func (e ObjectiveCranked) ChannelRef() (Hash, bool)    { return noChannelRef() }

func (e ObjectiveCranked) Validate(ctx ValidationContext) error {
	st, ok := ctx.Objective(e.ObjectiveId)
	if !ok {
		return newErr(ErrObjectiveNotFound, e.ObjectiveId.Hex(), "objective-cranked references unknown objective")
	}
	if st.Status.Terminal() {
		return newErr(ErrInvalidFirstEvent, e.ObjectiveId.Hex(), "objective-cranked on terminal objective (status=%s)", st.Status)
	}
	return nil
}

type ObjectiveCompleted struct {
	EventMeta
	ObjectiveId       ObjId `json:"objective_id"`
	Success           bool  `json:"success"`
	FinalChannelState *Hash `json:"final_channel_state,omitempty"`
}

func (e ObjectiveCompleted) Kind() EventKind             { return KindObjectiveCompleted }
func (e ObjectiveCompleted) ObjectiveRef() (ObjId, bool) { return e.ObjectiveId, true }
func (e ObjectiveCompleted) ChannelRef() (Hash, bool)    { return noChannelRef() }

func (e ObjectiveCompleted) Validate(ctx ValidationContext) error {
	if _, ok := ctx.Objective(e.ObjectiveId); !ok {
		return newErr(ErrObjectiveNotFound, e.ObjectiveId.Hex(), "objective-completed references unknown objective")
	}
	return nil
}

// ---------------------------------------------------------------------
// Channel state (×5)
// ---------------------------------------------------------------------

type ChannelCreated struct {
	EventMeta
	ChannelId         Hash      `json:"channel_id"`
	Participants      []Address `json:"participants"`
	ChannelNonce      uint64    `json:"channel_nonce"`
	AppDefinition     Address   `json:"app_definition"`
	ChallengeDuration uint32    `json:"challenge_duration"`
}

func (e ChannelCreated) Kind() EventKind             { return KindChannelCreated }
func (e ChannelCreated) ObjectiveRef() (ObjId, bool) { return noObjectiveRef() }
func (e ChannelCreated) ChannelRef() (Hash, bool)    { return e.ChannelId, true }

func (e ChannelCreated) FixedPart() FixedPart {
	return FixedPart{
		Participants:      e.Participants,
		ChannelNonce:      e.ChannelNonce,
		AppDefinition:     e.AppDefinition,
		ChallengeDuration: e.ChallengeDuration,
	}
}

func (e ChannelCreated) Validate(ctx ValidationContext) error {
	fp := e.FixedPart()
	if err := fp.Validate(); err != nil {
		return err
	}
	if got := ComputeChannelId(fp); got != e.ChannelId {
		return newErr(ErrChannelIdMismatch, e.ChannelId.Hex(), "channel-created id %s does not match derived id %s", e.ChannelId.Hex(), got.Hex())
	}
	return nil
}

type StateSigned struct {
	EventMeta
	ChannelId   Hash      `json:"channel_id"`
	TurnNum     uint64    `json:"turn_num"`
	StateHash   Hash      `json:"state_hash"`
	Signer      Address   `json:"signer"`
	Signature   Signature `json:"signature"`
	IsFinal     bool      `json:"is_final"`
	AppDataHash *Hash     `json:"app_data_hash,omitempty"`
}

func (e StateSigned) Kind() EventKind             { return KindStateSigned }
func (e StateSigned) ObjectiveRef() (ObjId, bool) { return noObjectiveRef() }
func (e StateSigned) ChannelRef() (Hash, bool)    { return e.ChannelId, true }

func (e StateSigned) Validate(ctx ValidationContext) error {
	ch, ok := ctx.Channel(e.ChannelId)
	if !ok {
		return newErr(ErrChannelNotFound, e.ChannelId.Hex(), "state-signed references unknown channel")
	}
	if e.Signature.IsZero() {
		return newErr(ErrNoSignatures, e.ChannelId.Hex(), "state-signed has no signature")
	}
	recovered, err := RecoverSigner(e.StateHash, e.Signature)
	if err != nil {
		return wrapErr(ErrSignatureInvalid, e.ChannelId.Hex(), err, "state-signed signature does not recover")
	}
	if recovered != e.Signer {
		return newErr(ErrSignatureInvalid, e.ChannelId.Hex(), "state-signed signature recovers to %s, not claimed signer %s", recovered.Hex(), e.Signer.Hex())
	}
	// Turn numbers are strictly monotonic per signer, not sequential and
	// not global: two participants may both sign turn 0, but no participant
	// may sign a turn at or below one it already signed.
	if prev, ok := ch.SignerTurns[e.Signer.Hex()]; ok && e.TurnNum <= prev {
		return newErr(ErrInvalidTurnProgression, e.ChannelId.Hex(), "state-signed turn %d does not exceed signer %s's latest signed turn %d", e.TurnNum, e.Signer.Hex(), prev)
	}
	return nil
}

type StateReceived struct {
	EventMeta
	ChannelId Hash      `json:"channel_id"`
	TurnNum   uint64    `json:"turn_num"`
	StateHash Hash      `json:"state_hash"`
	Signer    Address   `json:"signer"`
	Signature Signature `json:"signature"`
	IsFinal   bool      `json:"is_final"`
	PeerId    *string   `json:"peer_id,omitempty"`
}

func (e StateReceived) Kind() EventKind             { return KindStateReceived }
func (e StateReceived) ObjectiveRef() (ObjId, bool) { return noObjectiveRef() }
func (e StateReceived) ChannelRef() (Hash, bool)    { return e.ChannelId, true }

func (e StateReceived) Validate(ctx ValidationContext) error {
	if _, ok := ctx.Channel(e.ChannelId); !ok {
		return newErr(ErrChannelNotFound, e.ChannelId.Hex(), "state-received references unknown channel")
	}
	if e.Signature.IsZero() {
		return newErr(ErrNoSignatures, e.ChannelId.Hex(), "state-received has no signature")
	}
	recovered, err := RecoverSigner(e.StateHash, e.Signature)
	if err != nil {
		return wrapErr(ErrSignatureInvalid, e.ChannelId.Hex(), err, "state-received signature does not recover")
	}
	if recovered != e.Signer {
		return newErr(ErrSignatureInvalid, e.ChannelId.Hex(), "state-received signature recovers to %s, not claimed signer %s", recovered.Hex(), e.Signer.Hex())
	}
	return nil
}

type StateSupportedUpdated struct {
	EventMeta
	ChannelId         Hash   `json:"channel_id"`
	SupportedTurn     uint64 `json:"supported_turn"`
	StateHash         Hash   `json:"state_hash"`
	NumSignatures     int    `json:"num_signatures"`
	PrevSupportedTurn uint64 `json:"prev_supported_turn"`
}

func (e StateSupportedUpdated) Kind() EventKind             { return KindStateSupportedUpdated }
func (e StateSupportedUpdated) ObjectiveRef() (ObjId, bool) { return noObjectiveRef() }
func (e StateSupportedUpdated) ChannelRef() (Hash, bool)    { return e.ChannelId, true }

func (e StateSupportedUpdated) Validate(ctx ValidationContext) error {
	if _, ok := ctx.Channel(e.ChannelId); !ok {
		return newErr(ErrChannelNotFound, e.ChannelId.Hex(), "state-supported-updated references unknown channel")
	}
	if e.NumSignatures < 1 {
		return newErr(ErrNoSignatures, e.ChannelId.Hex(), "state-supported-updated requires >= 1 signature, got %d", e.NumSignatures)
	}
	if e.SupportedTurn <= e.PrevSupportedTurn {
		return newErr(ErrInvalidTurnProgression, e.ChannelId.Hex(), "state-supported-updated supported_turn %d must exceed prev_supported_turn %d", e.SupportedTurn, e.PrevSupportedTurn)
	}
	return nil
}

type ChannelFinalized struct {
	EventMeta
	ChannelId      Hash   `json:"channel_id"`
	FinalTurn      uint64 `json:"final_turn"`
	FinalStateHash Hash   `json:"final_state_hash"`
}

func (e ChannelFinalized) Kind() EventKind             { return KindChannelFinalized }
func (e ChannelFinalized) ObjectiveRef() (ObjId, bool) { return noObjectiveRef() }
func (e ChannelFinalized) ChannelRef() (Hash, bool)    { return e.ChannelId, true }

func (e ChannelFinalized) Validate(ctx ValidationContext) error {
	if _, ok := ctx.Channel(e.ChannelId); !ok {
		return newErr(ErrChannelNotFound, e.ChannelId.Hex(), "channel-finalized references unknown channel")
	}
	return nil
}

// ---------------------------------------------------------------------
// Chain bridge (×6)
// ---------------------------------------------------------------------

type ChainRef struct {
	ChannelId Hash   `json:"channel_id"`
	BlockNum  uint64 `json:"block_num"`
	TxIndex   uint32 `json:"tx_index"`
	TxHash    *Hash  `json:"tx_hash,omitempty"`
}

func (c ChainRef) validateChannel(ctx ValidationContext) error {
	if _, ok := ctx.Channel(c.ChannelId); !ok {
		return newErr(ErrChannelNotFound, c.ChannelId.Hex(), "chain-bridge event references unknown channel")
	}
	return nil
}

type DepositDetected struct {
	EventMeta
	ChainRef
	Asset           Address `json:"asset"`
	AmountDeposited string  `json:"amount_deposited"`
	NowHeld         string  `json:"now_held"`
}

func (e DepositDetected) Kind() EventKind                      { return KindDepositDetected }
func (e DepositDetected) ObjectiveRef() (ObjId, bool)          { return noObjectiveRef() }
func (e DepositDetected) ChannelRef() (Hash, bool)             { return e.ChannelId, true }
func (e DepositDetected) Validate(ctx ValidationContext) error { return e.validateChannel(ctx) }

type AllocationUpdated struct {
	EventMeta
	ChainRef
	Asset     Address `json:"asset"`
	NewAmount string  `json:"new_amount"`
}

func (e AllocationUpdated) Kind() EventKind                      { return KindAllocationUpdated }
func (e AllocationUpdated) ObjectiveRef() (ObjId, bool)          { return noObjectiveRef() }
func (e AllocationUpdated) ChannelRef() (Hash, bool)             { return e.ChannelId, true }
func (e AllocationUpdated) Validate(ctx ValidationContext) error { return e.validateChannel(ctx) }

type ChallengeRegistered struct {
	EventMeta
	ChainRef
	TurnNumRecord      uint64  `json:"turn_num_record"`
	FinalizationTime   uint64  `json:"finalization_time"`
	Challenger         Address `json:"challenger"`
	IsFinal            bool    `json:"is_final"`
	CandidateStateHash *Hash   `json:"candidate_state_hash,omitempty"`
}

func (e ChallengeRegistered) Kind() EventKind                      { return KindChallengeRegistered }
func (e ChallengeRegistered) ObjectiveRef() (ObjId, bool)          { return noObjectiveRef() }
func (e ChallengeRegistered) ChannelRef() (Hash, bool)             { return e.ChannelId, true }
func (e ChallengeRegistered) Validate(ctx ValidationContext) error { return e.validateChannel(ctx) }

type ChallengeCleared struct {
	EventMeta
	ChainRef
	NewTurnNumRecord uint64 `json:"new_turn_num_record"`
}

func (e ChallengeCleared) Kind() EventKind             { return KindChallengeCleared }
func (e ChallengeCleared) ObjectiveRef() (ObjId, bool) { return noObjectiveRef() }
func (e ChallengeCleared) ChannelRef() (Hash, bool)    { return e.ChannelId, true }

func (e ChallengeCleared) Validate(ctx ValidationContext) error {
	ch, ok := ctx.Channel(e.ChannelId)
	if !ok {
		return newErr(ErrChannelNotFound, e.ChannelId.Hex(), "challenge-cleared references unknown channel")
	}
	if ch.ChallengeTurnRecord != nil && e.NewTurnNumRecord <= *ch.ChallengeTurnRecord {
		return newErr(ErrInvalidTurnProgression, e.ChannelId.Hex(), "challenge-cleared new_turn_num_record %d does not exceed the registered challenge's turn record %d", e.NewTurnNumRecord, *ch.ChallengeTurnRecord)
	}
	return nil
}

type ChannelConcluded struct {
	EventMeta
	ChainRef
	FinalizedAtTurn *uint64 `json:"finalized_at_turn,omitempty"`
}

func (e ChannelConcluded) Kind() EventKind                      { return KindChannelConcluded }
func (e ChannelConcluded) ObjectiveRef() (ObjId, bool)          { return noObjectiveRef() }
func (e ChannelConcluded) ChannelRef() (Hash, bool)             { return e.ChannelId, true }
func (e ChannelConcluded) Validate(ctx ValidationContext) error { return e.validateChannel(ctx) }

type WithdrawCompleted struct {
	EventMeta
	ChainRef
	Recipient Address `json:"recipient"`
	Asset     Address `json:"asset"`
	Amount    string  `json:"amount"`
}

func (e WithdrawCompleted) Kind() EventKind                      { return KindWithdrawCompleted }
func (e WithdrawCompleted) ObjectiveRef() (ObjId, bool)          { return noObjectiveRef() }
func (e WithdrawCompleted) ChannelRef() (Hash, bool)             { return e.ChannelId, true }
func (e WithdrawCompleted) Validate(ctx ValidationContext) error { return e.validateChannel(ctx) }

// ---------------------------------------------------------------------
// Messaging (×4)
// ---------------------------------------------------------------------

type MessageSent struct {
	EventMeta
	MessageId        Hash    `json:"message_id"`
	PeerId           string  `json:"peer_id"`
	ObjectiveId      ObjId   `json:"objective_id"`
	PayloadType      *string `json:"payload_type,omitempty"`
	PayloadSizeBytes int     `json:"payload_size_bytes"`
}

func (e MessageSent) Kind() EventKind                      { return KindMessageSent }
func (e MessageSent) ObjectiveRef() (ObjId, bool)          { return e.ObjectiveId, true }
func (e MessageSent) ChannelRef() (Hash, bool)             { return noChannelRef() }
func (e MessageSent) Validate(ctx ValidationContext) error { return nil }

type MessageReceived struct {
	EventMeta
	MessageId        Hash    `json:"message_id"`
	PeerId           string  `json:"peer_id"`
	ObjectiveId      ObjId   `json:"objective_id"`
	PayloadType      *string `json:"payload_type,omitempty"`
	PayloadSizeBytes int     `json:"payload_size_bytes"`
}

func (e MessageReceived) Kind() EventKind                      { return KindMessageReceived }
func (e MessageReceived) ObjectiveRef() (ObjId, bool)          { return e.ObjectiveId, true }
func (e MessageReceived) ChannelRef() (Hash, bool)             { return noChannelRef() }
func (e MessageReceived) Validate(ctx ValidationContext) error { return nil }

type MessageAcked struct {
	EventMeta
	MessageId   Hash   `json:"message_id"`
	PeerId      string `json:"peer_id"`
	RoundtripMs uint64 `json:"roundtrip_ms"`
}

func (e MessageAcked) Kind() EventKind             { return KindMessageAcked }
func (e MessageAcked) ObjectiveRef() (ObjId, bool) { return noObjectiveRef() }
func (e MessageAcked) ChannelRef() (Hash, bool)    { return noChannelRef() }

func (e MessageAcked) Validate(ctx ValidationContext) error {
	if !ctx.MessageSent(e.MessageId) {
		return newErr(ErrNotFound, e.MessageId.Hex(), "message-acked references message %s with no prior message-sent", e.MessageId.Hex())
	}
	return nil
}

type MessageDropped struct {
	EventMeta
	MessageId        *Hash             `json:"message_id,omitempty"`
	PeerId           string            `json:"peer_id"`
	Reason           string            `json:"reason"`
	ErrorCode        MessageDropReason `json:"error_code"`
	PayloadSizeBytes int               `json:"payload_size_bytes"`
}

func (e MessageDropped) Kind() EventKind                      { return KindMessageDropped }
func (e MessageDropped) ObjectiveRef() (ObjId, bool)          { return noObjectiveRef() }
func (e MessageDropped) ChannelRef() (Hash, bool)             { return noChannelRef() }
func (e MessageDropped) Validate(ctx ValidationContext) error { return nil }
