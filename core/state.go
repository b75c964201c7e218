package core

// ObjectiveStatus is the status field folded from objective lifecycle events.
type ObjectiveStatus string

const (
	ObjectiveCreatedStatus   ObjectiveStatus = "Created"
	ObjectiveApprovedStatus  ObjectiveStatus = "Approved"
	ObjectiveRejectedStatus  ObjectiveStatus = "Rejected"
	ObjectiveCrankedStatus   ObjectiveStatus = "Cranked"
	ObjectiveCompletedStatus ObjectiveStatus = "Completed"
)

// Terminal reports whether status admits no further transitions.
func (s ObjectiveStatus) Terminal() bool {
	return s == ObjectiveRejectedStatus || s == ObjectiveCompletedStatus
}

// ObjectiveState is the reconstructed view of an objective's lifecycle,
// folded from objective-created/-approved/-rejected/-cranked/-completed
// events.
type ObjectiveState struct {
	ObjectiveId ObjId
	Status      ObjectiveStatus
	EventCount  uint64
	CreatedAt   uint64
	CompletedAt *uint64
}

// ObjId is the 32-byte identifier type for objectives.
type ObjId = Bytes32

// ChannelStatus is the status field folded from channel lifecycle events.
type ChannelStatus string

const (
	ChannelCreatedStatus   ChannelStatus = "Created"
	ChannelOpenStatus      ChannelStatus = "Open"
	ChannelFinalizedStatus ChannelStatus = "Finalized"
)

// ChannelState is the reconstructed view of a channel, folded from
// channel-created/state-signed/state-received/state-supported-updated/
// channel-finalized events. SignerTurns holds the highest turn each
// participant has signed (keyed by hex address), which is what lets the
// state-signed validator enforce strict per-signer turn monotonicity:
// two different participants may both sign turn 0, but no participant may
// sign the same turn twice. ChallengeTurnRecord holds the highest
// turn_num_record among the channel's challenge-registered events, so a
// later challenge-cleared can be checked against it.
type ChannelState struct {
	ChannelId           Hash
	Status              ChannelStatus
	LatestTurnNum       uint64
	LatestSupportedTurn uint64
	EventCount          uint64
	CreatedAt           uint64
	FinalizedAt         *uint64
	SignerTurns         map[string]uint64
	ChallengeTurnRecord *uint64
}
