package core

// FinalizationManager coordinates the event store, the reconstructor and the
// objective registry so callers can drive an objective to completion through
// a single interface, rather than re-deriving the glue between Crank, the
// store and snapshotting at every call site.
type FinalizationManager struct {
	store       *EventStore
	reconstruct *Reconstructor
	registry    *Registry
	valCtx      ValidationContext
	objectives  map[ObjId]Objective
	channelOf   map[ObjId]Hash
}

// NewFinalizationManager constructs a manager over an already-built store,
// reconstructor and objective registry. validationCacheSize bounds the
// manager's internal ValidationContext (core/validation_context.go); pass 0
// to validate every event against a freshly-folded read each time.
func NewFinalizationManager(store *EventStore, reconstruct *Reconstructor, registry *Registry, validationCacheSize int) *FinalizationManager {
	return &FinalizationManager{
		store:       store,
		reconstruct: reconstruct,
		registry:    registry,
		valCtx:      NewValidationContext(reconstruct, validationCacheSize),
		objectives:  make(map[ObjId]Objective),
		channelOf:   make(map[ObjId]Hash),
	}
}

// appendValidated validates ev against the manager's ValidationContext
// before appending it; the emitting component, not the store, is
// responsible for calling Validate. On a successful append, any cached
// lookup for ev's channel/objective is invalidated so the next Validate
// sees the freshly appended event.
func (m *FinalizationManager) appendValidated(ev Event) error {
	if err := ev.Validate(m.valCtx); err != nil {
		return err
	}
	if _, err := m.store.Append(ev); err != nil {
		return err
	}
	if objId, ok := ev.ObjectiveRef(); ok {
		m.valCtx.Invalidate(objId)
	}
	if chId, ok := ev.ChannelRef(); ok {
		m.valCtx.Invalidate(chId)
	}
	return nil
}

// DispatchSideEffects executes every emit_event SideEffect in effects by
// validating and appending its Event to store, in declared order. This lets
// a Crank decision record domain events back into the event store together
// with the decision itself; send_message and submit_tx side effects are
// left for the surrounding runtime and are not dispatched here.
func DispatchSideEffects(store *EventStore, valCtx ValidationContext, effects []SideEffect) error {
	for _, se := range effects {
		if se.Kind != SideEffectEmitEvent || se.Event == nil {
			continue
		}
		if err := se.Event.Validate(valCtx); err != nil {
			return err
		}
		if _, err := store.Append(se.Event); err != nil {
			return err
		}
		if objId, ok := se.Event.ObjectiveRef(); ok {
			valCtx.Invalidate(objId)
		}
		if chId, ok := se.Event.ChannelRef(); ok {
			valCtx.Invalidate(chId)
		}
	}
	return nil
}

// StartObjective appends an objective-created event, constructs the
// registered Objective implementation for objType, and tracks it for
// subsequent Crank calls.
func (m *FinalizationManager) StartObjective(id ObjId, objType ObjectiveType, fixed FixedPart, myIndex int, fundingOutcome Outcome, nowMs uint64) (Objective, error) {
	obj, err := m.registry.Create(objType, id, fixed, myIndex, fundingOutcome)
	if err != nil {
		return nil, err
	}
	channelId := obj.ChannelId()
	ev := ObjectiveCreated{
		EventMeta:     EventMeta{EventVersion: 1, TimestampMs: nowMs},
		ObjectiveId:   id,
		ObjectiveType: objType,
		ChannelId:     channelId,
		Participants:  fixed.Participants,
	}
	if err := m.appendValidated(ev); err != nil {
		return nil, err
	}
	m.objectives[id] = obj
	m.channelOf[id] = channelId
	return obj, nil
}

// Crank drives the tracked objective for id through one Crank call and
// records the decision as events: an ApprovalGranted input appends
// ObjectiveApproved before the ObjectiveCranked describing the step, a
// RejectionEvent appends the terminal ObjectiveRejected in place of it, and
// an objective that completes appends ObjectiveCompleted after it. Any
// emit_event side effects the objective returns are dispatched to the store
// before the bookkeeping events, so a rejection recorded via emit_event
// (e.g. a message-dropped event) lands in the log together with the
// decision, even when Crank itself returned an error.
func (m *FinalizationManager) Crank(id ObjId, event ObjectiveEvent, ctx CrankContext, nowMs uint64) (CrankResult, error) {
	obj, ok := m.objectives[id]
	if !ok {
		return CrankResult{}, newErr(ErrObjectiveNotFound, id.Hex(), "no tracked objective %s", id.Hex())
	}
	if obj.Terminal() {
		// A completed or rejected objective absorbs further inputs; there
		// is no decision worth recording.
		return CrankResult{WaitingFor: obj.WaitingFor()}, nil
	}
	result, crankErr := obj.Crank(event, ctx)
	if err := DispatchSideEffects(m.store, m.valCtx, result.SideEffects); err != nil {
		return CrankResult{}, err
	}
	if crankErr != nil {
		return result, crankErr
	}
	switch e := event.(type) {
	case ApprovalGranted:
		// Approval only counts once; a redelivered approval on an
		// already-approved objective stays a crank-level no-op.
		if st, ok := m.valCtx.Objective(id); ok && st.Status == ObjectiveCreatedStatus {
			approvedEv := ObjectiveApproved{
				EventMeta:   EventMeta{EventVersion: 1, TimestampMs: nowMs},
				ObjectiveId: id,
			}
			if err := m.appendValidated(approvedEv); err != nil {
				return CrankResult{}, err
			}
		}
	case RejectionEvent:
		rejectedEv := ObjectiveRejected{
			EventMeta:   EventMeta{EventVersion: 1, TimestampMs: nowMs},
			ObjectiveId: id,
			Reason:      e.Reason,
		}
		if err := m.appendValidated(rejectedEv); err != nil {
			return CrankResult{}, err
		}
		// ObjectiveRejected is the terminal record; neither a cranked nor
		// a completed event may follow it.
		if err := m.reconstruct.SnapshotObjectiveIfDue(id); err != nil {
			return CrankResult{}, err
		}
		return result, nil
	}
	crankedEv := ObjectiveCranked{
		EventMeta:        EventMeta{EventVersion: 1, TimestampMs: nowMs},
		ObjectiveId:      id,
		SideEffectsCount: len(result.SideEffects),
		Waiting:          string(result.WaitingFor),
	}
	if err := m.appendValidated(crankedEv); err != nil {
		return CrankResult{}, err
	}
	if obj.Terminal() {
		completedEv := ObjectiveCompleted{
			EventMeta:   EventMeta{EventVersion: 1, TimestampMs: nowMs},
			ObjectiveId: id,
			Success:     result.WaitingFor == WaitingNothing,
		}
		if err := m.appendValidated(completedEv); err != nil {
			return CrankResult{}, err
		}
	}
	if err := m.reconstruct.SnapshotObjectiveIfDue(id); err != nil {
		return CrankResult{}, err
	}
	return result, nil
}

// FinalizeChannel appends a channel-finalized event once the supporting
// channel's reconstructed state shows turn finalTurn is the latest
// supported turn. It is the terminal transition of a channel's lifecycle,
// independent of whichever objective funded it.
func (m *FinalizationManager) FinalizeChannel(id Hash, finalTurn uint64, finalStateHash Hash, nowMs uint64) error {
	state, err := m.reconstruct.ReconstructChannel(id)
	if err != nil {
		return err
	}
	if state.Status == ChannelFinalizedStatus {
		return nil // idempotent: already finalized
	}
	if state.LatestSupportedTurn != finalTurn {
		return newErr(ErrInvalidTurnProgression, id.Hex(), "channel %s latest supported turn %d does not match requested final turn %d", id.Hex(), state.LatestSupportedTurn, finalTurn)
	}
	ev := ChannelFinalized{
		EventMeta:      EventMeta{EventVersion: 1, TimestampMs: nowMs},
		ChannelId:      id,
		FinalTurn:      finalTurn,
		FinalStateHash: finalStateHash,
	}
	if err := m.appendValidated(ev); err != nil {
		return err
	}
	return m.reconstruct.SnapshotChannelIfDue(id)
}

// Objective returns the tracked Objective for id, if any.
func (m *FinalizationManager) Objective(id ObjId) (Objective, bool) {
	obj, ok := m.objectives[id]
	return obj, ok
}
