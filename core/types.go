// Package core implements the event-sourced state channel engine: an
// append-only event log, canonical content-addressed event identity, a
// snapshot-accelerated state reconstructor, and the DirectFund objective
// state machine ("Crank") that drives channel funding.
package core

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
)

// Address is a 20-byte Ethereum-style account identifier.
type Address [20]byte

func (a Address) Bytes() []byte { return a[:] }

func (a Address) Hex() string { return "0x" + hex.EncodeToString(a[:]) }

func (a Address) String() string { return a.Hex() }

func (a Address) IsZero() bool { return a == Address{} }

// AddressFromHex parses a 0x-prefixed or bare hex string into an Address.
func AddressFromHex(s string) (Address, error) {
	var a Address
	b, err := decodeHex(s, 20)
	if err != nil {
		return a, err
	}
	copy(a[:], b)
	return a, nil
}

// MarshalJSON renders the address as a 0x-prefixed hex string, so canonical
// encoding sees a string value rather than a JSON array of byte numbers.
func (a Address) MarshalJSON() ([]byte, error) { return json.Marshal(a.Hex()) }

// UnmarshalJSON parses a 0x-prefixed hex string into the address.
func (a *Address) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := AddressFromHex(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Hash is a 32-byte Keccak-256 digest. Bytes32 is an alias used where the
// spec speaks of opaque 32-byte values (channel ids, event ids, state
// hashes) rather than specifically hash outputs.
type Hash [32]byte

type Bytes32 = Hash

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

func (h Hash) IsZero() bool { return h == Hash{} }

// HashFromHex parses a 0x-prefixed or bare hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	b, err := decodeHex(s, 32)
	if err != nil {
		return h, err
	}
	copy(h[:], b)
	return h, nil
}

// MarshalJSON renders the hash as a 0x-prefixed hex string.
func (h Hash) MarshalJSON() ([]byte, error) { return json.Marshal(h.Hex()) }

// UnmarshalJSON parses a 0x-prefixed hex string into the hash.
func (h *Hash) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := HashFromHex(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

func decodeHex(s string, width int) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	if len(b) != width {
		return nil, fmt.Errorf("decode hex: want %d bytes, got %d", width, len(b))
	}
	return b, nil
}

// Signature is a 65-byte Ethereum-style recoverable ECDSA signature:
// r (32 bytes) || s (32 bytes) || v (1 byte).
type Signature [65]byte

func (sig Signature) Bytes() []byte { return sig[:] }

func (sig Signature) IsZero() bool { return sig == Signature{} }

// MarshalJSON renders the signature as a 0x-prefixed hex string.
func (sig Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal("0x" + hex.EncodeToString(sig[:]))
}

// UnmarshalJSON parses a 0x-prefixed hex string into the signature.
func (sig *Signature) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	raw, err := decodeHex(s, 65)
	if err != nil {
		return err
	}
	copy(sig[:], raw)
	return nil
}

// EventOffset is a monotonically increasing, dense position in the event log.
type EventOffset = uint64

// EventId is the 32-byte content hash identifying an event; see
// ComputeEventId.
type EventId = Hash

// FixedPart holds the immutable parameters of a channel.
type FixedPart struct {
	Participants      []Address `json:"participants"`
	ChannelNonce      uint64    `json:"channel_nonce"`
	AppDefinition     Address   `json:"app_definition"`
	ChallengeDuration uint32    `json:"challenge_duration"`
}

// Validate checks the structural invariants on a FixedPart independent of
// any store or context: participant count and challenge duration.
func (fp FixedPart) Validate() error {
	n := len(fp.Participants)
	if n < 2 {
		return newErr(ErrInsufficientParticipants, "", "fixed part needs at least 2 participants, got %d", n)
	}
	if n > 255 {
		return newErr(ErrTooManyParticipants, "", "fixed part allows at most 255 participants, got %d", n)
	}
	if fp.ChallengeDuration < 1 {
		return newErr(ErrInvalidChallengeDuration, "", "challenge duration must be >= 1, got %d", fp.ChallengeDuration)
	}
	return nil
}

// N returns the number of participants.
func (fp FixedPart) N() int { return len(fp.Participants) }

// IndexOf returns the participant index of addr, or -1 if addr does not
// appear in the channel's participant list.
func (fp FixedPart) IndexOf(addr Address) int {
	for i, p := range fp.Participants {
		if p == addr {
			return i
		}
	}
	return -1
}

// AllocationType distinguishes a simple payout from a guarantee allocation.
type AllocationType uint8

const (
	AllocationSimple AllocationType = iota
	AllocationGuarantee
)

// Allocation is a single line item of an Outcome.
type Allocation struct {
	Destination Hash           `json:"destination"`
	Amount      *big.Int       `json:"amount"`
	Type        AllocationType `json:"type"`
	Metadata    []byte         `json:"metadata,omitempty"`
}

// Outcome is the asset plus ordered allocation list describing who is paid
// if a channel finalizes.
type Outcome struct {
	Asset       Address      `json:"asset"`
	Allocations []Allocation `json:"allocations"`
}

// Clone returns a deep copy of the Outcome so callers may freely mutate the
// original without aliasing allocation amounts or metadata.
func (o Outcome) Clone() Outcome {
	out := Outcome{Asset: o.Asset, Allocations: make([]Allocation, len(o.Allocations))}
	for i, a := range o.Allocations {
		amt := new(big.Int)
		if a.Amount != nil {
			amt.Set(a.Amount)
		}
		meta := append([]byte(nil), a.Metadata...)
		out.Allocations[i] = Allocation{Destination: a.Destination, Amount: amt, Type: a.Type, Metadata: meta}
	}
	return out
}

// VariablePart is the mutable portion of a channel state.
type VariablePart struct {
	AppData []byte  `json:"app_data,omitempty"`
	Outcome Outcome `json:"outcome"`
	TurnNum uint64  `json:"turn_num"`
	IsFinal bool    `json:"is_final"`
}

// State is a full channel state: FixedPart union VariablePart.
type State struct {
	FixedPart
	VariablePart
}

// Clone returns a deep copy safe to mutate independently of the receiver.
func (s State) Clone() State {
	out := s
	out.Participants = append([]Address(nil), s.Participants...)
	out.AppData = append([]byte(nil), s.AppData...)
	out.Outcome = s.Outcome.Clone()
	return out
}
