package core

import (
	"encoding/binary"
	"math/big"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
)

// packAddress returns the 20 raw bytes of addr — Ethereum's encodePacked
// representation of an `address`.
func packAddress(addr Address) []byte {
	return append([]byte(nil), addr[:]...)
}

// packUint64 returns the big-endian, right-aligned 8-byte encoding of v.
func packUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// packUint32 returns the big-endian, right-aligned 4-byte encoding of v.
func packUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// packAddresses concatenates the packed encoding of each address in order —
// encodePacked's treatment of a dynamic array as concatenated fixed-width
// elements.
func packAddresses(addrs []Address) []byte {
	out := make([]byte, 0, len(addrs)*20)
	for _, a := range addrs {
		out = append(out, packAddress(a)...)
	}
	return out
}

// packUint256 right-aligns a big.Int magnitude into 32 bytes. Callers only
// pass validated on-chain amounts, never negative and never wider than 256
// bits.
func packUint256(v *big.Int) []byte {
	b := make([]byte, 32)
	if v == nil {
		return b
	}
	vb := v.Bytes()
	copy(b[32-len(vb):], vb)
	return b
}

// ComputeChannelId derives the ChannelId from a FixedPart:
//
//	channel_id = Keccak256( encodePacked(participants) ||
//	                        encodePacked(channel_nonce, app_definition, challenge_duration) )
func ComputeChannelId(fp FixedPart) Hash {
	left := packAddresses(fp.Participants)
	right := make([]byte, 0, 8+20+4)
	right = append(right, packUint64(fp.ChannelNonce)...)
	right = append(right, packAddress(fp.AppDefinition)...)
	right = append(right, packUint32(fp.ChallengeDuration)...)
	return Keccak256(left, right)
}

// ComputeStateHash derives the Keccak-256 state hash over the packed ABI
// encoding of every field of a full State, in FixedPart-then-VariablePart
// declaration order.
func ComputeStateHash(s State) Hash {
	var buf []byte
	buf = append(buf, packAddresses(s.Participants)...)
	buf = append(buf, packUint64(s.ChannelNonce)...)
	buf = append(buf, packAddress(s.AppDefinition)...)
	buf = append(buf, packUint32(s.ChallengeDuration)...)
	buf = append(buf, s.AppData...)
	buf = append(buf, packAddress(s.Outcome.Asset)...)
	for _, alloc := range s.Outcome.Allocations {
		buf = append(buf, alloc.Destination[:]...)
		buf = append(buf, packUint256(alloc.Amount)...)
		buf = append(buf, byte(alloc.Type))
		buf = append(buf, alloc.Metadata...)
	}
	buf = append(buf, packUint64(s.TurnNum)...)
	if s.IsFinal {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return Keccak256(buf)
}

// depositCalldataArgs is the standard (non-packed) ABI argument list used to
// build calldata for an on-chain deposit call triggered by a submit_tx side
// effect. Unlike ComputeChannelId/ComputeStateHash (which use encodePacked
// for content addressing), a real deposit transaction must use the padded,
// offset-bearing ABI encoding a Solidity ABI decoder expects, so this one
// helper goes through go-ethereum's abi.Arguments rather than hand-rolled
// packing.
var depositCalldataArgs = mustArguments(
	mustABIType("bytes32"),
	mustABIType("address"),
	mustABIType("uint256"),
)

func mustABIType(t string) ethabi.Type {
	typ, err := ethabi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

func mustArguments(types ...ethabi.Type) ethabi.Arguments {
	args := make(ethabi.Arguments, len(types))
	for i, t := range types {
		args[i] = ethabi.Argument{Type: t}
	}
	return args
}

// EncodeDepositCalldata ABI-encodes (channelId, asset, amount) the way a
// deposit() contract call expects its arguments, for use as Transaction.Data
// on a submit_tx SideEffect.
func EncodeDepositCalldata(channelId Hash, asset Address, amount *big.Int) ([]byte, error) {
	if amount == nil {
		amount = new(big.Int)
	}
	return depositCalldataArgs.Pack(channelId, asset, amount)
}
