package core

import (
	"math/big"
	"testing"
)

// TestCanonicalKeyOrdering verifies that field order in the Go struct does
// not leak into the wire bytes: two structurally equal values built in
// different orders must canonicalize identically.
func TestCanonicalKeyOrdering(t *testing.T) {
	a := Outcome{
		Asset: Address{1},
		Allocations: []Allocation{
			{Destination: Hash{1}, Amount: big.NewInt(100), Type: AllocationSimple},
			{Destination: Hash{2}, Amount: big.NewInt(200), Type: AllocationSimple},
		},
	}
	b := Outcome{
		Allocations: []Allocation{
			{Amount: big.NewInt(100), Destination: Hash{1}, Type: AllocationSimple},
			{Amount: big.NewInt(200), Destination: Hash{2}, Type: AllocationSimple},
		},
		Asset: Address{1},
	}

	ca, err := CanonicalBytes(a)
	if err != nil {
		t.Fatalf("canonicalize a: %v", err)
	}
	cb, err := CanonicalBytes(b)
	if err != nil {
		t.Fatalf("canonicalize b: %v", err)
	}
	if string(ca) != string(cb) {
		t.Fatalf("expected identical canonical bytes, got %s vs %s", ca, cb)
	}
}

// TestCanonicalExactBytes pins the exact wire form: sorted keys, no
// whitespace, plain decimal integers.
func TestCanonicalExactBytes(t *testing.T) {
	payload := map[string]interface{}{
		"turn_num":      5,
		"channel_id":    "0x1234",
		"event_version": 1,
	}
	b, err := CanonicalBytes(payload)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	want := `{"channel_id":"0x1234","event_version":1,"turn_num":5}`
	if string(b) != want {
		t.Fatalf("canonical bytes = %s, want %s", b, want)
	}
}

// TestCanonicalEqual exercises the convenience comparison wrapper.
func TestCanonicalEqual(t *testing.T) {
	s1 := State{FixedPart: FixedPart{ChannelNonce: 1}, VariablePart: VariablePart{TurnNum: 5}}
	s2 := State{FixedPart: FixedPart{ChannelNonce: 1}, VariablePart: VariablePart{TurnNum: 5}}
	eq, err := CanonicalEqual(s1, s2)
	if err != nil {
		t.Fatalf("CanonicalEqual: %v", err)
	}
	if !eq {
		t.Fatalf("expected equal states to canonicalize identically")
	}
	s2.TurnNum = 6
	eq, err = CanonicalEqual(s1, s2)
	if err != nil {
		t.Fatalf("CanonicalEqual: %v", err)
	}
	if eq {
		t.Fatalf("expected differing turn_num to break equality")
	}
}

// TestCanonicalNoWhitespaceNoExponent guards against the two most common
// canonicalization regressions: reintroduced JSON whitespace, and floating
// point/exponential number rendering for big integers.
func TestCanonicalNoWhitespaceNoExponent(t *testing.T) {
	amount, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	out := Outcome{Allocations: []Allocation{{Destination: Hash{9}, Amount: amount, Type: AllocationSimple}}}
	b, err := CanonicalBytes(out)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	s := string(b)
	for _, r := range s {
		if r == ' ' || r == '\n' || r == '\t' {
			t.Fatalf("canonical bytes contain whitespace: %q", s)
		}
	}
	if !containsDigits(s, "123456789012345678901234567890") {
		t.Fatalf("expected decimal digit run in output, got %q", s)
	}
}

func containsDigits(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
