package core

import "fmt"

// LocalCrankContext is the reference CrankContext implementation: it signs
// with a single in-memory secp256k1 private key and recovers signers via the
// free-standing RecoverSigner helper. A networked runtime would supply its
// own CrankContext, e.g. backed by a remote signer or hardware wallet,
// satisfying the same interface.
type LocalCrankContext struct {
	address    Address
	privateKey []byte
}

// NewLocalCrankContext derives the signing address from privateKeyBytes and
// returns a CrankContext plus that address, so callers can pass my_index
// lookups and the context to the same participant consistently.
func NewLocalCrankContext(privateKeyBytes []byte) (*LocalCrankContext, Address, error) {
	// Signing a throwaway digest derives the address without requiring a
	// direct private-to-public key helper in this module's crypto surface.
	probeHash := Keccak256(privateKeyBytes)
	sig, err := SignHash(probeHash, privateKeyBytes)
	if err != nil {
		return nil, Address{}, fmt.Errorf("derive address from private key: %w", err)
	}
	addr, err := RecoverSigner(probeHash, sig)
	if err != nil {
		return nil, Address{}, fmt.Errorf("derive address from private key: %w", err)
	}
	return &LocalCrankContext{address: addr, privateKey: privateKeyBytes}, addr, nil
}

func (c *LocalCrankContext) Sign(hash Hash) (Signature, error) {
	return SignHash(hash, c.privateKey)
}

func (c *LocalCrankContext) RecoverSigner(hash Hash, sig Signature) (Address, error) {
	return RecoverSigner(hash, sig)
}

// Address returns the participant address this context signs as.
func (c *LocalCrankContext) Address() Address { return c.address }
