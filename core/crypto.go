package core

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Keccak256 hashes data with Keccak-256, the hash function used throughout
// this module for event ids, channel ids and state hashes.
func Keccak256(data ...[]byte) Hash {
	var h Hash
	copy(h[:], gethcrypto.Keccak256(data...))
	return h
}

// SignHash produces a 65-byte recoverable ECDSA signature over hash using the
// given secp256k1 private key, in the same {r, s, v} layout go-ethereum uses
// for transaction signatures.
func SignHash(hash Hash, privateKeyBytes []byte) (Signature, error) {
	priv, err := gethcrypto.ToECDSA(privateKeyBytes)
	if err != nil {
		return Signature{}, fmt.Errorf("parse private key: %w", err)
	}
	sigBytes, err := gethcrypto.Sign(hash[:], priv)
	if err != nil {
		return Signature{}, fmt.Errorf("sign hash: %w", err)
	}
	var sig Signature
	copy(sig[:], sigBytes)
	return sig, nil
}

// RecoverSigner recovers the address that produced sig over hash. It is the
// sole authority for "who signed this state" throughout the engine.
func RecoverSigner(hash Hash, sig Signature) (Address, error) {
	pub, err := gethcrypto.SigToPub(hash[:], sig[:])
	if err != nil {
		return Address{}, fmt.Errorf("recover signer: %w", err)
	}
	// Cross-check the recovered public key decodes as a valid secp256k1
	// point with a second implementation before deriving the address
	// from it.
	compressed := gethcrypto.CompressPubkey(pub)
	if _, err := secp256k1.ParsePubKey(compressed); err != nil {
		return Address{}, fmt.Errorf("recovered key is not a valid secp256k1 point: %w", err)
	}
	var addr Address
	copy(addr[:], gethcrypto.PubkeyToAddress(*pub).Bytes())
	return addr, nil
}
