// Package signer provides the Notary's signing collaborator: an Ed25519
// signer over an opaque payload, adapted from the node's broader signing
// utilities down to the one operation the Notary Engine needs.
package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// Signature is a raw Ed25519 signature.
type Signature []byte

// PublicKey is a raw Ed25519 public key.
type PublicKey []byte

// Signer signs opaque payloads on behalf of the node's notary identity.
type Signer interface {
	Sign(payload []byte) (Signature, error)
	PublicKey() PublicKey
}

// Ed25519Signer implements Signer using crypto/ed25519.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewEd25519Signer generates a fresh Ed25519 keypair.
func NewEd25519Signer() (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("signer: key generation failed: %w", err)
	}
	return &Ed25519Signer{priv: priv, pub: pub}, nil
}

// NewEd25519SignerFromKey builds a signer from an existing private key,
// e.g. one loaded from the node's configured key material.
func NewEd25519SignerFromKey(priv ed25519.PrivateKey) *Ed25519Signer {
	return &Ed25519Signer{
		priv: priv,
		pub:  priv.Public().(ed25519.PublicKey),
	}
}

// Sign signs payload with the node's private key.
func (s *Ed25519Signer) Sign(payload []byte) (Signature, error) {
	return Signature(ed25519.Sign(s.priv, payload)), nil
}

// PublicKey returns the signer's public key.
func (s *Ed25519Signer) PublicKey() PublicKey {
	return PublicKey(s.pub)
}

// Verify checks sig over payload against pub.
func Verify(pub PublicKey, payload []byte, sig Signature) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), payload, []byte(sig))
}
