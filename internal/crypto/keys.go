// Package crypto holds user identities: ed25519 signing pairs with derived X25519
// encryption keys, and password sealing of a pair for storage in the graph.
package crypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/curve25519"
)

var (
	ErrInvalidPublicKey = errors.New("invalid Ed25519 public key")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidPair      = errors.New("invalid key pair")
)

var b64 = base64.RawURLEncoding

// KeyPair is a user identity. Pub doubles as the user's soul suffix (~pub).
type KeyPair struct {
	Pub   string `json:"pub"`
	Priv  string `json:"priv"`
	EPub  string `json:"epub"`
	EPriv string `json:"epriv"`
}

// GenerateKeyPair creates a fresh identity.
func GenerateKeyPair() (*KeyPair, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	return pairFromSeed(priv.Seed())
}

func pairFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes", ErrInvalidPair, ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)

	epriv := seedToX25519Private(seed)
	epub, err := curve25519.X25519(epriv, curve25519.Basepoint)
	if err != nil {
		return nil, err
	}

	return &KeyPair{
		Pub:   b64.EncodeToString(pub),
		Priv:  b64.EncodeToString(seed),
		EPub:  b64.EncodeToString(epub),
		EPriv: b64.EncodeToString(epriv),
	}, nil
}

// Validate checks that every key in the pair derives from Priv.
func (p *KeyPair) Validate() error {
	if p == nil {
		return ErrInvalidPair
	}
	seed, err := b64.DecodeString(p.Priv)
	if err != nil {
		return fmt.Errorf("%w: bad private key encoding", ErrInvalidPair)
	}
	want, err := pairFromSeed(seed)
	if err != nil {
		return err
	}
	if want.Pub != p.Pub || want.EPub != p.EPub {
		return fmt.Errorf("%w: public keys do not match private key", ErrInvalidPair)
	}

	// The published epub must also be the Montgomery form of pub.
	pub, err := ValidatePublicKey(p.Pub)
	if err != nil {
		return err
	}
	mont, err := PublicToX25519(pub)
	if err != nil {
		return err
	}
	if b64.EncodeToString(mont) != p.EPub {
		return fmt.Errorf("%w: epub does not match pub", ErrInvalidPair)
	}
	return nil
}

func (p *KeyPair) signingKey() (ed25519.PrivateKey, error) {
	seed, err := b64.DecodeString(p.Priv)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, ErrInvalidPair
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// Sign signs data with the pair and returns a base64url signature.
func (p *KeyPair) Sign(data []byte) (string, error) {
	key, err := p.signingKey()
	if err != nil {
		return "", err
	}
	return b64.EncodeToString(ed25519.Sign(key, data)), nil
}

// ValidatePublicKey checks if a base64url string is a valid Ed25519 public key.
func ValidatePublicKey(pubkeyB64 string) (ed25519.PublicKey, error) {
	decoded, err := b64.DecodeString(pubkeyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 encoding", ErrInvalidPublicKey)
	}

	if len(decoded) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidPublicKey, ed25519.PublicKeySize, len(decoded))
	}

	return ed25519.PublicKey(decoded), nil
}

// VerifySignature verifies a base64url signature made by pubkeyB64.
func VerifySignature(pubkeyB64 string, data []byte, signatureB64 string) error {
	pub, err := ValidatePublicKey(pubkeyB64)
	if err != nil {
		return err
	}
	signature, err := b64.DecodeString(signatureB64)
	if err != nil {
		return fmt.Errorf("%w: invalid base64 encoding", ErrInvalidSignature)
	}

	if !ed25519.Verify(pub, data, signature) {
		return ErrInvalidSignature
	}

	return nil
}

// PublicToX25519 converts an Ed25519 public key to an X25519 public key.
func PublicToX25519(edPub ed25519.PublicKey) ([]byte, error) {
	p, err := new(edwards25519.Point).SetBytes(edPub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return p.BytesMontgomery(), nil
}

// seedToX25519Private converts an Ed25519 seed to an X25519 private key.
func seedToX25519Private(seed []byte) []byte {
	h := sha512.Sum512(seed)
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64
	return bytes.Clone(h[:32])
}
