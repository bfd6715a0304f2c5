package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

const (
	sealInfo        = "decentchat-auth-v1"
	pbkdf2Rounds    = 100000
	saltSize        = 16
	keySize         = 32
	minSealedLength = chacha20poly1305.NonceSize + chacha20poly1305.Overhead
)

// ErrSealOpen means the sealed pair could not be opened: wrong password or tampered data.
var ErrSealOpen = errors.New("could not open sealed pair")

// Sealed is a key pair encrypted under a password, as stored on the user's node.
type Sealed struct {
	Ciphertext string `json:"auth"`
	Salt       string `json:"salt"`
}

func sealKey(password string, salt []byte) ([]byte, error) {
	stretched := pbkdf2.Key([]byte(password), salt, pbkdf2Rounds, keySize, sha256.New)
	r := hkdf.New(sha256.New, stretched, salt, []byte(sealInfo))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Seal encrypts a pair with a password-derived key.
// Wire format: base64url(nonce[12] + ciphertext[N+16]).
func Seal(pair *KeyPair, password string) (*Sealed, error) {
	plaintext, err := json.Marshal(pair)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key, err := sealKey(password, salt)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	wire := aead.Seal(nonce, nonce, plaintext, nil)
	return &Sealed{
		Ciphertext: b64.EncodeToString(wire),
		Salt:       b64.EncodeToString(salt),
	}, nil
}

// Open decrypts a sealed pair and validates the result.
func Open(sealed *Sealed, password string) (*KeyPair, error) {
	wire, err := b64.DecodeString(sealed.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid encoding", ErrSealOpen)
	}
	if len(wire) < minSealedLength {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrSealOpen)
	}
	salt, err := b64.DecodeString(sealed.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid salt", ErrSealOpen)
	}

	key, err := sealKey(password, salt)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}

	nonce, ciphertext := wire[:chacha20poly1305.NonceSize], wire[chacha20poly1305.NonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrSealOpen
	}

	var pair KeyPair
	if err := json.Unmarshal(plaintext, &pair); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealOpen, err)
	}
	if err := pair.Validate(); err != nil {
		return nil, err
	}
	return &pair, nil
}
