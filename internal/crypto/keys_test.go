package crypto

import (
	"errors"
	"testing"
)

func generateTestPair(t *testing.T) *KeyPair {
	t.Helper()
	pair, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	return pair
}

func TestGeneratedPairValidates(t *testing.T) {
	pair := generateTestPair(t)
	if err := pair.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestTamperedPairFails(t *testing.T) {
	pair := generateTestPair(t)
	other := generateTestPair(t)
	pair.Pub = other.Pub

	if err := pair.Validate(); !errors.Is(err, ErrInvalidPair) {
		t.Fatalf("expected ErrInvalidPair, got %v", err)
	}
}

func TestSealRoundTrip(t *testing.T) {
	pair := generateTestPair(t)

	sealed, err := Seal(pair, "correct horse")
	if err != nil {
		t.Fatal(err)
	}
	opened, err := Open(sealed, "correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if *opened != *pair {
		t.Fatalf("expected %+v, got %+v", pair, opened)
	}
}

func TestSealDiffersEachTime(t *testing.T) {
	pair := generateTestPair(t)
	a, _ := Seal(pair, "pw")
	b, _ := Seal(pair, "pw")
	if a.Ciphertext == b.Ciphertext || a.Salt == b.Salt {
		t.Fatal("seals should differ for same pair and password")
	}
}

func TestWrongPasswordFails(t *testing.T) {
	pair := generateTestPair(t)
	sealed, _ := Seal(pair, "right")

	_, err := Open(sealed, "wrong")
	if !errors.Is(err, ErrSealOpen) {
		t.Fatalf("expected ErrSealOpen, got %v", err)
	}
}

func TestTruncatedSealFails(t *testing.T) {
	sealed := &Sealed{Ciphertext: b64.EncodeToString(make([]byte, 10)), Salt: b64.EncodeToString(make([]byte, saltSize))}
	if _, err := Open(sealed, "pw"); !errors.Is(err, ErrSealOpen) {
		t.Fatalf("expected ErrSealOpen, got %v", err)
	}
}

func TestSignVerify(t *testing.T) {
	pair := generateTestPair(t)
	sig, err := pair.Sign([]byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifySignature(pair.Pub, []byte("hello"), sig); err != nil {
		t.Fatal(err)
	}
	if err := VerifySignature(pair.Pub, []byte("hellO"), sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestInvalidPublicKeyLength(t *testing.T) {
	_, err := ValidatePublicKey(b64.EncodeToString(make([]byte, 16)))
	if !errors.Is(err, ErrInvalidPublicKey) {
		t.Fatalf("expected ErrInvalidPublicKey, got %v", err)
	}
}
