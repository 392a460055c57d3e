package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "correct horse battery staple")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}
	if strings.Contains(string(blob), testKeyHex) {
		t.Fatal("encrypted blob contains the plaintext key")
	}

	got, err := DecryptKey(blob, "correct horse battery staple")
	if err != nil {
		t.Fatalf("DecryptKey: %v", err)
	}
	if got != testKeyHex {
		t.Fatalf("decrypted key = %s, want original", got)
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "right")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}
	if _, err := DecryptKey(blob, "wrong"); err == nil {
		t.Fatal("wrong password must fail decryption")
	}
}

func TestLoadKeyRawTakesPrecedence(t *testing.T) {
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex, EncryptedKeyPath: "/nonexistent"})
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	if got != testKeyHex {
		t.Fatalf("LoadKey = %s, want 0x prefix stripped", got)
	}
}

func TestLoadKeyRejectsInvalidHex(t *testing.T) {
	if _, err := LoadKey(KeyConfig{RawPrivateKey: "not-hex"}); err == nil {
		t.Fatal("invalid hex key must be rejected")
	}
}

func TestLoadKeyFromEncryptedFile(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "pw")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}
	path := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatalf("writing key file: %v", err)
	}

	got, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	if got != testKeyHex {
		t.Fatalf("LoadKey = %s, want original key", got)
	}
}

func TestLoadKeyNoSource(t *testing.T) {
	if _, err := LoadKey(KeyConfig{}); err == nil {
		t.Fatal("empty key config must be rejected")
	}
}

func TestSignActionShape(t *testing.T) {
	s, err := NewSigner(testKeyHex, "a")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	if s.Address() == (common.Address{}) {
		t.Fatal("signer address should be derived from the key")
	}

	sig1, err := s.SignAction([]byte(`{"type":"order"}`), 1700000000000)
	if err != nil {
		t.Fatalf("SignAction: %v", err)
	}
	if !strings.HasPrefix(sig1, "0x") || len(sig1) != 132 {
		t.Fatalf("signature = %s, want 0x-prefixed 65 bytes", sig1)
	}

	// secp256k1 signing here is deterministic for identical input.
	sig2, err := s.SignAction([]byte(`{"type":"order"}`), 1700000000000)
	if err != nil {
		t.Fatalf("SignAction: %v", err)
	}
	if sig1 != sig2 {
		t.Fatal("identical action and nonce must produce identical signatures")
	}

	sig3, err := s.SignAction([]byte(`{"type":"order"}`), 1700000000001)
	if err != nil {
		t.Fatalf("SignAction: %v", err)
	}
	if sig1 == sig3 {
		t.Fatal("a different nonce must change the signature")
	}
}

func TestNewSignerRejectsBadKey(t *testing.T) {
	if _, err := NewSigner("zz", "a"); err == nil {
		t.Fatal("invalid private key must be rejected")
	}
}
