package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"docwatch/internal/config"
)

func newTestAgeEncryptor(t *testing.T) (*AgeEncryptor, config.EncryptionConfig) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.EncryptionConfig{
		PublicKeyPath:  filepath.Join(dir, "keys", "docwatch.pub"),
		PrivateKeyPath: filepath.Join(dir, "keys", "docwatch.key"),
	}
	return NewAgeEncryptor(cfg), cfg
}

func TestAgeEncryptor_Setup(t *testing.T) {
	t.Parallel()
	e, cfg := newTestAgeEncryptor(t)

	if e.IsConfigured() {
		t.Fatal("IsConfigured() = true before Setup")
	}
	if err := e.Setup("correct horse"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if !e.IsConfigured() {
		t.Fatal("IsConfigured() = false after Setup")
	}

	info, err := os.Stat(cfg.PrivateKeyPath)
	if err != nil {
		t.Fatalf("stat private key: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("private key perm = %o, want 600", perm)
	}

	wrapped, _ := os.ReadFile(cfg.PrivateKeyPath)
	if bytes.Contains(wrapped, []byte("AGE-SECRET-KEY")) {
		t.Error("private key stored unwrapped")
	}
	if ok, _, _ := IsEncrypted(bytes.NewReader(wrapped)); !ok {
		t.Error("private key is not an age file")
	}

	entries, _ := os.ReadDir(filepath.Dir(cfg.PrivateKeyPath))
	if len(entries) != 2 {
		t.Errorf("key dir holds %d entries, want 2 (no temp files)", len(entries))
	}
}

func TestAgeEncryptor_SetupRefusesToReplaceKeys(t *testing.T) {
	t.Parallel()
	e, cfg := newTestAgeEncryptor(t)
	if err := e.Setup("first"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	before, _ := os.ReadFile(cfg.PublicKeyPath)

	if err := e.Setup("second"); !errors.Is(err, ErrKeysExist) {
		t.Fatalf("second Setup() error = %v, want ErrKeysExist", err)
	}
	after, _ := os.ReadFile(cfg.PublicKeyPath)
	if !bytes.Equal(before, after) {
		t.Error("public key replaced")
	}
}

func TestAgeEncryptor_SetupRejectsEmptyPassphrase(t *testing.T) {
	t.Parallel()
	e, _ := newTestAgeEncryptor(t)
	if err := e.Setup(""); err == nil {
		t.Fatal("Setup(\"\") expected error")
	}
	if e.IsConfigured() {
		t.Error("keys written despite error")
	}
}

func TestAgeEncryptor_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "sqlite header", input: []byte("SQLite format 3\x00")},
		{name: "empty", input: []byte{}},
		{name: "large", input: bytes.Repeat([]byte("catalog"), 20000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, _ := newTestAgeEncryptor(t)
			if err := e.Setup("pass"); err != nil {
				t.Fatalf("Setup() error = %v", err)
			}

			var sealed bytes.Buffer
			if err := e.Encrypt(bytes.NewReader(tt.input), &sealed); err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			ok, r, err := IsEncrypted(&sealed)
			if err != nil || !ok {
				t.Fatalf("IsEncrypted() = %v, %v; want true", ok, err)
			}

			dc, err := e.Unlock("pass")
			if err != nil {
				t.Fatalf("Unlock() error = %v", err)
			}
			var plain bytes.Buffer
			if err := dc.Decrypt(r, &plain); err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(plain.Bytes(), tt.input) {
				t.Errorf("round trip: got %d bytes, want %d", plain.Len(), len(tt.input))
			}
		})
	}
}

func TestAgeEncryptor_Errors(t *testing.T) {
	t.Parallel()

	t.Run("wrong passphrase", func(t *testing.T) {
		e, _ := newTestAgeEncryptor(t)
		if err := e.Setup("right"); err != nil {
			t.Fatalf("Setup() error = %v", err)
		}
		if _, err := e.Unlock("wrong"); err == nil {
			t.Error("Unlock() with wrong passphrase should fail")
		}
	})

	t.Run("before setup", func(t *testing.T) {
		e, _ := newTestAgeEncryptor(t)
		if err := e.Encrypt(bytes.NewReader([]byte("x")), io.Discard); err == nil {
			t.Error("Encrypt() before Setup should fail")
		}
		if _, err := e.Unlock("x"); err == nil {
			t.Error("Unlock() before Setup should fail")
		}
	})
}

func TestIsEncrypted_Plaintext(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"SQLite format 3\x00", "", "age"} {
		ok, r, err := IsEncrypted(bytes.NewReader([]byte(in)))
		if err != nil || ok {
			t.Errorf("IsEncrypted(%q) = %v, %v", in, ok, err)
		}
		replayed, _ := io.ReadAll(r)
		if string(replayed) != in {
			t.Errorf("replayed %q, want %q", replayed, in)
		}
	}
}

func TestNewEncryptorFromConfig(t *testing.T) {
	t.Parallel()

	for typ, want := range map[string]string{"": "*encryption.AgeEncryptor", "age": "*encryption.AgeEncryptor", "none": "encryption.None"} {
		e, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: typ})
		if err != nil {
			t.Fatalf("NewEncryptorFromConfig(%q) error = %v", typ, err)
		}
		if got := fmt.Sprintf("%T", e); got != want {
			t.Errorf("NewEncryptorFromConfig(%q) = %s, want %s", typ, got, want)
		}
	}
	if _, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: "rot13"}); err == nil {
		t.Error("unknown type should fail")
	}
}

func TestNone_PassesThrough(t *testing.T) {
	t.Parallel()
	var sealed, plain bytes.Buffer
	if err := (None{}).Encrypt(bytes.NewReader([]byte("db")), &sealed); err != nil {
		t.Fatal(err)
	}
	dc, _ := None{}.Unlock("")
	if err := dc.Decrypt(&sealed, &plain); err != nil {
		t.Fatal(err)
	}
	if plain.String() != "db" {
		t.Errorf("got %q", plain.String())
	}
}
