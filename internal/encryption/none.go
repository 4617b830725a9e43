package encryption

import (
	"fmt"
	"io"

	"docwatch/internal/dw"
)

// None leaves snapshots in plaintext.
type None struct{}

var _ dw.Encryptor = None{}

func (None) Setup(string) error { return nil }

func (None) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying snapshot: %w", err)
	}
	return nil
}

func (None) Unlock(string) (dw.DecryptionContext, error) { return plainContext{}, nil }

func (None) IsConfigured() bool { return true }

type plainContext struct{}

func (plainContext) Decrypt(r io.Reader, w io.Writer) error {
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying snapshot: %w", err)
	}
	return nil
}
