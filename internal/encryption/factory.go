package encryption

import (
	"fmt"

	"docwatch/internal/config"
	"docwatch/internal/dw"
)

// NewEncryptorFromConfig creates the snapshot Encryptor selected by cfg.Type.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (dw.Encryptor, error) {
	switch cfg.Type {
	case "age", "":
		return NewAgeEncryptor(cfg), nil
	case "none":
		return None{}, nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
