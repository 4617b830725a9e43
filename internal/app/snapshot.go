package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"docwatch/internal/config"
	"docwatch/internal/database"
	"docwatch/internal/encryption"
)

// PassphraseFunc supplies the passphrase that unlocks the snapshot key.
type PassphraseFunc func() (string, error)

// CreateSnapshot writes a consistent copy of the catalog to dest. The copy is
// encrypted to the age public key when one is configured. It reports whether
// the snapshot was encrypted. dest must not exist.
func (a *App) CreateSnapshot(ctx context.Context, dest string) (bool, error) {
	tmpDir, err := os.MkdirTemp("", "docwatch-snapshot-*")
	if err != nil {
		return false, fmt.Errorf("creating snapshot workspace: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	plain := filepath.Join(tmpDir, database.CatalogFileName)
	if err := a.catalog.BackupTo(plain); err != nil {
		return false, err
	}

	src, err := os.Open(plain)
	if err != nil {
		return false, fmt.Errorf("opening catalog copy: %w", err)
	}
	defer src.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return false, fmt.Errorf("creating snapshot: %w", err)
	}

	encrypted := a.cfg.Encryption.Type != "none" && a.encryptor.IsConfigured()
	if encrypted {
		err = a.encryptor.Encrypt(src, out)
	} else {
		_, err = io.Copy(out, src)
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return false, fmt.Errorf("writing snapshot: %w", err)
	}

	if !encrypted && a.cfg.Encryption.Type != "none" {
		a.logger.Warn("snapshot written unencrypted: no keys configured", "dest", dest)
	}
	a.logger.Info("snapshot created", "dest", dest, "encrypted", encrypted)
	return encrypted, nil
}

// RestoreSnapshot replaces the catalog file with the snapshot at src. It
// holds the instance lock, so it refuses to run while the watcher does.
// passphrase is only called for encrypted snapshots.
func RestoreSnapshot(ctx context.Context, cfg *config.Config, src string, passphrase PassphraseFunc) error {
	if cfg.Database.Type != "sqlite" && cfg.Database.Type != "" {
		return fmt.Errorf("snapshots can only be restored into a sqlite catalog, not %q", cfg.Database.Type)
	}
	if cfg.Database.DataDir == "" {
		return errors.New("database.data_dir is not configured")
	}

	lock, err := acquireInstanceLock(cfg.BaseDir)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(cfg.Database.DataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	target := filepath.Join(cfg.Database.DataDir, database.CatalogFileName)

	staged, err := os.CreateTemp(cfg.Database.DataDir, ".restore-*.db")
	if err != nil {
		return fmt.Errorf("staging snapshot: %w", err)
	}
	stagedPath := staged.Name()
	defer os.Remove(stagedPath)

	if err := decodeSnapshot(cfg, in, staged, passphrase); err != nil {
		staged.Close()
		return err
	}
	if err := staged.Close(); err != nil {
		return fmt.Errorf("staging snapshot: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// Opening the staged copy validates it and migrates older snapshots.
	check, err := database.NewSQLiteCatalog(stagedPath)
	if err != nil {
		return fmt.Errorf("snapshot is not a docwatch catalog: %w", err)
	}
	if err := check.Close(); err != nil {
		return fmt.Errorf("closing staged catalog: %w", err)
	}

	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(target + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing stale catalog journal: %w", err)
		}
	}
	if err := os.Rename(stagedPath, target); err != nil {
		return fmt.Errorf("replacing catalog: %w", err)
	}
	return nil
}

func decodeSnapshot(cfg *config.Config, in io.Reader, out io.Writer, passphrase PassphraseFunc) error {
	isAge, r, err := encryption.IsEncrypted(in)
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	if !isAge {
		if _, err := io.Copy(out, r); err != nil {
			return fmt.Errorf("copying snapshot: %w", err)
		}
		return nil
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return err
	}
	if _, ok := enc.(*encryption.AgeEncryptor); !ok {
		return fmt.Errorf("snapshot is encrypted but encryption type is %q", cfg.Encryption.Type)
	}
	if !enc.IsConfigured() {
		return errors.New("snapshot is encrypted but no snapshot keys are configured")
	}
	if passphrase == nil {
		return errors.New("snapshot is encrypted and no passphrase was provided")
	}
	pass, err := passphrase()
	if err != nil {
		return fmt.Errorf("reading passphrase: %w", err)
	}
	dc, err := enc.Unlock(pass)
	if err != nil {
		return err
	}
	if err := dc.Decrypt(r, out); err != nil {
		return fmt.Errorf("decrypting snapshot: %w", err)
	}
	return nil
}
