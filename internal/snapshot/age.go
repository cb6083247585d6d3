package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"

	"csync/internal/csync"
)

// ErrLocked is returned by AgeSealer.Get before Unlock.
var ErrLocked = errors.New("snapshot key is locked (passphrase required)")

// Keygen generates a new X25519 key pair, stores the public key in plaintext,
// and encrypts the private key with the passphrase using age's scrypt-based
// passphrase encryption.
func Keygen(publicKeyPath, privateKeyPath, passphrase string) error {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}

	for _, p := range []string{publicKeyPath, privateKeyPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
			return fmt.Errorf("creating key directory: %w", err)
		}
	}

	if err := os.WriteFile(publicKeyPath, []byte(identity.Recipient().String()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	privFile, err := os.OpenFile(privateKeyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating private key file: %w", err)
	}
	defer privFile.Close()

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}

	w, err := age.Encrypt(privFile, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.WriteString(w, identity.String()+"\n"); err != nil {
		return fmt.Errorf("writing encrypted private key: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encrypted private key: %w", err)
	}
	return nil
}

// AgeSealer encrypts snapshots with the public key before handing them to
// the wrapped store. Reading them back needs the private key, which stays
// passphrase-encrypted on disk until Unlock.
type AgeSealer struct {
	csync.SnapshotStore
	publicKeyPath  string
	privateKeyPath string
	identity       age.Identity
}

func NewAgeSealer(inner csync.SnapshotStore, publicKeyPath, privateKeyPath string) *AgeSealer {
	return &AgeSealer{
		SnapshotStore:  inner,
		publicKeyPath:  publicKeyPath,
		privateKeyPath: privateKeyPath,
	}
}

// IsConfigured returns true if both key files exist.
func (a *AgeSealer) IsConfigured() bool {
	for _, p := range []string{a.publicKeyPath, a.privateKeyPath} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// Put encrypts r into a temporary file and uploads the ciphertext, whose
// size differs from the plaintext's.
func (a *AgeSealer) Put(ctx context.Context, instanceID string, r io.Reader, size int64, version int64) error {
	recipient, err := a.loadRecipient()
	if err != nil {
		return fmt.Errorf("loading public key: %w", err)
	}

	tmp, err := os.CreateTemp("", "csync-snapshot-*.age")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	encWriter, err := age.Encrypt(tmp, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	written, err := io.Copy(encWriter, r)
	if err != nil {
		return fmt.Errorf("encrypting snapshot: %w", err)
	}
	if err := encWriter.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	if written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	sealedSize, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("measuring ciphertext: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding ciphertext: %w", err)
	}
	return a.SnapshotStore.Put(ctx, instanceID, tmp, sealedSize, version)
}

// Unlock decrypts the private key with passphrase and keeps the identity in
// memory for Get.
func (a *AgeSealer) Unlock(passphrase string) error {
	privData, err := os.ReadFile(a.privateKeyPath)
	if err != nil {
		return fmt.Errorf("reading private key file: %w", err)
	}

	scrypt, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt identity: %w", err)
	}
	decReader, err := age.Decrypt(bytes.NewReader(privData), scrypt)
	if err != nil {
		return fmt.Errorf("decrypting private key: %w", err)
	}

	identities, err := age.ParseIdentities(decReader)
	if err != nil {
		return fmt.Errorf("parsing private key: %w", err)
	}
	if len(identities) == 0 {
		return fmt.Errorf("no identities found in private key")
	}
	a.identity = identities[0]
	return nil
}

func (a *AgeSealer) Get(ctx context.Context, instanceID string, w io.Writer) error {
	if a.identity == nil {
		return ErrLocked
	}

	var sealed bytes.Buffer
	if err := a.SnapshotStore.Get(ctx, instanceID, &sealed); err != nil {
		return err
	}
	decReader, err := age.Decrypt(&sealed, a.identity)
	if err != nil {
		return fmt.Errorf("creating decrypted reader: %w", err)
	}
	if _, err := io.Copy(w, decReader); err != nil {
		return fmt.Errorf("decrypting snapshot: %w", err)
	}
	return nil
}

func (a *AgeSealer) loadRecipient() (age.Recipient, error) {
	pubData, err := os.ReadFile(a.publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}

	recipients, err := age.ParseRecipients(bytes.NewReader(pubData))
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("no recipients found in public key file")
	}
	return recipients[0], nil
}

var _ csync.SnapshotStore = (*AgeSealer)(nil)
