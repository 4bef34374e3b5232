package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Klingon-tech/klingnet-recall/internal/log"
	"github.com/Klingon-tech/klingnet-recall/pkg/types"
)

const keystoreVersion = 1

// Keystore errors.
var (
	ErrWalletExists   = errors.New("wallet already exists")
	ErrWalletNotFound = errors.New("wallet not found")
	ErrPartyExists    = errors.New("party already exists")
	ErrUnknownParty   = errors.New("unknown party")
)

// Party is a named key holder bound to a derivation index. Its public
// half is stored in clear so it can be listed without the password.
type Party struct {
	Name    string        `json:"name"`
	Index   uint32        `json:"index"`
	PubKey  types.PubKey  `json:"pubkey"`
	Address types.Address `json:"address"`
}

// keystoreFile is the on-disk JSON format.
type keystoreFile struct {
	Version       int       `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	EncryptedSeed []byte    `json:"encrypted_seed"`
	Parties       []Party   `json:"parties"`
	NextIndex     uint32    `json:"next_index"`
}

func (kf *keystoreFile) party(name string) (Party, bool) {
	for _, p := range kf.Parties {
		if p.Name == name {
			return p, true
		}
	}
	return Party{}, false
}

// Keystore is one encrypted wallet file.
type Keystore struct {
	path string
}

// NewKeystore returns a keystore backed by the file at path. Nothing is
// read until the first call.
func NewKeystore(path string) *Keystore {
	return &Keystore{path: path}
}

// Path returns the wallet file location.
func (ks *Keystore) Path() string { return ks.path }

// Exists reports whether the wallet file is present.
func (ks *Keystore) Exists() bool {
	_, err := os.Stat(ks.path)
	return err == nil
}

// Create writes a new wallet holding seed encrypted under password.
func (ks *Keystore) Create(seed, password []byte, params EncryptionParams) error {
	if len(seed) != SeedSize {
		return fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	if ks.Exists() {
		return fmt.Errorf("%w: %s", ErrWalletExists, ks.path)
	}
	if err := os.MkdirAll(filepath.Dir(ks.path), 0700); err != nil {
		return fmt.Errorf("create keystore dir: %w", err)
	}

	encrypted, err := Encrypt(seed, password, params)
	if err != nil {
		return fmt.Errorf("encrypt seed: %w", err)
	}
	kf := &keystoreFile{
		Version:       keystoreVersion,
		CreatedAt:     time.Now().UTC(),
		EncryptedSeed: encrypted,
		Parties:       []Party{},
	}
	if err := ks.write(kf); err != nil {
		return err
	}
	log.Wallet.Info().Str("path", ks.path).Msg("Wallet created")
	return nil
}

// Unlock decrypts the seed and returns a Book over this keystore.
func (ks *Keystore) Unlock(password []byte) (*Book, error) {
	kf, err := ks.read()
	if err != nil {
		return nil, err
	}
	seed, err := Decrypt(kf.EncryptedSeed, password)
	if err != nil {
		return nil, fmt.Errorf("unlock wallet: %w", err)
	}
	defer wipe(seed)

	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	return &Book{ks: ks, master: master}, nil
}

// Parties lists the parties recorded in the wallet.
func (ks *Keystore) Parties() ([]Party, error) {
	kf, err := ks.read()
	if err != nil {
		return nil, err
	}
	return kf.Parties, nil
}

// Party returns the named party.
func (ks *Keystore) Party(name string) (Party, error) {
	kf, err := ks.read()
	if err != nil {
		return Party{}, err
	}
	p, ok := kf.party(name)
	if !ok {
		return Party{}, fmt.Errorf("%w: %q", ErrUnknownParty, name)
	}
	return p, nil
}

func (ks *Keystore) write(kf *keystoreFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}
	// Write then rename so a crash never leaves a truncated wallet.
	tmp := ks.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	if err := os.Rename(tmp, ks.path); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	return nil
}

func (ks *Keystore) read() (*keystoreFile, error) {
	data, err := os.ReadFile(ks.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrWalletNotFound, ks.path)
	}
	if err != nil {
		return nil, fmt.Errorf("read wallet: %w", err)
	}
	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse wallet: %w", err)
	}
	if kf.Version != keystoreVersion {
		return nil, fmt.Errorf("unsupported wallet version: %d", kf.Version)
	}
	return &kf, nil
}
