package wallet

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testSeedBytes(t *testing.T) []byte {
	t.Helper()
	seed, err := SeedFromMnemonic(testMnemonic, "")
	if err != nil {
		t.Fatalf("SeedFromMnemonic: %v", err)
	}
	return seed
}

// testBook creates a wallet file under a temp dir and unlocks it.
func testBook(t *testing.T) (*Keystore, *Book) {
	t.Helper()
	ks := NewKeystore(filepath.Join(t.TempDir(), "keystore", "wallet.json"))
	if err := ks.Create(testSeedBytes(t), []byte("pw"), fastParams()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	book, err := ks.Unlock([]byte("pw"))
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	return ks, book
}

func TestKeystore_CreateAndUnlock(t *testing.T) {
	ks, _ := testBook(t)

	if !ks.Exists() {
		t.Fatal("wallet file missing after Create")
	}
	info, err := os.Stat(ks.Path())
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 600", perm)
	}

	if err := ks.Create(testSeedBytes(t), []byte("pw"), fastParams()); !errors.Is(err, ErrWalletExists) {
		t.Errorf("second Create = %v, want ErrWalletExists", err)
	}
	if _, err := ks.Unlock([]byte("wrong")); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("wrong password = %v, want ErrWrongPassword", err)
	}
}

func TestKeystore_Missing(t *testing.T) {
	ks := NewKeystore(filepath.Join(t.TempDir(), "none.json"))
	if ks.Exists() {
		t.Error("Exists on a missing file")
	}
	if _, err := ks.Unlock([]byte("pw")); !errors.Is(err, ErrWalletNotFound) {
		t.Errorf("Unlock = %v, want ErrWalletNotFound", err)
	}
	if _, err := ks.Parties(); !errors.Is(err, ErrWalletNotFound) {
		t.Errorf("Parties = %v, want ErrWalletNotFound", err)
	}
}

func TestKeystore_RejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"garbage":     "not json",
		"bad version": `{"version": 7, "parties": []}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".json")
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := NewKeystore(path).Parties(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestBook_AddParty(t *testing.T) {
	ks, book := testBook(t)

	issuer, err := book.AddParty("issuer")
	if err != nil {
		t.Fatalf("AddParty: %v", err)
	}
	alice, err := book.AddParty("alice")
	if err != nil {
		t.Fatalf("AddParty: %v", err)
	}
	if issuer.Index != 0 || alice.Index != 1 {
		t.Errorf("indices = %d, %d, want 0, 1", issuer.Index, alice.Index)
	}
	if issuer.PubKey == alice.PubKey {
		t.Error("parties share a key")
	}
	if _, err := book.AddParty("alice"); !errors.Is(err, ErrPartyExists) {
		t.Errorf("duplicate = %v, want ErrPartyExists", err)
	}
	if _, err := book.AddParty(""); err == nil {
		t.Error("empty name accepted")
	}

	// Parties are readable without unlocking.
	parties, err := ks.Parties()
	if err != nil {
		t.Fatal(err)
	}
	if len(parties) != 2 || parties[1].Name != "alice" {
		t.Errorf("parties = %+v", parties)
	}

	// A fresh unlock derives the same keys.
	again, err := ks.Unlock([]byte("pw"))
	if err != nil {
		t.Fatal(err)
	}
	key, err := again.Signer("alice")
	if err != nil {
		t.Fatalf("Signer: %v", err)
	}
	if key.PubKey() != alice.PubKey || key.Address() != alice.Address {
		t.Error("re-derived key does not match the stored party")
	}
}

func TestBook_KeyResolver(t *testing.T) {
	_, book := testBook(t)
	p, err := book.AddParty("bob")
	if err != nil {
		t.Fatal(err)
	}

	var r KeyResolver = book
	pub, err := r.PublicKey("bob")
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}
	if pub != p.PubKey {
		t.Error("resolved key differs from the party")
	}
	if _, err := r.PublicKey("carol"); !errors.Is(err, ErrUnknownParty) {
		t.Errorf("unknown party = %v, want ErrUnknownParty", err)
	}
}
