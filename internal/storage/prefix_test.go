package storage

import (
	"errors"
	"testing"
)

func TestPrefixDB_Isolation(t *testing.T) {
	inner := NewMemory()
	main := NewPrefixDB(inner, []byte("mainnet/"))
	test := NewPrefixDB(inner, []byte("testnet/"))

	if err := main.Put([]byte("key"), []byte("fromMain")); err != nil {
		t.Fatal(err)
	}
	if err := test.Put([]byte("key"), []byte("fromTest")); err != nil {
		t.Fatal(err)
	}

	got, err := main.Get([]byte("key"))
	if err != nil || string(got) != "fromMain" {
		t.Fatalf("main.Get = %q, %v", got, err)
	}
	got, err = test.Get([]byte("key"))
	if err != nil || string(got) != "fromTest" {
		t.Fatalf("test.Get = %q, %v", got, err)
	}

	raw, err := inner.Get([]byte("mainnet/key"))
	if err != nil || string(raw) != "fromMain" {
		t.Fatalf("inner raw key = %q, %v", raw, err)
	}
	if ok, _ := main.Has([]byte("testnet/key")); ok {
		t.Fatal("main should not see the testnet raw key")
	}
}

func TestPrefixDB_ForEachStripsPrefix(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("ledger/"))

	db.Put([]byte("i/k2"), []byte("v2"))
	db.Put([]byte("i/k1"), []byte("v1"))
	db.Put([]byte("c/k3"), []byte("v3"))

	var keys []string
	err := db.ForEach([]byte("i/"), func(key, _ []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if len(keys) != 2 || keys[0] != "i/k1" || keys[1] != "i/k2" {
		t.Fatalf("ForEach keys = %v, want [i/k1 i/k2]", keys)
	}
}

func TestPrefixDB_DeleteAll(t *testing.T) {
	inner := NewMemory()
	dbA := NewPrefixDB(inner, []byte("a/"))
	dbB := NewPrefixDB(inner, []byte("b/"))

	dbA.Put([]byte("k1"), []byte("v1"))
	dbA.Put([]byte("k2"), []byte("v2"))
	dbB.Put([]byte("k1"), []byte("other"))

	if err := dbA.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if ok, _ := dbA.Has([]byte("k1")); ok {
		t.Fatal("A still has k1 after DeleteAll")
	}
	if got, err := dbB.Get([]byte("k1")); err != nil || string(got) != "other" {
		t.Fatalf("B.Get = %q, %v", got, err)
	}
}

func TestPrefixDB_Batch(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("p/"))
	db.Put([]byte("old"), []byte("x"))

	b := db.NewBatch()
	b.Put([]byte("new"), []byte("y"))
	b.Delete([]byte("old"))

	// Nothing is visible before Commit.
	if ok, _ := db.Has([]byte("new")); ok {
		t.Fatal("batch write visible before Commit")
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if ok, _ := inner.Has([]byte("p/new")); !ok {
		t.Error("batched put missing prefix in inner DB")
	}
	if ok, _ := db.Has([]byte("old")); ok {
		t.Error("batched delete not applied")
	}
}

// plainDB hides MemoryDB's Batcher implementation.
type plainDB struct{ DB }

func TestNewBatch_Fallback(t *testing.T) {
	inner := plainDB{NewMemory()}
	b := NewBatch(inner)
	if _, ok := b.(*fallbackBatch); !ok {
		t.Fatalf("NewBatch on non-batcher = %T, want *fallbackBatch", b)
	}
	b.Put([]byte("k"), []byte("v"))
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}
	if got, err := inner.Get([]byte("k")); err != nil || string(got) != "v" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	pdb := NewPrefixDB(inner, []byte("ns/"))
	pb := pdb.NewBatch()
	pb.Put([]byte("k"), []byte("w"))
	if err := pb.Commit(); err != nil {
		t.Fatal(err)
	}
	if got, err := inner.Get([]byte("ns/k")); err != nil || string(got) != "w" {
		t.Fatalf("prefixed fallback Get = %q, %v", got, err)
	}
}

func TestPrefixDB_NotFound(t *testing.T) {
	db := NewPrefixDB(NewMemory(), []byte("x/"))
	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}
}
