// scenario runs the issue, transfer, transfer, recall flow against an
// in-process ledger and checks every successor instance along the way.
//
// Usage:
//
//	scenario [--db <dir>] [--log-level debug]
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Klingon-tech/klingnet-recall/internal/ledger"
	"github.com/Klingon-tech/klingnet-recall/internal/log"
	"github.com/Klingon-tech/klingnet-recall/internal/storage"
	"github.com/Klingon-tech/klingnet-recall/internal/wallet"
	"github.com/Klingon-tech/klingnet-recall/pkg/contract"
	"github.com/Klingon-tech/klingnet-recall/pkg/tx"
	"github.com/Klingon-tech/klingnet-recall/pkg/types"
)

const (
	feeRate    = 1
	fundValue  = 100_000
	issueValue = 10
)

func main() {
	dbDir := flag.String("db", "", "Badger directory (default: in-memory)")
	level := flag.String("log-level", "info", "Log level")
	flag.Parse()

	if err := log.Init(*level, false, ""); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := run(*dbDir); err != nil {
		log.Error().Err(err).Msg("Scenario failed")
		os.Exit(1)
	}
	log.Info().Msg("Scenario passed")
}

type runner struct {
	l     *ledger.Ledger
	book  *wallet.Book
	names map[types.PubKey]string
}

func run(dbDir string) error {
	var db storage.DB = storage.NewMemory()
	if dbDir != "" {
		bdb, err := storage.NewBadger(dbDir)
		if err != nil {
			return err
		}
		db = bdb
	}
	defer db.Close()

	tmp, err := os.MkdirTemp("", "recall-scenario-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	book, err := newBook(filepath.Join(tmp, "wallet.json"))
	if err != nil {
		return err
	}

	r := &runner{
		l:     ledger.New(db, ledger.Options{FeeRate: feeRate, Faucet: true, FaucetMax: fundValue}),
		book:  book,
		names: make(map[types.PubKey]string),
	}
	parties := make(map[string]wallet.Party)
	for _, name := range []string{"issuer", "alice", "bob"} {
		p, err := book.AddParty(name)
		if err != nil {
			return err
		}
		parties[name] = p
		r.names[p.PubKey] = name
	}
	issuer, alice, bob := parties["issuer"], parties["alice"], parties["bob"]

	for _, p := range []wallet.Party{issuer, alice} {
		if _, err := r.l.Fund(p.Address, fundValue); err != nil {
			return fmt.Errorf("fund %s: %w", p.Name, err)
		}
	}

	// Issue 10 to the issuer.
	issued, err := r.submit("issue", func() (*tx.Transaction, error) {
		return book.Issue("issuer", contract.KindRecallable, issueValue, r.funding(issuer))
	})
	if err != nil {
		return err
	}
	if err := r.expect("issue", issued, holding{issuer, issueValue}); err != nil {
		return err
	}

	// Issuer sends 7 to Alice and keeps 3.
	split, err := r.submit("transfer issuer->alice", func() (*tx.Transaction, error) {
		return book.Transfer(issued[0], alice.PubKey, 7, r.funding(issuer))
	})
	if err != nil {
		return err
	}
	if err := r.expect("transfer issuer->alice", split, holding{alice, 7}, holding{issuer, 3}); err != nil {
		return err
	}

	// Alice moves all 7 to Bob, so no change instance.
	moved, err := r.submit("transfer alice->bob", func() (*tx.Transaction, error) {
		return book.Transfer(split[0], bob.PubKey, 7, r.funding(alice))
	})
	if err != nil {
		return err
	}
	if err := r.expect("transfer alice->bob", moved, holding{bob, 7}); err != nil {
		return err
	}

	// The issuer takes Bob's 7 back without his signature.
	recalled, err := r.submit("recall", func() (*tx.Transaction, error) {
		return book.Recall(moved[0], r.funding(issuer))
	})
	if err != nil {
		return err
	}
	if err := r.expect("recall", recalled, holding{issuer, 7}); err != nil {
		return err
	}

	info, err := r.l.Info()
	if err != nil {
		return err
	}
	log.Info().
		Uint64("sequence", info.Sequence).
		Int("instances", info.Instances).
		Uint64("locked", info.Locked).
		Str("state_root", info.StateRoot.String()).
		Msg("Final ledger")
	if info.Locked != issueValue {
		return fmt.Errorf("locked value %d, want %d", info.Locked, issueValue)
	}
	return nil
}

func newBook(path string) (*wallet.Book, error) {
	mnemonic, err := wallet.GenerateMnemonic()
	if err != nil {
		return nil, err
	}
	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		return nil, err
	}
	password := []byte("scenario")
	ks := wallet.NewKeystore(path)
	if err := ks.Create(seed, password, wallet.DefaultParams()); err != nil {
		return nil, err
	}
	return ks.Unlock(password)
}

func (r *runner) funding(p wallet.Party) wallet.Funding {
	utxos, err := r.l.CoinsByAddress(p.Address)
	if err != nil {
		log.Warn().Err(err).Str("party", p.Name).Msg("Listing coins")
	}
	coins := make([]wallet.Coin, len(utxos))
	for i, u := range utxos {
		coins[i] = wallet.Coin{Outpoint: u.Outpoint, Value: u.Value}
	}
	return wallet.Funding{Payer: p.Name, Coins: coins, FeeRate: feeRate}
}

// submit builds, submits and returns the instances created by one step.
func (r *runner) submit(step string, build func() (*tx.Transaction, error)) ([]contract.Instance, error) {
	transaction, err := build()
	if err != nil {
		return nil, fmt.Errorf("%s: build: %w", step, err)
	}
	receipt, err := r.l.Submit(transaction)
	if err != nil {
		return nil, fmt.Errorf("%s: submit: %w", step, err)
	}
	log.Info().
		Str("step", step).
		Str("txid", receipt.TxID.String()).
		Uint64("sequence", receipt.Sequence).
		Uint64("fee", receipt.Fee).
		Msg("Accepted")

	if receipt.Record != nil {
		return receipt.Record.Instances(receipt.TxID), nil
	}
	return receipt.Issued, nil
}

type holding struct {
	party wallet.Party
	value uint64
}

// expect checks that got matches want in order and that each instance is
// live in the ledger.
func (r *runner) expect(step string, got []contract.Instance, want ...holding) error {
	if len(got) != len(want) {
		return fmt.Errorf("%s: %d successors, want %d", step, len(got), len(want))
	}
	for i, inst := range got {
		w := want[i]
		if inst.State.Owner != w.party.PubKey || inst.Amount != w.value {
			return fmt.Errorf("%s: successor %d is %s/%d, want %s/%d",
				step, i, r.names[inst.State.Owner], inst.Amount, w.party.Name, w.value)
		}
		live, err := r.l.Instance(inst.Outpoint)
		if err != nil {
			return fmt.Errorf("%s: successor %s: %w", step, inst.Outpoint, err)
		}
		if live.State != inst.State {
			return fmt.Errorf("%s: ledger state of %s differs from receipt", step, inst.Outpoint)
		}
		log.Info().
			Str("step", step).
			Str("outpoint", inst.Outpoint.String()).
			Str("owner", w.party.Name).
			Uint64("value", inst.Amount).
			Msg("Successor")
	}
	return nil
}
