// Package ledger keeps the set of unspent fee coins and contract instances
// and admits transactions that spend them.
//
// Every admitted transaction is applied in one storage batch: spent
// outputs disappear and new outputs appear together. Admission is
// serialized, so two transactions spending the same instance can never
// both succeed.
package ledger

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-recall/internal/log"
	"github.com/Klingon-tech/klingnet-recall/internal/storage"
	"github.com/Klingon-tech/klingnet-recall/pkg/contract"
	"github.com/Klingon-tech/klingnet-recall/pkg/crypto"
	"github.com/Klingon-tech/klingnet-recall/pkg/tx"
	"github.com/Klingon-tech/klingnet-recall/pkg/types"
)

// Options configures admission policy.
type Options struct {
	FeeRate   uint64 // Minimum fee per signing byte.
	Faucet    bool   // Allow Fund.
	FaucetMax uint64 // Largest coin Fund may create.
}

// Ledger is a single-node UTXO ledger for re-callable tokens.
type Ledger struct {
	mu    sync.Mutex
	db    storage.DB
	store *store
	opts  Options
	log   zerolog.Logger
}

// New opens a ledger over db.
func New(db storage.DB, opts Options) *Ledger {
	return &Ledger{
		db:    db,
		store: newStore(db),
		opts:  opts,
		log:   log.Ledger,
	}
}

// Receipt describes an admitted transaction.
type Receipt struct {
	TxID     types.Hash          `json:"txid"`
	Sequence uint64              `json:"sequence"`
	Fee      uint64              `json:"fee"`
	Record   *contract.Record    `json:"record,omitempty"` // Set for contract calls.
	Issued   []contract.Instance `json:"issued,omitempty"` // Set for issuance.
}

// Info summarizes the ledger.
type Info struct {
	Sequence  uint64     `json:"sequence"`
	Coins     int        `json:"coins"`
	CoinValue uint64     `json:"coin_value"`
	Instances int        `json:"instances"`
	Locked    uint64     `json:"locked"`
	StateRoot types.Hash `json:"state_root"`
	FeeRate   uint64     `json:"fee_rate"`
	Faucet    bool       `json:"faucet"`
}

// plan is a checked transaction ready to commit.
type plan struct {
	receipt *Receipt
	spent   []*UTXO
	created []*UTXO
}

// Submit validates transaction and applies it.
func (l *Ledger) Submit(transaction *tx.Transaction) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer log.Benchmark("ledger.submit")()

	p, err := l.check(transaction)
	if err != nil {
		l.log.Debug().Str("txid", transaction.Hash().String()).Err(err).Msg("Transaction rejected")
		return nil, err
	}
	if err := l.commit(p); err != nil {
		return nil, err
	}

	ev := l.log.Info().
		Str("txid", p.receipt.TxID.String()).
		Uint64("sequence", p.receipt.Sequence).
		Uint64("fee", p.receipt.Fee)
	if rec := p.receipt.Record; rec != nil {
		ev = ev.Str("method", rec.Method.String()).
			Str("spent", rec.Spent.String()).
			Int("successors", len(rec.Successors))

		ilog := log.WithInstance(rec.Spent.String())
		for _, inst := range rec.Instances(p.receipt.TxID) {
			ilog.Debug().
				Str("successor", inst.Outpoint.String()).
				Str("owner", inst.State.Owner.String()).
				Uint64("value", inst.Amount).
				Msg("Successor created")
		}
	}
	if n := len(p.receipt.Issued); n > 0 {
		ev = ev.Int("issued", n)
	}
	ev.Msg("Transaction accepted")
	return p.receipt, nil
}

// Validate runs every admission check without applying the transaction.
func (l *Ledger) Validate(transaction *tx.Transaction) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, err := l.check(transaction)
	if err != nil {
		return nil, err
	}
	return p.receipt, nil
}

// Fund creates a fee coin paying addr out of thin air. Only available when
// the faucet is enabled.
func (l *Ledger) Fund(addr types.Address, value uint64) (types.Outpoint, error) {
	if !l.opts.Faucet {
		return types.Outpoint{}, ErrFaucetDisabled
	}
	if value == 0 || value > l.opts.FaucetMax {
		return types.Outpoint{}, fmt.Errorf("%w: %d not in (0, %d]", ErrFaucetLimit, value, l.opts.FaucetMax)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	seq, err := l.store.sequence()
	if err != nil {
		return types.Outpoint{}, err
	}
	seq++

	var seqBytes [8]byte
	binary.LittleEndian.PutUint64(seqBytes[:], seq)
	op := types.Outpoint{TxID: crypto.TaggedHash("recall/faucet", seqBytes[:], addr[:])}
	coin := &UTXO{Outpoint: op, Value: value, Script: types.P2PKHScript(addr), Sequence: seq}

	b := storage.NewBatch(l.db)
	if err := l.store.stagePut(b, coin); err != nil {
		return types.Outpoint{}, err
	}
	if err := l.store.stageSequence(b, seq); err != nil {
		return types.Outpoint{}, err
	}
	if err := b.Commit(); err != nil {
		return types.Outpoint{}, fmt.Errorf("commit faucet coin: %w", err)
	}

	l.log.Info().Str("address", addr.String()).Uint64("value", value).Str("outpoint", op.String()).Msg("Faucet coin created")
	return op, nil
}

// Instance returns the unspent contract instance at op.
func (l *Ledger) Instance(op types.Outpoint) (*contract.Instance, error) {
	u, err := l.store.get(op)
	if err != nil {
		return nil, err
	}
	inst, err := instanceFromUTXO(u)
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// InstancesByOwner returns every unspent instance currently owned by owner.
func (l *Ledger) InstancesByOwner(owner types.PubKey) ([]contract.Instance, error) {
	utxos, err := l.store.byOwner(owner)
	if err != nil {
		return nil, err
	}
	out := make([]contract.Instance, 0, len(utxos))
	for _, u := range utxos {
		inst, err := instanceFromUTXO(u)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// CoinsByAddress returns every unspent fee coin paying addr.
func (l *Ledger) CoinsByAddress(addr types.Address) ([]*UTXO, error) {
	return l.store.byAddress(addr)
}

// Info scans the ledger and returns its totals.
func (l *Ledger) Info() (*Info, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	info := &Info{FeeRate: l.opts.FeeRate, Faucet: l.opts.Faucet}
	seq, err := l.store.sequence()
	if err != nil {
		return nil, err
	}
	info.Sequence = seq

	err = l.store.forEach(func(u *UTXO) error {
		switch u.Script.Type {
		case types.ScriptTypeState:
			info.Instances++
			info.Locked += u.Value
		default:
			info.Coins++
			info.CoinValue += u.Value
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	root, err := stateRoot(l.store)
	if err != nil {
		return nil, err
	}
	info.StateRoot = root
	return info, nil
}

func instanceFromUTXO(u *UTXO) (contract.Instance, error) {
	state, err := contract.StateFromScript(u.Script)
	if err != nil {
		return contract.Instance{}, fmt.Errorf("outpoint %s: %w", u.Outpoint, err)
	}
	return contract.Instance{Outpoint: u.Outpoint, State: state, Amount: u.Value}, nil
}

// addValue adds v to *sum, failing on overflow.
func addValue(sum *uint64, v uint64) error {
	if *sum > math.MaxUint64-v {
		return fmt.Errorf("value overflow")
	}
	*sum += v
	return nil
}
