package wallet

import (
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingnet-recall/internal/log"
	"github.com/Klingon-tech/klingnet-recall/pkg/contract"
	"github.com/Klingon-tech/klingnet-recall/pkg/crypto"
	"github.com/Klingon-tech/klingnet-recall/pkg/tx"
	"github.com/Klingon-tech/klingnet-recall/pkg/types"
)

// KeyResolver maps party names to public keys.
type KeyResolver interface {
	PublicKey(party string) (types.PubKey, error)
}

var _ KeyResolver = (*Book)(nil)

// Book is an unlocked wallet. It resolves parties to keys and builds signed
// issue, transfer and recall transactions.
type Book struct {
	mu     sync.Mutex
	ks     *Keystore
	master *HDKey
}

// AddParty derives a key at the next unused index and records it under name.
func (b *Book) AddParty(name string) (Party, error) {
	if name == "" {
		return Party{}, fmt.Errorf("party name must not be empty")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	kf, err := b.ks.read()
	if err != nil {
		return Party{}, err
	}
	if _, ok := kf.party(name); ok {
		return Party{}, fmt.Errorf("%w: %q", ErrPartyExists, name)
	}
	key, err := b.master.DeriveParty(kf.NextIndex)
	if err != nil {
		return Party{}, err
	}
	p := Party{Name: name, Index: kf.NextIndex, PubKey: key.PubKey(), Address: key.Address()}
	kf.Parties = append(kf.Parties, p)
	kf.NextIndex++
	if err := b.ks.write(kf); err != nil {
		return Party{}, err
	}

	log.Wallet.Info().Str("party", name).Uint32("index", p.Index).Str("address", p.Address.String()).Msg("Party added")
	return p, nil
}

// Party returns the named party.
func (b *Book) Party(name string) (Party, error) {
	return b.ks.Party(name)
}

// Parties lists every party in the wallet.
func (b *Book) Parties() ([]Party, error) {
	return b.ks.Parties()
}

// PublicKey returns the public key of the named party.
func (b *Book) PublicKey(party string) (types.PubKey, error) {
	p, err := b.ks.Party(party)
	if err != nil {
		return types.PubKey{}, err
	}
	return p.PubKey, nil
}

// Signer returns the private key of the named party.
func (b *Book) Signer(party string) (*crypto.PrivateKey, error) {
	p, err := b.ks.Party(party)
	if err != nil {
		return nil, err
	}
	return b.signer(p)
}

// signerFor returns the private key behind pub, if a party holds it.
func (b *Book) signerFor(pub types.PubKey) (*crypto.PrivateKey, error) {
	parties, err := b.ks.Parties()
	if err != nil {
		return nil, err
	}
	for _, p := range parties {
		if p.PubKey == pub {
			return b.signer(p)
		}
	}
	return nil, fmt.Errorf("%w: no party holds key %s", ErrUnknownParty, pub)
}

func (b *Book) signer(p Party) (*crypto.PrivateKey, error) {
	key, err := b.master.DeriveParty(p.Index)
	if err != nil {
		return nil, err
	}
	if key.PubKey() != p.PubKey {
		return nil, fmt.Errorf("party %q: stored key does not match derivation", p.Name)
	}
	return key.Signer()
}

// Funding names who pays the fee and with which coins.
type Funding struct {
	Payer   string
	Coins   []Coin
	FeeRate uint64
}

// Issue builds a transaction locking value under a new instance of kind
// owned by issuer. The issuer's coins pay for the value and the fee.
func (b *Book) Issue(issuer string, kind contract.Kind, value uint64, f Funding) (*tx.Transaction, error) {
	if value == 0 {
		return nil, fmt.Errorf("%w: issue value must be positive", contract.ErrInvalidAmount)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %s", contract.ErrUnknownKind, kind)
	}
	pub, err := b.PublicKey(issuer)
	if err != nil {
		return nil, err
	}
	payer, err := b.Party(f.Payer)
	if err != nil {
		return nil, err
	}

	sel, _, err := selectWithFee(f.Coins, value, func(n int) uint64 {
		return tx.EstimateTxFee(n, 0, 1, 1, f.FeeRate)
	})
	if err != nil {
		return nil, fmt.Errorf("fund issuance: %w", err)
	}

	builder := tx.NewBuilder()
	for _, c := range sel.Inputs {
		builder.AddInput(c.Outpoint)
	}
	builder.AddOutput(value, contract.NewState(kind, pub).LockingScript())
	if sel.Change > 0 {
		builder.AddOutput(sel.Change, types.P2PKHScript(payer.Address))
	}
	return b.signCoins(builder, payer)
}

// Transfer builds a transfer of amount from inst to recipient, signed by
// the instance owner.
func (b *Book) Transfer(inst contract.Instance, recipient types.PubKey, amount uint64, f Funding) (*tx.Transaction, error) {
	if amount == 0 || amount > inst.Amount {
		return nil, fmt.Errorf("%w: %d not in (0, %d]", contract.ErrInvalidAmount, amount, inst.Amount)
	}
	call := tx.Call{Method: tx.MethodTransfer, Recipient: recipient, Amount: amount}
	states := 1
	if amount < inst.Amount {
		states = 2
	}
	return b.buildCall(inst, inst.State.Owner, call, states, f, func(change *tx.Output) []tx.Output {
		return contract.TransferOutputs(inst.State, inst.Amount, amount, recipient, change)
	})
}

// Recall builds a recall of inst back to its issuer, signed by the issuer.
func (b *Book) Recall(inst contract.Instance, f Funding) (*tx.Transaction, error) {
	call := tx.Call{Method: tx.MethodRecall}
	return b.buildCall(inst, inst.State.Issuer, call, 1, f, func(change *tx.Output) []tx.Output {
		return contract.RecallOutputs(inst.State, inst.Amount, change)
	})
}

// buildCall funds, assembles and signs a call transaction. derive returns
// the successor outputs followed by the fee change, if any.
func (b *Book) buildCall(inst contract.Instance, authority types.PubKey, call tx.Call, states int, f Funding, derive func(change *tx.Output) []tx.Output) (*tx.Transaction, error) {
	signer, err := b.signerFor(authority)
	if err != nil {
		return nil, err
	}
	payer, err := b.Party(f.Payer)
	if err != nil {
		return nil, err
	}

	sel, _, err := selectWithFee(f.Coins, 0, func(n int) uint64 {
		return tx.EstimateTxFee(n, 1, 1, states, f.FeeRate)
	})
	if err != nil {
		return nil, fmt.Errorf("fund %s: %w", call.Method, err)
	}

	var change *tx.Output
	if sel.Change > 0 {
		change = &tx.Output{Value: sel.Change, Script: types.P2PKHScript(payer.Address)}
	}
	outputs := derive(change)

	builder := tx.NewBuilder().AddCallInput(inst.Outpoint, call)
	for _, c := range sel.Inputs {
		builder.AddInput(c.Outpoint)
	}
	builder.AddOutputs(outputs...)

	sig, err := contract.SignCall(signer, inst, call.Method, tx.HashOutputs(outputs))
	if err != nil {
		return nil, err
	}
	if err := builder.SetCallSignature(sig); err != nil {
		return nil, err
	}
	return b.signCoins(builder, payer)
}

func (b *Book) signCoins(builder *tx.Builder, payer Party) (*tx.Transaction, error) {
	key, err := b.signer(payer)
	if err != nil {
		return nil, err
	}
	if err := builder.Sign(key); err != nil {
		return nil, err
	}
	return builder.Build(), nil
}
