package wallet

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Klingon-tech/klingnet-recall/pkg/types"
)

// Coin selection errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoCoins           = errors.New("no coins available")
)

// Coin is a P2PKH fee output the payer can spend.
type Coin struct {
	Outpoint types.Outpoint `json:"outpoint"`
	Value    uint64         `json:"value"`
}

// CoinSelection is the result of SelectCoins.
type CoinSelection struct {
	Inputs []Coin
	Total  uint64
	Change uint64 // Total - target.
}

// SelectCoins picks coins worth at least target. It compares the smallest
// single coin that covers target with a largest-first accumulation and
// keeps whichever leaves less change.
func SelectCoins(coins []Coin, target uint64) (*CoinSelection, error) {
	if target == 0 {
		return nil, fmt.Errorf("target must be positive")
	}
	candidates := make([]Coin, 0, len(coins))
	var available uint64
	for _, c := range coins {
		if c.Value > 0 {
			candidates = append(candidates, c)
			available += c.Value
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoCoins
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Value < candidates[j].Value
	})

	var best *CoinSelection
	for _, c := range candidates {
		if c.Value >= target {
			best = &CoinSelection{Inputs: []Coin{c}, Total: c.Value, Change: c.Value - target}
			break
		}
	}

	var total uint64
	for i := len(candidates) - 1; i >= 0; i-- {
		total += candidates[i].Value
		if total < target {
			continue
		}
		if best == nil || total-target < best.Change {
			inputs := make([]Coin, 0, len(candidates)-i)
			for j := len(candidates) - 1; j >= i; j-- {
				inputs = append(inputs, candidates[j])
			}
			best = &CoinSelection{Inputs: inputs, Total: total, Change: total - target}
		}
		break
	}

	if best == nil {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, available, target)
	}
	return best, nil
}

// selectWithFee picks coins covering target plus a fee that grows with the
// number of coin inputs. fee(n) must be non-decreasing in n.
func selectWithFee(coins []Coin, target uint64, fee func(inputs int) uint64) (*CoinSelection, uint64, error) {
	if target == 0 && fee(0) == 0 {
		return &CoinSelection{}, 0, nil
	}
	if len(coins) == 0 {
		return nil, 0, ErrNoCoins
	}
	estimate := fee(1)
	for range len(coins) {
		sel, err := SelectCoins(coins, target+estimate)
		if err != nil {
			return nil, 0, err
		}
		actual := fee(len(sel.Inputs))
		if sel.Total >= target+actual {
			sel.Change = sel.Total - target - actual
			return sel, actual, nil
		}
		estimate = actual
	}
	return nil, 0, fmt.Errorf("%w: fee exceeds available coins", ErrInsufficientFunds)
}
