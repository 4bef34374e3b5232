package tx

import (
	"testing"

	"github.com/Klingon-tech/klingnet-recall/pkg/types"
)

func TestEstimateTxFee(t *testing.T) {
	tests := []struct {
		name                        string
		coinIn, callIn, coinOut, st int
		feeRate                     uint64
		want                        uint64
	}{
		{"zero rate", 1, 1, 1, 2, 0, 0},
		{"issue: 1 coin in, 1 state + change", 1, 0, 1, 1, 1, 20 + 37 + 33 + 80},
		{"transfer with change", 1, 1, 1, 2, 2, (20 + 37 + 79 + 33 + 160) * 2},
		{"recall without fee input", 0, 1, 0, 1, 1, 20 + 79 + 80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateTxFee(tt.coinIn, tt.callIn, tt.coinOut, tt.st, tt.feeRate)
			if got != tt.want {
				t.Errorf("EstimateTxFee = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEstimateTxFee_MatchesRequiredFee(t *testing.T) {
	tx := NewBuilder().
		AddInput(types.Outpoint{TxID: types.Hash{0x01}}).
		AddCallInput(types.Outpoint{TxID: types.Hash{0x02}}, Call{Method: MethodTransfer, Amount: 7}).
		AddOutput(7, types.Script{Type: types.ScriptTypeState, Data: make([]byte, 67)}).
		AddOutput(3, types.Script{Type: types.ScriptTypeState, Data: make([]byte, 67)}).
		AddOutput(100, testP2PKHScript(types.Address{0x01})).
		Build()

	if got, want := EstimateTxFee(1, 1, 1, 2, 3), RequiredFee(tx, 3); got != want {
		t.Errorf("EstimateTxFee = %d, RequiredFee = %d", got, want)
	}
}
