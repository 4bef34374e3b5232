package rpc

import (
	"github.com/Klingon-tech/klingnet-recall/internal/ledger"
	"github.com/Klingon-tech/klingnet-recall/pkg/contract"
	"github.com/Klingon-tech/klingnet-recall/pkg/tx"
	"github.com/Klingon-tech/klingnet-recall/pkg/types"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
	CodeRejected       = -32001 // Ledger refused the transaction or faucet request.
	CodeContract       = -32010 // A contract transition rule failed.
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// OutpointParam is used by contract_get. Outpoint is "txid:index".
type OutpointParam struct {
	Outpoint string `json:"outpoint"`
}

// OwnerParam is used by contract_listByOwner.
type OwnerParam struct {
	Owner string `json:"owner"` // Compressed public key, hex.
}

// AddressParam is used by coin_listByAddress.
type AddressParam struct {
	Address string `json:"address"`
}

// FundParam is used by ledger_fund.
type FundParam struct {
	Address string `json:"address"`
	Value   uint64 `json:"value"`
}

// TxParam is used by tx_submit and tx_validate.
type TxParam struct {
	Transaction *tx.Transaction `json:"transaction"`
}

// ── Result types ────────────────────────────────────────────────────────

// InfoResult is returned by ledger_getInfo.
type InfoResult struct {
	Network string `json:"network"`
	ledger.Info
}

// FundResult is returned by ledger_fund.
type FundResult struct {
	Outpoint types.Outpoint `json:"outpoint"`
	Address  types.Address  `json:"address"`
	Value    uint64         `json:"value"`
}

// InstanceListResult is returned by contract_listByOwner.
type InstanceListResult struct {
	Owner     types.PubKey        `json:"owner"`
	Instances []contract.Instance `json:"instances"`
	Total     uint64              `json:"total"`
}

// CoinListResult is returned by coin_listByAddress.
type CoinListResult struct {
	Address types.Address  `json:"address"`
	Coins   []*ledger.UTXO `json:"coins"`
	Total   uint64         `json:"total"`
}

// TxValidateResult is returned by tx_validate. A rejected transaction is
// a successful call with Valid false.
type TxValidateResult struct {
	Valid   bool            `json:"valid"`
	Error   string          `json:"error,omitempty"`
	Code    int             `json:"code,omitempty"`
	Receipt *ledger.Receipt `json:"receipt,omitempty"`
}
