package rpc

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-recall/internal/ledger"
	"github.com/Klingon-tech/klingnet-recall/pkg/contract"
	"github.com/Klingon-tech/klingnet-recall/pkg/types"
)

// contractErrors are reported with CodeContract.
var contractErrors = []error{
	contract.ErrAuthorization,
	contract.ErrOwnershipRule,
	contract.ErrInvalidAmount,
	contract.ErrOutputMismatch,
	contract.ErrSuperseded,
	contract.ErrRecallDisabled,
	contract.ErrUnknownKind,
	contract.ErrUnknownMethod,
	contract.ErrInvalidState,
	contract.ErrInvalidContext,
}

// rejection maps a ledger error to its RPC error code.
func rejection(err error) *Error {
	for _, target := range contractErrors {
		if errors.Is(err, target) {
			return &Error{Code: CodeContract, Message: err.Error()}
		}
	}
	return &Error{Code: CodeRejected, Message: err.Error()}
}

// ── Ledger endpoints ────────────────────────────────────────────────────

func (s *Server) handleLedgerGetInfo(_ *Request) (interface{}, *Error) {
	info, err := s.ledger.Info()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("ledger info: %v", err)}
	}
	return &InfoResult{Network: string(s.network), Info: *info}, nil
}

func (s *Server) handleLedgerFund(req *Request) (interface{}, *Error) {
	var params FundParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, addrErr := decodeAddress(params.Address)
	if addrErr != nil {
		return nil, addrErr
	}

	op, err := s.ledger.Fund(addr, params.Value)
	if err != nil {
		return nil, rejection(err)
	}
	return &FundResult{Outpoint: op, Address: addr, Value: params.Value}, nil
}

// ── Contract endpoints ──────────────────────────────────────────────────

func (s *Server) handleContractGet(req *Request) (interface{}, *Error) {
	var params OutpointParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	op, err := types.ParseOutpoint(params.Outpoint)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}

	inst, err := s.ledger.Instance(op)
	switch {
	case errors.Is(err, ledger.ErrInputNotFound):
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("instance %s not found", op)}
	case err != nil:
		// The outpoint holds a fee coin, not a contract.
		return nil, &Error{Code: CodeNotFound, Message: err.Error()}
	}
	return inst, nil
}

func (s *Server) handleContractListByOwner(req *Request) (interface{}, *Error) {
	var params OwnerParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	owner, err := types.HexToPubKey(params.Owner)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid owner: " + err.Error()}
	}

	instances, err := s.ledger.InstancesByOwner(owner)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("list instances: %v", err)}
	}
	result := &InstanceListResult{Owner: owner, Instances: instances}
	for _, inst := range instances {
		result.Total += inst.Amount
	}
	return result, nil
}

// ── Coin endpoints ──────────────────────────────────────────────────────

func (s *Server) handleCoinListByAddress(req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, addrErr := decodeAddress(params.Address)
	if addrErr != nil {
		return nil, addrErr
	}

	coins, err := s.ledger.CoinsByAddress(addr)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("list coins: %v", err)}
	}
	result := &CoinListResult{Address: addr, Coins: coins}
	for _, c := range coins {
		result.Total += c.Value
	}
	return result, nil
}

// ── Transaction endpoints ───────────────────────────────────────────────

func (s *Server) handleTxSubmit(req *Request) (interface{}, *Error) {
	var params TxParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Transaction == nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "transaction is required"}
	}

	receipt, err := s.ledger.Submit(params.Transaction)
	if err != nil {
		return nil, rejection(err)
	}
	return receipt, nil
}

func (s *Server) handleTxValidate(req *Request) (interface{}, *Error) {
	var params TxParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Transaction == nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "transaction is required"}
	}

	receipt, err := s.ledger.Validate(params.Transaction)
	if err != nil {
		rej := rejection(err)
		return &TxValidateResult{Valid: false, Error: rej.Message, Code: rej.Code}, nil
	}
	return &TxValidateResult{Valid: true, Receipt: receipt}, nil
}

// decodeAddress parses an address param into a types.Address.
func decodeAddress(s string) (types.Address, *Error) {
	if s == "" {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: "address is required"}
	}
	addr, err := types.ParseAddress(s)
	if err != nil {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: "invalid address: " + err.Error()}
	}
	return addr, nil
}
