// Package rpcclient is a JSON-RPC 2.0 client for the ledger daemon.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Klingon-tech/klingnet-recall/internal/ledger"
	"github.com/Klingon-tech/klingnet-recall/internal/rpc"
	"github.com/Klingon-tech/klingnet-recall/internal/wallet"
	"github.com/Klingon-tech/klingnet-recall/pkg/contract"
	"github.com/Klingon-tech/klingnet-recall/pkg/tx"
	"github.com/Klingon-tech/klingnet-recall/pkg/types"
)

// Client is a JSON-RPC 2.0 HTTP client.
type Client struct {
	endpoint string
	http     *http.Client
	nextID   atomic.Int64
}

// New creates a client for endpoint with a 10 second timeout.
func New(endpoint string) *Client {
	return NewWithTimeout(endpoint, 10*time.Second)
}

// NewWithTimeout creates a client with a custom HTTP timeout.
func NewWithTimeout(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{endpoint: endpoint, http: &http.Client{Timeout: timeout}}
}

type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      int64       `json:"id"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      int64           `json:"id"`
}

// RPCError is returned when the server responds with an error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// IsContract reports whether the server rejected a contract transition.
func (e *RPCError) IsContract() bool { return e.Code == rpc.CodeContract }

// Call invokes method and decodes the result into result, which may be nil.
func (c *Client) Call(ctx context.Context, method string, params, result interface{}) error {
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

// Info calls ledger_getInfo.
func (c *Client) Info(ctx context.Context) (*rpc.InfoResult, error) {
	var res rpc.InfoResult
	if err := c.Call(ctx, "ledger_getInfo", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Fund calls ledger_fund.
func (c *Client) Fund(ctx context.Context, addr types.Address, value uint64) (types.Outpoint, error) {
	var res rpc.FundResult
	if err := c.Call(ctx, "ledger_fund", rpc.FundParam{Address: addr.String(), Value: value}, &res); err != nil {
		return types.Outpoint{}, err
	}
	return res.Outpoint, nil
}

// Instance calls contract_get.
func (c *Client) Instance(ctx context.Context, op types.Outpoint) (contract.Instance, error) {
	var inst contract.Instance
	err := c.Call(ctx, "contract_get", rpc.OutpointParam{Outpoint: op.String()}, &inst)
	return inst, err
}

// InstancesByOwner calls contract_listByOwner.
func (c *Client) InstancesByOwner(ctx context.Context, owner types.PubKey) ([]contract.Instance, error) {
	var res rpc.InstanceListResult
	if err := c.Call(ctx, "contract_listByOwner", rpc.OwnerParam{Owner: owner.String()}, &res); err != nil {
		return nil, err
	}
	return res.Instances, nil
}

// Coins calls coin_listByAddress and returns the coins in wallet form.
func (c *Client) Coins(ctx context.Context, addr types.Address) ([]wallet.Coin, error) {
	var res rpc.CoinListResult
	if err := c.Call(ctx, "coin_listByAddress", rpc.AddressParam{Address: addr.String()}, &res); err != nil {
		return nil, err
	}
	coins := make([]wallet.Coin, len(res.Coins))
	for i, u := range res.Coins {
		coins[i] = wallet.Coin{Outpoint: u.Outpoint, Value: u.Value}
	}
	return coins, nil
}

// Submit calls tx_submit.
func (c *Client) Submit(ctx context.Context, transaction *tx.Transaction) (*ledger.Receipt, error) {
	var receipt ledger.Receipt
	if err := c.Call(ctx, "tx_submit", rpc.TxParam{Transaction: transaction}, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Validate calls tx_validate. A rejected transaction is reported in the
// result, not as an error.
func (c *Client) Validate(ctx context.Context, transaction *tx.Transaction) (*rpc.TxValidateResult, error) {
	var res rpc.TxValidateResult
	if err := c.Call(ctx, "tx_validate", rpc.TxParam{Transaction: transaction}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
