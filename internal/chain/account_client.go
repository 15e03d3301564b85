package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"poolScope/internal/model"
)

// AccountClient is a minimal JSON-RPC 2.0 client for account-model chain
// endpoints. Only the read methods the adapter needs are implemented.
type AccountClient struct {
	endpoint   string
	commitment string
	httpClient *http.Client
}

// NewAccountClient creates a client for the given RPC endpoint. Deadlines
// come from the caller's context.
func NewAccountClient(endpoint string) *AccountClient {
	return &AccountClient{
		endpoint:   endpoint,
		commitment: "confirmed",
		httpClient: &http.Client{},
	}
}

// WithCommitment overrides the default commitment level.
func (c *AccountClient) WithCommitment(level string) *AccountClient {
	c.commitment = level
	return c
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

func (c *AccountClient) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ClassifyRPCError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d", model.ErrChainUnreachable, method, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ClassifyRPCError(err)
	}

	var envelope rpcResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("%w: invalid %s response: %v", model.ErrChainUnreachable, method, err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("%w: %s: %v", model.ErrChainUnreachable, method, envelope.Error)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("%w: invalid %s result: %v", model.ErrChainUnreachable, method, err)
		}
	}
	return nil
}

type accountValue struct {
	Data     []string `json:"data"`
	Owner    string   `json:"owner"`
	Lamports uint64   `json:"lamports"`
}

type rpcContext struct {
	Slot uint64 `json:"slot"`
}

type accountInfoResult struct {
	Context rpcContext    `json:"context"`
	Value   *accountValue `json:"value"`
}

type multipleAccountsResult struct {
	Context rpcContext      `json:"context"`
	Value   []*accountValue `json:"value"`
}

func (c *AccountClient) encodingParams() map[string]string {
	return map[string]string{
		"encoding":   "base64",
		"commitment": c.commitment,
	}
}

// AccountData returns the raw data of one account plus the slot the read
// was served at. A missing account is ErrAccountNotFound.
func (c *AccountClient) AccountData(ctx context.Context, pubkey string) ([]byte, uint64, error) {
	var res accountInfoResult
	if err := c.call(ctx, "getAccountInfo", []interface{}{pubkey, c.encodingParams()}, &res); err != nil {
		return nil, 0, err
	}
	if res.Value == nil {
		return nil, res.Context.Slot, fmt.Errorf("%w: account %s", model.ErrAccountNotFound, pubkey)
	}
	data, err := decodeAccountData(res.Value.Data)
	if err != nil {
		return nil, res.Context.Slot, err
	}
	return data, res.Context.Slot, nil
}

// MultipleAccountData returns the raw data of several accounts in one
// round trip, in request order. Any missing account fails the whole read
// with ErrAccountNotFound.
func (c *AccountClient) MultipleAccountData(ctx context.Context, pubkeys []string) ([][]byte, uint64, error) {
	var res multipleAccountsResult
	if err := c.call(ctx, "getMultipleAccounts", []interface{}{pubkeys, c.encodingParams()}, &res); err != nil {
		return nil, 0, err
	}
	if len(res.Value) != len(pubkeys) {
		return nil, res.Context.Slot, fmt.Errorf("%w: getMultipleAccounts returned %d values for %d keys",
			model.ErrChainUnreachable, len(res.Value), len(pubkeys))
	}
	out := make([][]byte, len(res.Value))
	for i, v := range res.Value {
		if v == nil {
			return nil, res.Context.Slot, fmt.Errorf("%w: account %s", model.ErrAccountNotFound, pubkeys[i])
		}
		data, err := decodeAccountData(v.Data)
		if err != nil {
			return nil, res.Context.Slot, err
		}
		out[i] = data
	}
	return out, res.Context.Slot, nil
}

// Slot returns the current slot at the configured commitment.
func (c *AccountClient) Slot(ctx context.Context) (uint64, error) {
	var slot uint64
	params := []interface{}{map[string]string{"commitment": c.commitment}}
	if err := c.call(ctx, "getSlot", params, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

func decodeAccountData(field []string) ([]byte, error) {
	if len(field) != 2 || field[1] != "base64" {
		return nil, fmt.Errorf("%w: unexpected account data encoding", model.ErrChainUnreachable)
	}
	data, err := base64.StdEncoding.DecodeString(field[0])
	if err != nil {
		return nil, fmt.Errorf("%w: account data is not valid base64: %v", model.ErrChainUnreachable, err)
	}
	return data, nil
}
