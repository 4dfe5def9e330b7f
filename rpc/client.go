// Package rpc implements ledger.AccountReader against a node's JSON-RPC
// endpoint. Failures are classified into the ledger error taxonomy, so the
// fetcher above it knows what is worth retrying.
package rpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/jet-lab/lookup-table-registry-go/ledger"
	"github.com/jet-lab/lookup-table-registry-go/solana"
)

// DefaultTimeout bounds a single request when the caller's context carries no
// earlier deadline.
const DefaultTimeout = 30 * time.Second

// Commitment selects how finalized the queried ledger state must be.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// JSON-RPC error codes that mean the request itself was unacceptable.
// Repeating such a request verbatim cannot succeed.
const (
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// Client reads accounts from a single node over JSON-RPC.
type Client struct {
	log        zerolog.Logger
	endpoint   string
	commitment Commitment
	client     *http.Client
	requestID  *atomic.Uint64
}

var _ ledger.AccountReader = (*Client)(nil)

type Option func(*Client)

// WithCommitment selects the commitment level for reads. The default is
// confirmed.
func WithCommitment(commitment Commitment) Option {
	return func(c *Client) {
		c.commitment = commitment
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a JSON-RPC client for the node at endpoint.
func NewClient(log zerolog.Logger, endpoint string, opts ...Option) *Client {
	client := &Client{
		log:        log.With().Str("component", "rpc_client").Str("endpoint", endpoint).Logger(),
		endpoint:   endpoint,
		commitment: CommitmentConfirmed,
		client:     &http.Client{Timeout: DefaultTimeout},
		requestID:  atomic.NewUint64(0),
	}
	for _, apply := range opts {
		apply(client)
	}
	return client
}

type request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *responseError  `json:"error"`
}

type responseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type contextSlot struct {
	Slot uint64 `json:"slot"`
}

type accountOpts struct {
	Encoding   string `json:"encoding"`
	Commitment string `json:"commitment"`
}

type accountInfoResult struct {
	Context contextSlot   `json:"context"`
	Value   *accountValue `json:"value"`
}

type multipleAccountsResult struct {
	Context contextSlot     `json:"context"`
	Value   []*accountValue `json:"value"`
}

// accountValue is the wire form of an account; data is a base64 payload and
// encoding tag pair.
type accountValue struct {
	Data     []string `json:"data"`
	Owner    string   `json:"owner"`
	Lamports uint64   `json:"lamports"`
}

// GetAccount reads one account via getAccountInfo.
//
// Expected errors:
//   - ledger.ErrAccountNotFound (wrapped) if no account exists at the address
//   - ledger.TransientError if the node could not serve the read right now
//   - ledger.NodeRejectedError if the node rejected the request as invalid
func (c *Client) GetAccount(ctx context.Context, address solana.PublicKey) (*ledger.Account, uint64, error) {
	params := []interface{}{
		address.String(),
		accountOpts{Encoding: "base64", Commitment: string(c.commitment)},
	}

	var result accountInfoResult
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, 0, err
	}

	if result.Value == nil {
		return nil, result.Context.Slot, fmt.Errorf("account %s: %w", address, ledger.ErrAccountNotFound)
	}
	account, err := result.Value.decode()
	if err != nil {
		return nil, 0, err
	}
	return account, result.Context.Slot, nil
}

// GetMultipleAccounts reads up to ledger.MaxBatchSize accounts in one
// getMultipleAccounts call. Missing accounts come back as nil entries in the
// same positions.
//
// Expected errors:
//   - ledger.TransientError if the node could not serve the read right now
//   - ledger.NodeRejectedError if the request was invalid, including batches
//     above the node's limit
func (c *Client) GetMultipleAccounts(ctx context.Context, addresses []solana.PublicKey) ([]*ledger.Account, uint64, error) {
	if len(addresses) == 0 {
		return nil, 0, nil
	}
	if len(addresses) > ledger.MaxBatchSize {
		return nil, 0, ledger.NewNodeRejectedError(codeInvalidParams,
			fmt.Sprintf("cannot request %d accounts at once, limit is %d", len(addresses), ledger.MaxBatchSize))
	}

	encoded := make([]string, 0, len(addresses))
	for _, address := range addresses {
		encoded = append(encoded, address.String())
	}
	params := []interface{}{
		encoded,
		accountOpts{Encoding: "base64", Commitment: string(c.commitment)},
	}

	var result multipleAccountsResult
	if err := c.call(ctx, "getMultipleAccounts", params, &result); err != nil {
		return nil, 0, err
	}

	if len(result.Value) != len(addresses) {
		return nil, 0, ledger.NewTransientError(
			fmt.Errorf("node returned %d accounts for %d addresses", len(result.Value), len(addresses)))
	}
	accounts := make([]*ledger.Account, len(addresses))
	for i, value := range result.Value {
		if value == nil {
			continue
		}
		account, err := value.decode()
		if err != nil {
			return nil, 0, err
		}
		accounts[i] = account
	}
	return accounts, result.Context.Slot, nil
}

// GetHealth asks the node for its own health. It returns nil when the node
// reports itself healthy and a ledger.TransientError otherwise.
func (c *Client) GetHealth(ctx context.Context) error {
	var status string
	if err := c.call(ctx, "getHealth", nil, &status); err != nil {
		return err
	}
	if status != "ok" {
		return ledger.NewTransientError(fmt.Errorf("node reported health %q", status))
	}
	return nil
}

// call performs one JSON-RPC request and decodes its result into result.
func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      c.requestID.Inc(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("could not encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("could not create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		// surface the caller's own cancellation as such, not as a node fault
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return ledger.NewTransientError(fmt.Errorf("%s request failed: %w", method, err))
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", method).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("rpc call completed")

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return ledger.NewTransientError(fmt.Errorf("%s returned HTTP %d", method, resp.StatusCode))
		}
		return ledger.NewNodeRejectedError(resp.StatusCode, fmt.Sprintf("%s returned HTTP %d", method, resp.StatusCode))
	}

	var envelope response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return ledger.NewTransientError(fmt.Errorf("could not decode %s response: %w", method, err))
	}
	if envelope.Error != nil {
		return classifyRPCError(method, envelope.Error)
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return ledger.NewTransientError(fmt.Errorf("could not decode %s result: %w", method, err))
	}
	return nil
}

// classifyRPCError maps a node error onto the ledger taxonomy. Malformed
// requests are permanent; every other node condition may clear on its own.
func classifyRPCError(method string, rpcErr *responseError) error {
	switch rpcErr.Code {
	case codeInvalidRequest, codeMethodNotFound, codeInvalidParams:
		return ledger.NewNodeRejectedError(rpcErr.Code, rpcErr.Message)
	default:
		return ledger.NewTransientError(fmt.Errorf("%s failed with code %d: %s", method, rpcErr.Code, rpcErr.Message))
	}
}

// decode converts the wire form into a ledger.Account.
func (v *accountValue) decode() (*ledger.Account, error) {
	if len(v.Data) != 2 || v.Data[1] != "base64" {
		return nil, ledger.NewTransientError(fmt.Errorf("unexpected account data encoding %v", v.Data))
	}
	data, err := base64.StdEncoding.DecodeString(v.Data[0])
	if err != nil {
		return nil, ledger.NewTransientError(fmt.Errorf("could not decode account data: %w", err))
	}
	owner, err := solana.PublicKeyFromBase58(v.Owner)
	if err != nil {
		return nil, ledger.NewTransientError(fmt.Errorf("could not decode account owner: %w", err))
	}
	return &ledger.Account{
		Data:     data,
		Owner:    owner,
		Lamports: v.Lamports,
	}, nil
}
