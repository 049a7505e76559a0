// Package stellarrpc is the production wallet.Chain implementation: an
// HTTP client against a Stellar-like Horizon/soroban-rpc endpoint, built
// around a bounded-timeout http.Client wrapping each REST call.
package stellarrpc

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/klaytn/kale-pool/internal/errkind"
	"github.com/klaytn/kale-pool/internal/log"
	"github.com/klaytn/kale-pool/wallet"
)

var logger = log.NewModuleLogger(log.Wallet)

// Client is an HTTP-based Chain adapter. It does not sign transactions
// itself in this build; it POSTs the operation parameters to a contract
// invocation endpoint that performs signing and submission server-side.
type Client struct {
	baseURL    string
	passphrase string
	contractID string
	http       *http.Client
}

// New builds a Client against baseURL (a Stellar-like RPC endpoint),
// scoped to a single KALE contract id.
func New(baseURL, networkPassphrase, contractID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = wallet.DefaultOpTimeout
	}
	return &Client{
		baseURL:    baseURL,
		passphrase: networkPassphrase,
		contractID: contractID,
		http:       &http.Client{Timeout: timeout},
	}
}

var _ wallet.Chain = (*Client)(nil)

type invokeRequest struct {
	ContractID string                 `json:"contract_id"`
	Function   string                 `json:"function"`
	SecretKey  string                 `json:"secret_key,omitempty"`
	Args       map[string]interface{} `json:"args"`
}

type invokeResponse struct {
	TxHash string `json:"tx_hash"`
	Error  string `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return errkind.Wrap(errkind.KindPermanentBadRequest, err, "stellarrpc: encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return errkind.Wrap(errkind.KindPermanentBadRequest, err, "stellarrpc: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errkind.Wrap(errkind.KindTransientNetwork, err, "stellarrpc: "+path)
	}
	defer resp.Body.Close()

	raw, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return errkind.Wrap(errkind.KindTransientNetwork, err, "stellarrpc: read response")
	}
	if resp.StatusCode >= 500 {
		return errkind.New(errkind.KindTransientChain, fmt.Sprintf("stellarrpc: %s returned %d: %s", path, resp.StatusCode, raw))
	}
	if resp.StatusCode >= 400 {
		return errkind.New(errkind.KindPermanentBadRequest, fmt.Sprintf("stellarrpc: %s returned %d: %s", path, resp.StatusCode, raw))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return errkind.Wrap(errkind.KindTransientChain, err, "stellarrpc: decode response")
		}
	}
	return nil
}

func (c *Client) invoke(ctx context.Context, secretKey, fn string, args map[string]interface{}) (string, error) {
	var resp invokeResponse
	req := invokeRequest{ContractID: c.contractID, Function: fn, SecretKey: secretKey, Args: args}
	if err := c.post(ctx, "/invoke", req, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", errkind.New(errkind.KindTransientChain, resp.Error)
	}
	return resp.TxHash, nil
}

func (c *Client) Head(ctx context.Context) (wallet.BlockHead, error) {
	var out struct {
		BlockIndex int64  `json:"block_index"`
		Entropy    string `json:"entropy"`
		Timestamp  int64  `json:"timestamp"`
		Plantable  bool   `json:"plantable"`
		MinStake   int64  `json:"min_stake"`
		MaxStake   int64  `json:"max_stake"`
		MinZeros   int    `json:"min_zeros"`
		MaxZeros   int    `json:"max_zeros"`
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ledger/head", nil)
	if err != nil {
		return wallet.BlockHead{}, errkind.Wrap(errkind.KindPermanentBadRequest, err, "stellarrpc: build head request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return wallet.BlockHead{}, errkind.Wrap(errkind.KindTransientNetwork, err, "stellarrpc: load head")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return wallet.BlockHead{}, errkind.New(errkind.KindTransientChain, "stellarrpc: head load failed")
	}
	raw, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return wallet.BlockHead{}, errkind.Wrap(errkind.KindTransientNetwork, err, "stellarrpc: read head response")
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return wallet.BlockHead{}, errkind.Wrap(errkind.KindTransientChain, err, "stellarrpc: decode head response")
	}
	return wallet.BlockHead{
		BlockIndex: out.BlockIndex,
		Entropy:    out.Entropy,
		Timestamp:  time.Unix(out.Timestamp, 0),
		Plantable:  out.Plantable,
		MinStake:   out.MinStake,
		MaxStake:   out.MaxStake,
		MinZeros:   out.MinZeros,
		MaxZeros:   out.MaxZeros,
	}, nil
}

func (c *Client) GenerateWallet(ctx context.Context) (string, string, error) {
	var out struct {
		PublicKey string `json:"public_key"`
		SecretKey string `json:"secret_key"`
	}
	if err := c.post(ctx, "/keypair/new", struct{}{}, &out); err != nil {
		return "", "", err
	}
	return out.PublicKey, out.SecretKey, nil
}

func (c *Client) CheckFunding(ctx context.Context, publicKey string) (wallet.FundingStatus, error) {
	var out struct {
		BalanceStroops int64 `json:"balance_stroops"`
	}
	path := fmt.Sprintf("/accounts/%s", publicKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return wallet.FundingStatus{}, errkind.Wrap(errkind.KindPermanentBadRequest, err, "stellarrpc: build account request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return wallet.FundingStatus{}, errkind.Wrap(errkind.KindTransientNetwork, err, "stellarrpc: load account")
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return wallet.FundingStatus{Balance: 0, IsFunded: false}, nil
	}
	if resp.StatusCode >= 500 {
		return wallet.FundingStatus{}, errkind.New(errkind.KindTransientChain, "stellarrpc: account load failed")
	}
	raw, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return wallet.FundingStatus{}, errkind.Wrap(errkind.KindTransientNetwork, err, "stellarrpc: read account response")
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return wallet.FundingStatus{}, errkind.Wrap(errkind.KindTransientChain, err, "stellarrpc: decode account response")
	}
	return wallet.FundingStatus{
		Balance:  out.BalanceStroops,
		IsFunded: out.BalanceStroops >= wallet.MinFund,
	}, nil
}

func (c *Client) Plant(ctx context.Context, secretKey string, blockIndex int64, stake int64) (string, error) {
	return c.invoke(ctx, secretKey, "plant", map[string]interface{}{
		"block_index": blockIndex,
		"amount":      stake,
	})
}

func (c *Client) Work(ctx context.Context, secretKey string, blockIndex int64, nonce uint64, hash string) (string, error) {
	return c.invoke(ctx, secretKey, "work", map[string]interface{}{
		"block_index": blockIndex,
		"nonce":       nonce,
		"hash":        hash,
	})
}

func (c *Client) Harvest(ctx context.Context, secretKey string, blockIndex int64) (string, int64, error) {
	var resp invokeResponse
	req := invokeRequest{
		ContractID: c.contractID,
		Function:   "harvest",
		SecretKey:  secretKey,
		Args:       map[string]interface{}{"block_index": blockIndex},
	}
	if err := c.post(ctx, "/invoke", req, &resp); err != nil {
		return "", 0, err
	}
	if resp.Error != "" {
		return "", 0, errkind.New(errkind.KindTransientChain, resp.Error)
	}
	var result struct {
		RewardStroops int64 `json:"reward_stroops"`
	}
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return "", 0, errkind.Wrap(errkind.KindTransientChain, err, "stellarrpc: decode harvest result")
		}
	}
	return resp.TxHash, result.RewardStroops, nil
}

func (c *Client) Transfer(ctx context.Context, secretKey string, dest string, amount int64) (string, error) {
	return c.invoke(ctx, secretKey, "transfer", map[string]interface{}{
		"destination": dest,
		"amount":      amount,
	})
}

func (c *Client) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn("health check failed", "err", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// idempotencyKey derives a stable sha256 key from parts. No request this
// client sends carries it, so a replayed call is submitted again.
func idempotencyKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
