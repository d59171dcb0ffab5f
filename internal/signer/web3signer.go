package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// web3SignerRequestTimeout matches the Rust client's SIGNER_TIMEOUT.
const web3SignerRequestTimeout = 10 * time.Second

// web3SignerClient is a thin JSON-RPC client over a web3signer instance's
// eth1 signing endpoint, reusing hashicorp/go-retryablehttp the way
// internal/l1's consensus layer client does.
type web3SignerClient struct {
	client *retryablehttp.Client
	rpcURL string
}

func newWeb3SignerClient(rpcURL string) (*web3SignerClient, error) {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 3
	client.HTTPClient.Timeout = web3SignerRequestTimeout
	return &web3SignerClient{client: client, rpcURL: rpcURL}, nil
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type jsonRPCResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// eth1TxCallObject is the transaction shape web3signer's eth_signTransaction
// expects: an unsigned call object keyed by the `from` address.
type eth1TxCallObject struct {
	From     string `json:"from"`
	To       string `json:"to,omitempty"`
	Gas      string `json:"gas"`
	GasPrice string `json:"gasPrice,omitempty"`
	Value    string `json:"value"`
	Data     string `json:"data"`
	Nonce    string `json:"nonce"`
	ChainID  string `json:"chainId,omitempty"`
}

// signTransaction asks the remote signer to sign tx on behalf of from, and
// returns the decoded, fully-signed transaction.
func (c *web3SignerClient) signTransaction(ctx context.Context, from common.Address, tx *types.Transaction, signer types.Signer) (*types.Transaction, error) {
	var to string
	if tx.To() != nil {
		to = tx.To().Hex()
	}

	call := eth1TxCallObject{
		From:    from.Hex(),
		To:      to,
		Gas:     hexutil.EncodeUint64(tx.Gas()),
		Value:   hexutil.EncodeBig(tx.Value()),
		Data:    hexutil.Encode(tx.Data()),
		Nonce:   hexutil.EncodeUint64(tx.Nonce()),
		ChainID: hexutil.EncodeBig(signer.ChainID()),
	}
	if gasPrice := tx.GasPrice(); gasPrice != nil {
		call.GasPrice = hexutil.EncodeBig(gasPrice)
	}

	reqBody, err := json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_signTransaction",
		Params:  []any{call},
	})
	if err != nil {
		return nil, fmt.Errorf("signer: marshal web3signer request: %w", err)
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, c.rpcURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("signer: build web3signer request: %w", err)
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("signer: web3signer request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("signer: read web3signer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("signer: web3signer request failed with status %s: %s", resp.Status, string(body))
	}

	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("signer: decode web3signer response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("signer: web3signer error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	raw, err := hexutil.Decode(rpcResp.Result)
	if err != nil {
		return nil, fmt.Errorf("signer: decode signed transaction hex: %w", err)
	}

	signedTx := new(types.Transaction)
	if err := signedTx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("signer: unmarshal signed transaction: %w", err)
	}
	return signedTx, nil
}
