// Package driver talks to the local L2 driver's preconfBlocks/status HTTP
// API, grounded on
// original_source/common/src/l2/taiko_driver/{mod.rs,config.rs,status_provider_trait.rs}.
package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/golang-jwt/jwt/v4"
)

// OperationType tags a driver call for metrics, per spec.md §4.4.
type OperationType int

const (
	OperationPreconfirm OperationType = iota
	OperationReanchor
	OperationStatus
)

func (o OperationType) String() string {
	switch o {
	case OperationPreconfirm:
		return "preconfirm"
	case OperationReanchor:
		return "reanchor"
	case OperationStatus:
		return "status"
	default:
		return "unknown"
	}
}

// ExecutableData is the payload embedded in a preconfBlocks request, per
// spec.md §4.4.
type ExecutableData struct {
	BaseFee      uint64         `json:"baseFee"`
	BlockNumber  uint64         `json:"blockNumber"`
	ExtraData    [7]byte        `json:"extraData"`
	FeeRecipient common.Address `json:"feeRecipient"`
	GasLimit     uint64         `json:"gasLimit"`
	ParentHash   common.Hash    `json:"parentHash"`
	Timestamp    uint64         `json:"timestamp"`
	Transactions []byte         `json:"transactions"`
}

// BuildPreconfBlockRequest is the preconfBlocks request body.
type BuildPreconfBlockRequest struct {
	ExecutableData    ExecutableData `json:"executableData"`
	EndOfSequencing   bool           `json:"endOfSequencing"`
	IsForcedInclusion bool           `json:"isForcedInclusion"`
}

// BuildPreconfBlockResponse is the driver's confirmation of an accepted
// block.
type BuildPreconfBlockResponse struct {
	Number     uint64      `json:"number"`
	Hash       common.Hash `json:"hash"`
	ParentHash common.Hash `json:"parentHash"`
}

// Status is the driver's sync status, per spec.md §4.4.
type Status struct {
	HighestUnsafeL2PayloadBlockID uint64      `json:"highest_unsafe_l2_payload_block_id"`
	EndOfSequencingBlockHash      common.Hash `json:"end_of_sequencing_block_hash"`
}

// Config bundles a driver connection's dependencies.
type Config struct {
	DriverURL          string
	PreconfCallTimeout time.Duration
	StatusCallTimeout  time.Duration
	JWTSecret          [32]byte
	CallTimeout        time.Duration
}

// Driver is the HTTP client for the local L2 driver.
type Driver struct {
	baseURL            string
	jwtSecret          [32]byte
	preconfCallTimeout time.Duration
	statusCallTimeout  time.Duration
	callTimeout        time.Duration
	httpClient         *http.Client
	log                log.Logger
}

// New constructs a Driver bound to config.DriverURL.
func New(config Config) *Driver {
	return &Driver{
		baseURL:            config.DriverURL,
		jwtSecret:          config.JWTSecret,
		preconfCallTimeout: config.PreconfCallTimeout,
		statusCallTimeout:  config.StatusCallTimeout,
		callTimeout:        config.CallTimeout,
		httpClient:         &http.Client{},
		log:                log.New("component", "taiko_driver"),
	}
}

func (d *Driver) signedToken() (string, error) {
	claims := jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(time.Now())}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(d.jwtSecret[:])
}

func (d *Driver) call(ctx context.Context, method, endpoint string, payload any, timeout time.Duration, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("driver: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+"/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("driver: build request: %w", err)
	}
	token, err := d.signedToken()
	if err != nil {
		return fmt.Errorf("driver: sign jwt: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("driver: call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("driver: read response from %s: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("driver: %s returned status %s: %s", endpoint, resp.Status, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("driver: decode response from %s: %w", endpoint, err)
		}
	}
	return nil
}

// PreconfBlocks submits a built block as the next unsafe head.
func (d *Driver) PreconfBlocks(ctx context.Context, request BuildPreconfBlockRequest, op OperationType) (*BuildPreconfBlockResponse, error) {
	var out BuildPreconfBlockResponse
	if err := d.call(ctx, http.MethodPost, "preconfBlocks", request, d.preconfCallTimeout, &out); err != nil {
		return nil, fmt.Errorf("driver: preconf_blocks (%s): %w", op, err)
	}
	return &out, nil
}

// GetStatus implements StatusProvider.
func (d *Driver) GetStatus(ctx context.Context) (Status, error) {
	var out Status
	if err := d.call(ctx, http.MethodGet, "status", struct{}{}, d.statusCallTimeout, &out); err != nil {
		return Status{}, fmt.Errorf("driver: get_status: %w", err)
	}
	return out, nil
}

// StatusProvider abstracts Driver for the operator role's sync-status check,
// per spec.md's StatusProvider trait.
type StatusProvider interface {
	GetStatus(ctx context.Context) (Status, error)
}
