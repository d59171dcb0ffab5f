package l1

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
)

// ConsensusLayer is a thin REST client over the beacon-node API, grounded on
// original_source/common/src/l1/consensus_layer.rs. It reuses
// hashicorp/go-retryablehttp (already present in the teacher's dependency
// graph) instead of a bare net/http.Client so transient 5xx/timeouts from a
// beacon node are retried automatically.
type ConsensusLayer struct {
	client *retryablehttp.Client
	base   *url.URL
}

// NewConsensusLayer requires rpcURL to end in "/", matching the join-path
// precondition the original client enforces.
func NewConsensusLayer(rpcURL string, requestTimeout time.Duration) (*ConsensusLayer, error) {
	if !strings.HasSuffix(rpcURL, "/") {
		return nil, fmt.Errorf("l1: consensus layer URL must end with '/'")
	}
	base, err := url.Parse(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("l1: parse consensus rpc url: %w", err)
	}
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 3
	client.HTTPClient.Timeout = requestTimeout
	return &ConsensusLayer{client: client, base: base}, nil
}

func (c *ConsensusLayer) get(path string) (map[string]any, error) {
	u, err := c.base.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("l1: join consensus path %q: %w", path, err)
	}
	resp, err := c.client.Get(u.String())
	if err != nil {
		return nil, fmt.Errorf("l1: consensus layer request %q: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("l1: consensus layer request %q failed with status %s", path, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("l1: read consensus layer response %q: %w", path, err)
	}
	var v map[string]any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("l1: decode consensus layer response %q: %w", path, err)
	}
	return v, nil
}

// GetGenesisTime fetches the beacon genesis_time, used to seed the slot
// clock.
func (c *ConsensusLayer) GetGenesisTime() (uint64, error) {
	v, err := c.get("eth/v1/beacon/genesis")
	if err != nil {
		return 0, err
	}
	data, _ := v["data"].(map[string]any)
	s, _ := data["genesis_time"].(string)
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("l1: get_genesis_time: missing or invalid genesis_time field: %w", err)
	}
	return n, nil
}

// GetHeadSlotNumber fetches the current beacon-chain head slot.
func (c *ConsensusLayer) GetHeadSlotNumber() (uint64, error) {
	v, err := c.get("eth/v1/beacon/headers/head")
	if err != nil {
		return 0, err
	}
	data, _ := v["data"].(map[string]any)
	header, _ := data["header"].(map[string]any)
	message, _ := header["message"].(map[string]any)
	slotStr, _ := message["slot"].(string)
	n, err := strconv.ParseUint(slotStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("l1: get_head_slot_number: slot is not a numeric string: %w", err)
	}
	return n, nil
}

// GetValidatorsForEpoch fetches proposer-duty validator pubkeys for epoch.
func (c *ConsensusLayer) GetValidatorsForEpoch(epoch uint64) ([]string, error) {
	v, err := c.get(fmt.Sprintf("eth/v1/validator/duties/proposer/%d", epoch))
	if err != nil {
		return nil, err
	}
	data, ok := v["data"].([]any)
	if !ok {
		return nil, fmt.Errorf("l1: get_validators_for_epoch: invalid response body: `data` is not an array")
	}
	validators := make([]string, 0, len(data))
	for _, entry := range data {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		pubkey, ok := m["pubkey"].(string)
		if !ok {
			return nil, fmt.Errorf("l1: get_validators_for_epoch: array element missing `pubkey`")
		}
		validators = append(validators, pubkey)
	}
	return validators, nil
}

// GetBlobSidecars fetches the beacon blob sidecars for slot.
func (c *ConsensusLayer) GetBlobSidecars(slot uint64) (map[string]any, error) {
	return c.get(fmt.Sprintf("eth/v1/beacon/blob_sidecars/%d", slot))
}
