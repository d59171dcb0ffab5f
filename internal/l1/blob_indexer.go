package l1

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
)

// BlobIndexer fetches archived blob bytes by versioned hash once they have
// left the beacon node's retention window, grounded on
// original_source/common/src/l1/blob_indexer.rs.
type BlobIndexer struct {
	client *retryablehttp.Client
	base   *url.URL
}

func NewBlobIndexer(rpcURL string, requestTimeout time.Duration) (*BlobIndexer, error) {
	base, err := url.Parse(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("l1: parse blob indexer url: %w", err)
	}
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 3
	client.HTTPClient.Timeout = requestTimeout
	return &BlobIndexer{client: client, base: base}, nil
}

// GetBlob fetches and hex-decodes the blob bytes for hash.
func (b *BlobIndexer) GetBlob(hash common.Hash) ([]byte, error) {
	u, err := b.base.Parse(fmt.Sprintf("v1/blobs/%s", hash.Hex()))
	if err != nil {
		return nil, fmt.Errorf("l1: join blob indexer path: %w", err)
	}
	resp, err := b.client.Get(u.String())
	if err != nil {
		return nil, fmt.Errorf("l1: blob indexer request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("l1: blob indexer request failed with status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("l1: read blob indexer response: %w", err)
	}
	var v struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("l1: decode blob indexer response: %w", err)
	}
	if v.Data == "" {
		return nil, fmt.Errorf("l1: blob indexer response missing 'data' field")
	}
	decoded, err := hexutil.Decode(v.Data)
	if err != nil {
		return nil, fmt.Errorf("l1: decode hex blob data: %w", err)
	}
	return decoded, nil
}
