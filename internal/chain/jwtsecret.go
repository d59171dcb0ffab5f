package chain

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// LoadJWTSecret reads a hex-encoded 32-byte secret from path, the same format
// go-ethereum's own engine API authentication uses (see node.node_auth_test.go
// in the teacher tree, which writes secrets with hexutil.Encode). Both
// internal/driver and internal/l2engine dial their authenticated RPC
// endpoints with the returned array.
func LoadJWTSecret(path string) ([32]byte, error) {
	var secret [32]byte
	raw, err := os.ReadFile(path)
	if err != nil {
		return secret, fmt.Errorf("chain: read jwt secret file: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(text, "0x") {
		text = "0x" + text
	}
	decoded, err := hexutil.Decode(text)
	if err != nil {
		return secret, fmt.Errorf("chain: decode jwt secret: %w", err)
	}
	if len(decoded) != 32 {
		return secret, fmt.Errorf("chain: jwt secret must be 32 bytes, got %d", len(decoded))
	}
	copy(secret[:], decoded)
	return secret, nil
}
