package chain

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// boolType/addressType back the single-argument eth_call encodings below;
// package-level so they are computed once.
var (
	addressType, _ = abi.NewType("address", "", nil)
	boolType, _    = abi.NewType("bool", "", nil)

	isOperatorAllowedSelector = crypto.Keccak256([]byte("isOperatorAllowed(address)"))[:4]
	isOperatorAllowedArgs     = abi.Arguments{{Type: addressType}}
	boolReturn                = abi.Arguments{{Type: boolType}}
)

// Whitelist answers whitelist.Provider by eth_call-ing the preconfer
// whitelist contract's isOperatorAllowed view function, grounded on
// original_source/pacaya/src/chain_monitor/whitelist_monitor.rs's
// is_operator_allowed check.
type Whitelist struct {
	client          *ethclient.Client
	contractAddress common.Address
	operatorAddress common.Address
}

// NewWhitelist constructs a Whitelist checker bound to the L1 whitelist
// contract at contractAddress.
func NewWhitelist(client *ethclient.Client, contractAddress, operatorAddress common.Address) *Whitelist {
	return &Whitelist{client: client, contractAddress: contractAddress, operatorAddress: operatorAddress}
}

// IsOperatorWhitelisted implements whitelist.Provider.
func (w *Whitelist) IsOperatorWhitelisted(ctx context.Context) (bool, error) {
	packedArgs, err := isOperatorAllowedArgs.Pack(w.operatorAddress)
	if err != nil {
		return false, fmt.Errorf("chain: pack isOperatorAllowed args: %w", err)
	}
	data := append(append([]byte{}, isOperatorAllowedSelector...), packedArgs...)

	out, err := w.client.CallContract(ctx, ethereum.CallMsg{To: &w.contractAddress, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("chain: call isOperatorAllowed: %w", err)
	}
	values, err := boolReturn.Unpack(out)
	if err != nil {
		return false, fmt.Errorf("chain: decode isOperatorAllowed result: %w", err)
	}
	return values[0].(bool), nil
}

// L2Balances answers funds.BalanceReader against the L2 execution client.
type L2Balances struct {
	client *ethclient.Client
}

// NewL2Balances constructs an L2Balances reader.
func NewL2Balances(client *ethclient.Client) *L2Balances {
	return &L2Balances{client: client}
}

// GetBalance implements funds.BalanceReader.
func (b *L2Balances) GetBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	return b.client.BalanceAt(ctx, address, nil)
}
