package chain

import (
	"context"
	"fmt"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	isRouterSpecifiedSelector = crypto.Keccak256([]byte("isPreconfRouterSpecified()"))[:4]
	operatorsForEpochSelector = crypto.Keccak256([]byte("getOperatorsForEpoch(uint64)"))[:4]
	handoverWindowSelector    = crypto.Keccak256([]byte("getHandoverWindowSlots()"))[:4]
	lastBlockIDSelector       = crypto.Keccak256([]byte("getLastBlockId()"))[:4]

	boolReturnArgs = abi.Arguments{{Type: boolType}}
	epochArgs      = abi.Arguments{{Type: uint64Type}}
	operatorsReturn = abi.Arguments{
		{Name: "current", Type: addressType},
		{Name: "next", Type: addressType},
	}
)

// PreconfRouter answers operator.PreconfOperator and verifier.InboxReader by
// eth_call-ing the L1 preconf router and inbox contracts, grounded on
// original_source/pacaya/src/node/operator/mod.rs's PreconfOperator trait.
// Its selectors are a documented simplification of the real router/inbox
// ABIs; see DESIGN.md.
type PreconfRouter struct {
	client           *ethclient.Client
	routerAddress    common.Address
	inboxAddress     common.Address
	preconferAddress common.Address
}

// NewPreconfRouter constructs a PreconfRouter.
func NewPreconfRouter(client *ethclient.Client, routerAddress, inboxAddress, preconferAddress common.Address) *PreconfRouter {
	return &PreconfRouter{client: client, routerAddress: routerAddress, inboxAddress: inboxAddress, preconferAddress: preconferAddress}
}

func (r *PreconfRouter) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return r.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// IsPreconfRouterSpecified implements operator.PreconfOperator.
func (r *PreconfRouter) IsPreconfRouterSpecified(ctx context.Context) (bool, error) {
	out, err := r.call(ctx, r.routerAddress, isRouterSpecifiedSelector)
	if err != nil {
		return false, fmt.Errorf("chain: call isPreconfRouterSpecified: %w", err)
	}
	values, err := boolReturnArgs.Unpack(out)
	if err != nil {
		return false, fmt.Errorf("chain: decode isPreconfRouterSpecified: %w", err)
	}
	return values[0].(bool), nil
}

// GetOperatorsForCurrentAndNextEpoch implements operator.PreconfOperator.
func (r *PreconfRouter) GetOperatorsForCurrentAndNextEpoch(ctx context.Context, epochBeginTimestamp uint64) (common.Address, common.Address, error) {
	packed, err := epochArgs.Pack(epochBeginTimestamp)
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("chain: pack getOperatorsForEpoch args: %w", err)
	}
	out, err := r.call(ctx, r.routerAddress, append(append([]byte{}, operatorsForEpochSelector...), packed...))
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("chain: call getOperatorsForEpoch: %w", err)
	}
	values, err := operatorsReturn.Unpack(out)
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("chain: decode getOperatorsForEpoch: %w", err)
	}
	return values[0].(common.Address), values[1].(common.Address), nil
}

// GetHandoverWindowSlots implements operator.PreconfOperator.
func (r *PreconfRouter) GetHandoverWindowSlots(ctx context.Context) (uint64, error) {
	out, err := r.call(ctx, r.routerAddress, handoverWindowSelector)
	if err != nil {
		return 0, fmt.Errorf("chain: call getHandoverWindowSlots: %w", err)
	}
	values, err := uint64Return.Unpack(out)
	if err != nil {
		return 0, fmt.Errorf("chain: decode getHandoverWindowSlots: %w", err)
	}
	return values[0].(uint64), nil
}

// GetL2HeightFromTaikoInbox implements operator.PreconfOperator.
func (r *PreconfRouter) GetL2HeightFromTaikoInbox(ctx context.Context) (uint64, error) {
	return r.GetLastBlockID(ctx)
}

// GetLastBlockID implements verifier.InboxReader.
func (r *PreconfRouter) GetLastBlockID(ctx context.Context) (uint64, error) {
	out, err := r.call(ctx, r.inboxAddress, lastBlockIDSelector)
	if err != nil {
		return 0, fmt.Errorf("chain: call getLastBlockId: %w", err)
	}
	values, err := uint64Return.Unpack(out)
	if err != nil {
		return 0, fmt.Errorf("chain: decode getLastBlockId: %w", err)
	}
	return values[0].(uint64), nil
}

// PreconferAddress implements operator.PreconfOperator.
func (r *PreconfRouter) PreconferAddress() common.Address { return r.preconferAddress }
