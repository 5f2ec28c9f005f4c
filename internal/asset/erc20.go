package asset

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// erc20ABI is the minimal fragment the custodian needs: staking pulls
// principal in with transferFrom (owners approve the custody account first)
// and pays it back out with transfer.
const erc20ABI = `[
	{"name":"transfer","type":"function","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"transferFrom","type":"function","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// Custodian implements domain.AssetTransferor against on-chain ERC-20
// contracts, moving principal between position owners and the custody
// account.
type Custodian struct {
	wallet *Wallet
	abi    abi.ABI
}

// NewCustodian creates a Custodian that transacts from the given wallet.
func NewCustodian(wallet *Wallet) (*Custodian, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("asset: parse erc20 abi: %w", err)
	}
	return &Custodian{wallet: wallet, abi: parsed}, nil
}

// Pull moves principal from the owner into custody via transferFrom. The
// owner must have approved the custody account for at least amount.
func (c *Custodian) Pull(ctx context.Context, tokenAddr, from common.Address, amount *big.Int) error {
	data, err := c.abi.Pack("transferFrom", from, c.wallet.Address(), amount)
	if err != nil {
		return fmt.Errorf("asset: pack transferFrom: %w", err)
	}
	if err := c.wallet.sendAndWait(ctx, tokenAddr, nil, data); err != nil {
		return fmt.Errorf("asset: pull %s from %s: %w", amount, from.Hex(), err)
	}
	return nil
}

// Release returns principal from custody to the owner via transfer.
func (c *Custodian) Release(ctx context.Context, tokenAddr, to common.Address, amount *big.Int) error {
	data, err := c.abi.Pack("transfer", to, amount)
	if err != nil {
		return fmt.Errorf("asset: pack transfer: %w", err)
	}
	if err := c.wallet.sendAndWait(ctx, tokenAddr, nil, data); err != nil {
		return fmt.Errorf("asset: release %s to %s: %w", amount, to.Hex(), err)
	}
	return nil
}
