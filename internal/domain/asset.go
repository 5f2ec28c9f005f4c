package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AssetTransferor moves ERC20-style balances between external wallets and
// the service's custody account. Implementations report rejected movements
// (insufficient balance or allowance) by wrapping ErrTransferFailed.
type AssetTransferor interface {
	// Pull moves amount of the token at addr from the holder's wallet into
	// custody. The holder must have approved the custody account beforehand.
	Pull(ctx context.Context, addr common.Address, from common.Address, amount *big.Int) error

	// Release moves amount of the token at addr from custody back to the
	// holder's wallet.
	Release(ctx context.Context, addr common.Address, to common.Address, amount *big.Int) error
}

// NativePayer pays out native-currency amounts from the service's reserve
// account, used for interest settlement.
type NativePayer interface {
	Pay(ctx context.Context, to common.Address, amount *big.Int) error
}
