package asset

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Payer implements domain.NativePayer by sending native currency from the
// custody account. Interest accrues in the native unit, so closing a position
// always pays out through this path.
type Payer struct {
	wallet *Wallet
}

// NewPayer creates a Payer that pays out from the given wallet.
func NewPayer(wallet *Wallet) *Payer {
	return &Payer{wallet: wallet}
}

// Pay transfers amount of native currency to the recipient.
func (p *Payer) Pay(ctx context.Context, to common.Address, amount *big.Int) error {
	if err := p.wallet.sendAndWait(ctx, to, amount, nil); err != nil {
		return fmt.Errorf("asset: pay %s to %s: %w", amount, to.Hex(), err)
	}
	return nil
}
