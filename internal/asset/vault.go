package asset

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stakeledger/stakeledger/internal/domain"
)

// Vault is an in-process implementation of domain.AssetTransferor and
// domain.NativePayer. It tracks per-token balances in memory and backs the
// memory deployment mode, where no chain is available.
type Vault struct {
	mu sync.Mutex
	// balances[token][holder] is the holder's balance of that token.
	balances map[common.Address]map[common.Address]*big.Int
	// native[holder] is the holder's native-currency balance.
	native  map[common.Address]*big.Int
	custody common.Address
}

// NewVault creates an empty Vault with the given custody address.
func NewVault(custody common.Address) *Vault {
	return &Vault{
		balances: make(map[common.Address]map[common.Address]*big.Int),
		native:   make(map[common.Address]*big.Int),
		custody:  custody,
	}
}

// Mint credits a holder with token balance. Used to seed accounts.
func (v *Vault) Mint(token, holder common.Address, amount *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.credit(token, holder, amount)
}

// Balance returns a holder's balance of a token.
func (v *Vault) Balance(token, holder common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if held, ok := v.balances[token][holder]; ok {
		return new(big.Int).Set(held)
	}
	return new(big.Int)
}

// NativeBalance returns a holder's native-currency balance.
func (v *Vault) NativeBalance(holder common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if held, ok := v.native[holder]; ok {
		return new(big.Int).Set(held)
	}
	return new(big.Int)
}

// Pull implements domain.AssetTransferor.
func (v *Vault) Pull(ctx context.Context, token, from common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.debit(token, from, amount); err != nil {
		return err
	}
	v.credit(token, v.custody, amount)
	return nil
}

// Release implements domain.AssetTransferor.
func (v *Vault) Release(ctx context.Context, token, to common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.debit(token, v.custody, amount); err != nil {
		return err
	}
	v.credit(token, to, amount)
	return nil
}

// Pay implements domain.NativePayer. The vault treats the custody account as
// an unlimited source of native currency so interest payouts never fail in
// memory mode.
func (v *Vault) Pay(ctx context.Context, to common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if held, ok := v.native[to]; ok {
		held.Add(held, amount)
	} else {
		v.native[to] = new(big.Int).Set(amount)
	}
	return nil
}

func (v *Vault) credit(token, holder common.Address, amount *big.Int) {
	holders, ok := v.balances[token]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		v.balances[token] = holders
	}
	if held, ok := holders[holder]; ok {
		held.Add(held, amount)
	} else {
		holders[holder] = new(big.Int).Set(amount)
	}
}

func (v *Vault) debit(token, holder common.Address, amount *big.Int) error {
	held, ok := v.balances[token][holder]
	if !ok || held.Cmp(amount) < 0 {
		return domain.ErrTransferFailed
	}
	held.Sub(held, amount)
	return nil
}
