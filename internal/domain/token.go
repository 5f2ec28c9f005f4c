package domain

import (
	"github.com/ethereum/go-ethereum/common"
)

// Token is a stakeable ERC20-style asset registered by the operator.
// Symbol is the unique key; ID is assigned in registration order starting
// at 1 and is never reused.
type Token struct {
	ID       uint64         `json:"token_id"`
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Address  common.Address `json:"address"`
	USDPrice uint64         `json:"usd_price"`
	ETHPrice uint64         `json:"eth_price"` // reserved by the original deployment, always 0
	APYBps   uint64         `json:"apy_bps"`
}
