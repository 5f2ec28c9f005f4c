package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Position is a single staking deposit. It is created open, closed exactly
// once, and never deleted; closed positions remain for enumeration and audit.
// TokenName, TokenSymbol, and APYBps are snapshots taken at creation time and
// do not track later registry changes.
type Position struct {
	ID          uint64         `json:"position_id"`
	Owner       common.Address `json:"owner"`
	TokenName   string         `json:"token_name"`
	TokenSymbol string         `json:"token_symbol"`
	APYBps      uint64         `json:"apy_bps"`
	Principal   *big.Int       `json:"principal"`
	CreatedAt   time.Time      `json:"created_at"`
	Open        bool           `json:"open"`
}
