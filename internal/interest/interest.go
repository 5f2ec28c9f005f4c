// Package interest implements the yield math for staking positions. All
// arithmetic is integer-only on big.Int so that wei-scale principals never
// lose precision before the final division.
package interest

import (
	"math/big"
	"time"

	"github.com/stakeledger/stakeledger/internal/domain"
)

const secondsPerDay = 86_400

// denominator is basis points (10_000) times days per year (365).
var denominator = big.NewInt(10_000 * 365)

// DaysElapsed returns the number of whole days between since and now,
// truncating any partial day. It returns domain.ErrInvalidTimeRange when now
// precedes since.
func DaysElapsed(since, now time.Time) (int64, error) {
	if now.Before(since) {
		return 0, domain.ErrInvalidTimeRange
	}
	return (now.Unix() - since.Unix()) / secondsPerDay, nil
}

// Calculate returns the interest accrued on principal at apyBps over the
// given number of whole days:
//
//	principal * apyBps * days / (10_000 * 365)
//
// The numerator is multiplied out in full before the single truncating
// division, so no precision is lost to intermediate rounding. Zero principal
// or zero days yields zero. A nil principal is treated as zero.
func Calculate(apyBps uint64, principal *big.Int, days int64) *big.Int {
	if principal == nil || principal.Sign() == 0 || days <= 0 || apyBps == 0 {
		return new(big.Int)
	}

	n := new(big.Int).Set(principal)
	n.Mul(n, new(big.Int).SetUint64(apyBps))
	n.Mul(n, big.NewInt(days))
	return n.Quo(n, denominator)
}
