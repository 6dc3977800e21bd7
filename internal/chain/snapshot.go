package chain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// Snapshot is one immutable, point-in-time capture of chain metrics.
// It is created whole on a successful fetch and never mutated afterwards;
// a newer snapshot supersedes it.
type Snapshot struct {
	FetchedAt          time.Time            `json:"fetched_at"`
	SlotHeight         uint64               `json:"slot_height"`
	Balances           map[string]uint64    `json:"balances"`
	RecentTransactions []TransactionSummary `json:"recent_transactions"`
}

// TransactionSummary condenses a confirmed signature entry.
type TransactionSummary struct {
	Signature string     `json:"signature"`
	Slot      uint64     `json:"slot"`
	BlockTime *time.Time `json:"block_time,omitempty"`
	Err       *string    `json:"err,omitempty"`
	Memo      string     `json:"memo,omitempty"`
}

// TotalLamports sums all wallet balances in the snapshot.
func (s *Snapshot) TotalLamports() uint64 {
	var total uint64
	for _, v := range s.Balances {
		total += v
	}
	return total
}

// LamportsToSOL converts a lamport amount to SOL.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9)
}
