package storage

import (
	"encoding/json"
	"time"
)

// SnapshotSample is a persisted snapshot observation.
type SnapshotSample struct {
	FetchedAt     time.Time
	SlotHeight    uint64
	TotalLamports uint64
	Balances      json.RawMessage
	TxCount       int
	Status        string
	Error         *string
	CreatedAt     time.Time
}

// AlertRecord captures an emitted alert for auditing.
type AlertRecord struct {
	ID        int64
	Kind      string
	Wallet    string
	Detail    string
	Channels  []string
	CreatedAt time.Time
}
