package domain

import "time"

// SyncRecord is the durable "last synced block" checkpoint of one mission.
type SyncRecord struct {
	Mission         string    `db:"mission"`
	LastBlockNumber uint64    `db:"last_block_number"`
	UpdatedAt       time.Time `db:"updated_at"`
}
