package model

import "time"

// Checkpoint はエンティティ種別ごとの再開位置。
// LastSourceIDまでのドキュメントは移行済みとみなす。
type Checkpoint struct {
	Entity       string
	LastSourceID string
	UpdatedAt    time.Time
}
