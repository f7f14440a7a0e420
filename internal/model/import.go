package model

import "time"

// Import tracks one statement import session. All transactions created
// by a single file or API pull share an Import record.
type Import struct {
	CreatedAt time.Time
	ID        string // uuid
	Source    string // e.g. "csv", "json", "ofx", "plaid"
	FileName  string
	AccountID int64
	UserID    int64
	Total     int
	Succeeded int
	Failed    int
}
