package model

import "time"

// User is the owner of accounts, rules, and anomaly preferences.
type User struct {
	CreatedAt time.Time
	Name      string
	Email     string
	ID        int64
}

// Account represents a bank account whose statements are imported.
type Account struct {
	CreatedAt time.Time
	Name      string
	IBAN      string
	Currency  string
	ID        int64
	UserID    int64
	IsActive  bool
}
