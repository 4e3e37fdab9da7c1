package model

import "time"

// User is an operator account for the fleet UI. Accounts gate the HTTP
// surface only; they are unrelated to peer identities in the ledger.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:64" json:"username"`
	PasswordHash string    `gorm:"size:60" json:"-"` // bcrypt
	IsAdmin      bool      `json:"isAdmin"`
	CreatedAt    time.Time `json:"createdAt"`
}
