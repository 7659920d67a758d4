package models

import "time"

// UserProfile is the durable per-identity record. Credits is the sole
// authoritative balance; all mutation goes through the ledger's conditional
// updates, never through read-modify-write in application code.
type UserProfile struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"index" json:"email"`
	Credits   int64     `gorm:"not null;default:0" json:"credits"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (UserProfile) TableName() string { return "profiles" }
