package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserModel is an account that can hold presence. Its ID is the key stored in the ledger.
type UserModel struct {
	ID        string         `json:"id"       gorm:"type:char(36);primaryKey"`
	CreatedAt time.Time      `json:"created"`
	UpdatedAt time.Time      `json:"modified"`
	DeletedAt gorm.DeletedAt `json:"-"        gorm:"index"`
	Username  string         `json:"username" gorm:"uniqueIndex;size:64;not null"`
	Name      string         `json:"name"     gorm:"size:128"`
	Avatar    string         `json:"avatar"`
	Mail      string         `json:"mail"     gorm:"size:191"`
}

func (UserModel) TableName() string { return "users" }

// BeforeCreate assigns a UUIDv7 when ID is empty.
func (u *UserModel) BeforeCreate(*gorm.DB) error {
	if u.ID != "" {
		return nil
	}
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	u.ID = id.String()
	return nil
}
