package models

import (
	"database/sql"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Email         string `gorm:"uniqueIndex"` // always stored lowercased
	EmailVerified bool
	VerifyToken   sql.NullString `gorm:"index"`

	Subscriptions []Subscription
}
