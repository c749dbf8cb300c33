package models

import "time"

// AlertLog is a write-once record of a sent alert, consulted as a 24-hour
// suppression window per (user, subject, catalog number).
type AlertLog struct {
	ID         uint   `gorm:"primarykey"`
	UserID     uint   `gorm:"index:idx_alert_user_subject_catalog"`
	Subject    string `gorm:"index:idx_alert_user_subject_catalog"`
	CatalogNbr string `gorm:"index:idx_alert_user_subject_catalog"`
	SentAt     time.Time

	User User
}
