package models

import (
	"database/sql"
	"time"

	"gorm.io/gorm"
)

// ClassStatus is the rolling snapshot of a class's last-known aggregate
// state. Rows are never deleted; IsOpen is always derived from upstream
// enrollment totals.
type ClassStatus struct {
	gorm.Model
	Subject        string `gorm:"index:idx_subject_catalog,unique"`
	CatalogNbr     string `gorm:"index:idx_subject_catalog,unique"`
	CourseTitle    sql.NullString
	InstructorName sql.NullString
	IsOpen         bool
	SeatsAvailable int
	EnrollmentCap  int
	LastChecked    time.Time
	LastOpenedAt   sql.NullTime // set only on a closed-to-open transition
}
