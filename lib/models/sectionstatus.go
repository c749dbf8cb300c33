package models

import (
	"time"

	"gorm.io/gorm"
)

// SectionStatus mirrors ClassStatus at per-section granularity. Rows exist
// only once a live fetch has seen the section; no rows means "not yet
// fetched", not "closed".
type SectionStatus struct {
	gorm.Model
	ClassNbr        string `gorm:"uniqueIndex"` // provider-assigned section number
	Subject         string `gorm:"index:idx_section_subject_catalog"`
	CatalogNbr      string `gorm:"index:idx_section_subject_catalog"`
	Section         string
	Instructor      string
	Schedule        string
	Location        string
	IsOpen          bool
	SeatsAvailable  int
	EnrollmentCap   int
	EnrollmentTotal int
	LastChecked     time.Time
}

type SectionStatuses []SectionStatus
