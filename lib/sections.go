package lib

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/classwatch/classwatch/config"
	"github.com/classwatch/classwatch/lib/models"
	"github.com/classwatch/classwatch/lib/registrar"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type sections struct {
	cfg       *config.Config
	log       *zap.Logger
	db        *gorm.DB
	registrar *registrar.Client
}

// CachedSections reads whatever section rows currently exist for a class,
// without contacting the registrar. No rows means "not yet fetched".
func (svc *sections) CachedSections(ctx context.Context, subject, catalogNbr string) (models.SectionStatuses, error) {
	subject = strings.ToUpper(strings.TrimSpace(subject))

	var secs models.SectionStatuses
	tx := svc.db.
		Where("subject = ? AND catalog_nbr = ?", subject, catalogNbr).
		Order("section asc").
		Find(&secs)
	return secs, tx.Error
}

// SectionRefresh reports a live read: the refreshed section rows plus whether
// the aggregate open/closed status changed since the prior read.
type SectionRefresh struct {
	Sections      models.SectionStatuses
	NowOpen       bool
	PreviousOpen  *bool // nil when the class had never been fetched
	StatusChanged bool
}

// RefreshSections always hits the registrar, then upserts the aggregate and
// per-section caches. Callers use it sparingly; the scheduled poll is the
// usual write path.
func (svc *sections) RefreshSections(ctx context.Context, subject, catalogNbr string) (*SectionRefresh, error) {
	subject = strings.ToUpper(strings.TrimSpace(subject))

	records, err := svc.registrar.Sections(ctx, svc.cfg.Registrar.Term, subject, catalogNbr)
	if err != nil {
		return nil, err
	}

	var previousOpen *bool
	prior := &models.ClassStatus{}
	tx := svc.db.Where("subject = ? AND catalog_nbr = ?", subject, catalogNbr).First(prior)
	switch {
	case tx.Error == nil:
		previousOpen = &prior.IsOpen
	case !errors.Is(tx.Error, gorm.ErrRecordNotFound):
		return nil, tx.Error
	}

	refresh, err := persistSections(svc.db, subject, catalogNbr, records, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	refresh.PreviousOpen = previousOpen
	refresh.StatusChanged = previousOpen != nil && *previousOpen != refresh.NowOpen
	return refresh, nil
}

// SearchClass is a live single-class lookup with no cache side effects.
// Returns nil when the class does not exist for the current term.
func (svc *sections) SearchClass(ctx context.Context, subject, catalogNbr string) (*registrar.ClassRecord, error) {
	subject = strings.ToUpper(strings.TrimSpace(subject))
	return svc.registrar.SearchClass(ctx, svc.cfg.Registrar.Term, subject, catalogNbr)
}

// persistSections upserts the aggregate ClassStatus (open = any open section,
// seats = sum over open sections) and one SectionStatus per returned record.
func persistSections(db *gorm.DB, subject, catalogNbr string, records []registrar.ClassRecord, now time.Time) (*SectionRefresh, error) {
	hasOpen := false
	totalSeats := 0
	for _, rec := range records {
		if rec.IsOpen() {
			hasOpen = true
			totalSeats += rec.SeatsAvailable()
		}
	}

	title := ""
	if len(records) > 0 {
		title = records[0].CourseTitle
	}

	status := &models.ClassStatus{
		Subject:        subject,
		CatalogNbr:     catalogNbr,
		CourseTitle:    models.NullString(title),
		IsOpen:         hasOpen,
		SeatsAvailable: totalSeats,
		LastChecked:    now,
	}
	assignments := map[string]any{
		"is_open":         hasOpen,
		"seats_available": totalSeats,
		"last_checked":    now,
	}
	if title != "" {
		assignments["course_title"] = title
	}
	tx := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subject"}, {Name: "catalog_nbr"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(status)
	if tx.Error != nil {
		return nil, tx.Error
	}

	out := make(models.SectionStatuses, 0, len(records))
	for _, rec := range records {
		if rec.ClassNbr == "" {
			continue
		}
		sec := models.SectionStatus{
			ClassNbr:        rec.ClassNbr,
			Subject:         subject,
			CatalogNbr:      catalogNbr,
			Section:         rec.ClassSection,
			Instructor:      rec.InstructorName,
			Schedule:        rec.ScheduleDayTime,
			Location:        rec.BuildingDescr,
			IsOpen:          rec.IsOpen(),
			SeatsAvailable:  rec.SeatsAvailable(),
			EnrollmentCap:   rec.EnrollmentCap,
			EnrollmentTotal: rec.EnrollmentTotal,
			LastChecked:     now,
		}
		tx := db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "class_nbr"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"section", "instructor", "schedule", "location",
				"is_open", "seats_available", "enrollment_cap", "enrollment_total",
				"last_checked",
			}),
		}).Create(&sec)
		if tx.Error != nil {
			return nil, tx.Error
		}
		out = append(out, sec)
	}

	return &SectionRefresh{Sections: out, NowOpen: hasOpen}, nil
}
