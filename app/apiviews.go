package app

import (
	"time"

	"github.com/classwatch/classwatch/lib"
	"github.com/classwatch/classwatch/lib/models"
	"github.com/classwatch/classwatch/lib/poller"
	"github.com/classwatch/classwatch/lib/registrar"
)

type PollView struct {
	Success bool `json:"success"`
	*poller.PollResult
	Timestamp string `json:"timestamp"`
}

func (view PollView) From(result *poller.PollResult) PollView {
	return PollView{
		Success:    true,
		PollResult: result,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
}

type SubscriptionView struct {
	ID             uint    `json:"id"`
	Subject        string  `json:"subject"`
	CatalogNbr     string  `json:"catalog_nbr"`
	Title          string  `json:"title"`
	IsOpen         bool    `json:"is_open"`
	SeatsAvailable int     `json:"seats_available"`
	LastChecked    *string `json:"last_checked"`
	CreatedAt      string  `json:"created_at"`
}

func (view SubscriptionView) From(entity lib.SubscriptionStatus) SubscriptionView {
	return SubscriptionView{
		ID:             entity.Subscription.ID,
		Subject:        entity.Subscription.Subject,
		CatalogNbr:     entity.Subscription.CatalogNbr,
		Title:          entity.Subscription.Title,
		IsOpen:         entity.IsOpen,
		SeatsAvailable: entity.SeatsAvailable,
		LastChecked:    isoformat(entity.LastChecked),
		CreatedAt:      entity.Subscription.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type SectionView struct {
	ClassNbr        string `json:"class_nbr"`
	Section         string `json:"section"`
	Instructor      string `json:"instructor"`
	Schedule        string `json:"schedule"`
	Location        string `json:"location"`
	IsOpen          bool   `json:"is_open"`
	SeatsAvailable  int    `json:"seats_available"`
	EnrollmentCap   int    `json:"enrollment_cap"`
	EnrollmentTotal int    `json:"enrollment_total"`
	LastChecked     string `json:"last_checked"`
}

func (view SectionView) From(entity models.SectionStatus) SectionView {
	return SectionView{
		ClassNbr:        entity.ClassNbr,
		Section:         entity.Section,
		Instructor:      entity.Instructor,
		Schedule:        entity.Schedule,
		Location:        entity.Location,
		IsOpen:          entity.IsOpen,
		SeatsAvailable:  entity.SeatsAvailable,
		EnrollmentCap:   entity.EnrollmentCap,
		EnrollmentTotal: entity.EnrollmentTotal,
		LastChecked:     entity.LastChecked.UTC().Format(time.RFC3339),
	}
}

type ClassView struct {
	Subject        string `json:"subject"`
	CatalogNbr     string `json:"catalog_nbr"`
	Title          string `json:"title"`
	Instructor     string `json:"instructor"`
	IsOpen         bool   `json:"is_open"`
	SeatsAvailable int    `json:"seats_available"`
	EnrollmentCap  int    `json:"enrollment_cap"`
}

func (view ClassView) From(entity *registrar.ClassRecord) ClassView {
	return ClassView{
		Subject:        entity.Subject,
		CatalogNbr:     entity.CatalogNbr,
		Title:          entity.CourseTitle,
		Instructor:     entity.InstructorName,
		IsOpen:         entity.IsOpen(),
		SeatsAvailable: entity.SeatsAvailable(),
		EnrollmentCap:  entity.EnrollmentCap,
	}
}

type Fromable[Entity any, Repr any] interface {
	From(Entity) Repr
}

func FromMany[T any, U Fromable[T, U]](elems []T) []U {
	out := make([]U, len(elems))
	for i, t := range elems {
		var u U
		out[i] = u.From(t)
	}
	return out
}

func isoformat(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
