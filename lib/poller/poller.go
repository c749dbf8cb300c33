package poller

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/classwatch/classwatch/config"
	"github.com/classwatch/classwatch/lib/models"
	"github.com/classwatch/classwatch/lib/registrar"
	"github.com/classwatch/classwatch/senders"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Suppression window for repeat alerts on the same (user, class) pair. The
// upstream data flaps, so the closed-to-open gate alone is not enough.
const alertSuppressionWindow = 24 * time.Hour

var mu sync.Mutex

func NewPoller(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config, db *gorm.DB, registrar *registrar.Client, senders senders.Registry) *Poller {
	p := &Poller{
		log:       log,
		cfg:       cfg,
		db:        db,
		registrar: registrar,
		senders:   senders,
	}

	if cfg.Poll.Interval > 0 {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go p.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				log.Sugar().Info("Trying to stop poller")
				p.Stop()
				return nil
			},
		})
	}

	return p
}

type Poller struct {
	log       *zap.Logger
	cfg       *config.Config
	db        *gorm.DB
	registrar *registrar.Client
	senders   senders.Registry

	cancel context.CancelFunc
}

// Run executes one poll cycle. It never returns an error: every per-subject
// and per-subscriber failure degrades into the result's Errors list. The
// package mutex makes overlapping invocations queue rather than race each
// other's status reads.
func (p *Poller) Run(ctx context.Context) *PollResult {
	mu.Lock()
	defer mu.Unlock()

	started := time.Now().UTC()
	result := newPollResult()

	subjects, err := p.activeSubjects(ctx)
	if err != nil {
		p.log.Sugar().Errorw("Failed to load active subjects", "err", err)
		result.Errors = append(result.Errors, fmt.Sprintf("load subjects: %v", err))
		return result
	}
	if len(subjects) == 0 {
		return result
	}

	p.log.Sugar().Infof("Polling %d subjects: %v", len(subjects), subjects)

	for i, subject := range subjects {
		result.SubjectsPolled++
		if err := p.pollSubject(ctx, subject, result); err != nil {
			p.log.Sugar().Errorw("Subject poll failed", "subject", subject, "err", err)
			result.Errors = append(result.Errors, fmt.Sprintf("subject %s: %v", subject, err))
		}

		// Pause between subjects to stay within the registrar's rate tolerance.
		if i < len(subjects)-1 {
			p.pause(ctx, p.cfg.Poll.SubjectDelay)
		}
	}

	elapsed := time.Now().UTC().Sub(started)
	p.log.Sugar().Infow("Poll completed",
		"subjects", result.SubjectsPolled,
		"classes_updated", result.ClassesUpdated,
		"alerts_sent", result.AlertsSent,
		"errors", len(result.Errors),
		"elapsed_msecs", int(elapsed.Milliseconds()),
	)
	return result
}

func (p *Poller) activeSubjects(ctx context.Context) ([]string, error) {
	var subjects []string
	tx := p.db.
		Model(&models.Subscription{}).
		Where("active = ?", true).
		Distinct().
		Order("subject asc").
		Pluck("subject", &subjects)
	return subjects, tx.Error
}

func (p *Poller) pollSubject(ctx context.Context, subject string, result *PollResult) error {
	records, err := p.registrar.OpenClasses(ctx, p.cfg.Registrar.Term, subject)
	if err != nil {
		return err
	}

	// Classes absent from this map are presumed closed for this cycle.
	openClasses := make(map[string]registrar.ClassRecord, len(records))
	for _, rec := range records {
		if rec.IsOpen() {
			openClasses[rec.CatalogNbr] = rec
		}
	}

	var subs models.Subscriptions
	tx := p.db.
		Where("subscriptions.subject = ?", subject).
		Where("subscriptions.active = ?", true).
		InnerJoins("User").
		Find(&subs)
	if err := tx.Error; err != nil {
		return err
	}

	for _, catalogNbr := range subs.DistinctCatalogNbrs() {
		if err := p.pollClass(ctx, subject, catalogNbr, openClasses, subs.ForClass(catalogNbr), result); err != nil {
			return err
		}
	}
	return nil
}

func (p *Poller) pollClass(
	ctx context.Context,
	subject, catalogNbr string,
	openClasses map[string]registrar.ClassRecord,
	watchers models.Subscriptions,
	result *PollResult,
) error {
	now := time.Now().UTC()

	record, currentlyOpen := openClasses[catalogNbr]
	seatsAvailable := 0
	if currentlyOpen {
		seatsAvailable = record.SeatsAvailable()
	}

	prior := &models.ClassStatus{}
	wasOpen := false
	tx := p.db.Where("subject = ? AND catalog_nbr = ?", subject, catalogNbr).First(prior)
	switch {
	case errors.Is(tx.Error, gorm.ErrRecordNotFound):
		prior = nil
	case tx.Error != nil:
		return tx.Error
	default:
		wasOpen = prior.IsOpen
	}

	if err := p.upsertStatus(prior, subject, catalogNbr, record, currentlyOpen, seatsAvailable, now); err != nil {
		return err
	}
	result.ClassesUpdated++

	// Alerts fire strictly on the closed-to-open edge.
	if !currentlyOpen || wasOpen {
		return nil
	}

	p.log.Sugar().Infof("Class opened: %s %s (%d seats)", subject, catalogNbr, seatsAvailable)

	alert := &models.ClassAlert{
		Subject:        subject,
		CatalogNbr:     catalogNbr,
		CourseTitle:    record.CourseTitle,
		InstructorName: record.InstructorName,
		SeatsAvailable: seatsAvailable,
	}
	return p.alertWatchers(ctx, alert, watchers, now, result)
}

func (p *Poller) upsertStatus(
	prior *models.ClassStatus,
	subject, catalogNbr string,
	record registrar.ClassRecord,
	currentlyOpen bool,
	seatsAvailable int,
	now time.Time,
) error {
	if prior == nil {
		status := &models.ClassStatus{
			Subject:        subject,
			CatalogNbr:     catalogNbr,
			CourseTitle:    models.NullString(record.CourseTitle),
			InstructorName: models.NullString(record.InstructorName),
			IsOpen:         currentlyOpen,
			SeatsAvailable: seatsAvailable,
			EnrollmentCap:  record.EnrollmentCap,
			LastChecked:    now,
		}
		if currentlyOpen {
			status.LastOpenedAt = sql.NullTime{Time: now, Valid: true}
		}
		return p.db.Create(status).Error
	}

	updates := map[string]any{
		"is_open":         currentlyOpen,
		"seats_available": seatsAvailable,
		"last_checked":    now,
	}
	// Descriptive fields only refresh when the registrar returned data;
	// a closed class is absent from the bulk query and keeps prior values.
	if record.CourseTitle != "" {
		updates["course_title"] = record.CourseTitle
	}
	if record.InstructorName != "" {
		updates["instructor_name"] = record.InstructorName
	}
	if record.EnrollmentCap != 0 {
		updates["enrollment_cap"] = record.EnrollmentCap
	}
	if currentlyOpen && !prior.IsOpen {
		updates["last_opened_at"] = now
	}
	return p.db.Model(prior).Updates(updates).Error
}

func (p *Poller) alertWatchers(
	ctx context.Context,
	alert *models.ClassAlert,
	watchers models.Subscriptions,
	now time.Time,
	result *PollResult,
) error {
	sender, ok := p.senders["email"]
	if !ok {
		return errors.New("no email sender configured")
	}

	cutoff := now.Add(-alertSuppressionWindow)
	for _, sub := range watchers {
		var recent int64
		tx := p.db.Model(&models.AlertLog{}).
			Where("user_id = ?", sub.UserID).
			Where("subject = ? AND catalog_nbr = ?", alert.Subject, alert.CatalogNbr).
			Where("sent_at >= ?", cutoff).
			Count(&recent)
		if err := tx.Error; err != nil {
			return err
		}
		if recent > 0 {
			p.log.Sugar().Infof("Skipping alert to %s for %s - already sent recently", sub.User.Email, alert.ClassCode())
			continue
		}

		if _, err := sender.SendClassAlert(ctx, sub.User.Email, alert); err != nil {
			// A failed send must not block the rest, and is never logged as sent.
			p.log.Sugar().Errorw("Failed to send alert", "email", sub.User.Email, "err", err)
			result.Errors = append(result.Errors, fmt.Sprintf("email to %s failed: %v", sub.User.Email, err))
			continue
		}

		entry := &models.AlertLog{
			UserID:     sub.UserID,
			Subject:    alert.Subject,
			CatalogNbr: alert.CatalogNbr,
			SentAt:     now,
		}
		if err := p.db.Create(entry).Error; err != nil {
			return err
		}
		result.AlertsSent++
		p.log.Sugar().Infof("Alert sent to %s for %s", sub.User.Email, alert.ClassCode())
	}
	return nil
}

func (p *Poller) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
