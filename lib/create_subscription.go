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

type subscribe struct {
	cfg       *config.Config
	log       *zap.Logger
	db        *gorm.DB
	registrar *registrar.Client
}

func (svc *subscribe) CreateSubscription(ctx context.Context, userID uint, subject, catalogNbr, title string) (*models.Subscription, error) {
	subject = strings.ToUpper(strings.TrimSpace(subject))
	catalogNbr = strings.TrimSpace(catalogNbr)
	if subject == "" || catalogNbr == "" {
		return nil, errors.New("subject and catalog number are required")
	}

	// At most one row ever exists per (user, subject, catalogNbr): inactive
	// rows are reactivated, never duplicated.
	existing := &models.Subscription{}
	tx := svc.db.Where("user_id = ? AND subject = ? AND catalog_nbr = ?", userID, subject, catalogNbr).First(existing)
	switch {
	case tx.Error == nil:
		if existing.Active {
			return nil, ErrAlreadySubscribed
		}
		if err := svc.db.Model(existing).Update("active", true).Error; err != nil {
			return nil, err
		}
		existing.Active = true
		svc.log.Sugar().Infof("Reactivated subscription id:%v for %s %s", existing.ID, subject, catalogNbr)
		return existing, nil
	case !errors.Is(tx.Error, gorm.ErrRecordNotFound):
		return nil, tx.Error
	}

	title, err := svc.warmStatusCache(ctx, subject, catalogNbr, title)
	if err != nil {
		return nil, err
	}

	sub := &models.Subscription{
		UserID:     userID,
		Subject:    subject,
		CatalogNbr: catalogNbr,
		Title:      title,
		Active:     true,
	}
	if err := svc.db.Clauses(clause.Returning{}).Create(sub).Error; err != nil {
		return nil, err
	}
	svc.log.Sugar().Infof("Created subscription id:%v for %s %s", sub.ID, subject, catalogNbr)
	return sub, nil
}

// warmStatusCache guarantees a new subscription starts from ground truth: on
// a status-cache miss it fetches the class's sections live and persists them.
// The fetched title wins over the caller-supplied one.
func (svc *subscribe) warmStatusCache(ctx context.Context, subject, catalogNbr, title string) (string, error) {
	status := &models.ClassStatus{}
	tx := svc.db.Where("subject = ? AND catalog_nbr = ?", subject, catalogNbr).First(status)
	switch {
	case tx.Error == nil:
		if status.CourseTitle.Valid {
			title = status.CourseTitle.String
		}
		return title, nil
	case !errors.Is(tx.Error, gorm.ErrRecordNotFound):
		return "", tx.Error
	}

	records, err := svc.registrar.Sections(ctx, svc.cfg.Registrar.Term, subject, catalogNbr)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", ErrClassNotFound
	}

	if _, err := persistSections(svc.db, subject, catalogNbr, records, time.Now().UTC()); err != nil {
		return "", err
	}
	if fetched := records[0].CourseTitle; fetched != "" {
		title = fetched
	}
	return title, nil
}
