package lib

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/classwatch/classwatch/lib/models"
	"gorm.io/gorm"
)

// SubscriptionStatus pairs an active subscription with the cached class
// state, without touching the registrar.
type SubscriptionStatus struct {
	Subscription   models.Subscription
	IsOpen         bool
	SeatsAvailable int
	LastChecked    *time.Time
}

func (svc *subscribe) ListSubscriptions(ctx context.Context, userID uint) ([]SubscriptionStatus, error) {
	var subs models.Subscriptions
	tx := svc.db.
		Where("user_id = ? AND active = ?", userID, true).
		Order("created_at desc").
		Find(&subs)
	if err := tx.Error; err != nil {
		return nil, err
	}

	out := make([]SubscriptionStatus, 0, len(subs))
	for _, sub := range subs {
		item := SubscriptionStatus{Subscription: sub}

		status := &models.ClassStatus{}
		tx := svc.db.Where("subject = ? AND catalog_nbr = ?", sub.Subject, sub.CatalogNbr).First(status)
		switch {
		case tx.Error == nil:
			item.IsOpen = status.IsOpen
			item.SeatsAvailable = status.SeatsAvailable
			checked := status.LastChecked
			item.LastChecked = &checked
		case !errors.Is(tx.Error, gorm.ErrRecordNotFound):
			return nil, tx.Error
		}
		out = append(out, item)
	}
	return out, nil
}

func (svc *subscribe) DeleteSubscription(ctx context.Context, userID, id uint) error {
	sub := &models.Subscription{}
	tx := svc.db.Where("id = ? AND user_id = ?", id, userID).First(sub)
	if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		return ErrSubscriptionNotFound
	} else if tx.Error != nil {
		return tx.Error
	}

	// Soft delete. The row stays behind for alert-log lineage and so a
	// re-subscribe reactivates instead of duplicating.
	return svc.db.Model(sub).Update("active", false).Error
}

// UnsubscribeAll deactivates every subscription for an email. Unknown emails
// are a silent no-op so the endpoint does not reveal who is registered.
func (svc *subscribe) UnsubscribeAll(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	user := &models.User{}
	tx := svc.db.Where("email = ?", email).First(user)
	if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		return nil
	} else if tx.Error != nil {
		return tx.Error
	}

	tx = svc.db.Model(&models.Subscription{}).Where("user_id = ?", user.ID).Update("active", false)
	if tx.Error == nil {
		svc.log.Sugar().Infof("Unsubscribed user %v from %d classes", user.ID, tx.RowsAffected)
	}
	return tx.Error
}
