package lib

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/classwatch/classwatch/config"
	"github.com/classwatch/classwatch/lib/models"
	"github.com/classwatch/classwatch/senders"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type loginUser struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *gorm.DB
	senders senders.Registry
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// LoginUser finds or creates the user for a lowercased email, rotates their
// one-time verify token and mails a magic link.
func (svc *loginUser) LoginUser(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailPattern.MatchString(email) {
		return nil, ErrInvalidEmail
	}

	token := svc.generateVerifyToken()

	user := &models.User{}
	tx := svc.db.Where("email = ?", email).First(user)
	switch {
	case errors.Is(tx.Error, gorm.ErrRecordNotFound):
		user = &models.User{Email: email, VerifyToken: models.NullString(token)}
		if err := svc.db.Clauses(clause.Returning{}).Create(user).Error; err != nil {
			return nil, err
		}
	case tx.Error != nil:
		return nil, tx.Error
	default:
		if err := svc.db.Model(user).Update("verify_token", token).Error; err != nil {
			return nil, err
		}
	}

	if err := svc.sendMagicLink(ctx, email, token); err != nil {
		return nil, err
	}
	svc.log.Sugar().Infof("Issued magic link for user %v (%s)", user.ID, email)
	return user, nil
}

// VerifyToken consumes a magic-link token, marking the email verified.
func (svc *loginUser) VerifyToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	user := &models.User{}
	tx := svc.db.Where("verify_token = ?", token).First(user)
	if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidToken
	} else if tx.Error != nil {
		return nil, tx.Error
	}

	updates := map[string]any{"verify_token": nil, "email_verified": true}
	if err := svc.db.Model(user).Updates(updates).Error; err != nil {
		return nil, err
	}
	user.VerifyToken = sql.NullString{}
	user.EmailVerified = true
	return user, nil
}

func (svc *loginUser) sendMagicLink(ctx context.Context, email, token string) error {
	url := fmt.Sprintf("%s/verify?token=%s", svc.cfg.ServerDNS, token)

	sender := svc.senders["email"]
	id, err := sender.SendMagicLink(ctx, email, url)
	if err != nil {
		svc.log.Sugar().Infow("Failed to send magic link", "err", err)
	} else {
		svc.log.Sugar().Infow("Sent magic link to "+email, "message_id", id)
	}
	return err
}

func (svc *loginUser) generateVerifyToken() string {
	return uuid.NewString()
}
