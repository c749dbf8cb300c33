package lib

import (
	"context"

	"github.com/classwatch/classwatch/config"
	"github.com/classwatch/classwatch/lib/models"
	"github.com/classwatch/classwatch/lib/registrar"
	"github.com/classwatch/classwatch/senders"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *gorm.DB
	senders senders.Registry

	*loginUser
	*subscribe
	*sections
}

func NewService(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, db *gorm.DB, registrar *registrar.Client, senders senders.Registry) *Service {
	return &Service{
		cfg, log, db, senders,
		&loginUser{cfg, log, db, senders},
		&subscribe{cfg, log, db, registrar},
		&sections{cfg, log, db, registrar},
	}
}

func (svc *Service) FindUser(ctx context.Context, id uint) (*models.User, error) {
	user := &models.User{}
	if err := svc.db.First(user, id).Error; err != nil {
		return nil, err
	}
	return user, nil
}
