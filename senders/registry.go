package senders

import (
	"context"
	"net/http"

	"github.com/classwatch/classwatch/config"
	"github.com/classwatch/classwatch/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Sender interface {
	SendClassAlert(ctx context.Context, recipient string, alert *models.ClassAlert) (string, error)
	SendMagicLink(ctx context.Context, recipient, magicLinkURL string) (string, error)
}

type Registry map[string]Sender

func NewSenderRegistry(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config, transport http.RoundTripper) Registry {
	base := base{log, cfg, transport}
	return map[string]Sender{
		"email": &mailgunSender{base},
	}
}

type base struct {
	log       *zap.Logger
	cfg       *config.Config
	transport http.RoundTripper
}
