package senders

import (
	"context"
	"time"

	"github.com/classwatch/classwatch/lib/models"
	"github.com/classwatch/classwatch/senders/email"
	"github.com/mailgun/mailgun-go/v4"
)

type mailgunSender struct {
	base
}

func (e *mailgunSender) SendClassAlert(ctx context.Context, recipient string, alert *models.ClassAlert) (string, error) {
	format := &email.ClassAlertEmailFormat{
		Alert:          alert,
		UnsubscribeURL: email.UnsubscribeURL(e.cfg.ServerDNS, recipient),
	}
	return e.send(ctx, format.Subject(), format.Body(), recipient)
}

func (e *mailgunSender) SendMagicLink(ctx context.Context, recipient, magicLinkURL string) (string, error) {
	format := &email.MagicLinkEmailFormat{MagicLinkURL: magicLinkURL}
	return e.send(ctx, format.Subject(), format.Body(), recipient)
}

func (e *mailgunSender) send(ctx context.Context, subject, body, recipient string) (string, error) {
	mg := mailgun.NewMailgun(e.cfg.Mailgun.Domain, e.cfg.Mailgun.APIKey)
	mg.Client().Transport = e.transport

	// Create message with empty body first.
	message := mg.NewMessage(e.cfg.Mailgun.SenderFrom, subject, "", recipient)
	// SetHtml with the payload proper. This will assign the MIME type properly.
	message.SetHtml(body)

	timeout := time.Duration(e.cfg.Mailgun.TimeoutSecs) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, id, err := mg.Send(ctx, message)
	return id, err
}
