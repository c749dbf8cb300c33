package email

import (
	_ "embed"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"github.com/classwatch/classwatch/lib/models"
)

var (
	//go:embed alert.html
	alertHTML     string
	alertTemplate = template.Must(template.New("alert.html").Parse(alertHTML))

	//go:embed magiclink.html
	magicLinkHTML     string
	magicLinkTemplate = template.Must(template.New("magiclink.html").Parse(magicLinkHTML))
)

func mustFillTemplate(tmpl *template.Template, values any) string {
	buf := new(strings.Builder)
	err := tmpl.Execute(buf, values)
	if err != nil {
		return ""
	}
	return buf.String()
}

type ClassAlertEmailFormat struct {
	Alert          *models.ClassAlert
	UnsubscribeURL string
}

func (ef *ClassAlertEmailFormat) Subject() string {
	return fmt.Sprintf("%s is NOW OPEN!", ef.Alert.ClassCode())
}

func (ef *ClassAlertEmailFormat) Body() string {
	return mustFillTemplate(alertTemplate, ef)
}

type MagicLinkEmailFormat struct {
	MagicLinkURL string
}

func (ef *MagicLinkEmailFormat) Subject() string {
	return "Sign in to Classwatch"
}

func (ef *MagicLinkEmailFormat) Body() string {
	return mustFillTemplate(magicLinkTemplate, ef)
}

func UnsubscribeURL(serverDNS, recipient string) string {
	return fmt.Sprintf("%s/unsubscribe?email=%s", serverDNS, url.QueryEscape(recipient))
}
