package registrar

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/classwatch/classwatch/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Client talks to the registrar's class browser API. Every query carries the
// term code explicitly; callers source it from config.
type Client struct {
	log       *zap.Logger
	cfg       *config.Config
	transport http.RoundTripper
}

func NewClient(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config, transport http.RoundTripper) *Client {
	return &Client{log, cfg, transport}
}

// OpenClasses fetches every currently-open class under a subject.
func (c *Client) OpenClasses(ctx context.Context, term, subject string) ([]ClassRecord, error) {
	return c.query(ctx, url.Values{
		"term":        {term},
		"subject":     {subject},
		"classStatus": {"open"},
		"weekendu":    {"0"},
	})
}

// Sections fetches all sections of a single class, open or not.
func (c *Client) Sections(ctx context.Context, term, subject, catalogNbr string) ([]ClassRecord, error) {
	records, err := c.query(ctx, url.Values{
		"term":          {term},
		"subject":       {subject},
		"catalogNumber": {catalogNbr},
		"weekendu":      {"0"},
	})
	if err != nil {
		return nil, err
	}

	// The registrar matches catalog numbers loosely (4330 also returns 4330H).
	matched := make([]ClassRecord, 0, len(records))
	for _, rec := range records {
		if rec.CatalogNbr == catalogNbr {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}

// SearchClass returns the first section matching the catalog number, or nil
// when the class does not exist for the term.
func (c *Client) SearchClass(ctx context.Context, term, subject, catalogNbr string) (*ClassRecord, error) {
	records, err := c.Sections(ctx, term, subject, catalogNbr)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (c *Client) query(ctx context.Context, form url.Values) ([]ClassRecord, error) {
	timeout := time.Duration(c.cfg.Registrar.TimeoutSecs) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var result SearchResult
	err := requests.URL(c.cfg.Registrar.BaseURL).
		Transport(c.transport).
		BodyForm(form).
		ToJSON(&result).
		Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("registrar query failed: %w", err)
	}
	return result.Data, nil
}
