package models

import (
	"gorm.io/gorm"
)

type Subscription struct {
	gorm.Model
	UserID     uint   `gorm:"index:idx_user_subject_catalog,unique"`
	Subject    string `gorm:"index:idx_user_subject_catalog,unique"`
	CatalogNbr string `gorm:"index:idx_user_subject_catalog,unique"`
	Title      string
	Active     bool `gorm:"index"`

	User User
}

type Subscriptions []Subscription

// DistinctCatalogNbrs returns the watched catalog numbers, first-seen order.
func (subs Subscriptions) DistinctCatalogNbrs() []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(subs))
	for _, sub := range subs {
		if !seen[sub.CatalogNbr] {
			seen[sub.CatalogNbr] = true
			out = append(out, sub.CatalogNbr)
		}
	}
	return out
}

func (subs Subscriptions) ForClass(catalogNbr string) Subscriptions {
	out := make(Subscriptions, 0, len(subs))
	for _, sub := range subs {
		if sub.CatalogNbr == catalogNbr {
			out = append(out, sub)
		}
	}
	return out
}
