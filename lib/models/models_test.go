package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistinctCatalogNbrs(t *testing.T) {
	subs := Subscriptions{
		{CatalogNbr: "4330"},
		{CatalogNbr: "1437"},
		{CatalogNbr: "4330"},
		{CatalogNbr: "3360"},
	}
	assert.Equal(t, []string{"4330", "1437", "3360"}, subs.DistinctCatalogNbrs())
	assert.Empty(t, Subscriptions{}.DistinctCatalogNbrs())
}

func TestForClass(t *testing.T) {
	subs := Subscriptions{
		{UserID: 1, CatalogNbr: "4330"},
		{UserID: 2, CatalogNbr: "1437"},
		{UserID: 3, CatalogNbr: "4330"},
	}
	matched := subs.ForClass("4330")
	assert.Len(t, matched, 2)
	for _, sub := range matched {
		assert.Equal(t, "4330", sub.CatalogNbr)
	}
}

func TestNullString(t *testing.T) {
	assert.False(t, NullString("").Valid)

	filled := NullString("Data Structures")
	assert.True(t, filled.Valid)
	assert.Equal(t, "Data Structures", filled.String)
}

func TestClassCode(t *testing.T) {
	alert := &ClassAlert{Subject: "COSC", CatalogNbr: "4337"}
	assert.Equal(t, "COSC 4337", alert.ClassCode())
}
