package models

import "database/sql"

// NullString treats empty as NULL, matching how the registrar omits fields.
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// ClassAlert is the payload handed to a Sender when a watched class opens.
type ClassAlert struct {
	Subject        string
	CatalogNbr     string
	CourseTitle    string
	InstructorName string
	SeatsAvailable int
}

func (a *ClassAlert) ClassCode() string {
	return a.Subject + " " + a.CatalogNbr
}
