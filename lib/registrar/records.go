package registrar

// ClassRecord is one row of the registrar's class browser response. The
// section-level fields are only populated on catalog-number queries; bulk
// open-class queries leave them empty.
type ClassRecord struct {
	Subject         string `json:"subject"`
	CatalogNbr      string `json:"catalog_nbr"`
	CourseTitle     string `json:"course_title"`
	InstructorName  string `json:"instructor_name"`
	EnrollmentCap   int    `json:"enrl_cap"`
	EnrollmentTotal int    `json:"enrl_tot"`

	ClassNbr        string `json:"class_nbr"`
	ClassSection    string `json:"class_section"`
	ScheduleDayTime string `json:"schedule_day_time"`
	BuildingDescr   string `json:"building_descr"`
}

type SearchResult struct {
	Data  []ClassRecord `json:"data"`
	Total int           `json:"total"`
}

func (rec ClassRecord) SeatsAvailable() int {
	return rec.EnrollmentCap - rec.EnrollmentTotal
}

func (rec ClassRecord) IsOpen() bool {
	return rec.SeatsAvailable() > 0
}
