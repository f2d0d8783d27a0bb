package webreg

import (
	"net/url"
	"strconv"
	"strings"
)

// Day identifies a day of the week in a search filter.
type Day string

const (
	Monday    Day = "M"
	Tuesday   Day = "Tu"
	Wednesday Day = "W"
	Thursday  Day = "Th"
	Friday    Day = "F"
	Saturday  Day = "Sa"
	Sunday    Day = "Su"
)

// ParseDay maps a request token to a Day. Matching is case-insensitive;
// unknown tokens return false.
func ParseDay(s string) (Day, bool) {
	switch strings.ToLower(s) {
	case "m":
		return Monday, true
	case "tu":
		return Tuesday, true
	case "w":
		return Wednesday, true
	case "th":
		return Thursday, true
	case "f":
		return Friday, true
	case "sa":
		return Saturday, true
	case "su":
		return Sunday, true
	default:
		return "", false
	}
}

// LevelFilter is a course level bucket for advanced searches.
type LevelFilter int

const (
	LowerDivision LevelFilter = iota
	UpperDivision
	Graduate
)

// ParseLevelFilter maps a request token ("l", "u", "g", case-insensitive)
// to a level filter. Unknown tokens return false.
func ParseLevelFilter(s string) (LevelFilter, bool) {
	switch strings.ToLower(s) {
	case "l":
		return LowerDivision, true
	case "u":
		return UpperDivision, true
	case "g":
		return Graduate, true
	default:
		return 0, false
	}
}

// SearchRequest accumulates filters for an advanced course search.
// The zero value matches every course in the term.
type SearchRequest struct {
	Subjects    []string
	Courses     []string
	Departments []string
	Instructor  string
	Title       string
	OnlyOpen    bool

	days   []Day
	levels []LevelFilter

	startHour, startMin int
	endHour, endMin     int
	hasStart, hasEnd    bool
}

// NewSearchRequest creates an empty search request.
func NewSearchRequest() *SearchRequest {
	return &SearchRequest{}
}

// AddDepartment adds a department code filter.
func (s *SearchRequest) AddDepartment(dept string) *SearchRequest {
	s.Departments = append(s.Departments, dept)
	return s
}

// AddSubject adds a subject code filter.
func (s *SearchRequest) AddSubject(subject string) *SearchRequest {
	s.Subjects = append(s.Subjects, subject)
	return s
}

// AddCourse adds a course code filter.
func (s *SearchRequest) AddCourse(course string) *SearchRequest {
	s.Courses = append(s.Courses, course)
	return s
}

// SetInstructor filters by instructor name.
func (s *SearchRequest) SetInstructor(name string) *SearchRequest {
	s.Instructor = name
	return s
}

// SetTitle filters by course title.
func (s *SearchRequest) SetTitle(title string) *SearchRequest {
	s.Title = title
	return s
}

// FilterCoursesBy adds a course level filter.
func (s *SearchRequest) FilterCoursesBy(level LevelFilter) *SearchRequest {
	for _, l := range s.levels {
		if l == level {
			return s
		}
	}
	s.levels = append(s.levels, level)
	return s
}

// ApplyDay adds a day filter.
func (s *SearchRequest) ApplyDay(day Day) *SearchRequest {
	for _, d := range s.days {
		if d == day {
			return s
		}
	}
	s.days = append(s.days, day)
	return s
}

// SetStartTime restricts results to sections starting at or after the
// given time.
func (s *SearchRequest) SetStartTime(hour, min uint32) *SearchRequest {
	s.startHour, s.startMin = int(hour), int(min)
	s.hasStart = true
	return s
}

// SetEndTime restricts results to sections ending at or before the
// given time.
func (s *SearchRequest) SetEndTime(hour, min uint32) *SearchRequest {
	s.endHour, s.endMin = int(hour), int(min)
	s.hasEnd = true
	return s
}

// query encodes the request as WebReg search-by-all query parameters.
func (s *SearchRequest) query() url.Values {
	v := url.Values{}
	if len(s.Subjects) > 0 {
		v.Set("subjcode", strings.Join(s.Subjects, ":"))
	}
	if len(s.Courses) > 0 {
		v.Set("crsecode", strings.Join(s.Courses, ":"))
	}
	if len(s.Departments) > 0 {
		v.Set("department", strings.Join(s.Departments, ":"))
	}
	if s.Instructor != "" {
		v.Set("professor", s.Instructor)
	}
	if s.Title != "" {
		v.Set("title", s.Title)
	}
	if s.OnlyOpen {
		v.Set("opensection", "true")
	}
	if len(s.levels) > 0 {
		tokens := make([]string, 0, len(s.levels))
		for _, l := range s.levels {
			switch l {
			case LowerDivision:
				tokens = append(tokens, "L")
			case UpperDivision:
				tokens = append(tokens, "U")
			case Graduate:
				tokens = append(tokens, "G")
			}
		}
		v.Set("levels", strings.Join(tokens, ":"))
	}
	if len(s.days) > 0 {
		tokens := make([]string, 0, len(s.days))
		for _, d := range s.days {
			tokens = append(tokens, string(d))
		}
		v.Set("days", strings.Join(tokens, ":"))
	}
	if s.hasStart {
		v.Set("starttime", strconv.Itoa(s.startHour*100+s.startMin))
	}
	if s.hasEnd {
		v.Set("endtime", strconv.Itoa(s.endHour*100+s.endMin))
	}
	return v
}

// searchKind selects between the three supported search shapes.
type searchKind int

const (
	searchBySection searchKind = iota
	searchByMultipleSections
	searchAdvanced
)

// SearchType is the argument to SearchCourses. Use one of the constructors.
type SearchType struct {
	kind       searchKind
	sectionID  string
	sectionIDs []string
	advanced   *SearchRequest
}

// BySection searches for a single section id.
func BySection(sectionID string) SearchType {
	return SearchType{kind: searchBySection, sectionID: sectionID}
}

// ByMultipleSections searches for several section ids at once.
func ByMultipleSections(sectionIDs []string) SearchType {
	return SearchType{kind: searchByMultipleSections, sectionIDs: sectionIDs}
}

// Advanced searches with the filters accumulated in the given request.
func Advanced(req *SearchRequest) SearchType {
	if req == nil {
		req = NewSearchRequest()
	}
	return SearchType{kind: searchAdvanced, advanced: req}
}
