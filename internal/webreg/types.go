package webreg

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SectionSummary is one row of a course search result.
type SectionSummary struct {
	SubjCode    string  `json:"subjCode"`
	CourseCode  string  `json:"courseCode"`
	SectionID   string  `json:"sectionId"`
	CourseTitle string  `json:"courseTitle"`
	Units       float64 `json:"units"`
}

// SubjCourseID returns the "CSE 100"-style identifier for this result.
func (s SectionSummary) SubjCourseID() string {
	return fmt.Sprintf("%s %s", strings.TrimSpace(s.SubjCode), strings.TrimSpace(s.CourseCode))
}

// EnrollmentCount is a section-level enrollment observation.
type EnrollmentCount struct {
	SubjCourseID   string   `json:"subjCourseId"`
	SectionCode    string   `json:"sectionCode"`
	SectionID      string   `json:"sectionId"`
	AllInstructors []string `json:"allInstructors"`
	AvailableSeats int64    `json:"availableSeats"`
	WaitlistCt     int64    `json:"waitlistCt"`
	TotalSeats     int64    `json:"totalSeats"`
	EnrolledCt     int64    `json:"enrolledCt"`
}

// CourseSection is the full parsed section record from course_info.
type CourseSection struct {
	SubjCourseID   string    `json:"subjCourseId"`
	SectionID      string    `json:"sectionId"`
	SectionCode    string    `json:"sectionCode"`
	AllInstructors []string  `json:"allInstructors"`
	AvailableSeats int64     `json:"availableSeats"`
	EnrolledCt     int64     `json:"enrolledCt"`
	TotalSeats     int64     `json:"totalSeats"`
	WaitlistCt     int64     `json:"waitlistCt"`
	Meetings       []Meeting `json:"meetings"`
}

// Meeting is one scheduled meeting of a section.
type Meeting struct {
	MeetingType string   `json:"meetingType"`
	Days        []string `json:"days"`
	StartHour   int      `json:"startHour"`
	StartMin    int      `json:"startMin"`
	EndHour     int      `json:"endHour"`
	EndMin      int      `json:"endMin"`
	Building    string   `json:"building"`
	Room        string   `json:"room"`
}

// EnrollmentStatus is a student's standing in a section on their schedule.
type EnrollmentStatus string

const (
	StatusEnrolled EnrollmentStatus = "EN"
	StatusWaitlist EnrollmentStatus = "WT"
	StatusPlanned  EnrollmentStatus = "PL"
	StatusUnknown  EnrollmentStatus = ""
)

// Droppable reports whether a section with this status can be dropped.
// Only enrolled and waitlisted sections are droppable.
func (s EnrollmentStatus) Droppable() bool {
	return s == StatusEnrolled || s == StatusWaitlist
}

// ScheduleEntry is one section on a user's schedule.
type ScheduleEntry struct {
	SubjCourseID   string           `json:"subjCourseId"`
	SectionID      string           `json:"sectionId"`
	SectionCode    string           `json:"sectionCode"`
	EnrolledStatus EnrollmentStatus `json:"enrolledStatus"`
	GradeOption    string           `json:"gradeOption"`
	Units          float64          `json:"units"`
	Instructors    []string         `json:"instructors"`
	Meetings       []Meeting        `json:"meetings"`
}

// Event is a custom (non-course) calendar event on a user's schedule.
type Event struct {
	Name      string   `json:"name"`
	Days      []string `json:"days"`
	StartHour int      `json:"startHour"`
	StartMin  int      `json:"startMin"`
	EndHour   int      `json:"endHour"`
	EndMin    int      `json:"endMin"`
	Location  string   `json:"location"`
}

// CodeEntry pairs a subject or department code with its description.
type CodeEntry struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// TermEntry is one term known to WebReg.
type TermEntry struct {
	TermCode string `json:"termCode"`
	TermName string `json:"termName"`
}

// GradeOption is a grading basis for an add request.
type GradeOption string

const (
	GradeLetter    GradeOption = "L"
	GradePassFail  GradeOption = "P"
	GradeSatisfact GradeOption = "S"
)

// ParseGradeOption maps a request token to a grading option, defaulting to
// letter grading for unknown tokens.
func ParseGradeOption(s string) GradeOption {
	switch strings.ToUpper(s) {
	case "P":
		return GradePassFail
	case "S":
		return GradeSatisfact
	default:
		return GradeLetter
	}
}

// AddType selects between the enroll and waitlist transactions.
type AddType int

const (
	// AddDecideForMe lets the wrapper pick enroll vs. waitlist based on
	// seat availability.
	AddDecideForMe AddType = iota
	AddEnroll
	AddWaitlist
)

// EnrollWaitAdd is the payload for add_section / validate_add_section.
type EnrollWaitAdd struct {
	SectionID     string
	GradingOption GradeOption
	UnitCount     int64
}

// Valid reports whether the add request has a usable section id.
func (a EnrollWaitAdd) Valid() bool {
	return strings.TrimSpace(a.SectionID) != ""
}

// PlanAdd is the payload for add_to_plan / validate_add_to_plan.
type PlanAdd struct {
	SubjectCode   string
	CourseCode    string
	SectionID     string
	SectionCode   string
	GradingOption GradeOption
	ScheduleName  string
	UnitCount     int64
}

// Valid reports whether the plan request has its required identifiers.
func (p PlanAdd) Valid() bool {
	return strings.TrimSpace(p.SectionID) != "" &&
		strings.TrimSpace(p.SubjectCode) != "" &&
		strings.TrimSpace(p.CourseCode) != ""
}

// rawSection is the wire shape WebReg uses for section rows.
type rawSection struct {
	SubjCode       string      `json:"SUBJ_CODE"`
	CourseCode     string      `json:"CRSE_CODE"`
	CourseTitle    string      `json:"CRSE_TITLE"`
	SectionID      json.Number `json:"SECTION_NUMBER"`
	SectionCode    string      `json:"SECT_CODE"`
	Instructor     string      `json:"PERSON_FULL_NAME"`
	AvailableSeats int64       `json:"AVAIL_SEAT"`
	EnrolledCt     int64       `json:"SCTN_ENRLT_QTY"`
	TotalSeats     int64       `json:"SCTN_CPCTY_QTY"`
	WaitlistCt     json.Number `json:"COUNT_ON_WAITLIST"`
	Units          float64     `json:"UNIT_TO"`
	EnrollStatus   string      `json:"ENROLL_STATUS"`
	GradeOption    string      `json:"GRADE_OPTION"`
	DayCode        string      `json:"DAY_CODE"`
	BeginTime      string      `json:"BEGIN_HH_TIME"`
	EndTime        string      `json:"END_HH_TIME"`
	Building       string      `json:"BLDG_CODE"`
	Room           string      `json:"ROOM_CODE"`
	MeetingType    string      `json:"FK_CDI_INSTR_TYPE"`
}

// instructorNames splits WebReg's semicolon-joined instructor field into
// individual trimmed names. Staff placeholders are kept as-is.
func instructorNames(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ";")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if name := strings.TrimSpace(p); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// parseClock parses WebReg's "HHMM" clock representation.
func parseClock(raw string) (hour, min int, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, 0, nil
	}
	t, err := time.Parse("1504", raw)
	if err != nil {
		return 0, 0, &Error{Kind: KindBadTime, Msg: raw, Err: err}
	}
	return t.Hour(), t.Minute(), nil
}

// dayCodes maps WebReg's numeric day codes to day names.
var dayCodes = map[rune]string{
	'1': "M",
	'2': "Tu",
	'3': "W",
	'4': "Th",
	'5': "F",
	'6': "Sa",
	'7': "Su",
}

// parseDayCode converts a WebReg day-code string (e.g. "135") into day names.
func parseDayCode(raw string) []string {
	var days []string
	for _, r := range raw {
		if d, ok := dayCodes[r]; ok {
			days = append(days, d)
		}
	}
	return days
}
