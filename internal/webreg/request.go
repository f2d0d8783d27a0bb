package webreg

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// TermRequest is a request builder scoped to one term. It is cheap to
// create and must not be reused across requests with different cookies.
type TermRequest struct {
	wrapper        *Wrapper
	term           string
	cookieOverride string
}

// OverrideCookies makes every request from this builder use the given
// cookies instead of the wrapper's own session. Used by the API server to
// forward a user's WebReg session.
func (t *TermRequest) OverrideCookies(cookies string) *TermRequest {
	t.cookieOverride = cookies
	return t
}

// Parsed returns the typed request interface for this term.
func (t *TermRequest) Parsed() *ParsedRequest {
	return &ParsedRequest{req: t}
}

// Raw returns the pass-through request interface for this term.
func (t *TermRequest) Raw() *RawRequest {
	return &RawRequest{req: t}
}

func (t *TermRequest) do(ctx context.Context, method, endpoint string, query url.Values) ([]byte, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("termcode", strings.ToUpper(t.term))
	return t.wrapper.do(ctx, method, endpoint, query, t.cookieOverride)
}

// searchQuery builds the query parameters for the given search type.
func searchTypeQuery(st SearchType) (endpoint string, query url.Values, err error) {
	switch st.kind {
	case searchBySection:
		if strings.TrimSpace(st.sectionID) == "" {
			return "", nil, inputError("sectionId", st.sectionID)
		}
		return "search-by-id", url.Values{"sectionid": {st.sectionID}}, nil
	case searchByMultipleSections:
		if len(st.sectionIDs) == 0 {
			return "", nil, inputError("sectionIds", "empty list")
		}
		return "search-by-id", url.Values{"sectionid": {strings.Join(st.sectionIDs, ":")}}, nil
	default:
		return "search-by-all", st.advanced.query(), nil
	}
}

// ParsedRequest exposes term-scoped operations with typed responses.
type ParsedRequest struct {
	req *TermRequest
}

// SearchCourses runs a course search and returns one row per matching
// course offering.
func (p *ParsedRequest) SearchCourses(ctx context.Context, st SearchType) ([]SectionSummary, error) {
	endpoint, query, err := searchTypeQuery(st)
	if err != nil {
		return nil, err
	}
	body, err := p.req.do(ctx, http.MethodGet, endpoint, query)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		SubjCode    string      `json:"SUBJ_CODE"`
		CourseCode  string      `json:"CRSE_CODE"`
		CourseTitle string      `json:"CRSE_TITLE"`
		SectionID   json.Number `json:"SECTION_NUMBER"`
		UnitTo      float64     `json:"UNIT_TO"`
	}
	if err := decodeJSON(body, &raw); err != nil {
		return nil, err
	}

	results := make([]SectionSummary, 0, len(raw))
	for _, r := range raw {
		results = append(results, SectionSummary{
			SubjCode:    strings.TrimSpace(r.SubjCode),
			CourseCode:  strings.TrimSpace(r.CourseCode),
			CourseTitle: strings.TrimSpace(r.CourseTitle),
			SectionID:   r.SectionID.String(),
			Units:       r.UnitTo,
		})
	}
	return results, nil
}

// GetEnrollmentCount fetches current seat counts for every section of the
// given course. This is the cheapest per-course polling operation.
func (p *ParsedRequest) GetEnrollmentCount(ctx context.Context, subject, course string) ([]EnrollmentCount, error) {
	rows, err := p.loadGroupData(ctx, subject, course)
	if err != nil {
		return nil, err
	}

	subjCourseID := strings.TrimSpace(subject) + " " + strings.TrimSpace(course)
	var counts []EnrollmentCount
	seen := make(map[string]int)
	for _, r := range rows {
		secID := r.SectionID.String()
		if idx, ok := seen[secID]; ok {
			// Additional meeting rows only contribute instructors.
			counts[idx].AllInstructors = mergeInstructors(counts[idx].AllInstructors, instructorNames(r.Instructor))
			continue
		}
		waitlist, _ := r.WaitlistCt.Int64()
		seen[secID] = len(counts)
		counts = append(counts, EnrollmentCount{
			SubjCourseID:   subjCourseID,
			SectionCode:    strings.TrimSpace(r.SectionCode),
			SectionID:      secID,
			AllInstructors: instructorNames(r.Instructor),
			AvailableSeats: r.AvailableSeats,
			WaitlistCt:     waitlist,
			TotalSeats:     r.TotalSeats,
			EnrolledCt:     r.EnrolledCt,
		})
	}
	return counts, nil
}

// GetCourseInfo fetches full section data, including meetings, for the
// given course.
func (p *ParsedRequest) GetCourseInfo(ctx context.Context, subject, course string) ([]CourseSection, error) {
	rows, err := p.loadGroupData(ctx, subject, course)
	if err != nil {
		return nil, err
	}

	subjCourseID := strings.TrimSpace(subject) + " " + strings.TrimSpace(course)
	var sections []CourseSection
	seen := make(map[string]int)
	for _, r := range rows {
		meeting, err := rowMeeting(r)
		if err != nil {
			return nil, err
		}

		secID := r.SectionID.String()
		if idx, ok := seen[secID]; ok {
			sections[idx].Meetings = append(sections[idx].Meetings, meeting)
			sections[idx].AllInstructors = mergeInstructors(sections[idx].AllInstructors, instructorNames(r.Instructor))
			continue
		}
		waitlist, _ := r.WaitlistCt.Int64()
		seen[secID] = len(sections)
		sections = append(sections, CourseSection{
			SubjCourseID:   subjCourseID,
			SectionID:      secID,
			SectionCode:    strings.TrimSpace(r.SectionCode),
			AllInstructors: instructorNames(r.Instructor),
			AvailableSeats: r.AvailableSeats,
			EnrolledCt:     r.EnrolledCt,
			TotalSeats:     r.TotalSeats,
			WaitlistCt:     waitlist,
			Meetings:       []Meeting{meeting},
		})
	}
	return sections, nil
}

// Prerequisite is one prerequisite entry for a course.
type Prerequisite struct {
	// Type is "course" or "exam".
	Type         string `json:"type"`
	SubjCourseID string `json:"subjCourseId,omitempty"`
	Title        string `json:"title"`
}

// GetPrerequisites fetches the prerequisite list for the given course.
func (p *ParsedRequest) GetPrerequisites(ctx context.Context, subject, course string) ([]Prerequisite, error) {
	if strings.TrimSpace(subject) == "" || strings.TrimSpace(course) == "" {
		return nil, inputError("subject/course", subject+"/"+course)
	}
	query := url.Values{
		"subjcode": {strings.TrimSpace(subject)},
		"crsecode": {strings.TrimSpace(course)},
	}
	body, err := p.req.do(ctx, http.MethodGet, "get-prerequisites", query)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Type       string `json:"TYPE"`
		SubjCourse string `json:"SUBJ_CRSE"`
		CrseTitle  string `json:"CRSE_TITLE"`
		TestTitle  string `json:"TEST_TITLE"`
	}
	if err := decodeJSON(body, &raw); err != nil {
		return nil, err
	}

	prereqs := make([]Prerequisite, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r.TestTitle) != "" {
			prereqs = append(prereqs, Prerequisite{Type: "exam", Title: strings.TrimSpace(r.TestTitle)})
			continue
		}
		prereqs = append(prereqs, Prerequisite{
			Type:         "course",
			SubjCourseID: strings.TrimSpace(r.SubjCourse),
			Title:        strings.TrimSpace(r.CrseTitle),
		})
	}
	return prereqs, nil
}

// GetSubjectCodes lists all subject codes for this term. Concurrent calls
// for the same term share one portal request.
func (p *ParsedRequest) GetSubjectCodes(ctx context.Context) ([]CodeEntry, error) {
	return p.codes(ctx, "search-load-subject", "SUBJECT_CODE", "SUBJECT_DESC")
}

// GetDepartmentCodes lists all department codes for this term. Concurrent
// calls for the same term share one portal request.
func (p *ParsedRequest) GetDepartmentCodes(ctx context.Context) ([]CodeEntry, error) {
	return p.codes(ctx, "search-load-department", "DEP_CODE", "DEP_DESC")
}

func (p *ParsedRequest) codes(ctx context.Context, endpoint, codeKey, descKey string) ([]CodeEntry, error) {
	key := endpoint + ":" + strings.ToUpper(p.req.term)
	v, err, _ := p.req.wrapper.codes.Do(key, func() (any, error) {
		body, err := p.req.do(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		var raw []map[string]string
		if err := decodeJSON(body, &raw); err != nil {
			return nil, err
		}
		entries := make([]CodeEntry, 0, len(raw))
		for _, r := range raw {
			entries = append(entries, CodeEntry{
				Code:        strings.TrimSpace(r[codeKey]),
				Description: strings.TrimSpace(r[descKey]),
			})
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]CodeEntry), nil
}

// GetSchedule fetches the user's schedule. An empty name selects the
// default schedule.
func (p *ParsedRequest) GetSchedule(ctx context.Context, scheduleName string) ([]ScheduleEntry, error) {
	query := url.Values{}
	if scheduleName != "" {
		query.Set("schedname", scheduleName)
	}
	body, err := p.req.do(ctx, http.MethodGet, "get-class", query)
	if err != nil {
		return nil, err
	}

	var raw []rawSection
	if err := decodeJSON(body, &raw); err != nil {
		return nil, err
	}

	var entries []ScheduleEntry
	seen := make(map[string]int)
	for _, r := range raw {
		meeting, err := rowMeeting(r)
		if err != nil {
			return nil, err
		}

		secID := r.SectionID.String()
		if idx, ok := seen[secID]; ok {
			entries[idx].Meetings = append(entries[idx].Meetings, meeting)
			entries[idx].Instructors = mergeInstructors(entries[idx].Instructors, instructorNames(r.Instructor))
			continue
		}
		seen[secID] = len(entries)
		entries = append(entries, ScheduleEntry{
			SubjCourseID:   strings.TrimSpace(r.SubjCode) + " " + strings.TrimSpace(r.CourseCode),
			SectionID:      secID,
			SectionCode:    strings.TrimSpace(r.SectionCode),
			EnrolledStatus: parseEnrollStatus(r.EnrollStatus),
			GradeOption:    strings.TrimSpace(r.GradeOption),
			Units:          r.Units,
			Instructors:    instructorNames(r.Instructor),
			Meetings:       []Meeting{meeting},
		})
	}
	return entries, nil
}

// GetScheduleList lists the names of the user's schedules.
func (p *ParsedRequest) GetScheduleList(ctx context.Context) ([]string, error) {
	body, err := p.req.do(ctx, http.MethodGet, "get-schednames", nil)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := decodeJSON(body, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// GetEvents lists the user's custom calendar events.
func (p *ParsedRequest) GetEvents(ctx context.Context) ([]Event, error) {
	body, err := p.req.do(ctx, http.MethodGet, "event-get-all", nil)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Name      string `json:"NAME"`
		DayCode   string `json:"DAY_CODE"`
		BeginTime string `json:"BEGIN_HH_TIME"`
		EndTime   string `json:"END_HH_TIME"`
		Location  string `json:"LOCATION"`
	}
	if err := decodeJSON(body, &raw); err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(raw))
	for _, r := range raw {
		startHour, startMin, err := parseClock(r.BeginTime)
		if err != nil {
			return nil, err
		}
		endHour, endMin, err := parseClock(r.EndTime)
		if err != nil {
			return nil, err
		}
		events = append(events, Event{
			Name:      strings.TrimSpace(r.Name),
			Days:      parseDayCode(r.DayCode),
			StartHour: startHour,
			StartMin:  startMin,
			EndHour:   endHour,
			EndMin:    endMin,
			Location:  strings.TrimSpace(r.Location),
		})
	}
	return events, nil
}

// RenameSchedule renames one of the user's schedules.
func (p *ParsedRequest) RenameSchedule(ctx context.Context, oldName, newName string) (bool, error) {
	if strings.TrimSpace(oldName) == "" || strings.TrimSpace(newName) == "" {
		return false, inputError("scheduleName", oldName+"/"+newName)
	}
	query := url.Values{
		"oldschedname": {oldName},
		"newschedname": {newName},
	}
	return ackToBool(p.req.do(ctx, http.MethodPost, "plan-rename", query))
}

// AddSection enrolls (or waitlists) the user in a section. With
// AddDecideForMe the wrapper picks enroll vs. waitlist based on seat
// availability. When validateFirst is set, the add is validated before the
// transaction is sent.
func (p *ParsedRequest) AddSection(ctx context.Context, at AddType, add EnrollWaitAdd, validateFirst bool) (bool, error) {
	if !add.Valid() {
		return false, inputError("sectionId", add.SectionID)
	}

	at, err := p.resolveAddType(ctx, at, add.SectionID)
	if err != nil {
		return false, err
	}

	if validateFirst {
		if ok, err := p.validateAdd(ctx, at, add); err != nil || !ok {
			return ok, err
		}
	}

	endpoint := "add-enroll"
	if at == AddWaitlist {
		endpoint = "add-wait"
	}
	return ackToBool(p.req.do(ctx, http.MethodPost, endpoint, addSectionQuery(add)))
}

// ValidateAddSection checks whether the user could add the given section
// without performing the add.
func (p *ParsedRequest) ValidateAddSection(ctx context.Context, at AddType, add EnrollWaitAdd) (bool, error) {
	if !add.Valid() {
		return false, inputError("sectionId", add.SectionID)
	}
	at, err := p.resolveAddType(ctx, at, add.SectionID)
	if err != nil {
		return false, err
	}
	return p.validateAdd(ctx, at, add)
}

func (p *ParsedRequest) validateAdd(ctx context.Context, at AddType, add EnrollWaitAdd) (bool, error) {
	endpoint := "enroll-validate"
	if at == AddWaitlist {
		endpoint = "wait-validate"
	}
	return ackToBool(p.req.do(ctx, http.MethodPost, endpoint, addSectionQuery(add)))
}

// resolveAddType turns AddDecideForMe into a concrete enroll/waitlist
// decision by checking seat availability for the section.
func (p *ParsedRequest) resolveAddType(ctx context.Context, at AddType, sectionID string) (AddType, error) {
	if at != AddDecideForMe {
		return at, nil
	}
	rows, err := p.sectionByID(ctx, sectionID)
	if err != nil {
		return at, err
	}
	if len(rows) == 0 {
		return at, sectionNotFound(sectionID, NotFoundInCatalog)
	}
	if rows[0].AvailableSeats > 0 {
		return AddEnroll, nil
	}
	return AddWaitlist, nil
}

// DropSection drops an enrolled or waitlisted section. The caller must
// say which kind of drop this is; AddDecideForMe is not accepted here.
func (p *ParsedRequest) DropSection(ctx context.Context, at AddType, sectionID string) (bool, error) {
	if strings.TrimSpace(sectionID) == "" {
		return false, inputError("sectionId", sectionID)
	}
	var endpoint string
	switch at {
	case AddEnroll:
		endpoint = "drop-enroll"
	case AddWaitlist:
		endpoint = "drop-wait"
	default:
		return false, inputError("addType", "drop requires enroll or waitlist")
	}
	query := url.Values{"sectnum": {sectionID}}
	return ackToBool(p.req.do(ctx, http.MethodPost, endpoint, query))
}

// AddToPlan adds a section to one of the user's planned schedules.
func (p *ParsedRequest) AddToPlan(ctx context.Context, plan PlanAdd, validateFirst bool) (bool, error) {
	if !plan.Valid() {
		return false, inputError("planAdd", plan.SectionID)
	}
	if validateFirst {
		if ok, err := p.ValidateAddToPlan(ctx, plan); err != nil || !ok {
			return ok, err
		}
	}
	return ackToBool(p.req.do(ctx, http.MethodPost, "add-plan", planQuery(plan)))
}

// ValidateAddToPlan checks whether a section could be added to a plan.
func (p *ParsedRequest) ValidateAddToPlan(ctx context.Context, plan PlanAdd) (bool, error) {
	if !plan.Valid() {
		return false, inputError("planAdd", plan.SectionID)
	}
	return ackToBool(p.req.do(ctx, http.MethodPost, "plan-validate", planQuery(plan)))
}

// RemoveFromPlan removes a section from a planned schedule. An empty
// schedule name selects the default schedule.
func (p *ParsedRequest) RemoveFromPlan(ctx context.Context, sectionID, scheduleName string) (bool, error) {
	if strings.TrimSpace(sectionID) == "" {
		return false, inputError("sectionId", sectionID)
	}
	query := url.Values{"sectnum": {sectionID}}
	if scheduleName != "" {
		query.Set("schedname", scheduleName)
	}
	return ackToBool(p.req.do(ctx, http.MethodPost, "delete-plan", query))
}

// AssociateTerm registers this term for the session. WebReg requires this
// before any other term-scoped call succeeds for a fresh session.
func (p *ParsedRequest) AssociateTerm(ctx context.Context) error {
	body, err := p.req.do(ctx, http.MethodPost, "add-update-term", nil)
	if err != nil {
		return err
	}
	return checkAck(body)
}

func (p *ParsedRequest) loadGroupData(ctx context.Context, subject, course string) ([]rawSection, error) {
	if strings.TrimSpace(subject) == "" || strings.TrimSpace(course) == "" {
		return nil, inputError("subject/course", subject+"/"+course)
	}
	query := url.Values{
		"subjcode": {strings.TrimSpace(subject)},
		"crsecode": {strings.TrimSpace(course)},
	}
	body, err := p.req.do(ctx, http.MethodGet, "search-load-group-data", query)
	if err != nil {
		return nil, err
	}
	var rows []rawSection
	if err := decodeJSON(body, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (p *ParsedRequest) sectionByID(ctx context.Context, sectionID string) ([]rawSection, error) {
	query := url.Values{"sectionid": {sectionID}}
	body, err := p.req.do(ctx, http.MethodGet, "search-load-group-data", query)
	if err != nil {
		return nil, err
	}
	var rows []rawSection
	if err := decodeJSON(body, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// RawRequest exposes term-scoped operations whose responses are returned
// exactly as WebReg sent them.
type RawRequest struct {
	req *TermRequest
}

// SearchCourses runs a course search and returns the raw body.
func (r *RawRequest) SearchCourses(ctx context.Context, st SearchType) (string, error) {
	endpoint, query, err := searchTypeQuery(st)
	if err != nil {
		return "", err
	}
	body, err := r.req.do(ctx, http.MethodGet, endpoint, query)
	return string(body), err
}

// GetCourseInfo fetches raw section data for the given course.
func (r *RawRequest) GetCourseInfo(ctx context.Context, subject, course string) (string, error) {
	if strings.TrimSpace(subject) == "" || strings.TrimSpace(course) == "" {
		return "", inputError("subject/course", subject+"/"+course)
	}
	query := url.Values{
		"subjcode": {strings.TrimSpace(subject)},
		"crsecode": {strings.TrimSpace(course)},
	}
	body, err := r.req.do(ctx, http.MethodGet, "search-load-group-data", query)
	return string(body), err
}

// GetPrerequisites fetches the raw prerequisite list.
func (r *RawRequest) GetPrerequisites(ctx context.Context, subject, course string) (string, error) {
	if strings.TrimSpace(subject) == "" || strings.TrimSpace(course) == "" {
		return "", inputError("subject/course", subject+"/"+course)
	}
	query := url.Values{
		"subjcode": {strings.TrimSpace(subject)},
		"crsecode": {strings.TrimSpace(course)},
	}
	body, err := r.req.do(ctx, http.MethodGet, "get-prerequisites", query)
	return string(body), err
}

// GetSchedule fetches the raw schedule body.
func (r *RawRequest) GetSchedule(ctx context.Context, scheduleName string) (string, error) {
	query := url.Values{}
	if scheduleName != "" {
		query.Set("schedname", scheduleName)
	}
	body, err := r.req.do(ctx, http.MethodGet, "get-class", query)
	return string(body), err
}

// GetScheduleList fetches the raw schedule name list.
func (r *RawRequest) GetScheduleList(ctx context.Context) (string, error) {
	body, err := r.req.do(ctx, http.MethodGet, "get-schednames", nil)
	return string(body), err
}

func addSectionQuery(add EnrollWaitAdd) url.Values {
	query := url.Values{
		"sectnum": {add.SectionID},
		"grade":   {string(add.GradingOption)},
	}
	if add.UnitCount > 0 {
		query.Set("unit", strconv.FormatInt(add.UnitCount, 10))
	}
	return query
}

func planQuery(plan PlanAdd) url.Values {
	query := url.Values{
		"subjcode": {plan.SubjectCode},
		"crsecode": {plan.CourseCode},
		"sectnum":  {plan.SectionID},
		"sectcode": {plan.SectionCode},
		"grade":    {string(plan.GradingOption)},
		"unit":     {strconv.FormatInt(plan.UnitCount, 10)},
	}
	if plan.ScheduleName != "" {
		query.Set("schedname", plan.ScheduleName)
	}
	return query
}

func parseEnrollStatus(raw string) EnrollmentStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "EN":
		return StatusEnrolled
	case "WT":
		return StatusWaitlist
	case "PL":
		return StatusPlanned
	default:
		return StatusUnknown
	}
}

func rowMeeting(r rawSection) (Meeting, error) {
	startHour, startMin, err := parseClock(r.BeginTime)
	if err != nil {
		return Meeting{}, err
	}
	endHour, endMin, err := parseClock(r.EndTime)
	if err != nil {
		return Meeting{}, err
	}
	return Meeting{
		MeetingType: strings.TrimSpace(r.MeetingType),
		Days:        parseDayCode(r.DayCode),
		StartHour:   startHour,
		StartMin:    startMin,
		EndHour:     endHour,
		EndMin:      endMin,
		Building:    strings.TrimSpace(r.Building),
		Room:        strings.TrimSpace(r.Room),
	}, nil
}

func mergeInstructors(existing, incoming []string) []string {
	for _, name := range incoming {
		found := false
		for _, e := range existing {
			if e == name {
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, name)
		}
	}
	return existing
}
