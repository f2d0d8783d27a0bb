package server

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ucsd-tools/webreg-scraper/internal/webreg"
)

// health reports whether the tracker is actively polling. It stays reachable
// while the tracker recovers, unlike the readiness-gated routes.
func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"api": s.state.IsRunning()})
}

// timing returns the latency statistics for one tracked term.
func (s *Server) timing(c *gin.Context) {
	info, _ := s.state.TermInfo(c.GetString(ctxTermKey))
	numRequests, totalTimeMS, recent := info.Stats.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"ttl_requests":    numRequests,
		"ttl_time_ms":     totalTimeMS,
		"recent_requests": recent,
	})
}

// loginStat proxies login statistics from the cookie server. When the
// cookie server is unreachable a neutral fallback is served so dashboards
// keep rendering.
func (s *Server) loginStat(c *gin.Context) {
	stat := c.Param("stat")
	if stat != "start" && stat != "history" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown statistic."})
		return
	}

	fallback := "0"
	if stat == "history" {
		fallback = "[]"
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, s.state.CookieServerURL(stat), nil)
	if err != nil {
		c.Data(http.StatusOK, "application/json", []byte(fallback))
		return
	}
	resp, err := s.state.Client.Do(req)
	if err != nil {
		c.Data(http.StatusOK, "application/json", []byte(fallback))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.Data(http.StatusOK, "application/json", []byte(fallback))
		return
	}
	if !json.Valid(body) {
		s.state.Metrics.RecordHTTPError("login_stat")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Cookie server returned a malformed statistic."})
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

// shared returns the polling-session request builder for the request's term.
func (s *Server) shared(c *gin.Context) *webreg.TermRequest {
	return s.state.Wrapper.Req(c.GetString(ctxTermKey))
}

// forwarded returns a request builder carrying the caller's own cookies.
func (s *Server) forwarded(c *gin.Context) *webreg.TermRequest {
	return s.state.CWrapper.Req(c.GetString(ctxTermKey)).OverrideCookies(c.GetString(ctxCookieKey))
}

// rawMode reports whether the caller asked for the unparsed portal body.
func rawMode(c *gin.Context) bool {
	return strings.EqualFold(c.Query("raw"), "true")
}

// writeRaw returns a pass-through portal body. Non-JSON bodies are served
// as-is; the caller asked for exactly what the portal said.
func (s *Server) writeRaw(c *gin.Context, body string, err error) {
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(body))
}

func (s *Server) getTerms(c *gin.Context) {
	terms, err := s.state.Wrapper.GetTerms(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, terms)
}

func (s *Server) courseInfo(c *gin.Context) {
	subject, course := c.Query("subject"), c.Query("number")
	if rawMode(c) {
		body, err := s.shared(c).Raw().GetCourseInfo(c.Request.Context(), subject, course)
		s.writeRaw(c, body, err)
		return
	}
	sections, err := s.shared(c).Parsed().GetCourseInfo(c.Request.Context(), subject, course)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sections)
}

func (s *Server) prerequisites(c *gin.Context) {
	subject, course := c.Query("subject"), c.Query("number")
	if rawMode(c) {
		body, err := s.shared(c).Raw().GetPrerequisites(c.Request.Context(), subject, course)
		s.writeRaw(c, body, err)
		return
	}
	prereqs, err := s.shared(c).Parsed().GetPrerequisites(c.Request.Context(), subject, course)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, prereqs)
}

// advancedSearchBody is the JSON shape of an advanced search request.
type advancedSearchBody struct {
	Subjects    []string `json:"subjects"`
	Courses     []string `json:"courses"`
	Departments []string `json:"departments"`
	Instructor  string   `json:"instructor"`
	Title       string   `json:"title"`
	OnlyOpen    bool     `json:"onlyOpen"`
	Days        []string `json:"days"`
	Levels      []string `json:"levels"`
	StartHour   *int64   `json:"startHour"`
	StartMin    *int64   `json:"startMin"`
	EndHour     *int64   `json:"endHour"`
	EndMin      *int64   `json:"endMin"`
}

// clockPair narrows an hour/minute pair to unsigned 32-bit. Pairs that are
// incomplete or out of range are dropped rather than failing the search.
func clockPair(hour, min *int64) (uint32, uint32, bool) {
	if hour == nil || min == nil {
		return 0, 0, false
	}
	if *hour < 0 || *hour > math.MaxUint32 || *min < 0 || *min > math.MaxUint32 {
		return 0, 0, false
	}
	return uint32(*hour), uint32(*min), true
}

// parseSearchBody probes the three accepted request shapes in order:
// a single section id, a list of section ids, then an advanced filter set.
func parseSearchBody(raw []byte) (webreg.SearchType, error) {
	var single struct {
		SectionID string `json:"sectionId"`
	}
	if err := strictUnmarshal(raw, &single); err == nil && single.SectionID != "" {
		return webreg.BySection(single.SectionID), nil
	}

	var multi struct {
		SectionIDs []string `json:"sectionIds"`
	}
	if err := strictUnmarshal(raw, &multi); err == nil && len(multi.SectionIDs) > 0 {
		return webreg.ByMultipleSections(multi.SectionIDs), nil
	}

	var adv advancedSearchBody
	if err := json.Unmarshal(raw, &adv); err != nil {
		return webreg.SearchType{}, err
	}

	req := webreg.NewSearchRequest()
	for _, subj := range adv.Subjects {
		req.AddSubject(subj)
	}
	for _, course := range adv.Courses {
		req.AddCourse(course)
	}
	for _, dept := range adv.Departments {
		req.AddDepartment(dept)
	}
	if adv.Instructor != "" {
		req.SetInstructor(adv.Instructor)
	}
	if adv.Title != "" {
		req.SetTitle(adv.Title)
	}
	req.OnlyOpen = adv.OnlyOpen
	for _, token := range adv.Days {
		if day, ok := webreg.ParseDay(token); ok {
			req.ApplyDay(day)
		}
	}
	for _, token := range adv.Levels {
		if level, ok := webreg.ParseLevelFilter(token); ok {
			req.FilterCoursesBy(level)
		}
	}
	if hour, min, ok := clockPair(adv.StartHour, adv.StartMin); ok {
		req.SetStartTime(hour, min)
	}
	if hour, min, ok := clockPair(adv.EndHour, adv.EndMin); ok {
		req.SetEndTime(hour, min)
	}
	return webreg.Advanced(req), nil
}

// strictUnmarshal decodes JSON rejecting unknown fields, so the probe does
// not mistake an advanced body for a section id lookup.
func strictUnmarshal(raw []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func (s *Server) search(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot read request body."})
		return
	}
	st, err := parseSearchBody(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request body matches no search shape."})
		return
	}

	if rawMode(c) {
		body, err := s.shared(c).Raw().SearchCourses(c.Request.Context(), st)
		s.writeRaw(c, body, err)
		return
	}
	results, err := s.shared(c).Parsed().SearchCourses(c.Request.Context(), st)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (s *Server) subjectCodes(c *gin.Context) {
	codes, err := s.shared(c).Parsed().GetSubjectCodes(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, codes)
}

func (s *Server) departmentCodes(c *gin.Context) {
	codes, err := s.shared(c).Parsed().GetDepartmentCodes(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, codes)
}

func (s *Server) schedule(c *gin.Context) {
	name := c.Query("scheduleName")
	if rawMode(c) {
		body, err := s.forwarded(c).Raw().GetSchedule(c.Request.Context(), name)
		s.writeRaw(c, body, err)
		return
	}
	entries, err := s.forwarded(c).Parsed().GetSchedule(c.Request.Context(), name)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) scheduleList(c *gin.Context) {
	if rawMode(c) {
		body, err := s.forwarded(c).Raw().GetScheduleList(c.Request.Context())
		s.writeRaw(c, body, err)
		return
	}
	names, err := s.forwarded(c).Parsed().GetScheduleList(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, names)
}

func (s *Server) events(c *gin.Context) {
	events, err := s.forwarded(c).Parsed().GetEvents(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func (s *Server) registerTerm(c *gin.Context) {
	if err := s.forwarded(c).Parsed().AssociateTerm(c.Request.Context()); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// addSectionBody is the JSON payload for add_section and
// validate_add_section.
type addSectionBody struct {
	SectionID     string `json:"sectionId"`
	GradingOption string `json:"gradingOption"`
	UnitCount     int64  `json:"unitCount"`
	// AddType is "enroll", "waitlist" or empty to let seat availability
	// decide.
	AddType       string `json:"addType"`
	ValidateFirst bool   `json:"validateFirst"`
}

func parseAddType(token string) (webreg.AddType, bool) {
	switch strings.ToLower(token) {
	case "":
		return webreg.AddDecideForMe, true
	case "enroll":
		return webreg.AddEnroll, true
	case "waitlist":
		return webreg.AddWaitlist, true
	default:
		return webreg.AddDecideForMe, false
	}
}

func (s *Server) addSection(c *gin.Context) {
	var body addSectionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed request body."})
		return
	}
	at, ok := parseAddType(body.AddType)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown add type."})
		return
	}

	add := webreg.EnrollWaitAdd{
		SectionID:     body.SectionID,
		GradingOption: webreg.ParseGradeOption(body.GradingOption),
		UnitCount:     body.UnitCount,
	}
	success, err := s.forwarded(c).Parsed().AddSection(c.Request.Context(), at, add, body.ValidateFirst)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": success})
}

func (s *Server) validateAddSection(c *gin.Context) {
	var body addSectionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed request body."})
		return
	}
	at, ok := parseAddType(body.AddType)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown add type."})
		return
	}

	add := webreg.EnrollWaitAdd{
		SectionID:     body.SectionID,
		GradingOption: webreg.ParseGradeOption(body.GradingOption),
		UnitCount:     body.UnitCount,
	}
	success, err := s.forwarded(c).Parsed().ValidateAddSection(c.Request.Context(), at, add)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": success})
}

// dropSection drops a section in two phases: the user's schedule is fetched
// first to learn whether the section is enrolled or waitlisted, then the
// matching drop transaction is issued. Sections in any other status cannot
// be dropped.
func (s *Server) dropSection(c *gin.Context) {
	var body struct {
		SectionID string `json:"sectionId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.SectionID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed request body."})
		return
	}

	entries, err := s.forwarded(c).Parsed().GetSchedule(c.Request.Context(), "")
	if err != nil {
		s.writeError(c, err)
		return
	}

	at := webreg.AddDecideForMe
	for _, entry := range entries {
		if entry.SectionID != body.SectionID {
			continue
		}
		switch entry.EnrolledStatus {
		case webreg.StatusEnrolled:
			at = webreg.AddEnroll
		case webreg.StatusWaitlist:
			at = webreg.AddWaitlist
		}
		break
	}
	if at == webreg.AddDecideForMe {
		s.state.Metrics.RecordHTTPError("section_not_found")
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Section not found on schedule or not droppable.",
			"context": "schedule",
		})
		return
	}

	success, err := s.forwarded(c).Parsed().DropSection(c.Request.Context(), at, body.SectionID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": success})
}

// planBody is the JSON payload for the plan operations.
type planBody struct {
	SubjectCode   string `json:"subjectCode"`
	CourseCode    string `json:"courseCode"`
	SectionID     string `json:"sectionId"`
	SectionCode   string `json:"sectionCode"`
	GradingOption string `json:"gradingOption"`
	ScheduleName  string `json:"scheduleName"`
	UnitCount     int64  `json:"unitCount"`
	ValidateFirst bool   `json:"validateFirst"`
}

func (b planBody) toPlanAdd() webreg.PlanAdd {
	return webreg.PlanAdd{
		SubjectCode:   b.SubjectCode,
		CourseCode:    b.CourseCode,
		SectionID:     b.SectionID,
		SectionCode:   b.SectionCode,
		GradingOption: webreg.ParseGradeOption(b.GradingOption),
		ScheduleName:  b.ScheduleName,
		UnitCount:     b.UnitCount,
	}
}

func (s *Server) addPlan(c *gin.Context) {
	var body planBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed request body."})
		return
	}
	success, err := s.forwarded(c).Parsed().AddToPlan(c.Request.Context(), body.toPlanAdd(), body.ValidateFirst)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": success})
}

func (s *Server) validateAddPlan(c *gin.Context) {
	var body planBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed request body."})
		return
	}
	success, err := s.forwarded(c).Parsed().ValidateAddToPlan(c.Request.Context(), body.toPlanAdd())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": success})
}

func (s *Server) removePlan(c *gin.Context) {
	var body struct {
		SectionID    string `json:"sectionId"`
		ScheduleName string `json:"scheduleName"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed request body."})
		return
	}
	success, err := s.forwarded(c).Parsed().RemoveFromPlan(c.Request.Context(), body.SectionID, body.ScheduleName)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": success})
}

func (s *Server) renameSchedule(c *gin.Context) {
	var body struct {
		OldName string `json:"oldName"`
		NewName string `json:"newName"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed request body."})
		return
	}
	success, err := s.forwarded(c).Parsed().RenameSchedule(c.Request.Context(), body.OldName, body.NewName)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": success})
}
