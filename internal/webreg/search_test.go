package webreg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDay(t *testing.T) {
	tests := []struct {
		token string
		want  Day
		ok    bool
	}{
		{"m", Monday, true},
		{"M", Monday, true},
		{"tu", Tuesday, true},
		{"TH", Thursday, true},
		{"sa", Saturday, true},
		{"su", Sunday, true},
		{"x", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		day, ok := ParseDay(tt.token)
		assert.Equal(t, tt.ok, ok, "token %q", tt.token)
		assert.Equal(t, tt.want, day, "token %q", tt.token)
	}
}

func TestParseLevelFilter(t *testing.T) {
	tests := []struct {
		token string
		want  LevelFilter
		ok    bool
	}{
		{"l", LowerDivision, true},
		{"U", UpperDivision, true},
		{"g", Graduate, true},
		{"grad", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		level, ok := ParseLevelFilter(tt.token)
		assert.Equal(t, tt.ok, ok, "token %q", tt.token)
		assert.Equal(t, tt.want, level, "token %q", tt.token)
	}
}

func TestSearchRequest_Query(t *testing.T) {
	req := NewSearchRequest().
		AddSubject("CSE").
		AddSubject("MATH").
		AddCourse("100").
		AddDepartment("CSE").
		SetInstructor("Kane").
		SetTitle("Data Structures").
		FilterCoursesBy(UpperDivision).
		FilterCoursesBy(Graduate).
		ApplyDay(Monday).
		ApplyDay(Wednesday).
		SetStartTime(10, 0).
		SetEndTime(15, 30)
	req.OnlyOpen = true

	q := req.query()
	assert.Equal(t, "CSE:MATH", q.Get("subjcode"))
	assert.Equal(t, "100", q.Get("crsecode"))
	assert.Equal(t, "CSE", q.Get("department"))
	assert.Equal(t, "Kane", q.Get("professor"))
	assert.Equal(t, "Data Structures", q.Get("title"))
	assert.Equal(t, "true", q.Get("opensection"))
	assert.Equal(t, "U:G", q.Get("levels"))
	assert.Equal(t, "M:W", q.Get("days"))
	assert.Equal(t, "1000", q.Get("starttime"))
	assert.Equal(t, "1530", q.Get("endtime"))
}

func TestSearchRequest_EmptyQuery(t *testing.T) {
	q := NewSearchRequest().query()
	assert.Empty(t, q)
}

func TestSearchRequest_DuplicateFiltersIgnored(t *testing.T) {
	req := NewSearchRequest().
		ApplyDay(Monday).
		ApplyDay(Monday).
		FilterCoursesBy(Graduate).
		FilterCoursesBy(Graduate)

	q := req.query()
	assert.Equal(t, "M", q.Get("days"))
	assert.Equal(t, "G", q.Get("levels"))
}

func TestSearchTypeQuery(t *testing.T) {
	endpoint, q, err := searchTypeQuery(BySection("123456"))
	assert.NoError(t, err)
	assert.Equal(t, "search-by-id", endpoint)
	assert.Equal(t, "123456", q.Get("sectionid"))

	endpoint, q, err = searchTypeQuery(ByMultipleSections([]string{"1", "2", "3"}))
	assert.NoError(t, err)
	assert.Equal(t, "search-by-id", endpoint)
	assert.Equal(t, "1:2:3", q.Get("sectionid"))

	endpoint, _, err = searchTypeQuery(Advanced(NewSearchRequest().AddSubject("CSE")))
	assert.NoError(t, err)
	assert.Equal(t, "search-by-all", endpoint)

	_, _, err = searchTypeQuery(BySection("  "))
	assert.Error(t, err)

	_, _, err = searchTypeQuery(ByMultipleSections(nil))
	assert.Error(t, err)
}

func TestParseGradeOption(t *testing.T) {
	assert.Equal(t, GradePassFail, ParseGradeOption("p"))
	assert.Equal(t, GradeSatisfact, ParseGradeOption("S"))
	assert.Equal(t, GradeLetter, ParseGradeOption("L"))
	assert.Equal(t, GradeLetter, ParseGradeOption("anything"))
}
