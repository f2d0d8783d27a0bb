package webreg

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAck(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantKind Kind
		wantErr  bool
	}{
		{"success token", `"SUCCESS"`, 0, false},
		{"lowercase success", `"success"`, 0, false},
		{"empty string", `""`, 0, false},
		{"portal error", `"You cannot enroll in this section."`, KindPortal, true},
		{"not authorized", `"not authorized to perform this action"`, KindSessionInvalid, true},
		{"session expired", `"Your session has expired."`, KindSessionInvalid, true},
		{"login page", `<html><body>Login</body></html>`, KindSessionInvalid, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkAck([]byte(tt.body))
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var werr *Error
			require.ErrorAs(t, err, &werr)
			assert.Equal(t, tt.wantKind, werr.Kind)
		})
	}
}

func TestDecodeJSON_LoginPageMeansSessionInvalid(t *testing.T) {
	var out []string
	err := decodeJSON([]byte("  <!DOCTYPE html><html></html>"), &out)

	var werr *Error
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, KindSessionInvalid, werr.Kind)
}

func TestDecodeJSON_GarbageMeansDeserialize(t *testing.T) {
	var out []string
	err := decodeJSON([]byte("not json at all"), &out)

	var werr *Error
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, KindDeserialize, werr.Kind)
}

func TestSetCookies_SnapshotVisible(t *testing.T) {
	w := New(WithCookies("first=1"))
	assert.Equal(t, "first=1", w.Cookies())

	w.SetCookies("second=2")
	assert.Equal(t, "second=2", w.Cookies())
}

func TestSearchCourses_ParsesRows(t *testing.T) {
	var gotCookie, gotTerm string
	portal := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search-by-all", r.URL.Path)
		gotCookie = r.Header.Get("Cookie")
		gotTerm = r.URL.Query().Get("termcode")
		_, _ = rw.Write([]byte(`[
			{"SUBJ_CODE":"CSE ","CRSE_CODE":" 100","CRSE_TITLE":"Advanced Data Structures","SECTION_NUMBER":79914,"UNIT_TO":4},
			{"SUBJ_CODE":"CSE","CRSE_CODE":"101","CRSE_TITLE":"Algorithms","SECTION_NUMBER":"79920","UNIT_TO":4}
		]`))
	}))
	defer portal.Close()

	w := New(WithBaseURL(portal.URL), WithCookies("sess=abc"))
	results, err := w.Req("fa24").Parsed().SearchCourses(context.Background(), Advanced(nil))
	require.NoError(t, err)

	assert.Equal(t, "sess=abc", gotCookie)
	assert.Equal(t, "FA24", gotTerm)
	require.Len(t, results, 2)
	assert.Equal(t, "CSE 100", results[0].SubjCourseID())
	assert.Equal(t, "79914", results[0].SectionID)
	assert.Equal(t, "79920", results[1].SectionID)
}

func TestGetEnrollmentCount_GroupsMeetingRows(t *testing.T) {
	portal := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search-load-group-data", r.URL.Path)
		_, _ = rw.Write([]byte(`[
			{"SECTION_NUMBER":1111,"SECT_CODE":"A01","PERSON_FULL_NAME":"Doe, Jane","AVAIL_SEAT":5,"SCTN_ENRLT_QTY":95,"SCTN_CPCTY_QTY":100,"COUNT_ON_WAITLIST":3},
			{"SECTION_NUMBER":1111,"SECT_CODE":"A01","PERSON_FULL_NAME":"Roe, John","AVAIL_SEAT":5,"SCTN_ENRLT_QTY":95,"SCTN_CPCTY_QTY":100,"COUNT_ON_WAITLIST":3},
			{"SECTION_NUMBER":2222,"SECT_CODE":"B01","PERSON_FULL_NAME":"Doe, Jane","AVAIL_SEAT":0,"SCTN_ENRLT_QTY":50,"SCTN_CPCTY_QTY":50,"COUNT_ON_WAITLIST":"12"}
		]`))
	}))
	defer portal.Close()

	w := New(WithBaseURL(portal.URL))
	counts, err := w.Req("FA24").Parsed().GetEnrollmentCount(context.Background(), "CSE", "100")
	require.NoError(t, err)

	require.Len(t, counts, 2)
	assert.Equal(t, "CSE 100", counts[0].SubjCourseID)
	assert.Equal(t, []string{"Doe, Jane", "Roe, John"}, counts[0].AllInstructors)
	assert.Equal(t, int64(5), counts[0].AvailableSeats)
	assert.Equal(t, int64(3), counts[0].WaitlistCt)
	assert.Equal(t, int64(12), counts[1].WaitlistCt)
}

func TestCookieOverride_ReplacesSessionForOneRequest(t *testing.T) {
	var gotCookie string
	portal := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		_, _ = rw.Write([]byte(`[]`))
	}))
	defer portal.Close()

	w := New(WithBaseURL(portal.URL), WithCookies("shared=1"))

	_, err := w.Req("FA24").OverrideCookies("user=2").Parsed().GetScheduleList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user=2", gotCookie)

	// A fresh builder falls back to the wrapper's own cookies
	_, err = w.Req("FA24").Parsed().GetScheduleList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "shared=1", gotCookie)
}

func TestBadStatus_PropagatesCode(t *testing.T) {
	portal := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusBadGateway)
		_, _ = rw.Write([]byte("upstream broke"))
	}))
	defer portal.Close()

	w := New(WithBaseURL(portal.URL))
	_, err := w.Req("FA24").Parsed().SearchCourses(context.Background(), Advanced(nil))

	var werr *Error
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, KindBadStatus, werr.Kind)
	assert.Equal(t, http.StatusBadGateway, werr.Status)
}

func TestRegisterAllTerms(t *testing.T) {
	var associated []string
	portal := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/get-term":
			_, _ = rw.Write([]byte(`[{"TERM_CODE":"FA24","TERM_DESC":"Fall 2024"},{"TERM_CODE":"WI25","TERM_DESC":"Winter 2025"}]`))
		case "/add-update-term":
			associated = append(associated, r.URL.Query().Get("termcode"))
			_, _ = rw.Write([]byte(`"SUCCESS"`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer portal.Close()

	w := New(WithBaseURL(portal.URL))
	require.NoError(t, w.RegisterAllTerms(context.Background()))
	assert.Equal(t, []string{"FA24", "WI25"}, associated)
}

func TestDropSection_RejectsDecideForMe(t *testing.T) {
	w := New()
	_, err := w.Req("FA24").Parsed().DropSection(context.Background(), AddDecideForMe, "1234")

	var werr *Error
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, KindInput, werr.Kind)
}

func TestAddSection_DecideForMePicksByAvailability(t *testing.T) {
	var endpoints []string
	portal := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		endpoints = append(endpoints, r.URL.Path)
		switch r.URL.Path {
		case "/search-load-group-data":
			_, _ = rw.Write([]byte(`[{"SECTION_NUMBER":1234,"SECT_CODE":"A01","AVAIL_SEAT":0,"SCTN_CPCTY_QTY":100,"SCTN_ENRLT_QTY":100,"COUNT_ON_WAITLIST":4}]`))
		default:
			_, _ = rw.Write([]byte(`"SUCCESS"`))
		}
	}))
	defer portal.Close()

	w := New(WithBaseURL(portal.URL))
	ok, err := w.Req("FA24").Parsed().AddSection(context.Background(), AddDecideForMe, EnrollWaitAdd{SectionID: "1234"}, false)
	require.NoError(t, err)
	assert.True(t, ok)

	// No seats, so the waitlist transaction is chosen
	assert.Equal(t, []string{"/search-load-group-data", "/add-wait"}, endpoints)
}

func TestParseClock(t *testing.T) {
	hour, min, err := parseClock("1504")
	require.NoError(t, err)
	assert.Equal(t, 15, hour)
	assert.Equal(t, 4, min)

	hour, min, err = parseClock("")
	require.NoError(t, err)
	assert.Zero(t, hour)
	assert.Zero(t, min)

	_, _, err = parseClock("25xx")
	var werr *Error
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, KindBadTime, werr.Kind)
}

func TestParseDayCode(t *testing.T) {
	assert.Equal(t, []string{"M", "W", "F"}, parseDayCode("135"))
	assert.Equal(t, []string{"Tu", "Th"}, parseDayCode("24"))
	assert.Nil(t, parseDayCode("09"))
}

func TestInstructorNames(t *testing.T) {
	assert.Equal(t, []string{"Doe, Jane", "Roe, John"}, instructorNames("Doe, Jane; Roe, John"))
	assert.Equal(t, []string{"Staff"}, instructorNames("Staff"))
	assert.Nil(t, instructorNames("   "))
}
