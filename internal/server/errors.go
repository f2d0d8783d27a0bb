package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ucsd-tools/webreg-scraper/internal/webreg"
)

// kindNames label wrapper error kinds for the error counter.
var kindNames = map[webreg.Kind]string{
	webreg.KindTransport:         "transport",
	webreg.KindURLParse:          "url_parse",
	webreg.KindInput:             "input",
	webreg.KindDeserialize:       "deserialize",
	webreg.KindBadStatus:         "bad_status",
	webreg.KindPortal:            "portal",
	webreg.KindSectionIDNotFound: "section_not_found",
	webreg.KindSessionInvalid:    "session_invalid",
	webreg.KindBadTime:           "bad_time",
}

// writeError maps a wrapper error to its HTTP response.
//
// Deserialize failures get 418: when WebReg stops speaking JSON the session
// is almost always dead, and the distinctive status makes that failure mode
// easy to spot in logs and dashboards.
func (s *Server) writeError(c *gin.Context, err error) {
	var werr *webreg.Error
	if !errors.As(err, &werr) {
		s.state.Metrics.RecordHTTPError("internal")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.state.Metrics.RecordHTTPError(kindNames[werr.Kind])

	status := http.StatusInternalServerError
	body := gin.H{"error": werr.Error()}

	switch werr.Kind {
	case webreg.KindInput, webreg.KindPortal:
		status = http.StatusBadRequest
	case webreg.KindDeserialize:
		status = http.StatusTeapot
	case webreg.KindBadStatus:
		status = werr.Status
	case webreg.KindSessionInvalid:
		status = http.StatusUnauthorized
	case webreg.KindSectionIDNotFound:
		status = http.StatusNotFound
		if werr.NotFoundIn == webreg.NotFoundInSchedule {
			body["context"] = "schedule"
		} else {
			body["context"] = "catalog"
		}
	}

	c.JSON(status, body)
}
