package tracker

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ucsd-tools/webreg-scraper/internal/webreg"
)

// csvHeader is the column layout of the enrollment log.
const csvHeader = "time,subj_course_id,sec_code,sec_id,prof,available,waitlist,total,enrolled_ct"

// enrollmentLog is the append-only CSV time series for one term. A single
// term worker owns the file handle for its whole lifetime, so rows are
// strictly chronological.
type enrollmentLog struct {
	file *os.File
	w    *bufio.Writer
	path string
}

// openEnrollmentLog opens (or creates) the CSV log for a term. The file
// name embeds the local start time; the header row is written only when
// the file is new.
func openEnrollmentLog(dir, term string, now time.Time) (*enrollmentLog, error) {
	name := fmt.Sprintf("enrollment_%s_%s.csv", now.Format("2006-01-02T15_04_05"), term)
	path := filepath.Join(dir, name)

	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open enrollment log %s: %w", path, err)
	}

	l := &enrollmentLog{file: f, w: bufio.NewWriter(f), path: path}
	if isNew {
		if _, err := fmt.Fprintln(l.w, csvHeader); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write enrollment log header: %w", err)
		}
	}
	return l, nil
}

// WriteCounts appends one row per section observation and returns the
// number of rows written.
func (l *enrollmentLog) WriteCounts(epochMS int64, counts []webreg.EnrollmentCount) (int, error) {
	for _, c := range counts {
		_, err := fmt.Fprintf(l.w, "%d,%s,%s,%s,%s,%d,%d,%d,%d\n",
			epochMS,
			c.SubjCourseID,
			c.SectionCode,
			c.SectionID,
			formatInstructors(c.AllInstructors),
			c.AvailableSeats,
			c.WaitlistCt,
			c.TotalSeats,
			c.EnrolledCt,
		)
		if err != nil {
			return 0, fmt.Errorf("write enrollment row: %w", err)
		}
	}
	return len(counts), nil
}

// Flush flushes buffered rows to disk.
func (l *enrollmentLog) Flush() error {
	return l.w.Flush()
}

// Close flushes and closes the log.
func (l *enrollmentLog) Close() error {
	if err := l.w.Flush(); err != nil {
		_ = l.file.Close()
		return err
	}
	return l.file.Close()
}

// formatInstructors joins instructor names with " & " and replaces commas
// with semicolons. Nearly every instructor name contains a comma
// ("Last, First"), which would otherwise break the CSV column count.
func formatInstructors(names []string) string {
	return strings.ReplaceAll(strings.Join(names, " & "), ",", ";")
}
